// Soundlake - Music Streaming Star-Schema Lakehouse ETL
// Copyright 2026 Soundlake Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundlake/soundlake

// Package engine defines the pluggable tabular-computation capability the
// pipeline runs against, and provides two implementations:
//
//   - Memory: a pure in-process engine. Reads NDJSON through
//     internal/source, joins and deduplicates in Go, and writes
//     hive-partitioned NDJSON. Used by tests and small local runs.
//   - DuckDB: the production columnar engine. Reads NDJSON with
//     read_ndjson_auto, executes DISTINCT and INNER JOIN in SQL over
//     temporary tables, and writes hive-partitioned parquet via COPY.
//
// The transformation logic in internal/etl is engine-agnostic: it only
// touches this interface plus the pure table operations.
//
// Write contract: the destination is replaced wholesale on every run; no
// merge-on-write, no append. Replacement is NOT atomic - a failed write
// may leave the destination in a partial state. This is a property of the
// storage environment, documented rather than papered over.
package engine

import (
	"context"
	"errors"

	"github.com/soundlake/soundlake/internal/table"
)

// ErrWriteFailure indicates an unwritable destination or a type conflict
// with existing output at the same path. Fatal: there is no partial-success
// mode and no retry at this layer.
var ErrWriteFailure = errors.New("table write failed")

// Engine is the tabular-computation capability the pipeline depends on.
// All operations are synchronous, whole-dataset calls; none guarantees any
// row ordering.
type Engine interface {
	// Read resolves a glob pattern against a base location (local path or
	// object-store URI) and returns every matching NDJSON record as one
	// table. Returns source.ErrSourceNotFound when nothing matches.
	Read(ctx context.Context, location, pattern string) (*table.Table, error)

	// Write serializes the table under path, optionally hive-partitioned
	// by the named columns in order, replacing prior content at that path.
	Write(ctx context.Context, t *table.Table, path string, partitionBy []string) error

	// Dedup drops exact-duplicate rows (full-row equality).
	Dedup(ctx context.Context, t *table.Table) (*table.Table, error)

	// Join performs an inner join on equality of the named columns.
	// Result columns are the left columns followed by the right columns.
	Join(ctx context.Context, left, right *table.Table, leftCol, rightCol string) (*table.Table, error)
}
