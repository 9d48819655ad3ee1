// Soundlake - Music Streaming Star-Schema Lakehouse ETL
// Copyright 2026 Soundlake Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundlake/soundlake

package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/soundlake/soundlake/internal/source"
	"github.com/soundlake/soundlake/internal/table"
)

// Memory is the single-process engine. It supports local filesystem and
// S3 input locations (via internal/source) but writes local output only;
// remote output requires the DuckDB engine.
type Memory struct{}

// NewMemory creates the in-process engine.
func NewMemory() *Memory {
	return &Memory{}
}

// Read parses every NDJSON record matching pattern under location.
func (m *Memory) Read(ctx context.Context, location, pattern string) (*table.Table, error) {
	return source.New(location).Read(ctx, pattern)
}

// Dedup drops exact-duplicate rows.
func (m *Memory) Dedup(_ context.Context, t *table.Table) (*table.Table, error) {
	return t.DropDuplicates()
}

// Join performs an in-process inner hash join on equality of two string
// columns. A nil key on either side never matches (SQL semantics). Column
// name collisions between the two sides are rejected rather than aliased;
// neither pipeline input shares field names across sources.
func (m *Memory) Join(_ context.Context, left, right *table.Table, leftCol, rightCol string) (*table.Table, error) {
	li, ok := left.Index(leftCol)
	if !ok {
		return nil, fmt.Errorf("%w: join references missing column %q", table.ErrSchemaMismatch, leftCol)
	}
	ri, ok := right.Index(rightCol)
	if !ok {
		return nil, fmt.Errorf("%w: join references missing column %q", table.ErrSchemaMismatch, rightCol)
	}
	if lt, rt := left.Columns()[li].Type, right.Columns()[ri].Type; lt != table.TypeString || rt != table.TypeString {
		return nil, fmt.Errorf("%w: join keys must be strings, got %s and %s",
			table.ErrSchemaMismatch, lt, rt)
	}

	leftCols, rightCols := left.Columns(), right.Columns()
	for _, rc := range rightCols {
		if _, clash := left.Index(rc.Name); clash {
			return nil, fmt.Errorf("%w: join would duplicate column %q",
				table.ErrSchemaMismatch, rc.Name)
		}
	}

	index := make(map[string][]int, right.NumRows())
	for r, row := range right.Rows() {
		key, ok := row[ri].(string)
		if !ok {
			continue // nil key never matches
		}
		index[key] = append(index[key], r)
	}

	out := table.New(append(leftCols, rightCols...))
	for _, lrow := range left.Rows() {
		key, ok := lrow[li].(string)
		if !ok {
			continue
		}
		for _, r := range index[key] {
			rrow := right.Row(r)
			joined := make([]any, 0, len(lrow)+len(rrow))
			joined = append(joined, lrow...)
			joined = append(joined, rrow...)
			if err := out.Append(joined); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// Write serializes the table as hive-partitioned NDJSON under path,
// replacing any prior content. Remote locations are not supported by this
// engine.
func (m *Memory) Write(ctx context.Context, t *table.Table, path string, partitionBy []string) error {
	if strings.Contains(path, "://") {
		return fmt.Errorf("%w: memory engine cannot write remote location %s", ErrWriteFailure, path)
	}
	return writeHiveNDJSON(ctx, t, path, partitionBy)
}
