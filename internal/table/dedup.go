// Soundlake - Music Streaming Star-Schema Lakehouse ETL
// Copyright 2026 Soundlake Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundlake/soundlake

package table

import (
	"bytes"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
)

// DropDuplicates returns a table with exact-duplicate rows removed.
// Equality is full-row equality across all columns; near-duplicate rows
// that differ in any non-key field are NOT merged. This is the design
// policy applied to every output table before writing, not an
// error-correction step.
//
// The first occurrence of each distinct row survives; the relative order
// of survivors is unspecified, matching the pipeline's no-ordering
// contract.
//
// Implementation: rows are canonicalized to JSON and bucketed by 64-bit
// xxhash. Rows within a bucket are compared by exact encoding, so hash
// collisions cannot merge distinct rows.
func (t *Table) DropDuplicates() (*Table, error) {
	out := New(t.cols)
	seen := make(map[uint64][][]byte, len(t.rows))

rows:
	for _, row := range t.rows {
		key, err := canonicalRow(row)
		if err != nil {
			return nil, err
		}
		h := xxhash.Sum64(key)
		for _, prev := range seen[h] {
			if bytes.Equal(prev, key) {
				continue rows
			}
		}
		seen[h] = append(seen[h], key)
		out.rows = append(out.rows, row)
	}
	return out, nil
}

// canonicalRow produces a deterministic byte encoding of a row for
// equality comparison. time.Time cells marshal as RFC 3339 with
// nanoseconds, so equal instants in the same location encode identically.
func canonicalRow(row []any) ([]byte, error) {
	b, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("canonicalize row: %w", err)
	}
	return b, nil
}
