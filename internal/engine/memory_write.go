// Soundlake - Music Streaming Star-Schema Lakehouse ETL
// Copyright 2026 Soundlake Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundlake/soundlake

package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/soundlake/soundlake/internal/table"
)

// hiveNullPartition is the directory name for a nil partition value,
// matching the convention of hive-compatible writers.
const hiveNullPartition = "__HIVE_DEFAULT_PARTITION__"

// writeHiveNDJSON writes the table as one NDJSON file per partition under
// col=value directories, removing any existing content at path first.
// Partition columns are encoded in the directory names and dropped from
// the data files, hive-style. An empty table still produces the (empty)
// destination directory so prior output is replaced wholesale.
//
// Replacement is remove-then-write: a failure mid-write leaves partial
// state at the destination.
func writeHiveNDJSON(ctx context.Context, t *table.Table, path string, partitionBy []string) error {
	partIdx := make([]int, len(partitionBy))
	for i, name := range partitionBy {
		j, ok := t.Index(name)
		if !ok {
			return fmt.Errorf("%w: partition column %q not in table", ErrWriteFailure, name)
		}
		partIdx[i] = j
	}

	dataCols := make([]table.Column, 0, len(t.Columns()))
	dataIdx := make([]int, 0, len(t.Columns()))
	for i, c := range t.Columns() {
		if !contains(partitionBy, c.Name) {
			dataCols = append(dataCols, c)
			dataIdx = append(dataIdx, i)
		}
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("%w: clear %s: %v", ErrWriteFailure, path, err)
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrWriteFailure, path, err)
	}

	// Group rows by partition directory.
	groups := make(map[string][][]any)
	var order []string
	for _, row := range t.Rows() {
		dir := ""
		for i, j := range partIdx {
			dir = filepath.Join(dir, partitionBy[i]+"="+partitionValue(row[j]))
		}
		if _, ok := groups[dir]; !ok {
			order = append(order, dir)
		}
		groups[dir] = append(groups[dir], row)
	}

	for _, dir := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writePartFile(filepath.Join(path, dir), dataCols, dataIdx, groups[dir]); err != nil {
			return err
		}
	}
	return nil
}

// writePartFile writes one partition's rows as part-00000.json.
func writePartFile(dir string, cols []table.Column, idx []int, rows [][]any) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrWriteFailure, dir, err)
	}
	f, err := os.Create(filepath.Join(dir, "part-00000.json"))
	if err != nil {
		return fmt.Errorf("%w: create part file in %s: %v", ErrWriteFailure, dir, err)
	}
	enc := json.NewEncoder(f)
	for _, row := range rows {
		rec := make(map[string]any, len(cols))
		for i, c := range cols {
			rec[c.Name] = row[idx[i]]
		}
		if err := enc.Encode(rec); err != nil {
			_ = f.Close()
			return fmt.Errorf("%w: encode row in %s: %v", ErrWriteFailure, dir, err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close part file in %s: %v", ErrWriteFailure, dir, err)
	}
	return nil
}

// partitionValue renders a cell for use in a col=value directory name.
func partitionValue(v any) string {
	switch c := v.(type) {
	case nil:
		return hiveNullPartition
	case string:
		return c
	case int64:
		return strconv.FormatInt(c, 10)
	case float64:
		return strconv.FormatFloat(c, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(c)
	case time.Time:
		return c.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", c)
	}
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
