// Soundlake - Music Streaming Star-Schema Lakehouse ETL
// Copyright 2026 Soundlake Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundlake/soundlake

package engine

import (
	"bufio"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/soundlake/soundlake/internal/table"
)

func mustAppend(t *testing.T, tbl *table.Table, rows ...[]any) {
	t.Helper()
	for _, r := range rows {
		if err := tbl.Append(r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
}

func TestMemoryJoinInner(t *testing.T) {
	plays := table.New([]table.Column{
		{Name: "artist", Type: table.TypeString},
		{Name: "sessionId", Type: table.TypeInt},
	})
	mustAppend(t, plays,
		[]any{"Band X", int64(100)},
		[]any{"Band Y", int64(101)}, // no matching track
		[]any{nil, int64(102)},      // nil key never matches
	)

	tracks := table.New([]table.Column{
		{Name: "artist_name", Type: table.TypeString},
		{Name: "song_id", Type: table.TypeString},
	})
	mustAppend(t, tracks,
		[]any{"Band X", "S1"},
		[]any{"Band X", "S2"}, // same display name, second track: both join
		[]any{"Band Z", "S3"},
	)

	got, err := NewMemory().Join(context.Background(), plays, tracks, "artist", "artist_name")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}

	if got.NumRows() != 2 {
		t.Fatalf("joined %d rows, want 2", got.NumRows())
	}
	// Left columns then right columns
	wantCols := []string{"artist", "sessionId", "artist_name", "song_id"}
	for i, c := range got.Columns() {
		if c.Name != wantCols[i] {
			t.Errorf("column %d = %q, want %q", i, c.Name, wantCols[i])
		}
	}
	si := got.MustIndex("song_id")
	seen := map[any]bool{}
	for _, row := range got.Rows() {
		seen[row[si]] = true
	}
	if !seen["S1"] || !seen["S2"] {
		t.Errorf("expected S1 and S2 matches, got %v", seen)
	}
}

func TestMemoryJoinErrors(t *testing.T) {
	left := table.New([]table.Column{{Name: "k", Type: table.TypeString}})
	right := table.New([]table.Column{{Name: "k2", Type: table.TypeString}})

	m := NewMemory()
	if _, err := m.Join(context.Background(), left, right, "missing", "k2"); !errors.Is(err, table.ErrSchemaMismatch) {
		t.Errorf("missing left key: error = %v, want ErrSchemaMismatch", err)
	}

	intKey := table.New([]table.Column{{Name: "k2", Type: table.TypeInt}})
	if _, err := m.Join(context.Background(), left, intKey, "k", "k2"); !errors.Is(err, table.ErrSchemaMismatch) {
		t.Errorf("non-string key: error = %v, want ErrSchemaMismatch", err)
	}

	clash := table.New([]table.Column{{Name: "k", Type: table.TypeString}})
	if _, err := m.Join(context.Background(), left, clash, "k", "k"); !errors.Is(err, table.ErrSchemaMismatch) {
		t.Errorf("column collision: error = %v, want ErrSchemaMismatch", err)
	}
}

// readHiveOutput walks a hive-partitioned NDJSON output directory and
// returns every record with its partition directory values folded back in.
func readHiveOutput(t *testing.T, root string) []map[string]any {
	t.Helper()
	var recs []map[string]any
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".json") {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		parts := map[string]string{}
		for _, seg := range strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/") {
			if k, v, ok := strings.Cut(seg, "="); ok {
				parts[k] = v
			}
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			if strings.TrimSpace(sc.Text()) == "" {
				continue
			}
			rec := map[string]any{}
			if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
				return err
			}
			for k, v := range parts {
				rec[k] = v
			}
			recs = append(recs, rec)
		}
		return sc.Err()
	})
	if err != nil {
		t.Fatalf("readHiveOutput: %v", err)
	}
	return recs
}

func TestMemoryWritePartitioned(t *testing.T) {
	tbl := table.New([]table.Column{
		{Name: "song_id", Type: table.TypeString},
		{Name: "year", Type: table.TypeInt},
		{Name: "artist_id", Type: table.TypeString},
	})
	mustAppend(t, tbl,
		[]any{"S1", int64(2000), "AR1"},
		[]any{"S2", int64(2000), "AR1"},
		[]any{"S3", nil, "AR2"},
	)

	out := filepath.Join(t.TempDir(), "songs")
	if err := NewMemory().Write(context.Background(), tbl, out, []string{"year", "artist_id"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// Partition directories are col=value, in partition-column order.
	if _, err := os.Stat(filepath.Join(out, "year=2000", "artist_id=AR1", "part-00000.json")); err != nil {
		t.Errorf("expected partition file: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "year="+hiveNullPartition, "artist_id=AR2", "part-00000.json")); err != nil {
		t.Errorf("expected null partition file: %v", err)
	}

	recs := readHiveOutput(t, out)
	if len(recs) != 3 {
		t.Fatalf("read back %d records, want 3", len(recs))
	}
	for _, rec := range recs {
		// Partition columns live in the directory names, not the files:
		// readHiveOutput folds them back as strings.
		if _, ok := rec["song_id"]; !ok {
			t.Errorf("record missing data column: %v", rec)
		}
		if _, ok := rec["artist_id"]; !ok {
			t.Errorf("record missing partition value: %v", rec)
		}
	}
}

func TestMemoryWriteOverwrites(t *testing.T) {
	out := filepath.Join(t.TempDir(), "users")

	stale := filepath.Join(out, "stale-dir")
	if err := os.MkdirAll(stale, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	tbl := table.New([]table.Column{{Name: "user_id", Type: table.TypeString}})
	mustAppend(t, tbl, []any{"7"})
	if err := NewMemory().Write(context.Background(), tbl, out, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("prior content at destination survived overwrite")
	}
	recs := readHiveOutput(t, out)
	if len(recs) != 1 || recs[0]["user_id"] != "7" {
		t.Errorf("read back %v", recs)
	}
}

func TestMemoryWriteEmptyTable(t *testing.T) {
	out := filepath.Join(t.TempDir(), "empty")
	tbl := table.New([]table.Column{{Name: "a", Type: table.TypeString}})

	if err := NewMemory().Write(context.Background(), tbl, out, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	info, err := os.Stat(out)
	if err != nil || !info.IsDir() {
		t.Errorf("empty write should still create destination: %v", err)
	}
}

func TestMemoryWriteErrors(t *testing.T) {
	tbl := table.New([]table.Column{{Name: "a", Type: table.TypeString}})
	m := NewMemory()

	err := m.Write(context.Background(), tbl, "s3://bucket/out", nil)
	if !errors.Is(err, ErrWriteFailure) {
		t.Errorf("remote write: error = %v, want ErrWriteFailure", err)
	}

	err = m.Write(context.Background(), tbl, filepath.Join(t.TempDir(), "x"), []string{"missing"})
	if !errors.Is(err, ErrWriteFailure) {
		t.Errorf("missing partition column: error = %v, want ErrWriteFailure", err)
	}
}

func TestMemoryDedup(t *testing.T) {
	tbl := table.New([]table.Column{{Name: "a", Type: table.TypeString}})
	mustAppend(t, tbl, []any{"x"}, []any{"x"}, []any{"y"})

	got, err := NewMemory().Dedup(context.Background(), tbl)
	if err != nil {
		t.Fatalf("Dedup: %v", err)
	}
	if got.NumRows() != 2 {
		t.Errorf("Dedup kept %d rows, want 2", got.NumRows())
	}
}
