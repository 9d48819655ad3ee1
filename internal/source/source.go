// Soundlake - Music Streaming Star-Schema Lakehouse ETL
// Copyright 2026 Soundlake Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundlake/soundlake

// Package source resolves glob-style path patterns against a base location
// and parses every matching newline-delimited JSON file into a Table.
//
// Two backends are selected by the location string: a local filesystem
// directory, or an S3 bucket/prefix when the location is an s3:// URI.
// Patterns support directory and filename wildcards
// (e.g. "song_data/*/*/*/*.json", "log_data/*/*/*events.json").
//
// The schema is inferred from the union of fields observed across all
// records; a field absent from a given record reads as nil. Columns are
// ordered alphabetically by field name. There is no ordering guarantee
// across files or within the merged record sequence.
package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/soundlake/soundlake/internal/table"
)

// ErrSourceNotFound indicates that no input files match the pattern.
// Fatal: the affected pipeline aborts.
var ErrSourceNotFound = errors.New("no input files match pattern")

// maxLineBytes bounds a single NDJSON record.
const maxLineBytes = 4 << 20

// Source reads raw records from a base location. The location is either a
// local directory path or an s3://bucket/prefix URI; it is otherwise
// opaque to callers.
type Source struct {
	location string
}

// New creates a Source over the given base location.
func New(location string) *Source {
	return &Source{location: strings.TrimRight(location, "/")}
}

// record is one parsed JSON document.
type record map[string]any

// Read resolves pattern against the base location and parses every
// matching file into a single table. Returns ErrSourceNotFound when no
// file matches.
func (s *Source) Read(ctx context.Context, pattern string) (*table.Table, error) {
	var (
		recs []record
		err  error
	)
	if strings.HasPrefix(s.location, "s3://") {
		recs, err = s.readS3(ctx, pattern)
	} else {
		recs, err = s.readLocal(ctx, pattern)
	}
	if err != nil {
		return nil, err
	}
	return buildTable(recs)
}

// parseLines decodes one JSON document per line. Blank lines are skipped.
func parseLines(r io.Reader, name string) ([]record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), maxLineBytes)

	var recs []record
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("parse %s line %d: %w", name, line, err)
		}
		recs = append(recs, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return recs, nil
}

// fieldKind tracks the inferred type of one field across all records.
type fieldKind struct {
	typ        table.Type
	seen       bool // a non-null value was observed
	fractional bool // a number with a fractional part was observed
}

// buildTable infers the union schema and materializes rows.
//
// JSON numbers decode as float64; a numeric field narrows to int when
// every observed value is integral (epoch millis, session ids, years),
// and stays float otherwise (durations, coordinates). Conflicting kinds
// across records are a schema mismatch, since downstream projections
// assume fixed types.
func buildTable(recs []record) (*table.Table, error) {
	kinds := make(map[string]*fieldKind)
	for _, rec := range recs {
		for name, v := range rec {
			k, ok := kinds[name]
			if !ok {
				k = &fieldKind{}
				kinds[name] = k
			}
			if v == nil {
				continue
			}
			typ, frac, err := kindOf(name, v)
			if err != nil {
				return nil, err
			}
			if k.seen && k.typ != typ {
				// Numbers may widen int -> float; anything else conflicts.
				if k.typ == table.TypeInt && typ == table.TypeFloat {
					k.typ = table.TypeFloat
				} else if !(k.typ == table.TypeFloat && typ == table.TypeInt) {
					return nil, fmt.Errorf("%w: field %q is both %s and %s",
						table.ErrSchemaMismatch, name, k.typ, typ)
				}
			} else {
				k.typ = typ
			}
			k.seen = true
			k.fractional = k.fractional || frac
		}
	}

	names := make([]string, 0, len(kinds))
	for name := range kinds {
		names = append(names, name)
	}
	sort.Strings(names)

	cols := make([]table.Column, len(names))
	for i, name := range names {
		k := kinds[name]
		typ := k.typ
		if !k.seen {
			typ = table.TypeString // null-only field, arbitrary but stable
		}
		if typ == table.TypeInt && k.fractional {
			typ = table.TypeFloat
		}
		cols[i] = table.Column{Name: name, Type: typ}
	}

	out := table.New(cols)
	for _, rec := range recs {
		row := make([]any, len(cols))
		for i, col := range cols {
			v, ok := rec[col.Name]
			if !ok || v == nil {
				continue
			}
			cell, err := convertCell(col, v)
			if err != nil {
				return nil, err
			}
			row[i] = cell
		}
		if err := out.Append(row); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// kindOf maps a decoded JSON value to a column type. Nested objects and
// arrays are not part of either input contract.
func kindOf(name string, v any) (typ table.Type, fractional bool, err error) {
	switch n := v.(type) {
	case string:
		return table.TypeString, false, nil
	case bool:
		return table.TypeBool, false, nil
	case float64:
		if n == math.Trunc(n) && n >= math.MinInt64 && n <= math.MaxInt64 {
			return table.TypeInt, false, nil
		}
		return table.TypeFloat, true, nil
	default:
		return 0, false, fmt.Errorf("%w: field %q has unsupported value type %T",
			table.ErrSchemaMismatch, name, v)
	}
}

// convertCell coerces a decoded JSON value to the column's cell type.
func convertCell(col table.Column, v any) (any, error) {
	switch col.Type {
	case table.TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: field %q expects string, got %T",
				table.ErrSchemaMismatch, col.Name, v)
		}
		return s, nil
	case table.TypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: field %q expects bool, got %T",
				table.ErrSchemaMismatch, col.Name, v)
		}
		return b, nil
	case table.TypeInt:
		n, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("%w: field %q expects number, got %T",
				table.ErrSchemaMismatch, col.Name, v)
		}
		return int64(n), nil
	case table.TypeFloat:
		n, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("%w: field %q expects number, got %T",
				table.ErrSchemaMismatch, col.Name, v)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("%w: field %q has unexpected inferred type %s",
			table.ErrSchemaMismatch, col.Name, col.Type)
	}
}
