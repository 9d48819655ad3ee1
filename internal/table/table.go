// Soundlake - Music Streaming Star-Schema Lakehouse ETL
// Copyright 2026 Soundlake Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundlake/soundlake

// Package table provides the in-memory tabular record abstraction shared by
// all pipeline stages: an ordered list of typed columns plus a sequence of
// rows. Transformations (projection, rename, filter, derived columns,
// exact-row deduplication) are pure: every operation returns a new Table
// and never mutates its receiver.
//
// Cell values are one of: string, int64, float64, bool, time.Time, or nil.
// Operations validate column existence and cell types and report
// ErrSchemaMismatch on violation, since downstream projections assume
// fixed types.
//
// Row order carries no meaning anywhere in the pipeline; consumers must
// not rely on it.
package table

import (
	"fmt"
	"time"
)

// Type identifies the declared type of a column. A nil cell is permitted
// in a column of any type (absent fields in semi-structured input).
type Type int

const (
	TypeString Type = iota
	TypeInt
	TypeFloat
	TypeBool
	TypeTime
)

// String returns the lowercase name of the type.
func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	case TypeTime:
		return "time"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// Column describes one named, typed column.
type Column struct {
	Name string
	Type Type
}

// Table is an ordered set of typed columns over a sequence of rows.
// Rows are aligned with the column list by index.
type Table struct {
	cols []Column
	rows [][]any
}

// New creates an empty table with the given column layout.
func New(cols []Column) *Table {
	c := make([]Column, len(cols))
	copy(c, cols)
	return &Table{cols: c}
}

// Columns returns a copy of the column layout.
func (t *Table) Columns() []Column {
	c := make([]Column, len(t.cols))
	copy(c, t.cols)
	return c
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int {
	return len(t.rows)
}

// Rows returns the underlying row slice. The slice is shared with the
// table; callers must treat it as read-only.
func (t *Table) Rows() [][]any {
	return t.rows
}

// Row returns the i-th row. The slice is shared; treat as read-only.
func (t *Table) Row(i int) []any {
	return t.rows[i]
}

// Index returns the position of the named column.
func (t *Table) Index(name string) (int, bool) {
	for i, c := range t.cols {
		if c.Name == name {
			return i, true
		}
	}
	return 0, false
}

// MustIndex returns the position of the named column and panics if the
// column does not exist. Intended for callers that have already validated
// the schema (typically tests).
func (t *Table) MustIndex(name string) int {
	i, ok := t.Index(name)
	if !ok {
		panic(fmt.Sprintf("table: no column %q", name))
	}
	return i
}

// cellOK reports whether v is a valid cell value for a column of type typ.
func cellOK(v any, typ Type) bool {
	if v == nil {
		return true
	}
	switch typ {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeInt:
		_, ok := v.(int64)
		return ok
	case TypeFloat:
		_, ok := v.(float64)
		return ok
	case TypeBool:
		_, ok := v.(bool)
		return ok
	case TypeTime:
		_, ok := v.(time.Time)
		return ok
	default:
		return false
	}
}

// Append adds a row to the table after validating arity and cell types.
func (t *Table) Append(row []any) error {
	if len(row) != len(t.cols) {
		return fmt.Errorf("%w: row has %d cells, table has %d columns",
			ErrSchemaMismatch, len(row), len(t.cols))
	}
	for i, v := range row {
		if !cellOK(v, t.cols[i].Type) {
			return fmt.Errorf("%w: column %q expects %s, got %T",
				ErrSchemaMismatch, t.cols[i].Name, t.cols[i].Type, v)
		}
	}
	t.rows = append(t.rows, row)
	return nil
}

// Select projects the table to the named columns, in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	idx := make([]int, len(names))
	cols := make([]Column, len(names))
	for i, name := range names {
		j, ok := t.Index(name)
		if !ok {
			return nil, fmt.Errorf("%w: select references missing column %q",
				ErrSchemaMismatch, name)
		}
		idx[i] = j
		cols[i] = t.cols[j]
	}
	out := New(cols)
	out.rows = make([][]any, len(t.rows))
	for r, row := range t.rows {
		nr := make([]any, len(idx))
		for i, j := range idx {
			nr[i] = row[j]
		}
		out.rows[r] = nr
	}
	return out, nil
}

// Rename returns a table with the column old renamed to new. The data is
// shared with the receiver (renaming does not copy rows).
func (t *Table) Rename(old, new string) (*Table, error) {
	j, ok := t.Index(old)
	if !ok {
		return nil, fmt.Errorf("%w: rename references missing column %q",
			ErrSchemaMismatch, old)
	}
	if _, exists := t.Index(new); exists {
		return nil, fmt.Errorf("%w: rename target %q already exists",
			ErrSchemaMismatch, new)
	}
	out := &Table{cols: t.Columns(), rows: t.rows}
	out.cols[j].Name = new
	return out, nil
}

// Filter returns a table containing the rows for which keep returns true.
// Rows passed to keep are shared; keep must not mutate them.
func (t *Table) Filter(keep func(row []any) bool) *Table {
	out := New(t.cols)
	for _, row := range t.rows {
		if keep(row) {
			out.rows = append(out.rows, row)
		}
	}
	return out
}

// WithColumn appends a derived column computed per-row by fn. If a column
// with the same name already exists it is replaced in place, keeping its
// position. The derivation is a stateless per-row mapping; fn may return
// nil for rows where the value is undefined.
func (t *Table) WithColumn(col Column, fn func(row []any) any) (*Table, error) {
	if j, exists := t.Index(col.Name); exists {
		out := New(t.cols)
		out.cols[j] = col
		out.rows = make([][]any, len(t.rows))
		for r, row := range t.rows {
			nr := make([]any, len(row))
			copy(nr, row)
			v := fn(row)
			if !cellOK(v, col.Type) {
				return nil, fmt.Errorf("%w: derived column %q expects %s, got %T",
					ErrSchemaMismatch, col.Name, col.Type, v)
			}
			nr[j] = v
			out.rows[r] = nr
		}
		return out, nil
	}

	out := New(append(t.Columns(), col))
	out.rows = make([][]any, len(t.rows))
	for r, row := range t.rows {
		v := fn(row)
		if !cellOK(v, col.Type) {
			return nil, fmt.Errorf("%w: derived column %q expects %s, got %T",
				ErrSchemaMismatch, col.Name, col.Type, v)
		}
		nr := make([]any, len(row)+1)
		copy(nr, row)
		nr[len(row)] = v
		out.rows[r] = nr
	}
	return out, nil
}
