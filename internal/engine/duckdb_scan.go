// Soundlake - Music Streaming Star-Schema Lakehouse ETL
// Copyright 2026 Soundlake Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundlake/soundlake

package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/soundlake/soundlake/internal/table"
)

// duckType maps a table column type to the DuckDB column type used for
// temp-table materialization.
func duckType(t table.Type) (string, error) {
	switch t {
	case table.TypeString:
		return "VARCHAR", nil
	case table.TypeInt:
		return "BIGINT", nil
	case table.TypeFloat:
		return "DOUBLE", nil
	case table.TypeBool:
		return "BOOLEAN", nil
	case table.TypeTime:
		return "TIMESTAMP", nil
	default:
		return "", fmt.Errorf("%w: no DuckDB type for %s", table.ErrSchemaMismatch, t)
	}
}

// tableType maps a DuckDB result column type back to a table column type.
func tableType(dbType string) (table.Type, error) {
	switch strings.ToUpper(dbType) {
	case "VARCHAR", "UUID", "JSON":
		return table.TypeString, nil
	case "TINYINT", "SMALLINT", "INTEGER", "BIGINT", "HUGEINT",
		"UTINYINT", "USMALLINT", "UINTEGER", "UBIGINT":
		return table.TypeInt, nil
	case "FLOAT", "DOUBLE", "DECIMAL":
		return table.TypeFloat, nil
	case "BOOLEAN":
		return table.TypeBool, nil
	case "TIMESTAMP", "TIMESTAMP_S", "TIMESTAMP_MS", "TIMESTAMP_NS", "TIMESTAMPTZ", "DATE":
		return table.TypeTime, nil
	default:
		return 0, fmt.Errorf("%w: unsupported DuckDB column type %s", table.ErrSchemaMismatch, dbType)
	}
}

// loadTemp materializes a table into a uniquely named temp table and
// returns its name plus a drop function.
func (d *DuckDB) loadTemp(ctx context.Context, t *table.Table) (string, func(), error) {
	name := fmt.Sprintf("soundlake_tmp_%d", d.tmpSeq.Add(1))
	cols := t.Columns()

	defs := make([]string, len(cols))
	for i, c := range cols {
		dt, err := duckType(c.Type)
		if err != nil {
			return "", nil, err
		}
		defs[i] = quoteIdent(c.Name) + " " + dt
	}
	create := fmt.Sprintf("CREATE TEMP TABLE %s (%s)", name, strings.Join(defs, ", "))
	if _, err := d.conn.ExecContext(ctx, create); err != nil {
		return "", nil, fmt.Errorf("create temp table: %w", err)
	}
	drop := func() {
		// Temp table lifetime is bounded by the connection anyway.
		_, _ = d.conn.Exec("DROP TABLE IF EXISTS " + name)
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(cols)), ",")
	insert := fmt.Sprintf("INSERT INTO %s VALUES (%s)", name, placeholders)

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		drop()
		return "", nil, fmt.Errorf("begin load: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		_ = tx.Rollback()
		drop()
		return "", nil, fmt.Errorf("prepare load: %w", err)
	}
	for _, row := range t.Rows() {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			closeQuietly(stmt)
			_ = tx.Rollback()
			drop()
			return "", nil, fmt.Errorf("load row: %w", err)
		}
	}
	closeQuietly(stmt)
	if err := tx.Commit(); err != nil {
		drop()
		return "", nil, fmt.Errorf("commit load: %w", err)
	}

	return name, drop, nil
}

// scanTable converts a SQL result set into a Table.
func scanTable(rows *sql.Rows) (*table.Table, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("result columns: %w", err)
	}
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("result column types: %w", err)
	}

	cols := make([]table.Column, len(names))
	for i, name := range names {
		tt, err := tableType(colTypes[i].DatabaseTypeName())
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", name, err)
		}
		cols[i] = table.Column{Name: name, Type: tt}
	}

	out := table.New(cols)
	for rows.Next() {
		raw := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make([]any, len(cols))
		for i, v := range raw {
			cell, err := normalizeCell(cols[i], v)
			if err != nil {
				return nil, err
			}
			row[i] = cell
		}
		if err := out.Append(row); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// normalizeCell coerces a driver value to the table cell representation.
func normalizeCell(col table.Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch col.Type {
	case table.TypeString:
		switch c := v.(type) {
		case string:
			return c, nil
		case []byte:
			return string(c), nil
		}
	case table.TypeInt:
		switch c := v.(type) {
		case int64:
			return c, nil
		case int32:
			return int64(c), nil
		case int16:
			return int64(c), nil
		case int8:
			return int64(c), nil
		case int:
			return int64(c), nil
		case uint64:
			return int64(c), nil
		case uint32:
			return int64(c), nil
		}
	case table.TypeFloat:
		switch c := v.(type) {
		case float64:
			return c, nil
		case float32:
			return float64(c), nil
		}
	case table.TypeBool:
		if c, ok := v.(bool); ok {
			return c, nil
		}
	case table.TypeTime:
		if c, ok := v.(time.Time); ok {
			return c.UTC(), nil
		}
	}
	return nil, fmt.Errorf("%w: column %q expects %s, driver returned %T",
		table.ErrSchemaMismatch, col.Name, col.Type, v)
}

// quoteIdent quotes a SQL identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteLiteral quotes a SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
