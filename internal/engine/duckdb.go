// Soundlake - Music Streaming Star-Schema Lakehouse ETL
// Copyright 2026 Soundlake Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundlake/soundlake

package engine

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/soundlake/soundlake/internal/logging"
	"github.com/soundlake/soundlake/internal/source"
	"github.com/soundlake/soundlake/internal/table"
)

// DuckDBConfig tunes the DuckDB engine.
type DuckDBConfig struct {
	// Path is the database file. Empty runs fully in-memory, which is the
	// normal mode: all state lives in the written output files, not the
	// engine.
	Path string

	// MaxMemory caps DuckDB memory usage, e.g. "2GB". Empty uses the
	// DuckDB default.
	MaxMemory string

	// Threads is the DuckDB worker thread count. 0 uses runtime.NumCPU().
	Threads int
}

// DuckDB executes reads, joins, dedup and partitioned parquet writes
// against an embedded DuckDB instance.
type DuckDB struct {
	conn *sql.DB
	cfg  DuckDBConfig

	tmpSeq atomic.Int64

	httpfsMu     sync.Mutex
	httpfsLoaded bool
}

// NewDuckDB opens the embedded database and configures the connection
// pool.
func NewDuckDB(cfg DuckDBConfig) (*DuckDB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	// Ensure parent directory exists when a database file is requested
	if cfg.Path != "" {
		dbDir := filepath.Dir(cfg.Path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}
	}

	connStr := fmt.Sprintf("%s?threads=%d", cfg.Path, numThreads)
	if cfg.MaxMemory != "" {
		connStr += "&max_memory=" + cfg.MaxMemory
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Temp tables are per-connection state: every operation must observe
	// the tables it created, so the pool is pinned to a single connection.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	return &DuckDB{conn: conn, cfg: cfg}, nil
}

// Close releases the database connection.
func (d *DuckDB) Close() error {
	return d.conn.Close()
}

// Read scans every NDJSON record matching pattern under location with
// read_ndjson_auto. union_by_name merges differing per-file schemas into
// the union of observed fields.
func (d *DuckDB) Read(ctx context.Context, location, pattern string) (*table.Table, error) {
	glob := joinLocation(location, pattern)
	if strings.HasPrefix(glob, "s3://") {
		if err := d.ensureHTTPFS(ctx); err != nil {
			return nil, err
		}
	}

	query := fmt.Sprintf(
		"SELECT * FROM read_ndjson_auto(%s, union_by_name=true)", quoteLiteral(glob))
	rows, err := d.conn.QueryContext(ctx, query)
	if err != nil {
		if isNoFilesError(err) {
			return nil, fmt.Errorf("%w: %q", source.ErrSourceNotFound, glob)
		}
		return nil, fmt.Errorf("read %q: %w", glob, err)
	}
	defer closeQuietly(rows)

	return scanTable(rows)
}

// Dedup materializes the table and selects distinct rows.
func (d *DuckDB) Dedup(ctx context.Context, t *table.Table) (*table.Table, error) {
	name, drop, err := d.loadTemp(ctx, t)
	if err != nil {
		return nil, err
	}
	defer drop()

	rows, err := d.conn.QueryContext(ctx, "SELECT DISTINCT * FROM "+name)
	if err != nil {
		return nil, fmt.Errorf("dedup: %w", err)
	}
	defer closeQuietly(rows)
	return scanTable(rows)
}

// Join materializes both tables and performs an inner join on equality of
// the named columns. Column name collisions between the two sides are
// rejected, matching the memory engine.
func (d *DuckDB) Join(ctx context.Context, left, right *table.Table, leftCol, rightCol string) (*table.Table, error) {
	for _, rc := range right.Columns() {
		if _, clash := left.Index(rc.Name); clash {
			return nil, fmt.Errorf("%w: join would duplicate column %q",
				table.ErrSchemaMismatch, rc.Name)
		}
	}

	lname, dropL, err := d.loadTemp(ctx, left)
	if err != nil {
		return nil, err
	}
	defer dropL()
	rname, dropR, err := d.loadTemp(ctx, right)
	if err != nil {
		return nil, err
	}
	defer dropR()

	query := fmt.Sprintf("SELECT %s.*, %s.* FROM %s INNER JOIN %s ON %s.%s = %s.%s",
		lname, rname, lname, rname,
		lname, quoteIdent(leftCol), rname, quoteIdent(rightCol))
	rows, err := d.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}
	defer closeQuietly(rows)
	return scanTable(rows)
}

// Write copies the table to hive-partitioned parquet at path, replacing
// prior content. Local destinations are cleared first; for remote
// destinations OVERWRITE_OR_IGNORE replaces files in place (stale
// partitions from a previous differently-shaped run are not swept - an
// environment property of non-atomic object-store overwrites).
func (d *DuckDB) Write(ctx context.Context, t *table.Table, path string, partitionBy []string) error {
	remote := strings.Contains(path, "://")
	if remote {
		if err := d.ensureHTTPFS(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrWriteFailure, err)
		}
	}

	for _, name := range partitionBy {
		if _, ok := t.Index(name); !ok {
			return fmt.Errorf("%w: partition column %q not in table", ErrWriteFailure, name)
		}
	}

	name, drop, err := d.loadTemp(ctx, t)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	defer drop()

	if !remote {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("%w: clear %s: %v", ErrWriteFailure, path, err)
		}
		if err := os.MkdirAll(path, 0o750); err != nil {
			return fmt.Errorf("%w: create %s: %v", ErrWriteFailure, path, err)
		}
	}

	var copyStmt string
	if len(partitionBy) > 0 {
		quoted := make([]string, len(partitionBy))
		for i, c := range partitionBy {
			quoted[i] = quoteIdent(c)
		}
		copyStmt = fmt.Sprintf("COPY %s TO %s (FORMAT PARQUET, PARTITION_BY (%s), OVERWRITE_OR_IGNORE)",
			name, quoteLiteral(path), strings.Join(quoted, ", "))
	} else {
		copyStmt = fmt.Sprintf("COPY %s TO %s (FORMAT PARQUET)",
			name, quoteLiteral(joinLocation(path, "part-00000.parquet")))
	}

	if _, err := d.conn.ExecContext(ctx, copyStmt); err != nil {
		return fmt.Errorf("%w: copy to %s: %v", ErrWriteFailure, path, err)
	}
	return nil
}

// ensureHTTPFS loads the httpfs extension and applies S3 credentials from
// the process environment. Loaded at most once per engine.
func (d *DuckDB) ensureHTTPFS(ctx context.Context) error {
	d.httpfsMu.Lock()
	defer d.httpfsMu.Unlock()
	if d.httpfsLoaded {
		return nil
	}

	for _, stmt := range []string{"INSTALL httpfs", "LOAD httpfs"} {
		if _, err := d.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("httpfs extension: %w", err)
		}
	}

	settings := map[string]string{
		"s3_access_key_id":     os.Getenv("AWS_ACCESS_KEY_ID"),
		"s3_secret_access_key": os.Getenv("AWS_SECRET_ACCESS_KEY"),
		"s3_region":            os.Getenv("AWS_REGION"),
	}
	for key, val := range settings {
		if val == "" {
			continue
		}
		stmt := fmt.Sprintf("SET %s=%s", key, quoteLiteral(val))
		if _, err := d.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}

	d.httpfsLoaded = true
	logging.Debug().Msg("httpfs extension loaded")
	return nil
}

// isNoFilesError matches DuckDB's empty-glob failure.
func isNoFilesError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "No files found") ||
		strings.Contains(msg, "no files found")
}

// joinLocation joins a base location and a relative path, preserving URI
// schemes (filepath.Join would mangle "s3://").
func joinLocation(location, rel string) string {
	return strings.TrimRight(location, "/") + "/" + rel
}

// closeQuietly closes a resource and explicitly ignores any error.
// Use this for cleanup operations in error paths where Close() errors are
// not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}
