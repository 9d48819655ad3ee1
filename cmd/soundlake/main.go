// Soundlake - Music Streaming Star-Schema Lakehouse ETL
// Copyright 2026 Soundlake Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundlake/soundlake

// Package main is the entry point for the soundlake batch pipeline.
//
// Soundlake reads raw track metadata and listening session events
// (NDJSON, local or S3), derives a star schema of five tables (songs,
// artist, users, time and the songplays fact table) and writes them as
// partitioned output, overwriting each table wholesale on every run.
//
// # Run Lifecycle
//
//  1. Configuration: load settings from environment variables and an
//     optional config file (Koanf v2)
//  2. Logging: structured zerolog output (json or console)
//  3. Engine: DuckDB (default, parquet output) or the in-process memory
//     engine (NDJSON output)
//  4. Pipeline: song and log stages run concurrently, then the
//     songplay join runs over both results
//  5. Manifest: a _manifest.json run summary next to the tables
//
// # Configuration
//
// Minimum configuration is the two locations:
//
//	export INPUT_LOCATION=/data/raw
//	export OUTPUT_LOCATION=/data/lake
//	./soundlake
//
// S3 on both ends with static credentials:
//
//	export INPUT_LOCATION=s3://bucket/raw
//	export OUTPUT_LOCATION=s3://bucket/lake
//	export AWS_ACCESS_KEY_ID=...
//	export AWS_SECRET_ACCESS_KEY=...
//	export AWS_REGION=us-west-2
//	./soundlake
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the run context; the pipeline stops at the
// next stage boundary. Interrupted output directories may hold partial
// state and are replaced by the next successful run.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/soundlake/soundlake/internal/config"
	"github.com/soundlake/soundlake/internal/engine"
	"github.com/soundlake/soundlake/internal/etl"
	"github.com/soundlake/soundlake/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Default logger: config (and its logging settings) not available
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	cfg.ExportCredentials()

	eng, cleanup, err := buildEngine(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize engine")
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, err := etl.Run(ctx, eng, etl.Options{
		InputLocation:  cfg.Input.Location,
		SongPattern:    cfg.Input.SongPattern,
		LogPattern:     cfg.Input.LogPattern,
		OutputLocation: cfg.Output.Location,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Pipeline run failed")
	}

	logging.Info().
		Str("run_id", m.RunID).
		Int64("duration_ms", m.DurationMS).
		Msg("Soundlake run finished")
}

// buildEngine constructs the configured execution engine and a cleanup
// func releasing its resources.
func buildEngine(cfg *config.Config) (engine.Engine, func(), error) {
	switch cfg.Engine.Kind {
	case "memory":
		logging.Info().Msg("Using in-process memory engine")
		return engine.NewMemory(), func() {}, nil
	default:
		d, err := engine.NewDuckDB(engine.DuckDBConfig{
			Path:      cfg.Engine.Database.Path,
			MaxMemory: cfg.Engine.Database.MaxMemory,
			Threads:   cfg.Engine.Database.Threads,
		})
		if err != nil {
			return nil, nil, err
		}
		logging.Info().Str("path", cfg.Engine.Database.Path).Msg("Using DuckDB engine")
		return d, func() {
			if cerr := d.Close(); cerr != nil {
				logging.Warn().Err(cerr).Msg("Failed to close DuckDB")
			}
		}, nil
	}
}
