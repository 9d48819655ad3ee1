// Soundlake - Music Streaming Star-Schema Lakehouse ETL
// Copyright 2026 Soundlake Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundlake/soundlake

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Config holds all pipeline configuration.
//
// Configuration loading order (Koanf v2):
//  1. Defaults: built-in values for every optional setting
//  2. Config file: optional YAML file (config.yaml) for persistent settings
//  3. Environment variables: override any setting
//
// Config is immutable after Load and safe for concurrent reads.
type Config struct {
	Input   InputConfig   `koanf:"input"`
	Output  OutputConfig  `koanf:"output"`
	Engine  EngineConfig  `koanf:"engine"`
	AWS     AWSConfig     `koanf:"aws"`
	Logging LoggingConfig `koanf:"logging"`
}

// InputConfig locates the two raw datasets. Location is a local
// directory or an s3:// URI; the patterns are glob expressions relative
// to it.
//
// Environment variables:
//   - INPUT_LOCATION: base location of the raw data (required)
//   - SONG_PATTERN: track metadata glob (default song_data/*/*/*/*.json)
//   - LOG_PATTERN: session event glob (default log_data/*/*/*events.json)
type InputConfig struct {
	Location    string `koanf:"location" validate:"required"`
	SongPattern string `koanf:"song_pattern" validate:"required"`
	LogPattern  string `koanf:"log_pattern" validate:"required"`
}

// OutputConfig locates the table output base. Each of the five table
// directories beneath it is overwritten wholesale on every run.
type OutputConfig struct {
	Location string `koanf:"location" validate:"required"`
}

// EngineConfig selects and tunes the execution engine.
//
// Environment variables:
//   - ENGINE_KIND: "duckdb" (default) or "memory"
//   - DUCKDB_PATH: database file, empty for in-memory
//   - DUCKDB_MAX_MEMORY: e.g. "2GB", empty for the DuckDB default
//   - DUCKDB_THREADS: 0 = use runtime.NumCPU()
type EngineConfig struct {
	Kind     string         `koanf:"kind" validate:"oneof=duckdb memory"`
	Database DatabaseConfig `koanf:"database"`
}

// DatabaseConfig holds DuckDB settings. Ignored by the memory engine.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads" validate:"gte=0"`
}

// AWSConfig carries the credentials used for s3:// locations. All three
// are optional; when unset the default provider chain (instance profile,
// shared config) applies.
type AWSConfig struct {
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
	Region          string `koanf:"region"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid configuration: %s failed %q check", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return c.validateAWS()
}

// validateAWS rejects half-configured static credentials (one key
// without the other would silently fall through to the provider chain)
// and engine/location combinations that cannot work.
func (c *Config) validateAWS() error {
	hasID := c.AWS.AccessKeyID != ""
	hasSecret := c.AWS.SecretAccessKey != ""
	if hasID != hasSecret {
		return fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")
	}
	if c.Engine.Kind == "memory" && strings.HasPrefix(c.Output.Location, "s3://") {
		return fmt.Errorf("memory engine cannot write to s3 output location %s", c.Output.Location)
	}
	return nil
}

// ExportCredentials pushes the configured AWS credentials into the
// process environment so both the S3 client and DuckDB's httpfs
// extension pick them up from one place.
func (c *Config) ExportCredentials() {
	if c.AWS.AccessKeyID != "" {
		os.Setenv("AWS_ACCESS_KEY_ID", c.AWS.AccessKeyID)
	}
	if c.AWS.SecretAccessKey != "" {
		os.Setenv("AWS_SECRET_ACCESS_KEY", c.AWS.SecretAccessKey)
	}
	if c.AWS.Region != "" {
		os.Setenv("AWS_REGION", c.AWS.Region)
	}
}
