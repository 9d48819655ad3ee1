// Soundlake - Music Streaming Star-Schema Lakehouse ETL
// Copyright 2026 Soundlake Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundlake/soundlake

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/soundlake/config.yaml",
	"/etc/soundlake/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with defaults for every optional
// setting. Input and output locations have no default; they must come
// from the config file or the environment.
func defaultConfig() *Config {
	return &Config{
		Input: InputConfig{
			Location:    "",
			SongPattern: "song_data/*/*/*/*.json",
			LogPattern:  "log_data/*/*/*events.json",
		},
		Output: OutputConfig{
			Location: "",
		},
		Engine: EngineConfig{
			Kind: "duckdb",
			Database: DatabaseConfig{
				Path:      "", // in-memory
				MaxMemory: "",
				Threads:   0, // 0 = use runtime.NumCPU()
			},
		},
		AWS: AWSConfig{
			AccessKeyID:     "",
			SecretAccessKey: "",
			Region:          "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from layered sources using Koanf v2:
//  1. Defaults from the struct above
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
//
// The result is validated before being returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches the env override and then the default paths,
// returning the first file that exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to koanf config
// paths. Unmapped variables are skipped so random environment entries
// do not pollute the configuration.
//
// Examples:
//   - INPUT_LOCATION -> input.location
//   - DUCKDB_MAX_MEMORY -> engine.database.max_memory
//   - LOG_LEVEL -> logging.level
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Input mappings
		"input_location": "input.location",
		"song_pattern":   "input.song_pattern",
		"log_pattern":    "input.log_pattern",

		// Output mappings
		"output_location": "output.location",

		// Engine mappings
		"engine_kind":       "engine.kind",
		"duckdb_path":       "engine.database.path",
		"duckdb_max_memory": "engine.database.max_memory",
		"duckdb_threads":    "engine.database.threads",

		// AWS mappings
		"aws_access_key_id":     "aws.access_key_id",
		"aws_secret_access_key": "aws.secret_access_key",
		"aws_region":            "aws.region",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
