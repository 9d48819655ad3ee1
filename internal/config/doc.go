// Soundlake - Music Streaming Star-Schema Lakehouse ETL
// Copyright 2026 Soundlake Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundlake/soundlake

// Package config loads and validates pipeline configuration from
// layered sources: built-in defaults, an optional YAML config file, and
// environment variables, with later layers overriding earlier ones.
//
// The loaded Config is immutable and safe for concurrent reads.
package config
