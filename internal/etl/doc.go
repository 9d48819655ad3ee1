// Soundlake - Music Streaming Star-Schema Lakehouse ETL
// Copyright 2026 Soundlake Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundlake/soundlake

// Package etl contains the transformation pipeline: the deterministic
// rules that map raw track-metadata and session-event records into the
// five star-schema tables.
//
// # Tables
//
//   - songs:     one row per distinct track, partitioned by (year, artist_id)
//   - artists:   one row per distinct artist, unpartitioned (written under
//     the "artist" output directory)
//   - users:     one row per distinct user+attributes combination,
//     unpartitioned
//   - time:      one row per distinct play timestamp, partitioned by
//     (year, month)
//   - songplays: the fact table, one row per (event, matched track) pair,
//     partitioned by (year, month)
//
// # Control flow
//
// ProcessSongData and ProcessLogData are independent and run concurrently;
// BuildSongplays is a hard dependency barrier on both, since it re-reads
// the raw track metadata and consumes the filtered, timestamp-augmented
// log records. Every table is recomputed from scratch on every run and
// written with full-overwrite semantics.
//
// # Dedup policy
//
// Every table drops exact-duplicate rows (full-row equality) before being
// written. Near-duplicate rows are retained: a user whose subscription
// level changes keeps one row per distinct attribute combination in users.
//
// # The artist-name join
//
// songplays is produced by an inner join on raw free-text artist-name
// equality, not a stable key. Two artists sharing a display name join
// incorrectly; an event whose artist string matches no track is silently
// dropped. This is preserved deliberately - it is the defining behavior
// of the fact-table derivation, not a bug to fix here.
package etl
