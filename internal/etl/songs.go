// Soundlake - Music Streaming Star-Schema Lakehouse ETL
// Copyright 2026 Soundlake Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundlake/soundlake

package etl

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/soundlake/soundlake/internal/engine"
	"github.com/soundlake/soundlake/internal/logging"
)

// Options carries the two base input locations, the glob patterns under
// them, and the output base location. Locations are local paths or
// object-store URIs, opaque to the pipeline.
type Options struct {
	// InputLocation is the base location holding both raw datasets.
	InputLocation string

	// SongPattern locates track-metadata files, e.g.
	// "song_data/*/*/*/*.json" for the full corpus or
	// "song_data/A/A/*/*.json" for a bounded subset. Which to use is a
	// deployment choice, not a logic difference.
	SongPattern string

	// LogPattern locates session-event files, e.g.
	// "log_data/*/*/*events.json".
	LogPattern string

	// OutputLocation is the base under which the five table directories
	// are created, each independently overwritten on every run.
	OutputLocation string
}

// SongTables reports the row counts written by the song pipeline.
type SongTables struct {
	Songs   int
	Artists int
}

// ProcessSongData derives the songs and artists dimension tables from raw
// track metadata: pure projection, rename and dedup - no join, no filter.
func ProcessSongData(ctx context.Context, eng engine.Engine, opts Options) (SongTables, error) {
	log := logging.With().Str("pipeline", "song_data").Logger()

	df, err := eng.Read(ctx, opts.InputLocation, opts.SongPattern)
	if err != nil {
		return SongTables{}, fmt.Errorf("song pipeline: %w", err)
	}
	log.Info().Int("records", df.NumRows()).Msg("Track metadata loaded")

	// songs: one row per distinct track, partitioned by (year, artist_id)
	songs, err := df.Select("song_id", "title", "artist_id", "year", "duration")
	if err != nil {
		return SongTables{}, fmt.Errorf("song pipeline: %w", err)
	}
	songs, err = eng.Dedup(ctx, songs)
	if err != nil {
		return SongTables{}, fmt.Errorf("song pipeline: %w", err)
	}
	if err := eng.Write(ctx, songs, outPath(opts.OutputLocation, "songs"), []string{"year", "artist_id"}); err != nil {
		return SongTables{}, fmt.Errorf("song pipeline: %w", err)
	}
	log.Info().Int("rows", songs.NumRows()).Msg("Table written: songs")

	// artists: one row per distinct artist, unpartitioned
	artists, err := df.Select("artist_id", "artist_name", "artist_location",
		"artist_latitude", "artist_longitude")
	if err != nil {
		return SongTables{}, fmt.Errorf("song pipeline: %w", err)
	}
	for _, r := range [][2]string{
		{"artist_name", "name"},
		{"artist_location", "location"},
		{"artist_latitude", "latitude"},
		{"artist_longitude", "longitude"},
	} {
		artists, err = artists.Rename(r[0], r[1])
		if err != nil {
			return SongTables{}, fmt.Errorf("song pipeline: %w", err)
		}
	}
	artists, err = eng.Dedup(ctx, artists)
	if err != nil {
		return SongTables{}, fmt.Errorf("song pipeline: %w", err)
	}
	if err := eng.Write(ctx, artists, outPath(opts.OutputLocation, "artist"), nil); err != nil {
		return SongTables{}, fmt.Errorf("song pipeline: %w", err)
	}
	log.Info().Int("rows", artists.NumRows()).Msg("Table written: artist")

	return SongTables{Songs: songs.NumRows(), Artists: artists.NumRows()}, nil
}

// outPath joins the output base location and a table directory name,
// preserving URI schemes.
func outPath(location, name string) string {
	if strings.Contains(location, "://") {
		return strings.TrimRight(location, "/") + "/" + name
	}
	return filepath.Join(location, name)
}
