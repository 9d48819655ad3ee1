// Soundlake - Music Streaming Star-Schema Lakehouse ETL
// Copyright 2026 Soundlake Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundlake/soundlake

package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/soundlake/soundlake/internal/engine"
	"github.com/soundlake/soundlake/internal/logging"
	"github.com/soundlake/soundlake/internal/table"
)

// BuildSongplays derives the songplays fact table by joining the
// filtered play records against a freshly-read track-metadata set. The
// metadata is re-read from the same pattern as the song pipeline rather
// than reusing the projected songs/artists tables: the join operates on
// raw metadata.
//
// The join predicate is raw free-text equality between the track's
// artist_name and the event's artist string. Two artists sharing a
// display name will both match; an event whose artist string matches no
// track is silently dropped.
func BuildSongplays(ctx context.Context, eng engine.Engine, opts Options, plays *table.Table, gen Generator) (int, error) {
	log := logging.With().Str("pipeline", "songplays").Logger()

	songDF, err := eng.Read(ctx, opts.InputLocation, opts.SongPattern)
	if err != nil {
		return 0, fmt.Errorf("songplay join: %w", err)
	}

	joined, err := eng.Join(ctx, plays, songDF, "artist", "artist_name")
	if err != nil {
		return 0, fmt.Errorf("songplay join: %w", err)
	}
	log.Info().Int("records", joined.NumRows()).Msg("Play events matched to tracks")

	fact, err := joined.Select("timestamp", "userId", "level", "sessionId",
		"location", "userAgent", "song_id", "artist_id")
	if err != nil {
		return 0, fmt.Errorf("songplay join: %w", err)
	}

	// Dedup before identity: duplicate facts collapse while rows are
	// still comparable by content.
	fact, err = eng.Dedup(ctx, fact)
	if err != nil {
		return 0, fmt.Errorf("songplay join: %w", err)
	}

	fact, err = fact.WithColumn(table.Column{Name: "songplay_id", Type: table.TypeInt},
		func([]any) any { return gen.Next() })
	if err != nil {
		return 0, fmt.Errorf("songplay join: %w", err)
	}

	ti, ok := fact.Index("timestamp")
	if !ok {
		return 0, fmt.Errorf("songplay join: %w: missing timestamp column", table.ErrSchemaMismatch)
	}
	timePart := func(part func(time.Time) int64) func([]any) any {
		return func(row []any) any {
			t, ok := row[ti].(time.Time)
			if !ok {
				return nil
			}
			return part(t)
		}
	}
	fact, err = fact.WithColumn(table.Column{Name: "month", Type: table.TypeInt}, timePart(monthOf))
	if err != nil {
		return 0, fmt.Errorf("songplay join: %w", err)
	}
	fact, err = fact.WithColumn(table.Column{Name: "year", Type: table.TypeInt}, timePart(yearOf))
	if err != nil {
		return 0, fmt.Errorf("songplay join: %w", err)
	}

	// Final dedup before writing. Distinct songplay_id values break row
	// equality, so duplicate facts that somehow survive to this point
	// each keep their own id - a known consequence of assigning identity
	// first, carried deliberately.
	fact, err = eng.Dedup(ctx, fact)
	if err != nil {
		return 0, fmt.Errorf("songplay join: %w", err)
	}

	if err := eng.Write(ctx, fact, outPath(opts.OutputLocation, "songplays"), []string{"year", "month"}); err != nil {
		return 0, fmt.Errorf("songplay join: %w", err)
	}
	log.Info().Int("rows", fact.NumRows()).Msg("Table written: songplays")

	return fact.NumRows(), nil
}
