// Soundlake - Music Streaming Star-Schema Lakehouse ETL
// Copyright 2026 Soundlake Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundlake/soundlake

package etl

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/soundlake/soundlake/internal/engine"
	"github.com/soundlake/soundlake/internal/logging"
)

// Run executes the full pipeline: the song and log stages run
// concurrently, then the songplay join runs once both have finished.
// The two stages touch disjoint output tables, so the only ordering
// constraint is the barrier before the join, which consumes the log
// stage's filtered play records.
func Run(ctx context.Context, eng engine.Engine, opts Options) (*Manifest, error) {
	start := time.Now().UTC()
	runID := uuid.NewString()
	log := logging.With().Str("run_id", runID).Logger()
	log.Info().
		Str("input", opts.InputLocation).
		Str("output", opts.OutputLocation).
		Msg("Pipeline run starting")

	var (
		songs   SongTables
		logRes  *LogResult
		g, gctx = errgroup.WithContext(ctx)
	)
	g.Go(func() error {
		var err error
		songs, err = ProcessSongData(gctx, eng, opts)
		return err
	})
	g.Go(func() error {
		var err error
		logRes, err = ProcessLogData(gctx, eng, opts)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	plays, err := BuildSongplays(ctx, eng, opts, logRes.Plays, NewShardedCounter(0))
	if err != nil {
		return nil, err
	}

	finished := time.Now().UTC()
	m := &Manifest{
		RunID:      runID,
		StartedAt:  start,
		FinishedAt: finished,
		DurationMS: finished.Sub(start).Milliseconds(),
		Tables: map[string]int{
			"songs":     songs.Songs,
			"artist":    songs.Artists,
			"users":     logRes.Users,
			"time":      logRes.Time,
			"songplays": plays,
		},
	}
	if err := writeManifest(opts.OutputLocation, m); err != nil {
		log.Warn().Err(err).Msg("Failed to write run manifest")
	}

	log.Info().
		Int("songs", m.Tables["songs"]).
		Int("artists", m.Tables["artist"]).
		Int("users", m.Tables["users"]).
		Int("time", m.Tables["time"]).
		Int("songplays", m.Tables["songplays"]).
		Dur("elapsed", finished.Sub(start)).
		Msg("Pipeline run complete")
	return m, nil
}
