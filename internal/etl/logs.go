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

// nextSongPage is the page value denoting a play event. Only these
// records feed users, time and songplays.
const nextSongPage = "NextSong"

// LogResult reports the row counts written by the log pipeline and
// carries the filtered, timestamp-augmented play records forward to the
// songplay join.
type LogResult struct {
	Users int
	Time  int

	// Plays is the NextSong-filtered log table with the derived
	// timestamp and datetime columns attached.
	Plays *table.Table
}

// ProcessLogData derives the users and time dimension tables from raw
// session events and returns the filtered play records for the join
// stage.
func ProcessLogData(ctx context.Context, eng engine.Engine, opts Options) (*LogResult, error) {
	log := logging.With().Str("pipeline", "log_data").Logger()

	df, err := eng.Read(ctx, opts.InputLocation, opts.LogPattern)
	if err != nil {
		return nil, fmt.Errorf("log pipeline: %w", err)
	}
	log.Info().Int("records", df.NumRows()).Msg("Session events loaded")

	// Retain play events only; every downstream table derives from this
	// filtered set.
	pi, ok := df.Index("page")
	if !ok {
		return nil, fmt.Errorf("log pipeline: %w: session events missing %q field",
			table.ErrSchemaMismatch, "page")
	}
	plays := df.Filter(func(row []any) bool { return row[pi] == nextSongPage })
	log.Info().Int("records", plays.NumRows()).Msg("Play events filtered")

	// users: one row per distinct user+attributes combination. Because
	// level is part of the row, a user who changes plan tier keeps one
	// row per tier - intentional slowly-changing behavior, not an error.
	users, err := plays.Select("userId", "firstName", "lastName", "gender", "level")
	if err != nil {
		return nil, fmt.Errorf("log pipeline: %w", err)
	}
	for _, r := range [][2]string{
		{"userId", "user_id"},
		{"firstName", "first_name"},
		{"lastName", "last_name"},
	} {
		users, err = users.Rename(r[0], r[1])
		if err != nil {
			return nil, fmt.Errorf("log pipeline: %w", err)
		}
	}
	users, err = eng.Dedup(ctx, users)
	if err != nil {
		return nil, fmt.Errorf("log pipeline: %w", err)
	}
	if err := eng.Write(ctx, users, outPath(opts.OutputLocation, "users"), nil); err != nil {
		return nil, fmt.Errorf("log pipeline: %w", err)
	}
	log.Info().Int("rows", users.NumRows()).Msg("Table written: users")

	// Derive the play timestamp from epoch milliseconds. The identical
	// datetime column is retained alongside it as the pipeline evolves;
	// the duplication carries into the time table below.
	ti, ok := plays.Index("ts")
	if !ok {
		return nil, fmt.Errorf("log pipeline: %w: session events missing %q field",
			table.ErrSchemaMismatch, "ts")
	}
	deriveTime := func(row []any) any {
		ms, ok := row[ti].(int64)
		if !ok {
			return nil
		}
		return fromEpochMillis(ms)
	}
	plays, err = plays.WithColumn(table.Column{Name: "timestamp", Type: table.TypeTime}, deriveTime)
	if err != nil {
		return nil, fmt.Errorf("log pipeline: %w", err)
	}
	plays, err = plays.WithColumn(table.Column{Name: "datetime", Type: table.TypeTime}, deriveTime)
	if err != nil {
		return nil, fmt.Errorf("log pipeline: %w", err)
	}

	timeTable, err := buildTimeTable(plays)
	if err != nil {
		return nil, fmt.Errorf("log pipeline: %w", err)
	}
	timeTable, err = eng.Dedup(ctx, timeTable)
	if err != nil {
		return nil, fmt.Errorf("log pipeline: %w", err)
	}
	if err := eng.Write(ctx, timeTable, outPath(opts.OutputLocation, "time"), []string{"year", "month"}); err != nil {
		return nil, fmt.Errorf("log pipeline: %w", err)
	}
	log.Info().Int("rows", timeTable.NumRows()).Msg("Table written: time")

	return &LogResult{Users: users.NumRows(), Time: timeTable.NumRows(), Plays: plays}, nil
}

// buildTimeTable derives the calendar-part columns from the datetime
// column: start_time (the timestamp itself), hour, day, week (ISO),
// month, year, weekday (1=Sunday).
func buildTimeTable(plays *table.Table) (*table.Table, error) {
	tt, err := plays.Select("datetime")
	if err != nil {
		return nil, err
	}

	// datetime is the only column, index 0 throughout.
	asTime := func(row []any) (time.Time, bool) {
		t, ok := row[0].(time.Time)
		return t, ok
	}
	timePart := func(part func(time.Time) int64) func([]any) any {
		return func(row []any) any {
			t, ok := asTime(row)
			if !ok {
				return nil
			}
			return part(t)
		}
	}

	tt, err = tt.WithColumn(table.Column{Name: "start_time", Type: table.TypeTime}, func(row []any) any {
		t, ok := asTime(row)
		if !ok {
			return nil
		}
		return t
	})
	if err != nil {
		return nil, err
	}

	for _, d := range []struct {
		name string
		part func(time.Time) int64
	}{
		{"hour", hourOf},
		{"day", dayOf},
		{"week", weekOf},
		{"month", monthOf},
		{"year", yearOf},
		{"weekday", weekdayOf},
	} {
		tt, err = tt.WithColumn(table.Column{Name: d.name, Type: table.TypeInt}, timePart(d.part))
		if err != nil {
			return nil, err
		}
	}
	return tt, nil
}
