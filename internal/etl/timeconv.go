// Soundlake - Music Streaming Star-Schema Lakehouse ETL
// Copyright 2026 Soundlake Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundlake/soundlake

package etl

import "time"

// fromEpochMillis converts epoch milliseconds to a UTC timestamp,
// preserving sub-second precision.
//
// The conversion is pinned to UTC rather than the process's local
// timezone, so runs are portable across execution environments. All
// derived calendar parts below follow from this choice.
func fromEpochMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// hourOf returns the hour of day (0-23).
func hourOf(t time.Time) int64 {
	return int64(t.Hour())
}

// dayOf returns the day of month (1-31).
func dayOf(t time.Time) int64 {
	return int64(t.Day())
}

// weekOf returns the ISO 8601 week of year (1-53).
func weekOf(t time.Time) int64 {
	_, week := t.ISOWeek()
	return int64(week)
}

// monthOf returns the month (1-12).
func monthOf(t time.Time) int64 {
	return int64(t.Month())
}

// yearOf returns the calendar year.
func yearOf(t time.Time) int64 {
	return int64(t.Year())
}

// weekdayOf returns the day of week, 1-indexed from Sunday
// (1=Sunday .. 7=Saturday).
func weekdayOf(t time.Time) int64 {
	return int64(t.Weekday()) + 1
}
