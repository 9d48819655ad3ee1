// Soundlake - Music Streaming Star-Schema Lakehouse ETL
// Copyright 2026 Soundlake Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundlake/soundlake

package etl

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/soundlake/soundlake/internal/engine"
	"github.com/soundlake/soundlake/internal/source"
)

const tracksFixture = `{"num_songs": 1, "artist_id": "AR1", "artist_latitude": 35.14968, "artist_longitude": -90.04892, "artist_location": "Memphis, TN", "artist_name": "Band X", "song_id": "S1", "title": "Song A", "duration": 180.5, "year": 2000}
{"num_songs": 1, "artist_id": "AR1", "artist_latitude": 35.14968, "artist_longitude": -90.04892, "artist_location": "Memphis, TN", "artist_name": "Band X", "song_id": "S1", "title": "Song A", "duration": 180.5, "year": 2000}
{"num_songs": 1, "artist_id": "AR2", "artist_latitude": null, "artist_longitude": null, "artist_location": "", "artist_name": "Band Z", "song_id": "S2", "title": "Song B", "duration": 99.5, "year": 0}
`

// Six session events: a play with a matching track (duplicated verbatim),
// a play with no matching track, a page view that must not leak into any
// table, and one user playing under two plan tiers.
const eventsFixture = `{"artist":"Band X","auth":"Logged In","firstName":"Amy","gender":"F","itemInSession":0,"lastName":"Lee","length":180.5,"level":"paid","location":"New York, NY","method":"PUT","page":"NextSong","registration":1540000000000,"sessionId":100,"song":"Song A","status":200,"ts":1541548800000,"userAgent":"UA1","userId":"7"}
{"artist":"Band Y","auth":"Logged In","firstName":"Amy","gender":"F","itemInSession":1,"lastName":"Lee","length":201.0,"level":"paid","location":"New York, NY","method":"PUT","page":"NextSong","registration":1540000000000,"sessionId":100,"song":"Other Song","status":200,"ts":1541549000000,"userAgent":"UA1","userId":"7"}
{"artist":null,"auth":"Logged In","firstName":"Max","gender":"M","itemInSession":0,"lastName":"Roe","length":null,"level":"free","location":"Boston, MA","method":"GET","page":"Home","registration":1540100000000,"sessionId":101,"song":null,"status":200,"ts":1541549500000,"userAgent":"UA2","userId":"9"}
{"artist":"Band X","auth":"Logged In","firstName":"Amy","gender":"F","itemInSession":0,"lastName":"Lee","length":180.5,"level":"paid","location":"New York, NY","method":"PUT","page":"NextSong","registration":1540000000000,"sessionId":100,"song":"Song A","status":200,"ts":1541548800000,"userAgent":"UA1","userId":"7"}
{"artist":"Band Y","auth":"Logged In","firstName":"Bo","gender":"M","itemInSession":0,"lastName":"Kim","length":150.0,"level":"free","location":"Chicago, IL","method":"PUT","page":"NextSong","registration":1540200000000,"sessionId":102,"song":"Other Song","status":200,"ts":1541550000000,"userAgent":"UA3","userId":"8"}
{"artist":"Band Y","auth":"Logged In","firstName":"Bo","gender":"M","itemInSession":1,"lastName":"Kim","length":150.0,"level":"paid","location":"Chicago, IL","method":"PUT","page":"NextSong","registration":1540200000000,"sessionId":102,"song":"Other Song","status":200,"ts":1541551000000,"userAgent":"UA3","userId":"8"}
`

func writeFixture(t *testing.T) (input, output string) {
	t.Helper()
	root := t.TempDir()
	input = filepath.Join(root, "input")
	output = filepath.Join(root, "output")

	trackDir := filepath.Join(input, "song_data", "A", "A", "A")
	if err := os.MkdirAll(trackDir, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(trackDir, "tracks.json"), []byte(tracksFixture), 0o600); err != nil {
		t.Fatal(err)
	}

	logDir := filepath.Join(input, "log_data", "2018", "11")
	if err := os.MkdirAll(logDir, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(logDir, "2018-11-07-events.json"), []byte(eventsFixture), 0o600); err != nil {
		t.Fatal(err)
	}
	return input, output
}

func fixtureOptions(input, output string) Options {
	return Options{
		InputLocation:  input,
		SongPattern:    "song_data/*/*/*/*.json",
		LogPattern:     "log_data/*/*/*.json",
		OutputLocation: output,
	}
}

// readNDJSON parses every record from one part file.
func readNDJSON(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var records []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("parse %s: %v", path, err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		t.Fatal(err)
	}
	return records
}

func TestRunFullPipeline(t *testing.T) {
	input, output := writeFixture(t)
	m, err := Run(context.Background(), engine.NewMemory(), fixtureOptions(input, output))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := map[string]int{
		"songs":     2,
		"artist":    2,
		"users":     3,
		"time":      4,
		"songplays": 1,
	}
	for name, n := range want {
		if m.Tables[name] != n {
			t.Errorf("table %s rows = %d, want %d", name, m.Tables[name], n)
		}
	}
	if m.RunID == "" {
		t.Error("manifest missing run id")
	}

	// Partition layout of songs and the fact table.
	for _, dir := range []string{
		filepath.Join(output, "songs", "year=2000", "artist_id=AR1"),
		filepath.Join(output, "songs", "year=0", "artist_id=AR2"),
		filepath.Join(output, "time", "year=2018", "month=11"),
		filepath.Join(output, "songplays", "year=2018", "month=11"),
	} {
		if _, err := os.Stat(filepath.Join(dir, "part-00000.json")); err != nil {
			t.Errorf("missing partition output %s: %v", dir, err)
		}
	}

	// The page-view user must not appear; the tier change keeps two rows.
	users := readNDJSON(t, filepath.Join(output, "users", "part-00000.json"))
	seen := make(map[string]bool)
	for _, u := range users {
		seen[u["user_id"].(string)+"/"+u["level"].(string)] = true
	}
	for _, key := range []string{"7/paid", "8/free", "8/paid"} {
		if !seen[key] {
			t.Errorf("users table missing %s", key)
		}
	}
	if len(seen) != 3 {
		t.Errorf("users table has %d distinct rows, want 3", len(seen))
	}

	// The single matched play, with surrogate id and no partition columns
	// in the data file.
	plays := readNDJSON(t, filepath.Join(output, "songplays", "year=2018", "month=11", "part-00000.json"))
	if len(plays) != 1 {
		t.Fatalf("songplays partition has %d records, want 1", len(plays))
	}
	p := plays[0]
	if p["song_id"] != "S1" || p["artist_id"] != "AR1" {
		t.Errorf("songplay keys = %v/%v, want S1/AR1", p["song_id"], p["artist_id"])
	}
	if p["userId"] != "7" || p["level"] != "paid" {
		t.Errorf("songplay user = %v/%v, want 7/paid", p["userId"], p["level"])
	}
	if p["timestamp"] != "2018-11-07T00:00:00Z" {
		t.Errorf("songplay timestamp = %v, want 2018-11-07T00:00:00Z", p["timestamp"])
	}
	if id, ok := p["songplay_id"].(float64); !ok || id != 0 {
		t.Errorf("songplay_id = %v, want 0", p["songplay_id"])
	}
	if _, leaked := p["year"]; leaked {
		t.Error("partition column year present in data file")
	}

	// Run summary on disk.
	if _, err := os.Stat(filepath.Join(output, "_manifest.json")); err != nil {
		t.Errorf("missing manifest: %v", err)
	}
}

func TestRunIdempotent(t *testing.T) {
	input, output := writeFixture(t)
	opts := fixtureOptions(input, output)

	first, err := Run(context.Background(), engine.NewMemory(), opts)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := Run(context.Background(), engine.NewMemory(), opts)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	for name, n := range first.Tables {
		if second.Tables[name] != n {
			t.Errorf("table %s rows changed between runs: %d then %d", name, n, second.Tables[name])
		}
	}

	// Output is replaced, not appended: still exactly one part file per
	// unpartitioned table.
	users := readNDJSON(t, filepath.Join(output, "users", "part-00000.json"))
	if len(users) != 3 {
		t.Errorf("users rows after rerun = %d, want 3", len(users))
	}
}

func TestRunMissingInput(t *testing.T) {
	root := t.TempDir()
	opts := fixtureOptions(filepath.Join(root, "nope"), filepath.Join(root, "out"))
	_, err := Run(context.Background(), engine.NewMemory(), opts)
	if !errors.Is(err, source.ErrSourceNotFound) {
		t.Fatalf("Run on missing input = %v, want ErrSourceNotFound", err)
	}
}

func TestProcessLogDataDropsPageViews(t *testing.T) {
	input, output := writeFixture(t)
	res, err := ProcessLogData(context.Background(), engine.NewMemory(), fixtureOptions(input, output))
	if err != nil {
		t.Fatalf("ProcessLogData: %v", err)
	}
	if res.Plays.NumRows() != 5 {
		t.Errorf("filtered plays = %d, want 5", res.Plays.NumRows())
	}
	pi, ok := res.Plays.Index("page")
	if !ok {
		t.Fatal("plays table missing page column")
	}
	for _, row := range res.Plays.Rows() {
		if row[pi] != "NextSong" {
			t.Errorf("non-play event leaked through filter: page=%v", row[pi])
		}
	}
}
