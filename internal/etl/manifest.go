// Soundlake - Music Streaming Star-Schema Lakehouse ETL
// Copyright 2026 Soundlake Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundlake/soundlake

package etl

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/soundlake/soundlake/internal/logging"
)

// Manifest summarizes one completed run: identity, timing and the row
// count written per table. It is written as _manifest.json under the
// output location for local runs.
type Manifest struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMS int64     `json:"duration_ms"`

	Tables map[string]int `json:"tables"`
}

// manifestFile is the name of the run summary written next to the table
// directories.
const manifestFile = "_manifest.json"

// writeManifest persists the run summary under the output location.
// Remote locations are skipped; the manifest is a local convenience, not
// part of the star schema. Failures are reported to the caller, which
// treats them as non-fatal.
func writeManifest(location string, m *Manifest) error {
	if strings.Contains(location, "://") {
		logging.Debug().Str("location", location).Msg("Skipping manifest for remote output location")
		return nil
	}
	if err := os.MkdirAll(location, 0o750); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(location, manifestFile), data, 0o600)
}
