// Soundlake - Music Streaming Star-Schema Lakehouse ETL
// Copyright 2026 Soundlake Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundlake/soundlake

package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// readLocal resolves pattern under a local directory and parses every
// matching file. A missing base directory reads the same as an empty one:
// no files match.
func (s *Source) readLocal(ctx context.Context, pattern string) ([]record, error) {
	fsys := os.DirFS(s.location)

	var files []string
	err := doublestar.GlobWalk(fsys, pattern, func(path string, d fs.DirEntry) error {
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("glob %q under %s: %w", pattern, s.location, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %q under %s", ErrSourceNotFound, pattern, s.location)
	}

	var recs []record
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fileRecs, err := s.parseLocalFile(name)
		if err != nil {
			return nil, err
		}
		recs = append(recs, fileRecs...)
	}
	return recs, nil
}

func (s *Source) parseLocalFile(name string) ([]record, error) {
	f, err := os.Open(filepath.Join(s.location, filepath.FromSlash(name)))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer func() {
		_ = f.Close() // read-only handle, close error not actionable
	}()
	return parseLines(f, name)
}
