// Soundlake - Music Streaming Star-Schema Lakehouse ETL
// Copyright 2026 Soundlake Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundlake/soundlake

package table

import "errors"

// ErrSchemaMismatch indicates a record or table carries a field of an
// unexpected type, or an operation references a column that does not
// exist. Fatal: downstream column projections assume fixed types.
var ErrSchemaMismatch = errors.New("schema mismatch")
