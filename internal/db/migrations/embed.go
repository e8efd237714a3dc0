package migrations

import "embed"

// FS contains the embedded SQLite migrations for tracking graph storage.
//
//go:embed *.sql
var FS embed.FS
