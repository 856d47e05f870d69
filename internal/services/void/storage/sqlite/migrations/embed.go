package migrations

import "embed"

// FS contains embedded SQLite migrations for room record storage.
//
//go:embed *.sql
var FS embed.FS
