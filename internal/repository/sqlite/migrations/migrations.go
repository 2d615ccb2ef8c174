// Package migrations embeds the SQLite schema migrations.
package migrations

import "embed"

// FS holds goose-formatted SQL migrations.
//
//go:embed *.sql
var FS embed.FS
