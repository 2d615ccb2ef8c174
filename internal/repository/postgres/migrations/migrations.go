// Package migrations embeds the PostgreSQL schema migrations.
package migrations

import "embed"

// FS holds goose-formatted SQL migrations.
//
//go:embed *.sql
var FS embed.FS
