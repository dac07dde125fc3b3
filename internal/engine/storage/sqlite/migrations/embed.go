// Package migrations embeds the engine schema migrations.
package migrations

import "embed"

// FS holds the ordered engine schema migrations.
//
//go:embed *.sql
var FS embed.FS
