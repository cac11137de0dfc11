// Package migrations embeds the catalog schema migrations.
package migrations

import "embed"

// FS holds the *.sql migration files in golang-migrate naming.
//
//go:embed *.sql
var FS embed.FS
