// Package migrations embeds the schema migrations applied by golang-migrate.
package migrations

import "embed"

// FS holds every *.sql migration.
//
//go:embed *.sql
var FS embed.FS
