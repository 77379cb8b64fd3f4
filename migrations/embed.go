// Package migrations embeds the SQL schema migrations so the server can
// migrate without a migrations directory on disk.
package migrations

import "embed"

// FS holds every *.sql migration in this directory
//
//go:embed *.sql
var FS embed.FS
