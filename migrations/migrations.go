// Package migrations embeds the SQL schema migrations so cmd/migrate can
// apply them without a working-directory dependency.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
