// Package migrations embeds the SQL schema applied at startup.
package migrations

import "embed"

//go:embed sql/*.sql
var FS embed.FS

// Path is the directory inside FS holding the migration files.
const Path = "sql"
