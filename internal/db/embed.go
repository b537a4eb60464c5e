package db

import "embed"

// migrationsFS holds the embedded schema migrations so the binary is
// self-contained.
//
//go:embed migrations/*.sql
var migrationsFS embed.FS
