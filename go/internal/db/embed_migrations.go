package db

import "embed"

// MigrationFS holds the SQL migrations applied by the migrate package.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
