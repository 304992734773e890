package db

import "embed"

// MigrationFS holds the SQL migrations applied by `tracker migrate` and the
// init_db script.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
