package migration

import "embed"

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var embeddedMigrations embed.FS

const (
	postgresMigrationsDir = "migrations/postgres"
	sqliteMigrationsDir   = "migrations/sqlite"
)
