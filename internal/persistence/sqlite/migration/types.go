package migration

import "time"

// Migration is one versioned migration file.
type Migration struct {
	Version     string // Version identifier (e.g., "001", "002")
	Description string // Human-readable description
	SQL         string
	FilePath    string
	Checksum    string // SHA-256 of the SQL content
}

// AppliedMigration is a row of the schema_migrations table.
type AppliedMigration struct {
	Version       string
	AppliedAt     time.Time
	ExecutionTime time.Duration
	Checksum      string
}

// Status summarizes the migration state of a database.
type Status struct {
	CurrentVersion string
	Applied        []AppliedMigration
	Pending        []Migration
}
