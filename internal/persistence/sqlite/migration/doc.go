// Package migration applies versioned SQL migrations to a SQLite database.
//
// Migration files live in an fs.FS (usually an embed.FS) and follow the naming
// convention {version}_{description}.sql, for example "001_initial_schema.sql".
// Applied versions are tracked in the schema_migrations table; every migration
// runs inside its own transaction.
//
// Statements are split on semicolons, except inside quoted strings and
// CREATE TRIGGER ... BEGIN ... END blocks, so trigger bodies survive intact.
//
// Example usage:
//
//	manager := migration.NewManager(db, migrations, "migrations", logger)
//	if err := manager.Run(ctx); err != nil {
//		return fmt.Errorf("migrate: %w", err)
//	}
package migration
