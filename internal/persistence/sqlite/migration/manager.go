package migration

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"time"
)

// Executor applies migrations and reports which ones were applied.
type Executor interface {
	InitializeVersionTable(ctx context.Context) error
	ExecuteMigration(ctx context.Context, m Migration) error
	AppliedMigrations(ctx context.Context) ([]AppliedMigration, error)
}

// Manager orchestrates scanning, ordering and applying migrations.
type Manager struct {
	fsys     fs.FS
	dir      string
	executor Executor
	logger   *slog.Logger
}

// NewManager builds a manager that applies the migrations found in dir of fsys
// to db.
func NewManager(db *sql.DB, fsys fs.FS, dir string, logger *slog.Logger) *Manager {
	return NewManagerWithExecutor(NewSQLiteExecutor(db), fsys, dir, logger)
}

// NewManagerWithExecutor builds a manager around a custom executor.
func NewManagerWithExecutor(executor Executor, fsys fs.FS, dir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		fsys:     fsys,
		dir:      dir,
		executor: executor,
		logger:   logger.With("component", "migration"),
	}
}

// Run applies every pending migration in version order. It stops at the first
// failure; earlier migrations stay applied.
func (m *Manager) Run(ctx context.Context) error {
	started := time.Now()
	status, err := m.Status(ctx)
	if err != nil {
		return err
	}
	if len(status.Pending) == 0 {
		m.logger.InfoContext(ctx, "database schema up to date", "version", status.CurrentVersion)
		return nil
	}

	m.logger.InfoContext(ctx, "applying migrations", "from_version", status.CurrentVersion, "pending", len(status.Pending))
	for i, migration := range status.Pending {
		migrationStarted := time.Now()
		if err := m.executor.ExecuteMigration(ctx, migration); err != nil {
			m.logger.ErrorContext(ctx, "migration failed", "version", migration.Version, "file", migration.FilePath, "error", err)
			return newMigrationError(migration.Version, migration.FilePath, "execute migration", fmt.Errorf("%w: %v", ErrMigrationFailed, err))
		}
		m.logger.InfoContext(ctx, "migration applied",
			"version", migration.Version,
			"description", migration.Description,
			"position", fmt.Sprintf("%d/%d", i+1, len(status.Pending)),
			"duration", time.Since(migrationStarted),
		)
	}
	m.logger.InfoContext(ctx, "migrations completed", "count", len(status.Pending), "duration", time.Since(started))
	return nil
}

// Status compares the migration files against the applied versions.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return Status{}, fmt.Errorf("failed to initialize version table: %w", err)
	}
	available, err := Scan(m.fsys, m.dir)
	if err != nil {
		return Status{}, fmt.Errorf("failed to scan migrations: %w", err)
	}
	applied, err := m.executor.AppliedMigrations(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("failed to get applied versions: %w", err)
	}

	byVersion := make(map[string]Migration, len(available))
	for _, migration := range available {
		byVersion[migration.Version] = migration
	}

	status := Status{Applied: applied}
	appliedSet := make(map[string]struct{}, len(applied))
	for _, row := range applied {
		appliedSet[row.Version] = struct{}{}
		migration, ok := byVersion[row.Version]
		if !ok {
			return Status{}, fmt.Errorf("%w: applied migration %s not found in available migrations", ErrVersionConflict, row.Version)
		}
		if row.Checksum != "" && row.Checksum != migration.Checksum {
			return Status{}, newMigrationError(row.Version, migration.FilePath, "verify checksum", ErrChecksumMismatch)
		}
		if versionNumber(row.Version) >= versionNumber(status.CurrentVersion) {
			status.CurrentVersion = row.Version
		}
	}
	for _, migration := range available {
		if _, done := appliedSet[migration.Version]; !done {
			status.Pending = append(status.Pending, migration)
		}
	}
	return status, nil
}
