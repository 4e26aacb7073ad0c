package state

import (
	"context"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate runs all pending database migrations.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	if err := configureGoose(); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// MigrationVersion returns the current migration version.
func (s *SQLiteStore) MigrationVersion(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not opened")
	}

	if err := configureGoose(); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, s.db)
}

func configureGoose() error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	return nil
}
