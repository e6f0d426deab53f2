package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migrator применяет goose-миграции из встроенной файловой системы
type Migrator struct {
	provider *goose.Provider
	log      *slog.Logger
}

// NewMigrator создаёт мигратор. dir - подкаталог fsys с *.sql файлами.
func NewMigrator(db *sql.DB, dialect goose.Dialect, fsys fs.FS, dir string, log *slog.Logger) (*Migrator, error) {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("migrations dir %q: %w", dir, err)
	}

	provider, err := goose.NewProvider(dialect, db, sub)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}

	return &Migrator{provider: provider, log: log}, nil
}

// Up применяет все миграции
func (m *Migrator) Up(ctx context.Context) error {
	results, err := m.provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	for _, r := range results {
		m.log.Info("migration applied", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

// Version возвращает текущую версию схемы
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	return m.provider.GetDBVersion(ctx)
}

// MigratePostgres применяет миграции поверх пула pgx
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, dir string, log *slog.Logger) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	m, err := NewMigrator(db, goose.DialectPostgres, fsys, dir, log)
	if err != nil {
		return err
	}
	return m.Up(ctx)
}

// MigrateSQLite применяет миграции к SQLite
func MigrateSQLite(ctx context.Context, db *sql.DB, fsys fs.FS, dir string, log *slog.Logger) error {
	m, err := NewMigrator(db, goose.DialectSQLite3, fsys, dir, log)
	if err != nil {
		return err
	}
	return m.Up(ctx)
}
