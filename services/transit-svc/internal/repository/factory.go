package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"multimodal/migrations"
	"multimodal/pkg/config"
	"multimodal/pkg/database"
)

// Open создаёт хранилище по database.driver и при auto_migrate
// применяет миграции
func Open(ctx context.Context, cfg *config.DatabaseConfig, log *slog.Logger) (Repository, error) {
	switch strings.ToLower(cfg.Driver) {
	case "postgres", "postgresql":
		db, err := database.NewPostgresDB(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := database.MigratePostgres(ctx, db.Pool(), migrations.PostgresMigrations, "postgres", log); err != nil {
				db.Close()
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		return NewPostgresRepository(db), nil

	case "sqlite":
		db, err := database.OpenSQLite(ctx, cfg.DSN())
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := database.MigrateSQLite(ctx, db.DB, migrations.SQLiteMigrations, "sqlite", log); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("migrate sqlite: %w", err)
			}
		}
		log.Info("using sqlite analysis store", "path", cfg.Database)
		return NewSQLiteRepository(db), nil

	default:
		return NewMemoryRepository(), nil
	}
}
