// Package migrations содержит SQL-миграции хранилища истории анализов
package migrations

import "embed"

// PostgresMigrations миграции для PostgreSQL (каталог "postgres")
//
//go:embed postgres/*.sql
var PostgresMigrations embed.FS

// SQLiteMigrations миграции для SQLite (каталог "sqlite")
//
//go:embed sqlite/*.sql
var SQLiteMigrations embed.FS
