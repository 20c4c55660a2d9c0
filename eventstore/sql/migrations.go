package sql

import (
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

const (
	migrationsDir   = "migrations"
	migrationsTable = "eventfold_migrations"
)

// MigrateUp applies the schema migrations.
func MigrateUp(db *sql.DB) error {
	goose.SetBaseFS(embeddedMigrations)
	goose.SetTableName(migrationsTable)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.Up(db, migrationsDir)
}

// MigrateDown rolls the schema back.
func MigrateDown(db *sql.DB) error {
	goose.SetBaseFS(embeddedMigrations)
	goose.SetTableName(migrationsTable)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.Down(db, migrationsDir)
}
