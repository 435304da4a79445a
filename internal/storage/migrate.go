package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

func MigrateUp(db *sql.DB) error {
	return ApplyMigrations(db, migrationFiles, ".up.sql")
}

func MigrateDown(db *sql.DB) error {
	return ApplyMigrations(db, migrationFiles, ".down.sql")
}

// ApplyMigrations runs every migrations/*<suffix> file of fsys in name order.
// Down migrations run in reverse order.
func ApplyMigrations(db *sql.DB, fsys fs.FS, suffix string) error {
	entries, err := fs.Glob(fsys, "migrations/*"+suffix)
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(entries)
	if suffix == ".down.sql" {
		sort.Sort(sort.Reverse(sort.StringSlice(entries)))
	}
	for _, name := range entries {
		sqlBytes, readErr := fs.ReadFile(fsys, name)
		if readErr != nil {
			return fmt.Errorf("read migration %s: %w", name, readErr)
		}
		if _, execErr := db.Exec(string(sqlBytes)); execErr != nil {
			return fmt.Errorf("apply migration %s: %w", name, execErr)
		}
	}
	return nil
}
