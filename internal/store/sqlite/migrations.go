package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

type migration struct {
	version int
	up      string
}

var migrations = []migration{
	{version: 1, up: migrationV1},
}

const migrationV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS catalog_entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    external_id INTEGER,
    name TEXT NOT NULL,
    normalized_name TEXT NOT NULL,
    category INTEGER NOT NULL DEFAULT -1,
    developer TEXT NOT NULL DEFAULT '',
    publisher TEXT NOT NULL DEFAULT '',
    summary TEXT NOT NULL DEFAULT '',
    cover_url TEXT NOT NULL DEFAULT '',
    rating REAL,
    rating_count INTEGER,
    follows INTEGER,
    hypes INTEGER,
    released_at TIMESTAMP,
    platforms TEXT NOT NULL DEFAULT '[]',
    franchise TEXT NOT NULL DEFAULT '',
    parent_external_id INTEGER,
    official INTEGER,
    last_synced_at TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_catalog_external_id
    ON catalog_entries(external_id) WHERE external_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_catalog_normalized_name
    ON catalog_entries(normalized_name);
CREATE INDEX IF NOT EXISTS idx_catalog_franchise
    ON catalog_entries(franchise) WHERE franchise != '';
CREATE INDEX IF NOT EXISTS idx_catalog_last_synced
    ON catalog_entries(last_synced_at);
`

func applyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var current sql.NullInt64
	if err := db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM schema_version`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if current.Valid && int64(m.version) <= current.Int64 {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, m.up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_version (version) VALUES (?)`, m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}
	return nil
}
