package store

import (
	"context"
	"database/sql"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS instances (
		name TEXT PRIMARY KEY,
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		instance_name TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (instance_name, key),
		FOREIGN KEY (instance_name) REFERENCES instances(name) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instance_name TEXT NOT NULL,
		session_id TEXT NOT NULL,
		status TEXT NOT NULL,
		refund_id TEXT NOT NULL DEFAULT '',
		amount REAL NOT NULL DEFAULT 0,
		reason TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		last4 TEXT NOT NULL DEFAULT '',
		order_number INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (instance_name) REFERENCES instances(name) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_decisions_instance_created
		ON decisions(instance_name, created_at DESC)`,
}

func applySchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("config: apply schema: %w", err)
		}
	}
	return nil
}

func applyPragmas(ctx context.Context, db *sql.DB, readOnly bool) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", int(defaultBusyTimeout.Milliseconds())),
		"PRAGMA foreign_keys = ON",
	}

	if !readOnly {
		pragmas = append(pragmas,
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
			"PRAGMA temp_store = MEMORY",
		)
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("config: apply pragma %q: %w", pragma, err)
		}
	}

	return nil
}

// Settings every instance starts with. Existing values are never overwritten.
var defaultSettings = map[string]string{
	SettingAuthToken:      "",
	SettingRetentionHours: "24",
}

func seedDefaults(ctx context.Context, db *sql.DB, instanceName string) error {
	if _, err := db.ExecContext(ctx,
		`INSERT INTO instances (name) VALUES (?) ON CONFLICT(name) DO NOTHING`,
		instanceName); err != nil {
		return fmt.Errorf("config: seed instance: %w", err)
	}

	for key, value := range defaultSettings {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO settings (instance_name, key, value)
			VALUES (?, ?, ?)
			ON CONFLICT(instance_name, key) DO NOTHING
		`, instanceName, key, value); err != nil {
			return fmt.Errorf("config: seed setting %q: %w", key, err)
		}
	}
	return nil
}
