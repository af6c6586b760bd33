package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	_ "embed"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the layout of the resources table. A database written by
// any other version is refused rather than guessed at.
const schemaVersion = 1

// migrate creates the tables of a fresh database, stamps its version and
// checks the stamp of an existing one.
func migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO metadata(key, value) VALUES('schema_version', ?)",
		strconv.Itoa(schemaVersion)); err != nil {
		return fmt.Errorf("stamp schema version: %w", err)
	}

	var stamp string
	if err := tx.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&stamp); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	version, err := strconv.Atoi(stamp)
	if err != nil {
		return fmt.Errorf("parse schema version %q: %w", stamp, err)
	}
	if version != schemaVersion {
		return fmt.Errorf("database schema version %d is not supported (want %d)", version, schemaVersion)
	}

	return tx.Commit()
}
