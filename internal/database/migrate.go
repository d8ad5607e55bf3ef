package database

import (
	"database/sql"
	"fmt"
	"log"
)

// Migration is one forward-only schema step. Up runs inside a transaction.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

func schemaVersion(conn *sql.DB) (int, error) {
	var v int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

// pendingMigrations returns the steps of list newer than current, in order.
func pendingMigrations(list []Migration, current int) []Migration {
	var out []Migration
	for _, m := range list {
		if m.Version > current {
			out = append(out, m)
		}
	}
	return out
}

// migrate brings conn up to the last entry of migrations.
func migrate(conn *sql.DB) error {
	return migrateTo(conn, migrations)
}

func migrateTo(conn *sql.DB, list []Migration) error {
	current, err := schemaVersion(conn)
	if err != nil {
		return err
	}
	for _, m := range pendingMigrations(list, current) {
		log.Printf("applying migration %d: %s", m.Version, m.Description)
		if err := applyMigration(conn, m); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(conn *sql.DB, m Migration) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("migration %d: %w", m.Version, err)
	}
	if err := m.Up(tx); err != nil {
		tx.Rollback()
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration %d: commit: %w", m.Version, err)
	}
	// modernc/sqlite drops a user_version written inside the transaction.
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return fmt.Errorf("migration %d: recording version: %w", m.Version, err)
	}
	return nil
}
