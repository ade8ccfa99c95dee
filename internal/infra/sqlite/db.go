// Package sqlite persists committed engine state: pots, expenditures,
// recipient slots, payouts, and the claims audit journal. The in-memory
// engine is the source of truth; this layer is write-behind storage restored
// at boot.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go driver
)

// DB wraps the sqlite handle.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies migrations.
// Use ":memory:" for an ephemeral database.
func Open(path string) (*DB, error) {
	handle, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Serial engine, serial writer.
	handle.SetMaxOpenConns(1)
	if _, err := handle.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		handle.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	d := &DB{db: handle}
	if err := d.migrate(); err != nil {
		handle.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the underlying handle.
func (d *DB) Close() error { return d.db.Close() }

// Migrations returns the schema statements. Each string is a single SQL
// statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS pots (
			id       INTEGER PRIMARY KEY,
			backs    INTEGER NOT NULL DEFAULT 0,
			backs_id INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS pot_balances (
			pot_id     INTEGER NOT NULL,
			token      TEXT NOT NULL,
			balance    INTEGER NOT NULL DEFAULT 0,
			commitment INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (pot_id, token)
		)`,

		`CREATE TABLE IF NOT EXISTS expenditures (
			id             INTEGER PRIMARY KEY,
			status         INTEGER NOT NULL DEFAULT 0,
			owner          TEXT NOT NULL,
			funding_pot_id INTEGER NOT NULL,
			domain_id      INTEGER NOT NULL,
			finalized_at   TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS recipients (
			expenditure_id INTEGER NOT NULL,
			account        TEXT NOT NULL,
			skill_id       INTEGER NOT NULL DEFAULT 0,
			payout_scalar  TEXT NOT NULL DEFAULT '1',
			claim_delay_ns INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (expenditure_id, account)
		)`,

		`CREATE TABLE IF NOT EXISTS payouts (
			expenditure_id INTEGER NOT NULL,
			account        TEXT NOT NULL,
			token          TEXT NOT NULL,
			amount         INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (expenditure_id, account, token)
		)`,

		// Claims audit journal (append-only)
		`CREATE TABLE IF NOT EXISTS claims (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			expenditure_id INTEGER NOT NULL,
			account        TEXT NOT NULL,
			token          TEXT NOT NULL,
			cash           INTEGER NOT NULL,
			fee            INTEGER NOT NULL,
			net            INTEGER NOT NULL,
			reputation     INTEGER NOT NULL,
			claimed_at     TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_expenditure ON claims(expenditure_id)`,
	}
}

func (d *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := d.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
