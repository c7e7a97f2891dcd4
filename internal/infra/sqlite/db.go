// Package sqlite implements the ledger store on SQLite via the pure-Go
// modernc.org/sqlite driver.
//
// The database lives in a single file inside the data directory. WAL mode
// keeps readers unblocked during writes; every write transaction starts with
// BEGIN IMMEDIATE so two processes can never interleave an allocation pass.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"github.com/fundbridge/fundbridge/internal/domain"
)

// FileName is the database file created inside the data directory.
const FileName = "fundbridge.db"

// Schema version tracking:
// 0 - empty database
// 1 - charity_project and donation tables
// 2 - open-entity indexes used by the allocation pass
const currentSchemaVersion = 2

// DB is the SQLite-backed ledger store.
type DB struct {
	db   *sql.DB
	path string
}

var _ domain.LedgerStore = (*DB)(nil)

// Open creates or opens the ledger database inside dir.
// Applies pragmas and migrations; safe to call on an existing database.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dir, FileName)

	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(ON)")
	q.Set("_txlock", "immediate")

	sqlDB, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite has one writer; a single connection avoids SQLITE_BUSY inside
	// the process and serialises transactions.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	db := &DB{db: sqlDB, path: path}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.db == nil {
		return nil
	}
	return db.db.Close()
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

// ─── Schema ─────────────────────────────────────────────────────────────────

// migrations holds one slice of statements per schema version, index 0
// bringing an empty database to version 1.
func migrations() [][]string {
	return [][]string{
		{
			`CREATE TABLE IF NOT EXISTS charity_project (
				id              INTEGER PRIMARY KEY AUTOINCREMENT,
				name            TEXT NOT NULL UNIQUE,
				description     TEXT NOT NULL,
				full_amount     INTEGER NOT NULL CHECK (full_amount > 0),
				invested_amount INTEGER NOT NULL DEFAULT 0,
				fully_invested  INTEGER NOT NULL DEFAULT 0,
				create_date     INTEGER NOT NULL,
				close_date      INTEGER,
				CHECK (invested_amount >= 0 AND invested_amount <= full_amount)
			)`,
			`CREATE TABLE IF NOT EXISTS donation (
				id              INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id         TEXT NOT NULL,
				comment         TEXT NOT NULL DEFAULT '',
				full_amount     INTEGER NOT NULL CHECK (full_amount > 0),
				invested_amount INTEGER NOT NULL DEFAULT 0,
				fully_invested  INTEGER NOT NULL DEFAULT 0,
				create_date     INTEGER NOT NULL,
				close_date      INTEGER,
				CHECK (invested_amount >= 0 AND invested_amount <= full_amount)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_donation_user ON donation(user_id, create_date, id)`,
		},
		{
			`CREATE INDEX IF NOT EXISTS idx_project_open ON charity_project(fully_invested, create_date, id)`,
			`CREATE INDEX IF NOT EXISTS idx_donation_open ON donation(fully_invested, create_date, id)`,
		},
	}
}

// migrate applies every migration above the stored PRAGMA user_version.
func (db *DB) migrate() error {
	var version int
	if err := db.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	for v, stmts := range migrations() {
		if v < version {
			continue
		}
		for _, stmt := range stmts {
			if _, err := db.db.Exec(stmt); err != nil {
				return fmt.Errorf("migrate to v%d: %w", v+1, err)
			}
		}
	}

	if _, err := db.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlitelib.SQLITE_CONSTRAINT_UNIQUE:
		return true
	case sqlitelib.SQLITE_CONSTRAINT:
		return strings.Contains(se.Error(), "UNIQUE")
	}
	return false
}

// ─── Transactions ───────────────────────────────────────────────────────────

// WithTx runs fn inside a single database transaction.
func (db *DB) WithTx(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	sqlTx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback() // no-op after commit

	if err := fn(&ledgerTx{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
