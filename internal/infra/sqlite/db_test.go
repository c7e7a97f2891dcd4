package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fundbridge/fundbridge/internal/domain"
	"github.com/fundbridge/fundbridge/internal/testutil"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStoreContract(t *testing.T) {
	testutil.RunStoreContract(t, func(t *testing.T) domain.LedgerStore {
		return newTestDB(t)
	})
}

// ─── Migration Tests ────────────────────────────────────────────────────────

func TestMigrations_TablesExist(t *testing.T) {
	db := newTestDB(t)

	for _, table := range []string{"charity_project", "donation"} {
		t.Run(table, func(t *testing.T) {
			var name string
			err := db.db.QueryRow(
				`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table,
			).Scan(&name)
			if err != nil {
				t.Fatalf("table %s not found: %v", table, err)
			}
		})
	}
}

func TestMigrations_UserVersion(t *testing.T) {
	db := newTestDB(t)

	var version int
	if err := db.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open() error: %v", err)
	}
	err = db.WithTx(ctx, func(tx domain.LedgerTx) error {
		_, err := tx.CreateTarget(ctx, domain.FundingTarget{
			Name:        "Persisted",
			Description: "survives reopen",
			Investment:  domain.Investment{FullAmount: 10, CreatedAt: time.Now()},
		})
		return err
	})
	if err != nil {
		t.Fatalf("CreateTarget() error: %v", err)
	}
	db.Close()

	db, err = Open(dir)
	if err != nil {
		t.Fatalf("second Open() error: %v", err)
	}
	defer db.Close()

	if db.Path() != filepath.Join(dir, FileName) {
		t.Errorf("Path() = %q, want %q", db.Path(), filepath.Join(dir, FileName))
	}

	var count int
	if err := db.db.QueryRow(`SELECT COUNT(*) FROM charity_project`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("targets after reopen = %d, want 1", count)
	}
}

func TestPragmas_Applied(t *testing.T) {
	db := newTestDB(t)

	var mode string
	if err := db.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}

	var timeout int
	if err := db.db.QueryRow("PRAGMA busy_timeout").Scan(&timeout); err != nil {
		t.Fatal(err)
	}
	if timeout != 5000 {
		t.Errorf("busy_timeout = %d, want 5000", timeout)
	}
}

func TestCheckConstraint_RejectsOvershoot(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx domain.LedgerTx) error {
		created, err := tx.CreateTarget(ctx, domain.FundingTarget{
			Name:        "Bounded",
			Description: "d",
			Investment:  domain.Investment{FullAmount: 10, CreatedAt: time.Now()},
		})
		if err != nil {
			return err
		}
		created.InvestedAmount = 11
		return tx.SaveTargets(ctx, created)
	})
	if err == nil {
		t.Fatal("SaveTargets() with invested > full_amount should fail")
	}
}
