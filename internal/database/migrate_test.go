package database

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func rawConn(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "raw.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestMigrateNewDB(t *testing.T) {
	db := openTestDB(t)

	version, err := schemaVersion(db.conn)
	if err != nil {
		t.Fatalf("schemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), version)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "idem.db")

	db1, err := Open(dbPath)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if _, err := db1.InsertArticle(NewArticle{Title: "Kept", Content: "c", SourceURL: "https://a.com"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	db1.Close()

	db2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer db2.Close()

	if a, err := db2.GetArticle(1); err != nil || a.Title != "Kept" {
		t.Errorf("expected row to survive reopening, got %+v, %v", a, err)
	}
}

func TestPendingMigrations(t *testing.T) {
	list := []Migration{{Version: 1}, {Version: 2}, {Version: 3}}
	got := pendingMigrations(list, 1)
	if len(got) != 2 || got[0].Version != 2 || got[1].Version != 3 {
		t.Errorf("unexpected pending migrations %+v", got)
	}
	if len(pendingMigrations(list, 3)) != 0 {
		t.Error("expected nothing pending at the latest version")
	}
}

func TestMigrateStopsAtFailingStep(t *testing.T) {
	conn := rawConn(t)
	list := []Migration{
		{Version: 1, Description: "t1", Up: func(tx *sql.Tx) error {
			_, err := tx.Exec("CREATE TABLE t1 (id INTEGER)")
			return err
		}},
		{Version: 2, Description: "broken", Up: func(tx *sql.Tx) error {
			if _, err := tx.Exec("CREATE TABLE t2 (id INTEGER)"); err != nil {
				return err
			}
			return errors.New("boom")
		}},
	}

	if err := migrateTo(conn, list); err == nil {
		t.Fatal("expected error from failing migration")
	}
	if v, _ := schemaVersion(conn); v != 1 {
		t.Errorf("expected version 1 after failure, got %d", v)
	}
	var n int
	conn.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE name = 't2'").Scan(&n)
	if n != 0 {
		t.Error("failed migration was not rolled back")
	}
}
