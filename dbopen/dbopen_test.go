package dbopen_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/platterworks/drivebatch/dbopen"
)

// WHAT: OpenMemory applies the production pragma set, so batch-store tests
// run against the same SQLite behavior the service sees.
func TestOpen_Pragmas(t *testing.T) {
	db := dbopen.OpenMemory(t)

	pragmas := []struct {
		name string
		want []string
	}{
		// :memory: databases may report "memory" instead of "wal".
		{"journal_mode", []string{"wal", "memory"}},
		{"foreign_keys", []string{"1"}},
		{"synchronous", []string{"1"}}, // NORMAL
		{"busy_timeout", []string{"10000"}},
	}
	for _, p := range pragmas {
		var got string
		if err := db.QueryRow("PRAGMA " + p.name).Scan(&got); err != nil {
			t.Fatalf("read pragma %s: %v", p.name, err)
		}
		ok := false
		for _, w := range p.want {
			if got == w {
				ok = true
			}
		}
		if !ok {
			t.Errorf("%s = %q, want one of %v", p.name, got, p.want)
		}
	}
}

func TestOptions(t *testing.T) {
	t.Run("busy timeout", func(t *testing.T) {
		db := dbopen.OpenMemory(t, dbopen.WithBusyTimeout(5000))
		var bt int
		if err := db.QueryRow("PRAGMA busy_timeout").Scan(&bt); err != nil {
			t.Fatal(err)
		}
		if bt != 5000 {
			t.Errorf("busy_timeout = %d, want 5000", bt)
		}
	})

	t.Run("without foreign keys", func(t *testing.T) {
		db := dbopen.OpenMemory(t, dbopen.WithoutForeignKeys())
		var fk int
		if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
			t.Fatal(err)
		}
		if fk != 0 {
			t.Errorf("foreign_keys = %d, want 0", fk)
		}
	})

	t.Run("synchronous full", func(t *testing.T) {
		db := dbopen.OpenMemory(t, dbopen.WithSynchronous("FULL"))
		var sync int
		if err := db.QueryRow("PRAGMA synchronous").Scan(&sync); err != nil {
			t.Fatal(err)
		}
		if sync != 2 {
			t.Errorf("synchronous = %d, want 2 (FULL)", sync)
		}
	})

	t.Run("cache size", func(t *testing.T) {
		db := dbopen.OpenMemory(t, dbopen.WithCacheSize(-64000))
		var cs int
		if err := db.QueryRow("PRAGMA cache_size").Scan(&cs); err != nil {
			t.Fatal(err)
		}
		if cs != -64000 {
			t.Errorf("cache_size = %d", cs)
		}
	})
}

func TestWithSchema(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(
		`CREATE TABLE intake (batch_id TEXT PRIMARY KEY, status TEXT)`))

	if _, err := db.Exec(`INSERT INTO intake VALUES ('bat_1', 'pending')`); err != nil {
		t.Fatalf("insert into schema-created table: %v", err)
	}
	var status string
	if err := db.QueryRow(`SELECT status FROM intake WHERE batch_id = 'bat_1'`).Scan(&status); err != nil {
		t.Fatal(err)
	}
	if status != "pending" {
		t.Errorf("status = %q", status)
	}
}

func TestWithSchemaFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.sql")
	if err := os.WriteFile(path, []byte(`CREATE TABLE intake (batch_id TEXT PRIMARY KEY)`), 0o644); err != nil {
		t.Fatal(err)
	}

	db := dbopen.OpenMemory(t, dbopen.WithSchemaFile(path))
	if _, err := db.Exec(`INSERT INTO intake VALUES ('bat_1')`); err != nil {
		t.Fatalf("insert into schema-file table: %v", err)
	}
}

// WHAT: WithMkdirAll creates missing parent directories for the db file,
// the default first-run path for drivebatchd.
func TestWithMkdirAll(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "var", "lib", "drivebatch.db")

	db, err := dbopen.Open(dbPath, dbopen.WithMkdirAll())
	if err != nil {
		t.Fatalf("open with mkdirall: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Dir(dbPath)); err != nil {
		t.Fatalf("directory not created: %v", err)
	}
}

func TestIsBusy(t *testing.T) {
	busy := []error{
		errors.New("SQLITE_BUSY"),
		errors.New("prefix: SQLITE_BUSY (5)"),
		errors.New("database is locked"),
		errors.New("database table is locked"),
	}
	for _, err := range busy {
		if !dbopen.IsBusy(err) {
			t.Errorf("IsBusy(%v) = false, want true", err)
		}
	}
	if dbopen.IsBusy(nil) || dbopen.IsBusy(errors.New("constraint failed")) {
		t.Error("non-busy errors classified as busy")
	}
}

func TestRunTx(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(
		`CREATE TABLE intake (batch_id TEXT PRIMARY KEY, status TEXT)`))
	ctx := context.Background()

	err := dbopen.RunTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO intake VALUES ('bat_1', 'pending')`)
		return err
	})
	if err != nil {
		t.Fatalf("RunTx: %v", err)
	}

	var status string
	if err := db.QueryRow(`SELECT status FROM intake WHERE batch_id = 'bat_1'`).Scan(&status); err != nil {
		t.Fatal(err)
	}
	if status != "pending" {
		t.Errorf("status = %q", status)
	}
}

// WHAT: a failing fn rolls the whole transaction back and surfaces the
// original error unwrapped.
func TestRunTx_Rollback(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(
		`CREATE TABLE intake (batch_id TEXT PRIMARY KEY)`))

	sentinel := errors.New("rollback me")
	err := dbopen.RunTx(context.Background(), db, func(tx *sql.Tx) error {
		tx.Exec(`INSERT INTO intake VALUES ('bat_1')`)
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("RunTx error = %v, want sentinel", err)
	}

	var count int
	db.QueryRow(`SELECT COUNT(*) FROM intake`).Scan(&count)
	if count != 0 {
		t.Errorf("count = %d, want 0 after rollback", count)
	}
}

func TestRunTx_ContextCancelled(t *testing.T) {
	db := dbopen.OpenMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := dbopen.RunTx(ctx, db, func(tx *sql.Tx) error { return nil })
	if err == nil {
		t.Fatal("expected error on cancelled context")
	}
}

func TestExec(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(
		`CREATE TABLE intake (batch_id TEXT PRIMARY KEY)`))

	res, err := dbopen.Exec(context.Background(), db,
		`INSERT INTO intake VALUES (?)`, "bat_1")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		t.Errorf("rows affected = %d", n)
	}
}
