package db

import (
	"database/sql"
	"path/filepath"
	"sort"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func columns(t *testing.T, conn *sql.DB) map[string][]string {
	t.Helper()
	rows, err := conn.Query("SELECT name FROM sqlite_master WHERE type='table' AND name NOT IN ('schema_version', 'sqlite_sequence')")
	if err != nil {
		t.Fatalf("failed to list tables: %v", err)
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan: %v", err)
		}
		tables = append(tables, name)
	}
	rows.Close()

	out := make(map[string][]string, len(tables))
	for _, table := range tables {
		cols, err := conn.Query("SELECT name FROM pragma_table_info(?)", table)
		if err != nil {
			t.Fatalf("table_info(%s): %v", table, err)
		}
		for cols.Next() {
			var name string
			if err := cols.Scan(&name); err != nil {
				t.Fatalf("scan: %v", err)
			}
			out[table] = append(out[table], name)
		}
		cols.Close()
		sort.Strings(out[table])
	}
	return out
}

func TestMigrationsMatchSchema(t *testing.T) {
	fresh := openMemory(t)
	if _, err := fresh.Exec(GetSchemaSQL()); err != nil {
		t.Fatalf("schema failed: %v", err)
	}

	migrated := openMemory(t)
	if err := RunMigrations(migrated); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}

	want := columns(t, fresh)
	got := columns(t, migrated)
	if len(got) != len(want) {
		t.Fatalf("migrated %d tables, schema has %d", len(got), len(want))
	}
	for table, cols := range want {
		if len(got[table]) != len(cols) {
			t.Errorf("table %s: migrated columns %v, schema columns %v", table, got[table], cols)
			continue
		}
		for i := range cols {
			if got[table][i] != cols[i] {
				t.Errorf("table %s: migrated columns %v, schema columns %v", table, got[table], cols)
				break
			}
		}
	}
}

func TestInitSchema_Idempotent(t *testing.T) {
	conn := openMemory(t)
	if err := InitSchema(conn); err != nil {
		t.Fatalf("first InitSchema failed: %v", err)
	}
	if err := InitSchema(conn); err != nil {
		t.Fatalf("second InitSchema failed: %v", err)
	}

	var version int
	if err := conn.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		t.Fatalf("version query: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("schema version = %d, want %d", version, len(migrations))
	}
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "foreman.db")
	conn, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Exec("INSERT INTO plans (id, name) VALUES ('PLAN-001', 'x')"); err != nil {
		t.Errorf("schema not created: %v", err)
	}
}
