package migrate_test

import (
	"testing"

	"fundtrail/internal/db"
	"fundtrail/internal/migrate"
)

func TestMigrateIsRepeatable(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("second run: %v", err)
	}

	var version int
	if err := conn.QueryRow(`SELECT version FROM schema_version`).Scan(&version); err != nil {
		t.Fatalf("read version: %v", err)
	}
	if version < 1 {
		t.Errorf("version = %d, want >= 1", version)
	}
	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM actors`).Scan(&n); err != nil {
		t.Fatalf("schema not applied: %v", err)
	}
}

func TestMigrateCollapsesStrayVersionRows(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := conn.Exec(`INSERT INTO schema_version(version) VALUES (0), (1)`); err != nil {
		t.Fatalf("seed stray rows: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("re-run: %v", err)
	}

	var count, version int
	if err := conn.QueryRow(`SELECT COUNT(*), MAX(version) FROM schema_version`).Scan(&count, &version); err != nil {
		t.Fatalf("read schema_version: %v", err)
	}
	if count != 1 {
		t.Errorf("schema_version has %d rows, want 1", count)
	}
	if version < 1 {
		t.Errorf("version = %d, want the highest applied", version)
	}
}
