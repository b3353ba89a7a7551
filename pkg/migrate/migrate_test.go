package migrate

import (
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"migrations/001_create_floods.up.sql":   {Data: []byte("CREATE TABLE floods (year INTEGER PRIMARY KEY, discharge REAL NOT NULL);")},
		"migrations/001_create_floods.down.sql": {Data: []byte("DROP TABLE floods;")},
		"migrations/002_add_source.up.sql":      {Data: []byte("ALTER TABLE floods ADD COLUMN source TEXT;")},
		"migrations/002_add_source.down.sql":    {Data: []byte("ALTER TABLE floods DROP COLUMN source;")},
		"migrations/README":                     {Data: []byte("not a migration")},
	}
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestFSProviderGetMigrations(t *testing.T) {
	migrations, err := NewFSProvider(testFS(), "migrations", "").GetMigrations()
	if err != nil {
		t.Fatal(err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[0].Name != "create floods" || migrations[0].Down == "" {
		t.Errorf("first migration = %+v", migrations[0])
	}
}

func TestMigrator(t *testing.T) {
	db := openDB(t)
	m := NewMigrator(db, NewFSProvider(testFS(), "migrations", "test_migrations"), nil)

	pending, err := m.PendingMigrations()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Errorf("expected 2 pending migrations, got %d", len(pending))
	}

	if err := m.MigrateUp(); err != nil {
		t.Fatal(err)
	}
	if v, _ := m.CurrentVersion(); v != 2 {
		t.Errorf("version %d after MigrateUp, expected 2", v)
	}
	if _, err := db.Exec("INSERT INTO floods (year, discharge, source) VALUES (1975, 1200, 'survey')"); err != nil {
		t.Errorf("schema not applied: %v", err)
	}

	// A second run is a no-op.
	if err := m.MigrateUp(); err != nil {
		t.Fatal(err)
	}

	if err := m.MigrateDown(1); err != nil {
		t.Fatal(err)
	}
	if v, _ := m.CurrentVersion(); v != 1 {
		t.Errorf("version %d after MigrateDown(1), expected 1", v)
	}
	if err := m.MigrateDown(1); err == nil {
		t.Error("expected an error migrating down to the current version")
	}

	if err := m.MigrateTo(0); err != nil {
		t.Fatal(err)
	}
	if v, _ := m.CurrentVersion(); v != 0 {
		t.Errorf("version %d after MigrateTo(0), expected 0", v)
	}
}
