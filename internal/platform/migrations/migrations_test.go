package migrations

import (
	"database/sql"
	"os"
	"sort"
	"strings"
	"testing"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := files.ReadDir("sql")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one embedded migration file")
	}

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected file in migrations source: %s", name)
		}
	}

	var versions []string
	for version := range ups {
		versions = append(versions, version)
		if !downs[version] {
			t.Errorf("migration %s has no matching .down.sql", version)
		}
	}
	for version := range downs {
		if !ups[version] {
			t.Errorf("migration %s has no matching .up.sql", version)
		}
	}

	sort.Strings(versions)
	if versions[0] != "0001_outbox" {
		t.Errorf("expected first migration to be 0001_outbox, got %s", versions[0])
	}
}

func TestApplyAgainstLiveDatabase(t *testing.T) {
	dsn := os.Getenv("DISPATCH_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("DISPATCH_TEST_DATABASE_URL not set, skipping live migration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := Apply(db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	version, dirty, err := Version(db)
	if err != nil {
		t.Fatalf("read version: %v", err)
	}
	if dirty {
		t.Fatal("schema left in dirty state after apply")
	}
	if version == 0 {
		t.Fatal("expected non-zero version after applying migrations")
	}

	if err := Down(db); err != nil {
		t.Fatalf("rollback migrations: %v", err)
	}
}
