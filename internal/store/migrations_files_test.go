package store

import (
	"io/fs"
	"reflect"
	"regexp"
	"testing"
	"testing/fstest"
)

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	entries, err := fs.ReadDir(Migrations, "migrations")
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
	byVersion := map[string]map[string]bool{}
	for _, entry := range entries {
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			t.Fatalf("unexpected file in migrations: %s", entry.Name())
		}
		version, direction := match[1], match[2]
		if byVersion[version] == nil {
			byVersion[version] = map[string]bool{}
		}
		if byVersion[version][direction] {
			t.Fatalf("duplicate %s migration file for version %s", direction, version)
		}
		byVersion[version][direction] = true
	}

	if len(byVersion) == 0 {
		t.Fatal("no migrations discovered")
	}
	for version, dirs := range byVersion {
		if !dirs["up"] || !dirs["down"] {
			t.Fatalf("version %s must include both up and down files", version)
		}
	}
}

func TestMigrationFilesSorted(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/0002_b.up.sql":   {Data: []byte("SELECT 2")},
		"migrations/0001_a.up.sql":   {Data: []byte("SELECT 1")},
		"migrations/0001_a.down.sql": {Data: []byte("SELECT 0")},
		"migrations/README.md":       {Data: []byte("notes")},
	}
	got, err := migrationFiles(fsys, ".up.sql")
	if err != nil {
		t.Fatalf("migrationFiles: %v", err)
	}
	want := []string{"migrations/0001_a.up.sql", "migrations/0002_b.up.sql"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	if _, err := migrationFiles(fstest.MapFS{}, ".up.sql"); err == nil {
		t.Fatal("expected an error for a missing migrations dir")
	}
}
