package store

import (
	"testing"
	"testing/fstest"
)

func TestLoadMigrations_ordersByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0010_late.sql": {Data: []byte("late")},
		"m/0002_docs.sql": {Data: []byte("docs")},
		"m/0001_init.sql": {Data: []byte("init")},
		"m/README.md":     {Data: []byte("ignored")},
	}
	migs, err := LoadMigrations(fsys, "m")
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migs) != 3 || migs[0].Version != 1 || migs[1].Version != 2 || migs[2].Version != 10 {
		t.Fatalf("order: %+v", migs)
	}
	if migs[0].SQL != "init" || migs[2].Name != "0010_late.sql" {
		t.Fatalf("contents: %+v", migs)
	}

	pending := Pending(migs, map[int]bool{1: true, 2: true})
	if len(pending) != 1 || pending[0].Version != 10 {
		t.Fatalf("Pending: %+v", pending)
	}
}

func TestLoadMigrations_rejectsBadNames(t *testing.T) {
	if _, err := LoadMigrations(fstest.MapFS{"m/init.sql": {Data: []byte("x")}}, "m"); err == nil {
		t.Fatal("expected error for missing version prefix")
	}
	dup := fstest.MapFS{
		"m/0001_a.sql": {Data: []byte("a")},
		"m/0001_b.sql": {Data: []byte("b")},
	}
	if _, err := LoadMigrations(dup, "m"); err == nil {
		t.Fatal("expected error for duplicate version")
	}
}

func TestSQLiteMigrationsEmbedded(t *testing.T) {
	migs, err := LoadMigrations(sqliteMigrations, "migrations")
	if err != nil || len(migs) == 0 || migs[0].Version != 1 {
		t.Fatalf("embedded migrations: %+v %v", migs, err)
	}
}
