package db

import (
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/nuvia/clearance/migrations"
)

func TestLoadMigrations(t *testing.T) {
	files := fstest.MapFS{
		"001_core.sql":     {Data: []byte("CREATE TABLE providers (id TEXT PRIMARY KEY);")},
		"002_patients.sql": {Data: []byte("CREATE TABLE patients (id UUID PRIMARY KEY);")},
		"003_comments.sql": {Data: []byte("CREATE TABLE comments (id UUID PRIMARY KEY);")},
	}

	migrator := NewMigrator(nil, files)
	got, err := migrator.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(got))
	}
	if got[0].Version != 1 || got[0].Name != "001_core.sql" {
		t.Errorf("unexpected first migration: %+v", got[0])
	}
	if got[0].SQL != "CREATE TABLE providers (id TEXT PRIMARY KEY);" {
		t.Errorf("unexpected SQL content: %s", got[0].SQL)
	}
	if got[2].Version != 3 {
		t.Errorf("expected version 3, got %d", got[2].Version)
	}
}

func TestLoadMigrations_SortOrder(t *testing.T) {
	files := fstest.MapFS{
		"010_tables.sql": {Data: []byte("SELECT 10;")},
		"002_second.sql": {Data: []byte("SELECT 2;")},
		"001_first.sql":  {Data: []byte("SELECT 1;")},
		"005_middle.sql": {Data: []byte("SELECT 5;")},
	}

	got, err := NewMigrator(nil, files).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	want := []int{1, 2, 5, 10}
	for i, v := range want {
		if got[i].Version != v {
			t.Errorf("position %d: expected version %d, got %d", i, v, got[i].Version)
		}
	}
}

func TestLoadMigrations_SkipsNonMigrations(t *testing.T) {
	files := fstest.MapFS{
		"001_first.sql":     {Data: []byte("SELECT 1;")},
		"README.md":         {Data: []byte("docs")},
		"seed.sql":          {Data: []byte("SELECT 0;")},
		"abc_notnum.sql":    {Data: []byte("SELECT 0;")},
		"embed.go":          {Data: []byte("package migrations")},
		"sub/002_inner.sql": {Data: []byte("SELECT 2;")},
	}

	got, err := NewMigrator(nil, files).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 migration, got %d", len(got))
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	files := fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"001_b.sql": {Data: []byte("SELECT 1;")},
	}
	_, err := NewMigrator(nil, files).LoadMigrations()
	if err == nil || !strings.Contains(err.Error(), "share version 1") {
		t.Fatalf("expected duplicate version error, got %v", err)
	}
}

func TestPendingAndStatus(t *testing.T) {
	migs := []Migration{{Version: 1, Name: "001_a.sql"}, {Version: 2, Name: "002_b.sql"}, {Version: 3, Name: "003_c.sql"}}
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	applied := map[int]time.Time{1: at}

	if p := pending(migs, applied, 0); len(p) != 2 || p[0].Version != 2 {
		t.Errorf("unexpected pending set: %+v", p)
	}
	if p := pending(migs, applied, 2); len(p) != 1 || p[0].Version != 2 {
		t.Errorf("unexpected bounded pending set: %+v", p)
	}

	st := statusOf(migs, applied)
	if !st[0].Applied || st[0].AppliedAt == nil || !st[0].AppliedAt.Equal(at) {
		t.Errorf("expected first migration applied at %v: %+v", at, st[0])
	}
	if st[1].Applied || st[1].AppliedAt != nil {
		t.Errorf("expected second migration pending: %+v", st[1])
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	got, err := NewMigrator(nil, migrations.FS).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(got) == 0 || got[0].Version != 1 {
		t.Fatalf("expected embedded migration 001, got %+v", got)
	}
	for _, table := range []string{"patients", "requested_documents", "clearances", "disqualifications", "audit_entries"} {
		if !strings.Contains(got[0].SQL, "CREATE TABLE IF NOT EXISTS "+table) && !strings.Contains(got[0].SQL, "CREATE TABLE "+table) {
			t.Errorf("expected %s table in %s", table, got[0].Name)
		}
	}
}
