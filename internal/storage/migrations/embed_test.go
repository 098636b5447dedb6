package migrations

import (
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		want    int
		wantErr bool
	}{
		{"001_content.sql", 1, false},
		{"002_progression.sql", 2, false},
		{"010_later.sql", 10, false},
		{"content.sql", 0, true},
		{"abc_content.sql", 0, true},
		{"000_zero.sql", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseVersion(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseVersion(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseVersion(%q) = %d; want %d", tt.name, got, tt.want)
		}
	}
}

func TestPending(t *testing.T) {
	fsys := fstest.MapFS{
		"010_c.sql": {Data: []byte("SELECT 3")},
		"001_a.sql": {Data: []byte("SELECT 1")},
		"002_b.sql": {Data: []byte("SELECT 2")},
		"README.md": {Data: []byte("not sql")},
	}

	all, err := Pending(fsys, 0)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(Pending(0)) = %d; want 3", len(all))
	}
	for i, want := range []int{1, 2, 10} {
		if all[i].Version != want {
			t.Errorf("Pending(0)[%d].Version = %d; want %d", i, all[i].Version, want)
		}
	}
	if all[2].SQL != "SELECT 3" {
		t.Errorf("SQL = %q", all[2].SQL)
	}

	rest, err := Pending(fsys, 2)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(rest) != 1 || rest[0].Name != "010_c.sql" {
		t.Errorf("Pending(2) = %+v; want only 010_c.sql", rest)
	}
}

func TestPending_Errors(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
		want string
	}{
		{"bad name", fstest.MapFS{"init.sql": {}}, "invalid migration filename"},
		{"duplicate version", fstest.MapFS{"001_a.sql": {}, "001_b.sql": {}}, "share version 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Pending(tt.fsys, 0)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Pending() error = %v; want %q", err, tt.want)
			}
		})
	}
}

func TestBackendsShipSameVersions(t *testing.T) {
	lite, err := Pending(SQLite, 0)
	if err != nil {
		t.Fatalf("Pending(SQLite) error = %v", err)
	}
	pg, err := Pending(Postgres, 0)
	if err != nil {
		t.Fatalf("Pending(Postgres) error = %v", err)
	}
	if len(lite) != len(pg) {
		t.Fatalf("sqlite has %d migrations, postgres has %d", len(lite), len(pg))
	}
	for i := range lite {
		if lite[i].Name != pg[i].Name {
			t.Errorf("migration %d: sqlite %q, postgres %q", i, lite[i].Name, pg[i].Name)
		}
	}

	if _, err := fs.Stat(SQLite, "001_content.sql"); err != nil {
		t.Errorf("Stat(001_content.sql) error = %v", err)
	}
}
