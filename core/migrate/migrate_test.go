package migrate

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func noop(tx *sql.Tx) error { return nil }

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(
		Migration{Version: 1, Description: "a", Up: noop, Down: noop},
		Migration{Version: 1, Description: "b", Up: noop, Down: noop},
	)
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate version error, got %v", err)
	}
}

func TestNewRegistryRejectsMissingDown(t *testing.T) {
	_, err := NewRegistry(Migration{Version: 1, Description: "a", Up: noop})
	if err == nil {
		t.Fatal("expected error for missing down")
	}
}

func TestNewRegistryRejectsNonPositiveVersion(t *testing.T) {
	_, err := NewRegistry(Migration{Version: 0, Description: "a", Up: noop, Down: noop})
	if err == nil {
		t.Fatal("expected error for version 0")
	}
}

func TestNewRegistrySortsByVersion(t *testing.T) {
	reg, err := NewRegistry(
		Migration{Version: 3, Description: "late", Up: noop, Down: noop},
		Migration{Version: 1, Description: "early", Up: noop, Down: noop},
	)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	all := reg.All()
	if all[0].Version != 1 || all[1].Version != 3 {
		t.Fatalf("expected ascending order, got %d then %d", all[0].Version, all[1].Version)
	}
	if reg.MaxVersion() != 3 {
		t.Fatalf("expected max version 3, got %d", reg.MaxVersion())
	}
}

func TestShippedRegistryIsValid(t *testing.T) {
	reg := AllMigrations()
	if reg.Len() == 0 {
		t.Fatal("shipped registry is empty")
	}
	if reg.MaxVersion() != int64(reg.Len()) {
		t.Fatalf("shipped registry has version holes: %d migrations, max version %d", reg.Len(), reg.MaxVersion())
	}
}

func TestScaffoldWritesNextVersion(t *testing.T) {
	dir := t.TempDir()
	reg := AllMigrations()

	path, err := Scaffold(dir, "Add Channel Quota", reg)
	if err != nil {
		t.Fatalf("scaffold: %v", err)
	}
	base := filepath.Base(path)
	wantPrefix := "migration_5_"
	if !strings.HasPrefix(base, wantPrefix) {
		t.Fatalf("expected file name starting with %q, got %q", wantPrefix, base)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read scaffold: %v", err)
	}
	text := string(content)
	if !strings.Contains(text, "Version:     5") {
		t.Fatalf("scaffold missing version, content:\n%s", text)
	}
	if !strings.Contains(text, "migration5AddChannelQuota") {
		t.Fatalf("scaffold missing constructor name, content:\n%s", text)
	}

	if _, err := Scaffold(dir, "add channel quota", reg); err == nil {
		t.Fatal("expected error when scaffold target already exists")
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Add Channel Quota":  "add_channel_quota",
		"  weird--name!!  ":  "weird_name",
		"CamelCase":          "camelcase",
		"already_snake_case": "already_snake_case",
	}
	for in, want := range cases {
		if got := slugify(in); got != want {
			t.Fatalf("slugify(%q) = %q, want %q", in, got, want)
		}
	}
}
