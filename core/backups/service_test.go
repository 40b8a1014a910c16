package backups

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"meridian-cmp/config"
	"meridian-cmp/core/store"
	"meridian-cmp/core/utils"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.AppConfig{
		DBPath: filepath.Join(dir, "meridian.db"),
		Backups: config.BackupsConfig{
			Path:     filepath.Join(dir, "backups"),
			AutoKeep: 3,
		},
	}
	db, err := store.OpenAt(cfg.DBPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	svc := NewService(cfg, db, utils.NewLogger())
	t.Cleanup(func() {
		if h := svc.DB(); h != nil {
			h.Close()
		}
	})
	return svc
}

func seedCampaignRows(t *testing.T, svc *Service, names ...string) {
	t.Helper()
	if _, err := svc.db.Exec(`CREATE TABLE IF NOT EXISTS campaigns (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL)`); err != nil {
		t.Fatalf("create campaigns: %v", err)
	}
	for _, name := range names {
		if _, err := svc.db.Exec(`INSERT INTO campaigns (name) VALUES (?)`, name); err != nil {
			t.Fatalf("insert campaign: %v", err)
		}
	}
}

func campaignCount(t *testing.T, svc *Service) int64 {
	t.Helper()
	var n int64
	if err := svc.db.QueryRow(`SELECT COUNT(*) FROM campaigns`).Scan(&n); err != nil {
		t.Fatalf("count campaigns: %v", err)
	}
	return n
}

func TestCreateThenVerify(t *testing.T) {
	svc := newTestService(t)
	seedCampaignRows(t, svc, "Spring Launch", "Summer Push")
	ctx := context.Background()

	info, err := svc.Create(ctx, "x")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if info.Name != "x" {
		t.Fatalf("backup name = %q, want x", info.Name)
	}
	if info.SizeBytes <= 0 || info.Checksum == "" {
		t.Fatalf("sidecar metadata incomplete: %+v", info)
	}
	if info.Counts["campaigns"] != 2 {
		t.Fatalf("campaign count = %d, want 2", info.Counts["campaigns"])
	}
	if _, ok := info.Counts["agencies"]; ok {
		t.Fatal("missing tables must be skipped, not zeroed")
	}

	if !svc.Verify(ctx, "x") {
		t.Fatal("a fresh backup must verify")
	}
	if svc.Verify(ctx, "ghost") {
		t.Fatal("verifying an unknown backup must fail")
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	svc := newTestService(t)
	seedCampaignRows(t, svc, "Spring Launch")
	ctx := context.Background()

	info, err := svc.Create(ctx, "tamper-me")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f, err := os.OpenFile(info.Path, os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open copy: %v", err)
	}
	if _, err := f.WriteAt([]byte("garbage"), 32); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	f.Close()

	if svc.Verify(ctx, "tamper-me") {
		t.Fatal("a tampered copy must fail verification")
	}
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	svc := newTestService(t)
	seedCampaignRows(t, svc, "Spring Launch")
	ctx := context.Background()

	if _, err := svc.Create(ctx, "twice"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := svc.Create(ctx, "twice")
	var backupErr *BackupError
	if !errors.As(err, &backupErr) {
		t.Fatalf("duplicate create error = %v, want *BackupError", err)
	}
}

func TestAutoRotationKeepsNewestAndManual(t *testing.T) {
	svc := newTestService(t)
	seedCampaignRows(t, svc, "Spring Launch")
	ctx := context.Background()

	if _, err := svc.Create(ctx, "keep-me"); err != nil {
		t.Fatalf("manual create: %v", err)
	}
	var oldest string
	for i := 0; i < 4; i++ {
		info, err := svc.CreateAuto(ctx)
		if err != nil {
			t.Fatalf("auto create %d: %v", i, err)
		}
		if i == 0 {
			oldest = info.Name
		}
	}

	infos, err := svc.List(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	autos := 0
	manual := false
	for _, info := range infos {
		if strings.HasPrefix(info.Name, autoBackupPrefix) {
			autos++
			if info.Name == oldest {
				t.Fatalf("oldest auto backup %s should have rotated out", oldest)
			}
		}
		if info.Name == "keep-me" {
			manual = true
		}
	}
	if autos != 3 {
		t.Fatalf("auto backups after rotation = %d, want 3", autos)
	}
	if !manual {
		t.Fatal("rotation must never touch manual backups")
	}
	if _, err := os.Stat(filepath.Join(svc.dir(), oldest+backupExt)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("rotated copy still on disk: %v", err)
	}
	if _, err := os.Stat(sidecarPath(svc.dir(), oldest)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("rotated sidecar still on disk: %v", err)
	}
}

func TestListNewestFirstWithLimit(t *testing.T) {
	svc := newTestService(t)
	seedCampaignRows(t, svc, "Spring Launch")
	ctx := context.Background()

	for _, name := range []string{"first", "second", "third"} {
		if _, err := svc.Create(ctx, name); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	infos, err := svc.List(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("limited list length = %d, want 2", len(infos))
	}
	if infos[0].Name != "third" || infos[1].Name != "second" {
		t.Fatalf("list order = %s, %s; want third, second", infos[0].Name, infos[1].Name)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	svc := newTestService(t)
	seedCampaignRows(t, svc, "Spring Launch", "Summer Push")
	ctx := context.Background()

	if _, err := svc.Create(ctx, "checkpoint"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.db.Exec(`DELETE FROM campaigns`); err != nil {
		t.Fatalf("wipe campaigns: %v", err)
	}
	if n := campaignCount(t, svc); n != 0 {
		t.Fatalf("campaigns before restore = %d, want 0", n)
	}

	fresh, err := svc.Restore(ctx, "checkpoint")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if fresh != svc.DB() {
		t.Fatal("service must continue on the fresh handle")
	}
	if n := campaignCount(t, svc); n != 2 {
		t.Fatalf("campaigns after restore = %d, want 2", n)
	}
	if !svc.Verify(ctx, "checkpoint") {
		t.Fatal("backup must still verify after being restored")
	}
}

func TestRestoreUnknownBackupKeepsHandleOpen(t *testing.T) {
	svc := newTestService(t)
	seedCampaignRows(t, svc, "Spring Launch")
	ctx := context.Background()

	_, err := svc.Restore(ctx, "ghost")
	var restoreErr *RestoreError
	if !errors.As(err, &restoreErr) {
		t.Fatalf("restore error = %v, want *RestoreError", err)
	}
	if restoreErr.HandleClosed {
		t.Fatal("a missing backup must be detected before the handle closes")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("restore error should wrap ErrNotFound, got %v", err)
	}
	// The live handle must still work.
	if n := campaignCount(t, svc); n != 1 {
		t.Fatalf("campaigns = %d, want 1", n)
	}
}

func TestDeleteIsNoOpWhenAbsent(t *testing.T) {
	svc := newTestService(t)
	if err := svc.Delete(context.Background(), "never-existed"); err != nil {
		t.Fatalf("delete of a missing backup: %v", err)
	}
}

func TestDeleteRemovesCopyAndSidecar(t *testing.T) {
	svc := newTestService(t)
	seedCampaignRows(t, svc, "Spring Launch")
	ctx := context.Background()

	info, err := svc.Create(ctx, "short-lived")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Delete(ctx, "short-lived"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(info.Path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("copy still on disk: %v", err)
	}
	infos, err := svc.List(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("list after delete = %v, want empty", infos)
	}
}

func TestNormalizeBackupName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"with space", "with_space"},
		{"path/escape\\attempt", "path_escape_attempt"},
		{"semi;colon:and,comma", "semi_colon_and_comma"},
		{"dot..dot", "dot_dot"},
		{"  trimmed  ", "trimmed"},
	}
	for _, tc := range cases {
		if got := normalizeBackupName(tc.in); got != tc.want {
			t.Fatalf("normalizeBackupName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if got := normalizeBackupName(""); !strings.HasPrefix(got, "backup_") {
		t.Fatalf("empty name should get a timestamped default, got %q", got)
	}
}
