package main

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"meridian-cmp/config"
	"meridian-cmp/core/utils"
)

func newTestRuntime(t *testing.T) *runtime {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.AppConfig{
		DBPath: filepath.Join(dir, "meridian.db"),
		Backups: config.BackupsConfig{
			Path:     filepath.Join(dir, "backups"),
			AutoKeep: 3,
		},
		Logs: config.LogsConfig{
			Path:          filepath.Join(dir, "logs"),
			RetentionDays: 30,
		},
		Monitor: config.MonitorConfig{
			SlowQueryMs: 100,
			CriticalMs:  500,
			WALPages:    1000,
			BufferHours: 24,
		},
	}
	rt, err := composeRuntime(cfg, utils.NewLogger())
	if err != nil {
		t.Fatalf("compose runtime: %v", err)
	}
	t.Cleanup(rt.close)
	return rt
}

func runCommand(t *testing.T, rt *runtime, confirm func(string) bool, args ...string) (string, error) {
	t.Helper()
	var out strings.Builder
	err := dispatch(context.Background(), rt, args, confirm, &out, io.Discard)
	return out.String(), err
}

func alwaysYes(string) bool { return true }

func alwaysNo(string) bool { return false }

func TestDispatchRejectsUnknownCommand(t *testing.T) {
	rt := newTestRuntime(t)
	if _, err := runCommand(t, rt, alwaysYes, "teleport"); err == nil {
		t.Fatal("expected an error for an unknown command")
	}
}

func TestMigrateSeedStatusFlow(t *testing.T) {
	rt := newTestRuntime(t)

	out, err := runCommand(t, rt, alwaysYes, "migrate", "up")
	if err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	if !strings.Contains(out, "Schema is at version 4.") {
		t.Fatalf("migrate up output:\n%s", out)
	}

	out, err = runCommand(t, rt, alwaysYes, "seed", "run")
	if err != nil {
		t.Fatalf("seed run: %v", err)
	}
	if !strings.Contains(out, "seeds applied") {
		t.Fatalf("seed run output:\n%s", out)
	}

	out, err = runCommand(t, rt, alwaysYes, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "Schema version: 4") {
		t.Fatalf("status output:\n%s", out)
	}
	if !strings.Contains(out, "No backups yet.") {
		t.Fatalf("status should report missing backups:\n%s", out)
	}
}

func TestMigrateDownRequiresTarget(t *testing.T) {
	rt := newTestRuntime(t)
	if _, err := runCommand(t, rt, alwaysYes, "migrate", "down"); err == nil {
		t.Fatal("expected an error without a target version")
	}
}

func TestDestructiveCommandsRespectDecline(t *testing.T) {
	rt := newTestRuntime(t)
	if _, err := runCommand(t, rt, alwaysYes, "migrate", "up"); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	if _, err := runCommand(t, rt, alwaysYes, "seed", "run"); err != nil {
		t.Fatalf("seed run: %v", err)
	}

	for _, args := range [][]string{
		{"seed", "clear"},
		{"seed", "reset"},
		{"reset"},
		{"restore", "nope"},
		{"backup", "delete", "nope"},
	} {
		if _, err := runCommand(t, rt, alwaysNo, args...); err == nil {
			t.Fatalf("%v should abort when declined", args)
		}
	}

	var n int64
	if err := rt.db.QueryRow(`SELECT COUNT(*) FROM agencies`).Scan(&n); err != nil {
		t.Fatalf("count agencies: %v", err)
	}
	if n == 0 {
		t.Fatal("declined commands must leave data untouched")
	}
}

func TestBackupVerifyRestoreFlow(t *testing.T) {
	rt := newTestRuntime(t)
	if _, err := runCommand(t, rt, alwaysYes, "migrate", "up"); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	if _, err := runCommand(t, rt, alwaysYes, "seed", "run"); err != nil {
		t.Fatalf("seed run: %v", err)
	}

	out, err := runCommand(t, rt, alwaysYes, "backup", "create", "before-change")
	if err != nil {
		t.Fatalf("backup create: %v", err)
	}
	if !strings.Contains(out, "Backup before-change created") {
		t.Fatalf("backup create output:\n%s", out)
	}

	out, err = runCommand(t, rt, alwaysYes, "backup", "verify", "before-change")
	if err != nil {
		t.Fatalf("backup verify: %v", err)
	}
	if !strings.Contains(out, "OK") {
		t.Fatalf("backup verify output:\n%s", out)
	}

	out, err = runCommand(t, rt, alwaysYes, "backup", "list")
	if err != nil {
		t.Fatalf("backup list: %v", err)
	}
	if !strings.Contains(out, "before-change") {
		t.Fatalf("backup list output:\n%s", out)
	}

	if _, err := rt.db.Exec(`DELETE FROM campaign_metrics`); err != nil {
		t.Fatalf("mutate store: %v", err)
	}
	out, err = runCommand(t, rt, alwaysYes, "restore", "before-change")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !strings.Contains(out, "Backup before-change restored.") {
		t.Fatalf("restore output:\n%s", out)
	}

	var metrics int64
	if err := rt.db.QueryRow(`SELECT COUNT(*) FROM campaign_metrics`).Scan(&metrics); err != nil {
		t.Fatalf("count metrics after restore: %v", err)
	}
	if metrics == 0 {
		t.Fatal("restore should bring deleted rows back")
	}
}

func TestResetRebuildsWithSafetyBackup(t *testing.T) {
	rt := newTestRuntime(t)
	if _, err := runCommand(t, rt, alwaysYes, "migrate", "up"); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	if _, err := runCommand(t, rt, alwaysYes, "seed", "run"); err != nil {
		t.Fatalf("seed run: %v", err)
	}

	out, err := runCommand(t, rt, alwaysYes, "reset")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !strings.Contains(out, "Safety backup auto_backup_") {
		t.Fatalf("reset should create a safety backup:\n%s", out)
	}
	if !strings.Contains(out, "Store rebuilt at version 4 with demo data.") {
		t.Fatalf("reset output:\n%s", out)
	}

	var n int64
	if err := rt.db.QueryRow(`SELECT COUNT(*) FROM campaigns`).Scan(&n); err != nil {
		t.Fatalf("count campaigns: %v", err)
	}
	if n == 0 {
		t.Fatal("reset should leave demo data in place")
	}
}

func TestAnalyzeAllOnFreshStore(t *testing.T) {
	rt := newTestRuntime(t)
	if _, err := runCommand(t, rt, alwaysYes, "migrate", "up"); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	out, err := runCommand(t, rt, alwaysYes, "analyze", "all")
	if err != nil {
		t.Fatalf("analyze all: %v", err)
	}
	for _, banner := range []string{"DATABASE SIZE", "INDEX USAGE", "QUERY PLANS", "INTEGRITY"} {
		if !strings.Contains(out, banner) {
			t.Fatalf("analyze all missing %q:\n%s", banner, out)
		}
	}
}

func TestAlertsAndLogsCommands(t *testing.T) {
	rt := newTestRuntime(t)

	out, err := runCommand(t, rt, alwaysYes, "alerts")
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if !strings.Contains(out, "No alerts.") {
		t.Fatalf("alerts output:\n%s", out)
	}

	if _, err := runCommand(t, rt, alwaysYes, "alerts", "sideways"); err == nil {
		t.Fatal("expected an error for an invalid severity")
	}

	out, err = runCommand(t, rt, alwaysYes, "logs", "clean")
	if err != nil {
		t.Fatalf("logs clean: %v", err)
	}
	if !strings.Contains(out, "pruned") {
		t.Fatalf("logs clean output:\n%s", out)
	}
}

func TestReportRejectsBadDays(t *testing.T) {
	rt := newTestRuntime(t)
	if _, err := runCommand(t, rt, alwaysYes, "report", "zero"); err == nil {
		t.Fatal("expected an error for a non-numeric day count")
	}
	if _, err := runCommand(t, rt, alwaysYes, "report", "-3"); err == nil {
		t.Fatal("expected an error for a negative day count")
	}
}

func TestStdinConfirm(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"yes\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tc := range cases {
		confirm := stdinConfirm(strings.NewReader(tc.input), io.Discard)
		if got := confirm("Proceed?"); got != tc.want {
			t.Fatalf("confirm(%q) = %t, want %t", tc.input, got, tc.want)
		}
	}
}
