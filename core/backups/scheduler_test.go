package backups

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"

	"meridian-cmp/config"
	"meridian-cmp/core/utils"
)

func TestSchedulerRunOnceFiresDueJobs(t *testing.T) {
	svc := newTestService(t)
	seedCampaignRows(t, svc, "Spring Launch")
	svc.cfg.Watch = config.WatchConfig{
		Enabled:    true,
		BackupCron: "0 3 * * *",
		HealthCron: "*/15 * * * *",
	}

	healthRuns := 0
	sched, err := NewScheduler(svc.cfg, svc, func(context.Context) { healthRuns++ }, utils.NewLogger())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	ctx := context.Background()
	now := time.Now().In(sched.loc)

	sched.lastBackup = now.Add(-25 * time.Hour)
	sched.lastHealth = now.Add(-time.Hour)
	sched.RunOnce(ctx, now)

	infos, err := svc.List(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("backups after due run = %d, want 1", len(infos))
	}
	if healthRuns != 1 {
		t.Fatalf("health runs = %d, want 1", healthRuns)
	}

	// Baselines advanced; an immediate re-run must stay quiet.
	sched.RunOnce(ctx, now)
	infos, err = svc.List(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 1 || healthRuns != 1 {
		t.Fatalf("re-run fired again: %d backups, %d health runs", len(infos), healthRuns)
	}
}

func TestSchedulerZeroBaselineStaysQuiet(t *testing.T) {
	svc := newTestService(t)
	seedCampaignRows(t, svc, "Spring Launch")
	svc.cfg.Watch = config.WatchConfig{
		Enabled:    true,
		BackupCron: "* * * * *",
		HealthCron: "* * * * *",
	}

	healthRuns := 0
	sched, err := NewScheduler(svc.cfg, svc, func(context.Context) { healthRuns++ }, utils.NewLogger())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	sched.RunOnce(context.Background(), time.Now().In(sched.loc))

	infos, err := svc.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 0 || healthRuns != 0 {
		t.Fatalf("jobs fired without a baseline: %d backups, %d health runs", len(infos), healthRuns)
	}
}

func TestSchedulerStartStopLifecycle(t *testing.T) {
	svc := newTestService(t)
	svc.cfg.Watch = config.WatchConfig{
		Enabled:    true,
		BackupCron: "0 3 * * *",
		HealthCron: "*/15 * * * *",
	}
	sched, err := NewScheduler(svc.cfg, svc, func(context.Context) {}, utils.NewLogger())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	sched.StartWithContext(context.Background())
	sched.mu.Lock()
	running := sched.running
	sched.mu.Unlock()
	if !running {
		t.Fatal("scheduler should be running after start")
	}

	if err := sched.StopWithContext(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	sched.mu.Lock()
	running = sched.running
	sched.mu.Unlock()
	if running {
		t.Fatal("scheduler should be stopped")
	}

	// Stopping again is a no-op.
	if err := sched.StopWithContext(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestSchedulerDisabledNeverStarts(t *testing.T) {
	svc := newTestService(t)
	svc.cfg.Watch = config.WatchConfig{Enabled: false, BackupCron: "0 3 * * *"}
	sched, err := NewScheduler(svc.cfg, svc, nil, utils.NewLogger())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	sched.StartWithContext(context.Background())
	sched.mu.Lock()
	running := sched.running
	sched.mu.Unlock()
	if running {
		t.Fatal("a disabled scheduler must not start")
	}
}

func TestSchedulerRejectsBadCron(t *testing.T) {
	svc := newTestService(t)
	svc.cfg.Watch = config.WatchConfig{Enabled: true, BackupCron: "not a cron"}
	if _, err := NewScheduler(svc.cfg, svc, nil, utils.NewLogger()); err == nil {
		t.Fatal("expected an error for a malformed cron expression")
	}
}

func TestDueActivationWindow(t *testing.T) {
	sched, err := cron.ParseStandard("0 3 * * *")
	if err != nil {
		t.Fatalf("parse cron: %v", err)
	}
	base := time.Date(2026, time.August, 20, 2, 0, 0, 0, time.UTC)

	if due(sched, time.Time{}, base) {
		t.Fatal("a zero baseline must never be due")
	}
	if !due(sched, base, base.Add(2*time.Hour)) {
		t.Fatal("an activation inside the window must be due")
	}
	if due(sched, base.Add(90*time.Minute), base.Add(2*time.Hour)) {
		t.Fatal("no activation between 03:30 and 04:00")
	}
}
