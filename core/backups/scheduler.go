package backups

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"meridian-cmp/config"
	"meridian-cmp/core/utils"
)

const schedulerTick = 30 * time.Second

// Scheduler drives automatic backups and periodic health checks from
// cron expressions. The health hook is injected so the scheduler does
// not depend on the monitor.
type Scheduler struct {
	cfg    *config.AppConfig
	svc    *Service
	health func(context.Context)
	logger *utils.Logger
	loc    *time.Location

	backupSched cron.Schedule
	healthSched cron.Schedule

	mu         sync.Mutex
	cancel     context.CancelFunc
	running    bool
	wg         sync.WaitGroup
	lastBackup time.Time
	lastHealth time.Time
}

func NewScheduler(cfg *config.AppConfig, svc *Service, health func(context.Context), logger *utils.Logger) (*Scheduler, error) {
	s := &Scheduler{cfg: cfg, svc: svc, health: health, logger: logger, loc: scheduleLocation(cfg)}
	if cfg != nil && cfg.Watch.BackupCron != "" {
		sched, err := cron.ParseStandard(cfg.Watch.BackupCron)
		if err != nil {
			return nil, fmt.Errorf("backup cron %q: %w", cfg.Watch.BackupCron, err)
		}
		s.backupSched = sched
	}
	if cfg != nil && cfg.Watch.HealthCron != "" && health != nil {
		sched, err := cron.ParseStandard(cfg.Watch.HealthCron)
		if err != nil {
			return nil, fmt.Errorf("health cron %q: %w", cfg.Watch.HealthCron, err)
		}
		s.healthSched = sched
	}
	return s, nil
}

func (s *Scheduler) StartWithContext(ctx context.Context) {
	if s == nil || s.svc == nil || s.cfg == nil || !s.cfg.Watch.Enabled {
		return
	}
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	now := time.Now().In(s.loc)
	s.lastBackup = now
	s.lastHealth = now
	s.wg.Add(1)
	s.mu.Unlock()

	ticker := time.NewTicker(schedulerTick)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunOnce(runCtx, time.Now().In(s.loc))
			case <-runCtx.Done():
				return
			}
		}
	}()
}

func (s *Scheduler) StopWithContext(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	wasRunning := s.running
	s.mu.Unlock()
	if !wasRunning || cancel == nil {
		return nil
	}
	cancel()
	waitDone := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce fires whichever jobs have a cron activation between their
// last run and now.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) {
	if s == nil || s.svc == nil {
		return
	}
	s.mu.Lock()
	runBackup := s.backupSched != nil && due(s.backupSched, s.lastBackup, now)
	if runBackup {
		s.lastBackup = now
	}
	runHealth := s.healthSched != nil && s.health != nil && due(s.healthSched, s.lastHealth, now)
	if runHealth {
		s.lastHealth = now
	}
	s.mu.Unlock()

	if runBackup {
		if _, err := s.svc.CreateAuto(ctx); err != nil {
			s.logger.Errorf("scheduled backup: %v", err)
		}
	}
	if runHealth {
		s.health(ctx)
	}
}

// due reports whether sched has an activation in (last, now]. A zero
// last means the job has no baseline yet and stays quiet.
func due(sched cron.Schedule, last, now time.Time) bool {
	if last.IsZero() {
		return false
	}
	next := sched.Next(last)
	return !next.After(now)
}
