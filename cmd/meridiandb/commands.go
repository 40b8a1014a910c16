package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"meridian-cmp/core/analyze"
	"meridian-cmp/core/backups"
	"meridian-cmp/core/migrate"
	"meridian-cmp/core/monitoring"
	"meridian-cmp/core/seed"
)

const (
	timestampFormat = "2006-01-02 15:04:05"
	stopTimeout     = 5 * time.Second
)

var migrationsDir = filepath.Join("core", "migrate")

func runMigrate(ctx context.Context, rt *runtime, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("migrate needs a subcommand: up, down, status or create")
	}
	reg := migrate.AllMigrations()
	switch args[0] {
	case "up":
		var target int64
		if len(args) > 1 {
			v, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("target version %q: %w", args[1], err)
			}
			target = v
		}
		if err := rt.migrator.Up(ctx, reg, target); err != nil {
			return err
		}
		current, err := rt.migrator.CurrentVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Schema is at version %d.\n", current)
		return nil
	case "down":
		if len(args) < 2 {
			return errors.New("migrate down needs a target version")
		}
		target, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("target version %q: %w", args[1], err)
		}
		if err := rt.migrator.Down(ctx, reg, target); err != nil {
			return err
		}
		fmt.Fprintf(out, "Schema rolled back to version %d.\n", target)
		return nil
	case "status":
		st, err := rt.migrator.Status(ctx, reg)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Current version: %d\n", st.Current)
		if len(st.Applied) == 0 {
			fmt.Fprintln(out, "No migrations applied.")
		} else {
			fmt.Fprintln(out, "Applied:")
			for _, rec := range st.Applied {
				fmt.Fprintf(out, "  %3d  %-32s %s\n", rec.Version, rec.Description, rec.AppliedAt.Format(timestampFormat))
			}
		}
		if len(st.Pending) > 0 {
			fmt.Fprintln(out, "Pending:")
			for _, m := range st.Pending {
				fmt.Fprintf(out, "  %3d  %s\n", m.Version, m.Description)
			}
		}
		return nil
	case "create":
		if len(args) < 2 {
			return errors.New("migrate create needs a name")
		}
		path, err := migrate.Scaffold(migrationsDir, strings.Join(args[1:], " "), reg)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Created %s. Register its constructor in AllMigrations.\n", path)
		return nil
	default:
		return fmt.Errorf("unknown migrate subcommand %q", args[0])
	}
}

func runSeed(ctx context.Context, rt *runtime, args []string, confirm func(string) bool, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("seed needs a subcommand: run, clear, reset or list")
	}
	seeds := seed.AllSeeds()
	switch args[0] {
	case "run":
		if len(args) > 1 {
			name := args[1]
			if err := rt.seeder.RunOne(ctx, seeds, name); err != nil {
				if errors.Is(err, seed.ErrNotFound) {
					return fmt.Errorf("unknown seed %q (try: meridiandb seed list)", name)
				}
				return err
			}
			fmt.Fprintf(out, "Seed %s applied.\n", name)
			return nil
		}
		if err := rt.seeder.RunAll(ctx, seeds); err != nil {
			return err
		}
		fmt.Fprintf(out, "All %d seeds applied.\n", len(seeds))
		return nil
	case "clear":
		if err := ensureConfirmed(confirm, "Delete every row from every table?"); err != nil {
			return err
		}
		if err := rt.seeder.ClearAll(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "All tables cleared.")
		return nil
	case "reset":
		if err := ensureConfirmed(confirm, "Clear all data and re-run every seed?"); err != nil {
			return err
		}
		if err := rt.seeder.ClearAll(ctx); err != nil {
			return err
		}
		if err := rt.seeder.RunAll(ctx, seeds); err != nil {
			return err
		}
		fmt.Fprintln(out, "Demo data reset.")
		return nil
	case "list":
		for _, s := range seeds {
			fmt.Fprintf(out, "  %-24s %s\n", s.Name, s.Description)
		}
		return nil
	default:
		return fmt.Errorf("unknown seed subcommand %q", args[0])
	}
}

func runBackup(ctx context.Context, rt *runtime, args []string, confirm func(string) bool, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("backup needs a subcommand: create, list, auto, verify or delete")
	}
	switch args[0] {
	case "create":
		var name string
		if len(args) > 1 {
			name = args[1]
		}
		info, err := rt.backups.Create(ctx, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Backup %s created (%s).\n", info.Name, humanize.Bytes(uint64(info.SizeBytes)))
		return nil
	case "auto":
		info, err := rt.backups.CreateAuto(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Auto backup %s created (%s).\n", info.Name, humanize.Bytes(uint64(info.SizeBytes)))
		return nil
	case "list":
		infos, err := rt.backups.List(ctx, 0)
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Fprintln(out, "No backups yet.")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tCREATED\tSIZE\tCAMPAIGNS")
		for _, info := range infos {
			campaigns := "-"
			if n, ok := info.Counts["campaigns"]; ok {
				campaigns = humanize.Comma(n)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				info.Name, info.CreatedAt.Format(timestampFormat),
				humanize.Bytes(uint64(info.SizeBytes)), campaigns)
		}
		return w.Flush()
	case "verify":
		if len(args) < 2 {
			return errors.New("backup verify needs a backup name")
		}
		if !rt.backups.Verify(ctx, args[1]) {
			return fmt.Errorf("backup %s failed verification", args[1])
		}
		fmt.Fprintf(out, "Backup %s verified: OK.\n", args[1])
		return nil
	case "delete":
		if len(args) < 2 {
			return errors.New("backup delete needs a backup name")
		}
		name := args[1]
		if err := ensureConfirmed(confirm, fmt.Sprintf("Delete backup %s?", name)); err != nil {
			return err
		}
		if err := rt.backups.Delete(ctx, name); err != nil {
			return err
		}
		fmt.Fprintf(out, "Backup %s deleted.\n", name)
		return nil
	default:
		return fmt.Errorf("unknown backup subcommand %q", args[0])
	}
}

func runRestore(ctx context.Context, rt *runtime, args []string, confirm func(string) bool, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("restore needs a backup name")
	}
	name := args[0]
	fmt.Fprintf(out, "Restoring overwrites the live store at %s. A fresh backup first is recommended (meridiandb backup create).\n", rt.cfg.DBPath)
	if err := ensureConfirmed(confirm, fmt.Sprintf("Restore backup %s over the live store?", name)); err != nil {
		return err
	}
	fresh, err := rt.backups.Restore(ctx, name)
	if err != nil {
		var restoreErr *backups.RestoreError
		if errors.As(err, &restoreErr) && restoreErr.HandleClosed {
			return fmt.Errorf("%w (the live handle is closed; rerun a command to reopen the store)", err)
		}
		return err
	}
	rt.adoptDB(fresh)
	fmt.Fprintf(out, "Backup %s restored.\n", name)
	return nil
}

func runAnalyze(ctx context.Context, rt *runtime, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("analyze needs a target: performance, indexes, integrity, size or all")
	}
	switch args[0] {
	case "performance":
		report, err := rt.analyzer.Performance(ctx)
		if err != nil {
			return err
		}
		fmt.Fprint(out, report)
		return nil
	case "indexes":
		report, err := rt.analyzer.IndexUsage(ctx)
		if err != nil {
			return err
		}
		fmt.Fprint(out, report)
		return nil
	case "integrity":
		issues, err := rt.analyzer.Integrity(ctx)
		if err != nil {
			return err
		}
		fmt.Fprint(out, analyze.FormatIssues(issues))
		return nil
	case "size":
		report, err := rt.analyzer.Size(ctx)
		if err != nil {
			return err
		}
		fmt.Fprint(out, report)
		return nil
	case "all":
		report, err := rt.analyzer.Complete(ctx)
		if err != nil {
			return err
		}
		fmt.Fprint(out, report)
		return nil
	default:
		return fmt.Errorf("unknown analyze target %q", args[0])
	}
}

func runStatus(ctx context.Context, rt *runtime, out io.Writer) error {
	st, err := rt.migrator.Status(ctx, migrate.AllMigrations())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Schema version: %d (%d applied, %d pending)\n", st.Current, len(st.Applied), len(st.Pending))

	if fi, err := os.Stat(rt.cfg.DBPath); err == nil {
		fmt.Fprintf(out, "Store: %s (%s)\n", rt.cfg.DBPath, humanize.Bytes(uint64(fi.Size())))
	} else {
		fmt.Fprintf(out, "Store: %s\n", rt.cfg.DBPath)
	}

	infos, err := rt.backups.List(ctx, 5)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(out, "No backups yet.")
		return nil
	}
	fmt.Fprintln(out, "Recent backups:")
	for _, info := range infos {
		fmt.Fprintf(out, "  %s  %s  %s\n",
			info.CreatedAt.Format(timestampFormat), info.Name, humanize.Bytes(uint64(info.SizeBytes)))
	}
	return nil
}

// runReset rebuilds the store end to end: safety backup, full rollback,
// re-apply, re-seed.
func runReset(ctx context.Context, rt *runtime, confirm func(string) bool, out io.Writer) error {
	if err := ensureConfirmed(confirm, "Rebuild the store from scratch? A safety backup is taken first."); err != nil {
		return err
	}
	reg := migrate.AllMigrations()

	info, err := rt.backups.CreateAuto(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Safety backup %s created.\n", info.Name)

	if err := rt.migrator.Reset(ctx, reg); err != nil {
		return err
	}
	if err := rt.migrator.Up(ctx, reg, 0); err != nil {
		return err
	}
	if err := rt.seeder.RunAll(ctx, seed.AllSeeds()); err != nil {
		return err
	}
	current, err := rt.migrator.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Store rebuilt at version %d with demo data.\n", current)
	return nil
}

func runReport(rt *runtime, args []string, out io.Writer) error {
	days := 7
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			return fmt.Errorf("report days %q: need a positive number", args[0])
		}
		days = v
	}
	report, err := rt.monitor.PerformanceReport(days)
	if err != nil {
		return err
	}
	fmt.Fprint(out, report)
	return nil
}

func runAlerts(rt *runtime, args []string, out io.Writer) error {
	var severity monitoring.Severity
	if len(args) > 0 {
		switch args[0] {
		case "clear":
			if err := rt.monitor.ClearAlerts(); err != nil {
				return err
			}
			fmt.Fprintln(out, "Alerts cleared.")
			return nil
		case string(monitoring.SeverityLow), string(monitoring.SeverityMedium),
			string(monitoring.SeverityHigh), string(monitoring.SeverityCritical):
			severity = monitoring.Severity(args[0])
		default:
			return fmt.Errorf("unknown severity %q (low, medium, high, critical or clear)", args[0])
		}
	}
	alerts, err := rt.monitor.Alerts(severity)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(out, "No alerts.")
		return nil
	}
	for _, a := range alerts {
		fmt.Fprintf(out, "%s  [%s] %s: %s\n",
			a.Timestamp.Format(timestampFormat), a.Severity, a.Type, a.Message)
	}
	return nil
}

func runLogs(ctx context.Context, rt *runtime, args []string, out io.Writer) error {
	if len(args) == 0 || args[0] != "clean" {
		return errors.New("logs needs the clean subcommand")
	}
	if err := rt.monitor.CleanOldLogs(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "Logs older than %d days pruned.\n", rt.cfg.EffectiveRetentionDays())
	return nil
}

// runWatch blocks until the context is cancelled, firing scheduled
// backups and health checks in between.
func runWatch(ctx context.Context, rt *runtime, out io.Writer) error {
	if !rt.cfg.Watch.Enabled {
		return errors.New("watch is disabled in configuration (watch.enabled)")
	}
	sched, err := backups.NewScheduler(rt.cfg, rt.backups, func(ctx context.Context) {
		rt.monitor.CheckHealth(ctx)
	}, rt.logger)
	if err != nil {
		return err
	}
	sched.StartWithContext(ctx)
	fmt.Fprintf(out, "Watching %s (backups: %q, health: %q). Interrupt to stop.\n",
		rt.cfg.DBPath, rt.cfg.Watch.BackupCron, rt.cfg.Watch.HealthCron)

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := sched.StopWithContext(stopCtx); err != nil {
		return fmt.Errorf("stop watch: %w", err)
	}
	fmt.Fprintln(out, "Watch stopped.")
	return nil
}
