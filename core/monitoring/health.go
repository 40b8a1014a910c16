package monitoring

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"meridian-cmp/core/utils"
)

// CheckHealth probes the store and returns a report. It never fails:
// each probe that breaks turns into an alert and the remaining probes
// still run.
func (m *Monitor) CheckHealth(ctx context.Context) *HealthReport {
	report := &HealthReport{CheckedAt: utils.NowUTC(), QuickCheck: "skipped"}
	if m == nil || m.db == nil {
		return report
	}

	var quick string
	if err := m.db.QueryRowContext(ctx, `PRAGMA quick_check`).Scan(&quick); err != nil {
		report.QuickCheck = "error"
		m.RaiseAlert(AlertIntegrityIssue, SeverityHigh,
			fmt.Sprintf("health check could not run quick_check: %v", err), nil)
	} else {
		report.QuickCheck = quick
		if !strings.EqualFold(quick, "ok") {
			m.RaiseAlert(AlertIntegrityIssue, SeverityCritical,
				fmt.Sprintf("quick_check reported: %s", quick), nil)
		}
	}

	storePath := m.storePath()
	if fi, err := os.Stat(storePath); err == nil {
		report.FileSizeBytes = fi.Size()
	}
	if fi, err := os.Stat(storePath + "-wal"); err == nil {
		report.WALSizeBytes = fi.Size()
	}

	var pageSize int64
	if err := m.db.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize); err != nil {
		m.RaiseAlert(AlertIntegrityIssue, SeverityHigh,
			fmt.Sprintf("health check could not read page_size: %v", err), nil)
	} else if pageSize > 0 && report.WALSizeBytes > 0 {
		report.WALPages = report.WALSizeBytes / pageSize
		if threshold := m.cfg.EffectiveWALPages(); report.WALPages > threshold {
			m.RaiseAlert(AlertHighMemory, SeverityHigh,
				fmt.Sprintf("WAL backlog at %d pages (threshold %d); a checkpoint is overdue", report.WALPages, threshold),
				map[string]any{"wal_pages": report.WALPages, "wal_bytes": report.WALSizeBytes})
		}
	}

	hour := m.recent(time.Hour)
	report.HourEntries = len(hour)
	if len(hour) > 0 {
		slowThreshold := float64(m.cfg.EffectiveSlowQuery()) / float64(time.Millisecond)
		var total float64
		for _, e := range hour {
			total += e.ExecutionTimeMs
			if e.ExecutionTimeMs > slowThreshold {
				report.HourSlow++
			}
		}
		report.HourAvgMs = total / float64(len(hour))
	}

	m.logger.Printf("health: quick_check=%s file=%dB wal=%d pages, last hour %d queries (%d slow, avg %.2fms)",
		report.QuickCheck, report.FileSizeBytes, report.WALPages, report.HourEntries, report.HourSlow, report.HourAvgMs)
	return report
}

func (m *Monitor) storePath() string {
	if m != nil && m.cfg != nil && strings.TrimSpace(m.cfg.DBPath) != "" {
		return strings.TrimSpace(m.cfg.DBPath)
	}
	return "data/meridian.db"
}
