package monitoring

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"meridian-cmp/config"
	"meridian-cmp/core/utils"
)

const (
	fingerprintMax  = 200
	parameterMax    = 50
	alertsFileName  = "alerts.json"
	perfFilePrefix  = "performance_"
	perfFileDateFmt = "2006-01-02"
)

var spaceRe = regexp.MustCompile(`\s+`)

// Monitor wraps statement execution on the store handle, keeping a
// rolling in-memory window of timings plus per-day files and an alert
// file under the database log directory. It owns those files
// exclusively.
type Monitor struct {
	cfg    *config.AppConfig
	db     *sql.DB
	logger *utils.Logger

	mu     sync.Mutex
	buffer []PerformanceLogEntry
}

func NewMonitor(cfg *config.AppConfig, db *sql.DB, logger *utils.Logger) *Monitor {
	return &Monitor{cfg: cfg, db: db, logger: logger}
}

func (m *Monitor) logDir() string {
	if m != nil && m.cfg != nil {
		return m.cfg.DatabaseLogDir()
	}
	return filepath.Join("data", "logs", "database")
}

func (m *Monitor) alertsPath() string {
	return filepath.Join(m.logDir(), alertsFileName)
}

func (m *Monitor) performancePath(day time.Time) string {
	return filepath.Join(m.logDir(), perfFilePrefix+day.UTC().Format(perfFileDateFmt)+".json")
}

// Exec runs one mutating statement through the monitor. The execution is
// always recorded; the result and error pass through untouched.
func (m *Monitor) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if m == nil || m.db == nil {
		return nil, errors.New("monitor is not initialized")
	}
	start := time.Now()
	res, err := m.db.ExecContext(ctx, query, args...)
	elapsed := time.Since(start)
	var rows int64
	if err == nil && res != nil {
		if n, raErr := res.RowsAffected(); raErr == nil {
			rows = n
		}
	}
	m.observe(query, args, elapsed, rows, err)
	return res, err
}

// Query runs one read statement through the monitor. Row counts are not
// known until the caller drains the cursor, so the entry records zero.
func (m *Monitor) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if m == nil || m.db == nil {
		return nil, errors.New("monitor is not initialized")
	}
	start := time.Now()
	rows, err := m.db.QueryContext(ctx, query, args...)
	m.observe(query, args, time.Since(start), 0, err)
	return rows, err
}

// observe records one execution and raises threshold alerts. Failed
// executions are recorded with zero rows affected; the caller still gets
// the original error.
func (m *Monitor) observe(query string, args []any, elapsed time.Duration, rows int64, execErr error) {
	if m == nil {
		return
	}
	if execErr != nil {
		rows = 0
	}
	entry := PerformanceLogEntry{
		Timestamp:       utils.NowUTC(),
		Query:           Fingerprint(query),
		ExecutionTimeMs: float64(elapsed) / float64(time.Millisecond),
		RowsAffected:    rows,
		Parameters:      formatParameters(args),
	}
	m.record(entry)

	if m.cfg != nil && m.cfg.DBVerbose {
		m.logger.Printf("sql %.2fms rows=%d %s", entry.ExecutionTimeMs, rows, entry.Query)
	}

	critical := m.cfg.EffectiveCritical()
	if elapsed > critical {
		severity := SeverityHigh
		if elapsed > 2*critical {
			severity = SeverityCritical
		}
		m.RaiseAlert(AlertSlowQuery, severity,
			fmt.Sprintf("query took %.2fms (critical threshold %dms)", entry.ExecutionTimeMs, critical.Milliseconds()),
			map[string]any{"query": entry.Query, "execution_time_ms": entry.ExecutionTimeMs})
	}
	if execErr != nil && isLockedError(execErr) {
		m.RaiseAlert(AlertLockTimeout, SeverityHigh,
			fmt.Sprintf("statement hit a lock: %v", execErr),
			map[string]any{"query": entry.Query})
	}
}

// record appends to the in-memory buffer, pruning it to the configured
// window, then persists the entry into today's file.
func (m *Monitor) record(entry PerformanceLogEntry) {
	cutoff := entry.Timestamp.Add(-m.cfg.EffectiveBufferWindow())
	m.mu.Lock()
	kept := m.buffer[:0]
	for _, e := range m.buffer {
		if e.Timestamp.After(cutoff) {
			kept = append(kept, e)
		}
	}
	m.buffer = append(kept, entry)
	m.mu.Unlock()

	path := m.performancePath(entry.Timestamp)
	entries, err := readEntryFile(path)
	if err != nil {
		m.logger.Errorf("read performance log %s: %v", path, err)
		entries = nil
	}
	if err := writeEntryFile(path, append(entries, entry)); err != nil {
		m.logger.Errorf("write performance log %s: %v", path, err)
	}
}

// recent returns buffered entries newer than the window start.
func (m *Monitor) recent(window time.Duration) []PerformanceLogEntry {
	cutoff := utils.NowUTC().Add(-window)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PerformanceLogEntry, 0, len(m.buffer))
	for _, e := range m.buffer {
		if e.Timestamp.After(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// RaiseAlert appends an alert to the alert file and mirrors it on the
// logger. A persistence failure is logged and otherwise swallowed so an
// alerting problem never breaks the monitored operation.
func (m *Monitor) RaiseAlert(t AlertType, severity Severity, message string, details map[string]any) {
	if m == nil {
		return
	}
	alert := AlertRecord{
		ID:        newAlertID(),
		Type:      t,
		Severity:  severity,
		Message:   message,
		Timestamp: utils.NowUTC(),
		Details:   details,
	}
	switch severity {
	case SeverityCritical, SeverityHigh:
		m.logger.Errorf("alert [%s/%s] %s", t, severity, message)
	default:
		m.logger.Warnf("alert [%s/%s] %s", t, severity, message)
	}
	path := m.alertsPath()
	alerts, err := readAlertFile(path)
	if err != nil {
		m.logger.Errorf("read alert file %s: %v", path, err)
		alerts = nil
	}
	if err := writeAlertFile(path, append(alerts, alert)); err != nil {
		m.logger.Errorf("write alert file %s: %v", path, err)
	}
}

// Alerts returns persisted alerts, newest first, optionally filtered to
// one severity.
func (m *Monitor) Alerts(severity Severity) ([]AlertRecord, error) {
	if m == nil {
		return nil, errors.New("monitor is not initialized")
	}
	alerts, err := readAlertFile(m.alertsPath())
	if err != nil {
		return nil, fmt.Errorf("read alerts: %w", err)
	}
	if severity != "" {
		filtered := alerts[:0]
		for _, a := range alerts {
			if a.Severity == severity {
				filtered = append(filtered, a)
			}
		}
		alerts = filtered
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].Timestamp.After(alerts[j].Timestamp) })
	return alerts, nil
}

// ClearAlerts empties the alert file.
func (m *Monitor) ClearAlerts() error {
	if m == nil {
		return errors.New("monitor is not initialized")
	}
	if err := writeAlertFile(m.alertsPath(), []AlertRecord{}); err != nil {
		return fmt.Errorf("clear alerts: %w", err)
	}
	m.logger.Printf("alerts cleared")
	return nil
}

// CleanOldLogs removes per-day performance files older than the
// retention window and drops aged-out alerts from the alert file.
func (m *Monitor) CleanOldLogs(ctx context.Context) error {
	if m == nil {
		return errors.New("monitor is not initialized")
	}
	retention := time.Duration(m.cfg.EffectiveRetentionDays()) * 24 * time.Hour
	cutoff := utils.NowUTC().Add(-retention)

	dir := m.logDir()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read log directory: %w", err)
	}
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, perfFilePrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, perfFilePrefix), ".json")
		day, err := time.Parse(perfFileDateFmt, stamp)
		if err != nil {
			continue
		}
		// A file is prunable once its whole day lies before the cutoff.
		if day.Add(24 * time.Hour).Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				return fmt.Errorf("remove %s: %w", name, err)
			}
			removed++
		}
	}

	alerts, err := readAlertFile(m.alertsPath())
	if err != nil {
		return fmt.Errorf("read alerts: %w", err)
	}
	kept := alerts[:0]
	for _, a := range alerts {
		if a.Timestamp.After(cutoff) {
			kept = append(kept, a)
		}
	}
	if len(kept) != len(alerts) {
		if err := writeAlertFile(m.alertsPath(), kept); err != nil {
			return fmt.Errorf("rewrite alerts: %w", err)
		}
	}
	m.logger.Printf("log cleanup removed %d performance files, %d alerts", removed, len(alerts)-len(kept))
	return nil
}

// Fingerprint collapses whitespace and truncates the statement text for
// logging. Literal values stay in place; pattern grouping strips them
// later.
func Fingerprint(query string) string {
	v := spaceRe.ReplaceAllString(strings.TrimSpace(query), " ")
	if len(v) > fingerprintMax {
		v = v[:fingerprintMax]
	}
	return v
}

func formatParameters(args []any) []string {
	if len(args) == 0 {
		return nil
	}
	out := make([]string, len(args))
	for i, a := range args {
		v := fmt.Sprint(a)
		if len(v) > parameterMax {
			v = v[:parameterMax]
		}
		out[i] = v
	}
	return out
}

// isLockedError matches the engine's busy/locked failures regardless of
// which wrapper produced them.
func isLockedError(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "database is locked") ||
		strings.Contains(text, "table is locked") ||
		strings.Contains(text, "busy")
}

func newAlertID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Sprintf("alert-%d", utils.NowUTC().UnixNano())
	}
	return id.String()
}

func readEntryFile(path string) ([]PerformanceLogEntry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []PerformanceLogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return entries, nil
}

func writeEntryFile(path string, entries []PerformanceLogEntry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readAlertFile(path string) ([]AlertRecord, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var alerts []AlertRecord
	if err := json.Unmarshal(data, &alerts); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return alerts, nil
}

func writeAlertFile(path string, alerts []AlertRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(alerts, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
