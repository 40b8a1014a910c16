package monitoring

import "time"

type AlertType string

const (
	AlertSlowQuery      AlertType = "slow_query"
	AlertHighMemory     AlertType = "high_memory"
	AlertLockTimeout    AlertType = "lock_timeout"
	AlertIntegrityIssue AlertType = "integrity_issue"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for sorting and summaries, low (0) to
// critical (3).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// AlertRecord is one raised alert, appended to the alert file and pruned
// by age.
type AlertRecord struct {
	ID        string         `json:"id"`
	Type      AlertType      `json:"type"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// PerformanceLogEntry is one observed statement execution. Entries live
// in the in-memory buffer for the configured window and in per-day files
// until retention prunes them.
type PerformanceLogEntry struct {
	Timestamp       time.Time `json:"timestamp"`
	Query           string    `json:"query"`
	ExecutionTimeMs float64   `json:"execution_time_ms"`
	RowsAffected    int64     `json:"rows_affected"`
	Parameters      []string  `json:"parameters,omitempty"`
}

// HealthReport is the outcome of one CheckHealth pass. It always comes
// back non-nil; failed probes surface as alerts, not errors.
type HealthReport struct {
	CheckedAt     time.Time `json:"checked_at"`
	QuickCheck    string    `json:"quick_check"`
	FileSizeBytes int64     `json:"file_size_bytes"`
	WALSizeBytes  int64     `json:"wal_size_bytes"`
	WALPages      int64     `json:"wal_pages"`
	HourEntries   int       `json:"hour_entries"`
	HourSlow      int       `json:"hour_slow"`
	HourAvgMs     float64   `json:"hour_avg_ms"`
}
