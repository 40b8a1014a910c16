package monitoring

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"meridian-cmp/core/utils"
)

const reportTopN = 5

var (
	stringLiteralRe = regexp.MustCompile(`'(?:[^']|'')*'`)
	numberLiteralRe = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
)

// NormalizePattern replaces literal values with placeholders so queries
// differing only in their constants group together.
func NormalizePattern(query string) string {
	v := stringLiteralRe.ReplaceAllString(query, "?")
	v = numberLiteralRe.ReplaceAllString(v, "?")
	return spaceRe.ReplaceAllString(strings.TrimSpace(v), " ")
}

// PerformanceReport aggregates the persisted per-day entries for the
// last `days` days into an operator-readable summary.
func (m *Monitor) PerformanceReport(days int) (string, error) {
	if m == nil {
		return "", errors.New("monitor is not initialized")
	}
	if days <= 0 {
		days = 7
	}
	now := utils.NowUTC()
	var entries []PerformanceLogEntry
	for i := 0; i < days; i++ {
		day := now.AddDate(0, 0, -i)
		dayEntries, err := readEntryFile(m.performancePath(day))
		if err != nil {
			return "", fmt.Errorf("read performance log for %s: %w", day.Format(perfFileDateFmt), err)
		}
		entries = append(entries, dayEntries...)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Performance report, last %d day(s) ending %s\n", days, now.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Recorded queries: %s\n", humanize.Comma(int64(len(entries))))
	if len(entries) == 0 {
		b.WriteString("No activity recorded in this window.\n")
		return b.String(), nil
	}

	slowThreshold := float64(m.cfg.EffectiveSlowQuery()) / float64(time.Millisecond)
	var total float64
	slow := 0
	for _, e := range entries {
		total += e.ExecutionTimeMs
		if e.ExecutionTimeMs > slowThreshold {
			slow++
		}
	}
	fmt.Fprintf(&b, "Mean duration: %.2fms\n", total/float64(len(entries)))
	fmt.Fprintf(&b, "Slow queries (>%.0fms): %d (%.1f%%)\n", slowThreshold, slow, float64(slow)/float64(len(entries))*100)

	slowest := make([]PerformanceLogEntry, len(entries))
	copy(slowest, entries)
	sort.Slice(slowest, func(i, j int) bool { return slowest[i].ExecutionTimeMs > slowest[j].ExecutionTimeMs })
	if len(slowest) > reportTopN {
		slowest = slowest[:reportTopN]
	}
	b.WriteString("\nSlowest queries:\n")
	for i, e := range slowest {
		fmt.Fprintf(&b, "  %d. %.2fms  %s\n", i+1, e.ExecutionTimeMs, e.Query)
	}

	type patternStat struct {
		pattern string
		count   int
		totalMs float64
	}
	byPattern := map[string]*patternStat{}
	for _, e := range entries {
		p := NormalizePattern(e.Query)
		st, ok := byPattern[p]
		if !ok {
			st = &patternStat{pattern: p}
			byPattern[p] = st
		}
		st.count++
		st.totalMs += e.ExecutionTimeMs
	}
	patterns := make([]*patternStat, 0, len(byPattern))
	for _, st := range byPattern {
		patterns = append(patterns, st)
	}
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].count != patterns[j].count {
			return patterns[i].count > patterns[j].count
		}
		return patterns[i].pattern < patterns[j].pattern
	})
	if len(patterns) > reportTopN {
		patterns = patterns[:reportTopN]
	}
	b.WriteString("\nMost frequent patterns:\n")
	for i, st := range patterns {
		fmt.Fprintf(&b, "  %d. %dx avg %.2fms  %s\n", i+1, st.count, st.totalMs/float64(st.count), st.pattern)
	}

	alerts, err := readAlertFile(m.alertsPath())
	if err != nil {
		return "", fmt.Errorf("read alerts: %w", err)
	}
	cutoff := now.AddDate(0, 0, -days)
	counts := map[Severity]int{}
	windowTotal := 0
	for _, a := range alerts {
		if a.Timestamp.After(cutoff) {
			counts[a.Severity]++
			windowTotal++
		}
	}
	fmt.Fprintf(&b, "\nAlerts in window: %d", windowTotal)
	if windowTotal > 0 {
		b.WriteString(" (")
		first := true
		for _, sev := range []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow} {
			if counts[sev] == 0 {
				continue
			}
			if !first {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s: %d", sev, counts[sev])
			first = false
		}
		b.WriteString(")")
	}
	b.WriteString("\n")
	return b.String(), nil
}
