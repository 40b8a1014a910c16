package analyze

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"meridian-cmp/core/migrate"
	"meridian-cmp/core/monitoring"
	"meridian-cmp/core/utils"
)

func newAnalyzerDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	if err := migrate.NewRunner(db, utils.NewLogger()).Up(context.Background(), migrate.AllMigrations(), 0); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func mustExec(t *testing.T, db *sql.DB, stmt string, args ...any) {
	t.Helper()
	if _, err := db.Exec(stmt, args...); err != nil {
		t.Fatalf("exec %q: %v", stmt, err)
	}
}

func issuesOf(issues []Issue, typ IssueType) []Issue {
	var out []Issue
	for _, issue := range issues {
		if issue.Type == typ {
			out = append(out, issue)
		}
	}
	return out
}

func TestIntegrityCleanStore(t *testing.T) {
	db := newAnalyzerDB(t)
	a := NewAnalyzer(db, utils.NewLogger())

	issues, err := a.Integrity(context.Background())
	if err != nil {
		t.Fatalf("integrity: %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("expected no issues on a fresh store, got %v", issues)
	}
}

func TestIntegrityFlagsReversedCampaignDates(t *testing.T) {
	db := newAnalyzerDB(t)
	mustExec(t, db, `INSERT INTO agencies (name) VALUES ('Northlight')`)
	mustExec(t, db,
		`INSERT INTO campaigns (agency_id, name, status, start_date, end_date)
		 VALUES (1, 'Backwards Launch', 'active', '2026-06-30', '2026-06-01')`)

	a := NewAnalyzer(db, utils.NewLogger())
	issues, err := a.Integrity(context.Background())
	if err != nil {
		t.Fatalf("integrity: %v", err)
	}
	found := issuesOf(issues, IssueDataInconsistency)
	if len(found) != 1 {
		t.Fatalf("expected 1 data_inconsistency issue, got %d (%v)", len(found), issues)
	}
	got := found[0]
	if got.Table != "campaigns" {
		t.Fatalf("issue table = %q, want campaigns", got.Table)
	}
	if got.Severity != monitoring.SeverityMedium {
		t.Fatalf("issue severity = %q, want medium", got.Severity)
	}
	if !strings.Contains(got.Description, "Backwards Launch") {
		t.Fatalf("description should name the campaign, got %q", got.Description)
	}
}

func TestIntegrityFlagsPublicationOutsideWindow(t *testing.T) {
	db := newAnalyzerDB(t)
	mustExec(t, db, `INSERT INTO agencies (name) VALUES ('Northlight')`)
	mustExec(t, db,
		`INSERT INTO campaigns (agency_id, name, status, start_date, end_date)
		 VALUES (1, 'January Push', 'active', '2026-01-01', '2026-01-31')`)
	mustExec(t, db, `INSERT INTO channels (name, kind) VALUES ('Newsletter', 'email')`)
	mustExec(t, db,
		`INSERT INTO publications (campaign_id, channel_id, title, publish_date, state)
		 VALUES (1, 1, 'Late Teaser', '2026-03-15', 'scheduled')`)

	a := NewAnalyzer(db, utils.NewLogger())
	issues, err := a.Integrity(context.Background())
	if err != nil {
		t.Fatalf("integrity: %v", err)
	}
	found := issuesOf(issues, IssueDataInconsistency)
	if len(found) != 1 {
		t.Fatalf("expected 1 data_inconsistency issue, got %d (%v)", len(found), issues)
	}
	if found[0].Table != "publications" {
		t.Fatalf("issue table = %q, want publications", found[0].Table)
	}
	if found[0].Severity != monitoring.SeverityMedium {
		t.Fatalf("issue severity = %q, want medium", found[0].Severity)
	}
}

func TestIntegrityFindsOrphanedLinks(t *testing.T) {
	db := newAnalyzerDB(t)
	// The join tables carry no foreign keys, so bad links insert
	// cleanly and only the scan can find them.
	mustExec(t, db, `INSERT INTO campaign_tags (campaign_id, tag_id) VALUES (999, 888)`)
	mustExec(t, db, `INSERT INTO campaign_channels (campaign_id, channel_id, weight) VALUES (777, 666, 1)`)

	a := NewAnalyzer(db, utils.NewLogger())
	issues, err := a.Integrity(context.Background())
	if err != nil {
		t.Fatalf("integrity: %v", err)
	}
	found := issuesOf(issues, IssueOrphanedRecord)
	if len(found) != 2 {
		t.Fatalf("expected 2 orphaned_record issues, got %d (%v)", len(found), issues)
	}
	tables := map[string]bool{}
	for _, issue := range found {
		tables[issue.Table] = true
		if issue.Severity != monitoring.SeverityMedium {
			t.Fatalf("orphan severity = %q, want medium", issue.Severity)
		}
		if !strings.HasPrefix(issue.Suggestion, "DELETE FROM ") {
			t.Fatalf("orphan suggestion should be a delete statement, got %q", issue.Suggestion)
		}
	}
	if !tables["campaign_tags"] || !tables["campaign_channels"] {
		t.Fatalf("expected orphans in both join tables, got %v", tables)
	}
}

func TestSizeReportListsTables(t *testing.T) {
	db := newAnalyzerDB(t)
	for i := 0; i < 50; i++ {
		mustExec(t, db, `INSERT INTO agencies (name, country) VALUES (?, 'NO')`,
			fmt.Sprintf("Northlight Office %02d", i))
	}

	a := NewAnalyzer(db, utils.NewLogger())
	out, err := a.Size(context.Background())
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if !strings.Contains(out, "File size:") {
		t.Fatalf("size report missing header:\n%s", out)
	}
	if !strings.Contains(out, "agencies") || !strings.Contains(out, "campaigns") {
		t.Fatalf("size report missing tables:\n%s", out)
	}
	// The dominant table must rank first in the breakdown.
	lines := strings.Split(out, "\n")
	var firstRow string
	for i, line := range lines {
		if strings.HasPrefix(line, "TABLE") && i+1 < len(lines) {
			firstRow = lines[i+1]
			break
		}
	}
	if !strings.HasPrefix(firstRow, "agencies") {
		t.Fatalf("expected agencies first in breakdown, got %q", firstRow)
	}
}

func TestIndexUsageSuggestsMissingIndexes(t *testing.T) {
	db := newAnalyzerDB(t)
	a := NewAnalyzer(db, utils.NewLogger())

	out, err := a.IndexUsage(context.Background())
	if err != nil {
		t.Fatalf("index usage: %v", err)
	}
	if !strings.Contains(out, "idx_campaigns_agency") {
		t.Fatalf("inventory should list existing indexes:\n%s", out)
	}
	if !strings.Contains(out, "CREATE INDEX idx_campaigns_agency_status") {
		t.Fatalf("expected idx_campaigns_agency_status suggestion:\n%s", out)
	}
	// The schema already ships this one; it must not be re-suggested.
	if strings.Contains(out, "CREATE INDEX idx_campaign_metrics_date") {
		t.Fatalf("idx_campaign_metrics_date exists and must not be suggested:\n%s", out)
	}
}

func TestIndexUsageSuggestionDisappearsOnceCreated(t *testing.T) {
	db := newAnalyzerDB(t)
	mustExec(t, db, `CREATE INDEX idx_publications_state ON publications(state)`)

	a := NewAnalyzer(db, utils.NewLogger())
	out, err := a.IndexUsage(context.Background())
	if err != nil {
		t.Fatalf("index usage: %v", err)
	}
	if strings.Contains(out, "CREATE INDEX idx_publications_state") {
		t.Fatalf("created index still suggested:\n%s", out)
	}
	if !strings.Contains(out, "idx_publications_state (state)") {
		t.Fatalf("created index missing from inventory:\n%s", out)
	}
}

func TestPerformanceExplainsEveryQuery(t *testing.T) {
	db := newAnalyzerDB(t)
	a := NewAnalyzer(db, utils.NewLogger())

	out, err := a.Performance(context.Background())
	if err != nil {
		t.Fatalf("performance: %v", err)
	}
	for _, q := range representativeQueries {
		if !strings.Contains(out, q.name+":") {
			t.Fatalf("report missing query %q:\n%s", q.name, out)
		}
	}
	if strings.Contains(out, "plan unavailable") {
		t.Fatalf("all queries should plan against the full schema:\n%s", out)
	}
}

func TestPerformanceReportsMissingTablesInline(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	a := NewAnalyzer(db, utils.NewLogger())
	out, err := a.Performance(context.Background())
	if err != nil {
		t.Fatalf("performance should not fail on an empty store: %v", err)
	}
	if !strings.Contains(out, "plan unavailable") {
		t.Fatalf("expected inline plan failures on an empty store:\n%s", out)
	}
}

func TestCompleteComposesAllSections(t *testing.T) {
	db := newAnalyzerDB(t)
	a := NewAnalyzer(db, utils.NewLogger())

	out, err := a.Complete(context.Background())
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	for _, banner := range []string{
		"=== DATABASE SIZE ===",
		"=== INDEX USAGE ===",
		"=== QUERY PLANS ===",
		"=== INTEGRITY ===",
	} {
		if !strings.Contains(out, banner) {
			t.Fatalf("complete report missing %q:\n%s", banner, out)
		}
	}
	if !strings.Contains(out, "No integrity issues found.") {
		t.Fatalf("fresh store should be clean:\n%s", out)
	}
}

func TestFormatIssuesRendersWorstFirst(t *testing.T) {
	out := FormatIssues([]Issue{
		{Type: IssueDataInconsistency, Table: "campaigns", Description: "minor", Severity: monitoring.SeverityLow},
		{Type: IssueConstraint, Description: "page corruption", Severity: monitoring.SeverityCritical, Suggestion: "restore a backup"},
	})
	critical := strings.Index(out, "page corruption")
	low := strings.Index(out, "minor")
	if critical < 0 || low < 0 {
		t.Fatalf("issues missing from output:\n%s", out)
	}
	if critical > low {
		t.Fatalf("critical issue should render before low:\n%s", out)
	}
	if !strings.Contains(out, "suggestion: restore a backup") {
		t.Fatalf("suggestion line missing:\n%s", out)
	}
	if !strings.Contains(out, "(-)") {
		t.Fatalf("empty table should render as -:\n%s", out)
	}
}
