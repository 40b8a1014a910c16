// Package analyze inspects the store without ever mutating it: query
// plans, index coverage, integrity passes and size reporting.
package analyze

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"meridian-cmp/core/monitoring"
	"meridian-cmp/core/store"
	"meridian-cmp/core/utils"
)

type IssueType string

const (
	IssueForeignKey        IssueType = "foreign_key"
	IssueConstraint        IssueType = "constraint"
	IssueOrphanedRecord    IssueType = "orphaned_record"
	IssueDataInconsistency IssueType = "data_inconsistency"
)

// Issue is one integrity finding. Issues are produced fresh on every
// run and never persisted.
type Issue struct {
	Type        IssueType
	Table       string
	Description string
	Severity    monitoring.Severity
	Suggestion  string
}

type Analyzer struct {
	db     *sql.DB
	logger *utils.Logger
}

func NewAnalyzer(db *sql.DB, logger *utils.Logger) *Analyzer {
	return &Analyzer{db: db, logger: logger}
}

// Complete runs every analysis in a fixed order and concatenates the
// reports: size, index usage, query plans, then integrity.
func (a *Analyzer) Complete(ctx context.Context) (string, error) {
	if a == nil || a.db == nil {
		return "", errors.New("analyzer is not initialized")
	}
	var b strings.Builder

	size, err := a.Size(ctx)
	if err != nil {
		return "", err
	}
	b.WriteString(section("DATABASE SIZE"))
	b.WriteString(size)

	indexes, err := a.IndexUsage(ctx)
	if err != nil {
		return "", err
	}
	b.WriteString(section("INDEX USAGE"))
	b.WriteString(indexes)

	performance, err := a.Performance(ctx)
	if err != nil {
		return "", err
	}
	b.WriteString(section("QUERY PLANS"))
	b.WriteString(performance)

	issues, err := a.Integrity(ctx)
	if err != nil {
		return "", err
	}
	b.WriteString(section("INTEGRITY"))
	b.WriteString(FormatIssues(issues))

	return b.String(), nil
}

// FormatIssues renders integrity findings for the operator, worst
// first.
func FormatIssues(issues []Issue) string {
	if len(issues) == 0 {
		return "No integrity issues found.\n"
	}
	sorted := make([]Issue, len(issues))
	copy(sorted, issues)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Severity.Rank() > sorted[j].Severity.Rank()
	})
	var b strings.Builder
	fmt.Fprintf(&b, "%d issue(s) found:\n", len(sorted))
	for _, issue := range sorted {
		table := issue.Table
		if table == "" {
			table = "-"
		}
		fmt.Fprintf(&b, "  [%s] %s (%s): %s\n", issue.Severity, issue.Type, table, issue.Description)
		if issue.Suggestion != "" {
			fmt.Fprintf(&b, "      suggestion: %s\n", issue.Suggestion)
		}
	}
	return b.String()
}

func section(title string) string {
	return fmt.Sprintf("\n=== %s ===\n", title)
}

// tableSet snapshots which user tables exist, so schema-specific checks
// can skip tables a partially migrated store does not have yet.
func (a *Analyzer) tableSet(ctx context.Context) (map[string]bool, error) {
	tables, err := store.Tables(ctx, a.db)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(tables))
	for _, t := range tables {
		set[t] = true
	}
	return set, nil
}
