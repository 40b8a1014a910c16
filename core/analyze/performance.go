package analyze

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

type namedQuery struct {
	name string
	sql  string
}

// representativeQueries are the shapes the application leans on most.
// They run under EXPLAIN QUERY PLAN only, so placeholder literals never
// touch real rows.
var representativeQueries = []namedQuery{
	{
		name: "active campaigns for an agency",
		sql: `SELECT id, name, budget_cents FROM campaigns
		      WHERE agency_id = 1 AND status = 'active' ORDER BY name`,
	},
	{
		name: "campaign publication schedule",
		sql: `SELECT p.title, p.publish_date, c.name FROM publications p
		      JOIN campaigns c ON c.id = p.campaign_id
		      WHERE p.campaign_id = 1 ORDER BY p.publish_date`,
	},
	{
		name: "scheduled publications backlog",
		sql: `SELECT id, title, publish_date FROM publications
		      WHERE state = 'scheduled' ORDER BY publish_date LIMIT 20`,
	},
	{
		name: "campaign spend rollup",
		sql: `SELECT campaign_id, SUM(spend_cents), SUM(impressions), SUM(clicks)
		      FROM campaign_metrics WHERE metric_date >= '2026-01-01'
		      GROUP BY campaign_id`,
	},
	{
		name: "agency user directory",
		sql: `SELECT email, full_name, role FROM users
		      WHERE agency_id = 1 ORDER BY full_name`,
	},
	{
		name: "tagged campaign lookup",
		sql: `SELECT c.id, c.name FROM campaigns c
		      JOIN campaign_tags ct ON ct.campaign_id = c.id
		      JOIN tags t ON t.id = ct.tag_id
		      WHERE t.label = 'seasonal'`,
	},
}

// Performance explains every representative query and reports the plan
// lines. A query that fails to plan (for example against a store behind
// the full schema) is reported inline; the remaining queries still run.
func (a *Analyzer) Performance(ctx context.Context) (string, error) {
	if a == nil || a.db == nil {
		return "", errors.New("analyzer is not initialized")
	}

	var b strings.Builder
	fullScans := map[string]bool{}
	for _, q := range representativeQueries {
		fmt.Fprintf(&b, "%s:\n", q.name)
		plan, err := a.explain(ctx, q.sql)
		if err != nil {
			fmt.Fprintf(&b, "  plan unavailable: %v\n", err)
			continue
		}
		for _, line := range plan {
			fmt.Fprintf(&b, "  %s\n", line)
			if table, ok := scannedTable(line); ok {
				fullScans[table] = true
			}
		}
	}

	if len(fullScans) > 0 {
		tables := make([]string, 0, len(fullScans))
		for table := range fullScans {
			tables = append(tables, table)
		}
		sort.Strings(tables)
		fmt.Fprintf(&b, "\nFull table scan(s) on: %s. See the index report for candidates.\n",
			strings.Join(tables, ", "))
	} else {
		b.WriteString("\nAll representative queries use an index.\n")
	}
	return b.String(), nil
}

// explain returns the detail column of EXPLAIN QUERY PLAN, one line per
// plan node.
func (a *Analyzer) explain(ctx context.Context, query string) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, "EXPLAIN QUERY PLAN "+query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plan []string
	for rows.Next() {
		var id, parent, notused int
		var detail string
		if err := rows.Scan(&id, &parent, &notused, &detail); err != nil {
			return nil, err
		}
		plan = append(plan, detail)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return plan, nil
}

// scannedTable extracts the table name from a full-scan plan node.
// Index-backed nodes read SEARCH or SCAN ... USING INDEX and are not
// full scans.
func scannedTable(detail string) (string, bool) {
	if !strings.HasPrefix(detail, "SCAN ") || strings.Contains(detail, "USING") {
		return "", false
	}
	rest := strings.TrimPrefix(detail, "SCAN ")
	if name, _, found := strings.Cut(rest, " "); found {
		return name, true
	}
	return rest, rest != ""
}
