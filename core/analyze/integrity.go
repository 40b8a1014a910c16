package analyze

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"meridian-cmp/core/monitoring"
)

// Integrity runs four passes over the store and returns everything it
// found. All four passes always run; a finding never stops the scan.
func (a *Analyzer) Integrity(ctx context.Context) ([]Issue, error) {
	if a == nil || a.db == nil {
		return nil, errors.New("analyzer is not initialized")
	}
	issues := []Issue{}

	structural, err := a.structuralCheck(ctx)
	if err != nil {
		return nil, err
	}
	issues = append(issues, structural...)

	fk, err := a.foreignKeyCheck(ctx)
	if err != nil {
		return nil, err
	}
	issues = append(issues, fk...)

	present, err := a.tableSet(ctx)
	if err != nil {
		return nil, err
	}

	rules, err := a.businessRules(ctx, present)
	if err != nil {
		return nil, err
	}
	issues = append(issues, rules...)

	orphans, err := a.orphanScan(ctx, present)
	if err != nil {
		return nil, err
	}
	issues = append(issues, orphans...)

	a.logger.Printf("integrity scan finished: %d issue(s)", len(issues))
	return issues, nil
}

// structuralCheck surfaces the engine's own integrity_check findings.
func (a *Analyzer) structuralCheck(ctx context.Context) ([]Issue, error) {
	rows, err := a.db.QueryContext(ctx, `PRAGMA integrity_check`)
	if err != nil {
		return nil, fmt.Errorf("integrity_check: %w", err)
	}
	defer rows.Close()
	var issues []Issue
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("scan integrity_check: %w", err)
		}
		if strings.EqualFold(line, "ok") {
			continue
		}
		issues = append(issues, Issue{
			Type:        IssueConstraint,
			Description: line,
			Severity:    monitoring.SeverityCritical,
			Suggestion:  "restore the most recent verified backup",
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("integrity_check: %w", err)
	}
	return issues, nil
}

// foreignKeyCheck lists rows whose declared references no longer
// resolve.
func (a *Analyzer) foreignKeyCheck(ctx context.Context) ([]Issue, error) {
	rows, err := a.db.QueryContext(ctx, `PRAGMA foreign_key_check`)
	if err != nil {
		return nil, fmt.Errorf("foreign_key_check: %w", err)
	}
	defer rows.Close()
	var issues []Issue
	for rows.Next() {
		var (
			table, parent string
			rowid         sql.NullInt64
			fkIndex       int
		)
		if err := rows.Scan(&table, &rowid, &parent, &fkIndex); err != nil {
			return nil, fmt.Errorf("scan foreign_key_check: %w", err)
		}
		desc := fmt.Sprintf("references a missing %s row", parent)
		if rowid.Valid {
			desc = fmt.Sprintf("rowid %d references a missing %s row", rowid.Int64, parent)
		}
		issues = append(issues, Issue{
			Type:        IssueForeignKey,
			Table:       table,
			Description: desc,
			Severity:    monitoring.SeverityHigh,
			Suggestion:  fmt.Sprintf("delete the row or restore the referenced %s row", parent),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("foreign_key_check: %w", err)
	}
	return issues, nil
}

// businessRules checks domain invariants the schema cannot express.
// Rules whose tables are absent (a store behind the full schema) are
// skipped.
func (a *Analyzer) businessRules(ctx context.Context, present map[string]bool) ([]Issue, error) {
	var issues []Issue

	if present["campaigns"] {
		rows, err := a.db.QueryContext(ctx,
			`SELECT id, name FROM campaigns
			 WHERE start_date IS NOT NULL AND end_date IS NOT NULL AND start_date > end_date`)
		if err != nil {
			return nil, fmt.Errorf("campaign date check: %w", err)
		}
		issues, err = collectRowIssues(rows, issues, func(id int64, name string) Issue {
			return Issue{
				Type:        IssueDataInconsistency,
				Table:       "campaigns",
				Description: fmt.Sprintf("campaign %d (%s) starts after it ends", id, name),
				Severity:    monitoring.SeverityMedium,
				Suggestion:  "swap or correct start_date and end_date",
			}
		})
		if err != nil {
			return nil, err
		}

		rows, err = a.db.QueryContext(ctx, `SELECT id, name FROM campaigns WHERE budget_cents < 0`)
		if err != nil {
			return nil, fmt.Errorf("campaign budget check: %w", err)
		}
		issues, err = collectRowIssues(rows, issues, func(id int64, name string) Issue {
			return Issue{
				Type:        IssueDataInconsistency,
				Table:       "campaigns",
				Description: fmt.Sprintf("campaign %d (%s) has a negative budget", id, name),
				Severity:    monitoring.SeverityLow,
				Suggestion:  "reset the budget to zero or the intended amount",
			}
		})
		if err != nil {
			return nil, err
		}
	}

	if present["publications"] && present["campaigns"] {
		rows, err := a.db.QueryContext(ctx,
			`SELECT p.id, p.title FROM publications p
			 JOIN campaigns c ON c.id = p.campaign_id
			 WHERE p.publish_date IS NOT NULL
			   AND ((c.start_date IS NOT NULL AND p.publish_date < c.start_date)
			     OR (c.end_date IS NOT NULL AND p.publish_date > c.end_date))`)
		if err != nil {
			return nil, fmt.Errorf("publication window check: %w", err)
		}
		issues, err = collectRowIssues(rows, issues, func(id int64, title string) Issue {
			return Issue{
				Type:        IssueDataInconsistency,
				Table:       "publications",
				Description: fmt.Sprintf("publication %d (%s) is scheduled outside its campaign's date range", id, title),
				Severity:    monitoring.SeverityMedium,
				Suggestion:  "move the publish date inside the campaign window or extend the campaign",
			}
		})
		if err != nil {
			return nil, err
		}
	}

	return issues, nil
}

// orphanScan covers the join tables that predate foreign-key
// enforcement and can hold rows pointing at deleted records.
func (a *Analyzer) orphanScan(ctx context.Context, present map[string]bool) ([]Issue, error) {
	var issues []Issue

	if present["campaign_tags"] && present["campaigns"] && present["tags"] {
		rows, err := a.db.QueryContext(ctx,
			`SELECT ct.campaign_id, ct.tag_id FROM campaign_tags ct
			 LEFT JOIN campaigns c ON c.id = ct.campaign_id
			 LEFT JOIN tags t ON t.id = ct.tag_id
			 WHERE c.id IS NULL OR t.id IS NULL`)
		if err != nil {
			return nil, fmt.Errorf("campaign_tags orphan scan: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var campaignID, tagID int64
			if err := rows.Scan(&campaignID, &tagID); err != nil {
				return nil, fmt.Errorf("scan campaign_tags orphan: %w", err)
			}
			issues = append(issues, Issue{
				Type:        IssueOrphanedRecord,
				Table:       "campaign_tags",
				Description: fmt.Sprintf("link (campaign %d, tag %d) points at a deleted row", campaignID, tagID),
				Severity:    monitoring.SeverityMedium,
				Suggestion:  fmt.Sprintf("DELETE FROM campaign_tags WHERE campaign_id = %d AND tag_id = %d", campaignID, tagID),
			})
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("campaign_tags orphan scan: %w", err)
		}
	}

	if present["campaign_channels"] && present["campaigns"] && present["channels"] {
		rows, err := a.db.QueryContext(ctx,
			`SELECT cc.campaign_id, cc.channel_id FROM campaign_channels cc
			 LEFT JOIN campaigns c ON c.id = cc.campaign_id
			 LEFT JOIN channels ch ON ch.id = cc.channel_id
			 WHERE c.id IS NULL OR ch.id IS NULL`)
		if err != nil {
			return nil, fmt.Errorf("campaign_channels orphan scan: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var campaignID, channelID int64
			if err := rows.Scan(&campaignID, &channelID); err != nil {
				return nil, fmt.Errorf("scan campaign_channels orphan: %w", err)
			}
			issues = append(issues, Issue{
				Type:        IssueOrphanedRecord,
				Table:       "campaign_channels",
				Description: fmt.Sprintf("link (campaign %d, channel %d) points at a deleted row", campaignID, channelID),
				Severity:    monitoring.SeverityMedium,
				Suggestion:  fmt.Sprintf("DELETE FROM campaign_channels WHERE campaign_id = %d AND channel_id = %d", campaignID, channelID),
			})
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("campaign_channels orphan scan: %w", err)
		}
	}

	return issues, nil
}

// collectRowIssues drains (id, text) rows into issues via build.
func collectRowIssues(rows *sql.Rows, issues []Issue, build func(int64, string) Issue) ([]Issue, error) {
	defer rows.Close()
	for rows.Next() {
		var id int64
		var text string
		if err := rows.Scan(&id, &text); err != nil {
			return nil, fmt.Errorf("scan integrity row: %w", err)
		}
		issues = append(issues, build(id, text))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("integrity rows: %w", err)
	}
	return issues, nil
}
