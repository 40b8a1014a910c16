package analyze

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"meridian-cmp/core/store"
)

type indexInfo struct {
	name    string
	table   string
	columns []string
}

type indexSuggestion struct {
	name    string
	table   string
	columns string
	reason  string
}

// recommendedIndexes lists the composite and filter indexes the common
// query shapes want. Suggestions already present in the store are
// filtered out by name before reporting.
var recommendedIndexes = []indexSuggestion{
	{
		name:    "idx_campaigns_agency_status",
		table:   "campaigns",
		columns: "agency_id, status",
		reason:  "agency dashboards filter campaigns by agency and status together",
	},
	{
		name:    "idx_publications_state",
		table:   "publications",
		columns: "state",
		reason:  "the scheduler polls publications by state",
	},
	{
		name:    "idx_campaign_channels_channel",
		table:   "campaign_channels",
		columns: "channel_id",
		reason:  "channel pages join campaign_channels from the channel side",
	},
	{
		name:    "idx_campaign_metrics_date",
		table:   "campaign_metrics",
		columns: "metric_date",
		reason:  "spend rollups scan metrics by date range",
	},
	{
		name:    "idx_users_role",
		table:   "users",
		columns: "role",
		reason:  "the user directory filters by role",
	},
}

// IndexUsage inventories existing indexes per table and suggests the
// recommended ones that are missing.
func (a *Analyzer) IndexUsage(ctx context.Context) (string, error) {
	if a == nil || a.db == nil {
		return "", errors.New("analyzer is not initialized")
	}

	indexes, err := a.listIndexes(ctx)
	if err != nil {
		return "", err
	}

	byTable := make(map[string][]indexInfo)
	existing := make(map[string]bool, len(indexes))
	for _, idx := range indexes {
		byTable[idx.table] = append(byTable[idx.table], idx)
		existing[idx.name] = true
	}
	tables := make([]string, 0, len(byTable))
	for table := range byTable {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	var b strings.Builder
	if len(indexes) == 0 {
		b.WriteString("No user indexes defined.\n")
	} else {
		fmt.Fprintf(&b, "%d user index(es):\n", len(indexes))
		for _, table := range tables {
			fmt.Fprintf(&b, "  %s:\n", table)
			for _, idx := range byTable[table] {
				fmt.Fprintf(&b, "    %s (%s)\n", idx.name, strings.Join(idx.columns, ", "))
			}
		}
	}

	var missing []indexSuggestion
	for _, rec := range recommendedIndexes {
		if !existing[rec.name] {
			missing = append(missing, rec)
		}
	}
	if len(missing) == 0 {
		b.WriteString("\nAll recommended indexes are present.\n")
		return b.String(), nil
	}
	fmt.Fprintf(&b, "\n%d recommended index(es) missing:\n", len(missing))
	for _, rec := range missing {
		fmt.Fprintf(&b, "  CREATE INDEX %s ON %s (%s);\n", rec.name, rec.table, rec.columns)
		fmt.Fprintf(&b, "      %s\n", rec.reason)
	}
	return b.String(), nil
}

// listIndexes reads every user index from sqlite_master and resolves
// its column list.
func (a *Analyzer) listIndexes(ctx context.Context) ([]indexInfo, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT name, tbl_name FROM sqlite_master
		 WHERE type = 'index' AND name NOT LIKE 'sqlite_%'
		 ORDER BY tbl_name, name`)
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	defer rows.Close()

	var indexes []indexInfo
	for rows.Next() {
		var idx indexInfo
		if err := rows.Scan(&idx.name, &idx.table); err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}
		indexes = append(indexes, idx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}

	for i := range indexes {
		cols, err := a.indexColumns(ctx, indexes[i].name)
		if err != nil {
			return nil, err
		}
		indexes[i].columns = cols
	}
	return indexes, nil
}

func (a *Analyzer) indexColumns(ctx context.Context, name string) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `PRAGMA index_info(`+store.QuoteIdentifier(name)+`)`)
	if err != nil {
		return nil, fmt.Errorf("index_info %s: %w", name, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var seq, cid int
		var col sql.NullString
		if err := rows.Scan(&seq, &cid, &col); err != nil {
			return nil, fmt.Errorf("scan index_info %s: %w", name, err)
		}
		if col.Valid {
			cols = append(cols, col.String)
		} else {
			// Expression or rowid member.
			cols = append(cols, "<expr>")
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index_info %s: %w", name, err)
	}
	return cols, nil
}
