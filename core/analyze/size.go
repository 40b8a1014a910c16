package analyze

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"meridian-cmp/core/store"
)

// sampleRows caps how many rows feed the average-row-size estimate per
// table.
const sampleRows = 100

type tableStat struct {
	name     string
	rowCount int64
	avgRow   float64
}

func (t tableStat) estimated() float64 {
	return float64(t.rowCount) * t.avgRow
}

// Size reports the file footprint and a per-table breakdown with row
// counts and sampled average row sizes, largest estimate first.
func (a *Analyzer) Size(ctx context.Context) (string, error) {
	if a == nil || a.db == nil {
		return "", errors.New("analyzer is not initialized")
	}

	var pageCount, pageSize int64
	if err := a.db.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pageCount); err != nil {
		return "", fmt.Errorf("page_count: %w", err)
	}
	if err := a.db.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize); err != nil {
		return "", fmt.Errorf("page_size: %w", err)
	}
	total := pageCount * pageSize

	tables, err := store.Tables(ctx, a.db)
	if err != nil {
		return "", err
	}

	stats := make([]tableStat, 0, len(tables))
	for _, table := range tables {
		st := tableStat{name: table}
		quoted := store.QuoteIdentifier(table)
		if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+quoted).Scan(&st.rowCount); err != nil {
			return "", fmt.Errorf("count %s: %w", table, err)
		}
		if st.rowCount > 0 {
			avg, err := a.sampleAvgRowSize(ctx, quoted)
			if err != nil {
				return "", fmt.Errorf("sample %s: %w", table, err)
			}
			st.avgRow = avg
		}
		stats = append(stats, st)
	}
	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].estimated() > stats[j].estimated()
	})

	var b strings.Builder
	fmt.Fprintf(&b, "File size: %s (%s pages of %s)\n\n",
		humanize.Bytes(uint64(total)), humanize.Comma(pageCount), humanize.Bytes(uint64(pageSize)))

	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tROWS\tAVG ROW\tEST SIZE")
	for _, st := range stats {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			st.name,
			humanize.Comma(st.rowCount),
			humanize.Bytes(uint64(st.avgRow)),
			humanize.Bytes(uint64(st.estimated())))
	}
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("render size table: %w", err)
	}
	return b.String(), nil
}

// sampleAvgRowSize averages the byte length of column values over the
// first sampleRows rows. The estimate ignores page overhead; it exists
// to rank tables, not to account for bytes.
func (a *Analyzer) sampleAvgRowSize(ctx context.Context, quoted string) (float64, error) {
	rows, err := a.db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %s LIMIT %d`, quoted, sampleRows))
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return 0, err
	}
	raw := make([]sql.RawBytes, len(cols))
	dest := make([]any, len(cols))
	for i := range raw {
		dest[i] = &raw[i]
	}

	var sampled, bytes int64
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return 0, err
		}
		for _, col := range raw {
			bytes += int64(len(col))
		}
		sampled++
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if sampled == 0 {
		return 0, nil
	}
	return float64(bytes) / float64(sampled), nil
}
