package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// Tables lists user tables, excluding the engine's internal sqlite_*
// tables. Order is alphabetical.
func Tables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return out, nil
}

// ReferencedTables returns the distinct tables the given table points at
// through its foreign keys, self-references excluded.
func ReferencedTables(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA foreign_key_list(%s)`, QuoteIdentifier(table)))
	if err != nil {
		return nil, fmt.Errorf("foreign keys of %s: %w", table, err)
	}
	defer rows.Close()
	seen := map[string]struct{}{}
	var out []string
	for rows.Next() {
		var (
			id, seq                  int
			refTable, from           string
			to                       sql.NullString
			onUpdate, onDelete, mtch string
		)
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &mtch); err != nil {
			return nil, fmt.Errorf("scan foreign key of %s: %w", table, err)
		}
		if refTable == table {
			continue
		}
		if _, ok := seen[refTable]; ok {
			continue
		}
		seen[refTable] = struct{}{}
		out = append(out, refTable)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("foreign keys of %s: %w", table, err)
	}
	sort.Strings(out)
	return out, nil
}

// DeletionOrder topologically sorts the user tables so that referencing
// tables come before the tables they point at. Deleting rows in this
// order never trips a foreign key. Tables caught in a reference cycle
// are appended alphabetically at the end.
func DeletionOrder(ctx context.Context, db *sql.DB) ([]string, error) {
	tables, err := Tables(ctx, db)
	if err != nil {
		return nil, err
	}
	known := map[string]struct{}{}
	for _, t := range tables {
		known[t] = struct{}{}
	}

	// inbound[p] counts tables that reference p; they must be cleared first.
	inbound := map[string]int{}
	refs := map[string][]string{}
	for _, t := range tables {
		parents, err := ReferencedTables(ctx, db, t)
		if err != nil {
			return nil, err
		}
		for _, p := range parents {
			if _, ok := known[p]; !ok {
				continue
			}
			refs[t] = append(refs[t], p)
			inbound[p]++
		}
	}

	var queue []string
	for _, t := range tables {
		if inbound[t] == 0 {
			queue = append(queue, t)
		}
	}
	sort.Strings(queue)

	order := make([]string, 0, len(tables))
	done := map[string]struct{}{}
	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]
		order = append(order, t)
		done[t] = struct{}{}
		for _, p := range refs[t] {
			inbound[p]--
			if inbound[p] == 0 {
				queue = append(queue, p)
			}
		}
		sort.Strings(queue)
	}

	if len(order) < len(tables) {
		var cyclic []string
		for _, t := range tables {
			if _, ok := done[t]; !ok {
				cyclic = append(cyclic, t)
			}
		}
		sort.Strings(cyclic)
		order = append(order, cyclic...)
	}
	return order, nil
}

// QuoteIdentifier makes a table or column name safe to splice into SQL
// text. Identifiers that do not come from schema introspection must
// still pass ValidateTables first.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ValidateTables checks every name against the introspected table list
// and rejects unknown ones.
func ValidateTables(ctx context.Context, db *sql.DB, names []string) error {
	tables, err := Tables(ctx, db)
	if err != nil {
		return err
	}
	known := map[string]struct{}{}
	for _, t := range tables {
		known[t] = struct{}{}
	}
	var unknown []string
	for _, n := range names {
		if _, ok := known[n]; !ok {
			unknown = append(unknown, n)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("unknown tables: %s", strings.Join(unknown, ", "))
	}
	return nil
}
