package seed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"meridian-cmp/core/migrate"
	"meridian-cmp/core/store"
	"meridian-cmp/core/utils"
)

// Seed is one idempotent data-population routine. Run must tolerate
// executing again over its own output; nothing records whether a seed
// already ran.
type Seed struct {
	Name        string
	Description string
	Run         func(tx *sql.Tx) error
}

var ErrNotFound = errors.New("seed not found")

// SeedError wraps a failure inside a single seed. Seeds committed
// earlier in the same run stay committed.
type SeedError struct {
	Name string
	Err  error
}

func (e *SeedError) Error() string { return fmt.Sprintf("seed %s failed: %v", e.Name, e.Err) }

func (e *SeedError) Unwrap() error { return e.Err }

// Runner executes seeds and bulk clears against one store handle.
type Runner struct {
	db     *sql.DB
	logger *utils.Logger
}

func NewRunner(db *sql.DB, logger *utils.Logger) *Runner {
	return &Runner{db: db, logger: logger}
}

// RunAll executes the seeds in list order, one transaction each. The
// first failure aborts the remainder.
func (r *Runner) RunAll(ctx context.Context, seeds []Seed) error {
	if r == nil || r.db == nil {
		return errors.New("seed runner is not initialized")
	}
	for _, s := range seeds {
		if err := r.runOne(ctx, s); err != nil {
			return err
		}
	}
	r.logger.Printf("ran %d seeds", len(seeds))
	return nil
}

// RunOne executes exactly one named seed.
func (r *Runner) RunOne(ctx context.Context, seeds []Seed, name string) error {
	if r == nil || r.db == nil {
		return errors.New("seed runner is not initialized")
	}
	for _, s := range seeds {
		if s.Name == name {
			return r.runOne(ctx, s)
		}
	}
	return fmt.Errorf("seed %q: %w", name, ErrNotFound)
}

func (r *Runner) runOne(ctx context.Context, s Seed) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &SeedError{Name: s.Name, Err: err}
	}
	if err := s.Run(tx); err != nil {
		tx.Rollback()
		return &SeedError{Name: s.Name, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &SeedError{Name: s.Name, Err: err}
	}
	r.logger.Printf("seeded %s", s.Name)
	return nil
}

// ClearAll deletes every row from every user table except the migration
// control table. Deletion order is derived from the live foreign-key
// graph, so new tables need no hand-maintained list.
func (r *Runner) ClearAll(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("seed runner is not initialized")
	}
	order, err := store.DeletionOrder(ctx, r.db)
	if err != nil {
		return err
	}
	tables := make([]string, 0, len(order))
	for _, t := range order {
		if t == migrate.ControlTable {
			continue
		}
		tables = append(tables, t)
	}
	return r.clear(ctx, tables)
}

// ClearTables clears a caller-chosen subset. Names are validated against
// the introspected schema; ordering within the subset is the caller's
// responsibility.
func (r *Runner) ClearTables(ctx context.Context, names []string) error {
	if r == nil || r.db == nil {
		return errors.New("seed runner is not initialized")
	}
	for _, n := range names {
		if n == migrate.ControlTable {
			return fmt.Errorf("refusing to clear the migration control table %s", migrate.ControlTable)
		}
	}
	if err := store.ValidateTables(ctx, r.db, names); err != nil {
		return err
	}
	return r.clear(ctx, names)
}

func (r *Runner) clear(ctx context.Context, tables []string) error {
	if len(tables) == 0 {
		return nil
	}
	// The foreign_keys pragma is a no-op inside a transaction, so toggle
	// it on the connection around the delete transaction.
	if _, err := r.db.ExecContext(ctx, `PRAGMA foreign_keys = OFF`); err != nil {
		return fmt.Errorf("disable foreign keys: %w", err)
	}
	defer func() {
		if _, err := r.db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON`); err != nil {
			r.logger.Errorf("re-enable foreign keys: %v", err)
		}
	}()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear: %w", err)
	}
	var total int64
	for _, t := range tables {
		res, err := tx.ExecContext(ctx, `DELETE FROM `+store.QuoteIdentifier(t))
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("clear %s: %w", t, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	var hasSequence int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='sqlite_sequence'`).Scan(&hasSequence); err != nil {
		tx.Rollback()
		return fmt.Errorf("inspect sqlite_sequence: %w", err)
	}
	if hasSequence > 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sqlite_sequence`); err != nil {
			tx.Rollback()
			return fmt.Errorf("reset row id sequences: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear: %w", err)
	}
	r.logger.Printf("cleared %d rows from %d tables", total, len(tables))
	return nil
}
