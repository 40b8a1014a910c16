package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"meridian-cmp/core/utils"
)

// Runner applies and reverts migrations against one store handle,
// tracking state in the control table.
type Runner struct {
	db     *sql.DB
	logger *utils.Logger
}

func NewRunner(db *sql.DB, logger *utils.Logger) *Runner {
	return &Runner{db: db, logger: logger}
}

// Status reports the current version plus applied and pending
// descriptors. Pure read.
type Status struct {
	Current int64
	Applied []Applied
	Pending []Migration
}

func (r *Runner) ensureControlTable(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("migration runner is not initialized")
	}
	_, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+ControlTable+` (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at TIMESTAMP NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("ensure control table: %w", err)
	}
	return nil
}

// CurrentVersion is the highest applied version, 0 for a fresh store.
func (r *Runner) CurrentVersion(ctx context.Context) (int64, error) {
	if err := r.ensureControlTable(ctx); err != nil {
		return 0, err
	}
	var v sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(version) FROM `+ControlTable).Scan(&v); err != nil {
		return 0, fmt.Errorf("read current version: %w", err)
	}
	return v.Int64, nil
}

func (r *Runner) appliedRecords(ctx context.Context) ([]Applied, error) {
	if err := r.ensureControlTable(ctx); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `SELECT version, description, applied_at FROM `+ControlTable+` ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	defer rows.Close()
	var out []Applied
	for rows.Next() {
		var rec Applied
		if err := rows.Scan(&rec.Version, &rec.Description, &rec.AppliedAt); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	return out, nil
}

// Up applies every registered migration with version above the current
// one, up to target. A target of zero or below means the full registry.
// Each migration commits on its own; a failure aborts the run and leaves
// earlier migrations applied.
func (r *Runner) Up(ctx context.Context, reg Registry, target int64) error {
	current, err := r.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	if target <= 0 || target > reg.MaxVersion() {
		target = reg.MaxVersion()
	}
	var pending []Migration
	for _, m := range reg.All() {
		if m.Version > current && m.Version <= target {
			pending = append(pending, m)
		}
	}
	if len(pending) == 0 {
		r.logger.Printf("schema up to date at version %d", current)
		return nil
	}
	for _, m := range pending {
		if err := r.applyOne(ctx, m); err != nil {
			return err
		}
	}
	r.logger.Printf("migrated up to version %d (%d applied)", pending[len(pending)-1].Version, len(pending))
	return nil
}

func (r *Runner) applyOne(ctx context.Context, m Migration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &MigrationError{Version: m.Version, Op: "apply", Err: err}
	}
	if err := m.Up(tx); err != nil {
		tx.Rollback()
		return &MigrationError{Version: m.Version, Op: "apply", Err: err}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO `+ControlTable+` (version, description, applied_at) VALUES (?, ?, ?)`,
		m.Version, m.Description, utils.NowUTC()); err != nil {
		tx.Rollback()
		return &MigrationError{Version: m.Version, Op: "apply", Err: fmt.Errorf("record control row: %w", err)}
	}
	if err := tx.Commit(); err != nil {
		return &MigrationError{Version: m.Version, Op: "apply", Err: err}
	}
	r.logger.Printf("applied migration %d: %s", m.Version, m.Description)
	return nil
}

// Down reverts applied migrations with version above target, newest
// first, with the same per-migration commit discipline as Up. The target
// must lie strictly below the current version.
func (r *Runner) Down(ctx context.Context, reg Registry, target int64) error {
	current, err := r.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	if target < 0 {
		return fmt.Errorf("target %d: %w", target, ErrInvalidTarget)
	}
	if target >= current {
		return fmt.Errorf("target %d with current version %d: %w", target, current, ErrInvalidTarget)
	}
	applied, err := r.appliedRecords(ctx)
	if err != nil {
		return err
	}
	reverted := 0
	for i := len(applied) - 1; i >= 0; i-- {
		rec := applied[i]
		if rec.Version <= target {
			break
		}
		m, ok := reg.byVersion(rec.Version)
		if !ok {
			return &MigrationError{Version: rec.Version, Op: "revert", Err: errors.New("no descriptor in registry")}
		}
		if err := r.revertOne(ctx, m); err != nil {
			return err
		}
		reverted++
	}
	r.logger.Printf("rolled back to version %d (%d reverted)", target, reverted)
	return nil
}

func (r *Runner) revertOne(ctx context.Context, m Migration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &MigrationError{Version: m.Version, Op: "revert", Err: err}
	}
	if err := m.Down(tx); err != nil {
		tx.Rollback()
		return &MigrationError{Version: m.Version, Op: "revert", Err: err}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+ControlTable+` WHERE version = ?`, m.Version); err != nil {
		tx.Rollback()
		return &MigrationError{Version: m.Version, Op: "revert", Err: fmt.Errorf("delete control row: %w", err)}
	}
	if err := tx.Commit(); err != nil {
		return &MigrationError{Version: m.Version, Op: "revert", Err: err}
	}
	r.logger.Printf("reverted migration %d: %s", m.Version, m.Description)
	return nil
}

// Status never mutates; it reads the control table against the registry.
func (r *Runner) Status(ctx context.Context, reg Registry) (*Status, error) {
	applied, err := r.appliedRecords(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[int64]struct{}{}
	var current int64
	for _, rec := range applied {
		seen[rec.Version] = struct{}{}
		if rec.Version > current {
			current = rec.Version
		}
	}
	var pending []Migration
	for _, m := range reg.All() {
		if _, ok := seen[m.Version]; !ok {
			pending = append(pending, m)
		}
	}
	return &Status{Current: current, Applied: applied, Pending: pending}, nil
}

// Reset reverts the whole history. A store with nothing applied is
// left untouched.
func (r *Runner) Reset(ctx context.Context, reg Registry) error {
	current, err := r.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	if current == 0 {
		r.logger.Printf("no applied migrations to revert")
		return nil
	}
	return r.Down(ctx, reg, 0)
}
