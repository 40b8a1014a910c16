package backups

import (
	"context"
	"database/sql"
)

// entityCounts snapshots headline row counts into the sidecar so an
// operator can tell what a backup held without opening it. Missing
// tables (a store older than the full schema) are simply skipped.
func (s *Service) entityCounts(ctx context.Context) map[string]int64 {
	out := map[string]int64{}
	if s == nil || s.db == nil {
		return out
	}
	s.addCount(ctx, out, "agencies", `SELECT COUNT(*) FROM agencies`)
	s.addCount(ctx, out, "users", `SELECT COUNT(*) FROM users`)
	s.addCount(ctx, out, "campaigns", `SELECT COUNT(*) FROM campaigns`)
	s.addCount(ctx, out, "publications", `SELECT COUNT(*) FROM publications`)
	return out
}

func (s *Service) addCount(ctx context.Context, out map[string]int64, key, query string) {
	if out == nil || key == "" || query == "" {
		return
	}
	if n, err := s.queryCount(ctx, query); err == nil {
		out[key] = n
	}
}

func (s *Service) queryCount(ctx context.Context, query string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, sql.ErrConnDone
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
