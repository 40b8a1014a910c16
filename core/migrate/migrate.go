package migrate

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"
)

// ControlTable records which migrations have been applied. It lives in
// the store itself and is owned exclusively by the Runner.
const ControlTable = "schema_migrations"

// Migration is one versioned schema change. Up and Down run inside a
// transaction owned by the Runner. Authors must keep Down a true inverse
// of Up; the Runner records and replays descriptors but never verifies
// inverseness.
type Migration struct {
	Version     int64
	Description string
	Up          func(tx *sql.Tx) error
	Down        func(tx *sql.Tx) error
}

// Applied is one row of the control table.
type Applied struct {
	Version     int64
	Description string
	AppliedAt   time.Time
}

// ErrInvalidTarget rejects a rollback whose target is not below the
// current version.
var ErrInvalidTarget = errors.New("rollback target must be below the current version")

// MigrationError wraps a failure inside a single migration step. Earlier
// steps of the same run stay committed.
type MigrationError struct {
	Version int64
	Op      string
	Err     error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %d %s failed: %v", e.Version, e.Op, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// Registry is an immutable ordered set of migrations, unique and
// ascending by version.
type Registry struct {
	items []Migration
}

func NewRegistry(migrations ...Migration) (Registry, error) {
	items := make([]Migration, len(migrations))
	copy(items, migrations)
	sort.Slice(items, func(i, j int) bool { return items[i].Version < items[j].Version })
	for i, m := range items {
		if m.Version <= 0 {
			return Registry{}, fmt.Errorf("migration %q: version must be positive, got %d", m.Description, m.Version)
		}
		if m.Up == nil || m.Down == nil {
			return Registry{}, fmt.Errorf("migration %d %q: both up and down are required", m.Version, m.Description)
		}
		if i > 0 && items[i-1].Version == m.Version {
			return Registry{}, fmt.Errorf("duplicate migration version %d", m.Version)
		}
	}
	return Registry{items: items}, nil
}

// MustRegistry panics on an invalid set; used for the compiled-in
// migration history where a bad registry is a programming error.
func MustRegistry(migrations ...Migration) Registry {
	reg, err := NewRegistry(migrations...)
	if err != nil {
		panic(err)
	}
	return reg
}

// All returns the migrations in ascending version order.
func (r Registry) All() []Migration {
	out := make([]Migration, len(r.items))
	copy(out, r.items)
	return out
}

func (r Registry) Len() int { return len(r.items) }

func (r Registry) MaxVersion() int64 {
	if len(r.items) == 0 {
		return 0
	}
	return r.items[len(r.items)-1].Version
}

func (r Registry) byVersion(version int64) (Migration, bool) {
	i := sort.Search(len(r.items), func(i int) bool { return r.items[i].Version >= version })
	if i < len(r.items) && r.items[i].Version == version {
		return r.items[i], true
	}
	return Migration{}, false
}
