package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"meridian-cmp/config"
	"meridian-cmp/core/utils"
)

const defaultDBPath = "data/meridian.db"

// NewDB opens the application store at the configured path, creating
// parent directories as needed. The pool is pinned to one connection so
// session pragmas and foreign-key toggles apply to every statement.
func NewDB(cfg *config.AppConfig, logger *utils.Logger) (*sql.DB, error) {
	path := defaultDBPath
	if cfg != nil && strings.TrimSpace(cfg.DBPath) != "" {
		path = strings.TrimSpace(cfg.DBPath)
	}
	db, err := OpenAt(path)
	if err != nil {
		return nil, err
	}
	logger.Printf("store ready at %s", path)
	return db, nil
}

// OpenAt opens a read-write handle with WAL journaling, enforced foreign
// keys and a busy timeout.
func OpenAt(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping store %s: %w", path, err)
	}
	return db, nil
}

// OpenReadOnly opens an isolated read-only handle, used to inspect
// backup copies without touching the live store.
func OpenReadOnly(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open read-only %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping read-only %s: %w", path, err)
	}
	return db, nil
}
