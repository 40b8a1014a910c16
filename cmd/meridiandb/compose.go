package main

import (
	"database/sql"

	"meridian-cmp/config"
	"meridian-cmp/core/analyze"
	"meridian-cmp/core/backups"
	"meridian-cmp/core/migrate"
	"meridian-cmp/core/monitoring"
	"meridian-cmp/core/seed"
	"meridian-cmp/core/store"
	"meridian-cmp/core/utils"
)

// runtime wires every component around one store handle. Components
// never call each other; commands pick what they need.
type runtime struct {
	cfg      *config.AppConfig
	db       *sql.DB
	logger   *utils.Logger
	migrator *migrate.Runner
	seeder   *seed.Runner
	backups  *backups.Service
	monitor  *monitoring.Monitor
	analyzer *analyze.Analyzer
}

func composeRuntime(cfg *config.AppConfig, logger *utils.Logger) (*runtime, error) {
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &runtime{
		cfg:      cfg,
		db:       db,
		logger:   logger,
		migrator: migrate.NewRunner(db, logger),
		seeder:   seed.NewRunner(db, logger),
		backups:  backups.NewService(cfg, db, logger),
		monitor:  monitoring.NewMonitor(cfg, db, logger),
		analyzer: analyze.NewAnalyzer(db, logger),
	}, nil
}

// adoptDB swaps the retained handle after a restore. The previous handle
// is closed by then; restore is the last store operation of its command.
func (rt *runtime) adoptDB(db *sql.DB) {
	rt.db = db
}

func (rt *runtime) close() {
	if rt == nil || rt.db == nil {
		return
	}
	if err := rt.db.Close(); err != nil {
		rt.logger.Warnf("close store: %v", err)
	}
}
