package migrate

import (
	"database/sql"
)

// AllMigrations returns the campaign-manager schema history. The list is
// append-only: shipped versions are never edited, only extended.
func AllMigrations() Registry {
	return MustRegistry(
		migration1CoreTables(),
		migration2Delivery(),
		migration3Engagement(),
		migration4Metrics(),
	)
}

func execEach(tx *sql.Tx, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// migration1CoreTables creates the tenancy core: agencies, their users
// and their campaigns.
func migration1CoreTables() Migration {
	return Migration{
		Version:     1,
		Description: "core tenancy tables (agencies, users, campaigns)",
		Up: func(tx *sql.Tx) error {
			return execEach(tx,
				`CREATE TABLE IF NOT EXISTS agencies (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL UNIQUE,
					country TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE TABLE IF NOT EXISTS users (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					agency_id INTEGER NOT NULL REFERENCES agencies(id) ON DELETE CASCADE,
					email TEXT NOT NULL UNIQUE,
					full_name TEXT NOT NULL,
					role TEXT NOT NULL DEFAULT 'manager',
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE TABLE IF NOT EXISTS campaigns (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					agency_id INTEGER NOT NULL REFERENCES agencies(id) ON DELETE CASCADE,
					name TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'draft',
					budget_cents INTEGER NOT NULL DEFAULT 0,
					start_date DATE,
					end_date DATE,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (agency_id, name)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_users_agency ON users(agency_id)`,
				`CREATE INDEX IF NOT EXISTS idx_campaigns_agency ON campaigns(agency_id)`,
				`CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status)`,
			)
		},
		Down: func(tx *sql.Tx) error {
			return execEach(tx,
				`DROP TABLE IF EXISTS campaigns`,
				`DROP TABLE IF EXISTS users`,
				`DROP TABLE IF EXISTS agencies`,
			)
		},
	}
}

// migration2Delivery adds the delivery side: channels and the
// publications scheduled on them.
func migration2Delivery() Migration {
	return Migration{
		Version:     2,
		Description: "delivery tables (channels, publications)",
		Up: func(tx *sql.Tx) error {
			return execEach(tx,
				`CREATE TABLE IF NOT EXISTS channels (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL UNIQUE,
					kind TEXT NOT NULL DEFAULT 'social'
				)`,
				`CREATE TABLE IF NOT EXISTS publications (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					campaign_id INTEGER NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
					channel_id INTEGER NOT NULL REFERENCES channels(id),
					title TEXT NOT NULL,
					publish_date DATE,
					state TEXT NOT NULL DEFAULT 'draft',
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (campaign_id, title)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_publications_campaign_date ON publications(campaign_id, publish_date)`,
				`CREATE INDEX IF NOT EXISTS idx_publications_channel ON publications(channel_id)`,
			)
		},
		Down: func(tx *sql.Tx) error {
			return execEach(tx,
				`DROP TABLE IF EXISTS publications`,
				`DROP TABLE IF EXISTS channels`,
			)
		},
	}
}

// migration3Engagement adds tagging and the campaign/channel weighting.
// The join tables predate foreign-key enforcement in the application and
// carry no REFERENCES clauses; the analyzer's orphan scan covers them.
func migration3Engagement() Migration {
	return Migration{
		Version:     3,
		Description: "engagement tables (tags, campaign_tags, campaign_channels)",
		Up: func(tx *sql.Tx) error {
			return execEach(tx,
				`CREATE TABLE IF NOT EXISTS tags (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					label TEXT NOT NULL UNIQUE
				)`,
				`CREATE TABLE IF NOT EXISTS campaign_tags (
					campaign_id INTEGER NOT NULL,
					tag_id INTEGER NOT NULL,
					PRIMARY KEY (campaign_id, tag_id)
				)`,
				`CREATE TABLE IF NOT EXISTS campaign_channels (
					campaign_id INTEGER NOT NULL,
					channel_id INTEGER NOT NULL,
					weight INTEGER NOT NULL DEFAULT 1,
					PRIMARY KEY (campaign_id, channel_id)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_campaign_tags_tag ON campaign_tags(tag_id)`,
			)
		},
		Down: func(tx *sql.Tx) error {
			return execEach(tx,
				`DROP TABLE IF EXISTS campaign_channels`,
				`DROP TABLE IF EXISTS campaign_tags`,
				`DROP TABLE IF EXISTS tags`,
			)
		},
	}
}

// migration4Metrics adds daily per-campaign delivery metrics.
func migration4Metrics() Migration {
	return Migration{
		Version:     4,
		Description: "daily campaign metrics",
		Up: func(tx *sql.Tx) error {
			return execEach(tx,
				`CREATE TABLE IF NOT EXISTS campaign_metrics (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					campaign_id INTEGER NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
					metric_date DATE NOT NULL,
					impressions INTEGER NOT NULL DEFAULT 0,
					clicks INTEGER NOT NULL DEFAULT 0,
					spend_cents INTEGER NOT NULL DEFAULT 0,
					UNIQUE (campaign_id, metric_date)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_campaign_metrics_date ON campaign_metrics(metric_date)`,
			)
		},
		Down: func(tx *sql.Tx) error {
			return execEach(tx,
				`DROP TABLE IF EXISTS campaign_metrics`,
			)
		},
	}
}
