package seed

import "database/sql"

// AllSeeds returns the demo dataset in dependency order. Seeds insert
// against natural keys, so a re-run changes nothing.
func AllSeeds() []Seed {
	return []Seed{
		seedAgencies(),
		seedUsers(),
		seedChannels(),
		seedCampaigns(),
		seedPublications(),
		seedTags(),
		seedMetrics(),
	}
}

func execEach(tx *sql.Tx, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func seedAgencies() Seed {
	return Seed{
		Name:        "agencies",
		Description: "demo agencies",
		Run: func(tx *sql.Tx) error {
			return execEach(tx,
				`INSERT OR IGNORE INTO agencies (name, country) VALUES
					('Northwind Media', 'PT'),
					('Bluepeak Group', 'DE'),
					('Harbor & Lane', 'US')`,
			)
		},
	}
}

func seedUsers() Seed {
	return Seed{
		Name:        "users",
		Description: "demo users per agency",
		Run: func(tx *sql.Tx) error {
			return execEach(tx,
				`INSERT OR IGNORE INTO users (agency_id, email, full_name, role)
					SELECT id, 'ana.martins@northwind.example', 'Ana Martins', 'owner' FROM agencies WHERE name = 'Northwind Media'`,
				`INSERT OR IGNORE INTO users (agency_id, email, full_name, role)
					SELECT id, 'joao.pires@northwind.example', 'Joao Pires', 'manager' FROM agencies WHERE name = 'Northwind Media'`,
				`INSERT OR IGNORE INTO users (agency_id, email, full_name, role)
					SELECT id, 'lena.vogel@bluepeak.example', 'Lena Vogel', 'owner' FROM agencies WHERE name = 'Bluepeak Group'`,
				`INSERT OR IGNORE INTO users (agency_id, email, full_name, role)
					SELECT id, 'sam.ortiz@harborlane.example', 'Sam Ortiz', 'owner' FROM agencies WHERE name = 'Harbor & Lane'`,
				`INSERT OR IGNORE INTO users (agency_id, email, full_name, role)
					SELECT id, 'dana.kim@harborlane.example', 'Dana Kim', 'analyst' FROM agencies WHERE name = 'Harbor & Lane'`,
			)
		},
	}
}

func seedChannels() Seed {
	return Seed{
		Name:        "channels",
		Description: "delivery channels",
		Run: func(tx *sql.Tx) error {
			return execEach(tx,
				`INSERT OR IGNORE INTO channels (name, kind) VALUES
					('instagram', 'social'),
					('newsletter', 'email'),
					('company blog', 'web'),
					('billboard network', 'ooh')`,
			)
		},
	}
}

func seedCampaigns() Seed {
	return Seed{
		Name:        "campaigns",
		Description: "demo campaigns with budgets and date ranges",
		Run: func(tx *sql.Tx) error {
			return execEach(tx,
				`INSERT OR IGNORE INTO campaigns (agency_id, name, status, budget_cents, start_date, end_date)
					SELECT id, 'Spring Launch', 'active', 1500000, '2025-03-01', '2025-05-31' FROM agencies WHERE name = 'Northwind Media'`,
				`INSERT OR IGNORE INTO campaigns (agency_id, name, status, budget_cents, start_date, end_date)
					SELECT id, 'Summer Splash', 'draft', 900000, '2025-06-15', '2025-08-15' FROM agencies WHERE name = 'Northwind Media'`,
				`INSERT OR IGNORE INTO campaigns (agency_id, name, status, budget_cents, start_date, end_date)
					SELECT id, 'Product Hunt Week', 'completed', 450000, '2024-11-01', '2024-11-30' FROM agencies WHERE name = 'Bluepeak Group'`,
				`INSERT OR IGNORE INTO campaigns (agency_id, name, status, budget_cents, start_date, end_date)
					SELECT id, 'Winter Gear Push', 'active', 2300000, '2025-11-01', '2026-01-31' FROM agencies WHERE name = 'Bluepeak Group'`,
				`INSERT OR IGNORE INTO campaigns (agency_id, name, status, budget_cents, start_date, end_date)
					SELECT id, 'City Lights OOH', 'paused', 5000000, '2025-09-01', '2025-12-31' FROM agencies WHERE name = 'Harbor & Lane'`,
			)
		},
	}
}

func seedPublications() Seed {
	return Seed{
		Name:        "publications",
		Description: "scheduled and published posts per campaign",
		Run: func(tx *sql.Tx) error {
			return execEach(tx,
				`INSERT OR IGNORE INTO publications (campaign_id, channel_id, title, publish_date, state)
					SELECT c.id, ch.id, 'Teaser reel', '2025-03-05', 'published'
					FROM campaigns c, channels ch WHERE c.name = 'Spring Launch' AND ch.name = 'instagram'`,
				`INSERT OR IGNORE INTO publications (campaign_id, channel_id, title, publish_date, state)
					SELECT c.id, ch.id, 'Early-bird invite', '2025-03-10', 'published'
					FROM campaigns c, channels ch WHERE c.name = 'Spring Launch' AND ch.name = 'newsletter'`,
				`INSERT OR IGNORE INTO publications (campaign_id, channel_id, title, publish_date, state)
					SELECT c.id, ch.id, 'Launch story', '2025-04-01', 'scheduled'
					FROM campaigns c, channels ch WHERE c.name = 'Spring Launch' AND ch.name = 'company blog'`,
				`INSERT OR IGNORE INTO publications (campaign_id, channel_id, title, publish_date, state)
					SELECT c.id, ch.id, 'Launch day blast', '2024-11-04', 'published'
					FROM campaigns c, channels ch WHERE c.name = 'Product Hunt Week' AND ch.name = 'newsletter'`,
				`INSERT OR IGNORE INTO publications (campaign_id, channel_id, title, publish_date, state)
					SELECT c.id, ch.id, 'Gear lineup', '2025-11-10', 'scheduled'
					FROM campaigns c, channels ch WHERE c.name = 'Winter Gear Push' AND ch.name = 'instagram'`,
				`INSERT OR IGNORE INTO publications (campaign_id, channel_id, title, publish_date, state)
					SELECT c.id, ch.id, 'Downtown takeover', '2025-09-15', 'published'
					FROM campaigns c, channels ch WHERE c.name = 'City Lights OOH' AND ch.name = 'billboard network'`,
			)
		},
	}
}

func seedTags() Seed {
	return Seed{
		Name:        "tags",
		Description: "tags plus campaign links and channel weights",
		Run: func(tx *sql.Tx) error {
			return execEach(tx,
				`INSERT OR IGNORE INTO tags (label) VALUES ('launch'), ('b2c'), ('seasonal'), ('awareness')`,
				`INSERT OR IGNORE INTO campaign_tags (campaign_id, tag_id)
					SELECT c.id, t.id FROM campaigns c, tags t WHERE c.name = 'Spring Launch' AND t.label = 'launch'`,
				`INSERT OR IGNORE INTO campaign_tags (campaign_id, tag_id)
					SELECT c.id, t.id FROM campaigns c, tags t WHERE c.name = 'Spring Launch' AND t.label = 'b2c'`,
				`INSERT OR IGNORE INTO campaign_tags (campaign_id, tag_id)
					SELECT c.id, t.id FROM campaigns c, tags t WHERE c.name = 'Winter Gear Push' AND t.label = 'seasonal'`,
				`INSERT OR IGNORE INTO campaign_tags (campaign_id, tag_id)
					SELECT c.id, t.id FROM campaigns c, tags t WHERE c.name = 'City Lights OOH' AND t.label = 'awareness'`,
				`INSERT OR IGNORE INTO campaign_channels (campaign_id, channel_id, weight)
					SELECT c.id, ch.id, 3 FROM campaigns c, channels ch WHERE c.name = 'Spring Launch' AND ch.name = 'instagram'`,
				`INSERT OR IGNORE INTO campaign_channels (campaign_id, channel_id, weight)
					SELECT c.id, ch.id, 1 FROM campaigns c, channels ch WHERE c.name = 'Spring Launch' AND ch.name = 'newsletter'`,
				`INSERT OR IGNORE INTO campaign_channels (campaign_id, channel_id, weight)
					SELECT c.id, ch.id, 2 FROM campaigns c, channels ch WHERE c.name = 'Winter Gear Push' AND ch.name = 'instagram'`,
			)
		},
	}
}

func seedMetrics() Seed {
	return Seed{
		Name:        "metrics",
		Description: "daily delivery metrics for finished days",
		Run: func(tx *sql.Tx) error {
			return execEach(tx,
				`INSERT OR IGNORE INTO campaign_metrics (campaign_id, metric_date, impressions, clicks, spend_cents)
					SELECT id, '2025-03-05', 118000, 3400, 42000 FROM campaigns WHERE name = 'Spring Launch'`,
				`INSERT OR IGNORE INTO campaign_metrics (campaign_id, metric_date, impressions, clicks, spend_cents)
					SELECT id, '2025-03-06', 94000, 2100, 39000 FROM campaigns WHERE name = 'Spring Launch'`,
				`INSERT OR IGNORE INTO campaign_metrics (campaign_id, metric_date, impressions, clicks, spend_cents)
					SELECT id, '2025-03-10', 61000, 5400, 18000 FROM campaigns WHERE name = 'Spring Launch'`,
				`INSERT OR IGNORE INTO campaign_metrics (campaign_id, metric_date, impressions, clicks, spend_cents)
					SELECT id, '2024-11-04', 205000, 9800, 52000 FROM campaigns WHERE name = 'Product Hunt Week'`,
				`INSERT OR IGNORE INTO campaign_metrics (campaign_id, metric_date, impressions, clicks, spend_cents)
					SELECT id, '2024-11-05', 164000, 7200, 47000 FROM campaigns WHERE name = 'Product Hunt Week'`,
				`INSERT OR IGNORE INTO campaign_metrics (campaign_id, metric_date, impressions, clicks, spend_cents)
					SELECT id, '2025-09-15', 880000, 0, 310000 FROM campaigns WHERE name = 'City Lights OOH'`,
			)
		},
	}
}
