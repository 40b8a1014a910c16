package config

import (
	"path/filepath"
	"time"
)

type AppConfig struct {
	DBPath    string        `yaml:"db_path" env:"MERIDIAN_DB_PATH" env-default:"data/meridian.db"`
	DBVerbose bool          `yaml:"db_verbose" env:"MERIDIAN_DB_VERBOSE" env-default:"false"`
	Timezone  string        `yaml:"timezone" env:"MERIDIAN_TZ"`
	Backups   BackupsConfig `yaml:"backups"`
	Logs      LogsConfig    `yaml:"logs"`
	Monitor   MonitorConfig `yaml:"monitor"`
	Watch     WatchConfig   `yaml:"watch"`
}

type BackupsConfig struct {
	Path     string `yaml:"path" env:"MERIDIAN_BACKUP_PATH" env-default:"data/backups"`
	AutoKeep int    `yaml:"auto_keep" env:"MERIDIAN_BACKUP_AUTO_KEEP" env-default:"10"`
}

type LogsConfig struct {
	Path          string `yaml:"path" env:"MERIDIAN_LOGS_PATH" env-default:"data/logs"`
	RetentionDays int    `yaml:"retention_days" env:"MERIDIAN_LOG_RETENTION_DAYS" env-default:"30"`
}

type MonitorConfig struct {
	SlowQueryMs int `yaml:"slow_query_ms" env:"MERIDIAN_MONITOR_SLOW_MS" env-default:"100"`
	CriticalMs  int `yaml:"critical_ms" env:"MERIDIAN_MONITOR_CRITICAL_MS" env-default:"500"`
	WALPages    int `yaml:"wal_pages" env:"MERIDIAN_MONITOR_WAL_PAGES" env-default:"1000"`
	BufferHours int `yaml:"buffer_hours" env:"MERIDIAN_MONITOR_BUFFER_HOURS" env-default:"24"`
}

type WatchConfig struct {
	Enabled    bool   `yaml:"enabled" env:"MERIDIAN_WATCH_ENABLED" env-default:"true"`
	BackupCron string `yaml:"backup_cron" env:"MERIDIAN_WATCH_BACKUP_CRON" env-default:"0 3 * * *"`
	HealthCron string `yaml:"health_cron" env:"MERIDIAN_WATCH_HEALTH_CRON" env-default:"*/15 * * * *"`
}

const (
	defaultAutoKeep      = 10
	defaultRetentionDays = 30
	defaultBufferHours   = 24
)

func (c *AppConfig) EffectiveAutoKeep() int {
	if c == nil || c.Backups.AutoKeep <= 0 {
		return defaultAutoKeep
	}
	return c.Backups.AutoKeep
}

func (c *AppConfig) EffectiveRetentionDays() int {
	if c == nil || c.Logs.RetentionDays <= 0 {
		return defaultRetentionDays
	}
	return c.Logs.RetentionDays
}

func (c *AppConfig) EffectiveSlowQuery() time.Duration {
	if c == nil || c.Monitor.SlowQueryMs <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(c.Monitor.SlowQueryMs) * time.Millisecond
}

func (c *AppConfig) EffectiveCritical() time.Duration {
	if c == nil || c.Monitor.CriticalMs <= 0 {
		return 500 * time.Millisecond
	}
	critical := time.Duration(c.Monitor.CriticalMs) * time.Millisecond
	if slow := c.EffectiveSlowQuery(); critical < slow {
		return slow
	}
	return critical
}

func (c *AppConfig) EffectiveWALPages() int64 {
	if c == nil || c.Monitor.WALPages <= 0 {
		return 1000
	}
	return int64(c.Monitor.WALPages)
}

func (c *AppConfig) EffectiveBufferWindow() time.Duration {
	hours := defaultBufferHours
	if c != nil && c.Monitor.BufferHours > 0 {
		hours = c.Monitor.BufferHours
	}
	return time.Duration(hours) * time.Hour
}

// DatabaseLogDir is where the monitor keeps its performance and alert files.
func (c *AppConfig) DatabaseLogDir() string {
	base := "data/logs"
	if c != nil && c.Logs.Path != "" {
		base = c.Logs.Path
	}
	return filepath.Join(base, "database")
}
