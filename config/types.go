package config

import "time"

// Config represents the complete configuration structure
type Config struct {
	QBittorrent QBittorrentConfig `mapstructure:"qbittorrent"`
	Safety      SafetyConfig      `mapstructure:"safety"`
	Trigger     TriggerConfig     `mapstructure:"trigger"`
	Dedup       DedupConfig       `mapstructure:"dedup"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// QBittorrentConfig holds qBittorrent WebAPI connection details
type QBittorrentConfig struct {
	URL                string `mapstructure:"url"`
	Username           string `mapstructure:"username"`
	Password           string `mapstructure:"password"`
	TimeoutSeconds     int    `mapstructure:"timeout"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// Timeout returns the per-request timeout
func (c QBittorrentConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SafetyConfig contains safety-related settings
type SafetyConfig struct {
	DryRun      bool    `mapstructure:"dry_run"`
	DeleteFiles bool    `mapstructure:"delete_files"`
	DeleteRate  float64 `mapstructure:"delete_rate"`
}

// TriggerConfig selects how reconciliation runs are triggered
type TriggerConfig struct {
	CheckIntervalSeconds int  `mapstructure:"check_interval"`
	UseWebsocket         bool `mapstructure:"use_websocket"`
}

// CheckInterval returns the polling period
func (c TriggerConfig) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

// DedupConfig controls grouping and protection of torrents
type DedupConfig struct {
	GroupBy string `mapstructure:"group_by"`
	Protect string `mapstructure:"protect"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Color  bool   `mapstructure:"color"`
}

// MetricsConfig configures the Prometheus listener
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}
