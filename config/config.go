package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/s0up4200/qbit-dedup/dedup"
)

// envBindings maps config keys to the environment variables that set them
var envBindings = map[string]string{
	"qbittorrent.url":                  "QB_URL",
	"qbittorrent.username":             "QB_USER",
	"qbittorrent.password":             "QB_PASS",
	"qbittorrent.timeout":              "QB_TIMEOUT",
	"qbittorrent.insecure_skip_verify": "QB_INSECURE",
	"safety.dry_run":                   "DRY_RUN",
	"safety.delete_files":              "DELETE_FILES",
	"safety.delete_rate":               "DELETE_RATE",
	"trigger.check_interval":           "CHECK_INTERVAL",
	"trigger.use_websocket":            "USE_WEBSOCKET",
	"dedup.group_by":                   "GROUP_BY",
	"dedup.protect":                    "PROTECT_FILTER",
	"logging.level":                    "LOG_LEVEL",
	"logging.format":                   "LOG_FORMAT",
	"logging.color":                    "LOG_COLOR",
	"metrics.listen":                   "METRICS_LISTEN",
}

// Load builds the configuration from defaults, an optional config file, a
// .env file and the environment, in increasing order of precedence.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	// Set default values
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", env, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in standard locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		// Check current directory first
		v.AddConfigPath(".")

		// Check home directory
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".qbit-dedup"))
		}

		// Check /etc
		v.AddConfigPath("/etc/qbit-dedup/")
	}

	// The config file is optional unless one was named explicitly
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv reads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error loading %s: %w", path, err)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// qBittorrent defaults
	v.SetDefault("qbittorrent.url", "http://qbittorrent:8080")
	v.SetDefault("qbittorrent.username", "admin")
	v.SetDefault("qbittorrent.password", "adminadmin")
	v.SetDefault("qbittorrent.timeout", 30)
	v.SetDefault("qbittorrent.insecure_skip_verify", false)

	// Safety defaults
	v.SetDefault("safety.dry_run", true)
	v.SetDefault("safety.delete_files", false)
	v.SetDefault("safety.delete_rate", 0)

	// Trigger defaults
	v.SetDefault("trigger.check_interval", 30)
	v.SetDefault("trigger.use_websocket", false)

	// Dedup defaults
	v.SetDefault("dedup.group_by", dedup.PolicyFolder)
	v.SetDefault("dedup.protect", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.color", true)

	v.SetDefault("metrics.listen", "")
}

// validate checks if the configuration is valid
func validate(cfg *Config) error {
	if cfg.QBittorrent.URL == "" {
		return fmt.Errorf("qbittorrent.url is required")
	}

	u, err := url.Parse(cfg.QBittorrent.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid qbittorrent.url: %s (must be an http or https URL)", cfg.QBittorrent.URL)
	}

	if cfg.QBittorrent.Username == "" {
		return fmt.Errorf("qbittorrent.username is required")
	}

	if cfg.QBittorrent.TimeoutSeconds <= 0 {
		return fmt.Errorf("qbittorrent.timeout must be positive, got %d", cfg.QBittorrent.TimeoutSeconds)
	}

	if cfg.Trigger.CheckIntervalSeconds <= 0 {
		return fmt.Errorf("trigger.check_interval must be positive, got %d", cfg.Trigger.CheckIntervalSeconds)
	}

	if cfg.Safety.DeleteRate < 0 {
		return fmt.Errorf("safety.delete_rate must not be negative, got %g", cfg.Safety.DeleteRate)
	}

	if _, err := dedup.PolicyByName(cfg.Dedup.GroupBy); err != nil {
		return fmt.Errorf("invalid dedup.group_by: %w", err)
	}

	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.Format = strings.ToLower(strings.TrimSpace(cfg.Logging.Format))

	// Validate logging level
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", cfg.Logging.Level)
	}

	// Validate logging format
	validFormats := map[string]bool{
		"console": true,
		"json":    true,
	}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s", cfg.Logging.Format)
	}

	return nil
}
