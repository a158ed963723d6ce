package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test in an empty directory with a clean environment
func isolate(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	for _, env := range envBindings {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
	return dir
}

func validConfig() *Config {
	return &Config{
		QBittorrent: QBittorrentConfig{
			URL:            "http://localhost:8080",
			Username:       "admin",
			TimeoutSeconds: 30,
		},
		Trigger: TriggerConfig{CheckIntervalSeconds: 30},
		Dedup:   DedupConfig{GroupBy: "folder"},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://qbittorrent:8080", cfg.QBittorrent.URL)
	assert.Equal(t, "admin", cfg.QBittorrent.Username)
	assert.Equal(t, "adminadmin", cfg.QBittorrent.Password)
	assert.Equal(t, 30*time.Second, cfg.QBittorrent.Timeout())
	assert.False(t, cfg.QBittorrent.InsecureSkipVerify)
	assert.True(t, cfg.Safety.DryRun)
	assert.False(t, cfg.Safety.DeleteFiles)
	assert.Zero(t, cfg.Safety.DeleteRate)
	assert.Equal(t, 30*time.Second, cfg.Trigger.CheckInterval())
	assert.False(t, cfg.Trigger.UseWebsocket)
	assert.Equal(t, "folder", cfg.Dedup.GroupBy)
	assert.Empty(t, cfg.Dedup.Protect)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.True(t, cfg.Logging.Color)
	assert.Empty(t, cfg.Metrics.Listen)
}

func TestLoadEnvironment(t *testing.T) {
	isolate(t)

	t.Setenv("QB_URL", "https://qb.example.com")
	t.Setenv("QB_USER", "alice")
	t.Setenv("QB_PASS", "hunter2")
	t.Setenv("QB_TIMEOUT", "5")
	t.Setenv("DRY_RUN", "false")
	t.Setenv("DELETE_FILES", "true")
	t.Setenv("DELETE_RATE", "0.5")
	t.Setenv("CHECK_INTERVAL", "120")
	t.Setenv("USE_WEBSOCKET", "true")
	t.Setenv("GROUP_BY", "name")
	t.Setenv("PROTECT_FILTER", `hasTag("keep")`)
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("METRICS_LISTEN", ":9090")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://qb.example.com", cfg.QBittorrent.URL)
	assert.Equal(t, "alice", cfg.QBittorrent.Username)
	assert.Equal(t, "hunter2", cfg.QBittorrent.Password)
	assert.Equal(t, 5*time.Second, cfg.QBittorrent.Timeout())
	assert.False(t, cfg.Safety.DryRun)
	assert.True(t, cfg.Safety.DeleteFiles)
	assert.InDelta(t, 0.5, cfg.Safety.DeleteRate, 1e-9)
	assert.Equal(t, 2*time.Minute, cfg.Trigger.CheckInterval())
	assert.True(t, cfg.Trigger.UseWebsocket)
	assert.Equal(t, "name", cfg.Dedup.GroupBy)
	assert.Equal(t, `hasTag("keep")`, cfg.Dedup.Protect)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, ":9090", cfg.Metrics.Listen)
}

func TestLoadConfigFile(t *testing.T) {
	dir := isolate(t)

	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
qbittorrent:
  url: http://10.0.0.5:8080
  username: bob
trigger:
  check_interval: 10
dedup:
  group_by: save_path
`), 0o600))

	t.Setenv("QB_USER", "env-wins")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://10.0.0.5:8080", cfg.QBittorrent.URL)
	assert.Equal(t, "env-wins", cfg.QBittorrent.Username)
	assert.Equal(t, 10*time.Second, cfg.Trigger.CheckInterval())
	assert.Equal(t, "save_path", cfg.Dedup.GroupBy)
}

func TestLoadImplicitConfigFile(t *testing.T) {
	dir := isolate(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
safety:
  dry_run: false
`), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.Safety.DryRun)
}

func TestLoadMissingExplicitConfigFile(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := isolate(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(
		"QB_USER=from-dotenv\nCHECK_INTERVAL=45\n",
	), 0o600))
	t.Setenv("CHECK_INTERVAL", "15")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "from-dotenv", cfg.QBittorrent.Username)
	assert.Equal(t, 15*time.Second, cfg.Trigger.CheckInterval())
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("GROUP_BY", "hash")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dedup.group_by")
}

func TestLoadNormalizesLoggingCase(t *testing.T) {
	isolate(t)
	t.Setenv("LOG_LEVEL", "INFO")
	t.Setenv("LOG_FORMAT", "JSON")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(cfg *Config) {},
		},
		{
			name:    "missing url",
			mutate:  func(cfg *Config) { cfg.QBittorrent.URL = "" },
			wantErr: "qbittorrent.url is required",
		},
		{
			name:    "unsupported scheme",
			mutate:  func(cfg *Config) { cfg.QBittorrent.URL = "ftp://host" },
			wantErr: "invalid qbittorrent.url",
		},
		{
			name:    "missing host",
			mutate:  func(cfg *Config) { cfg.QBittorrent.URL = "http://" },
			wantErr: "invalid qbittorrent.url",
		},
		{
			name:    "missing username",
			mutate:  func(cfg *Config) { cfg.QBittorrent.Username = "" },
			wantErr: "qbittorrent.username is required",
		},
		{
			name:    "zero timeout",
			mutate:  func(cfg *Config) { cfg.QBittorrent.TimeoutSeconds = 0 },
			wantErr: "qbittorrent.timeout",
		},
		{
			name:    "zero interval",
			mutate:  func(cfg *Config) { cfg.Trigger.CheckIntervalSeconds = 0 },
			wantErr: "trigger.check_interval",
		},
		{
			name:    "negative delete rate",
			mutate:  func(cfg *Config) { cfg.Safety.DeleteRate = -1 },
			wantErr: "safety.delete_rate",
		},
		{
			name:    "unknown group policy",
			mutate:  func(cfg *Config) { cfg.Dedup.GroupBy = "size" },
			wantErr: "dedup.group_by",
		},
		{
			name:   "upper case level",
			mutate: func(cfg *Config) { cfg.Logging.Level = "Debug" },
		},
		{
			name:    "invalid level",
			mutate:  func(cfg *Config) { cfg.Logging.Level = "verbose" },
			wantErr: "invalid logging level",
		},
		{
			name:    "invalid format",
			mutate:  func(cfg *Config) { cfg.Logging.Format = "xml" },
			wantErr: "invalid logging format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := validate(cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
