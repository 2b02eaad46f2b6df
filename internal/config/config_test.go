package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig() *Config {
	return &Config{
		Controller: ControllerConfig{
			Type:      ControllerDispatcharr,
			URL:       "http://dispatcharr:9191",
			UserAgent: "Buffer Watchdog",
		},
		Watchdog: WatchdogConfig{
			PollInterval:         5 * time.Second,
			BufferSpeedThreshold: 1.0,
			BufferTimeThreshold:  30 * time.Second,
			BufferExtensionTime:  10 * time.Second,
			ErrorSwitchCooldown:  10 * time.Second,
			ErrorResetTime:       20 * time.Second,
		},
		Probe: ProbeConfig{FFmpegPath: "/usr/bin/ffmpeg"},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "test.db",
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GUARDARR_CONTROLLER_URL", "http://dispatcharr:9191")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Controller defaults
	assert.Equal(t, ControllerDispatcharr, cfg.Controller.Type)
	assert.Equal(t, "Buffer Watchdog", cfg.Controller.UserAgent)

	// Watchdog defaults mirror the classic environment variables
	assert.Equal(t, 5*time.Second, cfg.Watchdog.PollInterval)
	assert.InDelta(t, 1.0, cfg.Watchdog.BufferSpeedThreshold, 0.0001)
	assert.Equal(t, 30*time.Second, cfg.Watchdog.BufferTimeThreshold)
	assert.Equal(t, 10*time.Second, cfg.Watchdog.BufferExtensionTime)
	assert.Equal(t, 0, cfg.Watchdog.ErrorThreshold)
	assert.False(t, cfg.Watchdog.ErrorCheckingEnabled())
	assert.Equal(t, 10*time.Second, cfg.Watchdog.ErrorSwitchCooldown)
	assert.Equal(t, 20*time.Second, cfg.Watchdog.ErrorResetTime)
	assert.Equal(t, 10*time.Second, cfg.Watchdog.CustomCommandTimeout)

	// Probe defaults
	assert.Equal(t, "/usr/bin/ffmpeg", cfg.Probe.FFmpegPath)
	assert.Equal(t, 5*time.Second, cfg.Probe.StopGracePeriod)
	assert.Equal(t, uint64(150*1024*1024), cfg.Probe.MaxMemoryBytes())

	// Server defaults
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())

	// Database defaults
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "guardarr.db", cfg.Database.DSN)

	// Logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := `
controller:
  type: streammaster
  url: http://streammaster:7095
watchdog:
  poll_interval: 10s
  buffer_time_threshold: 45s
  error_threshold: 3
probe:
  ffmpeg_path: /opt/ffmpeg/bin/ffmpeg
  max_memory_mb: 300
logging:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0600))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, ControllerStreamMaster, cfg.Controller.Type)
	assert.Equal(t, "http://streammaster:7095", cfg.Controller.URL)
	assert.Equal(t, 10*time.Second, cfg.Watchdog.PollInterval)
	assert.Equal(t, 45*time.Second, cfg.Watchdog.BufferTimeThreshold)
	assert.Equal(t, 3, cfg.Watchdog.ErrorThreshold)
	assert.True(t, cfg.Watchdog.ErrorCheckingEnabled())
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.Probe.FFmpegPath)
	assert.Equal(t, uint64(300*1024*1024), cfg.Probe.MaxMemoryBytes())
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Values not in the file still get defaults
	assert.InDelta(t, 1.0, cfg.Watchdog.BufferSpeedThreshold, 0.0001)
	assert.Equal(t, "Buffer Watchdog", cfg.Controller.UserAgent)
}

func TestLoad_DayUnitDurations(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := `
controller:
  url: http://dispatcharr:9191
events:
  retention: 30d
database:
  conn_max_lifetime: 1d12h
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0600))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 30*24*time.Hour, cfg.Events.Retention)
	assert.Equal(t, 36*time.Hour, cfg.Database.ConnMaxLifetime)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GUARDARR_CONTROLLER_URL", "http://dispatcharr:9191")
	t.Setenv("GUARDARR_WATCHDOG_BUFFER_SPEED_THRESHOLD", "0.9")
	t.Setenv("GUARDARR_WATCHDOG_ERROR_THRESHOLD", "5")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.InDelta(t, 0.9, cfg.Watchdog.BufferSpeedThreshold, 0.0001)
	assert.Equal(t, 5, cfg.Watchdog.ErrorThreshold)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing url", func(c *Config) { c.Controller.URL = "" }, "controller.url"},
		{"bad controller type", func(c *Config) { c.Controller.Type = "plex" }, "controller.type"},
		{"zero poll interval", func(c *Config) { c.Watchdog.PollInterval = 0 }, "poll_interval"},
		{"zero speed threshold", func(c *Config) { c.Watchdog.BufferSpeedThreshold = 0 }, "buffer_speed_threshold"},
		{"negative error threshold", func(c *Config) { c.Watchdog.ErrorThreshold = -1 }, "error_threshold"},
		{"missing ffmpeg path", func(c *Config) { c.Probe.FFmpegPath = "" }, "ffmpeg_path"},
		{"bad server port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad driver", func(c *Config) { c.Database.Driver = "oracle" }, "database.driver"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidate_ServerDisabledSkipsPortCheck(t *testing.T) {
	cfg := validTestConfig()
	cfg.Server.Enabled = false
	cfg.Server.Port = 0
	assert.NoError(t, cfg.Validate())
}
