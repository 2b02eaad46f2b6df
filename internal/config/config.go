// Package config provides configuration management for guardarr using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/jmylchreest/guardarr/pkg/duration"
)

// Default configuration values.
const (
	defaultPollInterval         = 5 * time.Second
	defaultBufferSpeedThreshold = 1.0
	defaultBufferTimeThreshold  = 30 * time.Second
	defaultBufferExtensionTime  = 10 * time.Second
	defaultErrorSwitchCooldown  = 10 * time.Second
	defaultErrorResetTime       = 20 * time.Second
	defaultCommandTimeout       = 10 * time.Second
	defaultRestartBackoff       = 3 * time.Second
	defaultStopGracePeriod      = 5 * time.Second
	defaultMaxMemoryMB          = 150
	defaultUserAgent            = "Buffer Watchdog"
	defaultFFmpegPath           = "/usr/bin/ffmpeg"
	defaultServerPort           = 8080
	defaultServerTimeout        = 30 * time.Second
	defaultShutdownTimeout      = 10 * time.Second
	defaultMaxOpenConns         = 25
	defaultMaxIdleConns         = 10
	defaultConnMaxIdleTime      = 30 * time.Minute
	defaultEventRetention       = 30 * 24 * time.Hour
	defaultCleanupCron          = "0 3 * * *"
)

// Known controller dialects.
const (
	ControllerDispatcharr  = "dispatcharr"
	ControllerStreamMaster = "streammaster"
	ControllerAIPTV        = "aiptv"
)

// Config holds all configuration for the application.
type Config struct {
	Controller ControllerConfig `mapstructure:"controller"`
	Watchdog   WatchdogConfig   `mapstructure:"watchdog"`
	Probe      ProbeConfig      `mapstructure:"probe"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Events     EventsConfig     `mapstructure:"events"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ControllerConfig identifies the streaming controller the watchdog supervises.
type ControllerConfig struct {
	Type      string `mapstructure:"type"` // dispatcharr, streammaster, aiptv
	URL       string `mapstructure:"url"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	UserAgent string `mapstructure:"user_agent"`
}

// WatchdogConfig holds the failover decision thresholds.
type WatchdogConfig struct {
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	BufferSpeedThreshold float64       `mapstructure:"buffer_speed_threshold"`
	BufferTimeThreshold  time.Duration `mapstructure:"buffer_time_threshold"`
	BufferExtensionTime  time.Duration `mapstructure:"buffer_extension_time"`
	// ErrorThreshold is the number of decode errors before switching.
	// Zero disables error-based failover entirely.
	ErrorThreshold       int           `mapstructure:"error_threshold"`
	ErrorSwitchCooldown  time.Duration `mapstructure:"error_switch_cooldown"`
	ErrorResetTime       time.Duration `mapstructure:"error_reset_time"`
	CustomCommand        string        `mapstructure:"custom_command"`
	CustomCommandTimeout time.Duration `mapstructure:"custom_command_timeout"`
	// RestartBackoff is the pause before restarting a measurement session
	// that ended unexpectedly.
	RestartBackoff time.Duration `mapstructure:"restart_backoff"`
}

// ProbeConfig holds measurement subprocess configuration.
type ProbeConfig struct {
	FFmpegPath      string        `mapstructure:"ffmpeg_path"`
	StopGracePeriod time.Duration `mapstructure:"stop_grace_period"`
	// MaxMemoryMB is the RSS ceiling for one ffmpeg session; a session
	// above it is killed and restarted. Zero disables the check.
	MaxMemoryMB int `mapstructure:"max_memory_mb"`
}

// ServerConfig holds the optional status HTTP server configuration.
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds event history database configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// EventsConfig holds event retention configuration.
type EventsConfig struct {
	Retention   time.Duration `mapstructure:"retention"`
	CleanupCron string        `mapstructure:"cleanup_cron"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with GUARDARR_ and use underscores
// for nesting. Example: GUARDARR_CONTROLLER_URL=http://dispatcharr:9191.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/guardarr")
		v.AddConfigPath("$HOME/.guardarr")
	}

	v.SetEnvPrefix("GUARDARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	return FromViper(v)
}

// FromViper unmarshals and validates a configuration from an already
// populated viper instance. Callers that bind CLI flags use this with
// the global viper so flag precedence is preserved.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		stringToDurationHook(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file so defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Controller defaults
	v.SetDefault("controller.type", ControllerDispatcharr)
	v.SetDefault("controller.url", "")
	v.SetDefault("controller.username", "")
	v.SetDefault("controller.password", "")
	v.SetDefault("controller.user_agent", defaultUserAgent)

	// Watchdog defaults
	v.SetDefault("watchdog.poll_interval", defaultPollInterval)
	v.SetDefault("watchdog.buffer_speed_threshold", defaultBufferSpeedThreshold)
	v.SetDefault("watchdog.buffer_time_threshold", defaultBufferTimeThreshold)
	v.SetDefault("watchdog.buffer_extension_time", defaultBufferExtensionTime)
	v.SetDefault("watchdog.error_threshold", 0)
	v.SetDefault("watchdog.error_switch_cooldown", defaultErrorSwitchCooldown)
	v.SetDefault("watchdog.error_reset_time", defaultErrorResetTime)
	v.SetDefault("watchdog.custom_command", "")
	v.SetDefault("watchdog.custom_command_timeout", defaultCommandTimeout)
	v.SetDefault("watchdog.restart_backoff", defaultRestartBackoff)

	// Probe defaults
	v.SetDefault("probe.ffmpeg_path", defaultFFmpegPath)
	v.SetDefault("probe.stop_grace_period", defaultStopGracePeriod)
	v.SetDefault("probe.max_memory_mb", defaultMaxMemoryMB)

	// Server defaults
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "guardarr.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Events defaults
	v.SetDefault("events.retention", defaultEventRetention)
	v.SetDefault("events.cleanup_cron", defaultCleanupCron)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
}

// stringToDurationHook decodes duration strings with day and week
// units, so values written by "config dump" load back unchanged.
func stringToDurationHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return duration.Parse(data.(string))
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validControllers := map[string]bool{
		ControllerDispatcharr:  true,
		ControllerStreamMaster: true,
		ControllerAIPTV:        true,
	}
	if !validControllers[c.Controller.Type] {
		return fmt.Errorf("controller.type must be one of: dispatcharr, streammaster, aiptv")
	}
	if c.Controller.URL == "" {
		return fmt.Errorf("controller.url is required")
	}

	if c.Watchdog.PollInterval <= 0 {
		return fmt.Errorf("watchdog.poll_interval must be positive")
	}
	if c.Watchdog.BufferSpeedThreshold <= 0 {
		return fmt.Errorf("watchdog.buffer_speed_threshold must be positive")
	}
	if c.Watchdog.BufferTimeThreshold <= 0 {
		return fmt.Errorf("watchdog.buffer_time_threshold must be positive")
	}
	if c.Watchdog.ErrorThreshold < 0 {
		return fmt.Errorf("watchdog.error_threshold must not be negative")
	}

	if c.Probe.FFmpegPath == "" {
		return fmt.Errorf("probe.ffmpeg_path is required")
	}

	const maxPort = 65535
	if c.Server.Enabled && (c.Server.Port < 1 || c.Server.Port > maxPort) {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ErrorCheckingEnabled reports whether error-based failover is active.
func (c *WatchdogConfig) ErrorCheckingEnabled() bool {
	return c.ErrorThreshold > 0
}

// MaxMemoryBytes returns the session RSS ceiling in bytes, or 0 when disabled.
func (c *ProbeConfig) MaxMemoryBytes() uint64 {
	if c.MaxMemoryMB <= 0 {
		return 0
	}
	return uint64(c.MaxMemoryMB) * 1024 * 1024
}
