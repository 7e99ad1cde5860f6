package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/ramonehamilton/sqlite-incbackup/internal/fingerprint"
	"github.com/ramonehamilton/sqlite-incbackup/internal/incremental"
	"github.com/ramonehamilton/sqlite-incbackup/internal/workspace"
)

// Environment variables that override mirror credentials.
const (
	EnvMirrorAccessKey = "SQLITEBAK_MIRROR_ACCESS_KEY"
	EnvMirrorSecretKey = "SQLITEBAK_MIRROR_SECRET_KEY"
)

// Config represents the sqlitebak configuration.
type Config struct {
	// Source database settings
	Database DatabaseConfig `toml:"database"`

	// Backup Unit settings
	Backup BackupConfig `toml:"backup"`

	// Watch mode settings
	Schedule ScheduleConfig `toml:"schedule"`

	// Prometheus endpoint settings
	Metrics MetricsConfig `toml:"metrics"`

	// Object storage mirror settings
	Mirror MirrorConfig `toml:"mirror"`

	// Logging settings
	Log LogConfig `toml:"log"`
}

// DatabaseConfig describes the database being backed up.
type DatabaseConfig struct {
	Path        string `toml:"path"`         // Path to the SQLite database
	JournalMode string `toml:"journal_mode"` // Empty keeps the database's current mode
	BusyTimeout string `toml:"busy_timeout"` // Lock wait (e.g., "5s")
}

// BackupConfig identifies the Backup Unit and the engine settings.
type BackupConfig struct {
	Workspace string `toml:"workspace"` // Directory holding manifests and images
	Name      string `toml:"name"`      // Logical backup name
	Hash      string `toml:"hash"`      // Fingerprint function (xxhash64, fnv1a64)
	Engine    string `toml:"engine"`    // Engine version (e.g., "v1")
	ImageExt  string `toml:"image_ext"` // Backup image extension
	Lock      bool   `toml:"lock"`      // Take the advisory unit lock
	Catalog   bool   `toml:"catalog"`   // Record runs in the workspace catalog
}

// ScheduleConfig contains watch mode settings.
type ScheduleConfig struct {
	Interval         string `toml:"interval"`          // Periodic backup interval, "0" disables
	Watch            bool   `toml:"watch"`             // Back up when the database changes
	MinInterval      string `toml:"min_interval"`      // Minimum gap between change-triggered backups
	StartImmediately bool   `toml:"start_immediately"` // Back up as soon as watch starts
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"` // Serve /metrics in watch mode
	Listen  string `toml:"listen"`  // Listen address (e.g., ":9190")
}

// MirrorConfig contains S3-compatible object storage settings.
type MirrorConfig struct {
	Enabled   bool   `toml:"enabled"`
	Endpoint  string `toml:"endpoint"` // host:port
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	Region    string `toml:"region"`
	UseSSL    bool   `toml:"use_ssl"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	PushAfter bool   `toml:"push_after_backup"` // Push after every successful watch backup
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text or json
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			BusyTimeout: "5s",
		},
		Backup: BackupConfig{
			Workspace: "backups",
			Name:      "",
			Hash:      fingerprint.AlgorithmXXHash64,
			Engine:    incremental.VersionLatest.String(),
			ImageExt:  workspace.DefaultImageExt,
			Lock:      true,
			Catalog:   true,
		},
		Schedule: ScheduleConfig{
			Interval:    "1h",
			Watch:       true,
			MinInterval: "5s",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  ":9190",
		},
		Mirror: MirrorConfig{
			Prefix: "sqlitebak",
			UseSSL: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns ~/.sqlitebak/config.toml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".sqlitebak", "config.toml"), nil
}

// Load loads the configuration from path. Returns default config if the file
// doesn't exist. Keys missing from the file keep their default values.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	config.applyEnv()
	return config, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvMirrorAccessKey); v != "" {
		c.Mirror.AccessKey = v
	}
	if v := os.Getenv(EnvMirrorSecretKey); v != "" {
		c.Mirror.SecretKey = v
	}
}

// Save saves the configuration to path.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration values.
func (c *Config) Validate() error {
	if _, err := c.GetBusyTimeout(); err != nil {
		return fmt.Errorf("invalid busy timeout %q: %w", c.Database.BusyTimeout, err)
	}

	if c.Backup.Workspace == "" {
		return fmt.Errorf("backup workspace cannot be empty")
	}
	if c.Backup.Name != "" {
		if err := (workspace.Unit{Dir: c.Backup.Workspace, Name: c.Backup.Name}).Validate(); err != nil {
			return err
		}
	}
	if _, err := fingerprint.ByName(c.Backup.Hash); err != nil {
		return err
	}
	if _, err := incremental.ParseVersion(c.Backup.Engine); err != nil {
		return err
	}

	interval, err := c.GetScheduleInterval()
	if err != nil {
		return fmt.Errorf("invalid schedule interval %q: %w", c.Schedule.Interval, err)
	}
	if interval < 0 {
		return fmt.Errorf("schedule interval cannot be negative: %s", interval)
	}
	if _, err := c.GetMinInterval(); err != nil {
		return fmt.Errorf("invalid min interval %q: %w", c.Schedule.MinInterval, err)
	}

	if c.Mirror.Enabled {
		if c.Mirror.Endpoint == "" {
			return fmt.Errorf("mirror endpoint is required when the mirror is enabled")
		}
		if c.Mirror.Bucket == "" {
			return fmt.Errorf("mirror bucket is required when the mirror is enabled")
		}
	}

	if _, err := c.GetLogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}

	return nil
}

// Unit returns the Backup Unit described by the backup section.
func (c *Config) Unit() (workspace.Unit, error) {
	u, err := workspace.NewUnit(c.Backup.Workspace, c.Backup.Name)
	if err != nil {
		return workspace.Unit{}, err
	}
	u.Ext = c.Backup.ImageExt
	return u, nil
}

// GetBusyTimeout returns the database busy timeout as a duration.
func (c *Config) GetBusyTimeout() (time.Duration, error) {
	return parseDuration(c.Database.BusyTimeout)
}

// GetScheduleInterval returns the periodic backup interval as a duration.
func (c *Config) GetScheduleInterval() (time.Duration, error) {
	return parseDuration(c.Schedule.Interval)
}

// GetMinInterval returns the change-trigger throttle as a duration.
func (c *Config) GetMinInterval() (time.Duration, error) {
	return parseDuration(c.Schedule.MinInterval)
}

// GetLogLevel returns the configured slog level.
func (c *Config) GetLogLevel() (slog.Level, error) {
	var level slog.Level
	if c.Log.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}
	return level, nil
}

// parseDuration accepts Go duration strings; empty and "0" mean zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
