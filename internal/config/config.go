package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ICSConfig describes a single ICS subscription whose events are imported
// as commitments.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for logging and the HTTP cache key.
	ID string `yaml:"id" json:"id"`
	// Name becomes the source_app of imported events.
	Name string `yaml:"name" json:"name"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// DataFile is the durable events.json path.
	DataFile string `yaml:"data_file" json:"data_file"`

	// WatchInterval is how often the events file is polled for external
	// changes, as a Go duration string ("30s").
	WatchInterval string `yaml:"watch_interval" json:"watch_interval"`

	// AllowedOrigin is the single front-end origin allowed by CORS.
	AllowedOrigin string `yaml:"allowed_origin" json:"allowed_origin"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Timezone is the IANA zone used for the ICS feed and for naive
	// timestamps of imported events.
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is the cron schedule for re-importing ICS subscriptions.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays is how far ahead recurring ICS events are expanded.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// CacheDir holds the per-URL HTTP cache for ICS subscriptions.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// ICS is the list of subscribed calendars.
	ICS []ICSConfig `yaml:"ics" json:"ics"`
}

const (
	defaultListen        = "127.0.0.1:8000"
	defaultDataFile      = "events.json"
	defaultWatchInterval = "30s"
	defaultAllowedOrigin = "http://localhost:5173"
	defaultLogLevel      = "info"
	defaultTimezone      = "UTC"
	defaultRefreshCron   = "*/15 * * * *"
	defaultHorizonDays   = 7
	defaultCacheDir      = "./cache/ics"
)

// Environment variables that override file values.
const (
	EnvListen        = "NOTIFSYNC_LISTEN"
	EnvDataFile      = "NOTIFSYNC_DATA_FILE"
	EnvAllowedOrigin = "NOTIFSYNC_ALLOWED_ORIGIN"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:        defaultListen,
		DataFile:      defaultDataFile,
		WatchInterval: defaultWatchInterval,
		AllowedOrigin: defaultAllowedOrigin,
		LogLevel:      defaultLogLevel,
		Timezone:      defaultTimezone,
		RefreshCron:   defaultRefreshCron,
		HorizonDays:   defaultHorizonDays,
		CacheDir:      defaultCacheDir,
		ICS:           []ICSConfig{},
	}
}

// Normalize fills in missing or invalid values so that partially-filled
// configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.DataFile == "" {
		c.DataFile = defaultDataFile
	}
	if d, err := time.ParseDuration(c.WatchInterval); err != nil || d <= 0 {
		c.WatchInterval = defaultWatchInterval
	}
	if c.AllowedOrigin == "" {
		c.AllowedOrigin = defaultAllowedOrigin
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		c.LogLevel = defaultLogLevel
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = defaultHorizonDays
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
}

// WatchEvery returns WatchInterval as a duration.
func (c *Config) WatchEvery() time.Duration {
	d, err := time.ParseDuration(c.WatchInterval)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(defaultWatchInterval)
	}
	return d
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ApplyEnv overrides file values with NOTIFSYNC_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(EnvDataFile); v != "" {
		c.DataFile = v
	}
	if v := os.Getenv(EnvAllowedOrigin); v != "" {
		c.AllowedOrigin = v
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     permissions and returned.
//   - If the file exists, it is unmarshalled and normalized.
//   - Environment overrides are applied last in both cases.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				cfg.ApplyEnv()
				return cfg, err
			}
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	cfg.ApplyEnv()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file in the same directory,
// then rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".notifsync-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
