package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SubscriptionConfig describes a remote ICS feed imported on a schedule.
type SubscriptionConfig struct {
	// ID is used in logs and as the cache key prefix.
	ID  string `yaml:"id" json:"id"`
	URL string `yaml:"url" json:"url"`
	// Username / Password enable HTTP Basic auth against the feed.
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"-"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone events are exported in and floating
	// imported times are read in (e.g. "Europe/Berlin").
	Timezone string `yaml:"timezone" json:"timezone"`

	// Account is the mailbox address of the calendar owner. It becomes the
	// organizer of exported events and the organizer tag of imported ones.
	Account string `yaml:"account" json:"account"`

	// Tokenizer selects the ICS parser: "golang-ical" (default) or
	// "go-ical".
	Tokenizer string `yaml:"tokenizer" json:"tokenizer"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// StorePath is the JSON event store file.
	StorePath string `yaml:"store_path" json:"store_path"`

	// CacheDir holds per-subscription HTTP caches.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// RefreshCron is a cron schedule (e.g. "*/15 * * * *") for
	// subscription refresh. Empty disables the scheduler.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	Subscriptions []SubscriptionConfig `yaml:"subscriptions" json:"subscriptions"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen    = "127.0.0.1:8080"
	defaultTimezone  = "UTC"
	defaultStorePath = "./var/events.json"
	defaultCacheDir  = "./var/ics-cache"
	defaultRefresh   = "*/15 * * * *"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:        defaultListen,
		Timezone:      defaultTimezone,
		Tokenizer:     "golang-ical",
		LogLevel:      "info",
		StorePath:     defaultStorePath,
		CacheDir:      defaultCacheDir,
		RefreshCron:   defaultRefresh,
		Subscriptions: []SubscriptionConfig{},
	}
}

// Normalize fills in missing values so partially-filled configs still
// behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	switch strings.ToLower(c.Tokenizer) {
	case "go-ical":
		c.Tokenizer = "go-ical"
	default:
		c.Tokenizer = "golang-ical"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.StorePath == "" {
		c.StorePath = defaultStorePath
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.Subscriptions == nil {
		c.Subscriptions = []SubscriptionConfig{}
	}
	for i := range c.Subscriptions {
		if c.Subscriptions[i].ID == "" {
			c.Subscriptions[i].ID = "sub-" + strconv.Itoa(i+1)
		}
	}
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Timezone); err == nil {
		return loc
	}
	return time.Local
}

// Load loads configuration from the given YAML path. A missing file is
// created with defaults (0600) and the defaults are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg atomically (temp file + rename) with 0600 permissions,
// creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, ".dmailcal-config-*.tmp")
}

// WriteFileAtomic writes data to a temp file next to path, then renames it
// over path. The result has 0600 permissions.
func WriteFileAtomic(path string, data []byte, pattern string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, pattern)
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

// Save is a convenience wrapper around the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
