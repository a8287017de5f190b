package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied by WithDefaults.
const (
	DefaultListenAddr   = "127.0.0.1:7450"
	DefaultReadDebounce = 400 * time.Millisecond
	DefaultRegion       = "US"
	DefaultPushBuffer   = 64
)

// Config represents the global ~/.dmsync/config.toml.
type Config struct {
	DefaultInstance string   `toml:"default_instance"`
	ListenAddr      string   `toml:"listen_addr"`
	ReadDebounce    Duration `toml:"read_debounce"`
	DefaultRegion   string   `toml:"default_region"`
	MetricsEnabled  *bool    `toml:"metrics_enabled"`
	PushBuffer      int      `toml:"push_buffer"`
}

// Duration is a time.Duration written as a Go duration string ("400ms").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// WithDefaults returns a copy with every unset field filled in.
func (c Config) WithDefaults() Config {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.ReadDebounce.Duration <= 0 {
		c.ReadDebounce.Duration = DefaultReadDebounce
	}
	if c.DefaultRegion == "" {
		c.DefaultRegion = DefaultRegion
	}
	if c.MetricsEnabled == nil {
		on := true
		c.MetricsEnabled = &on
	}
	if c.PushBuffer <= 0 {
		c.PushBuffer = DefaultPushBuffer
	}
	return c
}

// Metrics reports whether /metrics should be served.
func (c Config) Metrics() bool {
	return c.MetricsEnabled == nil || *c.MetricsEnabled
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault reads config from path, falling back to defaults when the
// file does not exist.
func LoadOrDefault(path string) (Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}.WithDefaults(), nil
	}
	if err != nil {
		return Config{}, err
	}
	return cfg.WithDefaults(), nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
