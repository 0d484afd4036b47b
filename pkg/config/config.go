// Package config loads the YAML configuration file of the cache.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	responsetransformer "github.com/always-cache/cachexec/pkg/response-transformer"
	"github.com/always-cache/cachexec/rfc9111"
)

var ErrInvalid = errors.New("invalid configuration")

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type Config struct {
	Listen string `yaml:"listen"`
	// AdminListen is the address of the admin API and metrics.
	// Empty disables it.
	AdminListen string `yaml:"adminListen"`
	// Origin is the base URL requests are forwarded to.
	Origin string `yaml:"origin"`
	// OriginHost overrides the Host header and TLS server name sent to the origin.
	OriginHost string    `yaml:"originHost"`
	Via        string    `yaml:"via"`
	Cache      Cache     `yaml:"cache"`
	Store      Store     `yaml:"store"`
	Transport  Transport `yaml:"transport"`
	Log        Log       `yaml:"log"`
	// Rules adjust origin responses before they are stored.
	Rules responsetransformer.Rules `yaml:"rules"`
}

type Cache struct {
	Shared            bool          `yaml:"shared"`
	MaxObjectSize     int64         `yaml:"maxObjectSize"`
	MaxEntries        int           `yaml:"maxEntries"`
	SupportsRanges    bool          `yaml:"supportsRanges"`
	HeuristicFraction float64       `yaml:"heuristicFraction"`
	HeuristicMax      time.Duration `yaml:"heuristicMax"`
	ServeStaleOnError bool          `yaml:"serveStaleOnError"`
	RetainFor         time.Duration `yaml:"retainFor"`
	// UpdateInterval refreshes entries about to expire. Zero disables it.
	UpdateInterval time.Duration `yaml:"updateInterval"`
}

// Options returns the caching options.
func (c Cache) Options() rfc9111.Options {
	return rfc9111.Options{
		Shared:            c.Shared,
		MaxObjectSize:     c.MaxObjectSize,
		SupportsRanges:    c.SupportsRanges,
		HeuristicFraction: c.HeuristicFraction,
		HeuristicMax:      c.HeuristicMax,
		ServeStaleOnError: c.ServeStaleOnError,
	}
}

type Store struct {
	Backend string `yaml:"backend"`
	SQLite  SQLite `yaml:"sqlite"`
	Redis   Redis  `yaml:"redis"`
}

type SQLite struct {
	File string `yaml:"file"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`
	Prefix   string `yaml:"prefix"`
}

type Transport struct {
	Timeout time.Duration `yaml:"timeout"`
}

type Log struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
	File   string `yaml:"file"`
}

// Default returns the configuration used for values missing from the file.
func Default() Config {
	return Config{
		Listen:      ":8080",
		AdminListen: "localhost:9090",
		Via:         "cachexec",
		Cache: Cache{
			Shared:            true,
			MaxObjectSize:     8 << 20,
			MaxEntries:        10000,
			SupportsRanges:    true,
			HeuristicFraction: 0,
			HeuristicMax:      24 * time.Hour,
			RetainFor:         24 * time.Hour,
		},
		Store: Store{
			Backend: BackendMemory,
			SQLite:  SQLite{File: "cache.db"},
			Redis:   Redis{Addr: "localhost:6379", Prefix: "cachexec:"},
		},
		Transport: Transport{Timeout: 30 * time.Second},
		Log:       Log{Level: "info"},
	}
}

// Load reads the file at filename on top of the defaults.
func Load(filename string) (Config, error) {
	config := Default()
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	if err := yaml.Unmarshal(configBytes, &config); err != nil {
		return config, fmt.Errorf("parse %s: %w", filename, err)
	}
	return config, nil
}

// Validate checks the configuration; errors wrap ErrInvalid.
func (c Config) Validate() error {
	if c.Origin == "" {
		return fmt.Errorf("%w: origin is required", ErrInvalid)
	}
	u, err := url.Parse(c.Origin)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: origin %q is not an absolute URL", ErrInvalid, c.Origin)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: origin scheme %q", ErrInvalid, u.Scheme)
	}
	switch c.Store.Backend {
	case BackendMemory, BackendSQLite:
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("%w: redis store needs an address", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalid, c.Store.Backend)
	}
	if c.Cache.MaxObjectSize < 0 || c.Cache.MaxEntries < 0 {
		return fmt.Errorf("%w: cache limits must not be negative", ErrInvalid)
	}
	if c.Cache.HeuristicFraction < 0 || c.Cache.HeuristicFraction > 1 {
		return fmt.Errorf("%w: heuristicFraction must be between 0 and 1", ErrInvalid)
	}
	if c.Transport.Timeout < 0 || c.Cache.RetainFor < 0 || c.Cache.UpdateInterval < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalid)
	}
	return nil
}
