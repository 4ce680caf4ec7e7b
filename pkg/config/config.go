// Package config loads settings for the edge and origin servers from an
// optional YAML file, with every key overridable from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type Config struct {
	Origin    string `yaml:"origin"`
	Apex      string `yaml:"apex_domain"`
	Listen    string `yaml:"listen"`
	UserAgent string `yaml:"user_agent"`

	HTTPTimeout     time.Duration `yaml:"http_timeout"`
	MetadataTimeout time.Duration `yaml:"metadata_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`

	Cache struct {
		Backend    string `yaml:"backend"`
		RedisAddr  string `yaml:"redis_addr"`
		MaxEntries int    `yaml:"max_entries"`
	} `yaml:"cache"`

	DatabasePath   string `yaml:"database_path"`
	StaticDir      string `yaml:"static_dir"`
	StorageBaseURL string `yaml:"storage_base_url"`
	DefaultImage   string `yaml:"default_image"`
	DefaultFavicon string `yaml:"default_favicon"`

	MetricsListen string `yaml:"metrics_listen"`
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
}

// Default returns the built-in settings.
func Default() Config {
	c := Config{
		Listen:          ":8080",
		UserAgent:       "subpage-edge/1.0",
		HTTPTimeout:     15 * time.Second,
		MetadataTimeout: 5 * time.Second,
		MaxBodyBytes:    25 << 20,
		DatabasePath:    "subpage.db",
		StaticDir:       "public",
		LogLevel:        "info",
		LogFormat:       "json",
	}
	c.Cache.Backend = CacheMemory
	c.Cache.MaxEntries = 10000
	return c
}

// Load reads path (skipped when empty), applies environment overrides, and
// validates the result.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &c); err != nil {
			return Config{}, fmt.Errorf("syntax error in config file '%s': %w", path, err)
		}
	}
	if err := c.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := c.finish(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	c.Origin = getenv("ORIGIN", c.Origin)
	c.Apex = getenv("APEX_DOMAIN", c.Apex)
	c.Listen = getenv("LISTEN", c.Listen)
	c.UserAgent = getenv("USER_AGENT", c.UserAgent)
	c.Cache.Backend = getenv("CACHE_BACKEND", c.Cache.Backend)
	c.Cache.RedisAddr = getenv("REDIS_ADDR", c.Cache.RedisAddr)
	c.DatabasePath = getenv("DATABASE_PATH", c.DatabasePath)
	c.StaticDir = getenv("STATIC_DIR", c.StaticDir)
	c.StorageBaseURL = getenv("STORAGE_BASE_URL", c.StorageBaseURL)
	c.DefaultImage = getenv("DEFAULT_IMAGE", c.DefaultImage)
	c.DefaultFavicon = getenv("DEFAULT_FAVICON", c.DefaultFavicon)
	c.MetricsListen = getenv("METRICS_LISTEN", c.MetricsListen)
	c.LogLevel = getenv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getenv("LOG_FORMAT", c.LogFormat)

	var errs []error
	if v, ok := os.LookupEnv("CACHE_MAX_ENTRIES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("CACHE_MAX_ENTRIES: %w", err))
		}
		c.Cache.MaxEntries = n
	}
	if v, ok := os.LookupEnv("MAX_BODY_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("MAX_BODY_BYTES: %w", err))
		}
		c.MaxBodyBytes = n
	}
	if err := durationEnv("HTTP_TIMEOUT", &c.HTTPTimeout); err != nil {
		errs = append(errs, err)
	}
	if err := durationEnv("METADATA_TIMEOUT", &c.MetadataTimeout); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) finish() error {
	c.Origin = strings.TrimSuffix(strings.TrimSpace(c.Origin), "/")
	if c.Origin == "" {
		return errors.New("config: origin is required (set ORIGIN)")
	}
	u, err := url.Parse(c.Origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: origin %q is not an absolute http(s) URL", c.Origin)
	}
	if c.Apex == "" {
		c.Apex = u.Hostname()
	}
	c.Apex = strings.ToLower(c.Apex)

	switch c.Cache.Backend {
	case CacheMemory:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return errors.New("config: cache backend redis needs REDIS_ADDR")
		}
	default:
		return fmt.Errorf("config: unknown cache backend %q", c.Cache.Backend)
	}
	return nil
}

// getenv returns the environment value for key, or fallback when unset.
func getenv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// durationEnv accepts Go durations ("15s") or bare seconds ("15").
func durationEnv(key string, dst *time.Duration) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
