// Package config provides configuration loading and management for placesync.
//
// Configuration is read from an optional YAML file, then overlaid with
// environment variables (PLACESYNC_* plus the historical unprefixed names),
// then defaulted and validated.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dreampalaces/placesync/internal/telemetry"
)

const (
	// EnvPrefix is the prefix of every environment variable read by placesync
	EnvPrefix = "PLACESYNC"

	// DefaultEndpoint is the upstream API root
	DefaultEndpoint = "https://api.airtable.com"

	// DefaultPageSize is the number of records requested per page
	DefaultPageSize = 100

	// MaxPageSize is the largest page the upstream API accepts
	MaxPageSize = 100

	// DefaultRateLimitBackoff is the fixed wait after an HTTP 429
	DefaultRateLimitBackoff = 1200 * time.Millisecond

	// DefaultRequestTimeout bounds a single page request
	DefaultRequestTimeout = 30 * time.Second

	// DefaultCachePath is where the GeoJSON cache lives when nothing else is configured
	DefaultCachePath = "./airtablesync/places_cache.geojson"

	// DefaultMinRefreshInterval is the minimum time between two upstream refreshes
	DefaultMinRefreshInterval = 300 * time.Second

	// DefaultAddress is the listen address of the HTTP server
	DefaultAddress = ":5001"

	// DefaultRefreshTimeout bounds one bootstrap or refresh triggered over HTTP
	DefaultRefreshTimeout = 2 * time.Minute

	// DefaultSourceURLTemplate builds the provenance URL of each feature
	DefaultSourceURLTemplate = "https://api.airtable.com/{base}/{table}/{id}"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path     string
	envFiles []string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks; this also cleans the path
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// WithEnvFiles loads the given dotenv files before reading the environment.
// Missing files are ignored; variables already set in the process win.
func WithEnvFiles(paths ...string) Option {
	return func(cfg *loaderConfig) error {
		cfg.envFiles = append(cfg.envFiles, paths...)
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Upstream  UpstreamConfig    `yaml:"upstream"`
	Transform TransformConfig   `yaml:"transform"`
	Cache     CacheConfig       `yaml:"cache"`
	Refresh   RefreshConfig     `yaml:"refresh"`
	Server    ServerConfig      `yaml:"server"`
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// UpstreamConfig describes the paginated table API
type UpstreamConfig struct {
	// Endpoint is the API root, without the /v0 path
	Endpoint string `yaml:"endpoint,omitempty"`

	// BaseID identifies the base (application) holding the table
	BaseID string `yaml:"baseID"`

	// Table is the table name or id; it is URL-escaped when building requests
	Table string `yaml:"table"`

	// Token is the personal access token sent as a bearer credential
	Token string `yaml:"token"`

	// View optionally restricts records to a saved view
	View string `yaml:"view,omitempty"`

	// PageSize is the number of records per page (1-100)
	PageSize int `yaml:"pageSize,omitempty"`

	// RateLimitBackoff is the fixed wait after an HTTP 429
	RateLimitBackoff Duration `yaml:"rateLimitBackoff,omitempty"`

	// RequestTimeout bounds each page request
	RequestTimeout Duration `yaml:"requestTimeout,omitempty"`
}

// TransformConfig controls how records become GeoJSON features
type TransformConfig struct {
	LatitudeField  string `yaml:"latitudeField"`
	LongitudeField string `yaml:"longitudeField"`

	// PublicFields is the property whitelist; empty keeps every field
	PublicFields []string `yaml:"publicFields,omitempty"`

	// NameField is copied into the "name" property when that property is absent
	NameField string `yaml:"nameField,omitempty"`

	// SourceURLTemplate supports the {base}, {table} and {id} placeholders
	SourceURLTemplate string `yaml:"sourceURLTemplate,omitempty"`
}

// CacheConfig locates the persisted files
type CacheConfig struct {
	Path string `yaml:"path,omitempty"`

	// StatusPath defaults to status.json next to Path
	StatusPath string `yaml:"statusPath,omitempty"`
}

// RefreshConfig controls manual refreshes
type RefreshConfig struct {
	MinInterval Duration `yaml:"minInterval,omitempty"`

	// Token authorizes manual refreshes; empty disables the check
	Token string `yaml:"token,omitempty"`
}

// ServerConfig controls the HTTP server
type ServerConfig struct {
	Address        string   `yaml:"address,omitempty"`
	RefreshTimeout Duration `yaml:"refreshTimeout,omitempty"`
}

// LoadConfig loads, overlays, defaults and validates the configuration
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if err := loadEnvFiles(loaderCfg.envFiles); err != nil {
		return nil, err
	}

	var config Config
	if loaderCfg.path != "" {
		data, err := os.ReadFile(loaderCfg.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if err := applyEnv(&config); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Upstream.Endpoint == "" {
		c.Upstream.Endpoint = DefaultEndpoint
	}
	c.Upstream.Endpoint = strings.TrimRight(c.Upstream.Endpoint, "/")
	if c.Upstream.PageSize == 0 {
		c.Upstream.PageSize = DefaultPageSize
	}
	if c.Upstream.RateLimitBackoff == 0 {
		c.Upstream.RateLimitBackoff = Duration(DefaultRateLimitBackoff)
	}
	if c.Upstream.RequestTimeout == 0 {
		c.Upstream.RequestTimeout = Duration(DefaultRequestTimeout)
	}
	if c.Transform.SourceURLTemplate == "" {
		c.Transform.SourceURLTemplate = DefaultSourceURLTemplate
	}
	if c.Cache.Path == "" {
		c.Cache.Path = DefaultCachePath
	}
	if c.Cache.StatusPath == "" {
		c.Cache.StatusPath = filepath.Join(filepath.Dir(c.Cache.Path), "status.json")
	}
	if c.Refresh.MinInterval == 0 {
		c.Refresh.MinInterval = Duration(DefaultMinRefreshInterval)
	}
	if c.Server.Address == "" {
		c.Server.Address = DefaultAddress
	}
	if c.Server.RefreshTimeout == 0 {
		c.Server.RefreshTimeout = Duration(DefaultRefreshTimeout)
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := c.Upstream.validate("upstream"); err != nil {
		return err
	}
	if err := c.Transform.validate("transform"); err != nil {
		return err
	}
	if c.Refresh.MinInterval < 0 {
		return fmt.Errorf("refresh: minInterval cannot be negative")
	}
	if c.Server.RefreshTimeout < 0 {
		return fmt.Errorf("server: refreshTimeout cannot be negative")
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}

func (u *UpstreamConfig) validate(prefix string) error {
	if u.BaseID == "" {
		return fmt.Errorf("%s: baseID is required", prefix)
	}
	if u.Table == "" {
		return fmt.Errorf("%s: table is required", prefix)
	}
	if u.Token == "" {
		return fmt.Errorf("%s: token is required", prefix)
	}
	if u.PageSize < 1 || u.PageSize > MaxPageSize {
		return fmt.Errorf("%s: pageSize must be between 1 and %d, got %d", prefix, MaxPageSize, u.PageSize)
	}
	if u.RateLimitBackoff < 0 {
		return fmt.Errorf("%s: rateLimitBackoff cannot be negative", prefix)
	}
	parsed, err := url.Parse(u.Endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%s: endpoint must be an absolute URL, got %q", prefix, u.Endpoint)
	}
	return nil
}

func (t *TransformConfig) validate(prefix string) error {
	if t.LatitudeField == "" {
		return fmt.Errorf("%s: latitudeField is required", prefix)
	}
	if t.LongitudeField == "" {
		return fmt.Errorf("%s: longitudeField is required", prefix)
	}
	if !strings.Contains(t.SourceURLTemplate, "{id}") {
		return fmt.Errorf("%s: sourceURLTemplate must contain the {id} placeholder", prefix)
	}
	return nil
}

// StatusPath returns the sync status file location
func (c *Config) StatusPath() string {
	return c.Cache.StatusPath
}
