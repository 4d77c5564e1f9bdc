package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envBinding maps one configuration key to the environment variables that may set it.
// The first variable carries the PLACESYNC_ prefix; the rest are historical names
// kept for deployments that predate the prefix.
type envBinding struct {
	key   string
	names []string
	apply func(c *Config, v *viper.Viper, key string) error
}

func prefixed(name string) string {
	return EnvPrefix + "_" + name
}

func setString(dst func(*Config) *string) func(*Config, *viper.Viper, string) error {
	return func(c *Config, v *viper.Viper, key string) error {
		*dst(c) = v.GetString(key)
		return nil
	}
}

func setDuration(dst func(*Config) *Duration) func(*Config, *viper.Viper, string) error {
	return func(c *Config, v *viper.Viper, key string) error {
		d, err := ParseDuration(v.GetString(key))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst(c) = d
		return nil
	}
}

var envBindings = []envBinding{
	{
		key:   "upstream.endpoint",
		names: []string{prefixed("UPSTREAM_ENDPOINT")},
		apply: setString(func(c *Config) *string { return &c.Upstream.Endpoint }),
	},
	{
		key:   "upstream.baseid",
		names: []string{prefixed("UPSTREAM_BASE_ID"), "AIRTABLE_BASE"},
		apply: setString(func(c *Config) *string { return &c.Upstream.BaseID }),
	},
	{
		key:   "upstream.table",
		names: []string{prefixed("UPSTREAM_TABLE"), "AIRTABLE_TABLE"},
		apply: setString(func(c *Config) *string { return &c.Upstream.Table }),
	},
	{
		key:   "upstream.token",
		names: []string{prefixed("UPSTREAM_TOKEN"), "AIRTABLE_TOKEN"},
		apply: setString(func(c *Config) *string { return &c.Upstream.Token }),
	},
	{
		key:   "upstream.view",
		names: []string{prefixed("UPSTREAM_VIEW"), "AIRTABLE_VIEW"},
		apply: setString(func(c *Config) *string { return &c.Upstream.View }),
	},
	{
		key:   "upstream.pagesize",
		names: []string{prefixed("UPSTREAM_PAGE_SIZE")},
		apply: func(c *Config, v *viper.Viper, key string) error {
			n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			c.Upstream.PageSize = n
			return nil
		},
	},
	{
		key:   "upstream.ratelimitbackoff",
		names: []string{prefixed("UPSTREAM_RATE_LIMIT_BACKOFF")},
		apply: setDuration(func(c *Config) *Duration { return &c.Upstream.RateLimitBackoff }),
	},
	{
		key:   "upstream.requesttimeout",
		names: []string{prefixed("UPSTREAM_REQUEST_TIMEOUT")},
		apply: setDuration(func(c *Config) *Duration { return &c.Upstream.RequestTimeout }),
	},
	{
		key:   "transform.latitudefield",
		names: []string{prefixed("TRANSFORM_LATITUDE_FIELD"), "LAT_FIELD"},
		apply: setString(func(c *Config) *string { return &c.Transform.LatitudeField }),
	},
	{
		key:   "transform.longitudefield",
		names: []string{prefixed("TRANSFORM_LONGITUDE_FIELD"), "LNG_FIELD"},
		apply: setString(func(c *Config) *string { return &c.Transform.LongitudeField }),
	},
	{
		key:   "transform.publicfields",
		names: []string{prefixed("TRANSFORM_PUBLIC_FIELDS"), "PUBLIC_FIELDS"},
		apply: func(c *Config, v *viper.Viper, key string) error {
			c.Transform.PublicFields = SplitList(v.GetString(key))
			return nil
		},
	},
	{
		key:   "transform.namefield",
		names: []string{prefixed("TRANSFORM_NAME_FIELD"), "NAME_FIELD"},
		apply: setString(func(c *Config) *string { return &c.Transform.NameField }),
	},
	{
		key:   "transform.sourceurltemplate",
		names: []string{prefixed("TRANSFORM_SOURCE_URL_TEMPLATE")},
		apply: setString(func(c *Config) *string { return &c.Transform.SourceURLTemplate }),
	},
	{
		key:   "cache.path",
		names: []string{prefixed("CACHE_PATH"), "CACHE_PATH"},
		apply: setString(func(c *Config) *string { return &c.Cache.Path }),
	},
	{
		key:   "cache.statuspath",
		names: []string{prefixed("CACHE_STATUS_PATH")},
		apply: setString(func(c *Config) *string { return &c.Cache.StatusPath }),
	},
	{
		key: "refresh.mininterval",
		names: []string{
			prefixed("REFRESH_MIN_INTERVAL"),
			"REFRESH_MIN_INTERVAL_SECONDS",
			// misspelled name used by the first deployments
			"REFRESH_MIN_INVERVAL_SECONDS",
		},
		apply: setDuration(func(c *Config) *Duration { return &c.Refresh.MinInterval }),
	},
	{
		key:   "refresh.token",
		names: []string{prefixed("REFRESH_TOKEN"), "REFRESH_TOKEN"},
		apply: setString(func(c *Config) *string { return &c.Refresh.Token }),
	},
	{
		key:   "server.address",
		names: []string{prefixed("SERVER_ADDRESS")},
		apply: setString(func(c *Config) *string { return &c.Server.Address }),
	},
	{
		key:   "server.refreshtimeout",
		names: []string{prefixed("SERVER_REFRESH_TIMEOUT")},
		apply: setDuration(func(c *Config) *Duration { return &c.Server.RefreshTimeout }),
	},
}

// applyEnv overlays environment variables onto c. Unset variables leave c untouched.
func applyEnv(c *Config) error {
	v := viper.New()
	for _, b := range envBindings {
		args := append([]string{b.key}, b.names...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", b.key, err)
		}
	}

	for _, b := range envBindings {
		if !v.IsSet(b.key) {
			continue
		}
		if err := b.apply(c, v, b.key); err != nil {
			return err
		}
	}
	return nil
}

func loadEnvFiles(paths []string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}
	return nil
}

// SplitList splits a comma separated list, trimming blanks and dropping empty items
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseDuration accepts either a Go duration ("5m", "1.5s") or a bare number of seconds
func ParseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return Duration(time.Duration(secs * float64(time.Second))), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("must be a duration (e.g. '5m') or a number of seconds: %w", err)
	}
	return Duration(d), nil
}
