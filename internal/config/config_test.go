package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `upstream:
  baseID: appDreamPalaces
  table: Cinemas
  token: pat123
transform:
  latitudeField: Latitude
  longitudeField: Longitude
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		yamlContent string
		check       func(t *testing.T, cfg *Config)
		errContains string
	}{
		{
			name:        "minimal config gets defaults",
			yamlContent: minimalYAML,
			check: func(t *testing.T, cfg *Config) {
				t.Helper()
				assert.Equal(t, DefaultEndpoint, cfg.Upstream.Endpoint)
				assert.Equal(t, 100, cfg.Upstream.PageSize)
				assert.Equal(t, DefaultRateLimitBackoff, cfg.Upstream.RateLimitBackoff.Std())
				assert.Equal(t, DefaultMinRefreshInterval, cfg.Refresh.MinInterval.Std())
				assert.Equal(t, DefaultCachePath, cfg.Cache.Path)
				assert.Equal(t, filepath.Join("airtablesync", "status.json"), cfg.Cache.StatusPath)
				assert.Equal(t, DefaultSourceURLTemplate, cfg.Transform.SourceURLTemplate)
				assert.Equal(t, ":5001", cfg.Server.Address)
				assert.Empty(t, cfg.Refresh.Token)
				assert.Nil(t, cfg.Telemetry)
			},
		},
		{
			name: "full config",
			yamlContent: `upstream:
  endpoint: http://localhost:9999/
  baseID: app1
  table: Places Table
  token: pat
  view: Public
  pageSize: 50
  rateLimitBackoff: 2s
  requestTimeout: 10
transform:
  latitudeField: lat
  longitudeField: lng
  publicFields: [Name, City]
  nameField: Name
  sourceURLTemplate: "https://airtable.com/{base}/{table}/{id}"
cache:
  path: /var/lib/placesync/places.geojson
  statusPath: /var/lib/placesync/sync.json
refresh:
  minInterval: 10m
  token: s3cret
server:
  address: 127.0.0.1:8080
  refreshTimeout: 90s
telemetry:
  enabled: true
  tracing:
    enabled: true
    sampling: 0.5
`,
			check: func(t *testing.T, cfg *Config) {
				t.Helper()
				assert.Equal(t, "http://localhost:9999", cfg.Upstream.Endpoint)
				assert.Equal(t, "Places Table", cfg.Upstream.Table)
				assert.Equal(t, "Public", cfg.Upstream.View)
				assert.Equal(t, 50, cfg.Upstream.PageSize)
				assert.Equal(t, 2*time.Second, cfg.Upstream.RateLimitBackoff.Std())
				assert.Equal(t, 10*time.Second, cfg.Upstream.RequestTimeout.Std())
				assert.Equal(t, []string{"Name", "City"}, cfg.Transform.PublicFields)
				assert.Equal(t, "Name", cfg.Transform.NameField)
				assert.Equal(t, "/var/lib/placesync/sync.json", cfg.Cache.StatusPath)
				assert.Equal(t, 10*time.Minute, cfg.Refresh.MinInterval.Std())
				assert.Equal(t, "s3cret", cfg.Refresh.Token)
				assert.Equal(t, 90*time.Second, cfg.Server.RefreshTimeout.Std())
				require.NotNil(t, cfg.Telemetry)
				assert.True(t, cfg.Telemetry.Enabled)
			},
		},
		{
			name:        "missing base id",
			yamlContent: "upstream:\n  table: t\n  token: x\ntransform:\n  latitudeField: a\n  longitudeField: b\n",
			errContains: "upstream: baseID is required",
		},
		{
			name:        "missing latitude field",
			yamlContent: "upstream:\n  baseID: b\n  table: t\n  token: x\ntransform:\n  longitudeField: b\n",
			errContains: "transform: latitudeField is required",
		},
		{
			name:        "page size too large",
			yamlContent: "upstream:\n  baseID: b\n  table: t\n  token: x\n  pageSize: 500\n" +
				"transform:\n  latitudeField: a\n  longitudeField: b\n",
			errContains: "pageSize must be between 1 and 100",
		},
		{
			name:        "template without id placeholder",
			yamlContent: minimalYAML + "  sourceURLTemplate: https://example.com/{base}\n",
			errContains: "{id} placeholder",
		},
		{
			name:        "bad duration",
			yamlContent: minimalYAML + "refresh:\n  minInterval: soon\n",
			errContains: "failed to parse YAML config",
		},
		{
			name: "invalid telemetry sampling",
			yamlContent: minimalYAML + `telemetry:
  enabled: true
  tracing:
    enabled: true
    sampling: 3
`,
			errContains: "telemetry:",
		},
		{
			name:        "malformed yaml",
			yamlContent: "upstream: [",
			errContains: "failed to parse YAML config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := LoadConfig(WithConfigPath(writeConfig(t, tt.yamlContent)))
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestWithConfigPath(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(WithConfigPath(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")

	_, err = LoadConfig(WithConfigPath(filepath.Join(t.TempDir(), "missing.yaml")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to evaluate symlinks")
}

// Environment tests mutate the process environment and cannot run in parallel.

func TestLoadConfig_LegacyEnvironment(t *testing.T) {
	t.Setenv("AIRTABLE_BASE", "appLegacy")
	t.Setenv("AIRTABLE_TABLE", "Dream Palaces")
	t.Setenv("AIRTABLE_TOKEN", "patLegacy")
	t.Setenv("AIRTABLE_VIEW", "Grid view")
	t.Setenv("LAT_FIELD", "Latitude")
	t.Setenv("LNG_FIELD", "Longitude")
	t.Setenv("PUBLIC_FIELDS", " Name, City ,, Country ")
	t.Setenv("NAME_FIELD", "Name")
	t.Setenv("CACHE_PATH", "/tmp/places.geojson")
	t.Setenv("REFRESH_TOKEN", "tok")
	t.Setenv("REFRESH_MIN_INVERVAL_SECONDS", "60")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "appLegacy", cfg.Upstream.BaseID)
	assert.Equal(t, "Dream Palaces", cfg.Upstream.Table)
	assert.Equal(t, "patLegacy", cfg.Upstream.Token)
	assert.Equal(t, "Grid view", cfg.Upstream.View)
	assert.Equal(t, []string{"Name", "City", "Country"}, cfg.Transform.PublicFields)
	assert.Equal(t, "Name", cfg.Transform.NameField)
	assert.Equal(t, "/tmp/places.geojson", cfg.Cache.Path)
	assert.Equal(t, "/tmp/status.json", cfg.Cache.StatusPath)
	assert.Equal(t, "tok", cfg.Refresh.Token)
	assert.Equal(t, time.Minute, cfg.Refresh.MinInterval.Std())
}

func TestLoadConfig_PrefixedEnvironmentWins(t *testing.T) {
	t.Setenv("AIRTABLE_BASE", "appLegacy")
	t.Setenv("PLACESYNC_UPSTREAM_BASE_ID", "appNew")
	t.Setenv("REFRESH_MIN_INTERVAL_SECONDS", "60")
	t.Setenv("PLACESYNC_REFRESH_MIN_INTERVAL", "2m")

	cfg, err := LoadConfig(WithConfigPath(writeConfig(t, minimalYAML)))
	require.NoError(t, err)

	assert.Equal(t, "appNew", cfg.Upstream.BaseID)
	assert.Equal(t, 2*time.Minute, cfg.Refresh.MinInterval.Std())
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	t.Setenv("PLACESYNC_UPSTREAM_TOKEN", "patFromEnv")
	t.Setenv("PLACESYNC_UPSTREAM_PAGE_SIZE", "25")

	cfg, err := LoadConfig(WithConfigPath(writeConfig(t, minimalYAML)))
	require.NoError(t, err)

	assert.Equal(t, "patFromEnv", cfg.Upstream.Token)
	assert.Equal(t, 25, cfg.Upstream.PageSize)
}

func TestLoadConfig_InvalidEnvironment(t *testing.T) {
	t.Setenv("PLACESYNC_UPSTREAM_PAGE_SIZE", "lots")

	_, err := LoadConfig(WithConfigPath(writeConfig(t, minimalYAML)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid environment")
}

func TestLoadConfig_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte(
		"AIRTABLE_BASE=appDotenv\nAIRTABLE_TABLE=Cinemas\nAIRTABLE_TOKEN=pat\nLAT_FIELD=lat\nLNG_FIELD=lng\n"), 0600))

	for _, key := range []string{"AIRTABLE_BASE", "AIRTABLE_TABLE", "AIRTABLE_TOKEN", "LAT_FIELD", "LNG_FIELD"} {
		// register cleanup so godotenv's writes do not leak into other tests
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := LoadConfig(WithEnvFiles(envPath, filepath.Join(dir, "missing.env")))
	require.NoError(t, err)
	assert.Equal(t, "appDotenv", cfg.Upstream.BaseID)
	assert.Equal(t, "lat", cfg.Transform.LatitudeField)
}

func TestParseDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{input: "300", want: 300 * time.Second},
		{input: "1.5", want: 1500 * time.Millisecond},
		{input: "5m", want: 5 * time.Minute},
		{input: " 250ms ", want: 250 * time.Millisecond},
		{input: "", wantErr: true},
		{input: "later", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got, err := ParseDuration(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Std())
		})
	}
}

func TestSplitList(t *testing.T) {
	t.Parallel()

	assert.Nil(t, SplitList(""))
	assert.Nil(t, SplitList(" , ,"))
	assert.Equal(t, []string{"Condition [V2]", "Name"}, SplitList("Condition [V2] ,Name"))
}
