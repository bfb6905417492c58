package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  max_body_size_mb: 16
  request_timeout: "2m"
  logging_level: "debug"
  log_json: true

upstream:
  base_url: "https://api.example.com"
  api_key: "sk-test"
  model: "gpt-4o"

monitoring:
  prometheus_enabled: true
  health_check_path: "/healthz"

debug:
  dir: "/tmp/dumps"
  max_field_length: 200
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 16, cfg.Server.MaxBodySizeMB)
	assert.Equal(t, 2*time.Minute, cfg.Server.RequestTimeout)
	assert.Equal(t, "debug", cfg.Server.LoggingLevel)
	assert.True(t, cfg.Server.LogJSON)

	assert.Equal(t, "https://api.example.com", cfg.Upstream.BaseURL)
	assert.Equal(t, "sk-test", cfg.Upstream.APIKey)
	assert.Equal(t, "gpt-4o", cfg.Upstream.Model)

	assert.True(t, cfg.Monitoring.PrometheusEnabled)
	assert.Equal(t, "/healthz", cfg.Monitoring.HealthCheckPath)
	assert.Equal(t, "/tmp/dumps", cfg.Debug.Dir)
	assert.Equal(t, 200, cfg.Debug.MaxFieldLength)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
upstream:
  base_url: "http://localhost:11434"
  api_key: "sk-x"
  model: "llama3"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8082, cfg.Server.Port)
	assert.Equal(t, 32, cfg.Server.MaxBodySizeMB)
	assert.Equal(t, 10*time.Minute, cfg.Server.RequestTimeout)
	assert.Equal(t, "info", cfg.Server.LoggingLevel)
	assert.Equal(t, "/health", cfg.Monitoring.HealthCheckPath)
	assert.Equal(t, 500, cfg.Debug.MaxFieldLength)
}

func TestLoadNormalizesBaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://api.example.com/v1", "https://api.example.com"},
		{"https://api.example.com/v1/", "https://api.example.com"},
		{"https://api.example.com/", "https://api.example.com"},
		{"https://api.example.com", "https://api.example.com"},
	}
	for _, tt := range tests {
		path := writeConfig(t, `
upstream:
  base_url: "`+tt.in+`"
  api_key: "sk-x"
  model: "m"
`)
		cfg, err := Load(path)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, cfg.Upstream.BaseURL, tt.in)
	}
}

func TestLoadEnvOverridesAPIKey(t *testing.T) {
	t.Setenv("UPSTREAM_API_KEY", "sk-from-env")
	path := writeConfig(t, `
upstream:
  base_url: "http://localhost:8000"
  api_key: "sk-from-file"
  model: "m"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.Upstream.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidTimeout(t *testing.T) {
	path := writeConfig(t, `
server:
  request_timeout: "soon"
upstream:
  base_url: "http://localhost:8000"
  api_key: "sk-x"
  model: "m"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request_timeout")
}

func TestValidateFailures(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server: ServerConfig{
				Port:           8082,
				MaxBodySizeMB:  32,
				RequestTimeout: time.Minute,
			},
			Upstream: UpstreamConfig{
				BaseURL: "http://localhost:8000",
				APIKey:  "sk-x",
				Model:   "m",
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "port"},
		{"missing base_url", func(c *Config) { c.Upstream.BaseURL = "" }, "base_url"},
		{"bad scheme", func(c *Config) { c.Upstream.BaseURL = "ftp://x" }, "base_url"},
		{"missing model", func(c *Config) { c.Upstream.Model = "" }, "model"},
		{"missing api key", func(c *Config) { c.Upstream.APIKey = "" }, "api_key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateForwardClientKeyWithoutAPIKey(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Port: 8082, MaxBodySizeMB: 32, RequestTimeout: time.Minute},
		Upstream: UpstreamConfig{
			BaseURL:          "http://localhost:8000",
			Model:            "m",
			ForwardClientKey: true,
		},
	}
	assert.NoError(t, cfg.Validate())
}
