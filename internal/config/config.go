package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Debug      DebugConfig      `yaml:"debug"`
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	MaxBodySizeMB  int           `yaml:"max_body_size_mb"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	LoggingLevel   string        `yaml:"logging_level"`
	LogJSON        bool          `yaml:"log_json"`
}

// UpstreamConfig describes the single OpenAI-compatible upstream requests are
// forwarded to. Model is the upstream model name substituted into every
// outgoing request; the incoming Anthropic model name is never forwarded.
type UpstreamConfig struct {
	BaseURL          string `yaml:"base_url"`
	APIKey           string `yaml:"api_key"`
	Model            string `yaml:"model"`
	ForwardClientKey bool   `yaml:"forward_client_key"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool   `yaml:"prometheus_enabled"`
	HealthCheckPath   string `yaml:"health_check_path"`
}

// DebugConfig controls request/response dumping to disk. Disabled when Dir is
// empty.
type DebugConfig struct {
	Dir            string `yaml:"dir"`
	MaxFieldLength int    `yaml:"max_field_length"`
}

// UnmarshalYAML implements custom unmarshaling for ServerConfig so that
// request_timeout accepts duration strings like "120s" or "2m".
func (s *ServerConfig) UnmarshalYAML(value *yaml.Node) error {
	type tempConfig struct {
		Port           int    `yaml:"port"`
		MaxBodySizeMB  int    `yaml:"max_body_size_mb"`
		RequestTimeout string `yaml:"request_timeout"`
		LoggingLevel   string `yaml:"logging_level"`
		LogJSON        bool   `yaml:"log_json"`
	}

	var temp tempConfig
	if err := value.Decode(&temp); err != nil {
		return err
	}

	s.Port = temp.Port
	s.MaxBodySizeMB = temp.MaxBodySizeMB
	s.LoggingLevel = temp.LoggingLevel
	s.LogJSON = temp.LogJSON

	if temp.RequestTimeout == "" {
		s.RequestTimeout = 0
		return nil
	}
	duration, err := time.ParseDuration(temp.RequestTimeout)
	if err != nil {
		return fmt.Errorf("invalid request_timeout: %w", err)
	}
	s.RequestTimeout = duration
	return nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Normalize cleans up configuration values and applies defaults and
// environment overrides. UPSTREAM_API_KEY overrides upstream.api_key so
// secrets can stay out of the config file.
func (c *Config) Normalize() {
	c.Upstream.BaseURL = strings.TrimSuffix(strings.TrimSuffix(c.Upstream.BaseURL, "/"), "/v1")

	if key := os.Getenv("UPSTREAM_API_KEY"); key != "" {
		c.Upstream.APIKey = key
	}

	if c.Server.Port == 0 {
		c.Server.Port = 8082
	}
	if c.Server.MaxBodySizeMB == 0 {
		c.Server.MaxBodySizeMB = 32
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 10 * time.Minute
	}
	if c.Server.LoggingLevel == "" {
		c.Server.LoggingLevel = "info"
	}
	if c.Monitoring.HealthCheckPath == "" {
		c.Monitoring.HealthCheckPath = "/health"
	}
	if c.Debug.MaxFieldLength == 0 {
		c.Debug.MaxFieldLength = 500
	}
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.MaxBodySizeMB <= 0 {
		return fmt.Errorf("invalid max_body_size_mb: %d", c.Server.MaxBodySizeMB)
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("invalid request_timeout: %v", c.Server.RequestTimeout)
	}

	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	parsed, err := url.Parse(c.Upstream.BaseURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("invalid upstream.base_url: %q", c.Upstream.BaseURL)
	}

	if c.Upstream.Model == "" {
		return fmt.Errorf("upstream.model is required")
	}
	if c.Upstream.APIKey == "" && !c.Upstream.ForwardClientKey {
		return fmt.Errorf("upstream.api_key is required unless forward_client_key is enabled")
	}

	return nil
}
