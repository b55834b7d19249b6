// Package config loads skillgarden settings from viper (config file, env vars
// and bound cobra flags) into a typed Config.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by skillgarden
const EnvPrefix = "SKILLGARDEN"

// RetryConfig controls retries of outbound HTTP calls
type RetryConfig struct {
	Attempts     int           `mapstructure:"attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	BackoffType  string        `mapstructure:"backoff_type"` // "fixed" or "exponential"
}

// DefaultRetryConfig is applied when no retry attempts are configured
var DefaultRetryConfig = RetryConfig{
	Attempts:     3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     5 * time.Second,
	BackoffType:  "exponential",
}

type GitHubConfig struct {
	Token   string        `mapstructure:"token"`
	APIURL  string        `mapstructure:"api_url"`
	RawURL  string        `mapstructure:"raw_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type HTTPConfig struct {
	Retry RetryConfig `mapstructure:"retry"`
}

type CacheConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	NegativeTTL     time.Duration `mapstructure:"negative_ttl"`
	MaxSize         int           `mapstructure:"max_size"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type MarketplaceConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RegistryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Watch   bool   `mapstructure:"watch"`
}

type AwesomeListConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type SourcesConfig struct {
	Marketplace MarketplaceConfig `mapstructure:"marketplace"`
	Registry    RegistryConfig    `mapstructure:"registry"`
	AwesomeList AwesomeListConfig `mapstructure:"awesome_list"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type MCPConfig struct {
	Transport string `mapstructure:"transport"` // "stdio" or "sse"
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
}

type TracingConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Sampler string  `mapstructure:"sampler"`
	Ratio   float64 `mapstructure:"ratio"`
}

// Config is the complete skillgarden configuration
type Config struct {
	LogLevel  string        `mapstructure:"log_level"`
	LogFormat string        `mapstructure:"log_format"`
	GitHub    GitHubConfig  `mapstructure:"github"`
	HTTP      HTTPConfig    `mapstructure:"http"`
	Cache     CacheConfig   `mapstructure:"cache"`
	Sources   SourcesConfig `mapstructure:"sources"`
	Server    ServerConfig  `mapstructure:"server"`
	MCP       MCPConfig     `mapstructure:"mcp"`
	Tracing   TracingConfig `mapstructure:"tracing"`
}

// Defaults maps every configuration key to its default value
var Defaults = map[string]any{
	"log_level":  "info",
	"log_format": "fmt",

	"github.token":   "",
	"github.api_url": "https://api.github.com/",
	"github.raw_url": "https://raw.githubusercontent.com",
	"github.timeout": 10 * time.Second,

	"http.retry.attempts":      DefaultRetryConfig.Attempts,
	"http.retry.initial_delay": DefaultRetryConfig.InitialDelay,
	"http.retry.max_delay":     DefaultRetryConfig.MaxDelay,
	"http.retry.backoff_type":  DefaultRetryConfig.BackoffType,

	"cache.ttl":              24 * time.Hour,
	"cache.negative_ttl":     5 * time.Minute,
	"cache.max_size":         1000,
	"cache.cleanup_interval": 5 * time.Minute,

	"sources.marketplace.enabled":  true,
	"sources.marketplace.base_url": "https://skills.sh",
	"sources.marketplace.timeout":  10 * time.Second,

	"sources.registry.enabled": true,
	"sources.registry.path":    "registry/SKILLS.md",
	"sources.registry.watch":   false,

	"sources.awesome_list.enabled": true,
	"sources.awesome_list.url":     "https://raw.githubusercontent.com/ComposioHQ/awesome-claude-skills/master/README.md",
	"sources.awesome_list.timeout": 10 * time.Second,
	"sources.awesome_list.ttl":     time.Hour,

	"server.host": "0.0.0.0",
	"server.port": 8000,

	"mcp.transport": "stdio",
	"mcp.host":      "127.0.0.1",
	"mcp.port":      8080,

	"tracing.enabled": false,
	"tracing.sampler": "ratio",
	"tracing.ratio":   1.0,
}

// Setup registers defaults, environment binding and config file lookup on v
func Setup(v *viper.Viper) {
	for key, value := range Defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.skillgarden")
	v.AddConfigPath(".")
}

// Load reads the configuration held by the global viper instance
func Load() (Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom unmarshals and validates the configuration held by v
func LoadFrom(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to unmarshal configuration")
	}

	if cfg.GitHub.Token == "" {
		cfg.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	}
	if cfg.HTTP.Retry.Attempts == 0 {
		cfg.HTTP.Retry = DefaultRetryConfig
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings that cannot work
func (c Config) Validate() error {
	if err := validatePort("server.port", c.Server.Port); err != nil {
		return err
	}
	if c.MCP.Transport != "stdio" && c.MCP.Transport != "sse" {
		return errors.Errorf("mcp.transport must be stdio or sse, got %q", c.MCP.Transport)
	}
	if c.MCP.Transport == "sse" {
		if err := validatePort("mcp.port", c.MCP.Port); err != nil {
			return err
		}
	}
	if c.Cache.MaxSize < 0 {
		return errors.Errorf("cache.max_size must not be negative, got %d", c.Cache.MaxSize)
	}
	if c.Cache.CleanupInterval < 0 {
		return errors.Errorf("cache.cleanup_interval must not be negative, got %s", c.Cache.CleanupInterval)
	}
	if c.HTTP.Retry.Attempts < 0 {
		return errors.Errorf("http.retry.attempts must not be negative, got %d", c.HTTP.Retry.Attempts)
	}
	if c.Tracing.Ratio < 0 || c.Tracing.Ratio > 1 {
		return errors.Errorf("tracing.ratio must be within [0, 1], got %v", c.Tracing.Ratio)
	}
	return nil
}

func validatePort(key string, port int) error {
	if port < 1 || port > 65535 {
		return errors.Errorf("%s must be within 1-65535, got %d", key, port)
	}
	return nil
}
