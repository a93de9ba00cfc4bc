package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openfold/brokergate/internal/core"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Gateway   GatewayConfig             `mapstructure:"gateway"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Metrics   MetricsConfig             `mapstructure:"metrics"`
	Archive   ArchiveConfig             `mapstructure:"archive"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// GatewayConfig holds routing and caching behavior.
type GatewayConfig struct {
	// CacheTTL is how long a successful call result is served from
	// cache before a new network call is made.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	// HTTPTimeout bounds every outbound provider call.
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	// Priority is the fixed provider fallback ordering used when the
	// caller does not name a provider.
	Priority []string `mapstructure:"priority"`
	// Fallback enables trying the next capable provider when the
	// selected one is unavailable. Off by default.
	Fallback bool `mapstructure:"fallback"`
}

// ProviderConfig holds per-provider credentials and mode. Which secret
// fields matter depends on the provider's auth scheme.
type ProviderConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Mode        string `mapstructure:"mode"` // "live" or "paper"
	APIKey      string `mapstructure:"api_key"`
	APISecret   string `mapstructure:"api_secret"`
	AccessToken string `mapstructure:"access_token"`
	BotToken    string `mapstructure:"bot_token"`
	AccountID   string `mapstructure:"account_id"`
	ChannelID   string `mapstructure:"channel_id"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ArchiveConfig holds call-record archive configuration.
type ArchiveConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Type          string        `mapstructure:"type"` // "localfs" or "s3"
	Path          string        `mapstructure:"path"` // for localfs
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	S3            S3Config      `mapstructure:"s3"`
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// Load reads configuration from file
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Gateway: GatewayConfig{
			CacheTTL:    60 * time.Second,
			HTTPTimeout: 15 * time.Second,
			Priority:    []string{"alpaca", "tradier", "trading212", "fidelity"},
		},
		Providers: map[string]ProviderConfig{},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Type:          "localfs",
			FlushInterval: 60 * time.Second,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrInvalidInput,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Gateway.CacheTTL < 0 {
		return core.WrapError(core.ErrInvalidInput,
			fmt.Errorf("cache_ttl cannot be negative, got %v", c.Gateway.CacheTTL))
	}
	if c.Gateway.HTTPTimeout <= 0 {
		return core.WrapError(core.ErrInvalidInput,
			fmt.Errorf("http_timeout must be positive, got %v", c.Gateway.HTTPTimeout))
	}
	for name, p := range c.Providers {
		if p.Mode != "" && p.Mode != string(core.ModeLive) && p.Mode != string(core.ModePaper) {
			return core.WrapError(core.ErrInvalidInput,
				fmt.Errorf("provider %s: mode must be \"live\" or \"paper\", got %q", name, p.Mode))
		}
	}
	if c.Archive.Enabled && c.Archive.Type != "localfs" && c.Archive.Type != "s3" {
		return core.WrapError(core.ErrInvalidInput,
			fmt.Errorf("archive type must be \"localfs\" or \"s3\", got %q", c.Archive.Type))
	}
	return nil
}

// Mode returns the provider's configured mode, defaulting to paper so
// missing configuration never touches a live trading endpoint.
func (c *Config) Mode(provider string) core.Mode {
	if p, ok := c.Providers[provider]; ok && p.Mode == string(core.ModeLive) {
		return core.ModeLive
	}
	return core.ModePaper
}

// Secrets returns the non-empty secret values configured for a
// provider. The gateway borrows this view per request and never
// stores it.
func (c *Config) Secrets(provider string) map[string]string {
	p, ok := c.Providers[provider]
	if !ok || !p.Enabled {
		return nil
	}
	secrets := make(map[string]string)
	for key, val := range map[string]string{
		"api_key":      p.APIKey,
		"api_secret":   p.APISecret,
		"access_token": p.AccessToken,
		"bot_token":    p.BotToken,
		"account_id":   p.AccountID,
		"channel_id":   p.ChannelID,
	} {
		if val != "" {
			secrets[key] = val
		}
	}
	if len(secrets) == 0 {
		return nil
	}
	return secrets
}

// ConfiguredProviders returns the ids of enabled providers that have
// at least one secret set.
func (c *Config) ConfiguredProviders() []string {
	var ids []string
	for name := range c.Providers {
		if c.Secrets(name) != nil {
			ids = append(ids, name)
		}
	}
	return ids
}
