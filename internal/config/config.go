// Package config provides configuration management for the market-data client.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Credentials Credentials    `mapstructure:"credentials"`
	Realtime    RealtimeConfig `mapstructure:"realtime"`
	History     HistoryConfig  `mapstructure:"history"`
	Cache       CacheConfig    `mapstructure:"cache"`
	Store       StoreConfig    `mapstructure:"store"`
	Metrics     MetricsConfig  `mapstructure:"metrics"`
	Logging     LoggingConfig  `mapstructure:"logging"`
}

// Credentials holds the account parameters passed through to the gateway.
type Credentials struct {
	LoginID     string `mapstructure:"login_id"`
	Password    string `mapstructure:"password"`
	BrokerToken string `mapstructure:"broker_token"`
}

// RealtimeConfig holds websocket session configuration.
type RealtimeConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// Heartbeat cadence and the staleness rule parameters.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatBuffer   time.Duration `mapstructure:"heartbeat_buffer"`
	ConfirmCount      int           `mapstructure:"confirm_count"`
	LookbackCount     int           `mapstructure:"lookback_count"`

	// Connect/reconnect policy. MaxReconnectAttempts == 0 retries forever.
	ConnectTimeout       time.Duration `mapstructure:"connect_timeout"`
	ReconnectDelay       time.Duration `mapstructure:"reconnect_delay"`
	ReconnectMaxDelay    time.Duration `mapstructure:"reconnect_max_delay"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	ExponentialBackoff   bool          `mapstructure:"exponential_backoff"`

	// FirstSubscriptionID seeds the auto-assigned id counter.
	FirstSubscriptionID int `mapstructure:"first_subscription_id"`
}

// HistoryConfig holds REST client configuration.
type HistoryConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	BhavcopyURL string `mapstructure:"bhavcopy_url"`
	AuthURL     string `mapstructure:"auth_url"`

	// TokenSafetyBuffer is subtracted from the server-reported TTL so the
	// token is refreshed before it actually lapses.
	TokenSafetyBuffer time.Duration `mapstructure:"token_safety_buffer"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	DefaultBarSize    string        `mapstructure:"default_bar_size"`
	TimestampFormat   string        `mapstructure:"timestamp_format"`
}

// CacheConfig holds symbol-cache configuration.
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
	URL     string `mapstructure:"url"`
}

// StoreConfig holds optional bar persistence configuration.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// MetricsConfig holds prometheus instrumentation configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
	File    bool   `mapstructure:"file"`
	Path    string `mapstructure:"path"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".truedata-client"
	}
	return filepath.Join(home, ".config", "truedata-client")
}

// Load reads configuration from the default location, environment variables
// and defaults.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigDir())
}

// LoadFrom reads configuration from the given directory.
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.SetEnvPrefix("TD")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine; env vars and defaults still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Credentials may come from the environment directly.
	if cfg.Credentials.LoginID == "" {
		cfg.Credentials.LoginID = os.Getenv("TD_LOGIN_ID")
	}
	if cfg.Credentials.Password == "" {
		cfg.Credentials.Password = os.Getenv("TD_PASSWORD")
	}
	if cfg.Credentials.BrokerToken == "" {
		cfg.Credentials.BrokerToken = os.Getenv("TD_BROKER_TOKEN")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("realtime.host", "push.truedata.in")
	v.SetDefault("realtime.port", 8082)
	v.SetDefault("realtime.heartbeat_interval", 5*time.Second)
	v.SetDefault("realtime.heartbeat_buffer", time.Second)
	v.SetDefault("realtime.confirm_count", 4)
	v.SetDefault("realtime.lookback_count", 16)
	v.SetDefault("realtime.connect_timeout", 30*time.Second)
	v.SetDefault("realtime.reconnect_delay", 5*time.Second)
	v.SetDefault("realtime.reconnect_max_delay", time.Minute)
	v.SetDefault("realtime.max_reconnect_attempts", 0)
	v.SetDefault("realtime.exponential_backoff", true)
	v.SetDefault("realtime.first_subscription_id", 2000)

	v.SetDefault("history.base_url", "https://hist.truedata.in")
	v.SetDefault("history.bhavcopy_url", "https://history.truedata.in")
	v.SetDefault("history.auth_url", "https://auth.truedata.in/token")
	v.SetDefault("history.token_safety_buffer", 5*time.Minute)
	v.SetDefault("history.request_timeout", 30*time.Second)
	v.SetDefault("history.default_bar_size", "1min")
	v.SetDefault("history.timestamp_format", "2006-01-02T15:04:05")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.dir", filepath.Join("cache", "sym_cache"))
	v.SetDefault("cache.url", "https://api.truedata.in/getAllSymbols")

	v.SetDefault("store.enabled", false)
	v.SetDefault("store.path", filepath.Join(DefaultConfigDir(), "bars.db"))

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9190")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.path", filepath.Join(DefaultConfigDir(), "logs", "truedata.log"))
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Credentials.LoginID == "" || c.Credentials.Password == "" {
		return fmt.Errorf("credentials: login_id and password are required")
	}
	if c.Realtime.Port <= 0 || c.Realtime.Port > 65535 {
		return fmt.Errorf("realtime.port out of range: %d", c.Realtime.Port)
	}
	if c.Realtime.HeartbeatInterval <= 0 {
		return fmt.Errorf("realtime.heartbeat_interval must be positive")
	}
	if c.Realtime.ConfirmCount <= 0 {
		return fmt.Errorf("realtime.confirm_count must be positive")
	}
	if c.Realtime.LookbackCount < 0 {
		return fmt.Errorf("realtime.lookback_count must be non-negative")
	}
	return nil
}

// WebSocketURL builds the realtime gateway URL with credentials embedded in
// the query string.
func (c *Config) WebSocketURL() string {
	url := fmt.Sprintf("wss://%s:%d?user=%s&password=%s",
		c.Realtime.Host, c.Realtime.Port,
		c.Credentials.LoginID, c.Credentials.Password)
	if c.Credentials.BrokerToken != "" {
		url += "&brokertoken=" + c.Credentials.BrokerToken
	}
	return url
}
