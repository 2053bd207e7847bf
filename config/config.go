package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Gridflow GridflowConfig `yaml:"gridflow"`
	Account  AccountConfig  `yaml:"account"`
	Source   SourceConfig   `yaml:"source"`
	Channels ChannelsConfig `yaml:"channels"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type GridflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// AccountConfig carries the traded symbol and order labelling settings. API
// credentials deliberately never appear in YAML; they are resolved from the
// environment (see Credentials).
type AccountConfig struct {
	Symbol     string `yaml:"symbol"`
	MarketType string `yaml:"market_type"`
	OrderLabel string `yaml:"order_label"`
	Leverage   int    `yaml:"leverage"`
}

type SourceConfig struct {
	Bybit BybitSourceConfig `yaml:"bybit"`
}

type BybitSourceConfig struct {
	RestURL        string               `yaml:"rest_url"`
	Timeout        time.Duration        `yaml:"timeout"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	Stream         StreamConfig         `yaml:"stream"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type StreamConfig struct {
	MarketURL      string        `yaml:"market_url"`
	UserURL        string        `yaml:"user_url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

type ChannelsConfig struct {
	RawBuffer  int `yaml:"raw_buffer"`
	NormBuffer int `yaml:"norm_buffer"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// LoadConfig reads and validates the YAML configuration, applying defaults
// for everything that is safe to default.
func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, defaultConfigPath, envConfigPaths)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Gridflow.Name == "" {
		c.Gridflow.Name = "gridflow"
	}
	if c.Source.Bybit.RestURL == "" {
		c.Source.Bybit.RestURL = "https://api.bybit.com"
	}
	if c.Source.Bybit.Timeout <= 0 {
		c.Source.Bybit.Timeout = 15 * time.Second
	}
	if c.Source.Bybit.ConnectionPool.MaxIdleConns <= 0 {
		c.Source.Bybit.ConnectionPool.MaxIdleConns = 10
	}
	if c.Source.Bybit.ConnectionPool.MaxConnsPerHost <= 0 {
		c.Source.Bybit.ConnectionPool.MaxConnsPerHost = 10
	}
	if c.Source.Bybit.ConnectionPool.IdleConnTimeout <= 0 {
		c.Source.Bybit.ConnectionPool.IdleConnTimeout = 90 * time.Second
	}
	if c.Source.Bybit.RateLimit.RequestsPerSecond <= 0 {
		c.Source.Bybit.RateLimit.RequestsPerSecond = 5
	}
	if c.Source.Bybit.RateLimit.BurstSize <= 0 {
		c.Source.Bybit.RateLimit.BurstSize = 10
	}
	if c.Source.Bybit.Stream.ReconnectDelay <= 0 {
		c.Source.Bybit.Stream.ReconnectDelay = 5 * time.Second
	}
	if c.Source.Bybit.Stream.PingInterval <= 0 {
		c.Source.Bybit.Stream.PingInterval = 27 * time.Second
	}
	if c.Channels.RawBuffer <= 0 {
		c.Channels.RawBuffer = 1000
	}
	if c.Channels.NormBuffer <= 0 {
		c.Channels.NormBuffer = 1000
	}
	if c.Account.OrderLabel == "" {
		c.Account.OrderLabel = "gridflow"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

func (c *Config) validate() error {
	symbol := strings.ToUpper(strings.TrimSpace(c.Account.Symbol))
	if symbol == "" {
		return fmt.Errorf("account.symbol is required")
	}
	c.Account.Symbol = symbol
	return nil
}
