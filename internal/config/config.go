// Package config handles configuration management with validation.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Exchange products the trader can run against.
const (
	ProductBinanceSpot    = "binance_spot"
	ProductBinanceFutures = "binance_futures"
	ProductMock           = "mock"
)

// Config represents the complete configuration structure.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Exchange  ExchangeConfig  `yaml:"exchange"`
	Trading   TradingConfig   `yaml:"trading"`
	System    SystemConfig    `yaml:"system"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Product string `yaml:"product"`
}

// ExchangeConfig contains exchange credentials and transport settings.
type ExchangeConfig struct {
	APIKey       string  `yaml:"api_key"`
	SecretKey    string  `yaml:"secret_key"`
	BaseURL      string  `yaml:"base_url"`  // optional override for the API URL
	ProxyURL     string  `yaml:"proxy_url"` // optional HTTP proxy
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
}

// TradingConfig contains the grid strategy parameters.
type TradingConfig struct {
	Symbol     string  `yaml:"symbol"`
	GapPercent float64 `yaml:"gap_percent"` // fractional offset per level, 0.01 = 1%
	Quantity   float64 `yaml:"quantity"`    // base order size before quantization
	MaxOrders  int     `yaml:"max_orders"`  // per-side ladder depth cap
}

// SystemConfig contains process-level settings.
type SystemConfig struct {
	LogLevel            string `yaml:"log_level"`
	CancelOnStart       *bool  `yaml:"cancel_on_start"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	FaultBackoffSeconds int    `yaml:"fault_backoff_seconds"`
}

// TelemetryConfig contains metrics settings.
type TelemetryConfig struct {
	EnableMetrics bool `yaml:"enable_metrics"`
	MetricsPort   int  `yaml:"metrics_port"`
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable
// expansion. A broken or invalid file is fatal for the caller: no tick may
// run on a half-formed configuration.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.Expand(string(data), os.Getenv)

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.System.LogLevel == "" {
		c.System.LogLevel = "INFO"
	}
	if c.System.PollIntervalSeconds == 0 {
		c.System.PollIntervalSeconds = 20
	}
	if c.System.FaultBackoffSeconds == 0 {
		c.System.FaultBackoffSeconds = 5
	}
	if c.System.CancelOnStart == nil {
		t := true
		c.System.CancelOnStart = &t
	}
	if c.Exchange.RateLimitRPS == 0 {
		c.Exchange.RateLimitRPS = 8
	}
	if c.Telemetry.MetricsPort == 0 {
		c.Telemetry.MetricsPort = 9090
	}
}

// Validate performs comprehensive validation of the configuration.
func (c *Config) Validate() error {
	var errs []string

	if err := c.validateApp(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateExchange(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateTrading(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateSystem(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}
	return nil
}

func (c *Config) validateApp() error {
	validProducts := []string{ProductBinanceSpot, ProductBinanceFutures, ProductMock}
	if !contains(validProducts, c.App.Product) {
		return ValidationError{
			Field:   "app.product",
			Value:   c.App.Product,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validProducts, ", ")),
		}
	}
	return nil
}

func (c *Config) validateExchange() error {
	if c.App.Product == ProductMock {
		return nil
	}
	if c.Exchange.APIKey == "" {
		return ValidationError{Field: "exchange.api_key", Message: "API key is required"}
	}
	if c.Exchange.SecretKey == "" {
		return ValidationError{Field: "exchange.secret_key", Message: "secret key is required"}
	}
	if c.Exchange.RateLimitRPS < 0 {
		return ValidationError{
			Field:   "exchange.rate_limit_rps",
			Value:   c.Exchange.RateLimitRPS,
			Message: "rate limit must not be negative",
		}
	}
	return nil
}

func (c *Config) validateTrading() error {
	if c.Trading.Symbol == "" {
		return ValidationError{Field: "trading.symbol", Message: "trading symbol is required"}
	}
	if c.Trading.GapPercent <= 0 || c.Trading.GapPercent >= 1 {
		return ValidationError{
			Field:   "trading.gap_percent",
			Value:   c.Trading.GapPercent,
			Message: "gap percent must be in (0, 1)",
		}
	}
	if c.Trading.Quantity <= 0 {
		return ValidationError{
			Field:   "trading.quantity",
			Value:   c.Trading.Quantity,
			Message: "order quantity must be positive",
		}
	}
	if c.Trading.MaxOrders < 1 {
		return ValidationError{
			Field:   "trading.max_orders",
			Value:   c.Trading.MaxOrders,
			Message: "max orders must be at least 1",
		}
	}
	return nil
}

func (c *Config) validateSystem() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

// CancelOnStart reports whether resting orders are canceled at startup.
func (c *Config) CancelOnStart() bool {
	return c.System.CancelOnStart == nil || *c.System.CancelOnStart
}

// String returns a representation of the configuration with secrets masked.
func (c *Config) String() string {
	configCopy := *c
	configCopy.Exchange.APIKey = maskString(configCopy.Exchange.APIKey)
	configCopy.Exchange.SecretKey = maskString(configCopy.Exchange.SecretKey)

	data, _ := yaml.Marshal(configCopy)
	return string(data)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func maskString(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

// DefaultConfig returns a default configuration for testing.
func DefaultConfig() *Config {
	cfg := &Config{
		App: AppConfig{Product: ProductBinanceSpot},
		Exchange: ExchangeConfig{
			APIKey:    "test_api_key",
			SecretKey: "test_secret_key",
		},
		Trading: TradingConfig{
			Symbol:     "BTCUSDT",
			GapPercent: 0.01,
			Quantity:   0.01,
			MaxOrders:  3,
		},
		System: SystemConfig{
			LogLevel: "INFO",
		},
	}
	cfg.applyDefaults()
	return cfg
}
