// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Ethereum   EthereumConfig   `mapstructure:"ethereum"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	UniswapV3  UniswapV3Config  `mapstructure:"uniswap_v3"`
	ZeroEx     ZeroExConfig     `mapstructure:"zeroex"`
	OpenOcean  OpenOceanConfig  `mapstructure:"openocean"`
	PriceFeed  PriceFeedConfig  `mapstructure:"pricefeed"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	HealthPort  int    `mapstructure:"health_port"`
}

// EthereumConfig holds Ethereum node configuration.
type EthereumConfig struct {
	HTTPURL string `mapstructure:"http_url"`
	ChainID uint64 `mapstructure:"chain_id"`
}

// AggregatorConfig holds fan-out, ranking, cache and session settings.
type AggregatorConfig struct {
	OverallTimeout         time.Duration `mapstructure:"overall_timeout"`
	CacheTTL               time.Duration `mapstructure:"cache_ttl"`
	CacheSweepInterval     time.Duration `mapstructure:"cache_sweep_interval"`
	ResultTTL              time.Duration `mapstructure:"result_ttl"`
	Debounce               time.Duration `mapstructure:"debounce"`
	StaleAfter             time.Duration `mapstructure:"stale_after"`
	ImpactThresholdPercent float64       `mapstructure:"impact_threshold_percent"`
	ExcessImpactFactor     float64       `mapstructure:"excess_impact_factor"`
	DefaultSlippagePercent float64       `mapstructure:"default_slippage_percent"`
	Sources                []string      `mapstructure:"sources"`
}

// UniswapV3Config holds the on-chain quoting source settings.
type UniswapV3Config struct {
	Enabled       bool          `mapstructure:"enabled"`
	QuoterAddress string        `mapstructure:"quoter_address"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// QuoterAddressHex returns the quoter address as common.Address.
func (c *UniswapV3Config) QuoterAddressHex() common.Address {
	return common.HexToAddress(c.QuoterAddress)
}

// ZeroExConfig holds the 0x Swap API source settings.
type ZeroExConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
}

// OpenOceanConfig holds the OpenOcean API source settings.
type OpenOceanConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	BaseURL           string        `mapstructure:"base_url"`
	ChainSlug         string        `mapstructure:"chain_slug"`
	GasPriceGwei      float64       `mapstructure:"gas_price_gwei"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
}

// PriceFeedConfig holds the exchange price feed settings.
type PriceFeedConfig struct {
	WebSocketURL   string        `mapstructure:"websocket_url"`
	HTTPURL        string        `mapstructure:"http_url"`
	StaleAfter     time.Duration `mapstructure:"stale_after"`
	EnableFallback bool          `mapstructure:"enable_fallback"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	TraceProvider  string `mapstructure:"trace_provider"` // zipkin, otlpgrpc, otlphttp, console, empty
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	ZipkinURL      string `mapstructure:"zipkin_url"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("DEXQUOTE")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "DEXQUOTE_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "DEXQUOTE_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "DEXQUOTE_LOG_LEVEL", "LOG_LEVEL")

	// Ethereum
	v.BindEnv("ethereum.http_url", "DEXQUOTE_ETH_HTTP_URL", "ETH_HTTP_URL")
	v.BindEnv("ethereum.chain_id", "DEXQUOTE_ETH_CHAIN_ID", "ETH_CHAIN_ID")

	// Sources
	v.BindEnv("uniswap_v3.quoter_address", "DEXQUOTE_UNISWAP_QUOTER", "UNISWAP_QUOTER")
	v.BindEnv("zeroex.base_url", "DEXQUOTE_ZEROEX_URL", "ZEROEX_URL")
	v.BindEnv("zeroex.api_key", "DEXQUOTE_ZEROEX_API_KEY", "ZEROEX_API_KEY")
	v.BindEnv("openocean.base_url", "DEXQUOTE_OPENOCEAN_URL", "OPENOCEAN_URL")

	// Price feed
	v.BindEnv("pricefeed.websocket_url", "DEXQUOTE_PRICEFEED_WS_URL", "PRICEFEED_WS_URL")
	v.BindEnv("pricefeed.http_url", "DEXQUOTE_PRICEFEED_HTTP_URL", "PRICEFEED_HTTP_URL")

	// Telemetry
	v.BindEnv("telemetry.enabled", "DEXQUOTE_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "DEXQUOTE_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "DEXQUOTE_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("telemetry.trace_provider", "DEXQUOTE_TRACE_PROVIDER", "TRACE_PROVIDER")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "dexquote")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.health_port", 8080)

	// Ethereum defaults
	v.SetDefault("ethereum.chain_id", 1)

	// Aggregator defaults. The overall timeout is deliberately 2-3x a single
	// source timeout so one slow source cannot pin a whole round.
	v.SetDefault("aggregator.overall_timeout", "10s")
	v.SetDefault("aggregator.cache_ttl", "15s")
	v.SetDefault("aggregator.cache_sweep_interval", "60s")
	v.SetDefault("aggregator.result_ttl", "15s")
	v.SetDefault("aggregator.debounce", "400ms")
	v.SetDefault("aggregator.stale_after", "30s")
	v.SetDefault("aggregator.impact_threshold_percent", 3.0)
	v.SetDefault("aggregator.excess_impact_factor", 0.5)
	v.SetDefault("aggregator.default_slippage_percent", 0.5)
	v.SetDefault("aggregator.sources", []string{"uniswap_v3", "zeroex", "openocean"})

	// Uniswap V3 Mainnet defaults
	v.SetDefault("uniswap_v3.enabled", true)
	v.SetDefault("uniswap_v3.quoter_address", "0x61fFE014bA17989E743c5F6cB21bF9697530B21e")
	v.SetDefault("uniswap_v3.timeout", "5s")

	// 0x defaults
	v.SetDefault("zeroex.enabled", true)
	v.SetDefault("zeroex.base_url", "https://api.0x.org")
	v.SetDefault("zeroex.timeout", "4s")
	v.SetDefault("zeroex.requests_per_minute", 60)

	// OpenOcean defaults
	v.SetDefault("openocean.enabled", true)
	v.SetDefault("openocean.base_url", "https://open-api.openocean.finance")
	v.SetDefault("openocean.chain_slug", "eth")
	v.SetDefault("openocean.gas_price_gwei", 15)
	v.SetDefault("openocean.timeout", "4s")
	v.SetDefault("openocean.requests_per_minute", 60)

	// Price feed defaults
	v.SetDefault("pricefeed.websocket_url", "wss://stream.binance.com:9443")
	v.SetDefault("pricefeed.stale_after", "30s")
	v.SetDefault("pricefeed.enable_fallback", true)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "dexquote")
	v.SetDefault("telemetry.trace_provider", "console")
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.UniswapV3.Enabled {
		if c.Ethereum.HTTPURL == "" {
			return fmt.Errorf("ethereum.http_url is required when uniswap_v3 is enabled")
		}
		if !common.IsHexAddress(c.UniswapV3.QuoterAddress) {
			return fmt.Errorf("invalid uniswap_v3.quoter_address: %s", c.UniswapV3.QuoterAddress)
		}
	}
	if !c.UniswapV3.Enabled && !c.ZeroEx.Enabled && !c.OpenOcean.Enabled {
		return fmt.Errorf("at least one quote source must be enabled")
	}
	if c.Aggregator.OverallTimeout <= 0 {
		return fmt.Errorf("aggregator.overall_timeout must be positive")
	}
	if c.Aggregator.Debounce < 0 {
		return fmt.Errorf("aggregator.debounce cannot be negative")
	}
	if c.Aggregator.DefaultSlippagePercent < 0 || c.Aggregator.DefaultSlippagePercent >= 100 {
		return fmt.Errorf("aggregator.default_slippage_percent out of range: %f",
			c.Aggregator.DefaultSlippagePercent)
	}
	return nil
}
