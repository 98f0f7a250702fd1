package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"marketfeed/internal/logger"
	"marketfeed/internal/provider"
	"marketfeed/internal/provider/mapping"
)

type Server struct {
	Port              string `yaml:"port"`
	RequestTimeoutSec int    `yaml:"request_timeout_sec"`
	CacheTTLSeconds   int    `yaml:"cache_ttl_sec"`
	CacheMaxItems     int    `yaml:"cache_max_items"`
}

// Provider configures one upstream. Credential is usually supplied through
// the environment rather than the file.
type Provider struct {
	Enabled               bool   `yaml:"enabled"`
	Credential            string `yaml:"credential"`
	BaseURL               string `yaml:"base_url"`
	MaxRequestsPerMinute  int    `yaml:"max_requests_per_minute"`
	MinRequestIntervalSec int    `yaml:"min_request_interval_sec"`
	Burst                 int    `yaml:"burst"`
}

type Providers struct {
	Polygon           Provider `yaml:"polygon"`
	TwelveData        Provider `yaml:"twelvedata"`
	AlphaVantage      Provider `yaml:"alphavantage"`
	OpenExchangeRates Provider `yaml:"openexchangerates"`
	CommoditiesAPI    Provider `yaml:"commoditiesapi"`
	FRED              Provider `yaml:"fred"`
}

// Chains lists provider names in priority order per request kind.
type Chains struct {
	Market   []string `yaml:"market"`
	Rate     []string `yaml:"rate"`
	Interest []string `yaml:"interest"`
}

type Config struct {
	Server    Server        `yaml:"server"`
	Logger    logger.Config `yaml:"logger"`
	Providers Providers     `yaml:"providers"`
	Chains    Chains        `yaml:"chains"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 15, CacheTTLSeconds: 30, CacheMaxItems: 1000},
		Logger: logger.Config{Level: "info", Format: "json", Service: "marketfeed"},
		Providers: Providers{
			Polygon:           Provider{Enabled: true, MaxRequestsPerMinute: 5, Burst: 5},
			TwelveData:        Provider{Enabled: true, MaxRequestsPerMinute: 8, Burst: 8},
			AlphaVantage:      Provider{Enabled: true, MaxRequestsPerMinute: 5, Burst: 5},
			OpenExchangeRates: Provider{Enabled: true, MaxRequestsPerMinute: 10, Burst: 2},
			CommoditiesAPI:    Provider{Enabled: true, MaxRequestsPerMinute: 10, Burst: 2},
			FRED:              Provider{Enabled: true, MaxRequestsPerMinute: 120, Burst: 10},
		},
		Chains: Chains{
			Market:   []string{mapping.Polygon, mapping.TwelveData, mapping.AlphaVantage},
			Rate:     []string{mapping.OpenExchangeRates, mapping.CommoditiesAPI, mapping.AlphaVantage},
			Interest: []string{mapping.FRED, mapping.AlphaVantage},
		},
	}
}

// Load reads YAML config from path. If path is empty or the file does not
// exist, it returns defaults. A .env file next to the working directory is
// loaded first; environment variables then override select fields.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks chain names and numeric bounds.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server.port cannot be empty")
	}
	if c.Server.RequestTimeoutSec <= 0 {
		return fmt.Errorf("server.request_timeout_sec must be positive, got %d", c.Server.RequestTimeoutSec)
	}
	if c.Server.CacheTTLSeconds < 0 {
		return fmt.Errorf("server.cache_ttl_sec must not be negative, got %d", c.Server.CacheTTLSeconds)
	}
	for _, name := range names {
		p, _ := c.Provider(name)
		if p.MaxRequestsPerMinute < 0 || p.MinRequestIntervalSec < 0 || p.Burst < 0 {
			return fmt.Errorf("providers.%s: rate limits must not be negative", strings.ToLower(name))
		}
	}
	for kind, chain := range map[provider.Kind][]string{
		provider.MarketData:   c.Chains.Market,
		provider.ExchangeRate: c.Chains.Rate,
		provider.InterestRate: c.Chains.Interest,
	} {
		seen := make(map[string]struct{}, len(chain))
		for _, name := range chain {
			if _, ok := c.Provider(name); !ok {
				return fmt.Errorf("chains.%s: unknown provider %q", kind, name)
			}
			if _, dup := seen[name]; dup {
				return fmt.Errorf("chains.%s: provider %q listed twice", kind, name)
			}
			seen[name] = struct{}{}
		}
	}
	return nil
}

var names = []string{
	mapping.Polygon, mapping.TwelveData, mapping.AlphaVantage,
	mapping.OpenExchangeRates, mapping.CommoditiesAPI, mapping.FRED,
}

// Provider returns the settings for a provider by its display name.
func (c *Config) Provider(name string) (Provider, bool) {
	p := c.providerRef(name)
	if p == nil {
		return Provider{}, false
	}
	return *p, true
}

func (c *Config) providerRef(name string) *Provider {
	switch name {
	case mapping.Polygon:
		return &c.Providers.Polygon
	case mapping.TwelveData:
		return &c.Providers.TwelveData
	case mapping.AlphaVantage:
		return &c.Providers.AlphaVantage
	case mapping.OpenExchangeRates:
		return &c.Providers.OpenExchangeRates
	case mapping.CommoditiesAPI:
		return &c.Providers.CommoditiesAPI
	case mapping.FRED:
		return &c.Providers.FRED
	}
	return nil
}

// Chain returns the configured priority order for kind.
func (c *Config) Chain(kind provider.Kind) []string {
	switch kind {
	case provider.MarketData:
		return c.Chains.Market
	case provider.ExchangeRate:
		return c.Chains.Rate
	case provider.InterestRate:
		return c.Chains.Interest
	}
	return nil
}

// LongestChain is the number of providers in the longest chain. A request
// can take up to that many attempt timeouts.
func (c *Config) LongestChain() int {
	n := 1
	for _, chain := range [][]string{c.Chains.Market, c.Chains.Rate, c.Chains.Interest} {
		n = max(n, len(chain))
	}
	return n
}

// envPrefix maps provider names to their environment variable prefix.
var envPrefix = map[string]string{
	mapping.Polygon:           "POLYGON",
	mapping.TwelveData:        "TWELVEDATA",
	mapping.AlphaVantage:      "ALPHAVANTAGE",
	mapping.OpenExchangeRates: "OPENEXCHANGERATES",
	mapping.CommoditiesAPI:    "COMMODITIESAPI",
	mapping.FRED:              "FRED",
}

// credentialEnv names the secret variable for each provider.
var credentialEnv = map[string]string{
	mapping.Polygon:           "POLYGON_API_KEY",
	mapping.TwelveData:        "TWELVEDATA_API_KEY",
	mapping.AlphaVantage:      "ALPHAVANTAGE_API_KEY",
	mapping.OpenExchangeRates: "OPENEXCHANGERATES_APP_ID",
	mapping.CommoditiesAPI:    "COMMODITIESAPI_KEY",
	mapping.FRED:              "FRED_API_KEY",
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	envInt("REQUEST_TIMEOUT_SEC", 1, &cfg.Server.RequestTimeoutSec)
	envInt("CACHE_TTL_SEC", 0, &cfg.Server.CacheTTLSeconds)
	envInt("CACHE_MAX_ITEMS", 1, &cfg.Server.CacheMaxItems)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	envBool("TRACING_ENABLED", &cfg.Logger.Tracing)

	for _, name := range names {
		p := cfg.providerRef(name)
		prefix := envPrefix[name]
		if v := os.Getenv(credentialEnv[name]); v != "" {
			p.Credential = v
		}
		envBool(prefix+"_ENABLED", &p.Enabled)
		if v := os.Getenv(prefix + "_BASE_URL"); v != "" {
			p.BaseURL = v
		}
		envInt(prefix+"_MAX_RPM", 0, &p.MaxRequestsPerMinute)
		envInt(prefix+"_MIN_INTERVAL_SEC", 0, &p.MinRequestIntervalSec)
		envInt(prefix+"_BURST", 1, &p.Burst)
	}

	if v := os.Getenv("CHAIN_MARKET"); v != "" {
		cfg.Chains.Market = splitCSV(v)
	}
	if v := os.Getenv("CHAIN_RATE"); v != "" {
		cfg.Chains.Rate = splitCSV(v)
	}
	if v := os.Getenv("CHAIN_INTEREST"); v != "" {
		cfg.Chains.Interest = splitCSV(v)
	}
}

// envInt sets *dst from key when it parses and is at least min.
func envInt(key string, min int, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	x, err := strconv.Atoi(strings.TrimSpace(v))
	if err == nil && x >= min {
		*dst = x
	}
}

func envBool(key string, dst *bool) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y":
		*dst = true
	case "0", "false", "no", "n":
		*dst = false
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
