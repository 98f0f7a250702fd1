package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"marketfeed/internal/provider"
	"marketfeed/internal/provider/mapping"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, []string{mapping.Polygon, mapping.TwelveData, mapping.AlphaVantage}, cfg.Chain(provider.MarketData))
	require.Equal(t, []string{mapping.FRED, mapping.AlphaVantage}, cfg.Chain(provider.InterestRate))
}

func TestLongestChain(t *testing.T) {
	cfg := Default()
	require.Equal(t, 3, cfg.LongestChain())

	cfg.Chains = Chains{}
	require.Equal(t, 1, cfg.LongestChain())
}

func TestLoad_YAMLKeepsUnsetDefaults(t *testing.T) {
	// Arrange
	path := writeFile(t, "config.yaml", `
server:
  port: "9090"
providers:
  polygon:
    enabled: false
  twelvedata:
    base_url: http://localhost:1234
chains:
  market: [TwelveData, Polygon]
`)

	// Act
	cfg, err := Load(path)

	// Assert
	require.NoError(t, err)
	require.Equal(t, "9090", cfg.Server.Port)
	require.Equal(t, 15, cfg.Server.RequestTimeoutSec)
	require.False(t, cfg.Providers.Polygon.Enabled)
	require.Equal(t, 5, cfg.Providers.Polygon.MaxRequestsPerMinute)
	require.Equal(t, "http://localhost:1234", cfg.Providers.TwelveData.BaseURL)
	require.True(t, cfg.Providers.TwelveData.Enabled)
	require.Equal(t, []string{mapping.TwelveData, mapping.Polygon}, cfg.Chains.Market)
	require.Equal(t, Default().Chains.Rate, cfg.Chains.Rate)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default().Chains, cfg.Chains)
	require.Equal(t, Default().Server, cfg.Server)
}

func TestLoad_EnvOverrides(t *testing.T) {
	// Arrange
	t.Setenv("POLYGON_API_KEY", "pk")
	t.Setenv("OPENEXCHANGERATES_APP_ID", "oxr")
	t.Setenv("FRED_ENABLED", "no")
	t.Setenv("TWELVEDATA_MAX_RPM", "55")
	t.Setenv("TWELVEDATA_BURST", "0")
	t.Setenv("CHAIN_RATE", " CommoditiesAPI , OpenExchangeRates,")
	t.Setenv("LOG_LEVEL", "debug")

	// Act
	cfg, err := Load("")

	// Assert
	require.NoError(t, err)
	require.Equal(t, "pk", cfg.Providers.Polygon.Credential)
	require.Equal(t, "oxr", cfg.Providers.OpenExchangeRates.Credential)
	require.False(t, cfg.Providers.FRED.Enabled)
	require.Equal(t, 55, cfg.Providers.TwelveData.MaxRequestsPerMinute)
	require.Equal(t, 8, cfg.Providers.TwelveData.Burst, "burst below 1 is ignored")
	require.Equal(t, []string{mapping.CommoditiesAPI, mapping.OpenExchangeRates}, cfg.Chains.Rate)
	require.Equal(t, "debug", cfg.Logger.Level)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "server: [")
	_, err := Load(path)
	require.ErrorContains(t, err, "parse config")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown provider":   func(c *Config) { c.Chains.Market = []string{"Yahoo"} },
		"duplicate provider": func(c *Config) { c.Chains.Interest = []string{mapping.FRED, mapping.FRED} },
		"negative rpm":       func(c *Config) { c.Providers.FRED.MaxRequestsPerMinute = -1 },
		"empty port":         func(c *Config) { c.Server.Port = "" },
		"negative cache ttl": func(c *Config) { c.Server.CacheTTLSeconds = -5 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestProviderLookup(t *testing.T) {
	cfg := Default()
	cfg.Providers.CommoditiesAPI.Credential = "c"

	p, ok := cfg.Provider(mapping.CommoditiesAPI)
	require.True(t, ok)
	require.Equal(t, "c", p.Credential)

	_, ok = cfg.Provider("Bloomberg")
	require.False(t, ok)
}
