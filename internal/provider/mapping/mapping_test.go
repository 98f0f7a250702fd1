package mapping_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"marketfeed/internal/provider"
	"marketfeed/internal/provider/mapping"
)

func TestSymbol(t *testing.T) {
	t.Parallel()

	tests := []struct {
		provider string
		kind     provider.Kind
		asset    string
		want     string
		ok       bool
	}{
		{mapping.Polygon, provider.MarketData, "EURUSD", "C:EURUSD", true},
		{mapping.Polygon, provider.MarketData, "btcusd", "X:BTCUSD", true},
		{mapping.Polygon, provider.MarketData, "XAUUSD", "C:XAUUSD", true},
		{mapping.Polygon, provider.ExchangeRate, "EURUSD", "", false},
		{mapping.TwelveData, provider.MarketData, "USDJPY", "USD/JPY", true},
		{mapping.AlphaVantage, provider.MarketData, "EURUSD", "EUR/USD", true},
		{mapping.AlphaVantage, provider.MarketData, "XAUUSD", "", false},
		{mapping.AlphaVantage, provider.InterestRate, "DGS10", "TREASURY_YIELD:10year", true},
		{mapping.OpenExchangeRates, provider.ExchangeRate, "EURJPY", "EUR/JPY", true},
		{mapping.OpenExchangeRates, provider.MarketData, "EURJPY", "", false},
		{mapping.CommoditiesAPI, provider.ExchangeRate, "XAUUSD", "XAU/USD", true},
		{mapping.CommoditiesAPI, provider.ExchangeRate, "EURUSD", "", false},
		{mapping.FRED, provider.InterestRate, "FEDFUNDS", "FEDFUNDS", true},
		{mapping.FRED, provider.MarketData, "FEDFUNDS", "", false},
		{mapping.Polygon, provider.MarketData, "DOGEUSD", "", false},
		{"Nobody", provider.MarketData, "EURUSD", "", false},
	}

	for _, tc := range tests {
		got, ok := mapping.Symbol(tc.provider, tc.kind, tc.asset)
		require.Equalf(t, tc.ok, ok, "%s %s %s", tc.provider, tc.kind, tc.asset)
		require.Equalf(t, tc.want, got, "%s %s %s", tc.provider, tc.kind, tc.asset)
	}
}

func TestLookupTimeframe(t *testing.T) {
	t.Parallel()

	tf, ok := mapping.LookupTimeframe("4h")
	require.True(t, ok)
	require.Equal(t, 4, tf.Multiplier)
	require.Equal(t, "hour", tf.Timespan)
	require.Equal(t, "4h", tf.TwelveData)
	require.Equal(t, "60min", tf.AlphaVantage)
	require.True(t, tf.Intraday())

	tf, ok = mapping.LookupTimeframe("")
	require.True(t, ok)
	require.Equal(t, mapping.DefaultTimeframe, tf.ID)
	require.False(t, tf.Intraday())

	_, ok = mapping.LookupTimeframe("3d")
	require.False(t, ok)
	require.Equal(t, mapping.DefaultTimeframe, mapping.ResolveTimeframe("3d").ID)
}

func TestAssets(t *testing.T) {
	t.Parallel()

	all := mapping.Assets()
	require.Len(t, all, 15)
	for i := 1; i < len(all); i++ {
		require.Less(t, all[i-1].ID, all[i].ID)
	}

	a, ok := mapping.LookupAsset(" eurjpy ")
	require.True(t, ok)
	require.Equal(t, "EUR/JPY", a.Pair())
	require.True(t, a.Supports(provider.ExchangeRate))
	require.False(t, a.Supports(provider.InterestRate))

	req := a.Request(provider.MarketData, "1h")
	require.Equal(t, "EURJPY", req.AssetID)
	require.Equal(t, provider.Currency, req.AssetClass)
	require.Equal(t, "1h", req.TimeframeID)

	base, quote, ok := mapping.SplitPair("XAU/USD")
	require.True(t, ok)
	require.Equal(t, "XAU", base)
	require.Equal(t, "USD", quote)
	_, _, ok = mapping.SplitPair("XAUUSD")
	require.False(t, ok)
}
