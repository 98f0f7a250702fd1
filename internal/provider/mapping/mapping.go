// Package mapping translates canonical asset and timeframe identifiers into
// each provider's vocabulary. It is pure lookup: no I/O, no state.
package mapping

import (
	"sort"
	"strings"
	"time"

	"marketfeed/internal/provider"
)

// Provider names, in the form they appear in results and configuration.
const (
	Polygon           = "Polygon"
	TwelveData        = "TwelveData"
	AlphaVantage      = "AlphaVantage"
	OpenExchangeRates = "OpenExchangeRates"
	CommoditiesAPI    = "CommoditiesAPI"
	FRED              = "FRED"
)

// Asset is one entry of the canonical catalogue. Base/Quote are the two legs
// of the pair (Quote is empty for interest-rate series).
type Asset struct {
	ID          string
	DisplayName string
	Class       provider.AssetClass
	Base        string
	Quote       string
	Kinds       []provider.Kind
}

var (
	marketAndRate = []provider.Kind{provider.MarketData, provider.ExchangeRate}
	interestOnly  = []provider.Kind{provider.InterestRate}
)

var assets = map[string]Asset{
	"EURUSD":   {ID: "EURUSD", DisplayName: "EUR/USD", Class: provider.Currency, Base: "EUR", Quote: "USD", Kinds: marketAndRate},
	"GBPUSD":   {ID: "GBPUSD", DisplayName: "GBP/USD", Class: provider.Currency, Base: "GBP", Quote: "USD", Kinds: marketAndRate},
	"USDJPY":   {ID: "USDJPY", DisplayName: "USD/JPY", Class: provider.Currency, Base: "USD", Quote: "JPY", Kinds: marketAndRate},
	"EURJPY":   {ID: "EURJPY", DisplayName: "EUR/JPY", Class: provider.Currency, Base: "EUR", Quote: "JPY", Kinds: marketAndRate},
	"AUDUSD":   {ID: "AUDUSD", DisplayName: "AUD/USD", Class: provider.Currency, Base: "AUD", Quote: "USD", Kinds: marketAndRate},
	"USDCHF":   {ID: "USDCHF", DisplayName: "USD/CHF", Class: provider.Currency, Base: "USD", Quote: "CHF", Kinds: marketAndRate},
	"USDCAD":   {ID: "USDCAD", DisplayName: "USD/CAD", Class: provider.Currency, Base: "USD", Quote: "CAD", Kinds: marketAndRate},
	"EURGBP":   {ID: "EURGBP", DisplayName: "EUR/GBP", Class: provider.Currency, Base: "EUR", Quote: "GBP", Kinds: marketAndRate},
	"XAUUSD":   {ID: "XAUUSD", DisplayName: "Gold (XAU/USD)", Class: provider.Commodity, Base: "XAU", Quote: "USD", Kinds: marketAndRate},
	"XAGUSD":   {ID: "XAGUSD", DisplayName: "Silver (XAG/USD)", Class: provider.Commodity, Base: "XAG", Quote: "USD", Kinds: marketAndRate},
	"BTCUSD":   {ID: "BTCUSD", DisplayName: "Bitcoin (BTC/USD)", Class: provider.Crypto, Base: "BTC", Quote: "USD", Kinds: marketAndRate},
	"ETHUSD":   {ID: "ETHUSD", DisplayName: "Ethereum (ETH/USD)", Class: provider.Crypto, Base: "ETH", Quote: "USD", Kinds: marketAndRate},
	"FEDFUNDS": {ID: "FEDFUNDS", DisplayName: "Federal Funds Effective Rate", Class: provider.Currency, Base: "USD", Kinds: interestOnly},
	"DGS10":    {ID: "DGS10", DisplayName: "10-Year Treasury Yield", Class: provider.Currency, Base: "USD", Kinds: interestOnly},
	"DGS2":     {ID: "DGS2", DisplayName: "2-Year Treasury Yield", Class: provider.Currency, Base: "USD", Kinds: interestOnly},
}

// LookupAsset returns the catalogue entry for id (case-insensitive).
func LookupAsset(id string) (Asset, bool) {
	a, ok := assets[strings.ToUpper(strings.TrimSpace(id))]
	return a, ok
}

// Assets lists the catalogue sorted by id.
func Assets() []Asset {
	out := make([]Asset, 0, len(assets))
	for _, a := range assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Supports reports whether the asset may be requested as kind.
func (a Asset) Supports(kind provider.Kind) bool {
	for _, k := range a.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Request builds the canonical request for the asset.
func (a Asset) Request(kind provider.Kind, timeframeID string) provider.Request {
	return provider.Request{
		AssetID:          a.ID,
		AssetDisplayName: a.DisplayName,
		AssetClass:       a.Class,
		TimeframeID:      timeframeID,
		Kind:             kind,
	}
}

// Pair formats the asset as "BASE/QUOTE".
func (a Asset) Pair() string { return a.Base + "/" + a.Quote }

// SplitPair splits "BASE/QUOTE" into its legs.
func SplitPair(s string) (base, quote string, ok bool) {
	base, quote, ok = strings.Cut(s, "/")
	if !ok || base == "" || quote == "" {
		return "", "", false
	}
	return base, quote, true
}

var polygonPrefix = map[provider.AssetClass]string{
	provider.Currency:  "C:",
	provider.Commodity: "C:",
	provider.Crypto:    "X:",
}

var interestSymbols = map[string]map[string]string{
	FRED: {
		"FEDFUNDS": "FEDFUNDS",
		"DGS10":    "DGS10",
		"DGS2":     "DGS2",
	},
	AlphaVantage: {
		"FEDFUNDS": "FEDERAL_FUNDS_RATE",
		"DGS10":    "TREASURY_YIELD:10year",
		"DGS2":     "TREASURY_YIELD:2year",
	},
}

// Symbol returns the provider-specific symbol for asset under kind. ok is
// false when the provider cannot serve that asset/kind pairing, in which case
// the provider is skipped before invocation.
func Symbol(providerName string, kind provider.Kind, assetID string) (string, bool) {
	a, ok := LookupAsset(assetID)
	if !ok || !a.Supports(kind) {
		return "", false
	}
	if kind == provider.InterestRate {
		s, ok := interestSymbols[providerName][a.ID]
		return s, ok
	}

	switch providerName {
	case Polygon:
		if kind != provider.MarketData {
			return "", false
		}
		return polygonPrefix[a.Class] + a.Base + a.Quote, true
	case TwelveData:
		if kind != provider.MarketData {
			return "", false
		}
		return a.Pair(), true
	case AlphaVantage:
		if a.Class == provider.Commodity {
			return "", false
		}
		return a.Pair(), true
	case OpenExchangeRates:
		if kind != provider.ExchangeRate {
			return "", false
		}
		return a.Pair(), true
	case CommoditiesAPI:
		if kind != provider.ExchangeRate || a.Class != provider.Commodity {
			return "", false
		}
		return a.Pair(), true
	default:
		return "", false
	}
}

// Timeframe carries one canonical timeframe in every provider vocabulary.
type Timeframe struct {
	ID string
	// Polygon aggregates: /range/{Multiplier}/{Timespan}/...
	Multiplier int
	Timespan   string
	// Twelve Data interval parameter.
	TwelveData string
	// Alpha Vantage interval parameter for indicators and intraday series.
	AlphaVantage string
	// Lookback is the historical window requested.
	Lookback time.Duration
	// Points caps the historical series length.
	Points int
}

// DefaultTimeframe is used when a request names no timeframe.
const DefaultTimeframe = "1d"

// Polygon's indicator endpoints take only Timespan, so for timeframes with a
// Multiplier above 1 its RSI and MACD are computed on single-unit bars.
var timeframes = map[string]Timeframe{
	"1m":  {ID: "1m", Multiplier: 1, Timespan: "minute", TwelveData: "1min", AlphaVantage: "1min", Lookback: 2 * time.Hour, Points: 100},
	"5m":  {ID: "5m", Multiplier: 5, Timespan: "minute", TwelveData: "5min", AlphaVantage: "5min", Lookback: 8 * time.Hour, Points: 96},
	"15m": {ID: "15m", Multiplier: 15, Timespan: "minute", TwelveData: "15min", AlphaVantage: "15min", Lookback: 24 * time.Hour, Points: 96},
	"1h":  {ID: "1h", Multiplier: 1, Timespan: "hour", TwelveData: "1h", AlphaVantage: "60min", Lookback: 5 * 24 * time.Hour, Points: 120},
	// Alpha Vantage has no 4h interval; 60min is the closest it offers.
	"4h": {ID: "4h", Multiplier: 4, Timespan: "hour", TwelveData: "4h", AlphaVantage: "60min", Lookback: 20 * 24 * time.Hour, Points: 120},
	"1d": {ID: "1d", Multiplier: 1, Timespan: "day", TwelveData: "1day", AlphaVantage: "daily", Lookback: 120 * 24 * time.Hour, Points: 120},
	"1w": {ID: "1w", Multiplier: 1, Timespan: "week", TwelveData: "1week", AlphaVantage: "weekly", Lookback: 2 * 365 * 24 * time.Hour, Points: 104},
}

// LookupTimeframe returns the timeframe for id; ok is false for unknown ids.
// An empty id resolves to DefaultTimeframe.
func LookupTimeframe(id string) (Timeframe, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		id = DefaultTimeframe
	}
	tf, ok := timeframes[id]
	return tf, ok
}

// ResolveTimeframe is LookupTimeframe falling back to DefaultTimeframe.
func ResolveTimeframe(id string) Timeframe {
	if tf, ok := LookupTimeframe(id); ok {
		return tf
	}
	return timeframes[DefaultTimeframe]
}

// Intraday reports whether the timeframe is shorter than a day.
func (tf Timeframe) Intraday() bool {
	return tf.Timespan == "minute" || tf.Timespan == "hour"
}
