// Package registry turns configuration into ordered provider registrations
// for one request.
package registry

import (
	"time"

	"marketfeed/internal/config"
	"marketfeed/internal/httpx"
	"marketfeed/internal/provider"
	"marketfeed/internal/provider/alphavantage"
	"marketfeed/internal/provider/commoditiesapi"
	"marketfeed/internal/provider/fred"
	"marketfeed/internal/provider/mapping"
	"marketfeed/internal/provider/openexchangerates"
	"marketfeed/internal/provider/polygon"
	"marketfeed/internal/provider/ratelimit"
	"marketfeed/internal/provider/twelvedata"
)

// Registry holds one adapter per (kind, provider). Adapters of the same
// provider share one rate limiter.
type Registry struct {
	cfg      config.Config
	adapters map[provider.Kind]map[string]provider.Adapter
}

// ChainEntry describes one configured provider for display.
type ChainEntry struct {
	Provider      string `json:"provider"`
	Enabled       bool   `json:"enabled"`
	HasCredential bool   `json:"hasCredential"`
}

// New builds every adapter on top of d, gated per provider by the configured
// request budget.
func New(cfg config.Config, d httpx.Doer) *Registry {
	limited := make(map[string]httpx.Doer)
	for _, name := range []string{
		mapping.Polygon, mapping.TwelveData, mapping.AlphaVantage,
		mapping.OpenExchangeRates, mapping.CommoditiesAPI, mapping.FRED,
	} {
		p, _ := cfg.Provider(name)
		limited[name] = limiter(d, p)
	}

	polygonOpts := []polygon.Option{polygon.WithHTTPClient(limited[mapping.Polygon])}
	twelveOpts := []twelvedata.Option{twelvedata.WithHTTPClient(limited[mapping.TwelveData])}
	avOpts := []alphavantage.Option{alphavantage.WithHTTPClient(limited[mapping.AlphaVantage])}
	oxrOpts := []openexchangerates.Option{openexchangerates.WithHTTPClient(limited[mapping.OpenExchangeRates])}
	capiOpts := []commoditiesapi.Option{commoditiesapi.WithHTTPClient(limited[mapping.CommoditiesAPI])}
	fredOpts := []fred.Option{fred.WithHTTPClient(limited[mapping.FRED])}

	if u := cfg.Providers.Polygon.BaseURL; u != "" {
		polygonOpts = append(polygonOpts, polygon.WithBaseURL(u))
	}
	if u := cfg.Providers.TwelveData.BaseURL; u != "" {
		twelveOpts = append(twelveOpts, twelvedata.WithBaseURL(u))
	}
	if u := cfg.Providers.AlphaVantage.BaseURL; u != "" {
		avOpts = append(avOpts, alphavantage.WithBaseURL(u))
	}
	if u := cfg.Providers.OpenExchangeRates.BaseURL; u != "" {
		oxrOpts = append(oxrOpts, openexchangerates.WithBaseURL(u))
	}
	if u := cfg.Providers.CommoditiesAPI.BaseURL; u != "" {
		capiOpts = append(capiOpts, commoditiesapi.WithBaseURL(u))
	}
	if u := cfg.Providers.FRED.BaseURL; u != "" {
		fredOpts = append(fredOpts, fred.WithBaseURL(u))
	}

	av := alphavantage.New(avOpts...)
	return &Registry{
		cfg: cfg,
		adapters: map[provider.Kind]map[string]provider.Adapter{
			provider.MarketData: {
				mapping.Polygon:      polygon.New(polygonOpts...),
				mapping.TwelveData:   twelvedata.New(twelveOpts...),
				mapping.AlphaVantage: av,
			},
			provider.ExchangeRate: {
				mapping.OpenExchangeRates: openexchangerates.New(oxrOpts...),
				mapping.CommoditiesAPI:    commoditiesapi.New(capiOpts...),
				mapping.AlphaVantage:      alphavantage.New(append(avOpts, alphavantage.WithQuoteOnly())...),
			},
			provider.InterestRate: {
				mapping.FRED:         fred.New(fredOpts...),
				mapping.AlphaVantage: av,
			},
		},
	}
}

func limiter(d httpx.Doer, p config.Provider) httpx.Doer {
	if p.MinRequestIntervalSec > 0 {
		return ratelimit.MinInterval(d, time.Duration(p.MinRequestIntervalSec)*time.Second)
	}
	return ratelimit.PerMinute(d, float64(p.MaxRequestsPerMinute), p.Burst)
}

// Registrations returns the configured chain for kind and assetID in
// priority order. Disabled providers get no credential and providers that
// cannot serve the asset get no symbol, so the orchestrator skips both.
func (r *Registry) Registrations(kind provider.Kind, assetID string) []provider.Registration {
	chain := r.cfg.Chain(kind)
	out := make([]provider.Registration, 0, len(chain))
	for _, name := range chain {
		p, ok := r.cfg.Provider(name)
		if !ok {
			continue
		}
		reg := provider.Registration{ProviderName: name, Adapter: r.adapters[kind][name]}
		if p.Enabled {
			reg.Credential = p.Credential
		}
		if sym, ok := mapping.Symbol(name, kind, assetID); ok {
			reg.ProviderSymbol = sym
		}
		out = append(out, reg)
	}
	return out
}

// Chains reports the configured order per kind.
func (r *Registry) Chains() map[provider.Kind][]ChainEntry {
	out := make(map[provider.Kind][]ChainEntry, 3)
	for _, kind := range []provider.Kind{provider.MarketData, provider.ExchangeRate, provider.InterestRate} {
		chain := r.cfg.Chain(kind)
		entries := make([]ChainEntry, 0, len(chain))
		for _, name := range chain {
			p, _ := r.cfg.Provider(name)
			entries = append(entries, ChainEntry{Provider: name, Enabled: p.Enabled, HasCredential: p.Credential != ""})
		}
		out[kind] = entries
	}
	return out
}
