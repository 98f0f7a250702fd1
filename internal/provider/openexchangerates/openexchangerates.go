// Package openexchangerates adapts the Open Exchange Rates latest.json
// endpoint to the provider contract.
package openexchangerates

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"marketfeed/internal/httpx"
	"marketfeed/internal/provider"
	"marketfeed/internal/provider/classify"
	"marketfeed/internal/provider/mapping"
	"marketfeed/internal/provider/rates"
)

// DefaultBaseURL is the public Open Exchange Rates host.
const DefaultBaseURL = "https://openexchangerates.org"

type Adapter struct {
	baseURL    string
	httpClient httpx.Doer
}

type Option func(*Adapter)

func WithBaseURL(baseURL string) Option {
	return func(a *Adapter) { a.baseURL = strings.TrimRight(baseURL, "/") }
}

func WithHTTPClient(httpClient httpx.Doer) Option {
	return func(a *Adapter) { a.httpClient = httpClient }
}

func New(options ...Option) *Adapter {
	a := &Adapter{baseURL: DefaultBaseURL, httpClient: http.DefaultClient}
	for _, option := range options {
		option(a)
	}
	return a
}

func (a *Adapter) Name() string { return mapping.OpenExchangeRates }

// Fetch resolves symbol ("EUR/JPY") from the latest rate table. The free plan
// only publishes USD-based tables, so every other pair is a cross rate.
func (a *Adapter) Fetch(ctx context.Context, symbol, _, credential string) provider.Outcome {
	base, quote, ok := mapping.SplitPair(symbol)
	if !ok {
		return provider.Failed(classify.New(classify.UnsupportedForAsset, "symbol %q is not a currency pair", symbol))
	}
	class := provider.Currency
	if asset, ok := mapping.LookupAsset(base + quote); ok {
		class = asset.Class
	}
	return provider.FanOut(ctx, provider.Call{Name: provider.CallQuote, Run: func(ctx context.Context) (provider.Fields, error) {
		return a.latest(ctx, base, quote, class, credential)
	}})
}

func (a *Adapter) latest(ctx context.Context, base, quote string, class provider.AssetClass, appID string) (provider.Fields, error) {
	q := url.Values{"app_id": {appID}, "symbols": {base + "," + quote}}
	body, err := httpx.Get(ctx, a.httpClient, a.baseURL+"/api/latest.json?"+q.Encode())
	if err != nil {
		return provider.Fields{}, err
	}
	if !gjson.ValidBytes(body) {
		return provider.Fields{}, classify.New(classify.MalformedResponse, "response is not valid JSON")
	}
	doc := gjson.ParseBytes(body)

	if doc.Get("error").Bool() {
		return provider.Fields{}, classify.FromMessage(doc.Get("message").String() + ": " + doc.Get("description").String())
	}

	table := rates.Table{Base: doc.Get("base").String(), Rates: map[string]float64{}}
	doc.Get("rates").ForEach(func(k, v gjson.Result) bool {
		if n := provider.Number(v); n != nil {
			table.Rates[strings.ToUpper(k.String())] = *n
		}
		return true
	})
	if table.Base == "" {
		return provider.Fields{}, classify.New(classify.MalformedResponse, "rate table has no base currency")
	}

	price, cerr := rates.Price(table, base, quote, class)
	if cerr != nil {
		return provider.Fields{}, cerr
	}
	return provider.Fields{Price: price, LastTradeTimestamp: provider.Timestamp(doc.Get("timestamp"))}, nil
}
