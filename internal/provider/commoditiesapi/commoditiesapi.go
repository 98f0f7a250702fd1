// Package commoditiesapi adapts the Commodities-API latest endpoint to the
// provider contract. Metals are published as ounces per unit of the table
// base, so XAU/USD is the inverse of rates.XAU.
package commoditiesapi

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

// DefaultBaseURL is the public Commodities-API host.
const DefaultBaseURL = "https://commodities-api.com"

// Adapter is a Commodities-API adapter.
type Adapter struct {
	baseURL    string
	httpClient httpx.Doer
}

// Option configures the adapter.
type Option func(*Adapter)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(a *Adapter) { a.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient httpx.Doer) Option {
	return func(a *Adapter) { a.httpClient = httpClient }
}

// New creates a Commodities-API adapter.
func New(options ...Option) *Adapter {
	a := &Adapter{baseURL: DefaultBaseURL, httpClient: http.DefaultClient}
	for _, option := range options {
		option(a)
	}
	return a
}

func (a *Adapter) Name() string { return mapping.CommoditiesAPI }

func (a *Adapter) Fetch(ctx context.Context, symbol, _, credential string) provider.Outcome {
	base, quote, ok := mapping.SplitPair(symbol)
	if !ok {
		return provider.Failed(classify.New(classify.UnsupportedForAsset, "symbol %q is not a commodity pair", symbol))
	}
	class := provider.Commodity
	if asset, ok := mapping.LookupAsset(base + quote); ok {
		class = asset.Class
	}
	return provider.FanOut(ctx, provider.Call{Name: provider.CallQuote, Run: func(ctx context.Context) (provider.Fields, error) {
		return a.latest(ctx, base, quote, class, credential)
	}})
}

// errorCodes maps documented error codes to the shared taxonomy.
var errorCodes = map[int64]classify.Kind{
	101: classify.Unauthorized,
	102: classify.QuotaOrBilling,
	104: classify.RateLimited,
	105: classify.QuotaOrBilling,
	106: classify.NotFound,
	201: classify.NotFound,
	202: classify.NotFound,
}

func (a *Adapter) latest(ctx context.Context, base, quote string, class provider.AssetClass, key string) (provider.Fields, error) {
	q := url.Values{"access_key": {key}, "base": {quote}, "symbols": {base}}
	body, err := httpx.Get(ctx, a.httpClient, a.baseURL+"/api/latest?"+q.Encode())
	if err != nil {
		return provider.Fields{}, err
	}
	if !gjson.ValidBytes(body) {
		return provider.Fields{}, classify.New(classify.MalformedResponse, "response is not valid JSON")
	}
	doc := gjson.ParseBytes(body)
	if data := doc.Get("data"); data.IsObject() {
		doc = data
	}

	if s := doc.Get("success"); s.Exists() && !s.Bool() {
		code := doc.Get("error.code").Int()
		msg := strings.TrimSpace(doc.Get("error.type").String() + " " + doc.Get("error.info").String())
		var e *classify.Error
		if kind, ok := errorCodes[code]; ok {
			e = classify.New(kind, "%s", msg)
		} else {
			e = classify.FromMessage(msg)
		}
		e.Code = int(code)
		return provider.Fields{}, e
	}

	table := rates.Table{Base: doc.Get("base").String(), Rates: map[string]float64{}}
	doc.Get("rates").ForEach(func(k, v gjson.Result) bool {
		if n := provider.Number(v); n != nil {
			table.Rates[strings.ToUpper(k.String())] = *n
		}
		return true
	})
	if table.Base == "" {
		table.Base = quote
	}

	price, cerr := rates.Price(table, base, quote, class)
	if cerr != nil {
		return provider.Fields{}, cerr
	}
	return provider.Fields{Price: price, LastTradeTimestamp: provider.Timestamp(doc.Get("timestamp"))}, nil
}
