// Package fred adapts the FRED series observations endpoint to the provider
// contract. The latest non-missing observation becomes the price.
package fred

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"marketfeed/internal/httpx"
	"marketfeed/internal/provider"
	"marketfeed/internal/provider/classify"
	"marketfeed/internal/provider/mapping"
)

// DefaultBaseURL is the public FRED API host.
const DefaultBaseURL = "https://api.stlouisfed.org"

// DefaultLimit is how many observations are requested.
const DefaultLimit = 30

// Adapter is a FRED adapter.
type Adapter struct {
	baseURL    string
	httpClient httpx.Doer
	limit      int
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

// WithLimit sets the number of observations requested.
func WithLimit(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.limit = n
		}
	}
}

// New creates a FRED adapter.
func New(options ...Option) *Adapter {
	a := &Adapter{baseURL: DefaultBaseURL, httpClient: http.DefaultClient, limit: DefaultLimit}
	for _, option := range options {
		option(a)
	}
	return a
}

func (a *Adapter) Name() string { return mapping.FRED }

func (a *Adapter) Fetch(ctx context.Context, seriesID, _, credential string) provider.Outcome {
	return provider.FanOut(ctx, provider.Call{Name: provider.CallQuote, Run: func(ctx context.Context) (provider.Fields, error) {
		return a.observations(ctx, seriesID, credential)
	}})
}

func (a *Adapter) observations(ctx context.Context, seriesID, key string) (provider.Fields, error) {
	q := url.Values{
		"series_id":  {seriesID},
		"api_key":    {key},
		"file_type":  {"json"},
		"sort_order": {"desc"},
		"limit":      {strconv.Itoa(a.limit)},
	}
	body, err := httpx.Get(ctx, a.httpClient, a.baseURL+"/fred/series/observations?"+q.Encode())
	if err != nil {
		return provider.Fields{}, err
	}
	if !gjson.ValidBytes(body) {
		return provider.Fields{}, classify.New(classify.MalformedResponse, "response is not valid JSON")
	}
	doc := gjson.ParseBytes(body)
	if msg := doc.Get("error_message").String(); msg != "" {
		return provider.Fields{}, classify.FromMessage(msg)
	}

	// newest first; "." is a day without an observation
	var f provider.Fields
	var points []provider.Point
	for _, obs := range doc.Get("observations").Array() {
		v, ts := provider.Number(obs.Get("value")), provider.Timestamp(obs.Get("date"))
		if v == nil || ts == nil {
			continue
		}
		if f.Price == nil {
			f.Price, f.LastTradeTimestamp = v, ts
		}
		points = append([]provider.Point{{Timestamp: *ts, Price: *v}}, points...)
	}
	if f.Price == nil {
		return provider.Fields{}, classify.New(classify.NotFound, "series %s has no observations", seriesID)
	}
	f.Historical = points
	return f, nil
}
