// Package polygon adapts the Polygon.io REST API (aggregates, technical
// indicators, market status) to the provider contract.
package polygon

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"marketfeed/internal/httpx"
	"marketfeed/internal/provider"
	"marketfeed/internal/provider/classify"
	"marketfeed/internal/provider/mapping"
)

// DefaultBaseURL is the public Polygon API host.
const DefaultBaseURL = "https://api.polygon.io"

// Adapter is a Polygon market data adapter.
type Adapter struct {
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient performs the requests.
	httpClient httpx.Doer
	// now is the clock used to compute the historical window.
	now func() time.Time
}

// Option configures the adapter.
type Option func(*Adapter)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(a *Adapter) {
		a.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient httpx.Doer) Option {
	return func(a *Adapter) {
		a.httpClient = httpClient
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		a.now = now
	}
}

// New creates a Polygon adapter.
func New(options ...Option) *Adapter {
	a := &Adapter{
		baseURL:    DefaultBaseURL,
		httpClient: http.DefaultClient,
		now:        time.Now,
	}
	for _, option := range options {
		option(a)
	}
	return a
}

func (a *Adapter) Name() string { return mapping.Polygon }

// Fetch issues the quote, RSI, MACD, range and status calls concurrently.
func (a *Adapter) Fetch(ctx context.Context, symbol, timeframe, credential string) provider.Outcome {
	tf := mapping.ResolveTimeframe(timeframe)
	out := provider.FanOut(ctx,
		provider.Call{Name: provider.CallQuote, Run: func(ctx context.Context) (provider.Fields, error) {
			return a.previousClose(ctx, symbol, credential)
		}},
		provider.Call{Name: provider.CallRSI, Run: func(ctx context.Context) (provider.Fields, error) {
			return a.rsi(ctx, symbol, tf, credential)
		}},
		provider.Call{Name: provider.CallMACD, Run: func(ctx context.Context) (provider.Fields, error) {
			return a.macd(ctx, symbol, tf, credential)
		}},
		provider.Call{Name: provider.CallHistorical, Run: func(ctx context.Context) (provider.Fields, error) {
			return a.history(ctx, symbol, tf, credential)
		}},
		provider.Call{Name: provider.CallStatus, Run: func(ctx context.Context) (provider.Fields, error) {
			return a.status(ctx, symbol, credential)
		}},
	)
	if tf.Multiplier > 1 && (out.Fields.RSI != nil || out.Fields.MACD != nil) {
		out.Warnings = append(out.Warnings, IndicatorBarsWarning(tf))
	}
	return out
}

// IndicatorBarsWarning notes that RSI and MACD for tf were computed on
// single-unit bars. The indicator endpoints accept a timespan but no
// multiplier.
func IndicatorBarsWarning(tf mapping.Timeframe) string {
	return fmt.Sprintf("rsi and macd use 1 %s bars, not %s", tf.Timespan, tf.ID)
}

func (a *Adapter) previousClose(ctx context.Context, ticker, key string) (provider.Fields, error) {
	doc, err := a.get(ctx, "/v2/aggs/ticker/"+url.PathEscape(ticker)+"/prev", url.Values{"adjusted": {"true"}}, key)
	if err != nil {
		return provider.Fields{}, err
	}
	bar := gjson.Get(doc, "results.0")
	if !bar.Exists() {
		return provider.Fields{}, classify.New(classify.NotFound, "no previous close for %s", ticker)
	}
	price := provider.Number(bar.Get("c"))
	if price == nil {
		return provider.Fields{}, classify.New(classify.MalformedResponse, "previous close has no usable close price")
	}
	return provider.Fields{Price: price, LastTradeTimestamp: provider.Timestamp(bar.Get("t"))}, nil
}

func (a *Adapter) rsi(ctx context.Context, ticker string, tf mapping.Timeframe, key string) (provider.Fields, error) {
	q := indicatorQuery(tf)
	q.Set("window", "14")
	doc, err := a.get(ctx, "/v1/indicators/rsi/"+url.PathEscape(ticker), q, key)
	if err != nil {
		return provider.Fields{}, err
	}
	v := provider.Number(gjson.Get(doc, "results.values.0.value"))
	if v == nil {
		return provider.Fields{}, classify.New(classify.MalformedResponse, "rsi response has no value")
	}
	return provider.Fields{RSI: v}, nil
}

func (a *Adapter) macd(ctx context.Context, ticker string, tf mapping.Timeframe, key string) (provider.Fields, error) {
	q := indicatorQuery(tf)
	q.Set("short_window", "12")
	q.Set("long_window", "26")
	q.Set("signal_window", "9")
	doc, err := a.get(ctx, "/v1/indicators/macd/"+url.PathEscape(ticker), q, key)
	if err != nil {
		return provider.Fields{}, err
	}
	latest := gjson.Get(doc, "results.values.0")
	value, signal, hist := provider.Number(latest.Get("value")), provider.Number(latest.Get("signal")), provider.Number(latest.Get("histogram"))
	if value == nil || signal == nil || hist == nil {
		return provider.Fields{}, classify.New(classify.MalformedResponse, "macd response is incomplete")
	}
	return provider.Fields{MACD: &provider.MACD{Value: *value, Signal: *signal, Histogram: *hist}}, nil
}

func (a *Adapter) history(ctx context.Context, ticker string, tf mapping.Timeframe, key string) (provider.Fields, error) {
	to := a.now().UTC()
	from := to.Add(-tf.Lookback)
	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/%d/%s/%d/%d",
		url.PathEscape(ticker), tf.Multiplier, tf.Timespan, from.UnixMilli(), to.UnixMilli())
	q := url.Values{
		"adjusted": {"true"},
		"sort":     {"asc"},
		"limit":    {strconv.Itoa(5000)},
	}
	doc, err := a.get(ctx, path, q, key)
	if err != nil {
		return provider.Fields{}, err
	}

	var points []provider.Point
	gjson.Get(doc, "results").ForEach(func(_, bar gjson.Result) bool {
		price, ts := provider.Number(bar.Get("c")), provider.Timestamp(bar.Get("t"))
		if price != nil && ts != nil {
			points = append(points, provider.Point{Timestamp: *ts, Price: *price})
		}
		return true
	})
	if len(points) == 0 {
		return provider.Fields{}, classify.New(classify.NotFound, "no aggregates for %s", ticker)
	}
	if len(points) > tf.Points {
		points = points[len(points)-tf.Points:]
	}
	return provider.Fields{Historical: points}, nil
}

func (a *Adapter) status(ctx context.Context, ticker, key string) (provider.Fields, error) {
	doc, err := a.get(ctx, "/v1/marketstatus/now", url.Values{}, key)
	if err != nil {
		return provider.Fields{}, err
	}
	market := "currencies.fx"
	if strings.HasPrefix(ticker, "X:") {
		market = "currencies.crypto"
	}
	s := gjson.Get(doc, market).String()
	if provider.IsSentinel(s) {
		return provider.Fields{}, classify.New(classify.MalformedResponse, "market status missing %s", market)
	}
	return provider.Fields{MarketStatus: provider.Ptr(strings.ToLower(s))}, nil
}

func indicatorQuery(tf mapping.Timeframe) url.Values {
	return url.Values{
		"timespan":    {tf.Timespan},
		"series_type": {"close"},
		"order":       {"desc"},
		"limit":       {"1"},
	}
}

// get performs one authenticated request and rejects Polygon's in-band
// error envelopes.
func (a *Adapter) get(ctx context.Context, path string, q url.Values, key string) (string, error) {
	q.Set("apiKey", key)
	body, err := httpx.Get(ctx, a.httpClient, a.baseURL+path+"?"+q.Encode())
	if err != nil {
		return "", err
	}
	if !gjson.ValidBytes(body) {
		return "", classify.New(classify.MalformedResponse, "response is not valid JSON")
	}
	doc := string(body)

	switch gjson.Get(doc, "status").String() {
	case "ERROR", "NOT_AUTHORIZED":
		msg := gjson.Get(doc, "error").String()
		if msg == "" {
			msg = gjson.Get(doc, "message").String()
		}
		e := classify.FromMessage(msg)
		if e.Kind == classify.MalformedResponse && gjson.Get(doc, "status").String() == "NOT_AUTHORIZED" {
			e = classify.New(classify.Unauthorized, "%s", msg)
		}
		return "", e
	}
	return doc, nil
}
