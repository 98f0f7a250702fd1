// Package twelvedata adapts the Twelve Data REST API to the provider contract.
package twelvedata

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

// DefaultBaseURL is the public Twelve Data API host.
const DefaultBaseURL = "https://api.twelvedata.com"

// Adapter is a Twelve Data market data adapter.
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

// New creates a Twelve Data adapter.
func New(options ...Option) *Adapter {
	a := &Adapter{baseURL: DefaultBaseURL, httpClient: http.DefaultClient}
	for _, option := range options {
		option(a)
	}
	return a
}

func (a *Adapter) Name() string { return mapping.TwelveData }

func (a *Adapter) Fetch(ctx context.Context, symbol, timeframe, credential string) provider.Outcome {
	tf := mapping.ResolveTimeframe(timeframe)
	return provider.FanOut(ctx,
		provider.Call{Name: provider.CallQuote, Run: func(ctx context.Context) (provider.Fields, error) {
			return a.price(ctx, symbol, credential)
		}},
		provider.Call{Name: provider.CallRSI, Run: func(ctx context.Context) (provider.Fields, error) {
			return a.rsi(ctx, symbol, tf, credential)
		}},
		provider.Call{Name: provider.CallMACD, Run: func(ctx context.Context) (provider.Fields, error) {
			return a.macd(ctx, symbol, tf, credential)
		}},
		provider.Call{Name: provider.CallHistorical, Run: func(ctx context.Context) (provider.Fields, error) {
			return a.timeSeries(ctx, symbol, tf, credential)
		}},
		provider.Call{Name: provider.CallStatus, Run: func(ctx context.Context) (provider.Fields, error) {
			return a.quote(ctx, symbol, tf, credential)
		}},
	)
}

func (a *Adapter) price(ctx context.Context, symbol, key string) (provider.Fields, error) {
	doc, err := a.get(ctx, "/price", url.Values{"symbol": {symbol}}, key)
	if err != nil {
		return provider.Fields{}, err
	}
	p := provider.Number(gjson.Get(doc, "price"))
	if p == nil {
		return provider.Fields{}, classify.New(classify.MalformedResponse, "price missing or unparseable")
	}
	return provider.Fields{Price: p}, nil
}

func (a *Adapter) rsi(ctx context.Context, symbol string, tf mapping.Timeframe, key string) (provider.Fields, error) {
	q := url.Values{
		"symbol":      {symbol},
		"interval":    {tf.TwelveData},
		"time_period": {"14"},
		"outputsize":  {"1"},
	}
	doc, err := a.get(ctx, "/rsi", q, key)
	if err != nil {
		return provider.Fields{}, err
	}
	v := provider.Number(gjson.Get(doc, "values.0.rsi"))
	if v == nil {
		return provider.Fields{}, classify.New(classify.MalformedResponse, "rsi missing or unparseable")
	}
	return provider.Fields{RSI: v}, nil
}

func (a *Adapter) macd(ctx context.Context, symbol string, tf mapping.Timeframe, key string) (provider.Fields, error) {
	q := url.Values{
		"symbol":        {symbol},
		"interval":      {tf.TwelveData},
		"fast_period":   {"12"},
		"slow_period":   {"26"},
		"signal_period": {"9"},
		"outputsize":    {"1"},
	}
	doc, err := a.get(ctx, "/macd", q, key)
	if err != nil {
		return provider.Fields{}, err
	}
	row := gjson.Get(doc, "values.0")
	value, signal, hist := provider.Number(row.Get("macd")), provider.Number(row.Get("macd_signal")), provider.Number(row.Get("macd_hist"))
	if value == nil || signal == nil || hist == nil {
		return provider.Fields{}, classify.New(classify.MalformedResponse, "macd missing or unparseable")
	}
	return provider.Fields{MACD: &provider.MACD{Value: *value, Signal: *signal, Histogram: *hist}}, nil
}

func (a *Adapter) timeSeries(ctx context.Context, symbol string, tf mapping.Timeframe, key string) (provider.Fields, error) {
	q := url.Values{
		"symbol":     {symbol},
		"interval":   {tf.TwelveData},
		"outputsize": {strconv.Itoa(tf.Points)},
	}
	doc, err := a.get(ctx, "/time_series", q, key)
	if err != nil {
		return provider.Fields{}, err
	}

	// values are newest first
	rows := gjson.Get(doc, "values").Array()
	points := make([]provider.Point, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		price, ts := provider.Number(rows[i].Get("close")), provider.Timestamp(rows[i].Get("datetime"))
		if price != nil && ts != nil {
			points = append(points, provider.Point{Timestamp: *ts, Price: *price})
		}
	}
	if len(points) == 0 {
		return provider.Fields{}, classify.New(classify.NotFound, "time series for %s is empty", symbol)
	}
	return provider.Fields{Historical: points}, nil
}

// quote supplies session status and the last trade time.
func (a *Adapter) quote(ctx context.Context, symbol string, tf mapping.Timeframe, key string) (provider.Fields, error) {
	doc, err := a.get(ctx, "/quote", url.Values{"symbol": {symbol}, "interval": {tf.TwelveData}}, key)
	if err != nil {
		return provider.Fields{}, err
	}
	var f provider.Fields
	if open := gjson.Get(doc, "is_market_open"); open.IsBool() {
		s := "closed"
		if open.Bool() {
			s = "open"
		}
		f.MarketStatus = &s
	}
	f.LastTradeTimestamp = provider.Timestamp(gjson.Get(doc, "last_quote_at"))
	if f.LastTradeTimestamp == nil {
		f.LastTradeTimestamp = provider.Timestamp(gjson.Get(doc, "timestamp"))
	}
	if f.Empty() {
		return provider.Fields{}, classify.New(classify.MalformedResponse, "quote has neither market status nor timestamp")
	}
	return f, nil
}

// get performs one authenticated request. Twelve Data reports most errors
// in-band with HTTP 200 and {"status":"error","code":...,"message":...}.
func (a *Adapter) get(ctx context.Context, path string, q url.Values, key string) (string, error) {
	q.Set("apikey", key)
	body, err := httpx.Get(ctx, a.httpClient, a.baseURL+path+"?"+q.Encode())
	if err != nil {
		return "", err
	}
	if !gjson.ValidBytes(body) {
		return "", classify.New(classify.MalformedResponse, "response is not valid JSON")
	}
	doc := string(body)
	if gjson.Get(doc, "status").String() == "error" {
		msg := gjson.Get(doc, "message").String()
		code := int(gjson.Get(doc, "code").Int())
		if code == 0 {
			return "", classify.FromMessage(msg)
		}
		e := classify.FromStatus(code, msg)
		e.Message = "code " + strconv.Itoa(code) + ": " + strings.TrimSpace(msg)
		return "", e
	}
	return doc, nil
}
