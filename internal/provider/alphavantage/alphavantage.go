// Package alphavantage adapts the Alpha Vantage query API to the provider
// contract. It serves currency and crypto pairs ("EUR/USD") and the economic
// series FEDERAL_FUNDS_RATE and TREASURY_YIELD ("TREASURY_YIELD:10year").
package alphavantage

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"marketfeed/internal/httpx"
	"marketfeed/internal/provider"
	"marketfeed/internal/provider/classify"
	"marketfeed/internal/provider/mapping"
	"marketfeed/internal/provider/rates"
)

// DefaultBaseURL is the Alpha Vantage query endpoint.
const DefaultBaseURL = "https://www.alphavantage.co/query"

// economicPoints caps the history returned for economic series.
const economicPoints = 30

// Adapter is an Alpha Vantage adapter.
type Adapter struct {
	baseURL    string
	httpClient httpx.Doer
	quoteOnly  bool
}

// Option configures the adapter.
type Option func(*Adapter)

// WithBaseURL sets the query endpoint.
func WithBaseURL(baseURL string) Option {
	return func(a *Adapter) { a.baseURL = baseURL }
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient httpx.Doer) Option {
	return func(a *Adapter) { a.httpClient = httpClient }
}

// WithQuoteOnly restricts pair fetches to the exchange rate call and rounds
// the rate like every other exchange rate source.
func WithQuoteOnly() Option {
	return func(a *Adapter) { a.quoteOnly = true }
}

// New creates an Alpha Vantage adapter.
func New(options ...Option) *Adapter {
	a := &Adapter{baseURL: DefaultBaseURL, httpClient: http.DefaultClient}
	for _, option := range options {
		option(a)
	}
	return a
}

func (a *Adapter) Name() string { return mapping.AlphaVantage }

func (a *Adapter) Fetch(ctx context.Context, symbol, timeframe, credential string) provider.Outcome {
	from, to, isPair := mapping.SplitPair(symbol)
	if !isPair {
		return provider.FanOut(ctx, provider.Call{Name: provider.CallQuote, Run: func(ctx context.Context) (provider.Fields, error) {
			return a.economic(ctx, symbol, credential)
		}})
	}

	class := provider.Currency
	if asset, ok := mapping.LookupAsset(from + to); ok {
		class = asset.Class
	}
	if class == provider.Commodity {
		return provider.Failed(classify.New(classify.UnsupportedForAsset, "commodity pairs are not supported for this asset class by Alpha Vantage"))
	}

	quote := provider.Call{Name: provider.CallQuote, Run: func(ctx context.Context) (provider.Fields, error) {
		return a.exchangeRate(ctx, from, to, class, credential)
	}}
	if a.quoteOnly {
		return provider.FanOut(ctx, quote)
	}

	tf := mapping.ResolveTimeframe(timeframe)
	return provider.FanOut(ctx,
		quote,
		provider.Call{Name: provider.CallRSI, Run: func(ctx context.Context) (provider.Fields, error) {
			return a.rsi(ctx, from+to, tf, credential)
		}},
		provider.Call{Name: provider.CallMACD, Run: func(ctx context.Context) (provider.Fields, error) {
			return a.macd(ctx, from+to, tf, credential)
		}},
		provider.Call{Name: provider.CallHistorical, Run: func(ctx context.Context) (provider.Fields, error) {
			return a.history(ctx, from, to, class, tf, credential)
		}},
	)
}

func (a *Adapter) exchangeRate(ctx context.Context, from, to string, class provider.AssetClass, key string) (provider.Fields, error) {
	doc, err := a.get(ctx, url.Values{
		"function":      {"CURRENCY_EXCHANGE_RATE"},
		"from_currency": {from},
		"to_currency":   {to},
	}, key)
	if err != nil {
		return provider.Fields{}, err
	}
	block := child(gjson.Parse(doc), "Realtime Currency Exchange Rate")
	p := provider.Number(child(block, "5. Exchange Rate"))
	if p == nil {
		return provider.Fields{}, classify.New(classify.MalformedResponse, "exchange rate missing or unparseable")
	}
	if a.quoteOnly {
		p = provider.Ptr(rates.Round(*p, class))
	}
	return provider.Fields{Price: p, LastTradeTimestamp: provider.Timestamp(child(block, "6. Last Refreshed"))}, nil
}

func (a *Adapter) rsi(ctx context.Context, symbol string, tf mapping.Timeframe, key string) (provider.Fields, error) {
	doc, err := a.get(ctx, url.Values{
		"function":    {"RSI"},
		"symbol":      {symbol},
		"interval":    {tf.AlphaVantage},
		"time_period": {"14"},
		"series_type": {"close"},
	}, key)
	if err != nil {
		return provider.Fields{}, err
	}
	_, row := latest(child(gjson.Parse(doc), "Technical Analysis: RSI"))
	v := provider.Number(child(row, "RSI"))
	if v == nil {
		return provider.Fields{}, classify.New(classify.MalformedResponse, "rsi missing or unparseable")
	}
	return provider.Fields{RSI: v}, nil
}

func (a *Adapter) macd(ctx context.Context, symbol string, tf mapping.Timeframe, key string) (provider.Fields, error) {
	doc, err := a.get(ctx, url.Values{
		"function":     {"MACD"},
		"symbol":       {symbol},
		"interval":     {tf.AlphaVantage},
		"series_type":  {"close"},
		"fastperiod":   {"12"},
		"slowperiod":   {"26"},
		"signalperiod": {"9"},
	}, key)
	if err != nil {
		return provider.Fields{}, err
	}
	_, row := latest(child(gjson.Parse(doc), "Technical Analysis: MACD"))
	value, signal, hist := provider.Number(child(row, "MACD")), provider.Number(child(row, "MACD_Signal")), provider.Number(child(row, "MACD_Hist"))
	if value == nil || signal == nil || hist == nil {
		return provider.Fields{}, classify.New(classify.MalformedResponse, "macd missing or unparseable")
	}
	return provider.Fields{MACD: &provider.MACD{Value: *value, Signal: *signal, Histogram: *hist}}, nil
}

func historyQuery(from, to string, class provider.AssetClass, tf mapping.Timeframe) url.Values {
	if class == provider.Crypto {
		q := url.Values{"symbol": {from}, "market": {to}}
		switch {
		case tf.Intraday():
			q.Set("function", "CRYPTO_INTRADAY")
			q.Set("interval", tf.AlphaVantage)
		case tf.Timespan == "week":
			q.Set("function", "DIGITAL_CURRENCY_WEEKLY")
		default:
			q.Set("function", "DIGITAL_CURRENCY_DAILY")
		}
		return q
	}
	q := url.Values{"from_symbol": {from}, "to_symbol": {to}}
	switch {
	case tf.Intraday():
		q.Set("function", "FX_INTRADAY")
		q.Set("interval", tf.AlphaVantage)
	case tf.Timespan == "week":
		q.Set("function", "FX_WEEKLY")
	default:
		q.Set("function", "FX_DAILY")
	}
	return q
}

func (a *Adapter) history(ctx context.Context, from, to string, class provider.AssetClass, tf mapping.Timeframe, key string) (provider.Fields, error) {
	doc, err := a.get(ctx, historyQuery(from, to, class, tf), key)
	if err != nil {
		return provider.Fields{}, err
	}

	var series gjson.Result
	gjson.Parse(doc).ForEach(func(k, v gjson.Result) bool {
		if strings.HasPrefix(k.String(), "Time Series") {
			series = v
			return false
		}
		return true
	})

	var points []provider.Point
	series.ForEach(func(k, v gjson.Result) bool {
		closing := child(v, "4. close")
		if !closing.Exists() {
			closing = child(v, "4a. close ("+to+")")
		}
		price, ts := provider.Number(closing), provider.ParseTime(k.String())
		if price != nil && ts != nil {
			points = append(points, provider.Point{Timestamp: *ts, Price: *price})
		}
		return true
	})
	if len(points) == 0 {
		return provider.Fields{}, classify.New(classify.MalformedResponse, "time series missing or empty")
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })
	if len(points) > tf.Points {
		points = points[len(points)-tf.Points:]
	}
	return provider.Fields{Historical: points}, nil
}

// economic fetches FEDERAL_FUNDS_RATE or TREASURY_YIELD:<maturity>.
func (a *Adapter) economic(ctx context.Context, series, key string) (provider.Fields, error) {
	function, maturity, _ := strings.Cut(series, ":")
	q := url.Values{"function": {function}, "interval": {"daily"}}
	if maturity != "" {
		q.Set("maturity", maturity)
	}
	doc, err := a.get(ctx, q, key)
	if err != nil {
		return provider.Fields{}, err
	}

	// data is newest first; "." marks days without an observation
	var f provider.Fields
	var points []provider.Point
	for _, row := range gjson.Get(doc, "data").Array() {
		v, ts := provider.Number(row.Get("value")), provider.Timestamp(row.Get("date"))
		if v == nil || ts == nil {
			continue
		}
		if f.Price == nil {
			f.Price, f.LastTradeTimestamp = v, ts
		}
		points = append(points, provider.Point{Timestamp: *ts, Price: *v})
		if len(points) == economicPoints {
			break
		}
	}
	if f.Price == nil {
		return provider.Fields{}, classify.New(classify.MalformedResponse, "%s has no observations", series)
	}
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	f.Historical = points
	return f, nil
}

// get performs one authenticated query. Alpha Vantage always answers 200 and
// signals problems through "Error Message", "Note" or "Information".
func (a *Adapter) get(ctx context.Context, q url.Values, key string) (string, error) {
	q.Set("apikey", key)
	body, err := httpx.Get(ctx, a.httpClient, a.baseURL+"?"+q.Encode())
	if err != nil {
		return "", err
	}
	if !gjson.ValidBytes(body) {
		return "", classify.New(classify.MalformedResponse, "response is not valid JSON")
	}
	doc := string(body)
	for _, field := range []string{"Error Message", "Note", "Information"} {
		if msg := child(gjson.Parse(doc), field).String(); msg != "" {
			return "", classify.FromMessage(msg)
		}
	}
	return doc, nil
}

// child looks a key up literally; Alpha Vantage keys contain dots and spaces
// that would otherwise be read as path syntax.
func child(r gjson.Result, key string) gjson.Result {
	var out gjson.Result
	r.ForEach(func(k, v gjson.Result) bool {
		if k.String() == key {
			out = v
			return false
		}
		return true
	})
	return out
}

// latest returns the entry with the greatest date key.
func latest(r gjson.Result) (string, gjson.Result) {
	var key string
	var val gjson.Result
	r.ForEach(func(k, v gjson.Result) bool {
		if k.String() > key {
			key, val = k.String(), v
		}
		return true
	})
	return key, val
}
