package provider

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"marketfeed/internal/provider/classify"
)

// Sub-call names shared by the market data adapters.
const (
	CallQuote      = "quote"
	CallRSI        = "rsi"
	CallMACD       = "macd"
	CallHistorical = "historical"
	CallStatus     = "status"
)

// Call is one independent sub-request of an adapter invocation. Run returns
// only the fields it is responsible for.
type Call struct {
	Name string
	Run  func(ctx context.Context) (Fields, error)
}

type callResult struct {
	fields Fields
	err    *classify.Error
}

// FanOut runs calls concurrently and waits for all of them. A failing call
// never cancels or masks the others. The outcome is a success when at least
// one call produced data; failed calls are attached as a partial error,
// except a 404 on the status call which is downgraded to a warning.
func FanOut(ctx context.Context, calls ...Call) Outcome {
	results := make([]callResult, len(calls))

	var g errgroup.Group
	for i, c := range calls {
		g.Go(func() error {
			f, err := c.Run(ctx)
			if err != nil {
				results[i] = callResult{err: classify.As(err).WithCall(c.Name)}
				return nil
			}
			results[i] = callResult{fields: f}
			return nil
		})
	}
	_ = g.Wait()

	var merged Fields
	var failures []*classify.Error
	for _, r := range results {
		if r.err != nil {
			failures = append(failures, r.err)
			continue
		}
		merged = Merge(merged, r.fields)
	}

	if merged.Empty() {
		if len(failures) == 0 {
			return Failed(classify.New(classify.MalformedResponse, "provider returned no usable data"))
		}
		return Failed(summarize(failures))
	}

	var warnings []string
	var partial []*classify.Error
	for _, f := range failures {
		warnings = append(warnings, f.Error())
		if f.Call == CallStatus && f.Status == http.StatusNotFound {
			continue
		}
		partial = append(partial, f)
	}
	out := Succeeded(merged, warnings...)
	if len(partial) > 0 {
		out.Err = summarize(partial)
	}
	return out
}

// summarize collapses several sub-call failures into one error carrying the
// strongest classification and every message.
func summarize(errs []*classify.Error) *classify.Error {
	strongest := classify.Strongest(errs...)
	if len(errs) == 1 {
		return strongest
	}
	msgs := make([]string, 0, len(errs))
	var combined error
	for _, e := range errs {
		msgs = append(msgs, e.Error())
		combined = multierr.Append(combined, e)
	}
	return &classify.Error{
		Kind:             strongest.Kind,
		Message:          strings.Join(msgs, "; "),
		ProviderSpecific: strongest.ProviderSpecific,
		Status:           strongest.Status,
		Code:             strongest.Code,
		Err:              combined,
	}
}

// Merge copies every field set in src over dst.
func Merge(dst, src Fields) Fields {
	if src.Price != nil {
		dst.Price = src.Price
	}
	if src.RSI != nil {
		dst.RSI = src.RSI
	}
	if src.MACD != nil {
		dst.MACD = src.MACD
	}
	if len(src.Historical) > 0 {
		dst.Historical = src.Historical
	}
	if src.MarketStatus != nil {
		dst.MarketStatus = src.MarketStatus
	}
	if src.LastTradeTimestamp != nil {
		dst.LastTradeTimestamp = src.LastTradeTimestamp
	}
	return dst
}
