// Package fallback runs one request against an ordered provider chain and
// returns a single normalized result.
package fallback

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"marketfeed/internal/aggregate"
	"marketfeed/internal/logger"
	"marketfeed/internal/metrics"
	"marketfeed/internal/provider"
	"marketfeed/internal/provider/classify"
)

// missingEssential marks a success that did not carry the fields the request
// kind needs.
const missingEssential = "missing essential fields"

// candidate is the best partial result seen so far.
type candidate struct {
	source    string
	out       provider.Outcome
	essential bool
	populated int
}

func (c *candidate) beats(o *candidate) bool {
	if o == nil {
		return true
	}
	if c.essential != o.essential {
		return c.essential
	}
	return c.populated > o.populated
}

// Option configures a Run.
type Option func(*options)

type options struct {
	attemptTimeout time.Duration
}

// WithAttemptTimeout bounds each provider attempt separately, so a provider
// that hangs cannot use up the time of the ones after it. Zero means no
// bound beyond ctx.
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *options) { o.attemptTimeout = d }
}

// Run tries regs in order. Registrations without a credential or symbol are
// skipped and never appear in the attempt trace. Run never fails: problems
// are reported through Result.Error and Result.ProviderSpecificError.
func Run(ctx context.Context, req provider.Request, regs []provider.Registration, opts ...Option) provider.Result {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	ready := make([]provider.Registration, 0, len(regs))
	for _, r := range regs {
		if r.Ready() {
			ready = append(ready, r)
		}
	}

	op := logger.StartOperation(ctx, "fallback.run",
		"asset", req.AssetID, "kind", string(req.Kind), "timeframe", req.TimeframeID, "providers", len(ready))

	res := run(op.Context(), req, ready, o)

	result := "ok"
	switch {
	case res.Error != "" && !res.Fields.Empty():
		result = "partial"
	case res.Error != "":
		result = "error"
	}
	metrics.RecordRequest(string(req.Kind), result)
	if res.Error != "" {
		op.EndWithError(errors.New(res.Error), "source", res.SourceProvider, "attempts", len(res.Attempts))
	} else {
		op.End("source", res.SourceProvider, "attempts", len(res.Attempts))
	}
	return res
}

func run(ctx context.Context, req provider.Request, ready []provider.Registration, o options) provider.Result {
	if len(ready) == 0 {
		return aggregate.NoProviders()
	}

	attempts := make([]provider.Attempt, 0, len(ready))
	var best *candidate

	for i, reg := range ready {
		last := i == len(ready)-1
		out, a := invoke(ctx, req, reg, o.attemptTimeout)

		switch {
		case a.State == provider.Accepted:
			attempts = append(attempts, a)
			return aggregate.Accepted(reg.ProviderName, out, attempts)

		case out.Success():
			attempts = append(attempts, a)
			c := &candidate{
				source:    reg.ProviderName,
				out:       out,
				essential: out.Fields.Essential(req.Kind),
				populated: populated(out.Fields),
			}
			if c.beats(best) {
				best = c
			}
			if last {
				return aggregate.Partial(best.source, best.out, attempts)
			}

		case a.State == provider.HardFailed:
			attempts = append(attempts, a)
			logger.Warn(ctx, "chain stopped",
				zap.String("provider", reg.ProviderName), zap.String("asset", req.AssetID), zap.Stringer("kind", a.Kind))
			return aggregate.Failed(reg.ProviderName, false, attempts)

		default:
			attempts = append(attempts, a)
		}
	}

	if best != nil {
		return aggregate.Partial(best.source, best.out, attempts)
	}
	return aggregate.Failed(aggregate.UnknownProvider, true, attempts)
}

// invoke runs one adapter inside its own span and decides the attempt state.
// A panicking adapter counts as a provider-specific failure.
func invoke(ctx context.Context, req provider.Request, reg provider.Registration, timeout time.Duration) (out provider.Outcome, a provider.Attempt) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	op := logger.StartOperation(ctx, "provider.attempt", "provider", reg.ProviderName, "symbol", reg.ProviderSymbol)
	a = provider.Attempt{Provider: reg.ProviderName, State: provider.Attempting}

	defer func() {
		if rec := recover(); rec != nil {
			out = provider.Failed(classify.New(classify.MalformedResponse, "adapter panic: %v", rec))
		}
		a = settle(req, out, a)
		a.Duration = op.Elapsed()
		metrics.RecordAttempt(reg.ProviderName, string(a.State), a.Duration)
		if a.Message != "" {
			op.EndWithError(errors.New(a.Message), "state", string(a.State), "kind", a.Kind.String())
			return
		}
		op.End("state", string(a.State), "warnings", len(a.Warnings))
	}()

	out = reg.Adapter.Fetch(op.Context(), reg.ProviderSymbol, req.TimeframeID, reg.Credential)
	return out, a
}

// settle classifies an outcome. It may attach a MalformedResponse error to a
// success that lacks essential fields.
func settle(req provider.Request, out provider.Outcome, a provider.Attempt) provider.Attempt {
	a.Warnings = out.Warnings

	if out.Success() {
		err := out.Err
		if err == nil && out.Fields.Essential(req.Kind) {
			a.State = provider.Accepted
			return a
		}
		if err == nil {
			err = classify.New(classify.MalformedResponse, missingEssential)
		}
		a.State = provider.SoftFailed
		a.Kind = err.Kind
		a.Message = err.Error()
		a.ProviderSpecific = true
		return a
	}

	err := out.Err
	if err == nil {
		err = classify.New(classify.MalformedResponse, "empty response")
	}
	a.Kind = err.Kind
	a.Message = err.Error()
	a.ProviderSpecific = err.ProviderSpecific
	if err.ProviderSpecific {
		a.State = provider.SoftFailed
	} else {
		a.State = provider.HardFailed
	}
	return a
}

// populated counts the fields a partial result carries.
func populated(f provider.Fields) int {
	n := 0
	if f.Price != nil {
		n++
	}
	if f.RSI != nil {
		n++
	}
	if f.MACD != nil {
		n++
	}
	if len(f.Historical) > 0 {
		n++
	}
	if f.MarketStatus != nil {
		n++
	}
	if f.LastTradeTimestamp != nil {
		n++
	}
	return n
}
