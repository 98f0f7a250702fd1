package fallback

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketfeed/internal/aggregate"
	"marketfeed/internal/provider"
	"marketfeed/internal/provider/classify"
)

// callLog is shared by the fakes of one test so ordering can be asserted.
type callLog struct {
	calls []string
}

// fakeAdapter records each Fetch and returns a canned outcome.
type fakeAdapter struct {
	name string
	out  provider.Outcome
	log  *callLog
	hits int
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Fetch(_ context.Context, symbol, _, credential string) provider.Outcome {
	f.hits++
	f.log.calls = append(f.log.calls, f.name+"("+symbol+","+credential+")")
	return f.out
}

func reg(a *fakeAdapter) provider.Registration {
	return provider.Registration{ProviderName: a.name, Credential: "key-" + a.name, ProviderSymbol: "EUR/USD", Adapter: a}
}

func marketReq() provider.Request {
	return provider.Request{AssetID: "EURUSD", AssetDisplayName: "EUR/USD", AssetClass: provider.Currency, TimeframeID: "1d", Kind: provider.MarketData}
}

func fail(kind classify.Kind, msg string) provider.Outcome {
	return provider.Failed(classify.New(kind, "%s", msg))
}

func TestRun_EndToEndThreeProviders(t *testing.T) {
	// Arrange
	log := &callLog{}
	p1 := &fakeAdapter{name: "Provider1", log: log, out: fail(classify.Unauthorized, "HTTP 401 invalid api key")}
	p2 := &fakeAdapter{name: "Provider2", log: log, out: provider.Succeeded(provider.Fields{
		Price: provider.Ptr(1.0853),
		RSI:   provider.Ptr(45.2),
		MACD:  &provider.MACD{Value: 0.0012, Signal: 0.0008, Histogram: 0.0004},
	})}
	p3 := &fakeAdapter{name: "Provider3", log: log, out: provider.Succeeded(provider.Fields{Price: provider.Ptr(9.0)})}

	// Act
	res := Run(context.Background(), marketReq(), []provider.Registration{reg(p1), reg(p2), reg(p3)})

	// Assert
	require.Equal(t, "Provider2", res.SourceProvider)
	require.Empty(t, res.Error)
	require.Nil(t, res.ProviderSpecificError)
	require.Equal(t, 1.0853, *res.Price)
	require.Equal(t, 45.2, *res.RSI)
	require.Equal(t, provider.MACD{Value: 0.0012, Signal: 0.0008, Histogram: 0.0004}, *res.MACD)
	require.Nil(t, res.Historical)
	require.Zero(t, p3.hits)
	require.Equal(t, []string{"Provider1(EUR/USD,key-Provider1)", "Provider2(EUR/USD,key-Provider2)"}, log.calls)

	require.Len(t, res.Attempts, 2)
	require.Equal(t, provider.SoftFailed, res.Attempts[0].State)
	require.Equal(t, classify.Unauthorized, res.Attempts[0].Kind)
	require.Equal(t, provider.Accepted, res.Attempts[1].State)
}

func TestRun_ShortCircuitOnFirstAccepted(t *testing.T) {
	// Arrange
	log := &callLog{}
	p1 := &fakeAdapter{name: "P1", log: log, out: provider.Succeeded(provider.Fields{Price: provider.Ptr(1.1)})}
	p2 := &fakeAdapter{name: "P2", log: log}
	p3 := &fakeAdapter{name: "P3", log: log}

	// Act
	res := Run(context.Background(), marketReq(), []provider.Registration{reg(p1), reg(p2), reg(p3)})

	// Assert
	require.Equal(t, "P1", res.SourceProvider)
	require.Equal(t, 1, p1.hits)
	require.Zero(t, p2.hits)
	require.Zero(t, p3.hits)
}

func TestRun_OrderingFollowsConfiguration(t *testing.T) {
	// Arrange: every provider soft-fails so each one runs
	log := &callLog{}
	names := []string{"C", "A", "B", "D"}
	regs := make([]provider.Registration, 0, len(names))
	for _, n := range names {
		regs = append(regs, reg(&fakeAdapter{name: n, log: log, out: fail(classify.NetworkError, "timeout")}))
	}

	// Act
	res := Run(context.Background(), marketReq(), regs)

	// Assert
	require.Len(t, log.calls, len(names))
	for i, n := range names {
		require.True(t, strings.HasPrefix(log.calls[i], n+"("), "call %d was %s", i, log.calls[i])
		require.Equal(t, n, res.Attempts[i].Provider)
	}
}

func TestRun_NonProviderSpecificStopsChain(t *testing.T) {
	// Arrange
	log := &callLog{}
	p1 := &fakeAdapter{name: "AlphaVantage", log: log, out: fail(classify.UnsupportedForAsset, "commodity pairs are not supported")}
	p2 := &fakeAdapter{name: "TwelveData", log: log, out: provider.Succeeded(provider.Fields{Price: provider.Ptr(2300.0)})}

	// Act
	res := Run(context.Background(), marketReq(), []provider.Registration{reg(p1), reg(p2)})

	// Assert
	require.Zero(t, p2.hits)
	require.Equal(t, "AlphaVantage", res.SourceProvider)
	require.Equal(t, "AlphaVantage: commodity pairs are not supported", res.Error)
	require.NotNil(t, res.ProviderSpecificError)
	require.False(t, *res.ProviderSpecificError)
	require.Equal(t, provider.HardFailed, res.Attempts[0].State)
}

func TestRun_AllPartialNamesEveryProviderInOrder(t *testing.T) {
	// Arrange
	log := &callLog{}
	mk := func(name string, f provider.Fields, msg string) *fakeAdapter {
		out := provider.Succeeded(f)
		out.Err = classify.New(classify.RateLimited, "%s", msg)
		return &fakeAdapter{name: name, log: log, out: out}
	}
	p1 := mk("Polygon", provider.Fields{RSI: provider.Ptr(51.0)}, "macd: HTTP 429")
	p2 := mk("TwelveData", provider.Fields{Price: provider.Ptr(1.08), RSI: provider.Ptr(50.0)}, "macd: out of credits")
	p3 := mk("AlphaVantage", provider.Fields{MarketStatus: provider.Ptr("open")}, "quote: call frequency")

	// Act
	res := Run(context.Background(), marketReq(), []provider.Registration{reg(p1), reg(p2), reg(p3)})

	// Assert
	require.Equal(t, 1, p3.hits)

	// the candidate with a price outranks the later partials
	const prefix = "Partial data from TwelveData: "
	require.True(t, strings.HasPrefix(res.Error, prefix), res.Error)
	path := strings.TrimPrefix(res.Error, prefix)
	i1 := strings.Index(path, "Polygon: ")
	i2 := strings.Index(path, "TwelveData: ")
	i3 := strings.Index(path, "AlphaVantage: ")
	require.True(t, i1 == 0 && i2 > i1 && i3 > i2, "error %q", res.Error)
	require.Equal(t, "TwelveData", res.SourceProvider)
	require.Equal(t, 1.08, *res.Price)
	require.True(t, *res.ProviderSpecificError)
	for _, a := range res.Attempts {
		require.Equal(t, provider.SoftFailed, a.State)
	}
}

func TestRun_PartialThenFailuresReturnsPartial(t *testing.T) {
	// Arrange
	log := &callLog{}
	partial := provider.Succeeded(provider.Fields{Price: provider.Ptr(157.2)})
	partial.Err = classify.New(classify.NotFound, "rsi: HTTP 404")
	p1 := &fakeAdapter{name: "P1", log: log, out: partial}
	p2 := &fakeAdapter{name: "P2", log: log, out: fail(classify.QuotaOrBilling, "plan inactive")}

	// Act
	res := Run(context.Background(), marketReq(), []provider.Registration{reg(p1), reg(p2)})

	// Assert
	require.Equal(t, "P1", res.SourceProvider)
	require.Equal(t, "Partial data from P1: P1: rsi: HTTP 404; P2: plan inactive", res.Error)
	require.Equal(t, 157.2, *res.Price)
}

func TestRun_NoCredentialIsSkipped(t *testing.T) {
	// Arrange
	log := &callLog{}
	p1 := &fakeAdapter{name: "NoKey", log: log}
	p2 := &fakeAdapter{name: "NoSymbol", log: log}
	p3 := &fakeAdapter{name: "Good", log: log, out: provider.Succeeded(provider.Fields{Price: provider.Ptr(0.0)})}
	r1 := reg(p1)
	r1.Credential = ""
	r2 := reg(p2)
	r2.ProviderSymbol = ""

	// Act
	res := Run(context.Background(), marketReq(), []provider.Registration{r1, r2, reg(p3)})

	// Assert
	require.Zero(t, p1.hits)
	require.Zero(t, p2.hits)
	require.Len(t, res.Attempts, 1)
	require.Equal(t, "Good", res.Attempts[0].Provider)
	require.Equal(t, "Good", res.SourceProvider)
	// zero is a real value, not an absent one
	require.NotNil(t, res.Price)
	require.Zero(t, *res.Price)
}

func TestRun_NoProvidersConfigured(t *testing.T) {
	r := provider.Registration{ProviderName: "Polygon", ProviderSymbol: "C:EURUSD", Adapter: &fakeAdapter{name: "Polygon", log: &callLog{}}}

	for name, regs := range map[string][]provider.Registration{
		"empty":           nil,
		"all lacking key": {r},
	} {
		t.Run(name, func(t *testing.T) {
			res := Run(context.Background(), marketReq(), regs)

			require.Equal(t, aggregate.UnknownProvider, res.SourceProvider)
			require.Equal(t, aggregate.NoProvidersMessage, res.Error)
			require.False(t, *res.ProviderSpecificError)
			require.Empty(t, res.Attempts)
		})
	}
}

func TestRun_ExhaustedWithoutData(t *testing.T) {
	// Arrange
	log := &callLog{}
	p1 := &fakeAdapter{name: "P1", log: log, out: fail(classify.Unauthorized, "HTTP 401")}
	p2 := &fakeAdapter{name: "P2", log: log, out: fail(classify.RateLimited, "HTTP 429")}

	// Act
	res := Run(context.Background(), marketReq(), []provider.Registration{reg(p1), reg(p2)})

	// Assert
	require.Equal(t, aggregate.UnknownProvider, res.SourceProvider)
	require.Equal(t, "P1: HTTP 401; P2: HTTP 429", res.Error)
	require.True(t, *res.ProviderSpecificError)
	require.True(t, res.Fields.Empty())
}

func TestRun_SuccessMissingEssentialFieldsFallsBack(t *testing.T) {
	// Arrange: RSI without MACD is not enough for market data
	log := &callLog{}
	p1 := &fakeAdapter{name: "P1", log: log, out: provider.Succeeded(provider.Fields{RSI: provider.Ptr(70.0)})}
	p2 := &fakeAdapter{name: "P2", log: log, out: provider.Succeeded(provider.Fields{
		Historical: []provider.Point{{Price: 1.07}, {Price: 1.08}},
	})}

	// Act
	res := Run(context.Background(), marketReq(), []provider.Registration{reg(p1), reg(p2)})

	// Assert
	require.Equal(t, 1, p2.hits)
	require.Equal(t, "P2", res.SourceProvider)
	require.Empty(t, res.Error)
	require.Equal(t, classify.MalformedResponse, res.Attempts[0].Kind)
	require.Equal(t, "missing essential fields", res.Attempts[0].Message)
}

func TestRun_RateKindNeedsPrice(t *testing.T) {
	// Arrange
	log := &callLog{}
	p1 := &fakeAdapter{name: "FRED", log: log, out: provider.Succeeded(provider.Fields{MarketStatus: provider.Ptr("open")})}
	req := marketReq()
	req.Kind = provider.ExchangeRate

	// Act
	res := Run(context.Background(), req, []provider.Registration{reg(p1)})

	// Assert
	require.Equal(t, "Partial data from FRED: FRED: missing essential fields", res.Error)
	require.Equal(t, "open", *res.MarketStatus)
}

type panicAdapter struct{}

func (panicAdapter) Name() string { return "Broken" }

func (panicAdapter) Fetch(context.Context, string, string, string) provider.Outcome {
	panic("nil map")
}

func TestRun_AdapterPanicIsSoftFailure(t *testing.T) {
	// Arrange
	log := &callLog{}
	p2 := &fakeAdapter{name: "P2", log: log, out: provider.Succeeded(provider.Fields{Price: provider.Ptr(1.2)})}
	broken := provider.Registration{ProviderName: "Broken", Credential: "k", ProviderSymbol: "s", Adapter: panicAdapter{}}

	// Act
	res := Run(context.Background(), marketReq(), []provider.Registration{broken, reg(p2)})

	// Assert
	require.Equal(t, "P2", res.SourceProvider)
	require.Equal(t, provider.SoftFailed, res.Attempts[0].State)
	require.Contains(t, res.Attempts[0].Message, "adapter panic: nil map")
}

// hangingAdapter blocks until its context ends, like a provider that never
// answers.
type hangingAdapter struct{ name string }

func (h hangingAdapter) Name() string { return h.name }

func (h hangingAdapter) Fetch(ctx context.Context, _, _, _ string) provider.Outcome {
	<-ctx.Done()
	return provider.Failed(classify.FromTransport(ctx.Err()))
}

func TestRun_HangingProviderDoesNotStarveTheNext(t *testing.T) {
	// Arrange
	log := &callLog{}
	p2 := &fakeAdapter{name: "Provider2", log: log, out: provider.Succeeded(provider.Fields{Price: provider.Ptr(1.0853)})}
	regs := []provider.Registration{
		{ProviderName: "Provider1", Credential: "k", ProviderSymbol: "EUR/USD", Adapter: hangingAdapter{name: "Provider1"}},
		reg(p2),
	}

	// Act
	res := Run(context.Background(), marketReq(), regs, WithAttemptTimeout(50*time.Millisecond))

	// Assert
	require.Equal(t, "Provider2", res.SourceProvider)
	require.Empty(t, res.Error)
	require.Equal(t, 1.0853, *res.Price)
	require.Len(t, res.Attempts, 2)
	require.Equal(t, provider.SoftFailed, res.Attempts[0].State)
	require.Equal(t, classify.NetworkError, res.Attempts[0].Kind)
	require.Equal(t, "request timed out", res.Attempts[0].Message)
}
