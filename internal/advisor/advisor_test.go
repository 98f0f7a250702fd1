package advisor

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"marketfeed/internal/provider"
)

func TestNewInput_DropsNonFinite(t *testing.T) {
	// Arrange
	req := provider.Request{AssetID: "EURUSD", AssetDisplayName: "EUR/USD", TimeframeID: "1h"}
	res := provider.Result{
		Fields: provider.Fields{
			Price: provider.Ptr(math.NaN()),
			RSI:   provider.Ptr(0.0),
			MACD:  &provider.MACD{Value: 0.0012, Signal: math.Inf(1), Histogram: 0.0004},
			Historical: []provider.Point{
				{Price: 1.07}, {Price: math.NaN()}, {Price: 1.08},
			},
			MarketStatus: provider.Ptr("open"),
		},
		SourceProvider: "Polygon",
	}

	// Act
	in := NewInput(req, res)

	// Assert
	require.Nil(t, in.Price)
	require.NotNil(t, in.RSI)
	require.Zero(t, *in.RSI)
	require.Equal(t, 0.0012, *in.MACD)
	require.Nil(t, in.MACDSignal)
	require.Equal(t, 0.0004, *in.MACDHistogram)
	require.Equal(t, []float64{1.07, 1.08}, in.History)
	require.Equal(t, "open", in.MarketStatus)
	require.Equal(t, "Polygon", in.Source)
	require.Equal(t, "EUR/USD", in.AssetName)
}

func TestNewInput_CopiesValues(t *testing.T) {
	price := 1.0853
	in := NewInput(provider.Request{}, provider.Result{Fields: provider.Fields{Price: &price}})

	price = 2
	require.Equal(t, 1.0853, *in.Price)
	require.Nil(t, in.MACD)
}

func TestNoop(t *testing.T) {
	var a Advisor = Noop{}

	rec, err := a.Recommend(context.Background(), Input{AssetID: "XAUUSD"})

	require.NoError(t, err)
	require.Equal(t, Hold, rec.Action)
	require.Zero(t, rec.Confidence)
	require.NotEmpty(t, rec.Error)
}
