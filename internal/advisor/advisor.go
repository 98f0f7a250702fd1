// Package advisor is the boundary to recommendation models. The fetch core
// hands it only finite numbers; anything else arrives as absent.
package advisor

import (
	"context"
	"math"

	"go.uber.org/zap"

	"marketfeed/internal/logger"
	"marketfeed/internal/provider"
)

// Action is a recommended position.
type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
	Hold Action = "HOLD"
)

// Input is the typed view of a Result passed to a model.
type Input struct {
	AssetID       string    `json:"assetId"`
	AssetName     string    `json:"assetName"`
	Timeframe     string    `json:"timeframe,omitempty"`
	Price         *float64  `json:"price,omitempty"`
	RSI           *float64  `json:"rsi,omitempty"`
	MACD          *float64  `json:"macd,omitempty"`
	MACDSignal    *float64  `json:"macdSignal,omitempty"`
	MACDHistogram *float64  `json:"macdHistogram,omitempty"`
	History       []float64 `json:"history,omitempty"`
	MarketStatus  string    `json:"marketStatus,omitempty"`
	Source        string    `json:"source"`
}

// Recommendation is a model answer. Error is set instead of failing when the
// model could not produce one.
type Recommendation struct {
	Action     Action  `json:"action"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	Error      string  `json:"error,omitempty"`
}

// Advisor turns market data into a recommendation.
type Advisor interface {
	Recommend(ctx context.Context, in Input) (Recommendation, error)
}

// NewInput copies the numeric fields of res that are finite.
func NewInput(req provider.Request, res provider.Result) Input {
	in := Input{
		AssetID:   req.AssetID,
		AssetName: req.AssetDisplayName,
		Timeframe: req.TimeframeID,
		Price:     finite(res.Price),
		RSI:       finite(res.RSI),
		Source:    res.SourceProvider,
	}
	if res.MACD != nil {
		in.MACD = finite(&res.MACD.Value)
		in.MACDSignal = finite(&res.MACD.Signal)
		in.MACDHistogram = finite(&res.MACD.Histogram)
	}
	for _, p := range res.Historical {
		if !math.IsNaN(p.Price) && !math.IsInf(p.Price, 0) {
			in.History = append(in.History, p.Price)
		}
	}
	if res.MarketStatus != nil {
		in.MarketStatus = *res.MarketStatus
	}
	return in
}

func finite(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	x := *v
	return &x
}

// Noop is used when no model is configured. It always holds.
type Noop struct{}

func (Noop) Recommend(ctx context.Context, in Input) (Recommendation, error) {
	logger.Debug(ctx, "noop advisor called, returning HOLD", zap.String("asset", in.AssetID))
	return Recommendation{
		Action: Hold,
		Reason: "noop_advisor_fallback",
		Error:  "no recommendation model configured",
	}, nil
}
