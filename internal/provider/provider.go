package provider

import (
	"context"
	"time"

	"marketfeed/internal/provider/classify"
)

// AssetClass is the canonical asset category of a request.
type AssetClass string

const (
	Currency  AssetClass = "currency"
	Commodity AssetClass = "commodity"
	Crypto    AssetClass = "crypto"
)

// Kind selects which chain answers a request and which fields are essential.
type Kind string

const (
	MarketData   Kind = "market"
	ExchangeRate Kind = "rate"
	InterestRate Kind = "interest"
)

// Request is the caller-built, immutable description of one logical fetch.
type Request struct {
	AssetID          string     `json:"assetId"`
	AssetDisplayName string     `json:"assetDisplayName"`
	AssetClass       AssetClass `json:"assetClass"`
	TimeframeID      string     `json:"timeframeId"`
	Kind             Kind       `json:"kind"`
}

// Registration pairs one provider with the credential and symbol it needs
// for one asset. A provider is attempted only when both are present.
type Registration struct {
	ProviderName   string
	Credential     string
	ProviderSymbol string
	Adapter        Adapter
}

// Ready reports whether the registration may be attempted.
func (r Registration) Ready() bool {
	return r.Adapter != nil && r.Credential != "" && r.ProviderSymbol != ""
}

// MACD is the indicator triple.
type MACD struct {
	Value     float64 `json:"value"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// Point is one entry of a historical series.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}

// Fields holds whatever a provider returned. A nil field means the provider
// did not return it; it never means zero.
type Fields struct {
	Price              *float64   `json:"price,omitempty"`
	RSI                *float64   `json:"rsi,omitempty"`
	MACD               *MACD      `json:"macd,omitempty"`
	Historical         []Point    `json:"historical,omitempty"`
	MarketStatus       *string    `json:"marketStatus,omitempty"`
	LastTradeTimestamp *time.Time `json:"lastTradeTimestamp,omitempty"`
}

// Empty reports whether no field is populated.
func (f Fields) Empty() bool {
	return f.Price == nil && f.RSI == nil && f.MACD == nil && len(f.Historical) == 0 &&
		f.MarketStatus == nil && f.LastTradeTimestamp == nil
}

// Essential reports whether f carries the minimum field set that makes a
// result usable for kind.
func (f Fields) Essential(kind Kind) bool {
	switch kind {
	case MarketData:
		return f.Price != nil || (f.RSI != nil && f.MACD != nil) || len(f.Historical) > 0
	default:
		return f.Price != nil
	}
}

// Outcome is what an adapter returns for one invocation. Exactly one of the
// two shapes applies:
//   - success: Err == nil or Err set alongside partial data, Fields non-empty
//   - failure: Fields empty and Err set
type Outcome struct {
	Fields   Fields
	Warnings []string
	Err      *classify.Error
}

// Success reports whether the adapter produced usable data.
func (o Outcome) Success() bool { return !o.Fields.Empty() }

// Succeeded builds a success outcome.
func Succeeded(f Fields, warnings ...string) Outcome {
	return Outcome{Fields: f, Warnings: warnings}
}

// Failed builds a failure outcome.
func Failed(err *classify.Error) Outcome {
	return Outcome{Err: err}
}

// Adapter is the translation layer around one upstream provider.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, symbol, timeframe, credential string) Outcome
}

// State is a provider's position in the fallback state machine.
type State string

const (
	NotAttempted State = "NotAttempted"
	Attempting   State = "Attempting"
	Accepted     State = "Accepted"
	SoftFailed   State = "SoftFailed"
	HardFailed   State = "HardFailed"
)

// Attempt records one provider invocation in the attempt trace.
type Attempt struct {
	Provider         string        `json:"provider"`
	State            State         `json:"state"`
	Kind             classify.Kind `json:"kind,omitempty"`
	Message          string        `json:"message,omitempty"`
	ProviderSpecific bool          `json:"providerSpecific,omitempty"`
	Duration         time.Duration `json:"-"`
	Warnings         []string      `json:"warnings,omitempty"`
}

// Result is the single externally visible record produced per request.
type Result struct {
	Fields
	SourceProvider        string    `json:"sourceProvider"`
	Error                 string    `json:"error,omitempty"`
	ProviderSpecificError *bool     `json:"providerSpecificError,omitempty"`
	Warnings              []string  `json:"warnings,omitempty"`
	Attempts              []Attempt `json:"attempts,omitempty"`
}
