// Package rates turns a provider rate table into the price of one pair.
//
// Rate tables map currency codes to "units of code per one unit of the table
// base". Every rate adapter resolves pairs through Reconcile so conventions
// cannot drift between providers.
package rates

import (
	"strings"

	"github.com/shopspring/decimal"

	"marketfeed/internal/provider"
	"marketfeed/internal/provider/classify"
)

// Decimal places kept for each asset class.
const (
	CurrencyPlaces = 5
	DefaultPlaces  = 2
)

// Table is a provider rate table.
type Table struct {
	Base  string
	Rates map[string]float64
}

func (t Table) rate(code string) (decimal.Decimal, *classify.Error) {
	v, ok := t.Rates[code]
	if !ok {
		return decimal.Zero, classify.New(classify.MalformedResponse, "rate for %s missing from response", code)
	}
	d := decimal.NewFromFloat(v)
	if !d.IsPositive() {
		return decimal.Zero, classify.New(classify.MalformedResponse, "rate for %s is not positive", code)
	}
	return d, nil
}

// Reconcile returns the price of base in units of quote:
//
//	table base == base   -> rates[quote]
//	table base == quote  -> 1 / rates[base]
//	otherwise            -> rates[quote] / rates[base]
//
// The last two cover single-leg commodity and crypto quotes, which providers
// publish as units of the asset per unit of the table base.
func Reconcile(t Table, base, quote string) (decimal.Decimal, *classify.Error) {
	tb := strings.ToUpper(t.Base)
	base, quote = strings.ToUpper(base), strings.ToUpper(quote)

	switch {
	case base == quote:
		return decimal.NewFromInt(1), nil
	case tb == base:
		return t.rate(quote)
	case tb == quote:
		r, err := t.rate(base)
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromInt(1).DivRound(r, 16), nil
	default:
		rb, err := t.rate(base)
		if err != nil {
			return decimal.Zero, err
		}
		rq, err := t.rate(quote)
		if err != nil {
			return decimal.Zero, err
		}
		return rq.DivRound(rb, 16), nil
	}
}

// Places returns the rounding precision for class.
func Places(class provider.AssetClass) int32 {
	if class == provider.Currency {
		return CurrencyPlaces
	}
	return DefaultPlaces
}

// Price reconciles the pair and rounds it for class.
func Price(t Table, base, quote string, class provider.AssetClass) (*float64, *classify.Error) {
	d, err := Reconcile(t, base, quote)
	if err != nil {
		return nil, err
	}
	f, _ := d.Round(Places(class)).Float64()
	return provider.Finite(f), nil
}

// Round rounds v half away from zero to the precision of class.
func Round(v float64, class provider.AssetClass) float64 {
	f, _ := decimal.NewFromFloat(v).Round(Places(class)).Float64()
	return f
}
