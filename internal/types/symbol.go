package types

import "fmt"

// SymbolTags identifies one market: an exchange plus a base/quote pair.
type SymbolTags struct {
	Exchange string `yaml:"exchange" json:"exchange" validate:"required"`
	Base     string `yaml:"base" json:"base" validate:"required"`
	Quote    string `yaml:"quote" json:"quote" validate:"required"`
}

// Symbol renders the canonical "exchange:base:quote" form used for display
// and for tagging persisted series.
func (s SymbolTags) Symbol() string {
	return fmt.Sprintf("%s:%s:%s", s.Exchange, s.Base, s.Quote)
}

// Pair renders the exchange-facing "BASE/QUOTE" form.
func (s SymbolTags) Pair() string {
	return s.Base + "/" + s.Quote
}

// SeriesKey identifies one materialized bar series: a market at a timeframe.
// The zero timeframe denotes the base-resolution series. SeriesKey is a
// value-equality type usable as a map key.
type SeriesKey struct {
	Symbol    SymbolTags
	Timeframe Timeframe
}

// String renders "exchange:base:quote" for base series and
// "exchange:base:quote:timeframe" for aggregated ones.
func (k SeriesKey) String() string {
	if k.Timeframe.IsZero() {
		return k.Symbol.Symbol()
	}

	return k.Symbol.Symbol() + ":" + k.Timeframe.String()
}
