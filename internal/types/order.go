package types

import (
	"time"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// SimulatedOrder is a filled market order as reported by the exchange
// collaborator. Cost and fee are expressed in the quote currency.
type SimulatedOrder struct {
	ID        string     `yaml:"id" json:"id"`
	Side      Side       `yaml:"side" json:"side" validate:"required,oneof=buy sell"`
	Symbol    SymbolTags `yaml:"symbol" json:"symbol"`
	Amount    float64    `yaml:"amount" json:"amount" validate:"gt=0"`
	Filled    float64    `yaml:"filled" json:"filled"`
	Price     float64    `yaml:"price" json:"price" validate:"gt=0"`
	Cost      float64    `yaml:"cost" json:"cost"`
	Fee       float64    `yaml:"fee" json:"fee"`
	Timestamp time.Time  `yaml:"timestamp" json:"timestamp"`
}

// MarketInfo carries the exchange limits relevant to order sizing.
type MarketInfo struct {
	MinCost float64 `yaml:"min_cost" json:"min_cost"`
}
