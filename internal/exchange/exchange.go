// Package exchange abstracts order placement. The engine only ever talks to
// the Exchange interface; the simulated implementation fills market orders
// instantly at the current price with a flat taker fee.
package exchange

import (
	"github.com/tessera-lab/tessera/internal/types"
)

// Exchange places orders and exposes per-market trading constraints.
type Exchange interface {
	// MarketBuy spends amount of quote currency at the given price and
	// returns the resulting fill.
	MarketBuy(symbol types.SymbolTags, quoteAmount float64, price float64) (types.SimulatedOrder, error)
	// MarketSell sells amount of base currency at the given price.
	MarketSell(symbol types.SymbolTags, baseAmount float64, price float64) (types.SimulatedOrder, error)
	// MarketInfo returns the trading constraints of one market.
	MarketInfo(symbol types.SymbolTags) (types.MarketInfo, error)
}
