package exchange

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tessera-lab/tessera/internal/logger"
	"github.com/tessera-lab/tessera/internal/types"
	"github.com/tessera-lab/tessera/pkg/errors"
	"go.uber.org/zap"
)

// amountPrecision is the number of decimal places fills are rounded to.
const amountPrecision = 8

// SimulatedExchange fills every market order immediately at the requested
// price, charging a flat taker fee. It never holds balances; capital
// accounting lives in the ledger.
type SimulatedExchange struct {
	feeRate decimal.Decimal
	markets map[types.SymbolTags]types.MarketInfo
	log     *logger.Logger
	now     func() time.Time
}

// NewSimulatedExchange creates a simulated exchange with the given taker fee
// rate (e.g. 0.001 for 10 bps) and per-market constraints.
func NewSimulatedExchange(feeRate float64, markets map[types.SymbolTags]types.MarketInfo, log *logger.Logger) *SimulatedExchange {
	return &SimulatedExchange{
		feeRate: decimal.NewFromFloat(feeRate),
		markets: markets,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (e *SimulatedExchange) MarketInfo(symbol types.SymbolTags) (types.MarketInfo, error) {
	info, ok := e.markets[symbol]
	if !ok {
		return types.MarketInfo{}, errors.Newf(errors.ErrCodeMarketNotFound, "market %s is not configured", symbol.Symbol())
	}

	return info, nil
}

// MarketBuy spends quoteAmount at price. The whole quote converts to base,
// quote / price, and the fee is charged on top of the cost, matching how the
// ledger debits cost plus fee.
func (e *SimulatedExchange) MarketBuy(symbol types.SymbolTags, quoteAmount float64, price float64) (types.SimulatedOrder, error) {
	info, err := e.MarketInfo(symbol)
	if err != nil {
		return types.SimulatedOrder{}, err
	}

	if price <= 0 {
		return types.SimulatedOrder{}, errors.Newf(errors.ErrCodeOrderFailed, "buy %s at non-positive price %f", symbol.Symbol(), price)
	}

	if quoteAmount < info.MinCost {
		return types.SimulatedOrder{}, errors.Newf(errors.ErrCodeOrderFailed,
			"buy cost %f below market minimum %f for %s", quoteAmount, info.MinCost, symbol.Symbol())
	}

	cost := decimal.NewFromFloat(quoteAmount)
	fee := cost.Mul(e.feeRate)
	filled := cost.Div(decimal.NewFromFloat(price)).Truncate(amountPrecision)

	order := types.SimulatedOrder{
		ID:        uuid.NewString(),
		Side:      types.SideBuy,
		Symbol:    symbol,
		Amount:    quoteAmount,
		Filled:    filled.InexactFloat64(),
		Price:     price,
		Cost:      cost.InexactFloat64(),
		Fee:       fee.InexactFloat64(),
		Timestamp: e.now(),
	}

	e.log.Info("Simulated buy filled",
		zap.String("symbol", symbol.Symbol()),
		zap.Float64("cost", order.Cost),
		zap.Float64("filled", order.Filled),
		zap.Float64("price", price),
	)

	return order, nil
}

// MarketSell sells baseAmount at price. The fee is taken out of the quote
// proceeds.
func (e *SimulatedExchange) MarketSell(symbol types.SymbolTags, baseAmount float64, price float64) (types.SimulatedOrder, error) {
	if _, err := e.MarketInfo(symbol); err != nil {
		return types.SimulatedOrder{}, err
	}

	if price <= 0 {
		return types.SimulatedOrder{}, errors.Newf(errors.ErrCodeOrderFailed, "sell %s at non-positive price %f", symbol.Symbol(), price)
	}

	if baseAmount <= 0 {
		return types.SimulatedOrder{}, errors.Newf(errors.ErrCodeOrderFailed, "sell %s with non-positive amount %f", symbol.Symbol(), baseAmount)
	}

	proceeds := decimal.NewFromFloat(baseAmount).Mul(decimal.NewFromFloat(price))
	fee := proceeds.Mul(e.feeRate)
	cost := proceeds.Sub(fee).Truncate(amountPrecision)

	order := types.SimulatedOrder{
		ID:        uuid.NewString(),
		Side:      types.SideSell,
		Symbol:    symbol,
		Amount:    baseAmount,
		Filled:    baseAmount,
		Price:     price,
		Cost:      cost.InexactFloat64(),
		Fee:       fee.InexactFloat64(),
		Timestamp: e.now(),
	}

	e.log.Info("Simulated sell filled",
		zap.String("symbol", symbol.Symbol()),
		zap.Float64("amount", baseAmount),
		zap.Float64("proceeds", order.Cost),
		zap.Float64("price", price),
	)

	return order, nil
}
