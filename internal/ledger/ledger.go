// Package ledger does the capital and position bookkeeping for one run. A
// ledger is exclusively owned by its execution engine; there is no locking
// because the per-run loop is single-threaded.
package ledger

import (
	"context"
	"time"

	"github.com/tessera-lab/tessera/internal/logger"
	"github.com/tessera-lab/tessera/internal/store"
	"github.com/tessera-lab/tessera/internal/types"
	"go.uber.org/zap"
)

// Position is the single open buy-awaiting-sell state a run may hold.
type Position struct {
	Symbol     types.SymbolTags
	Amount     float64
	EntryPrice float64
	EntryCost  float64
	EntryFee   float64
	OpenedAt   time.Time
	// Profit is the running profit ratio against the latest mark.
	Profit float64
	// MaxProfit is the highest running profit seen while open.
	MaxProfit float64
}

// Trade is one entry in the trade history. It is appended on the opening
// fill and finalized in place on the closing fill.
type Trade struct {
	Symbol      types.SymbolTags `json:"symbol"`
	EntryTime   time.Time        `json:"entry_time"`
	EntryPrice  float64          `json:"entry_price"`
	EntryCost   float64          `json:"entry_cost"`
	EntryFee    float64          `json:"entry_fee"`
	ExitTime    time.Time        `json:"exit_time"`
	ExitPrice   float64          `json:"exit_price"`
	ExitCost    float64          `json:"exit_cost"`
	ExitFee     float64          `json:"exit_fee"`
	ProfitRatio float64          `json:"profit_ratio"`
	Closed      bool             `json:"closed"`
}

// Config parameterizes one ledger.
type Config struct {
	RunID          string
	Symbol         types.SymbolTags
	InitialCapital float64
	// BatchSize triggers a flush once the point buffer reaches it.
	BatchSize int
	// FlushTimeout triggers a flush once this much time passed since the
	// previous one.
	FlushTimeout time.Duration
}

// Ledger tracks cash, the open position, trade history and run metrics, and
// buffers telemetry points toward the store.
type Ledger struct {
	cfg   Config
	store store.Store
	log   *logger.Logger

	cash     float64
	heldQty  float64
	fees     float64
	position *Position
	trades   []Trade
	winCount int

	firstBar types.Bar
	lastBar  types.Bar
	hasBars  bool

	totalValue         float64
	currentProfitRatio float64
	holdProfitRatio    float64

	buffer    []store.Point
	lastFlush time.Time
}

// NewLedger creates a ledger holding the run's initial capital in cash.
func NewLedger(cfg Config, st store.Store, log *logger.Logger) *Ledger {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}

	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 5 * time.Second
	}

	return &Ledger{
		cfg:        cfg,
		store:      st,
		log:        log,
		cash:       cfg.InitialCapital,
		totalValue: cfg.InitialCapital,
		lastFlush:  time.Now(),
	}
}

// MarkToMarket revalues the portfolio against the latest bar and refreshes
// the running profit ratios.
func (l *Ledger) MarkToMarket(bar types.Bar) {
	if !l.hasBars {
		l.firstBar = bar
		l.hasBars = true
	}

	l.lastBar = bar
	l.totalValue = l.cash + l.heldQty*bar.Close

	if l.cfg.InitialCapital > 0 {
		l.currentProfitRatio = (l.totalValue - l.cfg.InitialCapital) / l.cfg.InitialCapital
	}

	if l.firstBar.Close > 0 {
		l.holdProfitRatio = (bar.Close - l.firstBar.Close) / l.firstBar.Close
	}

	if l.position != nil && l.position.EntryPrice > 0 {
		l.position.Profit = (bar.Close - l.position.EntryPrice) / l.position.EntryPrice
		if l.position.Profit > l.position.MaxProfit {
			l.position.MaxProfit = l.position.Profit
		}
	}
}

// OnBuyFilled applies a buy fill: cash leaves, base quantity arrives, a
// position opens and a trade-history entry is appended.
func (l *Ledger) OnBuyFilled(order types.SimulatedOrder) {
	l.cash -= order.Cost + order.Fee
	l.heldQty += order.Filled
	l.fees += order.Fee

	l.position = &Position{
		Symbol:     order.Symbol,
		Amount:     order.Filled,
		EntryPrice: order.Price,
		EntryCost:  order.Cost,
		EntryFee:   order.Fee,
		OpenedAt:   order.Timestamp,
	}

	l.trades = append(l.trades, Trade{
		Symbol:     order.Symbol,
		EntryTime:  order.Timestamp,
		EntryPrice: order.Price,
		EntryCost:  order.Cost,
		EntryFee:   order.Fee,
	})

	l.bufferTrade(order)
	l.markToMarketSelf()
}

// OnSellFilled applies a sell fill: the position closes, its realized profit
// ratio lands on the latest trade-history entry.
func (l *Ledger) OnSellFilled(order types.SimulatedOrder) {
	l.cash += order.Cost
	l.heldQty -= order.Filled
	l.fees += order.Fee

	if l.position != nil && len(l.trades) > 0 {
		trade := &l.trades[len(l.trades)-1]
		trade.ExitTime = order.Timestamp
		trade.ExitPrice = order.Price
		trade.ExitCost = order.Cost
		trade.ExitFee = order.Fee
		trade.Closed = true

		if trade.EntryCost > 0 {
			trade.ProfitRatio = (order.Cost - trade.EntryCost - trade.EntryFee) / trade.EntryCost
		}

		if trade.ProfitRatio > 0 {
			l.winCount++
		}
	}

	l.position = nil

	l.bufferTrade(order)
	l.markToMarketSelf()
}

// markToMarketSelf recomputes the valuation after a fill without waiting for
// the next bar.
func (l *Ledger) markToMarketSelf() {
	if l.hasBars {
		l.MarkToMarket(l.lastBar)
	}
}

// HasPosition reports whether a position is open.
func (l *Ledger) HasPosition() bool {
	return l.position != nil
}

// Position returns a copy of the open position, if any.
func (l *Ledger) Position() (Position, bool) {
	if l.position == nil {
		return Position{}, false
	}

	return *l.position, true
}

func (l *Ledger) Cash() float64               { return l.cash }
func (l *Ledger) HeldQty() float64            { return l.heldQty }
func (l *Ledger) Fees() float64               { return l.fees }
func (l *Ledger) TotalValue() float64         { return l.totalValue }
func (l *Ledger) CurrentProfitRatio() float64 { return l.currentProfitRatio }
func (l *Ledger) HoldProfitRatio() float64    { return l.holdProfitRatio }
func (l *Ledger) LastKnownBar() (types.Bar, bool) {
	return l.lastBar, l.hasBars
}

// Trades returns a copy of the trade history.
func (l *Ledger) Trades() []Trade {
	out := make([]Trade, len(l.trades))
	copy(out, l.trades)

	return out
}

// RecordInputs buffers the feature inputs the strategy saw this step.
func (l *Ledger) RecordInputs(bar types.Bar) {
	fields := map[string]float64{
		"open":   bar.Open,
		"high":   bar.High,
		"low":    bar.Low,
		"close":  bar.Close,
		"volume": bar.Volume,
	}

	for key, value := range bar.Features {
		fields[key] = value
	}

	l.buffer = append(l.buffer, store.Point{
		RunID:       l.cfg.RunID,
		Measurement: store.MeasurementInputs,
		Symbol:      l.cfg.Symbol.Symbol(),
		Time:        bar.Time,
		Fields:      fields,
	})
}

// RecordPortfolio buffers the post-step portfolio state.
func (l *Ledger) RecordPortfolio(ts time.Time) {
	l.buffer = append(l.buffer, store.Point{
		RunID:       l.cfg.RunID,
		Measurement: store.MeasurementPortfolio,
		Symbol:      l.cfg.Symbol.Symbol(),
		Time:        ts,
		Fields: map[string]float64{
			"cash":              l.cash,
			"held_qty":          l.heldQty,
			"total_value":       l.totalValue,
			"profit_ratio":      l.currentProfitRatio,
			"hold_profit_ratio": l.holdProfitRatio,
			"fees":              l.fees,
		},
	})
}

func (l *Ledger) bufferTrade(order types.SimulatedOrder) {
	side := 0.0
	if order.Side == types.SideSell {
		side = 1.0
	}

	l.buffer = append(l.buffer, store.Point{
		RunID:       l.cfg.RunID,
		Measurement: store.MeasurementTrades,
		Symbol:      order.Symbol.Symbol(),
		Time:        order.Timestamp,
		Fields: map[string]float64{
			"side":   side,
			"amount": order.Amount,
			"filled": order.Filled,
			"price":  order.Price,
			"cost":   order.Cost,
			"fee":    order.Fee,
		},
	})
}

// MaybeFlush writes the buffer if the size threshold or the time window
// tripped. Write failures are logged and swallowed; the run continues and
// the next flush proceeds independently.
func (l *Ledger) MaybeFlush(ctx context.Context) {
	if len(l.buffer) < l.cfg.BatchSize && time.Since(l.lastFlush) < l.cfg.FlushTimeout {
		return
	}

	l.Flush(ctx)
}

// Flush writes the buffer unconditionally. Without a store the batch is
// discarded so the buffer stays bounded either way.
func (l *Ledger) Flush(ctx context.Context) {
	l.lastFlush = time.Now()

	if len(l.buffer) == 0 {
		return
	}

	batch := l.buffer
	l.buffer = nil

	if l.store == nil {
		return
	}

	if err := l.store.WriteBatch(ctx, batch); err != nil {
		l.log.Error("Telemetry flush failed",
			zap.String("run_id", l.cfg.RunID),
			zap.Int("points", len(batch)),
			zap.Error(err),
		)
	}
}

// BufferedPoints reports the number of unflushed points.
func (l *Ledger) BufferedPoints() int {
	return len(l.buffer)
}
