// Package engine runs one strategy against the snapshot sequence a
// scheduler produces, routing fills through the exchange into the ledger.
// The engine is a three-state machine: RUNNING until a clean STOP or an
// exceptional ERROR, both terminal.
package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tessera-lab/tessera/internal/exchange"
	"github.com/tessera-lab/tessera/internal/ledger"
	"github.com/tessera-lab/tessera/internal/logger"
	"github.com/tessera-lab/tessera/internal/pipeline"
	"github.com/tessera-lab/tessera/internal/types"
	"github.com/tessera-lab/tessera/pkg/errors"
	"go.uber.org/zap"
)

// State is the engine lifecycle state.
type State string

const (
	StateRunning State = "RUNNING"
	StateStop    State = "STOP"
	StateError   State = "ERROR"
)

// Config parameterizes one execution engine.
type Config struct {
	RunID  string
	Symbol types.SymbolTags
	// PercentInvest is the fraction of cash a buy commits.
	PercentInvest float64
	// DrawdownStop halts the run once the profit ratio falls below its
	// negation (0.5 means stop at a 50% drawdown).
	DrawdownStop float64
	Params       map[string]any
}

// SnapshotSource is the pull cursor the engine consumes, satisfied by the
// scheduler.
type SnapshotSource interface {
	Next(ctx context.Context) (pipeline.Snapshot, bool, error)
	Stop()
}

// Engine drives one run. It is not safe for concurrent use; the per-run
// loop is single-threaded by design.
type Engine struct {
	cfg       Config
	strategy  Strategy
	exchange  exchange.Exchange
	ledger    *ledger.Ledger
	scheduler SnapshotSource
	log       *logger.Logger

	// state is atomic because Stop may arrive from a controlling
	// goroutine while the run loop reads it.
	state    atomic.Value
	steps    atomic.Int64
	runErr   error
	teardown sync.Once
}

// New creates an engine in RUNNING state.
func New(cfg Config, strat Strategy, ex exchange.Exchange, led *ledger.Ledger, sched SnapshotSource, log *logger.Logger) *Engine {
	if cfg.PercentInvest <= 0 {
		cfg.PercentInvest = 1
	}

	if cfg.DrawdownStop <= 0 {
		cfg.DrawdownStop = 0.5
	}

	e := &Engine{
		cfg:       cfg,
		strategy:  strat,
		exchange:  ex,
		ledger:    led,
		scheduler: sched,
		log:       log,
	}
	e.state.Store(StateRunning)

	return e
}

// State returns the current lifecycle state.
func (e *Engine) State() State { return e.state.Load().(State) }

// Steps reports how many steps executed so far. Safe to read while the run
// loop is live; progress reporting polls it.
func (e *Engine) Steps() int64 { return e.steps.Load() }

// Err returns the error that moved the engine to ERROR, if any.
func (e *Engine) Err() error { return e.runErr }

// Ledger exposes the run's ledger for metric collection.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Run pulls snapshots until the sequence ends or the engine leaves RUNNING,
// then tears down exactly once. The returned error is the ERROR cause, nil
// on a clean stop.
func (e *Engine) Run(ctx context.Context) error {
	for e.State() == StateRunning {
		snapshot, done, err := e.scheduler.Next(ctx)
		if err != nil {
			e.fail(err)

			break
		}

		if done {
			break
		}

		if err := e.Step(ctx, snapshot); err != nil {
			break
		}
	}

	e.Stop()
	e.finish(ctx)

	if after, ok := e.strategy.(AfterAller); ok {
		if err := after.AfterAll(e.handle()); err != nil {
			e.log.Error("Strategy teardown hook failed", zap.Error(err))
		}
	}

	return e.runErr
}

// Step executes one simulation step against a snapshot. Calling it outside
// RUNNING is a no-op. The returned error is the fatal cause, if any; advice
// and capital problems are handled internally and return nil.
func (e *Engine) Step(ctx context.Context, snapshot pipeline.Snapshot) error {
	if e.State() != StateRunning {
		return nil
	}

	e.steps.Add(1)

	if e.ledger.CurrentProfitRatio() < -e.cfg.DrawdownStop {
		e.log.Warn("Drawdown limit hit, stopping run",
			zap.String("run_id", e.cfg.RunID),
			zap.Float64("profit_ratio", e.ledger.CurrentProfitRatio()),
		)
		e.Stop()

		return nil
	}

	bar, ok := snapshot.Latest(e.cfg.Symbol)
	if !ok {
		return nil
	}

	e.ledger.MarkToMarket(bar)

	advice, err := e.strategy.Run(snapshot, e.handle())
	if err != nil {
		e.fail(errors.Wrap(errors.ErrCodeStrategyRuntime, "strategy run failed", err))

		return e.runErr
	}

	switch advice {
	case AdviceBuy:
		err = e.executeBuy(ctx, bar)
	case AdviceSell:
		err = e.executeSell(ctx, bar)
	case AdviceNone:
	default:
		e.log.Warn("Unknown advice ignored",
			zap.String("run_id", e.cfg.RunID),
			zap.String("advice", string(advice)),
		)
	}

	if err != nil {
		return err
	}

	if e.State() == StateRunning {
		e.ledger.RecordInputs(bar)
		e.ledger.RecordPortfolio(bar.Time)
		e.ledger.MaybeFlush(ctx)
	}

	return nil
}

func (e *Engine) executeBuy(ctx context.Context, bar types.Bar) error {
	// Buying on top of an open position is an advice error, not a fault.
	if e.ledger.HasPosition() {
		e.log.Warn("Buy advice while a position is open, ignored",
			zap.String("run_id", e.cfg.RunID),
			zap.Int("code", int(errors.ErrCodeBuyWhileHolding)),
		)

		return nil
	}

	info, err := e.exchange.MarketInfo(e.cfg.Symbol)
	if err != nil {
		e.fail(err)

		return e.runErr
	}

	cash := e.ledger.Cash()
	if cash < info.MinCost {
		// Capital exhaustion ends the run cleanly rather than crashing it.
		e.log.Warn("Cash below minimum order cost, stopping run",
			zap.String("run_id", e.cfg.RunID),
			zap.Float64("cash", cash),
			zap.Float64("min_cost", info.MinCost),
			zap.Int("code", int(errors.ErrCodeInsufficientCapital)),
		)
		e.Stop()

		return nil
	}

	invest := cash * e.cfg.PercentInvest
	if invest < info.MinCost {
		invest = info.MinCost
	}

	order, err := e.exchange.MarketBuy(e.cfg.Symbol, invest, bar.Close)
	if err != nil {
		e.fail(err)

		return e.runErr
	}

	order.Timestamp = bar.Time
	e.ledger.OnBuyFilled(order)

	return nil
}

func (e *Engine) executeSell(ctx context.Context, bar types.Bar) error {
	position, ok := e.ledger.Position()
	if !ok {
		e.log.Warn("Sell advice with no open position, ignored",
			zap.String("run_id", e.cfg.RunID),
			zap.Int("code", int(errors.ErrCodeSellWhileFlat)),
		)

		return nil
	}

	order, err := e.exchange.MarketSell(e.cfg.Symbol, position.Amount, bar.Close)
	if err != nil {
		e.fail(err)

		return e.runErr
	}

	order.Timestamp = bar.Time
	e.ledger.OnSellFilled(order)

	return nil
}

// Stop requests a cooperative stop: the engine leaves RUNNING and the
// scheduler halts at its next pull. Safe to call repeatedly and from other
// goroutines; an ERROR state is preserved. The ledger is not touched here,
// the final flush belongs to the run goroutine.
func (e *Engine) Stop() {
	e.state.CompareAndSwap(StateRunning, StateStop)
	e.scheduler.Stop()
}

// finish flushes the ledger and logs the terminal summary, exactly once, on
// the goroutine that ran the loop.
func (e *Engine) finish(ctx context.Context) {
	e.teardown.Do(func() {
		e.ledger.Flush(ctx)

		metrics := e.ledger.Metrics()
		e.log.Info("Run finished",
			zap.String("run_id", e.cfg.RunID),
			zap.String("state", string(e.State())),
			zap.Int("trades", metrics.TradeCount),
			zap.Float64("profit_ratio", metrics.CurrentProfitRatio),
			zap.Float64("fees", metrics.Fees),
		)
	})
}

func (e *Engine) fail(err error) {
	e.state.Store(StateError)
	e.runErr = err
	e.log.Error("Run failed",
		zap.String("run_id", e.cfg.RunID),
		zap.Error(err),
	)
	e.scheduler.Stop()
}

func (e *Engine) handle() *Handle {
	return &Handle{
		Symbol: e.cfg.Symbol,
		Ledger: e.ledger,
		Params: e.cfg.Params,
	}
}
