package control

import (
	"github.com/moznion/go-optional"
	"github.com/tessera-lab/tessera/internal/config"
	"github.com/tessera-lab/tessera/internal/datasource"
	"github.com/tessera-lab/tessera/internal/engine"
	"github.com/tessera-lab/tessera/internal/exchange"
	"github.com/tessera-lab/tessera/internal/indicator"
	"github.com/tessera-lab/tessera/internal/ledger"
	"github.com/tessera-lab/tessera/internal/logger"
	"github.com/tessera-lab/tessera/internal/pipeline"
	"github.com/tessera-lab/tessera/internal/scheduler"
	"github.com/tessera-lab/tessera/internal/store"
	"github.com/tessera-lab/tessera/internal/types"
)

// defaultMinOrderCost applies when a config does not set one.
const defaultMinOrderCost = 10.0

// NewRunBuilder returns the standard RunBuilder: simulated exchange, shared
// bar source and store, per-run pipeline/scheduler/ledger.
func NewRunBuilder(
	indicators indicator.Registry,
	strategies *engine.StrategyRegistry,
	source datasource.BarSource,
	st store.Store,
	log *logger.Logger,
) RunBuilder {
	return func(runID string, cfg *config.RunConfig) (*engine.Engine, error) {
		strat, err := strategies.Resolve(cfg.Strategy, cfg.StrategyParams)
		if err != nil {
			return nil, err
		}

		// The setup hook runs before resolution so it can inject the
		// indicator bindings the strategy needs.
		if before, ok := strat.(engine.BeforeAller); ok {
			if err := before.BeforeAll(cfg); err != nil {
				return nil, err
			}
		}

		resolved, err := cfg.Resolve(indicators)
		if err != nil {
			return nil, err
		}

		pipe, err := pipeline.NewPipeline(pipeline.Config{
			Symbols:    resolved.Symbols,
			Timeframes: resolved.Timeframes,
			BufferSize: cfg.BufferSize,
			Bindings:   resolved.Bindings,
		})
		if err != nil {
			return nil, err
		}

		var window optional.Option[scheduler.Window]
		if cfg.Backtest != nil {
			window = optional.Some(scheduler.Window{Start: cfg.Backtest.Start, Stop: cfg.Backtest.Stop})
		}

		sched := scheduler.New(scheduler.Config{
			WatchList:       resolved.Symbols,
			BatchSize:       cfg.BatchSize,
			Warmup:          cfg.Warmup,
			Window:          window,
			StreamInterval:  cfg.StreamInterval.Std(),
			SanityThreshold: cfg.SanityThreshold,
		}, source, pipe, log)

		minCost := cfg.MinOrderCost
		if minCost == 0 {
			minCost = defaultMinOrderCost
		}

		markets := make(map[types.SymbolTags]types.MarketInfo, len(resolved.Symbols))
		for _, symbol := range resolved.Symbols {
			markets[symbol] = types.MarketInfo{MinCost: minCost}
		}

		ex := exchange.NewSimulatedExchange(cfg.FeeRate, markets, log)

		led := ledger.NewLedger(ledger.Config{
			RunID:          runID,
			Symbol:         resolved.Symbols[0],
			InitialCapital: cfg.InitialCapital,
			BatchSize:      cfg.BatchSize,
			FlushTimeout:   cfg.FlushTimeout.Std(),
		}, st, log)

		return engine.New(engine.Config{
			RunID:         runID,
			Symbol:        resolved.Symbols[0],
			PercentInvest: cfg.PercentInvest,
			Params:        cfg.StrategyParams,
		}, strat, ex, led, sched, log), nil
	}
}
