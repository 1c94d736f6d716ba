// Package scheduler drives the feature pipeline from the bar source in one
// of two modes: historical replay between two timestamps, or live polling at
// a fixed cadence. Both yield a lazy, forward-only sequence of snapshots
// through a pull-based cursor.
package scheduler

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/moznion/go-optional"
	"github.com/tessera-lab/tessera/internal/datasource"
	"github.com/tessera-lab/tessera/internal/logger"
	"github.com/tessera-lab/tessera/internal/pipeline"
	"github.com/tessera-lab/tessera/internal/types"
	"github.com/tessera-lab/tessera/pkg/errors"
	"go.uber.org/zap"
)

// warmupPageSize caps a single warmup fetch.
const warmupPageSize = 1000

// streamFetchDepth is how many recent bars a streaming poll asks for.
const streamFetchDepth = 5

// Window is a backtest replay window [Start, Stop).
type Window struct {
	Start time.Time
	Stop  time.Time
}

// Config parameterizes one scheduler run.
type Config struct {
	// WatchList is the set of markets to ingest each step.
	WatchList []types.SymbolTags
	// BatchSize is the page size of backtest fetches.
	BatchSize int
	// Warmup is how many bars to load before the first visible step.
	Warmup int
	// Window selects backtest mode when set; streaming otherwise.
	Window optional.Option[Window]
	// StreamInterval is the live polling cadence.
	StreamInterval time.Duration
	// SanityThreshold rejects a streamed price moving more than this
	// fraction away from the last known close.
	SanityThreshold float64
}

// Scheduler pulls raw bars from the bar source, feeds the pipeline and
// yields one enriched snapshot per step.
type Scheduler struct {
	cfg     Config
	source  datasource.BarSource
	pipe    *pipeline.Pipeline
	log     *logger.Logger
	stopped atomic.Bool

	warmedUp bool
	done     bool

	// Backtest cursor state: the fetched page per watched symbol and the
	// replay position within it.
	cursor  time.Time
	pages   [][]types.Bar
	pagePos int
}

// New creates a scheduler over the given source and pipeline.
func New(cfg Config, source datasource.BarSource, pipe *pipeline.Pipeline, log *logger.Logger) *Scheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}

	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = 10 * time.Second
	}

	if cfg.SanityThreshold <= 0 {
		cfg.SanityThreshold = 0.5
	}

	return &Scheduler{
		cfg:    cfg,
		source: source,
		pipe:   pipe,
		log:    log,
	}
}

// Stop requests cooperative termination: the next pull ends the sequence.
// In-flight fetches are allowed to complete.
func (s *Scheduler) Stop() {
	s.stopped.Store(true)
}

// Next advances the sequence by one step. It returns the enriched snapshot,
// whether the sequence is exhausted, and any fatal data error.
func (s *Scheduler) Next(ctx context.Context) (pipeline.Snapshot, bool, error) {
	if s.done || s.stopped.Load() {
		s.done = true

		return nil, true, nil
	}

	if s.cfg.Window.IsSome() {
		return s.nextBacktest(ctx)
	}

	return s.nextStreaming(ctx)
}

func (s *Scheduler) nextBacktest(ctx context.Context) (pipeline.Snapshot, bool, error) {
	window := s.cfg.Window.Unwrap()

	if !s.warmedUp {
		if err := s.loadWarmup(ctx, window.Start); err != nil {
			s.done = true

			return nil, true, err
		}

		s.warmedUp = true
		s.cursor = window.Start
	}

	for s.pagePos >= len(s.mainPage()) {
		if !s.cursor.Before(window.Stop) {
			s.done = true

			return nil, true, nil
		}

		limit := s.cfg.BatchSize
		// Clamp the final page so it does not cross the stop bound.
		if remaining := int(window.Stop.Sub(s.cursor) / time.Minute); remaining < limit {
			limit = remaining
		}

		if limit <= 0 {
			s.done = true

			return nil, true, nil
		}

		pages := make([][]types.Bar, len(s.cfg.WatchList))

		for i, symbol := range s.cfg.WatchList {
			bars, err := s.source.Fetch(ctx, symbol, datasource.Query{
				Timeframe: types.BaseTimeframe,
				Limit:     limit,
				Since:     s.cursor,
			})
			if err != nil {
				s.done = true

				return nil, true, errors.Wrapf(errors.ErrCodeBarFetchFailed, err, "backtest fetch failed for %s", symbol.Symbol())
			}

			pages[i] = bars
		}

		s.pages = pages
		s.pagePos = 0
		s.cursor = s.cursor.Add(time.Duration(limit) * time.Minute)

		if len(s.mainPage()) == 0 {
			s.done = true

			return nil, true, nil
		}
	}

	// Every watched symbol ingests this position before the yield, so a
	// multi-symbol backtest steps one aligned timestamp at a time.
	for i, symbol := range s.cfg.WatchList {
		if s.pagePos < len(s.pages[i]) {
			s.pipe.Ingest(symbol, s.pages[i][s.pagePos:s.pagePos+1])
		}
	}

	s.pagePos++

	return s.pipe, false, nil
}

func (s *Scheduler) mainPage() []types.Bar {
	if len(s.pages) == 0 {
		return nil
	}

	return s.pages[0]
}

func (s *Scheduler) nextStreaming(ctx context.Context) (pipeline.Snapshot, bool, error) {
	if !s.warmedUp {
		if err := s.loadWarmup(ctx, time.Now().UTC()); err != nil {
			s.done = true

			return nil, true, err
		}

		s.warmedUp = true
	}

	for {
		if s.stopped.Load() {
			s.done = true

			return nil, true, nil
		}

		hasUpdate := false

		for _, symbol := range s.cfg.WatchList {
			if s.pollSymbol(ctx, symbol) {
				hasUpdate = true
			}
		}

		if hasUpdate {
			return s.pipe, false, nil
		}

		select {
		case <-ctx.Done():
			s.done = true

			return nil, true, ctx.Err()
		case <-time.After(s.cfg.StreamInterval):
		}
	}
}

// pollSymbol fetches the most recent bars for one symbol and reports whether
// the known last bar changed. Fetch failures and insane prices are logged
// and skipped; streaming keeps running.
func (s *Scheduler) pollSymbol(ctx context.Context, symbol types.SymbolTags) bool {
	since := time.Now().UTC().Add(-streamFetchDepth * time.Minute)

	bars, err := s.source.Fetch(ctx, symbol, datasource.Query{
		Timeframe: types.BaseTimeframe,
		Limit:     streamFetchDepth,
		Since:     since,
	})
	if err != nil {
		s.log.Error("Streaming fetch failed, skipping tick",
			zap.String("symbol", symbol.Symbol()),
			zap.Error(err),
		)

		return false
	}

	if len(bars) == 0 {
		return false
	}

	before, hadBar := s.pipe.Latest(symbol)
	newest := bars[len(bars)-1]

	if hadBar && before.Close != 0 {
		deviation := math.Abs(newest.Close-before.Close) / before.Close
		if deviation > s.cfg.SanityThreshold {
			s.log.Warn("Price sanity violation, update skipped",
				zap.String("symbol", symbol.Symbol()),
				zap.Float64("last_close", before.Close),
				zap.Float64("new_close", newest.Close),
				zap.Float64("deviation", deviation),
			)

			return false
		}
	}

	s.pipe.Ingest(symbol, bars)

	after, _ := s.pipe.Latest(symbol)

	return !hadBar || !after.Time.Equal(before.Time) || after.Close != before.Close
}

// loadWarmup ingests the configured number of bars strictly preceding start,
// in fixed-size pages, so lookback-dependent transforms are populated at the
// first visible step.
func (s *Scheduler) loadWarmup(ctx context.Context, start time.Time) error {
	for _, symbol := range s.cfg.WatchList {
		remaining := s.cfg.Warmup
		since := start.Add(-time.Duration(s.cfg.Warmup) * time.Minute)

		for remaining > 0 {
			limit := remaining
			if limit > warmupPageSize {
				limit = warmupPageSize
			}

			bars, err := s.source.Fetch(ctx, symbol, datasource.Query{
				Timeframe: types.BaseTimeframe,
				Limit:     limit,
				Since:     since,
			})
			if err != nil {
				return errors.Wrapf(errors.ErrCodeWarmupFailed, err, "warmup fetch failed for %s", symbol.Symbol())
			}

			s.pipe.Ingest(symbol, bars)

			remaining -= limit
			since = since.Add(time.Duration(limit) * time.Minute)
		}
	}

	return nil
}
