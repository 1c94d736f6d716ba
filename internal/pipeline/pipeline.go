// Package pipeline owns the per-symbol bar series and runs the configured
// transform bindings against them, producing enriched bars.
package pipeline

import (
	"github.com/moznion/go-optional"
	"github.com/tessera-lab/tessera/internal/indicator"
	"github.com/tessera-lab/tessera/internal/series"
	"github.com/tessera-lab/tessera/internal/types"
	"github.com/tessera-lab/tessera/pkg/errors"
)

// Binding attaches one configured transform to the series it reads. A unset
// timeframe means the transform reads the base-resolution series.
type Binding struct {
	// Label is the unique feature key prefix of this binding.
	Label string
	// Timeframe selects which materialized series the transform reads.
	Timeframe optional.Option[types.Timeframe]
	// Transform computes the feature values.
	Transform indicator.Transform
}

// Config describes the series a pipeline materializes.
type Config struct {
	Symbols    []types.SymbolTags
	Timeframes []types.Timeframe
	BufferSize int
	Bindings   []Binding
}

// Snapshot is the read view the execution engine and strategies get of the
// pipeline state after a step.
type Snapshot interface {
	// Latest returns the most recent enriched base-resolution bar.
	Latest(symbol types.SymbolTags) (types.Bar, bool)
	// LatestAt returns the most recent bar of an aggregated series.
	LatestAt(symbol types.SymbolTags, timeframe types.Timeframe) (types.Bar, bool)
	// History returns up to n most recent bars, oldest first. The zero
	// timeframe selects the base series.
	History(symbol types.SymbolTags, timeframe types.Timeframe, n int) []types.Bar
}

// Pipeline maintains one base series per symbol plus one aggregated series
// per (symbol, timeframe), and enriches every new base bar with the bound
// feature transforms before exposing it.
type Pipeline struct {
	bufferSize int
	timeframes []types.Timeframe
	bindings   []Binding
	base       map[types.SymbolTags]*series.Series
	aggs       map[types.SeriesKey]*series.Aggregator
}

// NewPipeline builds the series and aggregators for every configured symbol
// and timeframe. Configuration problems (unknown units, bindings referring
// to unmaterialized timeframes) surface here, not per bar.
func NewPipeline(cfg Config) (*Pipeline, error) {
	p := &Pipeline{
		bufferSize: cfg.BufferSize,
		timeframes: cfg.Timeframes,
		bindings:   cfg.Bindings,
		base:       make(map[types.SymbolTags]*series.Series),
		aggs:       make(map[types.SeriesKey]*series.Aggregator),
	}

	for _, symbol := range cfg.Symbols {
		p.base[symbol] = series.NewSeries(types.SeriesKey{Symbol: symbol}, cfg.BufferSize)

		for _, timeframe := range cfg.Timeframes {
			agg, err := series.NewAggregator(symbol, timeframe, cfg.BufferSize)
			if err != nil {
				return nil, err
			}

			p.aggs[types.SeriesKey{Symbol: symbol, Timeframe: timeframe}] = agg
		}
	}

	for _, binding := range cfg.Bindings {
		if binding.Timeframe.IsNone() {
			continue
		}

		timeframe := binding.Timeframe.Unwrap()
		if !p.materializes(timeframe) {
			return nil, errors.Newf(errors.ErrCodeInvalidConfiguration,
				"binding %q reads timeframe %s which is not materialized", binding.Label, timeframe)
		}
	}

	return p, nil
}

func (p *Pipeline) materializes(timeframe types.Timeframe) bool {
	for _, t := range p.timeframes {
		if t == timeframe {
			return true
		}
	}

	return false
}

// Ingest accepts one or more consecutive base-resolution bars for a symbol.
// Overlapping tails are replaced (last write wins), aggregators see every
// bar before the base series exposes it, and each appended bar carries the
// full feature set of its bindings.
func (p *Pipeline) Ingest(symbol types.SymbolTags, bars []types.Bar) {
	if len(bars) == 0 {
		return
	}

	base, ok := p.base[symbol]
	if !ok {
		return
	}

	p.dropOverlap(base, bars)

	for _, bar := range bars {
		for _, timeframe := range p.timeframes {
			p.aggs[types.SeriesKey{Symbol: symbol, Timeframe: timeframe}].Push(bar)
		}

		enriched := bar
		enriched.Features = make(types.Features)

		for _, binding := range p.bindings {
			input := base
			if binding.Timeframe.IsSome() {
				input = p.aggs[types.SeriesKey{Symbol: symbol, Timeframe: binding.Timeframe.Unwrap()}].Series()
			}

			// The candidate bar is never part of the history the
			// transform sees.
			result := binding.Transform(input.Bars(), enriched)
			for key, value := range result {
				if key == indicator.ScalarKey {
					enriched.Features[binding.Label] = value
				} else {
					enriched.Features[binding.Label+"-"+key] = value
				}
			}
		}

		base.Push(enriched)

		// Fast- and slow-timeframe consumers observe the same feature
		// values for the current moment.
		for _, timeframe := range p.timeframes {
			p.aggs[types.SeriesKey{Symbol: symbol, Timeframe: timeframe}].Series().UpdateLast(func(b *types.Bar) {
				b.Features = enriched.Features.Clone()
			})
		}
	}
}

// dropOverlap removes the base-series tail that the incoming batch rewrites,
// so each timestamp appears once with the newest data winning.
func (p *Pipeline) dropOverlap(base *series.Series, bars []types.Bar) {
	last, ok := base.LastTime()
	if !ok || bars[0].Time.After(last) {
		return
	}

	for i := len(bars) - 1; i >= 0; i-- {
		if lastTime, ok := base.LastTime(); ok && lastTime.Equal(bars[i].Time) {
			base.DropLast()
		}
	}
}

// Latest implements Snapshot.
func (p *Pipeline) Latest(symbol types.SymbolTags) (types.Bar, bool) {
	base, ok := p.base[symbol]
	if !ok {
		return types.Bar{}, false
	}

	return base.Last()
}

// LatestAt implements Snapshot.
func (p *Pipeline) LatestAt(symbol types.SymbolTags, timeframe types.Timeframe) (types.Bar, bool) {
	agg, ok := p.aggs[types.SeriesKey{Symbol: symbol, Timeframe: timeframe}]
	if !ok {
		return types.Bar{}, false
	}

	return agg.Series().Last()
}

// History implements Snapshot.
func (p *Pipeline) History(symbol types.SymbolTags, timeframe types.Timeframe, n int) []types.Bar {
	if timeframe.IsZero() {
		base, ok := p.base[symbol]
		if !ok {
			return nil
		}

		return base.LastN(n)
	}

	agg, ok := p.aggs[types.SeriesKey{Symbol: symbol, Timeframe: timeframe}]
	if !ok {
		return nil
	}

	return agg.Series().LastN(n)
}
