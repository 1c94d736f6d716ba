package series

import (
	"github.com/tessera-lab/tessera/internal/types"
	"github.com/tessera-lab/tessera/pkg/errors"
)

// Aggregator folds a stream of base-resolution bars into one coarser bar
// series for a single declared timeframe, merging in place rather than
// buffering the base stream.
type Aggregator struct {
	timeframe types.Timeframe
	out       *Series
}

// NewAggregator creates an aggregator materializing the given timeframe for
// one symbol. An unrecognized timeframe unit fails here, once, instead of
// per bar.
func NewAggregator(symbol types.SymbolTags, timeframe types.Timeframe, capacity int) (*Aggregator, error) {
	switch timeframe.Unit {
	case types.UnitMinute, types.UnitHour, types.UnitDay:
	default:
		return nil, errors.Newf(errors.ErrCodeUnknownTimeframeUnit,
			"unknown timeframe unit %q, choose between (m,h,d)", timeframe.Unit)
	}

	if timeframe.Amount <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration,
			"timeframe amount must be positive, got %d", timeframe.Amount)
	}

	key := types.SeriesKey{Symbol: symbol, Timeframe: timeframe}

	return &Aggregator{
		timeframe: timeframe,
		out:       NewSeries(key, capacity),
	}, nil
}

// Timeframe returns the materialized timeframe.
func (a *Aggregator) Timeframe() types.Timeframe {
	return a.timeframe
}

// Series returns the aggregated output series.
func (a *Aggregator) Series() *Series {
	return a.out
}

// Push folds one base-resolution bar into the aggregated series. A bar on a
// clean bucket boundary with a new timestamp opens a bucket; anything else
// merges into the last one: volume sums, close follows, low/high extend and
// the latest feature set is carried forward.
func (a *Aggregator) Push(bar types.Bar) {
	last, ok := a.out.Last()
	if !ok || (a.timeframe.OnBoundary(bar.Time) && !last.Time.Equal(bar.Time)) {
		bucket := bar
		bucket.Features = bar.Features.Clone()
		a.out.Push(bucket)

		return
	}

	a.out.UpdateLast(func(b *types.Bar) {
		b.Volume += bar.Volume
		b.Close = bar.Close

		if bar.Low < b.Low {
			b.Low = bar.Low
		}

		if bar.High > b.High {
			b.High = bar.High
		}

		b.Features = bar.Features.Clone()
	})
}
