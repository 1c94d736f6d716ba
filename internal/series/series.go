// Package series provides bounded, ordered-by-time bar storage and the
// timeframe aggregator that folds base-resolution bars into coarser buckets.
package series

import (
	"time"

	"github.com/tessera-lab/tessera/internal/types"
)

// evictBlock is how many bars an overflowing series drops at once. Evicting
// a block instead of single bars keeps the amortized push cost constant.
const evictBlock = 100

// Series is an ordered-by-time, bounded-length bar sequence for one
// (symbol, timeframe) pair. Times are strictly non-decreasing.
type Series struct {
	key      types.SeriesKey
	bars     []types.Bar
	capacity int
}

// NewSeries creates an empty series with the given capacity.
func NewSeries(key types.SeriesKey, capacity int) *Series {
	return &Series{
		key:      key,
		bars:     make([]types.Bar, 0, min(capacity, evictBlock*2)),
		capacity: capacity,
	}
}

// Key returns the series identity.
func (s *Series) Key() types.SeriesKey {
	return s.key
}

// Len returns the number of stored bars.
func (s *Series) Len() int {
	return len(s.bars)
}

// Bars returns the underlying bar slice, oldest first. Callers must not
// append to it; the slice is only valid until the next Push.
func (s *Series) Bars() []types.Bar {
	return s.bars
}

// Last returns the most recent bar, if any.
func (s *Series) Last() (types.Bar, bool) {
	if len(s.bars) == 0 {
		return types.Bar{}, false
	}

	return s.bars[len(s.bars)-1], true
}

// LastN returns up to n most recent bars, oldest first.
func (s *Series) LastN(n int) []types.Bar {
	if n >= len(s.bars) {
		return s.bars
	}

	return s.bars[len(s.bars)-n:]
}

// LastTime returns the timestamp of the most recent bar, if any.
func (s *Series) LastTime() (time.Time, bool) {
	last, ok := s.Last()
	if !ok {
		return time.Time{}, false
	}

	return last.Time, true
}

// Push appends a bar and evicts the oldest block when over capacity.
func (s *Series) Push(bar types.Bar) {
	s.bars = append(s.bars, bar)

	if len(s.bars) > s.capacity {
		drop := len(s.bars) - s.capacity
		if drop < evictBlock {
			drop = evictBlock
		}

		if drop > len(s.bars) {
			drop = len(s.bars)
		}

		// One bulk copy instead of per-bar shifts.
		n := copy(s.bars, s.bars[drop:])
		s.bars = s.bars[:n]
	}
}

// DropLast removes the most recent bar. Used by de-duplication when an
// incoming batch rewrites the series tail.
func (s *Series) DropLast() {
	if len(s.bars) > 0 {
		s.bars = s.bars[:len(s.bars)-1]
	}
}

// UpdateLast mutates the most recent bar in place. No-op on an empty series.
func (s *Series) UpdateLast(fn func(*types.Bar)) {
	if len(s.bars) == 0 {
		return
	}

	fn(&s.bars[len(s.bars)-1])
}
