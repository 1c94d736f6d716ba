// Package datasource provides the bar-source collaborator: historical bars
// out of DuckDB for replay, live bars from Binance for streaming.
package datasource

import (
	"context"
	"time"

	"github.com/tessera-lab/tessera/internal/types"
)

// Query selects a contiguous bar range: limit bars of the given timeframe
// starting at Since. A zero Since means "the most recent bars".
type Query struct {
	Timeframe types.Timeframe
	Limit     int
	Since     time.Time
}

// BarSource serves ordered bars for one market. Implementations cover the
// range [since, since+limit*unit) and must support arbitrary historical
// ranges as well as "now minus N" live queries.
type BarSource interface {
	// Fetch returns up to q.Limit bars ordered by time.
	Fetch(ctx context.Context, symbol types.SymbolTags, q Query) ([]types.Bar, error)
	// Close releases any resources held by the source.
	Close() error
}
