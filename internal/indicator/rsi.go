package indicator

import (
	"github.com/tessera-lab/tessera/internal/types"
	"github.com/tessera-lab/tessera/pkg/errors"
)

// NewRSI builds a relative strength index transform, the oscillator
// reference plugin.
//
// Params: period (default 14).
func NewRSI(params Params) (Transform, error) {
	period := params.GetInt("period", 14)
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "rsi period must be positive, got %d", period)
	}

	return func(history []types.Bar, next types.Bar) types.Features {
		// period deltas need period+1 closes.
		if len(history) < period+1 {
			return types.Features{}
		}

		values := closes(history[len(history)-period-1:])

		var gains, losses float64

		for i := 1; i < len(values); i++ {
			delta := values[i] - values[i-1]
			if delta > 0 {
				gains += delta
			} else {
				losses -= delta
			}
		}

		if losses == 0 {
			return types.Features{ScalarKey: 100}
		}

		rs := gains / losses

		return types.Features{ScalarKey: 100 - 100/(1+rs)}
	}, nil
}
