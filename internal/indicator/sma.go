package indicator

import (
	"github.com/tessera-lab/tessera/internal/types"
	"github.com/tessera-lab/tessera/pkg/errors"
)

// NewSMA builds a simple moving average transform.
//
// Params: period (default 25).
func NewSMA(params Params) (Transform, error) {
	period := params.GetInt("period", 25)
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "sma period must be positive, got %d", period)
	}

	return func(history []types.Bar, next types.Bar) types.Features {
		if len(history) < period {
			return types.Features{}
		}

		values := closes(history[len(history)-period:])

		var sum float64
		for _, v := range values {
			sum += v
		}

		return types.Features{ScalarKey: sum / float64(period)}
	}, nil
}
