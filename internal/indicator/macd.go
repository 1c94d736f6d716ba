package indicator

import (
	"github.com/tessera-lab/tessera/internal/types"
	"github.com/tessera-lab/tessera/pkg/errors"
)

// NewMACD builds a moving average convergence/divergence transform, the
// dual-average reference plugin. It emits three sub-keys — macd, signal and
// histogram — which the pipeline attaches as "label-macd" and so on.
//
// Params: fast_period (default 12), slow_period (default 26),
// signal_period (default 9).
func NewMACD(params Params) (Transform, error) {
	fast := params.GetInt("fast_period", 12)
	slow := params.GetInt("slow_period", 26)
	signal := params.GetInt("signal_period", 9)

	if fast <= 0 || slow <= 0 || signal <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter,
			"macd periods must be positive, got fast=%d slow=%d signal=%d", fast, slow, signal)
	}

	if fast >= slow {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter,
			"macd fast period %d must be shorter than slow period %d", fast, slow)
	}

	return func(history []types.Bar, next types.Bar) types.Features {
		if len(history) < slow+signal {
			return types.Features{}
		}

		values := closes(history[len(history)-slow-signal:])

		fastEMA := ema(values, fast)
		slowEMA := ema(values, slow)

		// The MACD line over the window, aligned to the slow EMA tail.
		line := make([]float64, len(slowEMA))
		offset := len(fastEMA) - len(slowEMA)

		for i := range slowEMA {
			line[i] = fastEMA[i+offset] - slowEMA[i]
		}

		signalEMA := ema(line, signal)
		if len(signalEMA) == 0 {
			return types.Features{}
		}

		macdValue := line[len(line)-1]
		signalValue := signalEMA[len(signalEMA)-1]

		return types.Features{
			"macd":      macdValue,
			"signal":    signalValue,
			"histogram": macdValue - signalValue,
		}
	}, nil
}

// ema computes the exponential moving average series over values, seeded
// with the simple average of the first period values.
func ema(values []float64, period int) []float64 {
	if len(values) < period {
		return nil
	}

	var seed float64
	for _, v := range values[:period] {
		seed += v
	}

	seed /= float64(period)

	multiplier := 2.0 / (float64(period) + 1)
	out := make([]float64, 0, len(values)-period+1)
	out = append(out, seed)

	prev := seed
	for _, v := range values[period:] {
		prev = (v-prev)*multiplier + prev
		out = append(out, prev)
	}

	return out
}
