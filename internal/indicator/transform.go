// Package indicator hosts the transform plugins the feature pipeline runs
// against bar series, plus the registry that resolves them by name at
// configuration-parse time.
package indicator

import (
	"github.com/tessera-lab/tessera/internal/types"
)

// ScalarKey is the feature key a transform uses for a single unnamed value.
// The pipeline attaches it under the binding label itself; any other key is
// attached as "label-key".
const ScalarKey = ""

// Transform computes named feature values from the series history and the
// bar under construction. The history never contains the candidate bar, so
// look-ahead bias is structurally impossible. A transform with insufficient
// history returns an empty map; it must not fail.
type Transform func(history []types.Bar, next types.Bar) types.Features

// Params are the numeric options of one transform binding (periods,
// deviations and so on). Missing entries fall back to transform defaults.
type Params map[string]float64

// Get returns the named parameter or the fallback when unset.
func (p Params) Get(name string, fallback float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}

	return fallback
}

// GetInt returns the named parameter truncated to int, or the fallback.
func (p Params) GetInt(name string, fallback int) int {
	if v, ok := p[name]; ok {
		return int(v)
	}

	return fallback
}

// Factory builds a configured Transform. Parameter validation happens here,
// once, not per bar.
type Factory func(params Params) (Transform, error)

// closes extracts the close prices of the given bars, preserving order.
func closes(bars []types.Bar) []float64 {
	values := make([]float64, len(bars))
	for i, b := range bars {
		values[i] = b.Close
	}

	return values
}
