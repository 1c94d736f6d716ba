package types

import (
	"fmt"
	"strconv"
	"time"

	"github.com/tessera-lab/tessera/pkg/errors"
)

// TimeframeUnit is the bucket unit of an aggregated series.
type TimeframeUnit string

const (
	UnitMinute TimeframeUnit = "m"
	UnitHour   TimeframeUnit = "h"
	UnitDay    TimeframeUnit = "d"
)

// Timeframe is the bucket width of a derived bar series, expressed as
// unit plus amount (e.g. 15m, 4h, 1d). The zero value means the base
// resolution of the incoming stream.
type Timeframe struct {
	Amount int           `yaml:"amount" json:"amount"`
	Unit   TimeframeUnit `yaml:"unit" json:"unit"`
}

// BaseTimeframe is the resolution bars arrive at from the bar source.
var BaseTimeframe = Timeframe{Amount: 1, Unit: UnitMinute}

// ParseTimeframe parses a compact timeframe string such as "15m" or "4h".
// An unrecognized unit is a configuration error.
func ParseTimeframe(s string) (Timeframe, error) {
	if len(s) < 2 {
		return Timeframe{}, errors.Newf(errors.ErrCodeInvalidConfiguration, "invalid timeframe %q", s)
	}

	amount, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || amount <= 0 {
		return Timeframe{}, errors.Newf(errors.ErrCodeInvalidConfiguration, "invalid timeframe amount %q", s)
	}

	unit := TimeframeUnit(s[len(s)-1:])
	switch unit {
	case UnitMinute, UnitHour, UnitDay:
	default:
		return Timeframe{}, errors.Newf(errors.ErrCodeUnknownTimeframeUnit, "unknown timeframe unit %q, choose between (m,h,d)", unit)
	}

	return Timeframe{Amount: amount, Unit: unit}, nil
}

// String renders the compact form ("15m").
func (t Timeframe) String() string {
	return fmt.Sprintf("%d%s", t.Amount, t.Unit)
}

// IsZero reports whether the timeframe is unset (base resolution).
func (t Timeframe) IsZero() bool {
	return t.Amount == 0 && t.Unit == ""
}

// Duration returns the bucket width as a time.Duration.
func (t Timeframe) Duration() time.Duration {
	switch t.Unit {
	case UnitHour:
		return time.Duration(t.Amount) * time.Hour
	case UnitDay:
		return time.Duration(t.Amount) * 24 * time.Hour
	default:
		return time.Duration(t.Amount) * time.Minute
	}
}

// OnBoundary reports whether ts sits on a clean bucket boundary for the
// timeframe. Hour and day units require the finer components to be zero,
// so a partially elapsed hour or day never counts as a boundary.
func (t Timeframe) OnBoundary(ts time.Time) bool {
	switch t.Unit {
	case UnitMinute:
		return ts.Minute()%t.Amount == 0
	case UnitHour:
		return ts.Minute() == 0 && ts.Hour()%t.Amount == 0
	case UnitDay:
		return ts.Minute() == 0 && ts.Hour() == 0 && ts.Day()%t.Amount == 0
	default:
		return false
	}
}
