package types

import (
	"time"
)

// Bar represents one OHLCV record for a time bucket, plus the feature values
// computed for it by the transform pipeline.
type Bar struct {
	Time     time.Time `yaml:"time" json:"time" csv:"time"`
	Open     float64   `yaml:"open" json:"open" csv:"open"`
	High     float64   `yaml:"high" json:"high" csv:"high"`
	Low      float64   `yaml:"low" json:"low" csv:"low"`
	Close    float64   `yaml:"close" json:"close" csv:"close"`
	Volume   float64   `yaml:"volume" json:"volume" csv:"volume"`
	Features Features  `yaml:"features,omitempty" json:"features,omitempty" csv:"-"`
}

// Features is the flat feature map attached to a bar. Structured transform
// outputs are flattened to "label-subkey" entries before attachment.
type Features map[string]float64

// Clone returns a copy of the feature map. Bars stored in different series
// must not share one map: aggregation copies the latest feature set forward.
func (f Features) Clone() Features {
	if f == nil {
		return nil
	}

	clone := make(Features, len(f))
	for k, v := range f {
		clone[k] = v
	}

	return clone
}
