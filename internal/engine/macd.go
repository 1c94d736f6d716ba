package engine

import (
	"github.com/tessera-lab/tessera/internal/config"
	"github.com/tessera-lab/tessera/internal/indicator"
	"github.com/tessera-lab/tessera/internal/pipeline"
)

const macdLabel = "macd"

// MACDCrossStrategy buys when the MACD histogram crosses above zero and
// sells when it crosses back below. Its BeforeAll hook injects the macd
// binding into the run configuration when the user did not list it.
type MACDCrossStrategy struct {
	prevHistogram float64
	primed        bool
}

// NewMACDCrossStrategy implements StrategyFactory.
func NewMACDCrossStrategy(map[string]any) (Strategy, error) {
	return &MACDCrossStrategy{}, nil
}

func (s *MACDCrossStrategy) Name() string { return "macd-cross" }

// BeforeAll makes sure the macd transform is bound.
func (s *MACDCrossStrategy) BeforeAll(cfg *config.RunConfig) error {
	for _, ind := range cfg.Indicators {
		if ind.Label == macdLabel {
			return nil
		}
	}

	cfg.Indicators = append(cfg.Indicators, config.IndicatorConfig{
		Name:   "macd",
		Label:  macdLabel,
		Params: indicator.Params{},
	})

	return nil
}

func (s *MACDCrossStrategy) Run(snapshot pipeline.Snapshot, h *Handle) (Advice, error) {
	bar, ok := snapshot.Latest(h.Symbol)
	if !ok {
		return AdviceNone, nil
	}

	histogram, ok := bar.Features[macdLabel+"-histogram"]
	if !ok {
		// Still inside the transform's lookback.
		return AdviceNone, nil
	}

	defer func() {
		s.prevHistogram = histogram
		s.primed = true
	}()

	if !s.primed {
		return AdviceNone, nil
	}

	if s.prevHistogram <= 0 && histogram > 0 && !h.Ledger.HasPosition() {
		return AdviceBuy, nil
	}

	if s.prevHistogram >= 0 && histogram < 0 && h.Ledger.HasPosition() {
		return AdviceSell, nil
	}

	return AdviceNone, nil
}
