package engine

import (
	"github.com/tessera-lab/tessera/internal/pipeline"
)

// HoldStrategy never trades. It exists as the neutral baseline: a run with
// it should end with exactly the capital it started with.
type HoldStrategy struct{}

// NewHoldStrategy implements StrategyFactory.
func NewHoldStrategy(map[string]any) (Strategy, error) {
	return &HoldStrategy{}, nil
}

func (s *HoldStrategy) Name() string { return "hold" }

func (s *HoldStrategy) Run(pipeline.Snapshot, *Handle) (Advice, error) {
	return AdviceNone, nil
}
