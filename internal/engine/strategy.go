package engine

import (
	"sync"

	"github.com/tessera-lab/tessera/internal/config"
	"github.com/tessera-lab/tessera/internal/ledger"
	"github.com/tessera-lab/tessera/internal/pipeline"
	"github.com/tessera-lab/tessera/internal/types"
	"github.com/tessera-lab/tessera/pkg/errors"
)

// Advice is a strategy's verdict for one step.
type Advice string

const (
	AdviceBuy  Advice = "buy"
	AdviceSell Advice = "sell"
	AdviceNone Advice = ""
)

// Handle is the read view a strategy gets of its run.
type Handle struct {
	Symbol types.SymbolTags
	Ledger *ledger.Ledger
	Params map[string]any
}

// Strategy turns a pipeline snapshot into one advice per step.
type Strategy interface {
	Name() string
	Run(snapshot pipeline.Snapshot, h *Handle) (Advice, error)
}

// BeforeAller is an optional strategy hook invoked before the run is wired
// up. It may mutate the run configuration, typically to inject the
// indicator bindings the strategy depends on.
type BeforeAller interface {
	BeforeAll(cfg *config.RunConfig) error
}

// AfterAller is an optional strategy hook invoked after the last step.
type AfterAller interface {
	AfterAll(h *Handle) error
}

// StrategyFactory builds a configured strategy instance.
type StrategyFactory func(params map[string]any) (Strategy, error)

// StrategyRegistry resolves strategy names at configuration time, so a
// missing strategy is a construction failure rather than a runtime one.
type StrategyRegistry struct {
	factories map[string]StrategyFactory
	mu        sync.RWMutex
}

// NewStrategyRegistry creates an empty strategy registry.
func NewStrategyRegistry() *StrategyRegistry {
	return &StrategyRegistry{factories: make(map[string]StrategyFactory)}
}

// DefaultStrategyRegistry returns a registry with the built-in strategies.
func DefaultStrategyRegistry() *StrategyRegistry {
	r := NewStrategyRegistry()
	_ = r.Register("hold", NewHoldStrategy)
	_ = r.Register("macd-cross", NewMACDCrossStrategy)

	return r
}

// Register adds a strategy factory.
func (r *StrategyRegistry) Register(name string, factory StrategyFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "strategy %q already registered", name)
	}

	r.factories[name] = factory

	return nil
}

// Resolve builds the named strategy.
func (r *StrategyRegistry) Resolve(name string, params map[string]any) (Strategy, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.Newf(errors.ErrCodeStrategyNotFound, "unknown strategy %q", name)
	}

	return factory(params)
}

// List returns the registered strategy names.
func (r *StrategyRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}

	return names
}
