// Package config parses and validates run configurations. Parsing resolves
// every referenced transform against the registry, so a configuration that
// parses cleanly can no longer fail on an unknown name mid-run.
package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/tessera-lab/tessera/internal/indicator"
	"github.com/tessera-lab/tessera/internal/pipeline"
	"github.com/tessera-lab/tessera/internal/types"
	"github.com/tessera-lab/tessera/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultBatchSize       = 500
	DefaultWarmup          = 500
	DefaultBufferSize      = 5000
	DefaultFlushTimeout    = 5 * time.Second
	DefaultStreamInterval  = 10 * time.Second
	DefaultSanityThreshold = 0.5
	DefaultPercentInvest   = 1.0
)

// IndicatorConfig binds one named transform to a label and, optionally, an
// aggregated timeframe.
type IndicatorConfig struct {
	Name    string           `yaml:"name" json:"name" validate:"required"`
	Label   string           `yaml:"label" json:"label" validate:"required"`
	AggTime string           `yaml:"agg_time,omitempty" json:"agg_time"`
	Params  indicator.Params `yaml:"params,omitempty" json:"params"`
}

// BacktestConfig selects backtest mode over the given window.
type BacktestConfig struct {
	Start time.Time `yaml:"start" json:"start" validate:"required"`
	Stop  time.Time `yaml:"stop" json:"stop" validate:"required,gtfield=Start"`
}

// RunConfig is the complete user-facing configuration of one run.
type RunConfig struct {
	RunID          string         `yaml:"run_id" json:"run_id"`
	Strategy       string         `yaml:"strategy" json:"strategy" validate:"required"`
	StrategyParams map[string]any `yaml:"strategy_params,omitempty" json:"strategy_params"`

	Symbols    []string `yaml:"symbols" json:"symbols" validate:"required,min=1"`
	Timeframes []string `yaml:"timeframes,omitempty" json:"timeframes"`

	InitialCapital float64 `yaml:"initial_capital" json:"initial_capital" validate:"gt=0"`
	PercentInvest  float64 `yaml:"percent_invest" json:"percent_invest" validate:"gte=0,lte=1"`
	FeeRate        float64 `yaml:"fee_rate" json:"fee_rate" validate:"gte=0,lt=1"`
	MinOrderCost   float64 `yaml:"min_order_cost" json:"min_order_cost" validate:"gte=0"`

	Backtest *BacktestConfig `yaml:"backtest,omitempty" json:"backtest"`

	BatchSize       int      `yaml:"batch_size" json:"batch_size" validate:"gte=0"`
	Warmup          int      `yaml:"warmup" json:"warmup" validate:"gte=0"`
	BufferSize      int      `yaml:"buffer_size" json:"buffer_size" validate:"gte=0"`
	FlushTimeout    Duration `yaml:"flush_timeout" json:"flush_timeout"`
	StreamInterval  Duration `yaml:"stream_interval" json:"stream_interval"`
	SanityThreshold float64  `yaml:"sanity_threshold" json:"sanity_threshold" validate:"gte=0"`

	Indicators []IndicatorConfig `yaml:"indicators,omitempty" json:"indicators"`
}

// ParseRunConfig unmarshals, defaults and validates a YAML run config.
func ParseRunConfig(data []byte) (*RunConfig, error) {
	cfg := &RunConfig{}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse run config", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyDefaults fills unset tunables with their defaults.
func (c *RunConfig) ApplyDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}

	if c.Warmup == 0 {
		c.Warmup = DefaultWarmup
	}

	if c.BufferSize == 0 {
		c.BufferSize = DefaultBufferSize
	}

	if c.FlushTimeout == 0 {
		c.FlushTimeout = Duration(DefaultFlushTimeout)
	}

	if c.StreamInterval == 0 {
		c.StreamInterval = Duration(DefaultStreamInterval)
	}

	if c.SanityThreshold == 0 {
		c.SanityThreshold = DefaultSanityThreshold
	}

	if c.PercentInvest == 0 {
		c.PercentInvest = DefaultPercentInvest
	}
}

// Validate checks structural constraints.
func (c *RunConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid run config", err)
	}

	return nil
}

// ParseSymbol parses the canonical "exchange:base:quote" form.
func ParseSymbol(s string) (types.SymbolTags, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return types.SymbolTags{}, errors.Newf(errors.ErrCodeInvalidConfiguration, "invalid symbol %q, expected exchange:base:quote", s)
	}

	return types.SymbolTags{Exchange: parts[0], Base: parts[1], Quote: parts[2]}, nil
}

// Resolved is a run config with every string reference turned into its
// structured form and every transform factory invoked.
type Resolved struct {
	Symbols    []types.SymbolTags
	Timeframes []types.Timeframe
	Bindings   []pipeline.Binding
}

// Resolve materializes symbols, timeframes and transform bindings. Unknown
// transform names and unparsable timeframes fail here, at configuration
// time.
func (c *RunConfig) Resolve(registry indicator.Registry) (*Resolved, error) {
	resolved := &Resolved{}

	for _, raw := range c.Symbols {
		symbol, err := ParseSymbol(raw)
		if err != nil {
			return nil, err
		}

		resolved.Symbols = append(resolved.Symbols, symbol)
	}

	seen := map[types.Timeframe]bool{}

	for _, raw := range c.Timeframes {
		timeframe, err := types.ParseTimeframe(raw)
		if err != nil {
			return nil, err
		}

		if !seen[timeframe] {
			seen[timeframe] = true
			resolved.Timeframes = append(resolved.Timeframes, timeframe)
		}
	}

	for _, ind := range c.Indicators {
		factory, err := registry.Resolve(ind.Name)
		if err != nil {
			return nil, err
		}

		transform, err := factory(ind.Params)
		if err != nil {
			return nil, err
		}

		binding := pipeline.Binding{
			Label:     ind.Label,
			Transform: transform,
		}

		if ind.AggTime != "" {
			timeframe, err := types.ParseTimeframe(ind.AggTime)
			if err != nil {
				return nil, err
			}

			// A binding may name a timeframe the run forgot to list;
			// materialize it implicitly rather than failing later.
			if !seen[timeframe] {
				seen[timeframe] = true
				resolved.Timeframes = append(resolved.Timeframes, timeframe)
			}

			binding.Timeframe = optional.Some(timeframe)
		}

		resolved.Bindings = append(resolved.Bindings, binding)
	}

	return resolved, nil
}
