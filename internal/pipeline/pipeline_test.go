package pipeline

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"
	"github.com/tessera-lab/tessera/internal/indicator"
	"github.com/tessera-lab/tessera/internal/types"
)

type PipelineTestSuite struct {
	suite.Suite
	symbol types.SymbolTags
	tf15m  types.Timeframe
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineTestSuite))
}

func (suite *PipelineTestSuite) SetupSuite() {
	suite.symbol = types.SymbolTags{Exchange: "binance", Base: "BTC", Quote: "USDT"}
	suite.tf15m = types.Timeframe{Amount: 15, Unit: types.UnitMinute}
}

func (suite *PipelineTestSuite) newPipeline(bindings ...Binding) *Pipeline {
	p, err := NewPipeline(Config{
		Symbols:    []types.SymbolTags{suite.symbol},
		Timeframes: []types.Timeframe{suite.tf15m},
		BufferSize: 5000,
		Bindings:   bindings,
	})
	suite.Require().NoError(err)

	return p
}

func minuteBars(start time.Time, closeValues ...float64) []types.Bar {
	out := make([]types.Bar, len(closeValues))
	for i, c := range closeValues {
		out[i] = types.Bar{
			Time:   start.Add(time.Duration(i) * time.Minute),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: 1,
		}
	}

	return out
}

func (suite *PipelineTestSuite) TestIngestAppends() {
	p := suite.newPipeline()
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	p.Ingest(suite.symbol, minuteBars(start, 100, 101, 102))

	last, ok := p.Latest(suite.symbol)
	suite.True(ok)
	suite.Equal(102.0, last.Close)
	suite.Len(p.History(suite.symbol, types.Timeframe{}, 10), 3)
}

func (suite *PipelineTestSuite) TestOverlappingBatchIsIdempotent() {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	batch := minuteBars(start, 100, 101, 102, 103, 104)

	// Ingest everything, then re-ingest a batch whose leading timestamp
	// overlaps the stored tail.
	p := suite.newPipeline()
	p.Ingest(suite.symbol, batch[:4])
	p.Ingest(suite.symbol, batch[2:])

	// Reference: the same bars ingested without overlap.
	ref := suite.newPipeline()
	ref.Ingest(suite.symbol, batch)

	got := p.History(suite.symbol, types.Timeframe{}, 10)
	want := ref.History(suite.symbol, types.Timeframe{}, 10)
	suite.Require().Len(got, len(want))

	for i := range want {
		suite.Equal(want[i].Time, got[i].Time)
		suite.Equal(want[i].Close, got[i].Close)
	}
}

func (suite *PipelineTestSuite) TestLastWriteWins() {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	p := suite.newPipeline()

	p.Ingest(suite.symbol, minuteBars(start, 100, 101))

	// The same last timestamp arrives again with a corrected close.
	correction := minuteBars(start.Add(time.Minute), 999)
	p.Ingest(suite.symbol, correction)

	suite.Equal(2, len(p.History(suite.symbol, types.Timeframe{}, 10)))

	last, _ := p.Latest(suite.symbol)
	suite.Equal(999.0, last.Close)
}

func (suite *PipelineTestSuite) TestMissingKeysBeforeLookback() {
	transform, err := indicator.NewSMA(indicator.Params{"period": 3})
	suite.Require().NoError(err)

	p := suite.newPipeline(Binding{Label: "sma3", Timeframe: optional.None[types.Timeframe](), Transform: transform})
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	p.Ingest(suite.symbol, minuteBars(start, 10, 20, 30, 40))

	history := p.History(suite.symbol, types.Timeframe{}, 10)
	suite.Require().Len(history, 4)

	// No value until the lookback is satisfied; never a synthesized default.
	for i := 0; i < 3; i++ {
		suite.NotContains(history[i].Features, "sma3")
	}

	suite.InDelta(20.0, history[3].Features["sma3"], 1e-9)
}

func (suite *PipelineTestSuite) TestStructuredFeatureKeys() {
	transform, err := indicator.NewMACD(indicator.Params{"fast_period": 2, "slow_period": 3, "signal_period": 2})
	suite.Require().NoError(err)

	p := suite.newPipeline(Binding{Label: "macd", Timeframe: optional.None[types.Timeframe](), Transform: transform})
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	p.Ingest(suite.symbol, minuteBars(start, 1, 2, 3, 4, 5, 6, 7, 8))

	last, _ := p.Latest(suite.symbol)
	suite.Contains(last.Features, "macd-macd")
	suite.Contains(last.Features, "macd-signal")
	suite.Contains(last.Features, "macd-histogram")
}

func (suite *PipelineTestSuite) TestFeaturesPropagateToAggregatedSeries() {
	transform, err := indicator.NewSMA(indicator.Params{"period": 2})
	suite.Require().NoError(err)

	p := suite.newPipeline(Binding{Label: "sma2", Timeframe: optional.None[types.Timeframe](), Transform: transform})
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	p.Ingest(suite.symbol, minuteBars(start, 10, 20, 30))

	base, _ := p.Latest(suite.symbol)
	agg, ok := p.LatestAt(suite.symbol, suite.tf15m)
	suite.True(ok)

	// The aggregated view of the current moment carries the same features
	// as the base view.
	suite.InDelta(base.Features["sma2"], agg.Features["sma2"], 1e-9)
}

func (suite *PipelineTestSuite) TestBindingReadsAggregatedSeries() {
	transform, err := indicator.NewSMA(indicator.Params{"period": 2})
	suite.Require().NoError(err)

	p := suite.newPipeline(Binding{Label: "slow", Timeframe: optional.Some(suite.tf15m), Transform: transform})
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	// 45 minutes of data: three full 15m buckets.
	closes := make([]float64, 45)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}

	p.Ingest(suite.symbol, minuteBars(start, closes...))

	last, _ := p.Latest(suite.symbol)
	suite.Contains(last.Features, "slow")
}

func (suite *PipelineTestSuite) TestBindingOnUnmaterializedTimeframe() {
	transform, err := indicator.NewSMA(indicator.Params{})
	suite.Require().NoError(err)

	_, err = NewPipeline(Config{
		Symbols:    []types.SymbolTags{suite.symbol},
		Timeframes: []types.Timeframe{suite.tf15m},
		BufferSize: 100,
		Bindings: []Binding{{
			Label:     "slow",
			Timeframe: optional.Some(types.Timeframe{Amount: 4, Unit: types.UnitHour}),
			Transform: transform,
		}},
	})
	suite.Error(err)
}

func (suite *PipelineTestSuite) TestAggregatedVolume() {
	p := suite.newPipeline()
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100
	}

	p.Ingest(suite.symbol, minuteBars(start, closes...))

	agg, ok := p.LatestAt(suite.symbol, suite.tf15m)
	suite.True(ok)
	suite.InDelta(15.0, agg.Volume, 1e-9)
	suite.Len(p.History(suite.symbol, suite.tf15m, 10), 2)
}
