package datasource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/tessera-lab/tessera/internal/logger"
	"github.com/tessera-lab/tessera/internal/types"
)

type DuckDBSourceTestSuite struct {
	suite.Suite
	source *DuckDBSource
	symbol types.SymbolTags
}

func TestDuckDBSourceSuite(t *testing.T) {
	suite.Run(t, new(DuckDBSourceTestSuite))
}

func (suite *DuckDBSourceTestSuite) SetupTest() {
	source, err := NewDuckDBSource(":memory:", logger.NewNopLogger())
	suite.Require().NoError(err)
	suite.source = source
	suite.symbol = types.SymbolTags{Exchange: "binance", Base: "BTC", Quote: "USDT"}
}

func (suite *DuckDBSourceTestSuite) TearDownTest() {
	suite.NoError(suite.source.Close())
}

func (suite *DuckDBSourceTestSuite) seed(n int, start time.Time) {
	bars := make([]types.Bar, n)
	for i := range bars {
		c := 100 + float64(i)
		bars[i] = types.Bar{
			Time:   start.Add(time.Duration(i) * time.Minute),
			Open:   c - 1,
			High:   c + 1,
			Low:    c - 2,
			Close:  c,
			Volume: 10,
		}
	}

	suite.Require().NoError(suite.source.Insert(suite.symbol, bars))
}

func (suite *DuckDBSourceTestSuite) TestFetchBaseResolution() {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	suite.seed(30, start)

	bars, err := suite.source.Fetch(context.Background(), suite.symbol, Query{
		Limit: 10,
		Since: start.Add(5 * time.Minute),
	})
	suite.Require().NoError(err)
	suite.Require().Len(bars, 10)
	suite.Equal(start.Add(5*time.Minute), bars[0].Time)
	suite.InDelta(105.0, bars[0].Close, 1e-9)

	// Bars come back ordered by time.
	for i := 1; i < len(bars); i++ {
		suite.True(bars[i].Time.After(bars[i-1].Time))
	}
}

func (suite *DuckDBSourceTestSuite) TestFetchUnknownSymbolIsEmpty() {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	suite.seed(5, start)

	other := types.SymbolTags{Exchange: "binance", Base: "ETH", Quote: "USDT"}
	bars, err := suite.source.Fetch(context.Background(), other, Query{Limit: 5, Since: start})
	suite.NoError(err)
	suite.Empty(bars)
}

func (suite *DuckDBSourceTestSuite) TestFetchBucketed() {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	suite.seed(30, start)

	bars, err := suite.source.Fetch(context.Background(), suite.symbol, Query{
		Timeframe: types.Timeframe{Amount: 15, Unit: types.UnitMinute},
		Limit:     10,
		Since:     start,
	})
	suite.Require().NoError(err)
	suite.Require().Len(bars, 2)

	// The bucket folds 15 minute bars: summed volume, last close.
	suite.InDelta(150.0, bars[0].Volume, 1e-9)
	suite.InDelta(114.0, bars[0].Close, 1e-9)
	suite.InDelta(99.0, bars[0].Open, 1e-9)
}
