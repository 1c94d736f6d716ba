package exchange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/tessera-lab/tessera/internal/logger"
	"github.com/tessera-lab/tessera/internal/types"
	"github.com/tessera-lab/tessera/pkg/errors"
)

var testSymbol = types.SymbolTags{Exchange: "binance", Base: "btc", Quote: "usdt"}

type SimulatedExchangeTestSuite struct {
	suite.Suite

	exchange *SimulatedExchange
}

func TestSimulatedExchangeSuite(t *testing.T) {
	suite.Run(t, new(SimulatedExchangeTestSuite))
}

func (s *SimulatedExchangeTestSuite) SetupTest() {
	s.exchange = NewSimulatedExchange(0.001, map[types.SymbolTags]types.MarketInfo{
		testSymbol: {MinCost: 10},
	}, logger.NewNopLogger())
	s.exchange.now = func() time.Time {
		return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	}
}

func (s *SimulatedExchangeTestSuite) TestMarketBuyChargesFee() {
	order, err := s.exchange.MarketBuy(testSymbol, 1000, 50000)
	s.Require().NoError(err)

	s.Equal(types.SideBuy, order.Side)
	s.InDelta(1.0, order.Fee, 1e-9)
	s.InDelta(1000.0, order.Cost, 1e-9)
	s.InDelta(0.02, order.Filled, 1e-9)
	s.NotEmpty(order.ID)
	s.False(order.Timestamp.IsZero())
}

func (s *SimulatedExchangeTestSuite) TestMarketBuyChargesFeeOnce() {
	order, err := s.exchange.MarketBuy(testSymbol, 1000, 100)
	s.Require().NoError(err)

	// The buyer pays cost plus fee and receives base worth the full cost, so
	// the round cost of the order is exactly one fee.
	debited := order.Cost + order.Fee
	credited := order.Filled * order.Price
	s.InDelta(order.Fee, debited-credited, 1e-9)
}

func (s *SimulatedExchangeTestSuite) TestMarketBuyRoundsFillDown() {
	// 100 / 3 leaves an infinite expansion; fills truncate at 8 places.
	order, err := s.exchange.MarketBuy(testSymbol, 100, 3)
	s.Require().NoError(err)

	s.InDelta(33.33333333, order.Filled, 1e-8)
	s.LessOrEqual(order.Filled*3, 100.0)
}

func (s *SimulatedExchangeTestSuite) TestMarketBuyBelowMinCost() {
	_, err := s.exchange.MarketBuy(testSymbol, 5, 50000)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeOrderFailed))
}

func (s *SimulatedExchangeTestSuite) TestMarketSellNetsFeeFromProceeds() {
	order, err := s.exchange.MarketSell(testSymbol, 0.02, 50000)
	s.Require().NoError(err)

	s.Equal(types.SideSell, order.Side)
	s.InDelta(1.0, order.Fee, 1e-9)
	// 0.02 * 50000 = 1000 gross, 999 net of fee.
	s.InDelta(999.0, order.Cost, 1e-9)
	s.Equal(0.02, order.Filled)
}

func (s *SimulatedExchangeTestSuite) TestUnknownMarket() {
	unknown := types.SymbolTags{Exchange: "binance", Base: "doge", Quote: "usdt"}

	_, err := s.exchange.MarketBuy(unknown, 100, 1)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeMarketNotFound))

	_, err = s.exchange.MarketInfo(unknown)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeMarketNotFound))
}

func (s *SimulatedExchangeTestSuite) TestInvalidOrders() {
	_, err := s.exchange.MarketBuy(testSymbol, 100, 0)
	s.True(errors.HasCode(err, errors.ErrCodeOrderFailed))

	_, err = s.exchange.MarketSell(testSymbol, 0, 100)
	s.True(errors.HasCode(err, errors.ErrCodeOrderFailed))
}
