package control

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/tessera-lab/tessera/internal/config"
	"github.com/tessera-lab/tessera/internal/datasource"
	"github.com/tessera-lab/tessera/internal/engine"
	"github.com/tessera-lab/tessera/internal/indicator"
	"github.com/tessera-lab/tessera/internal/ledger"
	"github.com/tessera-lab/tessera/internal/logger"
	"github.com/tessera-lab/tessera/internal/store"
	"github.com/tessera-lab/tessera/internal/types"
	"github.com/tessera-lab/tessera/pkg/errors"
)

var testSymbol = types.SymbolTags{Exchange: "binance", Base: "btc", Quote: "usdt"}

// memorySource serves synthetic minute bars for any requested range.
type memorySource struct {
	basePrice float64
}

func (m *memorySource) Fetch(_ context.Context, _ types.SymbolTags, q datasource.Query) ([]types.Bar, error) {
	bars := make([]types.Bar, q.Limit)

	for i := range bars {
		ts := q.Since.Add(time.Duration(i) * time.Minute)
		price := m.basePrice + float64(ts.Minute())

		bars[i] = types.Bar{Time: ts, Open: price, High: price + 1, Low: price - 1, Close: price, Volume: 1}
	}

	return bars, nil
}

func (m *memorySource) Close() error { return nil }

// memoryStore records run-record transitions.
type memoryStore struct {
	records map[string]store.RunRecord
	dropped []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]store.RunRecord)}
}

func (m *memoryStore) WriteBatch(context.Context, []store.Point) error { return nil }

func (m *memoryStore) DropSeries(_ context.Context, runID string) error {
	m.dropped = append(m.dropped, runID)

	return nil
}

func (m *memoryStore) UpsertRunRecord(_ context.Context, record store.RunRecord) error {
	m.records[record.ID] = record

	return nil
}

func (m *memoryStore) DeleteRunRecord(_ context.Context, runID string) error {
	delete(m.records, runID)

	return nil
}

func (m *memoryStore) ListRunRecords(context.Context) ([]store.RunRecord, error) {
	out := make([]store.RunRecord, 0, len(m.records))
	for _, record := range m.records {
		out = append(out, record)
	}

	return out, nil
}

func (m *memoryStore) Close() error { return nil }

type ControlTestSuite struct {
	suite.Suite

	pool  *Pool
	store *memoryStore
	ctx   context.Context
}

func TestControlSuite(t *testing.T) {
	suite.Run(t, new(ControlTestSuite))
}

func (s *ControlTestSuite) SetupTest() {
	log := logger.NewNopLogger()
	s.store = newMemoryStore()
	s.ctx = context.Background()

	builder := NewRunBuilder(
		indicator.DefaultRegistry(),
		engine.DefaultStrategyRegistry(),
		&memorySource{basePrice: 100},
		s.store,
		log,
	)

	s.pool = NewPool(2, builder, s.store, log)
}

func (s *ControlTestSuite) backtestConfig(strategy string) *config.RunConfig {
	cfg := &config.RunConfig{
		Strategy:       strategy,
		Symbols:        []string{testSymbol.Symbol()},
		InitialCapital: 1000,
		Warmup:         30,
		BatchSize:      10,
		Backtest: &config.BacktestConfig{
			Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Stop:  time.Date(2024, 3, 1, 0, 20, 0, 0, time.UTC),
		},
	}
	cfg.ApplyDefaults()

	return cfg
}

func (s *ControlTestSuite) await(future *Future) Result {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	result, err := future.Wait(ctx)
	s.Require().NoError(err)

	return result
}

func (s *ControlTestSuite) awaitState(runner *Runner, want string) {
	s.Require().Eventually(func() bool {
		result, err := runner.Status().Wait(s.ctx)

		return err == nil && result.Data == want
	}, 5*time.Second, 5*time.Millisecond)
}

func (s *ControlTestSuite) TestFullLifecycle() {
	runner, err := s.pool.Create("run-a")
	s.Require().NoError(err)

	result := s.await(runner.Init(s.backtestConfig("hold")))
	s.Equal("initialized", result.Data)

	result = s.await(runner.Start())
	s.Equal("running", result.Data)

	s.awaitState(runner, "STOP")

	// Backtest replays never catalog themselves; run records are for live
	// runs only.
	s.Empty(s.store.records)

	result = s.await(runner.Get("metrics"))
	metrics, ok := result.Data.(ledger.Metrics)
	s.Require().True(ok)
	s.Equal(0, metrics.TradeCount)
	s.Equal(1000.0, metrics.Cash)

	result = s.await(runner.Get("trades"))
	s.Empty(result.Data)

	result = s.await(runner.Delete())
	s.Equal("deleted", result.Data)
	s.Equal([]string{"run-a"}, s.store.dropped)
	s.NotContains(s.store.records, "run-a")
	s.pool.Remove("run-a")

	// The runner is terminal: further commands fail typed.
	_, err = runner.Status().Wait(s.ctx)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeRunTerminated))
}

func (s *ControlTestSuite) TestStartBeforeInitFails() {
	runner, err := s.pool.Create("run-a")
	s.Require().NoError(err)

	_, err = runner.Start().Wait(s.ctx)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeRunStateInvalid))
}

func (s *ControlTestSuite) TestDoubleInitFails() {
	runner, err := s.pool.Create("run-a")
	s.Require().NoError(err)

	s.await(runner.Init(s.backtestConfig("hold")))

	_, err = runner.Init(s.backtestConfig("hold")).Wait(s.ctx)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeRunStateInvalid))
}

func (s *ControlTestSuite) TestUnknownStrategyFailsOnStart() {
	runner, err := s.pool.Create("run-a")
	s.Require().NoError(err)

	s.await(runner.Init(s.backtestConfig("front-run")))

	_, err = runner.Start().Wait(s.ctx)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeStrategyNotFound))
}

func (s *ControlTestSuite) TestGetUnknownPath() {
	runner, err := s.pool.Create("run-a")
	s.Require().NoError(err)

	_, err = runner.Get("positions").Wait(s.ctx)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeDataNotFound))
}

func (s *ControlTestSuite) TestMetricsUnavailableWhileRunning() {
	runner, err := s.pool.Create("run-a")
	s.Require().NoError(err)

	s.await(runner.Init(s.backtestConfig("hold")))

	_, err = runner.Get("metrics").Wait(s.ctx)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeRunStateInvalid))
}

func (s *ControlTestSuite) TestPoolBookkeeping() {
	_, err := s.pool.Create("run-a")
	s.Require().NoError(err)

	_, err = s.pool.Create("run-a")
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeRunExists))

	generated, err := s.pool.Create("")
	s.Require().NoError(err)
	s.NotEmpty(generated.ID())

	s.Len(s.pool.List(), 2)
	s.Contains(s.pool.List(), "run-a")

	_, err = s.pool.Get("run-a")
	s.NoError(err)

	_, err = s.pool.Get("run-z")
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeRunNotFound))

	s.pool.Remove("run-a")
	s.Len(s.pool.List(), 1)
}

func (s *ControlTestSuite) TestStopWhileRunning() {
	runner, err := s.pool.Create("run-a")
	s.Require().NoError(err)

	// Streaming config: the run never ends on its own.
	cfg := s.backtestConfig("hold")
	cfg.Backtest = nil
	cfg.StreamInterval = config.Duration(time.Millisecond)
	cfg.Warmup = 5

	s.await(runner.Init(cfg))
	s.await(runner.Start())

	result := s.await(runner.Stop())
	s.Equal("STOP", result.Data)
	s.Equal(store.RunStatusStopped, s.store.records["run-a"].Status)
}
