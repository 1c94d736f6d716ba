package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/tessera-lab/tessera/internal/logger"
)

type DuckDBStoreTestSuite struct {
	suite.Suite

	store *DuckDBStore
	ctx   context.Context
}

func TestDuckDBStoreSuite(t *testing.T) {
	suite.Run(t, new(DuckDBStoreTestSuite))
}

func (s *DuckDBStoreTestSuite) SetupTest() {
	store, err := NewDuckDBStore(":memory:", logger.NewNopLogger())
	s.Require().NoError(err)

	s.store = store
	s.ctx = context.Background()
}

func (s *DuckDBStoreTestSuite) TearDownTest() {
	s.store.Close()
}

func (s *DuckDBStoreTestSuite) countRows(runID string) int {
	var count int

	err := s.store.db.QueryRow("SELECT count(*) FROM points WHERE run_id = ?", runID).Scan(&count)
	s.Require().NoError(err)

	return count
}

func (s *DuckDBStoreTestSuite) TestWriteBatchAndDrop() {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	err := s.store.WriteBatch(s.ctx, []Point{
		{
			RunID:       "run-a",
			Measurement: MeasurementPortfolio,
			Symbol:      "binance:btc:usdt",
			Time:        now,
			Fields:      map[string]float64{"cash": 1000, "valuation": 1000},
		},
		{
			RunID:       "run-a",
			Measurement: MeasurementInputs,
			Symbol:      "binance:btc:usdt",
			Time:        now,
			Fields:      map[string]float64{"close": 100, "sma": 99.5},
		},
		{
			RunID:       "run-b",
			Measurement: MeasurementTrades,
			Symbol:      "binance:eth:usdt",
			Time:        now,
			Fields:      map[string]float64{"price": 50, "fee": 0.05},
		},
	})
	s.Require().NoError(err)

	s.Equal(4, s.countRows("run-a"))
	s.Equal(2, s.countRows("run-b"))

	// Dropping one run leaves the other intact.
	s.Require().NoError(s.store.DropSeries(s.ctx, "run-a"))
	s.Equal(0, s.countRows("run-a"))
	s.Equal(2, s.countRows("run-b"))
}

func (s *DuckDBStoreTestSuite) TestWriteEmptyBatch() {
	s.Require().NoError(s.store.WriteBatch(s.ctx, nil))
	s.Require().NoError(s.store.WriteBatch(s.ctx, []Point{{RunID: "run-a"}}))
}

func (s *DuckDBStoreTestSuite) TestRunRecordLifecycle() {
	started := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	record := RunRecord{
		ID:        "run-a",
		Strategy:  "macd-cross",
		Symbols:   []string{"binance:btc:usdt", "binance:eth:usdt"},
		Status:    RunStatusRunning,
		StartedAt: started,
		UpdatedAt: started,
	}

	s.Require().NoError(s.store.UpsertRunRecord(s.ctx, record))

	records, err := s.store.ListRunRecords(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal("macd-cross", records[0].Strategy)
	s.Equal([]string{"binance:btc:usdt", "binance:eth:usdt"}, records[0].Symbols)
	s.Equal(RunStatusRunning, records[0].Status)

	// Upserting the same id updates in place.
	record.Status = RunStatusStopped
	record.UpdatedAt = started.Add(time.Hour)
	s.Require().NoError(s.store.UpsertRunRecord(s.ctx, record))

	records, err = s.store.ListRunRecords(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal(RunStatusStopped, records[0].Status)
	s.Equal(started.Add(time.Hour), records[0].UpdatedAt)

	s.Require().NoError(s.store.DeleteRunRecord(s.ctx, "run-a"))

	records, err = s.store.ListRunRecords(s.ctx)
	s.Require().NoError(err)
	s.Empty(records)
}
