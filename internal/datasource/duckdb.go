package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/tessera-lab/tessera/internal/logger"
	"github.com/tessera-lab/tessera/internal/types"
	"github.com/tessera-lab/tessera/pkg/errors"
	"go.uber.org/zap"
)

// DuckDBSource serves historical minute bars out of a DuckDB database.
// Coarser timeframes are bucketed in SQL at query time.
type DuckDBSource struct {
	db  *sql.DB
	log *logger.Logger
	sq  squirrel.StatementBuilderType
}

// NewDuckDBSource opens (or creates) the DuckDB database at path. Use
// ":memory:" for an ephemeral source.
func NewDuckDBSource(path string, log *logger.Logger) (*DuckDBSource, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeBarFetchFailed, "failed to open duckdb", err)
	}

	s := &DuckDBSource{
		db:  db,
		log: log,
		sq:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}

	if err := s.initializeSchema(); err != nil {
		db.Close()

		return nil, err
	}

	return s, nil
}

func (s *DuckDBSource) initializeSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			exchange TEXT,
			base TEXT,
			quote TEXT,
			time TIMESTAMP,
			open DOUBLE,
			high DOUBLE,
			low DOUBLE,
			close DOUBLE,
			volume DOUBLE
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to create bars table", err)
	}

	return nil
}

// LoadParquet bulk-loads minute bars for one market from a parquet file
// holding time/open/high/low/close/volume columns.
func (s *DuckDBSource) LoadParquet(symbol types.SymbolTags, path string) error {
	query := fmt.Sprintf(`
		INSERT INTO bars
		SELECT ?, ?, ?, time, open, high, low, close, volume
		FROM read_parquet('%s')
		ORDER BY time
	`, path)

	if _, err := s.db.Exec(query, symbol.Exchange, symbol.Base, symbol.Quote); err != nil {
		return errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to load parquet %s", path)
	}

	s.log.Info("Loaded parquet data",
		zap.String("symbol", symbol.Symbol()),
		zap.String("path", path),
	)

	return nil
}

// Insert writes minute bars for one market. Used by fixtures and the data
// import CLI.
func (s *DuckDBSource) Insert(symbol types.SymbolTags, bars []types.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	insert := s.sq.Insert("bars").Columns(
		"exchange", "base", "quote", "time", "open", "high", "low", "close", "volume",
	)

	for _, bar := range bars {
		insert = insert.Values(
			symbol.Exchange, symbol.Base, symbol.Quote,
			bar.Time, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume,
		)
	}

	query, args, err := insert.ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to build insert", err)
	}

	if _, err := s.db.Exec(query, args...); err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to insert bars", err)
	}

	return nil
}

// Fetch implements BarSource.
func (s *DuckDBSource) Fetch(ctx context.Context, symbol types.SymbolTags, q Query) ([]types.Bar, error) {
	timeframe := q.Timeframe
	if timeframe.IsZero() {
		timeframe = types.BaseTimeframe
	}

	since := q.Since
	if since.IsZero() {
		since = time.Now().UTC().Add(-time.Duration(q.Limit) * timeframe.Duration())
	}

	if timeframe == types.BaseTimeframe {
		return s.fetchBase(ctx, symbol, since, q.Limit)
	}

	return s.fetchBucketed(ctx, symbol, timeframe, since, q.Limit)
}

func (s *DuckDBSource) fetchBase(ctx context.Context, symbol types.SymbolTags, since time.Time, limit int) ([]types.Bar, error) {
	query, args, err := s.sq.
		Select("time", "open", "high", "low", "close", "volume").
		From("bars").
		Where(squirrel.Eq{"exchange": symbol.Exchange, "base": symbol.Base, "quote": symbol.Quote}).
		Where(squirrel.GtOrEq{"time": since}).
		OrderBy("time").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build query", err)
	}

	return s.scanBars(ctx, query, args...)
}

func (s *DuckDBSource) fetchBucketed(ctx context.Context, symbol types.SymbolTags, timeframe types.Timeframe, since time.Time, limit int) ([]types.Bar, error) {
	// time_bucket plus first/last aggregates reproduce the OHLCV fold in SQL.
	query := fmt.Sprintf(`
		SELECT
			time_bucket(INTERVAL '%d seconds', time) AS bucket,
			first(open ORDER BY time) AS open,
			max(high) AS high,
			min(low) AS low,
			last(close ORDER BY time) AS close,
			sum(volume) AS volume
		FROM bars
		WHERE exchange = ? AND base = ? AND quote = ? AND time >= ?
		GROUP BY bucket
		ORDER BY bucket
		LIMIT ?
	`, int(timeframe.Duration().Seconds()))

	return s.scanBars(ctx, query, symbol.Exchange, symbol.Base, symbol.Quote, since, limit)
}

func (s *DuckDBSource) scanBars(ctx context.Context, query string, args ...any) ([]types.Bar, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeBarFetchFailed, "bar query failed", err)
	}
	defer rows.Close()

	var bars []types.Bar

	for rows.Next() {
		var bar types.Bar
		if err := rows.Scan(&bar.Time, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, errors.Wrap(errors.ErrCodeBarFetchFailed, "failed to scan bar", err)
		}

		bar.Time = bar.Time.UTC()
		bars = append(bars, bar)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeBarFetchFailed, "bar query failed", err)
	}

	return bars, nil
}

// Close implements BarSource.
func (s *DuckDBSource) Close() error {
	return s.db.Close()
}
