package store

import (
	"context"
	"database/sql"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/tessera-lab/tessera/internal/logger"
	"github.com/tessera-lab/tessera/pkg/errors"
	"go.uber.org/zap"
)

// DuckDBStore persists points and run records in a DuckDB database. Points
// are stored long-form, one row per field, so measurements with different
// field sets share a single table.
type DuckDBStore struct {
	db  *sql.DB
	log *logger.Logger
	sq  squirrel.StatementBuilderType
}

// NewDuckDBStore opens (or creates) the store database at path. Use
// ":memory:" for an ephemeral store.
func NewDuckDBStore(path string, log *logger.Logger) (*DuckDBStore, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeWriteFailed, "failed to open duckdb", err)
	}

	s := &DuckDBStore{
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

func (s *DuckDBStore) initializeSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS points (
			run_id TEXT,
			measurement TEXT,
			symbol TEXT,
			time TIMESTAMP,
			field TEXT,
			value DOUBLE
		)`,
		`CREATE TABLE IF NOT EXISTS run_records (
			id TEXT PRIMARY KEY,
			strategy TEXT,
			symbols TEXT,
			status TEXT,
			started_at TIMESTAMP,
			updated_at TIMESTAMP
		)`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return errors.Wrap(errors.ErrCodeWriteFailed, "failed to create store schema", err)
		}
	}

	return nil
}

// WriteBatch implements Store. The whole batch goes in a single transaction
// so a failed write never leaves a partial step behind.
func (s *DuckDBStore) WriteBatch(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailed, "failed to begin write", err)
	}

	insert := s.sq.Insert("points").Columns("run_id", "measurement", "symbol", "time", "field", "value")

	rowCount := 0

	for _, point := range points {
		for field, value := range point.Fields {
			insert = insert.Values(point.RunID, point.Measurement, point.Symbol, point.Time, field, value)
			rowCount++
		}
	}

	if rowCount == 0 {
		tx.Rollback()

		return nil
	}

	query, args, err := insert.ToSql()
	if err != nil {
		tx.Rollback()

		return errors.Wrap(errors.ErrCodeWriteFailed, "failed to build point insert", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		tx.Rollback()

		return errors.Wrap(errors.ErrCodeWriteFailed, "failed to write points", err)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailed, "failed to commit points", err)
	}

	s.log.Debug("Wrote point batch",
		zap.Int("points", len(points)),
		zap.Int("rows", rowCount),
	)

	return nil
}

// DropSeries implements Store.
func (s *DuckDBStore) DropSeries(ctx context.Context, runID string) error {
	query, args, err := s.sq.Delete("points").Where(squirrel.Eq{"run_id": runID}).ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeDropFailed, "failed to build drop", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrapf(errors.ErrCodeDropFailed, err, "failed to drop series for run %s", runID)
	}

	return nil
}

// UpsertRunRecord implements Store.
func (s *DuckDBStore) UpsertRunRecord(ctx context.Context, record RunRecord) error {
	// DuckDB supports ON CONFLICT upserts on the primary key.
	query := `
		INSERT INTO run_records (id, strategy, symbols, status, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			strategy = excluded.strategy,
			symbols = excluded.symbols,
			status = excluded.status,
			updated_at = excluded.updated_at
	`

	symbols := encodeSymbols(record.Symbols)

	if _, err := s.db.ExecContext(ctx, query,
		record.ID, record.Strategy, symbols, string(record.Status), record.StartedAt, record.UpdatedAt,
	); err != nil {
		return errors.Wrapf(errors.ErrCodeRunRecordFailed, err, "failed to upsert run record %s", record.ID)
	}

	return nil
}

// DeleteRunRecord implements Store.
func (s *DuckDBStore) DeleteRunRecord(ctx context.Context, runID string) error {
	query, args, err := s.sq.Delete("run_records").Where(squirrel.Eq{"id": runID}).ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeRunRecordFailed, "failed to build delete", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrapf(errors.ErrCodeRunRecordFailed, err, "failed to delete run record %s", runID)
	}

	return nil
}

// ListRunRecords implements Store.
func (s *DuckDBStore) ListRunRecords(ctx context.Context) ([]RunRecord, error) {
	query, args, err := s.sq.
		Select("id", "strategy", "symbols", "status", "started_at", "updated_at").
		From("run_records").
		OrderBy("started_at").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeRunRecordFailed, "failed to build list", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeRunRecordFailed, "failed to list run records", err)
	}
	defer rows.Close()

	var records []RunRecord

	for rows.Next() {
		var (
			record  RunRecord
			symbols string
			status  string
		)

		if err := rows.Scan(&record.ID, &record.Strategy, &symbols, &status, &record.StartedAt, &record.UpdatedAt); err != nil {
			return nil, errors.Wrap(errors.ErrCodeRunRecordFailed, "failed to scan run record", err)
		}

		record.Symbols = decodeSymbols(symbols)
		record.Status = RunStatus(status)
		record.StartedAt = record.StartedAt.UTC()
		record.UpdatedAt = record.UpdatedAt.UTC()
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeRunRecordFailed, "failed to list run records", err)
	}

	return records, nil
}

func (s *DuckDBStore) Close() error {
	return s.db.Close()
}
