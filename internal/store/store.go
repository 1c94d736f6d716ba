// Package store persists run telemetry: the feature inputs each step saw,
// the portfolio state after each step, and every executed trade. Writes are
// batched by the ledger; the store only sees whole batches.
package store

import (
	"context"
	"time"
)

// Measurement names group points within a run.
const (
	MeasurementInputs    = "inputs"
	MeasurementPortfolio = "portfolio"
	MeasurementTrades    = "trades"
)

// Point is one timestamped set of numeric fields within a measurement.
type Point struct {
	RunID       string
	Measurement string
	Symbol      string
	Time        time.Time
	Fields      map[string]float64
}

// RunStatus tracks a run's lifecycle in its record.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusStopped RunStatus = "stopped"
	RunStatusErrored RunStatus = "errored"
)

// RunRecord is the catalog entry for a live run.
type RunRecord struct {
	ID        string    `json:"id"`
	Strategy  string    `json:"strategy"`
	Symbols   []string  `json:"symbols"`
	Status    RunStatus `json:"status"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the persistence surface the ledger and run controller write to.
type Store interface {
	// WriteBatch persists a batch of points atomically.
	WriteBatch(ctx context.Context, points []Point) error
	// DropSeries deletes every point belonging to a run.
	DropSeries(ctx context.Context, runID string) error
	// UpsertRunRecord creates or refreshes a run's catalog entry.
	UpsertRunRecord(ctx context.Context, record RunRecord) error
	// DeleteRunRecord removes a run's catalog entry.
	DeleteRunRecord(ctx context.Context, runID string) error
	// ListRunRecords returns every cataloged run.
	ListRunRecords(ctx context.Context) ([]RunRecord, error)
	Close() error
}
