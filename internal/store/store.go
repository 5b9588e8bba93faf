// Package store provides ledger persistence and the run journal.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"daily-equity-trader/internal/models"
)

// LedgerStore loads and saves the single ledger record.
type LedgerStore interface {
	// Load returns the persisted ledger, or an error wrapping
	// errors.ErrLedgerNotFound when none has been saved yet.
	Load(ctx context.Context) (*models.Ledger, error)
	// Save replaces the persisted ledger. A reader never observes a partial write.
	Save(ctx context.Context, l *models.Ledger) error
	Close() error
}

// Journal records what each cycle did.
type Journal interface {
	RecordFills(ctx context.Context, runID string, fills []models.Fill) error
	RecordEquity(ctx context.Context, p EquityPoint) error
	RecordRun(ctx context.Context, r RunRecord) error

	Fills(ctx context.Context, filter FillFilter) ([]models.Fill, error)
	EquityHistory(ctx context.Context, from, to models.Date) ([]EquityPoint, error)
	Runs(ctx context.Context, limit int) ([]RunRecord, error)
}

// EquityPoint is one end-of-cycle valuation.
type EquityPoint struct {
	Date      models.Date     `json:"date"`
	Cash      decimal.Decimal `json:"cash_gbp"`
	Unsettled decimal.Decimal `json:"unsettled_gbp"`
	Positions decimal.Decimal `json:"positions_gbp"`
	Equity    decimal.Decimal `json:"equity_gbp"`
	Peak      decimal.Decimal `json:"peak_gbp"`
	Drawdown  decimal.Decimal `json:"drawdown"`
}

// RunRecord summarises one cycle invocation.
type RunRecord struct {
	ID         string           `json:"id"`
	Date       models.Date      `json:"date"`
	StartedAt  time.Time        `json:"started_at"`
	Status     models.RunStatus `json:"status"`
	Reason     string           `json:"reason,omitempty"`
	Fills      int              `json:"fills"`
	Rejections int              `json:"rejections"`
	DryRun     bool             `json:"dry_run"`
}

// FillFilter narrows a fill query. Zero fields match everything.
type FillFilter struct {
	Ticker string
	From   models.Date
	To     models.Date
	Limit  int
}

// Backend names accepted by NewLedgerStore.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// NewLedgerStore selects the ledger backend. db is used for the sqlite backend.
func NewLedgerStore(backend, jsonPath string, db *SQLiteStore) (LedgerStore, error) {
	switch backend {
	case BackendJSON, "":
		return NewJSONFileStore(jsonPath), nil
	case BackendSQLite:
		if db == nil {
			return nil, fmt.Errorf("sqlite ledger backend needs a database")
		}
		return db, nil
	}
	return nil, fmt.Errorf("unknown ledger backend %q", backend)
}

func dateText(d models.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func parseDateText(s string) (models.Date, error) {
	if s == "" {
		return models.Date{}, nil
	}
	return models.ParseDate(s)
}
