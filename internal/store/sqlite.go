package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"daily-equity-trader/internal/errors"
	"daily-equity-trader/internal/models"
)

// SQLiteStore holds ledger snapshots, the price bar cache and the run journal.
// It implements LedgerStore, Journal and marketdata.BarCache.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The cycle is single-writer; one connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Ledger snapshots; the newest row is the current ledger
	CREATE TABLE IF NOT EXISTS ledger_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		as_of_date TEXT NOT NULL,
		equity TEXT NOT NULL,
		body TEXT NOT NULL,
		saved_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Cached daily bars
	CREATE TABLE IF NOT EXISTS bars (
		ticker TEXT NOT NULL,
		date TEXT NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		fetched_at DATETIME NOT NULL,
		PRIMARY KEY (ticker, date)
	);

	-- Executed paper fills
	CREATE TABLE IF NOT EXISTS fills (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		date TEXT NOT NULL,
		order_id TEXT,
		ticker TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity TEXT NOT NULL,
		fill_price TEXT NOT NULL,
		notional TEXT NOT NULL,
		fee TEXT NOT NULL,
		stamp_duty TEXT NOT NULL,
		cash_impact TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- End-of-cycle valuations, one per date
	CREATE TABLE IF NOT EXISTS equity_history (
		date TEXT PRIMARY KEY,
		cash TEXT NOT NULL,
		unsettled TEXT NOT NULL,
		positions TEXT NOT NULL,
		equity TEXT NOT NULL,
		peak TEXT NOT NULL,
		drawdown TEXT NOT NULL
	);

	-- Cycle runs
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		status TEXT NOT NULL,
		reason TEXT,
		fills INTEGER NOT NULL DEFAULT 0,
		rejections INTEGER NOT NULL DEFAULT 0,
		dry_run INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_fills_ticker ON fills(ticker);
	CREATE INDEX IF NOT EXISTS idx_fills_date ON fills(date);
	CREATE INDEX IF NOT EXISTS idx_runs_date ON runs(date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Ledger
// ============================================================================

// Load returns the most recently saved ledger.
func (s *SQLiteStore) Load(ctx context.Context) (*models.Ledger, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `
		SELECT body FROM ledger_snapshots ORDER BY id DESC LIMIT 1
	`).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no ledger snapshot: %w", errors.ErrLedgerNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w: %v", errors.ErrDatabaseError, err)
	}

	var l models.Ledger
	if err := json.Unmarshal([]byte(body), &l); err != nil {
		return nil, errors.Wrap(err, "decoding ledger snapshot")
	}
	return &l, nil
}

// Save appends a snapshot inside a transaction.
func (s *SQLiteStore) Save(ctx context.Context, l *models.Ledger) error {
	body, err := json.Marshal(l)
	if err != nil {
		return errors.Wrap(err, "encoding ledger")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_snapshots (as_of_date, equity, body) VALUES (?, ?, ?)
	`, dateText(l.AsOfDate), l.EquityValue.String(), string(body)); err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ============================================================================
// Bar cache
// ============================================================================

// SaveBars upserts bars for ticker.
func (s *SQLiteStore) SaveBars(ctx context.Context, ticker string, bars []models.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (ticker, date, open, high, low, close, volume, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, ticker, dateText(b.Date), b.Open, b.High, b.Low, b.Close, b.Volume, now); err != nil {
			return fmt.Errorf("failed to insert bar: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetBars returns cached bars for ticker, oldest first.
func (s *SQLiteStore) GetBars(ctx context.Context, ticker string) ([]models.PriceBar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, open, high, low, close, volume
		FROM bars
		WHERE ticker = ?
		ORDER BY date ASC
	`, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	var bars []models.PriceBar
	for rows.Next() {
		var b models.PriceBar
		var date string
		if err := rows.Scan(&date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		if b.Date, err = parseDateText(date); err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bars: %w", err)
	}
	return bars, nil
}

// BarsFreshness returns when ticker's bars were last cached. The zero time
// means nothing is cached.
func (s *SQLiteStore) BarsFreshness(ctx context.Context, ticker string) (time.Time, error) {
	var fetched sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(fetched_at) FROM bars WHERE ticker = ?
	`, ticker).Scan(&fetched)
	if err != nil && err != sql.ErrNoRows {
		return time.Time{}, fmt.Errorf("failed to get bars freshness: %w", err)
	}
	if !fetched.Valid || fetched.String == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{"2006-01-02 15:04:05.999999999-07:00", time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, fetched.String); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", fetched.String)
}

// ============================================================================
// Journal
// ============================================================================

// RecordFills stores the fills of one run.
func (s *SQLiteStore) RecordFills(ctx context.Context, runID string, fills []models.Fill) error {
	if len(fills) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO fills (id, run_id, date, order_id, ticker, side, quantity, fill_price, notional, fee, stamp_duty, cash_impact)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, f := range fills {
		_, err := stmt.ExecContext(ctx, f.ID, runID, dateText(f.Date), f.OrderID, f.Ticker, string(f.Side),
			f.Quantity.String(), f.FillPrice.String(), f.Notional.String(), f.Fee.String(), f.StampDuty.String(), f.CashImpact.String())
		if err != nil {
			return fmt.Errorf("failed to insert fill: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Fills returns recorded fills, newest first.
func (s *SQLiteStore) Fills(ctx context.Context, filter FillFilter) ([]models.Fill, error) {
	query := "SELECT id, date, order_id, ticker, side, quantity, fill_price, notional, fee, stamp_duty, cash_impact FROM fills WHERE 1=1"
	args := []interface{}{}

	if filter.Ticker != "" {
		query += " AND ticker = ?"
		args = append(args, filter.Ticker)
	}
	if !filter.From.IsZero() {
		query += " AND date >= ?"
		args = append(args, dateText(filter.From))
	}
	if !filter.To.IsZero() {
		query += " AND date <= ?"
		args = append(args, dateText(filter.To))
	}

	query += " ORDER BY date DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fills: %w", err)
	}
	defer rows.Close()

	var fills []models.Fill
	for rows.Next() {
		var f models.Fill
		var date, side string
		var orderID sql.NullString
		if err := rows.Scan(&f.ID, &date, &orderID, &f.Ticker, &side,
			&f.Quantity, &f.FillPrice, &f.Notional, &f.Fee, &f.StampDuty, &f.CashImpact); err != nil {
			return nil, fmt.Errorf("failed to scan fill: %w", err)
		}
		if f.Date, err = parseDateText(date); err != nil {
			return nil, err
		}
		f.OrderID = orderID.String
		f.Side = models.OrderSide(side)
		fills = append(fills, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fills: %w", err)
	}
	return fills, nil
}

// RecordEquity stores the valuation for p.Date, replacing an earlier one.
func (s *SQLiteStore) RecordEquity(ctx context.Context, p EquityPoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO equity_history (date, cash, unsettled, positions, equity, peak, drawdown)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, dateText(p.Date), p.Cash.String(), p.Unsettled.String(), p.Positions.String(),
		p.Equity.String(), p.Peak.String(), p.Drawdown.String())
	if err != nil {
		return fmt.Errorf("failed to record equity: %w", err)
	}
	return nil
}

// EquityHistory returns valuations between from and to inclusive, oldest
// first. Zero bounds are open.
func (s *SQLiteStore) EquityHistory(ctx context.Context, from, to models.Date) ([]EquityPoint, error) {
	query := "SELECT date, cash, unsettled, positions, equity, peak, drawdown FROM equity_history WHERE 1=1"
	args := []interface{}{}
	if !from.IsZero() {
		query += " AND date >= ?"
		args = append(args, dateText(from))
	}
	if !to.IsZero() {
		query += " AND date <= ?"
		args = append(args, dateText(to))
	}
	query += " ORDER BY date ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query equity history: %w", err)
	}
	defer rows.Close()

	var points []EquityPoint
	for rows.Next() {
		var p EquityPoint
		var date string
		if err := rows.Scan(&date, &p.Cash, &p.Unsettled, &p.Positions, &p.Equity, &p.Peak, &p.Drawdown); err != nil {
			return nil, fmt.Errorf("failed to scan equity point: %w", err)
		}
		if p.Date, err = parseDateText(date); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating equity history: %w", err)
	}
	return points, nil
}

// RecordRun stores a cycle summary.
func (s *SQLiteStore) RecordRun(ctx context.Context, r RunRecord) error {
	dryRun := 0
	if r.DryRun {
		dryRun = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (id, date, started_at, status, reason, fills, rejections, dry_run)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, dateText(r.Date), r.StartedAt.UTC(), string(r.Status), r.Reason, r.Fills, r.Rejections, dryRun)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// Runs returns the most recent runs, newest first.
func (s *SQLiteStore) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	query := "SELECT id, date, started_at, status, reason, fills, rejections, dry_run FROM runs ORDER BY started_at DESC, id DESC"
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var date, status string
		var reason sql.NullString
		var dryRun int
		if err := rows.Scan(&r.ID, &date, &r.StartedAt, &status, &reason, &r.Fills, &r.Rejections, &dryRun); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if r.Date, err = parseDateText(date); err != nil {
			return nil, err
		}
		r.Status = models.RunStatus(status)
		r.Reason = reason.String
		r.DryRun = dryRun == 1
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// LatestEquity returns the newest equity point, or nil when none is recorded.
func (s *SQLiteStore) LatestEquity(ctx context.Context) (*EquityPoint, error) {
	points, err := s.EquityHistory(ctx, models.Date{}, models.Date{})
	if err != nil || len(points) == 0 {
		return nil, err
	}
	return &points[len(points)-1], nil
}

var (
	_ LedgerStore = (*SQLiteStore)(nil)
	_ Journal     = (*SQLiteStore)(nil)
)
