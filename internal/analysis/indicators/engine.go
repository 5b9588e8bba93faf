// Package indicators turns daily price history into per-ticker technical
// snapshots, computing tickers in parallel with a bounded worker pool.
package indicators

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"daily-equity-trader/internal/errors"
	"daily-equity-trader/internal/logging"
	"daily-equity-trader/internal/models"
)

// BarSource supplies the daily history for a ticker.
type BarSource interface {
	FetchBars(ctx context.Context, ticker string) ([]models.PriceBar, error)
}

// Engine builds snapshot tables for a universe using a worker pool.
type Engine struct {
	workers int
	minRows int
	logger  zerolog.Logger
}

// NewEngine creates a new indicator engine with the specified number of workers.
func NewEngine(workers, minRows int, logger zerolog.Logger) *Engine {
	if workers <= 0 {
		workers = 4
	}
	if minRows <= 0 {
		minRows = DefaultMinRows
	}
	return &Engine{
		workers: workers,
		minRows: minRows,
		logger:  logging.WithOperation(logger, "indicators"),
	}
}

type job struct {
	idx  int
	meta models.TickerMeta
}

type result struct {
	snap   *models.Snapshot
	reason string
}

// BuildTable fetches and computes a snapshot for every active ticker in the
// universe. The table keeps universe order. Tickers without data or without
// the required fields are skipped and logged. If none qualifies the error
// wraps ErrNoMarketData.
func (e *Engine) BuildTable(ctx context.Context, universe []models.TickerMeta, src BarSource) (*SnapshotTable, error) {
	results := make([]result, len(universe))
	work := make(chan job, len(universe))
	var wg sync.WaitGroup

	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range work {
				select {
				case <-ctx.Done():
					results[j.idx] = result{reason: ctx.Err().Error()}
				default:
					results[j.idx] = e.compute(ctx, j.meta, src)
				}
			}
		}()
	}

	for i, meta := range universe {
		if !meta.IsActive() {
			results[i] = result{reason: "inactive"}
			continue
		}
		work <- job{idx: i, meta: meta}
	}
	close(work)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	table := NewSnapshotTable()
	for i, r := range results {
		if r.snap == nil {
			table.Skipped = append(table.Skipped, Skipped{Ticker: universe[i].Ticker, Reason: r.reason})
			continue
		}
		table.Add(r.snap)
	}

	e.logger.Info().
		Int("qualified", table.Len()).
		Int("skipped", len(table.Skipped)).
		Msg("Built snapshot table")

	if table.Len() == 0 {
		return table, fmt.Errorf("%d tickers in universe: %w", len(universe), errors.ErrNoMarketData)
	}
	return table, nil
}

func (e *Engine) compute(ctx context.Context, meta models.TickerMeta, src BarSource) result {
	log := logging.WithTicker(e.logger, meta.Ticker)

	bars, err := src.FetchBars(ctx, meta.Ticker)
	if err != nil {
		log.Warn().Err(err).Msg("Skipped: no data")
		return result{reason: "no data"}
	}

	if div := meta.PriceDivisor(); div != 1 {
		scaled := make([]models.PriceBar, len(bars))
		for i, b := range bars {
			scaled[i] = b.Scale(div)
		}
		bars = scaled
	}

	snap := ComputeSnapshot(meta.Ticker, bars, e.minRows)
	if snap == nil {
		log.Warn().Int("rows", len(bars)).Int("min_rows", e.minRows).Msg("Skipped: insufficient data")
		return result{reason: "insufficient data"}
	}
	if !snap.Qualifies() {
		log.Warn().
			Bool("sma50", snap.SMA50.Valid).
			Bool("atr14", snap.ATR14.Valid).
			Msg("Skipped: required indicator missing")
		return result{reason: "required indicator missing"}
	}

	snap.Enrich(meta)
	log.Debug().Str("close", snap.Close.String()).Str("slope", string(snap.SMA50Slope)).Msg("Computed snapshot")
	return result{snap: snap}
}
