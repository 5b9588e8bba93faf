// Package marketdata loads the ticker universe and daily price history.
package marketdata

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"

	"daily-equity-trader/internal/errors"
	"daily-equity-trader/internal/logging"
	"daily-equity-trader/internal/models"
	"daily-equity-trader/internal/resilience"
	"daily-equity-trader/internal/security"
	"daily-equity-trader/pkg/utils"
)

// Provider supplies daily bars for one ticker, oldest first.
type Provider interface {
	FetchBars(ctx context.Context, ticker string) ([]models.PriceBar, error)
}

// BarCache persists bars between runs.
type BarCache interface {
	SaveBars(ctx context.Context, ticker string, bars []models.PriceBar) error
	GetBars(ctx context.Context, ticker string) ([]models.PriceBar, error)
}

// CSVProvider reads <dir>/<TICKER>.csv files with a date,open,high,low,close,volume header.
type CSVProvider struct {
	dir string
}

// NewCSVProvider creates a provider rooted at dir.
func NewCSVProvider(dir string) *CSVProvider {
	return &CSVProvider{dir: dir}
}

// Path returns the file a ticker is read from.
func (p *CSVProvider) Path(ticker string) string {
	return filepath.Join(p.dir, ticker+".csv")
}

func (p *CSVProvider) FetchBars(ctx context.Context, ticker string) ([]models.PriceBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := security.ValidateTicker(ticker); err != nil {
		return nil, errors.NewDataError("bars", ticker, "rejected ticker", err)
	}

	f, err := os.Open(p.Path(ticker))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewDataError("bars", ticker, "no price file", errors.ErrDataNotFound)
		}
		return nil, errors.NewDataError("bars", ticker, "open failed", err)
	}
	defer f.Close()

	var bars []models.PriceBar
	if err := gocsv.UnmarshalFile(f, &bars); err != nil {
		if err == gocsv.ErrEmptyCSVFile {
			return nil, errors.NewDataError("bars", ticker, "empty price file", errors.ErrDataNotFound)
		}
		return nil, errors.NewDataError("bars", ticker, "parse failed", err)
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// WriteBarsFile writes bars in the layout CSVProvider reads.
func WriteBarsFile(path string, bars []models.PriceBar) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gocsv.MarshalFile(&bars, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// CachedProvider fetches from an upstream provider with retries and keeps the
// last good history in a cache. When the upstream fails the cached bars are
// served instead. An optional breaker stops hammering an upstream that keeps
// failing; missing tickers do not count against it.
type CachedProvider struct {
	upstream Provider
	cache    BarCache
	retry    utils.RetryConfig
	breaker  *resilience.Breaker
	logger   zerolog.Logger
}

// NewCachedProvider wraps upstream with cache. Missing files and rejected
// tickers are not retried.
func NewCachedProvider(upstream Provider, cache BarCache, retry utils.RetryConfig, logger zerolog.Logger) *CachedProvider {
	retry.PermanentErrors = append([]error{errors.ErrDataNotFound, errors.ErrConfigInvalid}, retry.PermanentErrors...)
	return &CachedProvider{
		upstream: upstream,
		cache:    cache,
		retry:    retry,
		logger:   logger,
	}
}

// WithBreaker guards the upstream with b.
func (p *CachedProvider) WithBreaker(b *resilience.Breaker) *CachedProvider {
	p.breaker = b
	return p
}

func (p *CachedProvider) fetchUpstream(ctx context.Context, ticker string) ([]models.PriceBar, error) {
	fetch := func() ([]models.PriceBar, error) {
		return utils.RetryWithResult(ctx, p.retry, func() ([]models.PriceBar, error) {
			return p.upstream.FetchBars(ctx, ticker)
		})
	}
	if p.breaker == nil {
		return fetch()
	}

	var missing error
	bars, err := resilience.Do(p.breaker, func() ([]models.PriceBar, error) {
		bars, err := fetch()
		if errors.Is(err, errors.ErrDataNotFound) {
			missing = err
			return nil, nil
		}
		return bars, err
	})
	if missing != nil {
		return nil, missing
	}
	return bars, err
}

func (p *CachedProvider) FetchBars(ctx context.Context, ticker string) ([]models.PriceBar, error) {
	log := logging.WithTicker(logging.FromContext(ctx, p.logger), ticker)

	bars, err := p.fetchUpstream(ctx, ticker)
	if err == nil {
		if cerr := p.cache.SaveBars(ctx, ticker, bars); cerr != nil {
			log.Warn().Err(cerr).Msg("Failed to cache bars")
		}
		return bars, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	cached, cerr := p.cache.GetBars(ctx, ticker)
	if cerr != nil || len(cached) == 0 {
		return nil, fmt.Errorf("upstream: %w", err)
	}
	log.Warn().Err(err).Int("bars", len(cached)).Msg("Upstream failed, serving cached bars")
	return cached, nil
}

// LoadUniverse reads universe.csv and returns the ACTIVE tickers in file order.
// Tickers are upper-cased; an active row with a malformed ticker fails the load.
// A file without a uk_equity_flag column treats every ticker as a UK equity.
func LoadUniverse(path string) ([]models.TickerMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening universe %s", path)
	}

	var rows []models.TickerMeta
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		if err == gocsv.ErrEmptyCSVFile {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "parsing universe %s", path)
	}
	flagColumn, err := hasColumn(data, universeFlagColumn)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing universe %s", path)
	}

	active := make([]models.TickerMeta, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for i, m := range rows {
		if strings.TrimSpace(m.Ticker) == "" || !m.IsActive() {
			continue
		}
		ticker, err := security.NormalizeTicker(m.Ticker)
		if err != nil {
			return nil, errors.Wrapf(err, "universe %s row %d", path, i+2)
		}
		if seen[ticker] {
			continue
		}
		m.Ticker = ticker
		if !flagColumn {
			m.DomesticEquity = true
		}
		seen[m.Ticker] = true
		active = append(active, m)
	}
	return active, nil
}

const universeFlagColumn = "uk_equity_flag"

// hasColumn reports whether the CSV header in data names column.
func hasColumn(data []byte, column string) (bool, error) {
	header, err := csv.NewReader(bytes.NewReader(data)).Read()
	if err != nil {
		return false, err
	}
	for _, h := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), column) {
			return true, nil
		}
	}
	return false, nil
}
