package marketdata

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "daily-equity-trader/internal/errors"
	"daily-equity-trader/internal/models"
	"daily-equity-trader/internal/resilience"
	"daily-equity-trader/pkg/utils"
)

func sampleBars() []models.PriceBar {
	start := models.MustParseDate("2025-06-02")
	return []models.PriceBar{
		{Date: start, Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1000},
		{Date: start.AddDays(1), Open: 10.5, High: 12, Low: 10, Close: 11.5, Volume: 1200},
	}
}

func TestCSVProvider_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := NewCSVProvider(dir)

	bars := sampleBars()
	// Written newest first; the provider sorts.
	require.NoError(t, WriteBarsFile(p.Path("VOD.L"), []models.PriceBar{bars[1], bars[0]}))

	got, err := p.FetchBars(context.Background(), "VOD.L")
	require.NoError(t, err)
	assert.Equal(t, bars, got)
}

func TestCSVProvider_MissingFile(t *testing.T) {
	p := NewCSVProvider(t.TempDir())
	_, err := p.FetchBars(context.Background(), "NOPE.L")
	assert.ErrorIs(t, err, apperrors.ErrDataNotFound)
}

type flakyProvider struct {
	failures int
	calls    int
	bars     []models.PriceBar
}

func (f *flakyProvider) FetchBars(ctx context.Context, ticker string) ([]models.PriceBar, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("upstream down")
	}
	return f.bars, nil
}

type memCache struct {
	mu   sync.Mutex
	bars map[string][]models.PriceBar
}

func newMemCache() *memCache { return &memCache{bars: map[string][]models.PriceBar{}} }

func (c *memCache) SaveBars(ctx context.Context, ticker string, bars []models.PriceBar) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bars[ticker] = bars
	return nil
}

func (c *memCache) GetBars(ctx context.Context, ticker string) ([]models.PriceBar, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bars[ticker], nil
}

func quickRetry() utils.RetryConfig {
	return utils.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}
}

func TestCachedProvider_RetriesThenCaches(t *testing.T) {
	up := &flakyProvider{failures: 2, bars: sampleBars()}
	cache := newMemCache()
	p := NewCachedProvider(up, cache, quickRetry(), zerolog.Nop())

	got, err := p.FetchBars(context.Background(), "BP.L")
	require.NoError(t, err)
	assert.Equal(t, 3, up.calls)
	assert.Equal(t, sampleBars(), got)
	assert.Equal(t, sampleBars(), cache.bars["BP.L"])
}

func TestCachedProvider_FallsBackToCache(t *testing.T) {
	up := &flakyProvider{failures: 100}
	cache := newMemCache()
	cache.bars["BP.L"] = sampleBars()
	p := NewCachedProvider(up, cache, quickRetry(), zerolog.Nop())

	got, err := p.FetchBars(context.Background(), "BP.L")
	require.NoError(t, err)
	assert.Equal(t, sampleBars(), got)

	_, err = p.FetchBars(context.Background(), "SHEL.L")
	assert.Error(t, err)
}

func TestCachedProvider_BreakerSkipsDeadUpstream(t *testing.T) {
	up := &flakyProvider{failures: 100}
	cache := newMemCache()
	cache.bars["VOD.L"] = sampleBars()
	cache.bars["BP.L"] = sampleBars()

	breaker := resilience.NewBreaker("bars", resilience.BreakerConfig{FailureThreshold: 1, Cooldown: time.Hour})
	p := NewCachedProvider(up, cache, quickRetry(), zerolog.Nop()).WithBreaker(breaker)

	got, err := p.FetchBars(context.Background(), "VOD.L")
	require.NoError(t, err)
	assert.Equal(t, sampleBars(), got)
	assert.Equal(t, 3, up.calls)
	assert.Equal(t, resilience.StateOpen, breaker.State())

	got, err = p.FetchBars(context.Background(), "BP.L")
	require.NoError(t, err)
	assert.Equal(t, sampleBars(), got)
	assert.Equal(t, 3, up.calls, "open breaker must not call upstream")
}

func TestCachedProvider_MissingTickerKeepsBreakerClosed(t *testing.T) {
	breaker := resilience.NewBreaker("bars", resilience.BreakerConfig{FailureThreshold: 1, Cooldown: time.Hour})
	p := NewCachedProvider(NewCSVProvider(t.TempDir()), newMemCache(), quickRetry(), zerolog.Nop()).WithBreaker(breaker)

	_, err := p.FetchBars(context.Background(), "NOPE.L")
	assert.Error(t, err)
	assert.Equal(t, resilience.StateClosed, breaker.State())
}

func TestCachedProvider_MissingFileNotRetried(t *testing.T) {
	slow := utils.RetryConfig{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: time.Second, BackoffFactor: 1}
	p := NewCachedProvider(NewCSVProvider(t.TempDir()), newMemCache(), slow, zerolog.Nop())

	start := time.Now()
	_, err := p.FetchBars(context.Background(), "NOPE.L")
	assert.ErrorIs(t, err, apperrors.ErrDataNotFound)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	_, err = p.FetchBars(context.Background(), "../NOPE.L")
	assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestLoadUniverse_ActiveOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "universe.csv")
	content := "ticker,name,sector,instrument_type,uk_equity_flag,quote_unit,status\n" +
		"VOD.L,Vodafone,Telecoms,EQUITY,1,GBp,ACTIVE\n" +
		"OLD.L,Old plc,Industrials,EQUITY,1,GBp,DELISTED\n" +
		"VUSA.L,Vanguard S&P 500,ETF,ETF,0,GBP,active\n" +
		"VOD.L,Vodafone,Telecoms,EQUITY,1,GBp,ACTIVE\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	got, err := LoadUniverse(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "VOD.L", got[0].Ticker)
	assert.True(t, bool(got[0].DomesticEquity))
	assert.Equal(t, 100.0, got[0].PriceDivisor())
	assert.Equal(t, "VUSA.L", got[1].Ticker)
	assert.False(t, bool(got[1].DomesticEquity))
}

func TestLoadUniverse_MissingFlagColumnMeansDomestic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "universe.csv")
	require.NoError(t, os.WriteFile(path, []byte("ticker,sector,status\nVOD.L,Telecoms,ACTIVE\n"), 0644))

	got, err := LoadUniverse(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, bool(got[0].DomesticEquity))
}

func TestLoadUniverse_RejectsBadTicker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "universe.csv")
	content := "ticker,name,sector,instrument_type,uk_equity_flag,quote_unit,status\n" +
		"../../etc/passwd,Nope,,EQUITY,1,GBP,ACTIVE\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := LoadUniverse(path)
	assert.ErrorContains(t, err, "row 2")
}

func TestCSVProvider_RejectsPathTicker(t *testing.T) {
	p := NewCSVProvider(t.TempDir())
	_, err := p.FetchBars(context.Background(), "../VOD.L")
	assert.Error(t, err)
}

func TestLoadUniverse_Missing(t *testing.T) {
	_, err := LoadUniverse(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
