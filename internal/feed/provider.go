package feed

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	apperrors "flag-scanner/internal/errors"
	"flag-scanner/internal/models"
	"flag-scanner/internal/store"
	"flag-scanner/pkg/utils"
)

// DefaultLookback is how many recent bars a provider loads per series.
const DefaultLookback = 500

// StoreProvider serves the most recent bars of a series from the data store.
type StoreProvider struct {
	store    store.DataStore
	lookback int
	retry    utils.RetryConfig
}

// NewStoreProvider creates a provider loading up to lookback bars per series.
func NewStoreProvider(ds store.DataStore, lookback int) *StoreProvider {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &StoreProvider{store: ds, lookback: lookback, retry: utils.DefaultRetryConfig()}
}

// Bars loads bars for symbol and timeframe, retrying transient store errors.
func (p *StoreProvider) Bars(ctx context.Context, symbol, timeframe string) ([]models.Bar, error) {
	bars, err := utils.RetryWithResult(ctx, p.retry, func() ([]models.Bar, error) {
		return p.store.GetLatestCandles(ctx, symbol, timeframe, p.lookback)
	})
	if err != nil {
		return nil, apperrors.NewDataError("candles", symbol, "load failed", err)
	}
	if len(bars) == 0 {
		return nil, apperrors.NewDataError("candles", symbol, "no bars for "+timeframe, apperrors.ErrDataNotFound)
	}
	return bars, nil
}

// DirProvider serves bars from CSV files named SYMBOL_TIMEFRAME.csv in one directory.
// Parsed files are cached for the life of the provider.
type DirProvider struct {
	dir string

	mu    sync.Mutex
	cache map[string][]models.Bar
}

// NewDirProvider creates a provider reading from dir.
func NewDirProvider(dir string) *DirProvider {
	return &DirProvider{dir: dir, cache: make(map[string][]models.Bar)}
}

// SeriesFile returns the file name a series is read from.
func SeriesFile(symbol, timeframe string) string {
	return strings.ToUpper(symbol) + "_" + timeframe + ".csv"
}

// Bars loads bars for symbol and timeframe.
func (p *DirProvider) Bars(ctx context.Context, symbol, timeframe string) ([]models.Bar, error) {
	name := SeriesFile(symbol, timeframe)

	p.mu.Lock()
	bars, ok := p.cache[name]
	p.mu.Unlock()
	if ok {
		return bars, nil
	}

	path := filepath.Join(p.dir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, apperrors.NewDataError("candles", symbol, path+" not found", apperrors.ErrDataNotFound)
	}
	bars, err := ReadCSVFile(path)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[name] = bars
	p.mu.Unlock()
	return bars, nil
}
