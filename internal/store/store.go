// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"flag-scanner/internal/analysis"
	"flag-scanner/internal/analysis/patterns"
	"flag-scanner/internal/models"
)

// DefaultWatchlist is the list used when none is named.
const DefaultWatchlist = "default"

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Bars
	SaveCandles(ctx context.Context, symbol, timeframe string, bars []models.Bar) error
	GetCandles(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]models.Bar, error)
	GetLatestCandles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Bar, error)
	GetCandlesFreshness(ctx context.Context, symbol, timeframe string) (time.Time, error)
	ListSeries(ctx context.Context) ([]SeriesInfo, error)

	// Detected patterns
	SavePatterns(ctx context.Context, symbol, runID string, found []patterns.FlagPattern) ([]PatternRecord, error)
	GetPatterns(ctx context.Context, filter PatternFilter) ([]PatternRecord, error)
	MarkPublished(ctx context.Context, ids []string) error
	MarkDelivered(ctx context.Context, id, channel string) error
	GetDeliveries(ctx context.Context, id string) ([]string, error)

	// Watchlist
	AddToWatchlist(ctx context.Context, symbol, listName string) error
	RemoveFromWatchlist(ctx context.Context, symbol, listName string) error
	GetWatchlist(ctx context.Context, listName string) ([]string, error)
	GetAllWatchlists(ctx context.Context) (map[string][]string, error)

	// Screener Queries
	SaveScreenerQuery(ctx context.Context, name string, query ScreenerQuery) error
	GetScreenerQuery(ctx context.Context, name string) (*ScreenerQuery, error)
	ListScreenerQueries(ctx context.Context) ([]string, error)

	// Sync
	GetLastSync(dataType string) time.Time
	SetLastSync(dataType string, t time.Time) error

	// Lifecycle
	Close() error
}

// SeriesInfo summarises the stored bars of one symbol and timeframe.
type SeriesInfo struct {
	Symbol    string    `db:"symbol" json:"symbol"`
	Timeframe string    `db:"timeframe" json:"timeframe"`
	Bars      int       `db:"bars" json:"bars"`
	First     time.Time `db:"-" json:"first"`
	Last      time.Time `db:"-" json:"last"`
}

// PatternFilter represents filters for querying stored patterns.
type PatternFilter struct {
	Symbol      string
	Timeframe   string
	Direction   analysis.PatternDirection
	MinQuality  int
	Since       time.Time // detected at or after
	Unpublished bool
	Limit       int
}

// ScreenerQuery represents a saved screener query.
type ScreenerQuery struct {
	Name    string
	Filters []ScreenerFilter
}

// ScreenerFilter represents a single screener filter.
type ScreenerFilter struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

// PatternRecord is a stored flag pattern. Anchor indices are relative to the
// bar window the scan ran on; anchor times identify the formation.
type PatternRecord struct {
	ID           string    `db:"id" json:"id"`
	Key          string    `db:"pattern_key" json:"key"`
	RunID        string    `db:"run_id" json:"run_id"`
	Symbol       string    `db:"symbol" json:"symbol"`
	Timeframe    string    `db:"timeframe" json:"timeframe"`
	Direction    string    `db:"direction" json:"direction"`
	T0Index      int       `db:"t0_idx" json:"t0_idx"`
	T0Price      float64   `db:"t0_price" json:"t0_price"`
	T0Time       time.Time `db:"t0_time" json:"t0_time"`
	T1Index      int       `db:"t1_idx" json:"t1_idx"`
	T1Price      float64   `db:"t1_price" json:"t1_price"`
	T1Time       time.Time `db:"t1_time" json:"t1_time"`
	T2Index      int       `db:"t2_idx" json:"t2_idx"`
	T2Price      float64   `db:"t2_price" json:"t2_price"`
	T2Time       time.Time `db:"t2_time" json:"t2_time"`
	T3Index      int       `db:"t3_idx" json:"t3_idx"`
	T3Price      float64   `db:"t3_price" json:"t3_price"`
	T3Time       time.Time `db:"t3_time" json:"t3_time"`
	T4Index      int       `db:"t4_idx" json:"t4_idx"`
	T4Price      float64   `db:"t4_price" json:"t4_price"`
	T4Time       time.Time `db:"t4_time" json:"t4_time"`
	PoleHeight   float64   `db:"pole_height" json:"pole_height"`
	QualityScore int       `db:"quality_score" json:"quality_score"`
	DetectedAt   time.Time `db:"detected_at" json:"detected_at"`
	Published    bool      `db:"published" json:"published"`
}

// NewPatternRecord flattens a pattern found on symbol.
func NewPatternRecord(id, symbol, runID string, p patterns.FlagPattern, detectedAt time.Time) PatternRecord {
	return PatternRecord{
		ID:           id,
		Key:          symbol + "|" + p.Key(),
		RunID:        runID,
		Symbol:       symbol,
		Timeframe:    p.Timeframe,
		Direction:    string(p.Direction),
		T0Index:      p.T0.Index,
		T0Price:      p.T0.Price,
		T0Time:       p.T0.Time.UTC(),
		T1Index:      p.T1.Index,
		T1Price:      p.T1.Price,
		T1Time:       p.T1.Time.UTC(),
		T2Index:      p.T2.Index,
		T2Price:      p.T2.Price,
		T2Time:       p.T2.Time.UTC(),
		T3Index:      p.T3.Index,
		T3Price:      p.T3.Price,
		T3Time:       p.T3.Time.UTC(),
		T4Index:      p.T4.Index,
		T4Price:      p.T4.Price,
		T4Time:       p.T4.Time.UTC(),
		PoleHeight:   p.PoleHeight,
		QualityScore: p.QualityScore,
		DetectedAt:   detectedAt.UTC(),
	}
}

// Pattern rebuilds the flag pattern.
func (r PatternRecord) Pattern() patterns.FlagPattern {
	return patterns.FlagPattern{
		Direction:    analysis.PatternDirection(r.Direction),
		Timeframe:    r.Timeframe,
		T0:           patterns.AnchorPoint{Index: r.T0Index, Price: r.T0Price, Time: r.T0Time},
		T1:           patterns.AnchorPoint{Index: r.T1Index, Price: r.T1Price, Time: r.T1Time},
		T2:           patterns.AnchorPoint{Index: r.T2Index, Price: r.T2Price, Time: r.T2Time},
		T3:           patterns.AnchorPoint{Index: r.T3Index, Price: r.T3Price, Time: r.T3Time},
		T4:           patterns.AnchorPoint{Index: r.T4Index, Price: r.T4Price, Time: r.T4Time},
		PoleHeight:   r.PoleHeight,
		QualityScore: r.QualityScore,
	}
}
