package store

import (
	"context"
	"fmt"
	"time"
)

// SyncDataType names a kind of data whose last update is tracked.
type SyncDataType string

const (
	SyncTypeImport SyncDataType = "import" // bars imported from files
	SyncTypeScan   SyncDataType = "scan"   // watchlist scans
)

// DataFreshness represents the freshness of stored data.
type DataFreshness struct {
	Label       string
	LastUpdated time.Time
	IsFresh     bool
	Age         time.Duration
}

// FreshnessTracker decides whether stored data is recent enough to scan.
type FreshnessTracker struct {
	store      DataStore
	thresholds map[SyncDataType]time.Duration
	now        func() time.Time
}

// NewFreshnessTracker creates a tracker. Bar series are judged by their timeframe;
// thresholds apply to the tracked sync types.
func NewFreshnessTracker(store DataStore, thresholds map[SyncDataType]time.Duration) *FreshnessTracker {
	if thresholds == nil {
		thresholds = map[SyncDataType]time.Duration{
			SyncTypeImport: 24 * time.Hour,
			SyncTypeScan:   time.Hour,
		}
	}
	return &FreshnessTracker{store: store, thresholds: thresholds, now: time.Now}
}

// MarkSynced records that a data type was just updated.
func (t *FreshnessTracker) MarkSynced(dataType SyncDataType) error {
	if err := t.store.SetLastSync(string(dataType), t.now()); err != nil {
		return fmt.Errorf("failed to mark %s as synced: %w", dataType, err)
	}
	return nil
}

// GetDataFreshness returns the freshness of a tracked sync type.
func (t *FreshnessTracker) GetDataFreshness(dataType SyncDataType) *DataFreshness {
	last := t.store.GetLastSync(string(dataType))
	threshold, ok := t.thresholds[dataType]
	if !ok {
		threshold = time.Hour
	}
	return t.freshness(string(dataType), last, threshold)
}

// SeriesFreshness reports whether the newest stored bar of a series is within a few
// bar periods of now. A series with no bars is stale.
func (t *FreshnessTracker) SeriesFreshness(ctx context.Context, symbol, timeframe string) (*DataFreshness, error) {
	last, err := t.store.GetCandlesFreshness(ctx, symbol, timeframe)
	if err != nil {
		return nil, err
	}
	return t.freshness(symbol+"@"+timeframe, last, StaleAfter(timeframe)), nil
}

func (t *FreshnessTracker) freshness(label string, last time.Time, threshold time.Duration) *DataFreshness {
	age := t.now().Sub(last)
	return &DataFreshness{
		Label:       label,
		LastUpdated: last,
		IsFresh:     !last.IsZero() && age < threshold,
		Age:         age,
	}
}

// StaleAfter is how old the newest bar of a series may get before scans of it are
// considered stale: three bar periods, or a day for unknown timeframes.
func StaleAfter(timeframe string) time.Duration {
	d, ok := TimeframeDuration(timeframe)
	if !ok {
		return 24 * time.Hour
	}
	return 3 * d
}

// TimeframeDuration parses labels such as "5m", "1h", "1d" and "1w".
func TimeframeDuration(timeframe string) (time.Duration, bool) {
	if len(timeframe) < 2 {
		return 0, false
	}
	var n int
	var unit string
	if _, err := fmt.Sscanf(timeframe, "%d%s", &n, &unit); err != nil || n <= 0 {
		return 0, false
	}
	switch unit {
	case "m":
		return time.Duration(n) * time.Minute, true
	case "h":
		return time.Duration(n) * time.Hour, true
	case "d":
		return time.Duration(n) * 24 * time.Hour, true
	case "w":
		return time.Duration(n) * 7 * 24 * time.Hour, true
	}
	return 0, false
}

// FormatFreshness returns a human-readable freshness string.
func FormatFreshness(freshness *DataFreshness) string {
	if freshness.LastUpdated.IsZero() {
		return "Never updated"
	}

	age := freshness.Age
	var ageStr string

	switch {
	case age < time.Minute:
		ageStr = "just now"
	case age < time.Hour:
		ageStr = fmt.Sprintf("%d minutes ago", int(age.Minutes()))
	case age < 24*time.Hour:
		ageStr = fmt.Sprintf("%d hours ago", int(age.Hours()))
	default:
		ageStr = fmt.Sprintf("%d days ago", int(age.Hours()/24))
	}

	if freshness.IsFresh {
		return fmt.Sprintf("Updated %s", ageStr)
	}
	return fmt.Sprintf("Stale - updated %s", ageStr)
}
