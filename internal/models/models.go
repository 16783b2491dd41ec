// Package models provides domain models for the flag scanner.
package models

import (
	"time"
)

// Common timeframe labels. Any other label is accepted and falls back to
// suffix-based defaults where a lookup needs one.
const (
	Timeframe5m = "5m"
	Timeframe1h = "1h"
	Timeframe1d = "1d"
	Timeframe1w = "1w"
)

// Bar represents OHLCV data for a time period.
// Series of bars are ordered ascending by Time and are never mutated by the scanner.
type Bar struct {
	Time   time.Time `json:"time" db:"timestamp"`
	Open   float64   `json:"open" db:"open"`
	High   float64   `json:"high" db:"high"`
	Low    float64   `json:"low" db:"low"`
	Close  float64   `json:"close" db:"close"`
	Volume int64     `json:"volume" db:"volume"`
}

// LastTime returns the time of the final bar, or the zero time for an empty series.
func LastTime(bars []Bar) time.Time {
	if len(bars) == 0 {
		return time.Time{}
	}
	return bars[len(bars)-1].Time
}
