// Package analysis provides the shared vocabulary for chart pattern detection.
package analysis

import (
	"flag-scanner/internal/models"
)

// PatternDetector defines the interface for pattern detection.
type PatternDetector interface {
	Name() string
	Detect(bars []models.Bar) ([]Pattern, error)
}

// Pattern is a detector-agnostic summary of a detected chart pattern.
type Pattern struct {
	Name        string           `json:"name"`
	Type        PatternType      `json:"type"`
	Direction   PatternDirection `json:"direction"`
	StartIndex  int              `json:"start_index"`
	EndIndex    int              `json:"end_index"`
	Strength    float64          `json:"strength"`
	TargetPrice float64          `json:"target_price"`
	Completion  float64          `json:"completion"`
}

// PatternType represents the type of pattern.
type PatternType string

const (
	PatternTypeCandlestick PatternType = "candlestick"
	PatternTypeChart       PatternType = "chart"
)

// PatternDirection represents the expected direction of a pattern.
type PatternDirection string

const (
	PatternBullish PatternDirection = "bullish"
	PatternBearish PatternDirection = "bearish"
)

// ParseDirection maps a user supplied label to a direction.
func ParseDirection(s string) (PatternDirection, bool) {
	switch s {
	case "bullish", "bull", "long":
		return PatternBullish, true
	case "bearish", "bear", "short":
		return PatternBearish, true
	}
	return "", false
}
