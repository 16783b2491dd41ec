// Package patterns detects five-point flag formations in OHLCV bar series.
//
// A flag is an impulsive pole (T0 to T1) followed by a corrective channel
// (T1, T2, T3, T4) that retraces part of the pole. The engine is a pure function of
// its inputs: it performs no I/O, keeps no state between calls and never logs.
package patterns

import (
	"fmt"
	"time"

	"flag-scanner/internal/analysis"
)

// ExtremumKind tells whether an extremum is a local high or a local low.
type ExtremumKind int

const (
	High ExtremumKind = iota
	Low
)

func (k ExtremumKind) String() string {
	if k == High {
		return "high"
	}
	return "low"
}

// Extremum is a bar index that is a local high or low within the detection window.
type Extremum struct {
	Index int
	Kind  ExtremumKind
}

// AnchorPoint is one of the five anchors T0..T4 of a flag.
type AnchorPoint struct {
	Index int       `json:"idx"`
	Price float64   `json:"price"`
	Time  time.Time `json:"time"`
}

// Prices holds the anchor prices T0..T4 in order.
type Prices [5]float64

// FlagPattern is a validated flag formation. Values are never mutated after a scan returns them.
type FlagPattern struct {
	Direction    analysis.PatternDirection `json:"direction"`
	Timeframe    string                    `json:"timeframe"`
	T0           AnchorPoint               `json:"t0"`
	T1           AnchorPoint               `json:"t1"`
	T2           AnchorPoint               `json:"t2"`
	T3           AnchorPoint               `json:"t3"`
	T4           AnchorPoint               `json:"t4"`
	PoleHeight   float64                   `json:"pole_height"`
	QualityScore int                       `json:"quality_score"`
}

// Anchors returns T0..T4 in order.
func (p FlagPattern) Anchors() [5]AnchorPoint {
	return [5]AnchorPoint{p.T0, p.T1, p.T2, p.T3, p.T4}
}

// Prices returns the anchor prices T0..T4.
func (p FlagPattern) Prices() Prices {
	return Prices{p.T0.Price, p.T1.Price, p.T2.Price, p.T3.Price, p.T4.Price}
}

// Key identifies the underlying formation independently of bar indices, so the same
// flag found in two overlapping windows of one series maps to the same key.
func (p FlagPattern) Key() string {
	return fmt.Sprintf("%s|%s|%d|%d", p.Direction, p.Timeframe, p.T1.Time.Unix(), p.T4.Time.Unix())
}

// TargetPrice is the measured-move objective: the pole height projected from T4.
func (p FlagPattern) TargetPrice() float64 {
	if p.Direction == analysis.PatternBearish {
		return p.T4.Price - p.PoleHeight
	}
	return p.T4.Price + p.PoleHeight
}

// Rule names a single geometric or channel constraint.
type Rule string

const (
	RuleT2Lower          Rule = "t2_lower_bound"
	RuleT2Upper          Rule = "t2_upper_bound"
	RuleT3Lower          Rule = "t3_lower_bound"
	RuleT3Upper          Rule = "t3_upper_bound"
	RuleT4Lower          Rule = "t4_lower_bound"
	RuleT4Upper          Rule = "t4_upper_bound"
	RuleDivergence       Rule = "channel_divergence"
	RuleChannelSlope     Rule = "channel_slope"
	RuleEarlyConvergence Rule = "early_convergence"
	RuleUpperLine        Rule = "upper_line_breach"
	RuleLowerLine        Rule = "lower_line_breach"
	RuleExtension        Rule = "extension_breach"
)

// Violation is a human readable reason for rejecting a candidate.
// It is used while searching and is never attached to an emitted pattern.
type Violation struct {
	Rule    Rule
	Message string
}

func (v Violation) String() string {
	return string(v.Rule) + ": " + v.Message
}

func violationf(rule Rule, format string, args ...interface{}) Violation {
	return Violation{Rule: rule, Message: fmt.Sprintf(format, args...)}
}
