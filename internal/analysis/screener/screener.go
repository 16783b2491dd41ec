// Package screener runs the flag pattern scan over many instruments concurrently.
package screener

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"flag-scanner/internal/analysis"
	"flag-scanner/internal/analysis/patterns"
	apperrors "flag-scanner/internal/errors"
	"flag-scanner/internal/logging"
	"flag-scanner/internal/models"
	"flag-scanner/internal/store"
)

// FilterType represents the type of screener filter.
type FilterType string

const (
	FilterQuality   FilterType = "quality"
	FilterDirection FilterType = "direction" // 1 bullish, -1 bearish
	FilterPolePct   FilterType = "pole_pct"  // pole height as percent of T0
	FilterAge       FilterType = "age"       // bars between T4 and the last bar
	FilterFlagBars  FilterType = "flag_bars" // bars between T1 and T4
)

// FilterOperator represents the comparison operator for a filter.
type FilterOperator string

const (
	OpGreaterThan      FilterOperator = ">"
	OpLessThan         FilterOperator = "<"
	OpGreaterThanEqual FilterOperator = ">="
	OpLessThanEqual    FilterOperator = "<="
	OpEqual            FilterOperator = "="
	OpNotEqual         FilterOperator = "!="
)

// Filter is one condition a pattern must satisfy. All filters are combined with AND.
type Filter struct {
	Type     FilterType
	Operator FilterOperator
	Value    float64
}

func (f Filter) String() string {
	return fmt.Sprintf("%s %s %g", f.Type, f.Operator, f.Value)
}

// Job is one (instrument, timeframe) scan.
type Job struct {
	Symbol    string
	Timeframe string
}

// Jobs expands symbols and timeframes into their cross product.
func Jobs(symbols, timeframes []string) []Job {
	jobs := make([]Job, 0, len(symbols)*len(timeframes))
	for _, s := range symbols {
		for _, tf := range timeframes {
			jobs = append(jobs, Job{Symbol: s, Timeframe: tf})
		}
	}
	return jobs
}

// Result represents the outcome of scanning one job.
type Result struct {
	Symbol      string
	Timeframe   string
	Bars        []models.Bar
	Patterns    []patterns.FlagPattern
	BestQuality int
	Error       error
}

// Matched reports whether the job produced at least one pattern.
func (r Result) Matched() bool {
	return r.Error == nil && len(r.Patterns) > 0
}

// BarProvider supplies the bars for one symbol and timeframe.
type BarProvider func(ctx context.Context, symbol, timeframe string) ([]models.Bar, error)

// Screener scans jobs with a fixed pool of workers. Each worker runs one
// independent scan per job; nothing is shared between scans.
type Screener struct {
	dataStore   store.DataStore
	concurrency int
	options     []patterns.Option
}

// NewScreener creates a new screener. dataStore may be nil when saved queries are not used.
func NewScreener(dataStore store.DataStore, concurrency int, opts ...patterns.Option) *Screener {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Screener{
		dataStore:   dataStore,
		concurrency: concurrency,
		options:     opts,
	}
}

// Scan runs every job and returns the jobs that matched all filters or failed.
// A failing job never stops the others. Results are ordered by best quality,
// then symbol and timeframe.
func (s *Screener) Scan(ctx context.Context, jobs []Job, filters []Filter, provider BarProvider) ([]Result, error) {
	if len(jobs) == 0 {
		return nil, nil
	}
	if err := ValidateFilters(filters); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(jobs))
	resultChan := make(chan Result, len(jobs))
	workChan := make(chan Job, len(jobs))

	var wg sync.WaitGroup

	for i := 0; i < s.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range workChan {
				if ctx.Err() != nil {
					return
				}
				resultChan <- s.scanJob(ctx, job, filters, provider)
			}
		}()
	}

	go func() {
		defer close(workChan)
		for _, job := range jobs {
			select {
			case <-ctx.Done():
				return
			case workChan <- job:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	for result := range resultChan {
		if result.Error != nil || len(result.Patterns) > 0 {
			results = append(results, result)
		}
	}

	SortResults(results)

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// scanJob scans a single job.
func (s *Screener) scanJob(ctx context.Context, job Job, filters []Filter, provider BarProvider) Result {
	logger := logging.WithTimeframe(logging.WithSymbol(logging.FromContext(ctx), job.Symbol), job.Timeframe)
	start := time.Now()

	result := Result{Symbol: job.Symbol, Timeframe: job.Timeframe}

	bars, err := provider(ctx, job.Symbol, job.Timeframe)
	if err != nil {
		result.Error = err
		logging.LogScan(logger, job.Symbol, job.Timeframe, 0, 0, time.Since(start), err)
		return result
	}
	result.Bars = bars

	found := patterns.Scan(bars, job.Timeframe, s.options...)
	result.Patterns = ApplyFilters(found, len(bars), filters)
	for _, p := range result.Patterns {
		if p.QualityScore > result.BestQuality {
			result.BestQuality = p.QualityScore
		}
	}

	logging.LogScan(logger, job.Symbol, job.Timeframe, len(bars), len(result.Patterns), time.Since(start), nil)
	return result
}

// ApplyFilters keeps the patterns that satisfy every filter. n is the length of
// the bar window the patterns were found in.
func ApplyFilters(in []patterns.FlagPattern, n int, filters []Filter) []patterns.FlagPattern {
	if len(filters) == 0 {
		return in
	}
	var out []patterns.FlagPattern
	for _, p := range in {
		if matchesAll(p, n, filters) {
			out = append(out, p)
		}
	}
	return out
}

func matchesAll(p patterns.FlagPattern, n int, filters []Filter) bool {
	for _, f := range filters {
		if !compareValues(filterValue(p, n, f.Type), f.Operator, f.Value) {
			return false
		}
	}
	return true
}

// filterValue extracts the quantity a filter type compares against.
func filterValue(p patterns.FlagPattern, n int, ft FilterType) float64 {
	switch ft {
	case FilterQuality:
		return float64(p.QualityScore)
	case FilterDirection:
		if p.Direction == analysis.PatternBearish {
			return -1
		}
		return 1
	case FilterPolePct:
		if p.T0.Price == 0 {
			return 0
		}
		return p.PoleHeight / p.T0.Price * 100
	case FilterAge:
		return float64(n - 1 - p.T4.Index)
	case FilterFlagBars:
		return float64(p.T4.Index - p.T1.Index)
	}
	return math.NaN()
}

// compareValues compares two values using the given operator.
func compareValues(actual float64, op FilterOperator, expected float64) bool {
	switch op {
	case OpGreaterThan:
		return actual > expected
	case OpLessThan:
		return actual < expected
	case OpGreaterThanEqual:
		return actual >= expected
	case OpLessThanEqual:
		return actual <= expected
	case OpEqual:
		return actual == expected
	case OpNotEqual:
		return actual != expected
	default:
		return false
	}
}

// ValidateFilters rejects unknown filter types and operators.
func ValidateFilters(filters []Filter) error {
	for _, f := range filters {
		switch f.Type {
		case FilterQuality, FilterDirection, FilterPolePct, FilterAge, FilterFlagBars:
		default:
			return apperrors.NewValidationError("filter", string(f.Type), "unknown filter type")
		}
		switch f.Operator {
		case OpGreaterThan, OpLessThan, OpGreaterThanEqual, OpLessThanEqual, OpEqual, OpNotEqual:
		default:
			return apperrors.NewValidationError("operator", string(f.Operator), "unknown operator")
		}
	}
	return nil
}

// SortResults orders results by best quality (highest first), then symbol and timeframe.
func SortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.BestQuality != b.BestQuality {
			return a.BestQuality > b.BestQuality
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return a.Timeframe < b.Timeframe
	})
}

// PresetScreener represents a pre-built screener configuration.
type PresetScreener struct {
	Name        string
	Description string
	Filters     []Filter
}

// GetPresetScreeners returns all available pre-built screeners.
func GetPresetScreeners() []PresetScreener {
	return []PresetScreener{
		{
			Name:        "strong",
			Description: "Flags with well-formed, parallel channels",
			Filters:     []Filter{{Type: FilterQuality, Operator: OpGreaterThanEqual, Value: 80}},
		},
		{
			Name:        "fresh_bull",
			Description: "Bull flags whose last touch is within three bars",
			Filters: []Filter{
				{Type: FilterDirection, Operator: OpEqual, Value: 1},
				{Type: FilterAge, Operator: OpLessThanEqual, Value: 3},
			},
		},
		{
			Name:        "fresh_bear",
			Description: "Bear flags whose last touch is within three bars",
			Filters: []Filter{
				{Type: FilterDirection, Operator: OpEqual, Value: -1},
				{Type: FilterAge, Operator: OpLessThanEqual, Value: 3},
			},
		},
		{
			Name:        "tall_pole",
			Description: "Flags after a pole of at least 10 percent",
			Filters:     []Filter{{Type: FilterPolePct, Operator: OpGreaterThanEqual, Value: 10}},
		},
		{
			Name:        "tight",
			Description: "Short flags that resolved within 15 bars of the pole top",
			Filters: []Filter{
				{Type: FilterFlagBars, Operator: OpLessThanEqual, Value: 15},
				{Type: FilterQuality, Operator: OpGreaterThanEqual, Value: 60},
			},
		},
	}
}

// GetPresetByName returns a preset screener by name.
func GetPresetByName(name string) (*PresetScreener, error) {
	for _, preset := range GetPresetScreeners() {
		if preset.Name == name {
			p := preset
			return &p, nil
		}
	}
	return nil, apperrors.Wrapf(apperrors.ErrDataNotFound, "preset screener %s", name)
}

// SaveQuery saves a custom screener query to the data store.
func (s *Screener) SaveQuery(ctx context.Context, name string, filters []Filter) error {
	if s.dataStore == nil {
		return fmt.Errorf("data store not configured")
	}
	if err := ValidateFilters(filters); err != nil {
		return err
	}

	storeFilters := make([]store.ScreenerFilter, len(filters))
	for i, f := range filters {
		storeFilters[i] = store.ScreenerFilter{
			Field:    string(f.Type),
			Operator: string(f.Operator),
			Value:    f.Value,
		}
	}

	return s.dataStore.SaveScreenerQuery(ctx, name, store.ScreenerQuery{Name: name, Filters: storeFilters})
}

// LoadQuery loads a custom screener query from the data store.
func (s *Screener) LoadQuery(ctx context.Context, name string) ([]Filter, error) {
	if s.dataStore == nil {
		return nil, fmt.Errorf("data store not configured")
	}

	query, err := s.dataStore.GetScreenerQuery(ctx, name)
	if err != nil {
		return nil, err
	}
	if query == nil {
		return nil, apperrors.Wrapf(apperrors.ErrDataNotFound, "screener query %s", name)
	}

	filters := make([]Filter, len(query.Filters))
	for i, f := range query.Filters {
		v, ok := f.Value.(float64)
		if !ok {
			return nil, apperrors.NewValidationError("value", fmt.Sprint(f.Value), "filter value must be numeric")
		}
		filters[i] = Filter{
			Type:     FilterType(f.Field),
			Operator: FilterOperator(f.Operator),
			Value:    v,
		}
	}

	return filters, nil
}

// ListSavedQueries lists all saved screener query names.
func (s *Screener) ListSavedQueries(ctx context.Context) ([]string, error) {
	if s.dataStore == nil {
		return nil, fmt.Errorf("data store not configured")
	}
	return s.dataStore.ListScreenerQueries(ctx)
}

// ParseFilter parses expressions such as "quality>=80" or "direction=-1".
func ParseFilter(expr string) (Filter, error) {
	ops := []FilterOperator{OpGreaterThanEqual, OpLessThanEqual, OpNotEqual, OpGreaterThan, OpLessThan, OpEqual}
	expr = strings.ReplaceAll(expr, " ", "")
	for _, op := range ops {
		i := strings.Index(expr, string(op))
		if i < 0 {
			continue
		}
		v, err := strconv.ParseFloat(expr[i+len(op):], 64)
		if err != nil {
			return Filter{}, apperrors.NewValidationError("filter", expr, "value is not a number")
		}
		f := Filter{Type: FilterType(expr[:i]), Operator: op, Value: v}
		if err := ValidateFilters([]Filter{f}); err != nil {
			return Filter{}, err
		}
		return f, nil
	}
	return Filter{}, apperrors.NewValidationError("filter", expr, "missing comparison operator")
}
