// Package feed loads bar series for scanning.
package feed

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	apperrors "flag-scanner/internal/errors"
	"flag-scanner/internal/models"
)

// Layouts accepted in the time column, besides unix seconds.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// csvTime is a bar timestamp as it appears in a CSV file.
type csvTime struct {
	value time.Time
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (t *csvTime) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("empty time")
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		t.value = time.Unix(secs, 0).UTC()
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t.value = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognised time %q", s)
}

// MarshalCSV implements gocsv.TypeMarshaller.
func (t csvTime) MarshalCSV() (string, error) {
	return t.value.UTC().Format(time.RFC3339), nil
}

type csvBar struct {
	Time   csvTime `csv:"time"`
	Open   float64 `csv:"open"`
	High   float64 `csv:"high"`
	Low    float64 `csv:"low"`
	Close  float64 `csv:"close"`
	Volume int64   `csv:"volume"`
}

// ReadCSV parses bars from CSV with a time,open,high,low,close,volume header.
// Rows are sorted by time and validated; the first bad row fails the whole read.
func ReadCSV(r io.Reader) ([]models.Bar, error) {
	var rows []*csvBar
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInputValidation, err.Error())
	}

	bars := make([]models.Bar, 0, len(rows))
	for _, row := range rows {
		bars = append(bars, models.Bar{
			Time:   row.Time.value,
			Open:   row.Open,
			High:   row.High,
			Low:    row.Low,
			Close:  row.Close,
			Volume: row.Volume,
		})
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })

	if err := ValidateBars(bars); err != nil {
		return nil, err
	}
	return bars, nil
}

// ReadCSVFile reads bars from a CSV file.
func ReadCSVFile(path string) ([]models.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	bars, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return bars, nil
}

// WriteCSV writes bars in the format ReadCSV accepts.
func WriteCSV(w io.Writer, bars []models.Bar) error {
	rows := make([]*csvBar, len(bars))
	for i, b := range bars {
		rows[i] = &csvBar{
			Time:   csvTime{value: b.Time},
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
	}
	return gocsv.Marshal(&rows, w)
}

// ValidateBars checks that bars are usable by the scanner: strictly increasing
// times, finite positive prices and a high at or above the low.
func ValidateBars(bars []models.Bar) error {
	for i, b := range bars {
		if b.Time.IsZero() {
			return apperrors.NewValidationError("time", i, "missing timestamp")
		}
		for _, p := range []float64{b.Open, b.High, b.Low, b.Close} {
			if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
				return apperrors.NewValidationError("price", p, fmt.Sprintf("row %d: prices must be finite and positive", i))
			}
		}
		if b.High < b.Low {
			return apperrors.NewValidationError("high", b.High, fmt.Sprintf("row %d: high below low %v", i, b.Low))
		}
		if b.Volume < 0 {
			return apperrors.NewValidationError("volume", b.Volume, fmt.Sprintf("row %d: negative volume", i))
		}
		if i > 0 {
			switch prev := bars[i-1].Time; {
			case b.Time.Equal(prev):
				return apperrors.NewValidationError("time", b.Time, fmt.Sprintf("row %d: duplicate timestamp", i))
			case b.Time.Before(prev):
				return apperrors.NewValidationError("time", b.Time, fmt.Sprintf("row %d: timestamps not ascending", i))
			}
		}
	}
	return nil
}
