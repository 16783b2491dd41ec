package feed

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "flag-scanner/internal/errors"
	"flag-scanner/internal/store"
	"flag-scanner/internal/testutil"
)

func TestReadCSV_Layouts(t *testing.T) {
	in := `time,open,high,low,close,volume
2026-01-05T02:00:00Z,10,11,9,10.5,300
2026-01-05 00:00:00,10,11,9,10.5,100
1767574800,10,11,9,10.5,150
`
	bars, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("got %d bars", len(bars))
	}
	// sorted ascending regardless of file order
	want := []time.Time{
		time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 5, 1, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 5, 2, 0, 0, 0, time.UTC),
	}
	for i, w := range want {
		if !bars[i].Time.Equal(w) {
			t.Errorf("bar %d time = %v, want %v", i, bars[i].Time, w)
		}
	}
	if bars[1].Volume != 150 || bars[2].Close != 10.5 {
		t.Errorf("fields not carried: %+v", bars)
	}
}

func TestReadCSV_Rejects(t *testing.T) {
	tests := []struct {
		name string
		rows string
	}{
		{"negative price", "2026-01-05,10,11,-1,10,1"},
		{"zero price", "2026-01-05,0,11,9,10,1"},
		{"nan", "2026-01-05,NaN,11,9,10,1"},
		{"high below low", "2026-01-05,10,8,9,10,1"},
		{"negative volume", "2026-01-05,10,11,9,10,-5"},
		{"duplicate time", "2026-01-05,10,11,9,10,1\n2026-01-05,10,11,9,10,1"},
		{"bad time", "yesterday,10,11,9,10,1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := "time,open,high,low,close,volume\n" + tt.rows + "\n"
			if _, err := ReadCSV(strings.NewReader(in)); !apperrors.Is(err, apperrors.ErrInputValidation) {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}
}

func TestValidateBars_Order(t *testing.T) {
	bars := testutil.BullFlagBars()[:3]

	dup := append(bars[:0:0], bars...)
	dup[2].Time = dup[1].Time
	err := ValidateBars(dup)
	if !apperrors.Is(err, apperrors.ErrInputValidation) || !strings.Contains(err.Error(), "duplicate timestamp") {
		t.Errorf("duplicate: err = %v", err)
	}

	swapped := append(bars[:0:0], bars...)
	swapped[1].Time, swapped[2].Time = swapped[2].Time, swapped[1].Time
	err = ValidateBars(swapped)
	if !apperrors.Is(err, apperrors.ErrInputValidation) || !strings.Contains(err.Error(), "timestamps not ascending") {
		t.Errorf("out of order: err = %v", err)
	}

	if err := ValidateBars(bars); err != nil {
		t.Errorf("ordered bars: %v", err)
	}
}

func TestWriteCSV_ReadBack(t *testing.T) {
	bars := testutil.BullFlagBars()

	var buf bytes.Buffer
	if err := WriteCSV(&buf, bars); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "time,open,high,low,close,volume\n") {
		t.Errorf("unexpected header: %q", strings.SplitN(buf.String(), "\n", 2)[0])
	}

	got, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(got) != len(bars) {
		t.Fatalf("read %d bars, wrote %d", len(got), len(bars))
	}
	for i := range bars {
		if !got[i].Time.Equal(bars[i].Time) || got[i].High != bars[i].High || got[i].Low != bars[i].Low {
			t.Errorf("bar %d = %+v, want %+v", i, got[i], bars[i])
		}
	}
}

func TestDirProvider(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	if err := WriteCSV(&buf, testutil.BullFlagBars()); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, SeriesFile("acme", "1h")), buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewDirProvider(dir)
	bars, err := p.Bars(context.Background(), "ACME", "1h")
	if err != nil || len(bars) != 60 {
		t.Fatalf("Bars = %d, %v", len(bars), err)
	}
	// served from cache after the file is gone
	os.Remove(filepath.Join(dir, "ACME_1h.csv"))
	if bars, err := p.Bars(context.Background(), "acme", "1h"); err != nil || len(bars) != 60 {
		t.Errorf("cached Bars = %d, %v", len(bars), err)
	}

	if _, err := p.Bars(context.Background(), "ACME", "1d"); !apperrors.Is(err, apperrors.ErrDataNotFound) {
		t.Errorf("missing file err = %v", err)
	}
}

func TestStoreProvider(t *testing.T) {
	ds, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "feed.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer ds.Close()

	ctx := context.Background()
	if err := ds.SaveCandles(ctx, "ACME", "1h", testutil.BullFlagBars()); err != nil {
		t.Fatal(err)
	}

	p := NewStoreProvider(ds, 52)
	bars, err := p.Bars(ctx, "ACME", "1h")
	if err != nil {
		t.Fatalf("Bars: %v", err)
	}
	if len(bars) != 52 || !bars[51].Time.Equal(testutil.Start.Add(59*time.Hour)) {
		t.Errorf("got %d bars ending %v", len(bars), bars[len(bars)-1].Time)
	}

	if _, err := p.Bars(ctx, "NONE", "1h"); !apperrors.Is(err, apperrors.ErrDataNotFound) {
		t.Errorf("missing series err = %v", err)
	}
}
