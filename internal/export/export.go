// Package export writes detected patterns as flat datasets.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"

	"flag-scanner/internal/analysis/patterns"
	"flag-scanner/internal/store"
)

// Record is one pattern flattened for export. Times are unix seconds.
type Record struct {
	ID           string  `json:"id,omitempty" yaml:"id,omitempty" csv:"id" parquet:"id"`
	Symbol       string  `json:"symbol" yaml:"symbol" csv:"symbol" parquet:"symbol"`
	Timeframe    string  `json:"timeframe" yaml:"timeframe" csv:"timeframe" parquet:"timeframe"`
	Direction    string  `json:"direction" yaml:"direction" csv:"direction" parquet:"direction"`
	T0Index      int     `json:"t0_idx" yaml:"t0_idx" csv:"t0_idx" parquet:"t0_idx"`
	T0Price      float64 `json:"t0_price" yaml:"t0_price" csv:"t0_price" parquet:"t0_price"`
	T0Time       int64   `json:"t0_ts" yaml:"t0_ts" csv:"t0_ts" parquet:"t0_ts"`
	T1Index      int     `json:"t1_idx" yaml:"t1_idx" csv:"t1_idx" parquet:"t1_idx"`
	T1Price      float64 `json:"t1_price" yaml:"t1_price" csv:"t1_price" parquet:"t1_price"`
	T1Time       int64   `json:"t1_ts" yaml:"t1_ts" csv:"t1_ts" parquet:"t1_ts"`
	T2Index      int     `json:"t2_idx" yaml:"t2_idx" csv:"t2_idx" parquet:"t2_idx"`
	T2Price      float64 `json:"t2_price" yaml:"t2_price" csv:"t2_price" parquet:"t2_price"`
	T2Time       int64   `json:"t2_ts" yaml:"t2_ts" csv:"t2_ts" parquet:"t2_ts"`
	T3Index      int     `json:"t3_idx" yaml:"t3_idx" csv:"t3_idx" parquet:"t3_idx"`
	T3Price      float64 `json:"t3_price" yaml:"t3_price" csv:"t3_price" parquet:"t3_price"`
	T3Time       int64   `json:"t3_ts" yaml:"t3_ts" csv:"t3_ts" parquet:"t3_ts"`
	T4Index      int     `json:"t4_idx" yaml:"t4_idx" csv:"t4_idx" parquet:"t4_idx"`
	T4Price      float64 `json:"t4_price" yaml:"t4_price" csv:"t4_price" parquet:"t4_price"`
	T4Time       int64   `json:"t4_ts" yaml:"t4_ts" csv:"t4_ts" parquet:"t4_ts"`
	PoleHeight   float64 `json:"pole_height" yaml:"pole_height" csv:"pole_height" parquet:"pole_height"`
	PolePercent  float64 `json:"pole_pct" yaml:"pole_pct" csv:"pole_pct" parquet:"pole_pct"`
	FlagBars     int     `json:"flag_bars" yaml:"flag_bars" csv:"flag_bars" parquet:"flag_bars"`
	QualityScore int     `json:"quality_score" yaml:"quality_score" csv:"quality_score" parquet:"quality_score"`
	TargetPrice  float64 `json:"target_price" yaml:"target_price" csv:"target_price" parquet:"target_price"`
}

// NewRecord flattens a pattern found on symbol.
func NewRecord(symbol string, p patterns.FlagPattern) Record {
	r := Record{
		Symbol:       symbol,
		Timeframe:    p.Timeframe,
		Direction:    string(p.Direction),
		T0Index:      p.T0.Index,
		T0Price:      p.T0.Price,
		T0Time:       p.T0.Time.Unix(),
		T1Index:      p.T1.Index,
		T1Price:      p.T1.Price,
		T1Time:       p.T1.Time.Unix(),
		T2Index:      p.T2.Index,
		T2Price:      p.T2.Price,
		T2Time:       p.T2.Time.Unix(),
		T3Index:      p.T3.Index,
		T3Price:      p.T3.Price,
		T3Time:       p.T3.Time.Unix(),
		T4Index:      p.T4.Index,
		T4Price:      p.T4.Price,
		T4Time:       p.T4.Time.Unix(),
		PoleHeight:   p.PoleHeight,
		FlagBars:     p.T4.Index - p.T1.Index,
		QualityScore: p.QualityScore,
		TargetPrice:  p.TargetPrice(),
	}
	if p.T0.Price != 0 {
		r.PolePercent = p.PoleHeight / p.T0.Price * 100
	}
	return r
}

// FromStored converts stored patterns.
func FromStored(recs []store.PatternRecord) []Record {
	out := make([]Record, len(recs))
	for i, rec := range recs {
		out[i] = NewRecord(rec.Symbol, rec.Pattern())
		out[i].ID = rec.ID
	}
	return out
}

// Saver writes records in one format.
type Saver interface {
	Write(w io.Writer, records []Record) error
	Extension() string
}

// NewSaver returns the saver for format (json, yaml, csv, parquet), or nil if unsupported.
func NewSaver(format string) Saver {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return JSONSaver{}
	case "yaml", "yml":
		return YAMLSaver{}
	case "csv":
		return CSVSaver{}
	case "parquet":
		return ParquetSaver{}
	default:
		return nil
	}
}

// Formats lists the supported format names.
func Formats() []string {
	return []string{"json", "yaml", "csv", "parquet"}
}

// SaveFile writes records to path, creating parent directories.
func SaveFile(s Saver, path string, records []Record) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := s.Write(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// JSONSaver writes an indented JSON array.
type JSONSaver struct{}

func (JSONSaver) Extension() string { return "json" }

func (JSONSaver) Write(w io.Writer, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// YAMLSaver writes a YAML sequence.
type YAMLSaver struct{}

func (YAMLSaver) Extension() string { return "yaml" }

func (YAMLSaver) Write(w io.Writer, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(records); err != nil {
		return err
	}
	return enc.Close()
}

// CSVSaver writes a header row followed by one row per record.
type CSVSaver struct{}

func (CSVSaver) Extension() string { return "csv" }

func (CSVSaver) Write(w io.Writer, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	return gocsv.Marshal(&records, w)
}

// ParquetSaver writes a parquet file, the format training pipelines read.
type ParquetSaver struct{}

func (ParquetSaver) Extension() string { return "parquet" }

func (ParquetSaver) Write(w io.Writer, records []Record) error {
	return parquet.Write(w, records)
}
