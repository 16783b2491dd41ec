package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	apperrors "flag-scanner/internal/errors"
	"flag-scanner/internal/feed"
	"flag-scanner/internal/models"
	"flag-scanner/internal/store"
	"flag-scanner/internal/testutil"
)

var flagscanEnv = []string{
	"FLAGSCAN_REDIS_ADDR",
	"FLAGSCAN_REDIS_PASSWORD",
	"FLAGSCAN_STORE_PATH",
	"FLAGSCAN_LOG_LEVEL",
	"FLAGSCAN_API_LISTEN",
}

// newEnv returns an isolated config directory.
func newEnv(t *testing.T) string {
	t.Helper()
	for _, k := range flagscanEnv {
		t.Setenv(k, "")
	}
	return t.TempDir()
}

func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	app := NewApp(zerolog.Nop())
	defer app.Close()

	cmd := NewRootCmd(app)
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(append(args, "--config", dir))
	err := cmd.Execute()
	return buf.String(), err
}

func mustRun(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := run(t, dir, args...)
	if err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out)
	}
	return out
}

func decode(t *testing.T, out string, v interface{}) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
}

func writeCSV(t *testing.T, path string, bars []models.Bar) string {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := feed.WriteCSV(f, bars); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVersion(t *testing.T) {
	dir := newEnv(t)

	var got map[string]string
	decode(t, mustRun(t, dir, "version", "--json"), &got)
	if got["version"] != Version {
		t.Errorf("version = %q, want %q", got["version"], Version)
	}
}

func TestConfigCommands(t *testing.T) {
	dir := newEnv(t)

	out := mustRun(t, dir, "config", "path")
	if strings.TrimSpace(out) != filepath.Join(dir, "config.toml") {
		t.Errorf("config path = %q", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.toml")); err != nil {
		t.Errorf("template not created: %v", err)
	}

	var valid map[string]bool
	decode(t, mustRun(t, dir, "config", "validate", "--json"), &valid)
	if !valid["valid"] {
		t.Error("default configuration should be valid")
	}

	if out := mustRun(t, dir, "config", "show", "--json"); strings.Contains(out, "password") {
		t.Errorf("config show leaks credentials: %s", out)
	}
}

func TestDataImportListExport(t *testing.T) {
	dir := newEnv(t)
	src := writeCSV(t, filepath.Join(t.TempDir(), "acme.csv"), testutil.BullFlagBars())

	mustRun(t, dir, "data", "import", src, "--symbol", "acme", "--timeframe", "1h")

	var series []store.SeriesInfo
	decode(t, mustRun(t, dir, "data", "list", "--json"), &series)
	if len(series) != 1 {
		t.Fatalf("got %d series, want 1", len(series))
	}
	if series[0].Symbol != "ACME" || series[0].Timeframe != "1h" || series[0].Bars != 60 {
		t.Errorf("series = %+v", series[0])
	}

	out := mustRun(t, dir, "data", "export", "ACME", "--limit", "10")
	bars, err := feed.ReadCSV(strings.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 10 {
		t.Errorf("exported %d bars, want 10", len(bars))
	}

	if _, err := run(t, dir, "data", "import", src); err == nil {
		t.Error("import without --symbol should fail")
	}
}

func TestDataList_Empty(t *testing.T) {
	dir := newEnv(t)
	if out := strings.TrimSpace(mustRun(t, dir, "data", "list", "--json")); out != "[]" {
		t.Errorf("empty list = %q, want []", out)
	}
}

func TestScan_CSV(t *testing.T) {
	dir := newEnv(t)
	src := writeCSV(t, filepath.Join(t.TempDir(), "acme.csv"), testutil.BullFlagBars())

	var res scanOutput
	decode(t, mustRun(t, dir, "scan", "acme", "--csv", src, "--json"), &res)
	if res.Symbol != "ACME" || res.Bars != 60 {
		t.Errorf("symbol %q bars %d", res.Symbol, res.Bars)
	}
	if len(res.Patterns) != 1 {
		t.Fatalf("got %d patterns, want 1", len(res.Patterns))
	}
	if got := FormatAnchors(res.Patterns[0]); got != "20-30-36-42-48" {
		t.Errorf("anchors = %s", got)
	}
	if res.Patterns[0].QualityScore != 100 {
		t.Errorf("quality = %d, want 100", res.Patterns[0].QualityScore)
	}

	// T4 is eleven bars before the end of the series
	res = scanOutput{}
	decode(t, mustRun(t, dir, "scan", "acme", "--csv", src, "--mode", "latest", "--json"), &res)
	if len(res.Patterns) != 0 {
		t.Errorf("latest mode found %d patterns, want 0", len(res.Patterns))
	}

	res = scanOutput{}
	decode(t, mustRun(t, dir, "scan", "acme", "--csv", src, "--direction", "bearish", "--json"), &res)
	if len(res.Patterns) != 0 {
		t.Errorf("bearish only found %d patterns, want 0", len(res.Patterns))
	}

	text := mustRun(t, dir, "scan", "acme", "--csv", src)
	if !strings.Contains(text, "20-30-36-42-48") {
		t.Errorf("table output missing anchors:\n%s", text)
	}

	for _, args := range [][]string{
		{"scan", "acme", "--csv", src, "--mode", "sometimes"},
		{"scan", "acme", "--csv", src, "--window", "-1"},
		{"scan", "acme", "--csv", src, "--direction", "up"},
		{"scan", "acme", "--csv", src, "--min-pole", "-2"},
	} {
		if _, err := run(t, dir, args...); err == nil {
			t.Errorf("%v should fail", args)
		}
	}
}

func TestScan_MissingSeries(t *testing.T) {
	dir := newEnv(t)
	_, err := run(t, dir, "scan", "NONE")
	if !apperrors.Is(err, apperrors.ErrDataNotFound) {
		t.Errorf("err = %v, want ErrDataNotFound", err)
	}
}

func TestScanSave_PatternsListAndExport(t *testing.T) {
	dir := newEnv(t)
	tmp := t.TempDir()
	bull := writeCSV(t, filepath.Join(tmp, "acme.csv"), testutil.BullFlagBars())
	bear := writeCSV(t, filepath.Join(tmp, "beta.csv"), testutil.MirrorBars(testutil.BullFlagBars()))

	var res scanOutput
	decode(t, mustRun(t, dir, "scan", "ACME", "--csv", bull, "--save", "--json"), &res)
	if res.Saved != 1 || res.RunID == "" {
		t.Fatalf("saved %d run %q, want 1 with a run id", res.Saved, res.RunID)
	}
	mustRun(t, dir, "scan", "BETA", "--csv", bear, "--save")

	// same formation again is not a new pattern
	res = scanOutput{}
	decode(t, mustRun(t, dir, "scan", "ACME", "--csv", bull, "--save", "--json"), &res)
	if res.Saved != 0 {
		t.Errorf("rescan saved %d, want 0", res.Saved)
	}

	tests := []struct {
		args []string
		want int
	}{
		{nil, 2},
		{[]string{"--symbol", "acme"}, 1},
		{[]string{"--direction", "bearish"}, 1},
		{[]string{"--min-quality", "100"}, 2},
		{[]string{"--timeframe", "1d"}, 0},
		{[]string{"--limit", "1"}, 1},
	}
	for _, tt := range tests {
		var recs []store.PatternRecord
		args := append([]string{"patterns", "list", "--json"}, tt.args...)
		decode(t, mustRun(t, dir, args...), &recs)
		if len(recs) != tt.want {
			t.Errorf("%v: got %d records, want %d", tt.args, len(recs), tt.want)
		}
	}

	if _, err := run(t, dir, "patterns", "list", "--direction", "sideways"); err == nil {
		t.Error("unknown direction should fail")
	}

	csvPath := filepath.Join(tmp, "flags.csv")
	mustRun(t, dir, "patterns", "export", "--format", "csv", "--out", csvPath)
	data, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(strings.TrimSpace(string(data)), "\n"); lines != 2 {
		t.Errorf("csv has %d data rows, want 2", lines)
	}

	pqPath := filepath.Join(tmp, "flags.parquet")
	mustRun(t, dir, "patterns", "export", "--format", "parquet", "--out", pqPath, "--symbol", "BETA")
	if info, err := os.Stat(pqPath); err != nil || info.Size() == 0 {
		t.Errorf("parquet export missing: %v", err)
	}

	out := mustRun(t, dir, "patterns", "export", "--format", "json", "--direction", "bullish")
	var rows []map[string]interface{}
	decode(t, out, &rows)
	if len(rows) != 1 || rows[0]["symbol"] != "ACME" {
		t.Errorf("json export = %v", rows)
	}

	if _, err := run(t, dir, "patterns", "export", "--format", "xml"); err == nil || !strings.Contains(err.Error(), "unsupported format") {
		t.Errorf("xml export err = %v", err)
	}
}

func TestWatchlistCommands(t *testing.T) {
	dir := newEnv(t)

	mustRun(t, dir, "watchlist", "add", "acme", "beta")
	mustRun(t, dir, "watchlist", "add", "gamma", "--list", "tech")

	var lists map[string][]string
	decode(t, mustRun(t, dir, "watchlist", "show", "--json"), &lists)
	if got := strings.Join(lists[store.DefaultWatchlist], ","); got != "ACME,BETA" {
		t.Errorf("default = %s, want ACME,BETA", got)
	}

	mustRun(t, dir, "watchlist", "remove", "BETA")
	lists = nil
	decode(t, mustRun(t, dir, "watchlist", "show", "--all", "--json"), &lists)
	if len(lists) != 2 {
		t.Errorf("got %d lists, want 2", len(lists))
	}
	if got := strings.Join(lists[store.DefaultWatchlist], ","); got != "ACME" {
		t.Errorf("default after remove = %s, want ACME", got)
	}

	_, err := run(t, dir, "watchlist", "remove", "NONE")
	if !apperrors.Is(err, apperrors.ErrSymbolNotFound) {
		t.Errorf("remove missing err = %v, want ErrSymbolNotFound", err)
	}
}

func TestScreen_Dir(t *testing.T) {
	dir := newEnv(t)
	bars := t.TempDir()
	writeCSV(t, filepath.Join(bars, feed.SeriesFile("ACME", "1h")), testutil.BullFlagBars())
	writeCSV(t, filepath.Join(bars, feed.SeriesFile("BETA", "1h")), testutil.MirrorBars(testutil.BullFlagBars()))
	writeCSV(t, filepath.Join(bars, feed.SeriesFile("FLAT", "1h")), testutil.FlatBars(60))

	var out screenOutput
	decode(t, mustRun(t, dir, "screen", "ACME", "BETA", "FLAT", "NONE", "--dir", bars, "--json"), &out)
	if out.Jobs != 4 {
		t.Errorf("jobs = %d, want 4", out.Jobs)
	}

	matched, failed := 0, 0
	for _, r := range out.Results {
		switch {
		case r.Error != "":
			failed++
			if r.Symbol != "NONE" {
				t.Errorf("unexpected failure for %s: %s", r.Symbol, r.Error)
			}
		case len(r.Patterns) > 0:
			matched++
		}
	}
	if matched != 2 || failed != 1 {
		t.Errorf("matched %d failed %d, want 2 and 1", matched, failed)
	}

	out = screenOutput{}
	decode(t, mustRun(t, dir, "screen", "ACME", "BETA", "--dir", bars, "--filter", "direction=1", "--json"), &out)
	if len(out.Results) != 1 || out.Results[0].Symbol != "ACME" {
		t.Errorf("direction filter results = %+v", out.Results)
	}
	if len(out.Filters) != 1 {
		t.Errorf("filters = %v", out.Filters)
	}

	if _, err := run(t, dir, "screen", "ACME", "--dir", bars, "--filter", "quality"); err == nil {
		t.Error("filter without operator should fail")
	}
}

func TestWatchOnce(t *testing.T) {
	dir := newEnv(t)
	// ends three bars after T4, fresh enough for latest mode
	src := writeCSV(t, filepath.Join(t.TempDir(), "acme.csv"), testutil.BullFlagBars()[:52])

	mustRun(t, dir, "data", "import", src, "--symbol", "ACME")
	mustRun(t, dir, "watchlist", "add", "ACME")

	out := mustRun(t, dir, "watch", "--once")
	if !strings.Contains(out, "BULL FLAG") {
		t.Errorf("first run did not alert:\n%s", out)
	}

	out = mustRun(t, dir, "watch", "--once")
	if strings.Contains(out, "BULL FLAG") {
		t.Errorf("second run alerted again:\n%s", out)
	}

	var recs []store.PatternRecord
	decode(t, mustRun(t, dir, "patterns", "list", "--json"), &recs)
	if len(recs) != 1 || !recs[0].Published {
		t.Errorf("stored = %+v, want one published pattern", recs)
	}
}

func TestWatchOnce_EmptyWatchlist(t *testing.T) {
	dir := newEnv(t)
	_, err := run(t, dir, "watch", "--once", "--watchlist", "nothing")
	if !apperrors.Is(err, apperrors.ErrDataNotFound) {
		t.Errorf("err = %v, want ErrDataNotFound", err)
	}
}

func TestSignals_RedisDisabled(t *testing.T) {
	dir := newEnv(t)
	_, err := run(t, dir, "signals", "last", "ACME")
	if err == nil || !strings.Contains(err.Error(), "redis is disabled") {
		t.Errorf("err = %v, want redis disabled error", err)
	}
}

func TestTextOutput_FreshnessAndPole(t *testing.T) {
	dir := newEnv(t)
	tmp := t.TempDir()
	bull := writeCSV(t, filepath.Join(tmp, "acme.csv"), testutil.BullFlagBars())
	bear := writeCSV(t, filepath.Join(tmp, "beta.csv"), testutil.MirrorBars(testutil.BullFlagBars()))

	mustRun(t, dir, "data", "import", bull, "--symbol", "ACME")
	if out := mustRun(t, dir, "data", "list"); !strings.Contains(out, "Last import:") {
		t.Errorf("data list missing import freshness:\n%s", out)
	}

	mustRun(t, dir, "scan", "ACME", "--csv", bull, "--save")
	mustRun(t, dir, "scan", "BETA", "--csv", bear, "--save")
	out := mustRun(t, dir, "patterns", "list")
	// pole moves: 98 -> 120 and 152 -> 130
	for _, want := range []string{"POLE", "+22.45%", "-14.47%"} {
		if !strings.Contains(out, want) {
			t.Errorf("patterns list missing %q:\n%s", want, out)
		}
	}
}
