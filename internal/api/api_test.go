package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"flag-scanner/internal/analysis/patterns"
	"flag-scanner/internal/store"
	"flag-scanner/internal/testutil"
)

func newTestServer(t *testing.T) (*store.SQLiteStore, http.Handler) {
	t.Helper()
	ds, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ds.Close() })
	return ds, NewServer(ds, patterns.DefaultConfig(), 200, zerolog.Nop()).Router()
}

func do(t *testing.T, h http.Handler, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeScan(t *testing.T, rec *httptest.ResponseRecorder) scanResponse {
	t.Helper()
	var resp scanResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s", ct)
	}
}

func TestScan(t *testing.T) {
	_, h := newTestServer(t)
	bars := testutil.BullFlagBars()

	rec := do(t, h, http.MethodPost, "/v1/scan", map[string]interface{}{
		"symbol":    "ACME",
		"timeframe": "1h",
		"bars":      bars,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decodeScan(t, rec)
	if resp.Bars != len(bars) || len(resp.Patterns) != 1 {
		t.Fatalf("response = %+v", resp)
	}
	p := resp.Patterns[0]
	if p.T1.Index != 30 || p.T4.Index != 48 || p.QualityScore != 100 {
		t.Errorf("pattern = %+v", p)
	}

	// the fixture's 22% pole is below a 50% floor
	rec = do(t, h, http.MethodPost, "/v1/scan", map[string]interface{}{
		"timeframe":    "1h",
		"min_pole_pct": 50.0,
		"bars":         bars,
	})
	if resp := decodeScan(t, rec); rec.Code != http.StatusOK || len(resp.Patterns) != 0 {
		t.Errorf("min pole override ignored: %d %+v", rec.Code, resp)
	}

	rec = do(t, h, http.MethodPost, "/v1/scan", map[string]interface{}{
		"timeframe": "1h",
		"scan_type": "latest",
		"bars":      bars,
	})
	if resp := decodeScan(t, rec); len(resp.Patterns) != 0 || resp.ScanType != patterns.ScanLatest {
		t.Errorf("latest mode on stale series = %+v", resp)
	}

	rec = do(t, h, http.MethodPost, "/v1/scan", map[string]interface{}{
		"timeframe": "1h",
		"bars":      bars[:20],
	})
	if resp := decodeScan(t, rec); rec.Code != http.StatusOK || resp.Patterns == nil || len(resp.Patterns) != 0 {
		t.Errorf("short series = %d %+v", rec.Code, resp)
	}
}

func TestScan_BadRequests(t *testing.T) {
	_, h := newTestServer(t)
	bars := testutil.BullFlagBars()
	unordered := append([]interface{}{}, bars[1], bars[0])

	tests := []struct {
		name string
		body interface{}
	}{
		{"missing timeframe", map[string]interface{}{"bars": bars}},
		{"bad scan type", map[string]interface{}{"timeframe": "1h", "scan_type": "recent", "bars": bars}},
		{"negative window", map[string]interface{}{"timeframe": "1h", "window": -1, "bars": bars}},
		{"unknown field", map[string]interface{}{"timeframe": "1h", "candles": bars}},
		{"unordered bars", map[string]interface{}{"timeframe": "1h", "bars": unordered}},
		{"not an object", "bars"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/v1/scan", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d body=%s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestSymbolScan(t *testing.T) {
	ds, h := newTestServer(t)
	if err := ds.SaveCandles(context.Background(), "ACME", "1h", testutil.BullFlagBars()); err != nil {
		t.Fatal(err)
	}

	rec := do(t, h, http.MethodGet, "/v1/symbols/acme/scan?timeframe=1h", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decodeScan(t, rec)
	if resp.Symbol != "ACME" || len(resp.Patterns) != 1 {
		t.Errorf("response = %+v", resp)
	}

	if rec := do(t, h, http.MethodGet, "/v1/symbols/NONE/scan", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown symbol status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/v1/symbols/ACME/scan?scan_type=x", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad scan type status = %d", rec.Code)
	}
}

func TestListPatterns(t *testing.T) {
	ds, h := newTestServer(t)
	ctx := context.Background()
	bull := patterns.Scan(testutil.BullFlagBars(), "1h")
	bear := patterns.Scan(testutil.MirrorBars(testutil.BullFlagBars()), "1h")
	if _, err := ds.SavePatterns(ctx, "ACME", "run-1", bull); err != nil {
		t.Fatal(err)
	}
	if _, err := ds.SavePatterns(ctx, "BEAR", "run-1", bear); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		query  string
		status int
		count  int
	}{
		{"", http.StatusOK, 2},
		{"?symbol=acme", http.StatusOK, 1},
		{"?direction=bearish", http.StatusOK, 1},
		{"?timeframe=1d", http.StatusOK, 0},
		{"?limit=1", http.StatusOK, 1},
		{"?min_quality=100", http.StatusOK, 2},
		{"?direction=up", http.StatusBadRequest, 0},
		{"?limit=zero", http.StatusBadRequest, 0},
		{"?min_quality=101", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/v1/patterns"+tt.query, nil)
			if rec.Code != tt.status {
				t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
			}
			if tt.status != http.StatusOK {
				return
			}
			var resp struct {
				Count    int                   `json:"count"`
				Patterns []store.PatternRecord `json:"patterns"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Count != tt.count || len(resp.Patterns) != tt.count {
				t.Errorf("count = %d/%d, want %d", resp.Count, len(resp.Patterns), tt.count)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodOptions, "/v1/scan", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("preflight = %d %v", rec.Code, rec.Header())
	}
}

func TestListenAndServe_Shutdown(t *testing.T) {
	ds, _ := newTestServer(t)
	srv := NewServer(ds, patterns.DefaultConfig(), 0, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
