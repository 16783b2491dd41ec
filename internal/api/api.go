// Package api exposes the flag scanner over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"flag-scanner/internal/analysis"
	"flag-scanner/internal/analysis/patterns"
	apperrors "flag-scanner/internal/errors"
	"flag-scanner/internal/feed"
	"flag-scanner/internal/models"
	"flag-scanner/internal/store"
)

// maxBodyBytes bounds POST /v1/scan payloads.
const maxBodyBytes = 8 << 20

// Server serves scans and stored patterns.
type Server struct {
	store    store.DataStore
	cfg      patterns.Config
	provider *feed.StoreProvider
	logger   zerolog.Logger
}

// NewServer creates a server. lookback is the number of stored bars scanned per symbol.
func NewServer(ds store.DataStore, cfg patterns.Config, lookback int, logger zerolog.Logger) *Server {
	return &Server{
		store:    ds,
		cfg:      cfg,
		provider: feed.NewStoreProvider(ds, lookback),
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(corsMiddleware)

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/scan", s.handleScan)
		r.Get("/patterns", s.handleListPatterns)
		r.Get("/symbols/{symbol}/scan", s.handleSymbolScan)
	})

	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("API server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.logger.Info().Msg("API server stopped")
		return nil
	}
}

// ============================================
// Handlers
// ============================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

type scanRequest struct {
	Symbol     string       `json:"symbol"`
	Timeframe  string       `json:"timeframe"`
	ScanType   string       `json:"scan_type"`
	Window     int          `json:"window"`
	MinPolePct *float64     `json:"min_pole_pct"`
	Bars       []models.Bar `json:"bars"`
}

type scanResponse struct {
	Symbol    string                 `json:"symbol,omitempty"`
	Timeframe string                 `json:"timeframe"`
	ScanType  patterns.ScanType      `json:"scan_type"`
	Bars      int                    `json:"bars"`
	Patterns  []patterns.FlagPattern `json:"patterns"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Timeframe) == "" {
		writeError(w, http.StatusBadRequest, "timeframe is required")
		return
	}
	if req.Window < 0 {
		writeError(w, http.StatusBadRequest, "window must not be negative")
		return
	}
	scanType, err := patterns.ParseScanType(req.ScanType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := feed.ValidateBars(req.Bars); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := []patterns.Option{
		patterns.WithConfig(s.cfg),
		patterns.WithScanType(scanType),
		patterns.WithWindow(req.Window),
	}
	if req.MinPolePct != nil {
		opts = append(opts, patterns.WithMinPolePercent(*req.MinPolePct))
	}

	writeJSON(w, http.StatusOK, s.scan(r.Context(), req.Symbol, req.Timeframe, scanType, req.Bars, opts))
}

func (s *Server) handleSymbolScan(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	timeframe := r.URL.Query().Get("timeframe")
	if timeframe == "" {
		timeframe = models.Timeframe1h
	}
	scanType, err := patterns.ParseScanType(r.URL.Query().Get("scan_type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bars, err := s.provider.Bars(r.Context(), symbol, timeframe)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	opts := []patterns.Option{patterns.WithConfig(s.cfg), patterns.WithScanType(scanType)}
	writeJSON(w, http.StatusOK, s.scan(r.Context(), symbol, timeframe, scanType, bars, opts))
}

func (s *Server) scan(ctx context.Context, symbol, timeframe string, scanType patterns.ScanType, bars []models.Bar, opts []patterns.Option) scanResponse {
	found := patterns.Scan(bars, timeframe, opts...)
	if found == nil {
		found = []patterns.FlagPattern{}
	}
	s.logger.Debug().
		Str("symbol", symbol).
		Str("timeframe", timeframe).
		Int("bars", len(bars)).
		Int("patterns", len(found)).
		Msg("Scan served")
	return scanResponse{
		Symbol:    symbol,
		Timeframe: timeframe,
		ScanType:  scanType,
		Bars:      len(bars),
		Patterns:  found,
	}
}

func (s *Server) handleListPatterns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.PatternFilter{
		Symbol:    strings.ToUpper(q.Get("symbol")),
		Timeframe: q.Get("timeframe"),
		Limit:     100,
	}

	if v := q.Get("direction"); v != "" {
		dir, ok := analysis.ParseDirection(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "direction must be bullish or bearish")
			return
		}
		filter.Direction = dir
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("min_quality"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 100 {
			writeError(w, http.StatusBadRequest, "min_quality must be between 0 and 100")
			return
		}
		filter.MinQuality = n
	}

	recs, err := s.store.GetPatterns(r.Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load patterns")
		writeError(w, http.StatusInternalServerError, "failed to load patterns")
		return
	}
	if recs == nil {
		recs = []store.PatternRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(recs),
		"patterns": recs,
	})
}

// ============================================
// Helpers
// ============================================

func statusFor(err error) int {
	switch {
	case apperrors.Is(err, apperrors.ErrDataNotFound), apperrors.Is(err, apperrors.ErrSymbolNotFound):
		return http.StatusNotFound
	case apperrors.Is(err, apperrors.ErrInputValidation):
		return http.StatusBadRequest
	case apperrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
