package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"flag-scanner/internal/analysis/patterns"
	apperrors "flag-scanner/internal/errors"
	"flag-scanner/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db        *sqlx.DB
	mu        sync.RWMutex
	syncTimes map[string]time.Time
	now       func() time.Time
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", apperrors.ErrDatabaseError, dbPath, err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:        db,
		syncTimes: make(map[string]time.Time),
		now:       time.Now,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: initialize schema: %v", apperrors.ErrDatabaseError, err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS candles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, timeframe, timestamp)
	);

	CREATE TABLE IF NOT EXISTS patterns (
		id TEXT PRIMARY KEY,
		pattern_key TEXT NOT NULL UNIQUE,
		run_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		direction TEXT NOT NULL,
		t0_idx INTEGER NOT NULL, t0_price REAL NOT NULL, t0_time DATETIME NOT NULL,
		t1_idx INTEGER NOT NULL, t1_price REAL NOT NULL, t1_time DATETIME NOT NULL,
		t2_idx INTEGER NOT NULL, t2_price REAL NOT NULL, t2_time DATETIME NOT NULL,
		t3_idx INTEGER NOT NULL, t3_price REAL NOT NULL, t3_time DATETIME NOT NULL,
		t4_idx INTEGER NOT NULL, t4_price REAL NOT NULL, t4_time DATETIME NOT NULL,
		pole_height REAL NOT NULL,
		quality_score INTEGER NOT NULL,
		detected_at DATETIME NOT NULL,
		published INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS pattern_deliveries (
		pattern_id TEXT NOT NULL,
		channel TEXT NOT NULL,
		delivered_at DATETIME NOT NULL,
		PRIMARY KEY (pattern_id, channel)
	);

	CREATE TABLE IF NOT EXISTS watchlist (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		list_name TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, list_name)
	);

	CREATE TABLE IF NOT EXISTS screener_queries (
		name TEXT PRIMARY KEY,
		filters TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sync_status (
		data_type TEXT PRIMARY KEY,
		last_sync DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_candles_symbol_timeframe ON candles(symbol, timeframe);
	CREATE INDEX IF NOT EXISTS idx_candles_timestamp ON candles(timestamp);
	CREATE INDEX IF NOT EXISTS idx_patterns_symbol ON patterns(symbol, timeframe);
	CREATE INDEX IF NOT EXISTS idx_patterns_detected ON patterns(detected_at);
	CREATE INDEX IF NOT EXISTS idx_watchlist_list ON watchlist(list_name);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Bars
// ============================================================================

// SaveCandles saves bars to the database, replacing bars with the same timestamp.
func (s *SQLiteStore) SaveCandles(ctx context.Context, symbol, timeframe string, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, timeframe, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, symbol, timeframe, b.Time.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return fmt.Errorf("failed to insert candle: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetCandles retrieves bars in [from, to] ordered by time.
func (s *SQLiteStore) GetCandles(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]models.Bar, error) {
	var bars []models.Bar
	err := s.db.SelectContext(ctx, &bars, `
		SELECT timestamp, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND timeframe = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`, symbol, timeframe, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	return bars, nil
}

// GetLatestCandles retrieves the most recent limit bars ordered by time.
func (s *SQLiteStore) GetLatestCandles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Bar, error) {
	var bars []models.Bar
	err := s.db.SelectContext(ctx, &bars, `
		SELECT timestamp, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND timeframe = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, symbol, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

// GetCandlesFreshness returns the timestamp of the most recent bar.
func (s *SQLiteStore) GetCandlesFreshness(ctx context.Context, symbol, timeframe string) (time.Time, error) {
	var ts time.Time
	err := s.db.GetContext(ctx, &ts, `
		SELECT timestamp FROM candles WHERE symbol = ? AND timeframe = ?
		ORDER BY timestamp DESC LIMIT 1
	`, symbol, timeframe)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get candles freshness: %w", err)
	}
	return ts, nil
}

// ListSeries summarises every stored symbol and timeframe.
func (s *SQLiteStore) ListSeries(ctx context.Context) ([]SeriesInfo, error) {
	var rows []struct {
		SeriesInfo
		FirstRaw string `db:"first"`
		LastRaw  string `db:"last"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT symbol, timeframe, COUNT(*) AS bars, MIN(timestamp) AS first, MAX(timestamp) AS last
		FROM candles
		GROUP BY symbol, timeframe
		ORDER BY symbol, timeframe
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list series: %w", err)
	}

	out := make([]SeriesInfo, 0, len(rows))
	for _, r := range rows {
		info := r.SeriesInfo
		info.First = parseTimestamp(r.FirstRaw)
		info.Last = parseTimestamp(r.LastRaw)
		out = append(out, info)
	}
	return out, nil
}

// parseTimestamp decodes a DATETIME value returned by an aggregate, which the
// driver hands back as text.
func parseTimestamp(s string) time.Time {
	s = strings.TrimSuffix(strings.TrimSpace(s), "Z")
	for _, layout := range sqlite3.SQLiteTimestampFormats {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ============================================================================
// Patterns
// ============================================================================

const insertPattern = `
	INSERT OR IGNORE INTO patterns (
		id, pattern_key, run_id, symbol, timeframe, direction,
		t0_idx, t0_price, t0_time, t1_idx, t1_price, t1_time,
		t2_idx, t2_price, t2_time, t3_idx, t3_price, t3_time,
		t4_idx, t4_price, t4_time, pole_height, quality_score, detected_at, published
	) VALUES (
		:id, :pattern_key, :run_id, :symbol, :timeframe, :direction,
		:t0_idx, :t0_price, :t0_time, :t1_idx, :t1_price, :t1_time,
		:t2_idx, :t2_price, :t2_time, :t3_idx, :t3_price, :t3_time,
		:t4_idx, :t4_price, :t4_time, :pole_height, :quality_score, :detected_at, :published
	)`

// SavePatterns stores patterns found on symbol. A pattern already stored under the same
// formation key keeps its id and detection time and has its run id and score refreshed.
// Only newly inserted records are returned.
func (s *SQLiteStore) SavePatterns(ctx context.Context, symbol, runID string, found []patterns.FlagPattern) ([]PatternRecord, error) {
	if len(found) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	var inserted []PatternRecord
	for _, p := range found {
		rec := NewPatternRecord(uuid.NewString(), symbol, runID, p, now)
		res, err := tx.NamedExecContext(ctx, insertPattern, rec)
		if err != nil {
			return nil, fmt.Errorf("failed to insert pattern: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			inserted = append(inserted, rec)
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE patterns SET run_id = ?, quality_score = ? WHERE pattern_key = ?
		`, runID, rec.QualityScore, rec.Key); err != nil {
			return nil, fmt.Errorf("failed to update pattern: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}

// GetPatterns retrieves stored patterns, newest first.
func (s *SQLiteStore) GetPatterns(ctx context.Context, filter PatternFilter) ([]PatternRecord, error) {
	query := `SELECT * FROM patterns WHERE 1=1`
	var args []interface{}

	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if filter.Timeframe != "" {
		query += " AND timeframe = ?"
		args = append(args, filter.Timeframe)
	}
	if filter.Direction != "" {
		query += " AND direction = ?"
		args = append(args, string(filter.Direction))
	}
	if filter.MinQuality > 0 {
		query += " AND quality_score >= ?"
		args = append(args, filter.MinQuality)
	}
	if !filter.Since.IsZero() {
		query += " AND detected_at >= ?"
		args = append(args, filter.Since.UTC())
	}
	if filter.Unpublished {
		query += " AND published = 0"
	}

	query += " ORDER BY t4_time DESC, quality_score DESC, symbol ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var records []PatternRecord
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	return records, nil
}

// MarkPublished flags patterns as delivered to signal consumers.
func (s *SQLiteStore) MarkPublished(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE patterns SET published = 1 WHERE id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("failed to build publish query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to mark patterns published: %w", err)
	}
	return nil
}

// MarkDelivered records that a pattern reached one channel.
func (s *SQLiteStore) MarkDelivered(ctx context.Context, id, channel string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO pattern_deliveries (pattern_id, channel, delivered_at) VALUES (?, ?, ?)
	`, id, channel, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

// GetDeliveries returns the channels a pattern has already reached.
func (s *SQLiteStore) GetDeliveries(ctx context.Context, id string) ([]string, error) {
	var channels []string
	err := s.db.SelectContext(ctx, &channels, `
		SELECT channel FROM pattern_deliveries WHERE pattern_id = ? ORDER BY channel
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	return channels, nil
}

// ============================================================================
// Watchlist
// ============================================================================

// AddToWatchlist adds a symbol to a watchlist.
func (s *SQLiteStore) AddToWatchlist(ctx context.Context, symbol, listName string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO watchlist (symbol, list_name) VALUES (?, ?)
	`, symbol, listName)
	if err != nil {
		return fmt.Errorf("failed to add to watchlist: %w", err)
	}
	return nil
}

// RemoveFromWatchlist removes a symbol from a watchlist.
func (s *SQLiteStore) RemoveFromWatchlist(ctx context.Context, symbol, listName string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM watchlist WHERE symbol = ? AND list_name = ?
	`, symbol, listName)
	if err != nil {
		return fmt.Errorf("failed to remove from watchlist: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.Wrapf(apperrors.ErrSymbolNotFound, "%s not in watchlist %s", symbol, listName)
	}
	return nil
}

// GetWatchlist retrieves symbols in a watchlist in insertion order.
func (s *SQLiteStore) GetWatchlist(ctx context.Context, listName string) ([]string, error) {
	var symbols []string
	err := s.db.SelectContext(ctx, &symbols, `
		SELECT symbol FROM watchlist WHERE list_name = ? ORDER BY id ASC
	`, listName)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlist: %w", err)
	}
	return symbols, nil
}

// GetAllWatchlists retrieves all watchlists.
func (s *SQLiteStore) GetAllWatchlists(ctx context.Context) (map[string][]string, error) {
	var rows []struct {
		ListName string `db:"list_name"`
		Symbol   string `db:"symbol"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT list_name, symbol FROM watchlist ORDER BY list_name, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlists: %w", err)
	}

	watchlists := make(map[string][]string)
	for _, r := range rows {
		watchlists[r.ListName] = append(watchlists[r.ListName], r.Symbol)
	}
	return watchlists, nil
}

// ============================================================================
// Screener Queries
// ============================================================================

// SaveScreenerQuery saves a screener query.
func (s *SQLiteStore) SaveScreenerQuery(ctx context.Context, name string, query ScreenerQuery) error {
	filters, err := json.Marshal(query.Filters)
	if err != nil {
		return fmt.Errorf("failed to encode screener filters: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO screener_queries (name, filters, updated_at)
		VALUES (?, ?, ?)
	`, name, string(filters), s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save screener query: %w", err)
	}
	return nil
}

// GetScreenerQuery retrieves a screener query by name. A missing query yields nil, nil.
func (s *SQLiteStore) GetScreenerQuery(ctx context.Context, name string) (*ScreenerQuery, error) {
	var filtersJSON string
	err := s.db.GetContext(ctx, &filtersJSON, `
		SELECT filters FROM screener_queries WHERE name = ?
	`, name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get screener query: %w", err)
	}

	query := &ScreenerQuery{Name: name}
	if err := json.Unmarshal([]byte(filtersJSON), &query.Filters); err != nil {
		return nil, fmt.Errorf("failed to decode screener filters: %w", err)
	}
	return query, nil
}

// ListScreenerQueries lists all saved screener query names.
func (s *SQLiteStore) ListScreenerQueries(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.db.SelectContext(ctx, &names, `SELECT name FROM screener_queries ORDER BY name ASC`); err != nil {
		return nil, fmt.Errorf("failed to list screener queries: %w", err)
	}
	return names, nil
}

// ============================================================================
// Sync
// ============================================================================

// GetLastSync returns the last sync time for a data type.
func (s *SQLiteStore) GetLastSync(dataType string) time.Time {
	s.mu.RLock()
	if t, ok := s.syncTimes[dataType]; ok {
		s.mu.RUnlock()
		return t
	}
	s.mu.RUnlock()

	var lastSync time.Time
	if err := s.db.Get(&lastSync, `SELECT last_sync FROM sync_status WHERE data_type = ?`, dataType); err != nil {
		return time.Time{}
	}

	s.mu.Lock()
	s.syncTimes[dataType] = lastSync
	s.mu.Unlock()

	return lastSync
}

// SetLastSync sets the last sync time for a data type.
func (s *SQLiteStore) SetLastSync(dataType string, t time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO sync_status (data_type, last_sync, updated_at)
		VALUES (?, ?, ?)
	`, dataType, t.UTC(), s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set last sync: %w", err)
	}

	s.mu.Lock()
	s.syncTimes[dataType] = t
	s.mu.Unlock()

	return nil
}
