// Package store persists streamed minute bars to a local SQLite journal so a
// session restart does not lose the day's bars.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"truedata-client/internal/models"
)

// BarJournal is an append-mostly SQLite store of interval bars keyed by
// symbol, interval and bar timestamp. Re-delivered bars for the same minute
// overwrite in place.
type BarJournal struct {
	db *sql.DB
}

// NewBarJournal opens (and if needed creates) the journal at dbPath.
func NewBarJournal(dbPath string) (*BarJournal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open bar journal: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	j := &BarJournal{db: db}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *BarJournal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS bars (
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		oi INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, interval, timestamp)
	);
	CREATE INDEX IF NOT EXISTS idx_bars_symbol_time ON bars(symbol, interval, timestamp);
	`
	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("init bar journal schema: %w", err)
	}
	return nil
}

// SaveBar inserts or overwrites one bar.
func (j *BarJournal) SaveBar(ctx context.Context, bar models.Bar) error {
	query := `
	INSERT INTO bars (symbol, interval, timestamp, open, high, low, close, volume, oi)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(symbol, interval, timestamp) DO UPDATE SET
		open = excluded.open,
		high = excluded.high,
		low = excluded.low,
		close = excluded.close,
		volume = excluded.volume,
		oi = excluded.oi`
	_, err := j.db.ExecContext(ctx, query,
		bar.Symbol, string(bar.Interval), bar.Timestamp,
		bar.Open, bar.High, bar.Low, bar.Close, bar.Volume, bar.OI)
	if err != nil {
		return fmt.Errorf("save bar %s %s: %w", bar.Symbol, bar.Timestamp, err)
	}
	return nil
}

// GetBars returns bars for a symbol and interval between start and end,
// oldest first.
func (j *BarJournal) GetBars(ctx context.Context, symbol string, interval models.BarInterval, start, end time.Time) ([]models.Bar, error) {
	query := `
	SELECT symbol, interval, timestamp, open, high, low, close, volume, oi
	FROM bars
	WHERE symbol = ? AND interval = ? AND timestamp >= ? AND timestamp <= ?
	ORDER BY timestamp ASC`
	rows, err := j.db.QueryContext(ctx, query, symbol, string(interval), start, end)
	if err != nil {
		return nil, fmt.Errorf("query bars %s: %w", symbol, err)
	}
	defer rows.Close()

	var bars []models.Bar
	for rows.Next() {
		var b models.Bar
		var iv string
		if err := rows.Scan(&b.Symbol, &iv, &b.Timestamp,
			&b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.OI); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Interval = models.BarInterval(iv)
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// LatestBar returns the most recent bar for a symbol and interval.
func (j *BarJournal) LatestBar(ctx context.Context, symbol string, interval models.BarInterval) (models.Bar, bool, error) {
	query := `
	SELECT symbol, interval, timestamp, open, high, low, close, volume, oi
	FROM bars
	WHERE symbol = ? AND interval = ?
	ORDER BY timestamp DESC LIMIT 1`
	var b models.Bar
	var iv string
	err := j.db.QueryRowContext(ctx, query, symbol, string(interval)).Scan(
		&b.Symbol, &iv, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.OI)
	if err == sql.ErrNoRows {
		return models.Bar{}, false, nil
	}
	if err != nil {
		return models.Bar{}, false, fmt.Errorf("query latest bar %s: %w", symbol, err)
	}
	b.Interval = models.BarInterval(iv)
	return b, true, nil
}

// Purge deletes bars older than the cutoff and returns the number removed.
func (j *BarJournal) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM bars WHERE timestamp < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("purge bars: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database.
func (j *BarJournal) Close() error {
	return j.db.Close()
}
