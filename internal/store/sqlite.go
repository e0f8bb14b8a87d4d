package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sandtrader/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ CandleStore = (*SQLiteStore)(nil)
var _ TradeStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS candles (
	figi   TEXT    NOT NULL,
	time   INTEGER NOT NULL,
	open   REAL    NOT NULL,
	high   REAL    NOT NULL,
	low    REAL    NOT NULL,
	close  REAL    NOT NULL,
	volume INTEGER NOT NULL,
	PRIMARY KEY (figi, time)
);
CREATE TABLE IF NOT EXISTS trades (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	figi      TEXT    NOT NULL,
	direction TEXT    NOT NULL,
	price     REAL    NOT NULL,
	quantity  INTEGER NOT NULL,
	time      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_time ON trades (time DESC);
`

// SQLiteStore implements CandleStore and TradeStore backed by a SQLite
// database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db %s: %w", dbPath, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AppendCandles upserts candles keyed by (figi, time).
func (s *SQLiteStore) AppendCandles(ctx context.Context, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (figi, time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (figi, time) DO UPDATE SET
			open = excluded.open, high = excluded.high,
			low = excluded.low, close = excluded.close,
			volume = excluded.volume`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, c.FIGI, c.Time.UTC().Unix(),
			c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return fmt.Errorf("inserting candle %s@%s: %w", c.FIGI, c.Time, err)
		}
	}
	return tx.Commit()
}

// ReadCandles returns candles for figi within [start, end], time ascending.
func (s *SQLiteStore) ReadCandles(ctx context.Context, figi string, start, end time.Time) ([]domain.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT figi, time, open, high, low, close, volume
		FROM candles
		WHERE figi = ? AND time >= ? AND time <= ?
		ORDER BY time ASC`,
		figi, start.UTC().Unix(), end.UTC().Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candles []domain.Candle
	for rows.Next() {
		var c domain.Candle
		var ts int64
		if err := rows.Scan(&c.FIGI, &ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		c.Time = time.Unix(ts, 0).UTC()
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// AppendTrade inserts one trade row. Rows are never updated or deleted.
func (s *SQLiteStore) AppendTrade(ctx context.Context, trade TradeRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (figi, direction, price, quantity, time)
		VALUES (?, ?, ?, ?, ?)`,
		trade.FIGI, string(trade.Direction), trade.Price, trade.Quantity,
		trade.Time.UTC().Unix())
	if err != nil {
		return fmt.Errorf("inserting trade %s %s: %w", trade.Direction, trade.FIGI, err)
	}
	return nil
}

// ListTrades returns trades newest first. limit <= 0 returns everything.
func (s *SQLiteStore) ListTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	q := `SELECT figi, direction, price, quantity, time FROM trades ORDER BY time DESC, id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		var dir string
		var ts int64
		if err := rows.Scan(&t.FIGI, &dir, &t.Price, &t.Quantity, &ts); err != nil {
			return nil, err
		}
		t.Direction = domain.Direction(dir)
		t.Time = time.Unix(ts, 0).UTC()
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
