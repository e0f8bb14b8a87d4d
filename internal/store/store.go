// Package store defines storage interfaces for persisting candle history and
// executed trades, with SQLite for the hot database and Parquet for archives.
package store

import (
	"context"
	"time"

	"sandtrader/internal/domain"
)

// TradeRecord is one executed (or submitted-and-filled) trade as persisted.
type TradeRecord struct {
	FIGI      string           `json:"figi"`
	Direction domain.Direction `json:"direction"`
	Price     float64          `json:"price"`
	Quantity  int64            `json:"quantity"`
	Time      time.Time        `json:"time"`
}

// CandleStore persists and retrieves candle history.
type CandleStore interface {
	// AppendCandles persists a batch of candles. Re-appending a candle for
	// an existing (figi, time) pair overwrites the stored row.
	AppendCandles(ctx context.Context, candles []domain.Candle) error

	// ReadCandles returns candles for figi within [start, end], ordered by
	// time ascending.
	ReadCandles(ctx context.Context, figi string, start, end time.Time) ([]domain.Candle, error)
}

// TradeStore persists and retrieves the trade journal.
type TradeStore interface {
	// AppendTrade persists one executed trade. The journal is append-only.
	AppendTrade(ctx context.Context, trade TradeRecord) error

	// ListTrades returns the most recent trades, newest first, up to limit.
	// A limit of 0 means no limit.
	ListTrades(ctx context.Context, limit int) ([]TradeRecord, error)
}
