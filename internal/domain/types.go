// Package domain defines the core value types shared across the trading
// system: money, instruments, candles, portfolio snapshots, and orders.
package domain

import (
	"fmt"
	"time"
)

// Instrument identifies a tradeable security. FIGI is the opaque global
// identifier the broker keys everything by; Name and Ticker are for humans.
// Lot is how many units one exchange lot carries. Instruments are sourced
// from the broker and never mutated.
type Instrument struct {
	FIGI   string `json:"figi"`
	Name   string `json:"name"`
	Ticker string `json:"ticker"`
	Lot    int64  `json:"lot"`
}

// CandleInterval enumerates the candle resolutions the broker supports.
type CandleInterval string

const (
	IntervalMinute      CandleInterval = "MINUTE"
	IntervalFiveMinute  CandleInterval = "FIVE_MINUTE"
	IntervalQuarterHour CandleInterval = "QUARTER_HOUR"
	IntervalHour        CandleInterval = "HOUR"
	IntervalDay         CandleInterval = "DAY"
)

// Valid reports whether i is one of the supported candle intervals.
func (i CandleInterval) Valid() bool {
	switch i {
	case IntervalMinute, IntervalFiveMinute, IntervalQuarterHour, IntervalHour, IntervalDay:
		return true
	}
	return false
}

// intervalAliases maps the short dashboard aliases onto intervals.
var intervalAliases = map[string]CandleInterval{
	"1m":  IntervalMinute,
	"5m":  IntervalFiveMinute,
	"15m": IntervalQuarterHour,
	"1h":  IntervalHour,
	"1d":  IntervalDay,
}

// ParseInterval resolves either a canonical interval name or a dashboard
// alias (1m, 5m, 15m, 1h, 1d) into a CandleInterval.
func ParseInterval(s string) (CandleInterval, error) {
	if iv, ok := intervalAliases[s]; ok {
		return iv, nil
	}
	iv := CandleInterval(s)
	if iv.Valid() {
		return iv, nil
	}
	return "", fmt.Errorf("unknown candle interval %q", s)
}

// Candle is a single OHLCV bar for an instrument. Candles are immutable once
// fetched and only ever appended in storage.
type Candle struct {
	FIGI   string    `json:"figi"`
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Position is an instrument holding inside a portfolio snapshot. Quantity is
// fractional (derived from the broker's units+nano form) and has no identity
// of its own; it is recomputed on every portfolio fetch.
type Position struct {
	FIGI     string  `json:"figi"`
	Quantity float64 `json:"quantity"`
}

// Portfolio is a read-only snapshot of the account: total valuation plus the
// set of open positions. A Portfolio is constructed fresh per fetch and
// replaced, never mutated.
type Portfolio struct {
	Total     Money      `json:"total"`
	Positions []Position `json:"positions"`
}

// HasPositions reports whether the snapshot holds any open position.
func (p *Portfolio) HasPositions() bool {
	return len(p.Positions) > 0
}

// PricePoint is a last-known price observation for an instrument.
type PricePoint struct {
	Price Money     `json:"price"`
	Time  time.Time `json:"time"`
}

// Direction is the side of an order.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// WireName returns the broker's enum name for the direction.
func (d Direction) WireName() string {
	return "ORDER_DIRECTION_" + string(d)
}

// OrderStatus enumerates the lifecycle states of an order. StatusUnknown is
// the terminal-ambiguous state used when the broker cannot be reached to
// confirm what happened.
type OrderStatus string

const (
	StatusPending         OrderStatus = "PENDING"
	StatusSubmitted       OrderStatus = "SUBMITTED"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusUnknown         OrderStatus = "UNKNOWN"
)

// Terminal reports whether the status is final. An order never transitions
// out of a terminal status.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// Order is a trading instruction. ID is broker-issued and absent until the
// submission succeeds; Lots is the requested quantity in broker lots.
type Order struct {
	ID        string      `json:"id"`
	FIGI      string      `json:"figi"`
	Direction Direction   `json:"direction"`
	Lots      int64       `json:"lots"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}
