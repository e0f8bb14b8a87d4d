// Package broker defines the Broker interface and provides implementations
// for executing orders and managing sandbox accounts.
package broker

import (
	"context"
	"time"

	"sandtrader/internal/domain"
)

// Broker abstracts the brokerage operations the trading engine relies on.
// Every operation sends a single request and returns either a typed result
// or a classified *Error; mutating calls (order submission) are never
// retried inside the implementation — retries are the caller's decision.
type Broker interface {
	// Name returns the broker identifier (e.g. "invest-sandbox", "simulator").
	Name() string

	// GetOrCreateAccount resolves the sandbox account, creating one only if
	// none exists. Calling it repeatedly returns the same account id.
	GetOrCreateAccount(ctx context.Context) (string, error)

	// PayIn deposits sandbox funds into the account.
	PayIn(ctx context.Context, accountID string, amount domain.Money) error

	// GetPortfolio returns a fresh snapshot of cash and positions.
	GetPortfolio(ctx context.Context, accountID string) (*domain.Portfolio, error)

	// GetLastPrices returns the last known price per instrument. An empty
	// figis slice requests all instruments the broker quotes.
	GetLastPrices(ctx context.Context, figis []string) (map[string]domain.PricePoint, error)

	// GetCandles returns chronological candles for the window
	// [now-lookback, now) in UTC. An unsupported interval fails with an
	// invalid-argument error before any network call.
	GetCandles(ctx context.Context, figi string, interval domain.CandleInterval, lookback time.Duration) ([]domain.Candle, error)

	// ListInstruments returns the tradeable shares known to the broker.
	ListInstruments(ctx context.Context) ([]domain.Instrument, error)

	// SubmitOrder places a market order for a positive integer number of
	// lots and returns the broker-issued order id. Each submission carries a
	// unique client-generated idempotency key.
	SubmitOrder(ctx context.Context, accountID, figi string, direction domain.Direction, lots int64) (string, error)

	// GetOrderState fetches the broker's view of an order's status.
	GetOrderState(ctx context.Context, accountID, orderID string) (domain.OrderStatus, error)

	// CancelOrder requests cancellation of an open order. Success means the
	// request was accepted, not that the order is cancelled; callers confirm
	// through GetOrderState.
	CancelOrder(ctx context.Context, accountID, orderID string) error

	// ListOpenOrders returns the currently active orders on the account.
	ListOpenOrders(ctx context.Context, accountID string) ([]domain.Order, error)
}
