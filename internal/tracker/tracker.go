// Package tracker owns the per-order state machine from submission through
// terminal state, reconciled against broker-reported state. The tracker
// never guesses: a terminal status is only ever recorded after an explicit
// confirming fetch from the broker.
package tracker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sandtrader/internal/broker"
	"sandtrader/internal/domain"
)

// TrackedOrder is an order plus tracking metadata. Unknown is set when the
// broker could not be reached to confirm the order's state; while it is set
// the engine must not re-submit for the same instrument.
type TrackedOrder struct {
	Order       domain.Order
	Unknown     bool
	LastChecked time.Time
}

// Tracker reconciles submitted orders against the broker. Terminal orders
// are retained read-only for audit.
type Tracker struct {
	broker broker.Broker
	log    zerolog.Logger

	mu     sync.Mutex
	orders map[string]*TrackedOrder
}

// New creates an empty Tracker.
func New(b broker.Broker, log zerolog.Logger) *Tracker {
	return &Tracker{
		broker: b,
		log:    log.With().Str("component", "tracker").Logger(),
		orders: make(map[string]*TrackedOrder),
	}
}

// Track registers an order after a successful submission. The order enters
// as Submitted: the Pending→Submitted transition happens only on a
// submission response carrying a broker-issued id.
func (t *Tracker) Track(order domain.Order) {
	if order.ID == "" {
		t.log.Warn().Str("figi", order.FIGI).Msg("refusing to track order without broker id")
		return
	}
	order.Status = domain.StatusSubmitted

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.orders[order.ID]; exists {
		return
	}
	t.orders[order.ID] = &TrackedOrder{Order: order}
	t.log.Info().Str("order_id", order.ID).Str("figi", order.FIGI).Msg("tracking order")
}

// Sync folds the broker's open-order list into the tracker, picking up any
// orders this process did not submit (or lost across a restart).
func (t *Tracker) Sync(ctx context.Context, accountID string) error {
	open, err := t.broker.ListOpenOrders(ctx, accountID)
	if err != nil {
		t.log.Error().Err(err).Str("account_id", accountID).Msg("open order sync failed")
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, o := range open {
		if _, exists := t.orders[o.ID]; !exists {
			t.orders[o.ID] = &TrackedOrder{Order: o}
			t.log.Info().Str("order_id", o.ID).Str("figi", o.FIGI).Msg("adopted open order from broker")
		}
	}
	return nil
}

// Refresh fetches the broker state for every non-terminal order. A failed
// fetch leaves the order in its last known status with the Unknown flag
// set; a successful fetch clears the flag and applies the transition.
func (t *Tracker) Refresh(ctx context.Context, accountID string) {
	for _, id := range t.openIDs() {
		status, err := t.broker.GetOrderState(ctx, accountID, id)

		t.mu.Lock()
		to, ok := t.orders[id]
		if !ok {
			t.mu.Unlock()
			continue
		}
		to.LastChecked = time.Now().UTC()
		if err != nil {
			to.Unknown = true
			t.mu.Unlock()
			t.log.Warn().Err(err).Str("order_id", id).Msg("order state unconfirmed, flagged unknown")
			continue
		}
		to.Unknown = false
		t.transition(to, status)
		t.mu.Unlock()
	}
}

// transition applies a broker-confirmed status. Terminal states latch:
// once an order is Filled, Cancelled, or Rejected it never moves again.
// Caller holds t.mu.
func (t *Tracker) transition(to *TrackedOrder, status domain.OrderStatus) {
	if to.Order.Status.Terminal() {
		return
	}
	if status == domain.StatusUnknown {
		// The broker answered but did not recognise the state; keep the
		// last known status rather than inventing one.
		return
	}
	if status != to.Order.Status {
		t.log.Info().
			Str("order_id", to.Order.ID).
			Str("from", string(to.Order.Status)).
			Str("to", string(status)).
			Msg("order transition")
	}
	to.Order.Status = status
}

// RequestCancel asks the broker to cancel an order. A successful request
// does not mark the order cancelled — the broker may have filled it
// already — so confirmation waits for the next Refresh.
func (t *Tracker) RequestCancel(ctx context.Context, accountID, orderID string) error {
	if err := t.broker.CancelOrder(ctx, accountID, orderID); err != nil {
		t.log.Error().Err(err).Str("order_id", orderID).Msg("cancel request failed, order unchanged")
		return err
	}
	return nil
}

// Open returns the orders that have not reached a confirmed terminal state,
// ordered by creation time.
func (t *Tracker) Open() []TrackedOrder {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []TrackedOrder
	for _, to := range t.orders {
		if !to.Order.Status.Terminal() {
			out = append(out, *to)
		}
	}
	sortByCreation(out)
	return out
}

// All returns every tracked order, terminal ones included, for audit.
func (t *Tracker) All() []TrackedOrder {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TrackedOrder, 0, len(t.orders))
	for _, to := range t.orders {
		out = append(out, *to)
	}
	sortByCreation(out)
	return out
}

// Blocked reports whether the instrument has an order whose state could not
// be confirmed. The engine must not submit for a figi while this holds.
func (t *Tracker) Blocked(figi string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, to := range t.orders {
		if to.Order.FIGI == figi && to.Unknown && !to.Order.Status.Terminal() {
			return true
		}
	}
	return false
}

// Get returns a tracked order by broker id.
func (t *Tracker) Get(orderID string) (TrackedOrder, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	to, ok := t.orders[orderID]
	if !ok {
		return TrackedOrder{}, false
	}
	return *to, true
}

func (t *Tracker) openIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ids []string
	for id, to := range t.orders {
		if !to.Order.Status.Terminal() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func sortByCreation(orders []TrackedOrder) {
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].Order.CreatedAt.Equal(orders[j].Order.CreatedAt) {
			return orders[i].Order.ID < orders[j].Order.ID
		}
		return orders[i].Order.CreatedAt.Before(orders[j].Order.CreatedAt)
	})
}
