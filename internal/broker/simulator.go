package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"sandtrader/internal/domain"
)

// Compile-time interface check.
var _ Broker = (*Simulator)(nil)

// Simulator implements Broker entirely in memory: orders fill immediately at
// the configured price. It backs offline runs and the engine and scheduler
// tests.
type Simulator struct {
	mu        sync.Mutex
	accountID string
	cash      domain.Money
	prices    map[string]domain.Money
	positions map[string]float64
	orders    map[string]*domain.Order
}

// NewSimulator creates a Simulator quoting the given prices. The account
// starts empty; fund it through PayIn.
func NewSimulator(prices map[string]domain.Money) *Simulator {
	cp := make(map[string]domain.Money, len(prices))
	for figi, p := range prices {
		cp[figi] = p
	}
	return &Simulator{
		prices:    cp,
		positions: make(map[string]float64),
		orders:    make(map[string]*domain.Order),
	}
}

// Name returns "simulator".
func (s *Simulator) Name() string {
	return "simulator"
}

// GetOrCreateAccount returns the simulated account id, creating it on first
// call.
func (s *Simulator) GetOrCreateAccount(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accountID == "" {
		s.accountID = "sim-" + uuid.NewString()[:8]
	}
	return s.accountID, nil
}

// PayIn credits the simulated cash balance.
func (s *Simulator) PayIn(_ context.Context, accountID string, amount domain.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAccount(accountID); err != nil {
		return err
	}
	s.cash = domain.NewMoney(s.cash.Units+amount.Units, int64(s.cash.Nano)+int64(amount.Nano), amount.Currency)
	return nil
}

// GetPortfolio returns a snapshot of cash valuation plus positions.
func (s *Simulator) GetPortfolio(_ context.Context, accountID string) (*domain.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAccount(accountID); err != nil {
		return nil, err
	}
	p := &domain.Portfolio{Total: s.cash}
	for figi, qty := range s.positions {
		if qty != 0 {
			p.Positions = append(p.Positions, domain.Position{FIGI: figi, Quantity: qty})
		}
	}
	return p, nil
}

// GetLastPrices returns the configured quotes.
func (s *Simulator) GetLastPrices(_ context.Context, figis []string) (map[string]domain.PricePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	out := make(map[string]domain.PricePoint)
	if len(figis) == 0 {
		for figi, p := range s.prices {
			out[figi] = domain.PricePoint{Price: p, Time: now}
		}
		return out, nil
	}
	for _, figi := range figis {
		if p, ok := s.prices[figi]; ok {
			out[figi] = domain.PricePoint{Price: p, Time: now}
		}
	}
	return out, nil
}

// GetCandles synthesises a flat candle series at the quoted price.
func (s *Simulator) GetCandles(_ context.Context, figi string, interval domain.CandleInterval, lookback time.Duration) ([]domain.Candle, error) {
	if !interval.Valid() {
		return nil, invalidArgErr(epGetCandles, fmt.Errorf("invalid candle interval %q", interval))
	}
	s.mu.Lock()
	price, ok := s.prices[figi]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}

	step := intervalStep(interval)
	end := time.Now().UTC().Truncate(step)
	var candles []domain.Candle
	for t := end.Add(-lookback).Truncate(step); t.Before(end); t = t.Add(step) {
		v := price.Float64()
		candles = append(candles, domain.Candle{
			FIGI: figi, Time: t,
			Open: v, High: v, Low: v, Close: v,
			Volume: 1,
		})
	}
	return candles, nil
}

func intervalStep(interval domain.CandleInterval) time.Duration {
	switch interval {
	case domain.IntervalMinute:
		return time.Minute
	case domain.IntervalFiveMinute:
		return 5 * time.Minute
	case domain.IntervalQuarterHour:
		return 15 * time.Minute
	case domain.IntervalDay:
		return 24 * time.Hour
	}
	return time.Hour
}

// ListInstruments lists the quoted instruments.
func (s *Simulator) ListInstruments(_ context.Context) ([]domain.Instrument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Instrument
	for figi := range s.prices {
		out = append(out, domain.Instrument{FIGI: figi, Name: figi, Ticker: figi, Lot: 1})
	}
	return out, nil
}

// SubmitOrder fills the order immediately at the quoted price and adjusts
// cash and positions.
func (s *Simulator) SubmitOrder(_ context.Context, accountID, figi string, direction domain.Direction, lots int64) (string, error) {
	if lots <= 0 {
		return "", invalidArgErr(epPostOrder, fmt.Errorf("lots must be positive, got %d", lots))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAccount(accountID); err != nil {
		return "", err
	}

	price, ok := s.prices[figi]
	if !ok {
		return "", rejectedErr(epPostOrder, fmt.Errorf("no quote for %s", figi))
	}

	notionalNanos := (price.Units*domain.NanoFactor + int64(price.Nano)) * lots
	switch direction {
	case domain.Buy:
		s.cash = domain.NewMoney(s.cash.Units, int64(s.cash.Nano)-notionalNanos, s.cash.Currency)
		s.positions[figi] += float64(lots)
	case domain.Sell:
		if s.positions[figi] < float64(lots) {
			return "", rejectedErr(epPostOrder, fmt.Errorf("insufficient position in %s", figi))
		}
		s.cash = domain.NewMoney(s.cash.Units, int64(s.cash.Nano)+notionalNanos, s.cash.Currency)
		s.positions[figi] -= float64(lots)
		if s.positions[figi] == 0 {
			delete(s.positions, figi)
		}
	default:
		return "", invalidArgErr(epPostOrder, fmt.Errorf("invalid direction %q", direction))
	}

	id := uuid.NewString()
	s.orders[id] = &domain.Order{
		ID:        id,
		FIGI:      figi,
		Direction: direction,
		Lots:      lots,
		Status:    domain.StatusFilled,
		CreatedAt: time.Now().UTC(),
	}
	return id, nil
}

// GetOrderState reports the stored order status.
func (s *Simulator) GetOrderState(_ context.Context, accountID, orderID string) (domain.OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAccount(accountID); err != nil {
		return domain.StatusUnknown, err
	}
	o, ok := s.orders[orderID]
	if !ok {
		return domain.StatusUnknown, invalidArgErr(epGetOrderState, fmt.Errorf("unknown order %s", orderID))
	}
	return o.Status, nil
}

// CancelOrder cancels an order unless it already reached a terminal state.
func (s *Simulator) CancelOrder(_ context.Context, accountID, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAccount(accountID); err != nil {
		return err
	}
	o, ok := s.orders[orderID]
	if !ok {
		return invalidArgErr(epCancelOrder, fmt.Errorf("unknown order %s", orderID))
	}
	if o.Status.Terminal() {
		return rejectedErr(epCancelOrder, fmt.Errorf("order %s already %s", orderID, o.Status))
	}
	o.Status = domain.StatusCancelled
	return nil
}

// ListOpenOrders returns orders that have not reached a terminal state.
func (s *Simulator) ListOpenOrders(_ context.Context, accountID string) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAccount(accountID); err != nil {
		return nil, err
	}
	var out []domain.Order
	for _, o := range s.orders {
		if !o.Status.Terminal() {
			out = append(out, *o)
		}
	}
	return out, nil
}

// SetPrice updates a quote. Test hook.
func (s *Simulator) SetPrice(figi string, price domain.Money) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[figi] = price
}

func (s *Simulator) checkAccount(accountID string) error {
	if s.accountID == "" || accountID != s.accountID {
		return invalidArgErr("simulator", fmt.Errorf("unknown account %q", accountID))
	}
	return nil
}
