// Package engine runs the trading decision cycle: portfolio snapshot, order
// reconciliation, strategy evaluation, and order submission.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"sandtrader/internal/broker"
	"sandtrader/internal/domain"
	"sandtrader/internal/events"
	"sandtrader/internal/marketdata"
	"sandtrader/internal/store"
	"sandtrader/internal/strategy"
	"sandtrader/internal/tracker"
)

// Engine coordinates one trading cycle at a time. It delegates execution to
// the broker, order state to the tracker, and decisions to the strategy.
type Engine struct {
	broker   broker.Broker
	tracker  *tracker.Tracker
	cache    *marketdata.Cache
	strategy strategy.Strategy
	trades   store.TradeStore
	bus      *events.Bus
	risk     *RiskManager
	log      zerolog.Logger

	lotSizes map[string]int64
}

// NewEngine creates an Engine wired with the given dependencies.
func NewEngine(
	b broker.Broker,
	tr *tracker.Tracker,
	cache *marketdata.Cache,
	strat strategy.Strategy,
	trades store.TradeStore,
	bus *events.Bus,
	risk *RiskManager,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		broker:   b,
		tracker:  tr,
		cache:    cache,
		strategy: strat,
		trades:   trades,
		bus:      bus,
		risk:     risk,
		log:      log.With().Str("component", "engine").Logger(),
		lotSizes: make(map[string]int64),
	}
}

// SetLotSize records the lot size for an instrument. Instruments without an
// entry trade in lots of one unit.
func (e *Engine) SetLotSize(figi string, lotSize int64) {
	if lotSize > 0 {
		e.lotSizes[figi] = lotSize
	}
}

func (e *Engine) lotSize(figi string) int64 {
	if ls, ok := e.lotSizes[figi]; ok {
		return ls
	}
	return 1
}

// RunCycle executes one full decision cycle. A failed portfolio or
// open-order fetch skips the whole cycle; a failure on an individual order
// does not stop the remaining decisions. stopped is checked between order submissions so a
// shutdown request defers the rest of the cycle without abandoning an order
// already in flight.
func (e *Engine) RunCycle(ctx context.Context, accountID string, stopped func() bool) error {
	portfolio, err := e.broker.GetPortfolio(ctx, accountID)
	if err != nil {
		e.log.Error().Err(err).Msg("portfolio fetch failed, skipping cycle")
		e.bus.Publish(events.TypeLog, fmt.Sprintf("cycle skipped: portfolio fetch failed: %v", err))
		return fmt.Errorf("portfolio fetch: %w", err)
	}
	e.bus.Publish(events.TypePortfolio, portfolio)

	// Reconcile order state before deciding: adopt unknown open orders and
	// confirm the ones we already track. Deciding without the broker's
	// open-order list could buy on top of a working order this process has
	// never seen, so a failed fetch skips the cycle like a failed portfolio
	// fetch does.
	if err := e.tracker.Sync(ctx, accountID); err != nil {
		e.log.Error().Err(err).Msg("open-order fetch failed, skipping cycle")
		e.bus.Publish(events.TypeLog, fmt.Sprintf("cycle skipped: open-order fetch failed: %v", err))
		return fmt.Errorf("open order sync: %w", err)
	}
	e.tracker.Refresh(ctx, accountID)

	snap := strategy.Snapshot{Portfolio: *portfolio}
	for _, to := range e.tracker.Open() {
		snap.OpenOrders = append(snap.OpenOrders, to.Order)
	}

	decisions, err := e.strategy.Decide(ctx, snap)
	if err != nil {
		e.log.Error().Err(err).Str("strategy", e.strategy.Name()).Msg("strategy error, skipping cycle")
		return fmt.Errorf("strategy %s: %w", e.strategy.Name(), err)
	}
	if len(decisions) == 0 {
		e.log.Debug().Msg("hold: no decisions this cycle")
		return nil
	}

	var errs []error
	for i, d := range decisions {
		if stopped != nil && stopped() {
			e.log.Info().Int("deferred", len(decisions)-i).Msg("stop requested, deferring remaining decisions")
			break
		}
		if err := e.execute(ctx, accountID, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// execute converts one decision to whole lots and submits it.
func (e *Engine) execute(ctx context.Context, accountID string, d strategy.Decision) error {
	log := e.log.With().Str("figi", d.FIGI).Str("direction", string(d.Direction)).Logger()

	if e.tracker.Blocked(d.FIGI) {
		log.Warn().Msg("instrument has an unconfirmed order, holding off")
		e.bus.Publish(events.TypeLog, fmt.Sprintf("skipped %s %s: unconfirmed order pending", d.Direction, d.FIGI))
		return nil
	}

	lots := int64(math.Floor(d.Quantity / float64(e.lotSize(d.FIGI))))
	if lots < 1 {
		log.Warn().Float64("quantity", d.Quantity).Int64("lot_size", e.lotSize(d.FIGI)).
			Msg("quantity below one lot, skipping")
		e.bus.Publish(events.TypeLog, fmt.Sprintf("skipped %s %s: %.4f units is below one lot", d.Direction, d.FIGI, d.Quantity))
		return nil
	}

	if e.risk != nil {
		if err := e.risk.CheckOrder(d.Direction, lots, len(e.tracker.Open())); err != nil {
			log.Warn().Err(err).Msg("risk check rejected order")
			e.bus.Publish(events.TypeLog, fmt.Sprintf("risk check: %s %s: %v", d.Direction, d.FIGI, err))
			return nil
		}
	}

	orderID, err := e.broker.SubmitOrder(ctx, accountID, d.FIGI, d.Direction, lots)
	if err != nil {
		log.Error().Err(err).Int64("lots", lots).Msg("order submission failed")
		e.bus.Publish(events.TypeLog, fmt.Sprintf("order failed: %s %d lot(s) %s: %v", d.Direction, lots, d.FIGI, err))
		return fmt.Errorf("submit %s %s: %w", d.Direction, d.FIGI, err)
	}

	now := time.Now().UTC()
	e.tracker.Track(domain.Order{
		ID:        orderID,
		FIGI:      d.FIGI,
		Direction: d.Direction,
		Lots:      lots,
		CreatedAt: now,
	})
	log.Info().Str("order_id", orderID).Int64("lots", lots).Msg("order submitted")

	record := store.TradeRecord{
		FIGI:      d.FIGI,
		Direction: d.Direction,
		Quantity:  lots * e.lotSize(d.FIGI),
		Time:      now,
	}
	if p, ok := e.cache.LastPrice(d.FIGI); ok {
		record.Price = p.Price.Float64()
	}
	if err := e.trades.AppendTrade(ctx, record); err != nil {
		// The order is already with the broker; a journal failure is logged
		// but does not fail the decision.
		log.Error().Err(err).Msg("trade journal write failed")
	}
	e.bus.Publish(events.TypeTrade, record)
	return nil
}
