// Package marketdata keeps last-known price and candle snapshots, refreshed
// on demand from the broker. Readers get copies; no cross-call consistency
// is promised.
package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sandtrader/internal/broker"
	"sandtrader/internal/domain"
)

// Cache holds the most recent price map and per-instrument candle series.
type Cache struct {
	broker broker.Broker
	log    zerolog.Logger

	mu      sync.RWMutex
	prices  map[string]domain.PricePoint
	candles map[candleKey][]domain.Candle
}

type candleKey struct {
	figi     string
	interval domain.CandleInterval
}

// NewCache creates a Cache backed by the given broker.
func NewCache(b broker.Broker, log zerolog.Logger) *Cache {
	return &Cache{
		broker:  b,
		log:     log.With().Str("component", "marketdata").Logger(),
		prices:  make(map[string]domain.PricePoint),
		candles: make(map[candleKey][]domain.Candle),
	}
}

// RefreshPrices fetches last prices from the broker, replaces the cached
// map, and returns a copy of the fresh snapshot.
func (c *Cache) RefreshPrices(ctx context.Context, figis []string) (map[string]domain.PricePoint, error) {
	prices, err := c.broker.GetLastPrices(ctx, figis)
	if err != nil {
		c.log.Error().Err(err).Msg("price refresh failed")
		return nil, err
	}

	c.mu.Lock()
	for figi, p := range prices {
		c.prices[figi] = p
	}
	c.mu.Unlock()

	return copyPrices(prices), nil
}

// Prices returns a copy of the cached price map.
func (c *Cache) Prices() map[string]domain.PricePoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyPrices(c.prices)
}

// LastPrice returns the cached price point for figi, if one is known.
func (c *Cache) LastPrice(figi string) (domain.PricePoint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[figi]
	return p, ok
}

// Candles fetches a fresh candle series for figi at the given interval,
// caches it as the latest snapshot, and returns it.
func (c *Cache) Candles(ctx context.Context, figi string, interval domain.CandleInterval, lookback time.Duration) ([]domain.Candle, error) {
	candles, err := c.broker.GetCandles(ctx, figi, interval, lookback)
	if err != nil {
		c.log.Error().Err(err).Str("figi", figi).Msg("candle refresh failed")
		return nil, err
	}

	c.mu.Lock()
	c.candles[candleKey{figi: figi, interval: interval}] = candles
	c.mu.Unlock()

	out := make([]domain.Candle, len(candles))
	copy(out, candles)
	return out, nil
}

// LastCandles returns the most recently fetched candle series for figi at
// the given interval, if any.
func (c *Cache) LastCandles(figi string, interval domain.CandleInterval) ([]domain.Candle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	candles, ok := c.candles[candleKey{figi: figi, interval: interval}]
	if !ok {
		return nil, false
	}
	out := make([]domain.Candle, len(candles))
	copy(out, candles)
	return out, true
}

func copyPrices(in map[string]domain.PricePoint) map[string]domain.PricePoint {
	out := make(map[string]domain.PricePoint, len(in))
	for figi, p := range in {
		out[figi] = p
	}
	return out
}
