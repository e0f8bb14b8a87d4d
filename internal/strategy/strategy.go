// Package strategy defines the Strategy interface for trading decisions and
// provides a Registry for managing multiple strategy implementations.
package strategy

import (
	"context"
	"sort"

	"sandtrader/internal/domain"
)

// Snapshot is the read-only view of account state a strategy decides from.
// It reflects a single point in time; strategies must not assume the
// portfolio and open-order list stay consistent after the call returns.
type Snapshot struct {
	Portfolio  domain.Portfolio
	OpenOrders []domain.Order
}

// Decision is a single intended trade. Quantity is expressed in instrument
// units and may be fractional; the engine converts it to whole lots before
// submission.
type Decision struct {
	FIGI      string
	Direction domain.Direction
	Quantity  float64
}

// Strategy is the interface that all trading strategies must implement.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Decide inspects the snapshot and returns zero or more trade
	// decisions. Returning an empty slice means hold.
	Decide(ctx context.Context, snap Snapshot) ([]Decision, error)
}

// Registry holds a named collection of strategies for lookup and enumeration.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
