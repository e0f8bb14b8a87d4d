package engine

import (
	"fmt"

	"sandtrader/internal/domain"
)

// RiskManager enforces pre-trade limits. A zero limit disables that check.
type RiskManager struct {
	maxLotsPerOrder int64
	maxOpenOrders   int
}

// NewRiskManager creates a RiskManager.
//
//   - maxLotsPerOrder: largest single order the engine may submit.
//   - maxOpenOrders: most non-terminal orders allowed before new buys are
//     held back. Sells are exempt so the account can always flatten.
func NewRiskManager(maxLotsPerOrder int64, maxOpenOrders int) *RiskManager {
	return &RiskManager{
		maxLotsPerOrder: maxLotsPerOrder,
		maxOpenOrders:   maxOpenOrders,
	}
}

// CheckOrder evaluates a proposed order against the configured limits.
func (rm *RiskManager) CheckOrder(direction domain.Direction, lots int64, openOrders int) error {
	if rm.maxLotsPerOrder > 0 && lots > rm.maxLotsPerOrder {
		return fmt.Errorf("order of %d lots exceeds per-order limit %d", lots, rm.maxLotsPerOrder)
	}
	if rm.maxOpenOrders > 0 && direction == domain.Buy && openOrders >= rm.maxOpenOrders {
		return fmt.Errorf("%d open orders at limit %d, buy held back", openOrders, rm.maxOpenOrders)
	}
	return nil
}
