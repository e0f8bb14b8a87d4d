// Package builtins provides built-in strategy implementations that ship with
// sandtrader.
package builtins

import (
	"context"

	"sandtrader/internal/domain"
	"sandtrader/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*Threshold)(nil)

// Threshold implements the cash-threshold rotation rule: when the account
// holds no positions and the portfolio value clears the threshold, buy a
// fixed quantity of the target instrument; when any positions are held,
// liquidate all of them. Otherwise hold.
type Threshold struct {
	figi      string
	threshold domain.Money
	quantity  float64
}

// NewThreshold creates a Threshold strategy that trades figi, buying
// quantity units whenever the portfolio value is at least threshold and the
// account is flat.
func NewThreshold(figi string, threshold domain.Money, quantity float64) *Threshold {
	return &Threshold{
		figi:      figi,
		threshold: threshold,
		quantity:  quantity,
	}
}

// Name returns "threshold".
func (t *Threshold) Name() string {
	return "threshold"
}

// Decide applies the rotation rule to the snapshot.
func (t *Threshold) Decide(_ context.Context, snap strategy.Snapshot) ([]strategy.Decision, error) {
	if snap.Portfolio.HasPositions() {
		decisions := make([]strategy.Decision, 0, len(snap.Portfolio.Positions))
		for _, pos := range snap.Portfolio.Positions {
			if pos.Quantity <= 0 {
				continue
			}
			decisions = append(decisions, strategy.Decision{
				FIGI:      pos.FIGI,
				Direction: domain.Sell,
				Quantity:  pos.Quantity,
			})
		}
		return decisions, nil
	}

	if snap.Portfolio.Total.Cmp(t.threshold) >= 0 {
		return []strategy.Decision{{
			FIGI:      t.figi,
			Direction: domain.Buy,
			Quantity:  t.quantity,
		}}, nil
	}

	return nil, nil
}
