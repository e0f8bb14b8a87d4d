package builtins

import (
	"context"
	"testing"

	"sandtrader/internal/domain"
	"sandtrader/internal/strategy"
)

func rub(units int64) domain.Money {
	return domain.NewMoney(units, 0, "rub")
}

func TestThresholdBuysWhenFlatAndFunded(t *testing.T) {
	s := NewThreshold("BBG0013HGFT4", rub(1000), 1)
	snap := strategy.Snapshot{
		Portfolio: domain.Portfolio{Total: rub(1500)},
	}

	decisions, err := s.Decide(context.Background(), snap)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if len(decisions) != 1 {
		t.Fatalf("got %d decisions, want 1", len(decisions))
	}
	d := decisions[0]
	if d.Direction != domain.Buy || d.FIGI != "BBG0013HGFT4" || d.Quantity != 1 {
		t.Errorf("decision = %+v", d)
	}
}

func TestThresholdHoldsWhenFlatAndUnderfunded(t *testing.T) {
	s := NewThreshold("BBG0013HGFT4", rub(1000), 1)
	snap := strategy.Snapshot{
		Portfolio: domain.Portfolio{Total: rub(500)},
	}

	decisions, err := s.Decide(context.Background(), snap)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if len(decisions) != 0 {
		t.Errorf("got %d decisions, want hold", len(decisions))
	}
}

func TestThresholdSellsHeldPositions(t *testing.T) {
	s := NewThreshold("BBG0013HGFT4", rub(1000), 1)
	snap := strategy.Snapshot{
		Portfolio: domain.Portfolio{
			Total: rub(500),
			Positions: []domain.Position{
				{FIGI: "BBG0013HGFT4", Quantity: 3},
			},
		},
	}

	decisions, err := s.Decide(context.Background(), snap)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if len(decisions) != 1 {
		t.Fatalf("got %d decisions, want 1", len(decisions))
	}
	d := decisions[0]
	if d.Direction != domain.Sell || d.Quantity != 3 {
		t.Errorf("decision = %+v", d)
	}
}

func TestThresholdSellsEveryPositionEvenWhenFunded(t *testing.T) {
	// Positions take precedence over the cash rule: a funded account that
	// still holds instruments liquidates instead of buying more.
	s := NewThreshold("BBG0013HGFT4", rub(1000), 1)
	snap := strategy.Snapshot{
		Portfolio: domain.Portfolio{
			Total: rub(5000),
			Positions: []domain.Position{
				{FIGI: "BBG0013HGFT4", Quantity: 2},
				{FIGI: "BBG004S68CV8", Quantity: 4.5},
			},
		},
	}

	decisions, err := s.Decide(context.Background(), snap)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if len(decisions) != 2 {
		t.Fatalf("got %d decisions, want 2", len(decisions))
	}
	for _, d := range decisions {
		if d.Direction != domain.Sell {
			t.Errorf("decision %+v should be a sell", d)
		}
	}
	if decisions[1].Quantity != 4.5 {
		t.Errorf("second sell quantity = %v, want the full held 4.5", decisions[1].Quantity)
	}
}

func TestThresholdComparesExactAmounts(t *testing.T) {
	s := NewThreshold("BBG0013HGFT4", rub(1000), 1)

	// One nanounit short of the threshold holds; the exact amount buys.
	under := strategy.Snapshot{
		Portfolio: domain.Portfolio{Total: domain.NewMoney(999, 999_999_999, "rub")},
	}
	decisions, err := s.Decide(context.Background(), under)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if len(decisions) != 0 {
		t.Errorf("got %d decisions just under the threshold, want hold", len(decisions))
	}

	exact := strategy.Snapshot{Portfolio: domain.Portfolio{Total: rub(1000)}}
	decisions, err = s.Decide(context.Background(), exact)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if len(decisions) != 1 || decisions[0].Direction != domain.Buy {
		t.Errorf("decisions = %+v, want one buy at the exact threshold", decisions)
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	reg := strategy.NewRegistry()
	reg.Register(NewThreshold("BBG0013HGFT4", rub(1000), 1))

	if _, ok := reg.Get("threshold"); !ok {
		t.Fatal("threshold strategy not found in registry")
	}
	names := reg.List()
	if len(names) != 1 || names[0] != "threshold" {
		t.Errorf("List() = %v", names)
	}
}
