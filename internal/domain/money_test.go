package domain

import (
	"encoding/json"
	"testing"
)

func TestNewMoneyNormalizes(t *testing.T) {
	cases := []struct {
		name      string
		units     int64
		nano      int64
		wantUnits int64
		wantNano  int32
	}{
		{"plain", 10, 500_000_000, 10, 500_000_000},
		{"nano overflow carries", 1, 1_500_000_000, 2, 500_000_000},
		{"negative nano borrows", 2, -500_000_000, 1, 500_000_000},
		{"negative amount", -1, -500_000_000, -2, 500_000_000},
		{"zero", 0, 0, 0, 0},
	}
	for _, tc := range cases {
		m := NewMoney(tc.units, tc.nano, "rub")
		if m.Units != tc.wantUnits || m.Nano != tc.wantNano {
			t.Errorf("%s: NewMoney(%d, %d) = {%d %d}, want {%d %d}",
				tc.name, tc.units, tc.nano, m.Units, m.Nano, tc.wantUnits, tc.wantNano)
		}
		if m.Nano < 0 || int64(m.Nano) >= NanoFactor {
			t.Errorf("%s: nano %d outside [0, 1e9)", tc.name, m.Nano)
		}
	}
}

func TestMoneyJSONRoundTrip(t *testing.T) {
	values := []Money{
		NewMoney(1500, 250_000_000, "rub"),
		NewMoney(0, 0, "rub"),
		NewMoney(-3, 999_999_999, "usd"),
		NewMoney(100000, 0, "rub"),
	}
	for _, m := range values {
		data, err := json.Marshal(m)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", m, err)
		}
		var got Money
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal(%s): %v", data, err)
		}
		if got != m {
			t.Errorf("round trip of %v produced %v (wire %s)", m, got, data)
		}
	}
}

func TestMoneyUnmarshalStringAndNumberUnits(t *testing.T) {
	for _, raw := range []string{
		`{"units":"42","nano":100000000,"currency":"rub"}`,
		`{"units":42,"nano":100000000,"currency":"rub"}`,
	} {
		var m Money
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			t.Fatalf("Unmarshal(%s): %v", raw, err)
		}
		if m.Units != 42 || m.Nano != 100_000_000 || m.Currency != "rub" {
			t.Errorf("Unmarshal(%s) = %+v", raw, m)
		}
	}
}

func TestMoneyCmp(t *testing.T) {
	a := NewMoney(1000, 0, "rub")
	b := NewMoney(999, 999_999_999, "rub")
	if a.Cmp(b) != 1 {
		t.Errorf("Cmp: %v should be greater than %v", a, b)
	}
	if b.Cmp(a) != -1 {
		t.Errorf("Cmp: %v should be less than %v", b, a)
	}
	if a.Cmp(a) != 0 {
		t.Errorf("Cmp: %v should equal itself", a)
	}
}

func TestMoneyFloat64(t *testing.T) {
	m := NewMoney(1, 500_000_000, "rub")
	if got := m.Float64(); got != 1.5 {
		t.Errorf("Float64() = %v, want 1.5", got)
	}
	neg := NewMoney(-2, 500_000_000, "rub")
	if got := neg.Float64(); got != -1.5 {
		t.Errorf("Float64() = %v, want -1.5", got)
	}
}

func TestMoneyFromFloat(t *testing.T) {
	m := MoneyFromFloat(1.5, "rub")
	if m.Units != 1 || m.Nano != 500_000_000 {
		t.Errorf("MoneyFromFloat(1.5) = {%d %d}, want {1 500000000}", m.Units, m.Nano)
	}
}
