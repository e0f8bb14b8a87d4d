package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// NanoFactor is the fractional scale of a Money value: one unit is
// 1e9 nanounits.
const NanoFactor = 1_000_000_000

// Money is an exact decimal amount: integer major units plus a fractional
// nanounit component in [0, NanoFactor), and a currency code. It is the only
// representation used for monetary comparisons and storage; conversion to
// float64 happens at presentation boundaries only.
type Money struct {
	Units    int64
	Nano     int32
	Currency string
}

// NewMoney builds a normalized Money from units and nanounits. The nano
// component may be negative or exceed NanoFactor; the carry is folded into
// units so the result always satisfies 0 <= Nano < NanoFactor.
func NewMoney(units int64, nano int64, currency string) Money {
	total := units*NanoFactor + nano
	u := total / NanoFactor
	n := total % NanoFactor
	if n < 0 {
		u--
		n += NanoFactor
	}
	return Money{Units: u, Nano: int32(n), Currency: currency}
}

// MoneyFromFloat converts a display value into Money, rounding to the
// nearest nanounit.
func MoneyFromFloat(v float64, currency string) Money {
	total := int64(math.Round(v * NanoFactor))
	return NewMoney(0, total, currency)
}

// Float64 returns the display value of m. Only for presentation; never use
// the result for comparisons or storage.
func (m Money) Float64() float64 {
	return float64(m.Units) + float64(m.Nano)/NanoFactor
}

// Cmp compares m against other, ignoring currency: -1 if m < other, 0 if
// equal, +1 if m > other.
func (m Money) Cmp(other Money) int {
	a := m.Units*NanoFactor + int64(m.Nano)
	b := other.Units*NanoFactor + int64(other.Nano)
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// IsZero reports whether m has a zero amount.
func (m Money) IsZero() bool {
	return m.Units == 0 && m.Nano == 0
}

func (m Money) String() string {
	return fmt.Sprintf("%.2f %s", m.Float64(), m.Currency)
}

// moneyWire is the broker wire form of a Money value: units are transmitted
// as a decimal string, nano as a number.
type moneyWire struct {
	Units json.RawMessage `json:"units"`
	Nano  int32           `json:"nano"`
	Curr  string          `json:"currency,omitempty"`
}

// MarshalJSON encodes m in the broker wire format {units, nano, currency}
// with units as a string.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyWire{
		Units: json.RawMessage(strconv.Quote(strconv.FormatInt(m.Units, 10))),
		Nano:  m.Nano,
		Curr:  m.Currency,
	})
}

// UnmarshalJSON decodes the broker wire format. Units may arrive as either a
// JSON string or a bare number; the decoded value is normalized.
func (m *Money) UnmarshalJSON(data []byte) error {
	var w moneyWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	units := int64(0)
	if len(w.Units) > 0 {
		s := string(w.Units)
		if unq, err := strconv.Unquote(s); err == nil {
			s = unq
		}
		if s != "" {
			u, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return fmt.Errorf("money units %s: %w", w.Units, err)
			}
			units = u
		}
	}
	*m = NewMoney(units, int64(w.Nano), w.Curr)
	return nil
}
