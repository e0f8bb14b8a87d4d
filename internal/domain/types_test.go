package domain

import "testing"

func TestParseInterval(t *testing.T) {
	cases := []struct {
		in   string
		want CandleInterval
	}{
		{"1m", IntervalMinute},
		{"5m", IntervalFiveMinute},
		{"15m", IntervalQuarterHour},
		{"1h", IntervalHour},
		{"1d", IntervalDay},
		{"HOUR", IntervalHour},
		{"DAY", IntervalDay},
	}
	for _, tc := range cases {
		got, err := ParseInterval(tc.in)
		if err != nil {
			t.Errorf("ParseInterval(%q) returned error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseInterval(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseIntervalRejectsUnknown(t *testing.T) {
	for _, in := range []string{"", "2h", "WEEK", "minute"} {
		if _, err := ParseInterval(in); err == nil {
			t.Errorf("ParseInterval(%q) should fail", in)
		}
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	terminal := []OrderStatus{StatusFilled, StatusCancelled, StatusRejected}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	open := []OrderStatus{StatusPending, StatusSubmitted, StatusPartiallyFilled, StatusUnknown}
	for _, s := range open {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestDirectionWireName(t *testing.T) {
	if got := Buy.WireName(); got != "ORDER_DIRECTION_BUY" {
		t.Errorf("Buy.WireName() = %q", got)
	}
	if got := Sell.WireName(); got != "ORDER_DIRECTION_SELL" {
		t.Errorf("Sell.WireName() = %q", got)
	}
}
