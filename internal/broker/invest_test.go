package broker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"sandtrader/internal/domain"
)

func newTestClient(t *testing.T, handler http.Handler) (*InvestClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewInvestClient("test-token", srv.URL, 2*time.Second, 6000, zerolog.Nop())
	return c, srv
}

func TestGetOrCreateAccountIdempotent(t *testing.T) {
	var created atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "UsersService/GetAccounts"):
			if created.Load() == 0 {
				json.NewEncoder(w).Encode(map[string]any{"accounts": []any{}})
			} else {
				json.NewEncoder(w).Encode(map[string]any{
					"accounts": []map[string]string{{"id": "acc-1"}},
				})
			}
		case strings.HasSuffix(r.URL.Path, "SandboxService/OpenSandboxAccount"):
			created.Add(1)
			json.NewEncoder(w).Encode(map[string]string{"accountId": "acc-1"})
		default:
			t.Errorf("unexpected endpoint %s", r.URL.Path)
		}
	})
	c, _ := newTestClient(t, handler)

	first, err := c.GetOrCreateAccount(context.Background())
	if err != nil {
		t.Fatalf("first GetOrCreateAccount: %v", err)
	}
	second, err := c.GetOrCreateAccount(context.Background())
	if err != nil {
		t.Fatalf("second GetOrCreateAccount: %v", err)
	}
	if first != second {
		t.Errorf("account ids differ: %q vs %q", first, second)
	}
	if got := created.Load(); got != 1 {
		t.Errorf("OpenSandboxAccount called %d times, want 1", got)
	}
}

func TestGetCandlesInvalidIntervalNoNetworkCall(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	c, _ := newTestClient(t, handler)

	_, err := c.GetCandles(context.Background(), "BBG0013HGFT4", domain.CandleInterval("WEEK"), 24*time.Hour)
	var be *Error
	if !errors.As(err, &be) || be.Kind != KindInvalidArgument {
		t.Fatalf("expected invalid-argument error, got %v", err)
	}
	if hits.Load() != 0 {
		t.Errorf("invalid interval issued %d network calls, want 0", hits.Load())
	}
}

func TestSubmitOrderUniqueIdempotencyKeys(t *testing.T) {
	var keys []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			OrderID   string `json:"orderId"`
			Direction string `json:"direction"`
			Quantity  int64  `json:"quantity"`
			OrderType string `json:"orderType"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding order request: %v", err)
		}
		if req.Direction != "ORDER_DIRECTION_BUY" {
			t.Errorf("direction = %q, want ORDER_DIRECTION_BUY", req.Direction)
		}
		if req.OrderType != "ORDER_TYPE_MARKET" {
			t.Errorf("orderType = %q, want ORDER_TYPE_MARKET", req.OrderType)
		}
		if req.Quantity != 2 {
			t.Errorf("quantity = %d, want 2", req.Quantity)
		}
		keys = append(keys, req.OrderID)
		json.NewEncoder(w).Encode(map[string]string{
			"orderId":               "broker-order-1",
			"executionReportStatus": "EXECUTION_REPORT_STATUS_NEW",
		})
	})
	c, _ := newTestClient(t, handler)

	for i := 0; i < 2; i++ {
		if _, err := c.SubmitOrder(context.Background(), "acc-1", "BBG0013HGFT4", domain.Buy, 2); err != nil {
			t.Fatalf("SubmitOrder: %v", err)
		}
	}
	if len(keys) != 2 {
		t.Fatalf("server saw %d submissions, want 2", len(keys))
	}
	if keys[0] == "" || keys[0] == keys[1] {
		t.Errorf("idempotency keys not unique: %q vs %q", keys[0], keys[1])
	}
}

func TestSubmitOrderValidatesBeforeNetwork(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	})
	c, _ := newTestClient(t, handler)

	_, err := c.SubmitOrder(context.Background(), "acc-1", "BBG0013HGFT4", domain.Buy, 0)
	if KindOf(err) != KindInvalidArgument {
		t.Errorf("lots=0: kind = %s, want %s", KindOf(err), KindInvalidArgument)
	}
	_, err = c.SubmitOrder(context.Background(), "acc-1", "BBG0013HGFT4", domain.Direction("HOLD"), 1)
	if KindOf(err) != KindInvalidArgument {
		t.Errorf("bad direction: kind = %s, want %s", KindOf(err), KindInvalidArgument)
	}
	if hits.Load() != 0 {
		t.Errorf("invalid submissions issued %d network calls, want 0", hits.Load())
	}
}

func TestSubmitOrderBrokerRejection(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"orderId":               "broker-order-9",
			"executionReportStatus": "EXECUTION_REPORT_STATUS_REJECTED",
			"message":               "not enough funds",
		})
	})
	c, _ := newTestClient(t, handler)

	_, err := c.SubmitOrder(context.Background(), "acc-1", "BBG0013HGFT4", domain.Buy, 1)
	if KindOf(err) != KindBrokerRejected {
		t.Errorf("kind = %s, want %s", KindOf(err), KindBrokerRejected)
	}
}

func TestAuthFailureClassification(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	c, _ := newTestClient(t, handler)

	_, err := c.GetOrCreateAccount(context.Background())
	if KindOf(err) != KindAuthFailed {
		t.Errorf("kind = %s, want %s", KindOf(err), KindAuthFailed)
	}
	if IsRetryable(err) {
		t.Error("auth failure must not be retryable")
	}
}

func TestServerErrorIsRetryable(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c, _ := newTestClient(t, handler)

	_, err := c.GetPortfolio(context.Background(), "acc-1")
	if !IsRetryable(err) {
		t.Errorf("500 should be retryable, got %v", err)
	}
}

func TestGetPortfolioParsing(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"totalAmountPortfolio": map[string]any{"units": "1500", "nano": 500000000, "currency": "rub"},
			"positions": []map[string]any{
				{"figi": "BBG0013HGFT4", "quantity": map[string]any{"units": "3", "nano": 0}},
				{"figi": "BBG004S68CV8", "quantity": map[string]any{"units": "2", "nano": 500000000}},
			},
		})
	})
	c, _ := newTestClient(t, handler)

	p, err := c.GetPortfolio(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("GetPortfolio: %v", err)
	}
	if p.Total.Units != 1500 || p.Total.Nano != 500000000 {
		t.Errorf("total = %+v", p.Total)
	}
	if len(p.Positions) != 2 {
		t.Fatalf("got %d positions, want 2", len(p.Positions))
	}
	if p.Positions[0].Quantity != 3 {
		t.Errorf("first position quantity = %v, want 3", p.Positions[0].Quantity)
	}
	if p.Positions[1].Quantity != 2.5 {
		t.Errorf("second position quantity = %v, want 2.5", p.Positions[1].Quantity)
	}
}

func TestGetCandlesParsing(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			From     string `json:"from"`
			To       string `json:"to"`
			Interval string `json:"interval"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding candles request: %v", err)
		}
		if req.Interval != "CANDLE_INTERVAL_HOUR" {
			t.Errorf("interval = %q", req.Interval)
		}
		if req.From == "" || req.To == "" {
			t.Error("candle window boundaries missing")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"candles": []map[string]any{
				{
					"time":   "2026-08-31T10:00:00Z",
					"open":   map[string]any{"units": "100", "nano": 0},
					"high":   map[string]any{"units": "101", "nano": 500000000},
					"low":    map[string]any{"units": "99", "nano": 0},
					"close":  map[string]any{"units": "100", "nano": 750000000},
					"volume": "1200",
				},
			},
		})
	})
	c, _ := newTestClient(t, handler)

	candles, err := c.GetCandles(context.Background(), "BBG004S68CV8", domain.IntervalHour, 24*time.Hour)
	if err != nil {
		t.Fatalf("GetCandles: %v", err)
	}
	if len(candles) != 1 {
		t.Fatalf("got %d candles, want 1", len(candles))
	}
	cd := candles[0]
	if cd.High != 101.5 || cd.Close != 100.75 {
		t.Errorf("candle = %+v", cd)
	}
	if cd.Volume != 1200 {
		t.Errorf("volume = %d, want 1200 (string-encoded on the wire)", cd.Volume)
	}
	if cd.FIGI != "BBG004S68CV8" {
		t.Errorf("figi = %q", cd.FIGI)
	}
}

func TestListInstrumentsParsing(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"instruments": []map[string]any{
				{"figi": "BBG004S68CV8", "name": "LUKOIL", "ticker": "LKOH", "lot": 1},
				{"figi": "BBG004730N88", "name": "Sberbank", "ticker": "SBER", "lot": "10"},
			},
		})
	})
	c, _ := newTestClient(t, handler)

	instruments, err := c.ListInstruments(context.Background())
	if err != nil {
		t.Fatalf("ListInstruments: %v", err)
	}
	if len(instruments) != 2 {
		t.Fatalf("got %d instruments, want 2", len(instruments))
	}
	if instruments[0].Lot != 1 {
		t.Errorf("first lot = %d, want 1", instruments[0].Lot)
	}
	// Lot sizes arrive as numbers or strings depending on the endpoint.
	if instruments[1].Lot != 10 {
		t.Errorf("second lot = %d, want 10", instruments[1].Lot)
	}
}

func TestListOpenOrdersParsing(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"orders": []map[string]any{
				{
					"orderId":               "ord-1",
					"figi":                  "BBG0013HGFT4",
					"direction":             "ORDER_DIRECTION_SELL",
					"lotsRequested":         "3",
					"executionReportStatus": "EXECUTION_REPORT_STATUS_NEW",
				},
			},
		})
	})
	c, _ := newTestClient(t, handler)

	orders, err := c.ListOpenOrders(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("ListOpenOrders: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("got %d orders, want 1", len(orders))
	}
	o := orders[0]
	if o.Direction != domain.Sell || o.Lots != 3 || o.Status != domain.StatusSubmitted {
		t.Errorf("order = %+v", o)
	}
}
