package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sandtrader/internal/domain"
	"sandtrader/internal/util"
)

// RPC method names of the sandbox invest API. Every call is an HTTP POST of
// a JSON body to <baseURL>/<method> with a bearer token.
const (
	epGetAccounts     = "tinkoff.public.invest.api.contract.v1.UsersService/GetAccounts"
	epOpenAccount     = "tinkoff.public.invest.api.contract.v1.SandboxService/OpenSandboxAccount"
	epPayIn           = "tinkoff.public.invest.api.contract.v1.SandboxService/SandboxPayIn"
	epGetPortfolio    = "tinkoff.public.invest.api.contract.v1.OperationsService/GetPortfolio"
	epGetLastPrices   = "tinkoff.public.invest.api.contract.v1.MarketDataService/GetLastPrices"
	epGetCandles      = "tinkoff.public.invest.api.contract.v1.MarketDataService/GetCandles"
	epListShares      = "tinkoff.public.invest.api.contract.v1.InstrumentsService/Shares"
	epPostOrder       = "tinkoff.public.invest.api.contract.v1.OrdersService/PostOrder"
	epGetOrderState   = "tinkoff.public.invest.api.contract.v1.OrdersService/GetOrderState"
	epCancelOrder     = "tinkoff.public.invest.api.contract.v1.OrdersService/CancelOrder"
	epGetOrders       = "tinkoff.public.invest.api.contract.v1.OrdersService/GetOrders"
)

// maxLoggedBody caps response bodies captured into error logs.
const maxLoggedBody = 500

// Compile-time interface check.
var _ Broker = (*InvestClient)(nil)

// InvestClient implements Broker against the sandbox invest REST API.
type InvestClient struct {
	token      string
	baseURL    string
	httpClient *http.Client
	limiter    *util.RateLimiter
	log        zerolog.Logger
}

// NewInvestClient creates a client for the sandbox invest API. timeout
// bounds every individual call; ratePerMinute paces requests so a busy
// cycle cannot burst the API.
func NewInvestClient(token, baseURL string, timeout time.Duration, ratePerMinute int, log zerolog.Logger) *InvestClient {
	return &InvestClient{
		token:      token,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    util.NewRateLimiter(ratePerMinute),
		log:        log.With().Str("component", "invest-client").Logger(),
	}
}

// Name returns "invest-sandbox".
func (c *InvestClient) Name() string {
	return "invest-sandbox"
}

// call posts req as JSON to the named RPC method and decodes the response
// into resp. Failures come back classified.
func (c *InvestClient) call(ctx context.Context, endpoint string, req, resp any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return transportErr(endpoint, err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return invalidArgErr(endpoint, err)
	}

	url := c.baseURL + "/" + endpoint
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return invalidArgErr(endpoint, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.log.Error().Err(err).Str("endpoint", endpoint).Msg("request failed")
		return transportErr(endpoint, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return transportErr(endpoint, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		capped := string(raw)
		if len(capped) > maxLoggedBody {
			capped = capped[:maxLoggedBody] + "..."
		}
		c.log.Error().
			Int("status", httpResp.StatusCode).
			Str("endpoint", endpoint).
			Str("body", capped).
			Msg("API returned non-200 status")
		return classifyStatus(endpoint, httpResp.StatusCode, capped)
	}

	if resp != nil {
		if err := json.Unmarshal(raw, resp); err != nil {
			return &Error{Kind: KindUnknown, Endpoint: endpoint, Err: fmt.Errorf("decoding response: %w", err)}
		}
	}
	return nil
}

// flexInt64 tolerates the API's habit of sending integers as strings
// ("100") in some fields and bare numbers in others.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	s := string(data)
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*f = flexInt64(v)
	return nil
}

// GetOrCreateAccount lists existing sandbox accounts and returns the first;
// only when none exist does it open a new one. That makes the call
// idempotent: two sequential calls return the same account id.
func (c *InvestClient) GetOrCreateAccount(ctx context.Context) (string, error) {
	var listResp struct {
		Accounts []struct {
			ID string `json:"id"`
		} `json:"accounts"`
	}
	if err := c.call(ctx, epGetAccounts, struct{}{}, &listResp); err != nil {
		return "", err
	}
	if len(listResp.Accounts) > 0 {
		c.log.Info().Str("account_id", listResp.Accounts[0].ID).Msg("using existing sandbox account")
		return listResp.Accounts[0].ID, nil
	}

	var openResp struct {
		AccountID string `json:"accountId"`
	}
	if err := c.call(ctx, epOpenAccount, struct{}{}, &openResp); err != nil {
		return "", err
	}
	c.log.Info().Str("account_id", openResp.AccountID).Msg("opened new sandbox account")
	return openResp.AccountID, nil
}

// PayIn deposits sandbox funds into the account.
func (c *InvestClient) PayIn(ctx context.Context, accountID string, amount domain.Money) error {
	req := struct {
		AccountID string       `json:"accountId"`
		Amount    domain.Money `json:"amount"`
	}{AccountID: accountID, Amount: amount}

	if err := c.call(ctx, epPayIn, req, nil); err != nil {
		c.log.Error().Err(err).Str("account_id", accountID).Msg("sandbox pay-in failed")
		return err
	}
	c.log.Info().Str("account_id", accountID).Str("amount", amount.String()).Msg("sandbox pay-in")
	return nil
}

// GetPortfolio returns a fresh snapshot of total valuation and positions.
func (c *InvestClient) GetPortfolio(ctx context.Context, accountID string) (*domain.Portfolio, error) {
	req := struct {
		AccountID string `json:"accountId"`
	}{AccountID: accountID}

	var resp struct {
		TotalAmountPortfolio domain.Money `json:"totalAmountPortfolio"`
		Positions            []struct {
			FIGI     string       `json:"figi"`
			Quantity domain.Money `json:"quantity"`
		} `json:"positions"`
	}
	if err := c.call(ctx, epGetPortfolio, req, &resp); err != nil {
		c.log.Error().Err(err).Str("account_id", accountID).Msg("portfolio fetch failed")
		return nil, err
	}

	p := &domain.Portfolio{Total: resp.TotalAmountPortfolio}
	for _, pos := range resp.Positions {
		p.Positions = append(p.Positions, domain.Position{
			FIGI:     pos.FIGI,
			Quantity: pos.Quantity.Float64(),
		})
	}
	return p, nil
}

// GetLastPrices returns the last known price per instrument.
func (c *InvestClient) GetLastPrices(ctx context.Context, figis []string) (map[string]domain.PricePoint, error) {
	req := struct {
		FIGI []string `json:"figi,omitempty"`
	}{FIGI: figis}

	var resp struct {
		LastPrices []struct {
			FIGI  string       `json:"figi"`
			Price domain.Money `json:"price"`
			Time  time.Time    `json:"time"`
		} `json:"lastPrices"`
	}
	if err := c.call(ctx, epGetLastPrices, req, &resp); err != nil {
		c.log.Error().Err(err).Msg("last prices fetch failed")
		return nil, err
	}

	prices := make(map[string]domain.PricePoint, len(resp.LastPrices))
	for _, lp := range resp.LastPrices {
		prices[lp.FIGI] = domain.PricePoint{Price: lp.Price, Time: lp.Time}
	}
	return prices, nil
}

// GetCandles returns chronological candles for [now-lookback, now) in UTC.
// The interval is validated before any network traffic.
func (c *InvestClient) GetCandles(ctx context.Context, figi string, interval domain.CandleInterval, lookback time.Duration) ([]domain.Candle, error) {
	if !interval.Valid() {
		return nil, invalidArgErr(epGetCandles, fmt.Errorf("invalid candle interval %q", interval))
	}

	end := time.Now().UTC()
	start := end.Add(-lookback)

	req := struct {
		FIGI     string `json:"figi"`
		From     string `json:"from"`
		To       string `json:"to"`
		Interval string `json:"interval"`
	}{
		FIGI:     figi,
		From:     start.Format(time.RFC3339),
		To:       end.Format(time.RFC3339),
		Interval: "CANDLE_INTERVAL_" + string(interval),
	}

	var resp struct {
		Candles []struct {
			Time   time.Time    `json:"time"`
			Open   domain.Money `json:"open"`
			High   domain.Money `json:"high"`
			Low    domain.Money `json:"low"`
			Close  domain.Money `json:"close"`
			Volume flexInt64    `json:"volume"`
		} `json:"candles"`
	}
	if err := c.call(ctx, epGetCandles, req, &resp); err != nil {
		c.log.Error().Err(err).Str("figi", figi).Str("interval", string(interval)).Msg("candles fetch failed")
		return nil, err
	}

	candles := make([]domain.Candle, 0, len(resp.Candles))
	for _, cd := range resp.Candles {
		candles = append(candles, domain.Candle{
			FIGI:   figi,
			Time:   cd.Time,
			Open:   cd.Open.Float64(),
			High:   cd.High.Float64(),
			Low:    cd.Low.Float64(),
			Close:  cd.Close.Float64(),
			Volume: int64(cd.Volume),
		})
	}
	c.log.Debug().Str("figi", figi).Int("count", len(candles)).Msg("candles fetched")
	return candles, nil
}

// ListInstruments returns the tradeable shares known to the broker.
func (c *InvestClient) ListInstruments(ctx context.Context) ([]domain.Instrument, error) {
	var resp struct {
		Instruments []struct {
			FIGI   string    `json:"figi"`
			Name   string    `json:"name"`
			Ticker string    `json:"ticker"`
			Lot    flexInt64 `json:"lot"`
		} `json:"instruments"`
	}
	if err := c.call(ctx, epListShares, struct{}{}, &resp); err != nil {
		c.log.Error().Err(err).Msg("instrument list fetch failed")
		return nil, err
	}

	instruments := make([]domain.Instrument, 0, len(resp.Instruments))
	for _, in := range resp.Instruments {
		instruments = append(instruments, domain.Instrument{
			FIGI:   in.FIGI,
			Name:   in.Name,
			Ticker: in.Ticker,
			Lot:    int64(in.Lot),
		})
	}
	return instruments, nil
}

// SubmitOrder places a market order. The orderId field is a fresh UUID per
// call so the broker can tell repeated submissions apart; the client never
// retries this call on its own.
func (c *InvestClient) SubmitOrder(ctx context.Context, accountID, figi string, direction domain.Direction, lots int64) (string, error) {
	if lots <= 0 {
		return "", invalidArgErr(epPostOrder, fmt.Errorf("lots must be positive, got %d", lots))
	}
	if direction != domain.Buy && direction != domain.Sell {
		return "", invalidArgErr(epPostOrder, fmt.Errorf("invalid direction %q", direction))
	}

	idempotencyKey := uuid.NewString()
	req := struct {
		FIGI      string `json:"figi"`
		Quantity  int64  `json:"quantity"`
		Direction string `json:"direction"`
		AccountID string `json:"accountId"`
		OrderType string `json:"orderType"`
		OrderID   string `json:"orderId"`
	}{
		FIGI:      figi,
		Quantity:  lots,
		Direction: direction.WireName(),
		AccountID: accountID,
		OrderType: "ORDER_TYPE_MARKET",
		OrderID:   idempotencyKey,
	}

	var resp struct {
		OrderID               string `json:"orderId"`
		ExecutionReportStatus string `json:"executionReportStatus"`
		Message               string `json:"message"`
	}
	if err := c.call(ctx, epPostOrder, req, &resp); err != nil {
		c.log.Error().Err(err).
			Str("account_id", accountID).
			Str("figi", figi).
			Str("direction", string(direction)).
			Int64("lots", lots).
			Msg("order submission failed")
		return "", err
	}

	if resp.ExecutionReportStatus == "EXECUTION_REPORT_STATUS_REJECTED" {
		err := rejectedErr(epPostOrder, fmt.Errorf("order rejected: %s", resp.Message))
		c.log.Warn().Str("figi", figi).Str("message", resp.Message).Msg("order rejected by broker")
		return "", err
	}

	c.log.Info().
		Str("order_id", resp.OrderID).
		Str("figi", figi).
		Str("direction", string(direction)).
		Int64("lots", lots).
		Msg("order submitted")
	return resp.OrderID, nil
}

// orderStatusFromWire maps the API's execution report status onto the
// OrderStatus enum. Anything unrecognised is Unknown rather than a guess.
func orderStatusFromWire(s string) domain.OrderStatus {
	switch s {
	case "EXECUTION_REPORT_STATUS_NEW":
		return domain.StatusSubmitted
	case "EXECUTION_REPORT_STATUS_PARTIALLYFILL":
		return domain.StatusPartiallyFilled
	case "EXECUTION_REPORT_STATUS_FILL":
		return domain.StatusFilled
	case "EXECUTION_REPORT_STATUS_CANCELLED":
		return domain.StatusCancelled
	case "EXECUTION_REPORT_STATUS_REJECTED":
		return domain.StatusRejected
	}
	return domain.StatusUnknown
}

// GetOrderState fetches the broker's view of an order's status.
func (c *InvestClient) GetOrderState(ctx context.Context, accountID, orderID string) (domain.OrderStatus, error) {
	req := struct {
		AccountID string `json:"accountId"`
		OrderID   string `json:"orderId"`
	}{AccountID: accountID, OrderID: orderID}

	var resp struct {
		ExecutionReportStatus string `json:"executionReportStatus"`
	}
	if err := c.call(ctx, epGetOrderState, req, &resp); err != nil {
		c.log.Error().Err(err).Str("account_id", accountID).Str("order_id", orderID).Msg("order state fetch failed")
		return domain.StatusUnknown, err
	}
	return orderStatusFromWire(resp.ExecutionReportStatus), nil
}

// CancelOrder requests cancellation; confirmation comes via GetOrderState.
func (c *InvestClient) CancelOrder(ctx context.Context, accountID, orderID string) error {
	req := struct {
		AccountID string `json:"accountId"`
		OrderID   string `json:"orderId"`
	}{AccountID: accountID, OrderID: orderID}

	if err := c.call(ctx, epCancelOrder, req, nil); err != nil {
		c.log.Error().Err(err).Str("account_id", accountID).Str("order_id", orderID).Msg("order cancel failed")
		return err
	}
	c.log.Info().Str("order_id", orderID).Msg("order cancellation requested")
	return nil
}

// ListOpenOrders returns the currently active orders on the account.
func (c *InvestClient) ListOpenOrders(ctx context.Context, accountID string) ([]domain.Order, error) {
	req := struct {
		AccountID string `json:"accountId"`
	}{AccountID: accountID}

	var resp struct {
		Orders []struct {
			OrderID               string    `json:"orderId"`
			FIGI                  string    `json:"figi"`
			Direction             string    `json:"direction"`
			LotsRequested         flexInt64 `json:"lotsRequested"`
			ExecutionReportStatus string    `json:"executionReportStatus"`
			OrderDate             time.Time `json:"orderDate"`
		} `json:"orders"`
	}
	if err := c.call(ctx, epGetOrders, req, &resp); err != nil {
		c.log.Error().Err(err).Str("account_id", accountID).Msg("open orders fetch failed")
		return nil, err
	}

	orders := make([]domain.Order, 0, len(resp.Orders))
	for _, o := range resp.Orders {
		dir := domain.Buy
		if o.Direction == domain.Sell.WireName() {
			dir = domain.Sell
		}
		orders = append(orders, domain.Order{
			ID:        o.OrderID,
			FIGI:      o.FIGI,
			Direction: dir,
			Lots:      int64(o.LotsRequested),
			Status:    orderStatusFromWire(o.ExecutionReportStatus),
			CreatedAt: o.OrderDate,
		})
	}
	return orders, nil
}
