// Package sandtrader provides a Go SDK for the sandtrader dashboard API.
package sandtrader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client talks to a running sandtrader server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL, e.g.
// "http://localhost:8080".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Status is the bot status report.
type Status struct {
	Broker  string `json:"broker"`
	Trading string `json:"trading"`
	Account string `json:"account"`
}

// Money mirrors the server's units/nano money representation.
type Money struct {
	Units    int64  `json:"units,string"`
	Nano     int32  `json:"nano"`
	Currency string `json:"currency"`
}

// Float64 returns the approximate decimal value.
func (m Money) Float64() float64 {
	return float64(m.Units) + float64(m.Nano)/1e9
}

// Position is one holding in the portfolio.
type Position struct {
	FIGI     string  `json:"figi"`
	Quantity float64 `json:"quantity"`
}

// Portfolio is the account snapshot.
type Portfolio struct {
	Total     Money      `json:"total"`
	Positions []Position `json:"positions"`
}

// PricePoint is a quoted price with its timestamp.
type PricePoint struct {
	Price Money     `json:"price"`
	Time  time.Time `json:"time"`
}

// Instrument describes one tradeable instrument.
type Instrument struct {
	FIGI   string `json:"figi"`
	Name   string `json:"name"`
	Ticker string `json:"ticker"`
}

// Trade is one journaled trade.
type Trade struct {
	FIGI      string    `json:"figi"`
	Direction string    `json:"direction"`
	Price     float64   `json:"price"`
	Quantity  int64     `json:"quantity"`
	Time      time.Time `json:"time"`
}

// Article is one news headline.
type Article struct {
	Time     time.Time `json:"time"`
	Source   string    `json:"source"`
	Headline string    `json:"headline"`
	Content  string    `json:"content"`
	Link     string    `json:"link,omitempty"`
}

// GetStatus retrieves the bot status.
func (c *Client) GetStatus(ctx context.Context) (*Status, error) {
	var s Status
	if err := c.get(ctx, "/api/v1/status", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetPortfolio retrieves the current portfolio snapshot.
func (c *Client) GetPortfolio(ctx context.Context) (*Portfolio, error) {
	var p Portfolio
	if err := c.get(ctx, "/api/v1/portfolio", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPrices retrieves last prices for the configured instruments.
func (c *Client) GetPrices(ctx context.Context) (map[string]PricePoint, error) {
	var prices map[string]PricePoint
	if err := c.get(ctx, "/api/v1/prices", nil, &prices); err != nil {
		return nil, err
	}
	return prices, nil
}

// GetInstruments lists tradeable instruments.
func (c *Client) GetInstruments(ctx context.Context) ([]Instrument, error) {
	var instruments []Instrument
	if err := c.get(ctx, "/api/v1/instruments", nil, &instruments); err != nil {
		return nil, err
	}
	return instruments, nil
}

// GetTrades retrieves the trade journal, newest first.
func (c *Client) GetTrades(ctx context.Context, limit int) ([]Trade, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var trades []Trade
	if err := c.get(ctx, "/api/v1/trades", q, &trades); err != nil {
		return nil, err
	}
	return trades, nil
}

// GetNews retrieves the latest headlines. source narrows the fetch to one
// named source; empty (or "all") fetches every source.
func (c *Client) GetNews(ctx context.Context, source string, limit int) ([]Article, error) {
	q := url.Values{}
	if source != "" {
		q.Set("source", source)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var articles []Article
	if err := c.get(ctx, "/api/v1/news", q, &articles); err != nil {
		return nil, err
	}
	return articles, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, v any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s (status %d)", path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
