package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"sandtrader/internal/domain"
	"sandtrader/internal/events"
)

// Command is one client request over the websocket.
type Command struct {
	Command  string `json:"command"`
	FIGI     string `json:"figi,omitempty"`
	Interval string `json:"interval,omitempty"`
	Source   string `json:"source,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// commandResponse is the direct reply to a Command. Broadcast events flow
// separately as events.Event frames.
type commandResponse struct {
	Type    events.Type `json:"type"`
	Command string      `json:"command"`
	OK      bool        `json:"ok"`
	Data    any         `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// chartLookback maps candle resolution to how far back a chart reaches.
var chartLookback = map[domain.CandleInterval]time.Duration{
	domain.IntervalMinute:      6 * time.Hour,
	domain.IntervalFiveMinute:  24 * time.Hour,
	domain.IntervalQuarterHour: 72 * time.Hour,
	domain.IntervalHour:        7 * 24 * time.Hour,
	domain.IntervalDay:         30 * 24 * time.Hour,
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS is handled at the router.
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	ctx := r.Context()
	subID, eventCh := s.deps.Bus.Subscribe(32)
	defer s.deps.Bus.Unsubscribe(subID)

	// Bus events are pushed from a separate goroutine; the read loop below
	// owns the connection lifetime.
	writeCtx, cancelWrites := context.WithCancel(ctx)
	defer cancelWrites()
	go func() {
		for {
			select {
			case <-writeCtx.Done():
				return
			case evt, ok := <-eventCh:
				if !ok {
					return
				}
				if err := wsjson.Write(writeCtx, conn, evt); err != nil {
					return
				}
			}
		}
	}()

	s.log.Info().Str("remote", r.RemoteAddr).Msg("websocket client connected")
	for {
		var cmd Command
		if err := wsjson.Read(ctx, conn, &cmd); err != nil {
			s.log.Info().Str("remote", r.RemoteAddr).Msg("websocket client disconnected")
			return
		}
		resp := s.dispatch(ctx, cmd)
		if err := wsjson.Write(ctx, conn, resp); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, cmd Command) commandResponse {
	resp := commandResponse{Type: events.TypeCommandResponse, Command: cmd.Command, OK: true}

	fail := func(err error) commandResponse {
		resp.OK = false
		resp.Error = err.Error()
		return resp
	}

	switch cmd.Command {
	case "start_trading":
		if err := s.deps.Loop.Start(ctx); err != nil {
			return fail(err)
		}
		resp.Data = s.deps.Loop.State().String()

	case "stop_trading":
		// The ack comes back immediately; the "trading stopped" event follows
		// once the in-flight cycle completes.
		if _, err := s.deps.Loop.Stop(); err != nil {
			return fail(err)
		}
		resp.Data = s.deps.Loop.State().String()

	case "check_portfolio":
		accountID := s.deps.Loop.AccountID()
		if accountID == "" {
			var err error
			if accountID, err = s.deps.Broker.GetOrCreateAccount(ctx); err != nil {
				return fail(err)
			}
		}
		portfolio, err := s.deps.Broker.GetPortfolio(ctx, accountID)
		if err != nil {
			return fail(err)
		}
		s.deps.Bus.Publish(events.TypePortfolio, portfolio)
		resp.Data = portfolio

	case "refresh_prices":
		prices, err := s.deps.Cache.RefreshPrices(ctx, s.deps.Figis)
		if err != nil {
			return fail(err)
		}
		s.deps.Bus.Publish(events.TypePrices, prices)
		resp.Data = prices

	case "show_chart":
		data, err := s.chart(ctx, cmd)
		if err != nil {
			return fail(err)
		}
		resp.Data = data

	case "get_news":
		articles, err := s.deps.News.Latest(ctx, cmd.Source, cmd.Limit)
		if err != nil {
			return fail(err)
		}
		s.deps.Bus.Publish(events.TypeNews, articles)
		resp.Data = articles

	default:
		return fail(fmt.Errorf("unknown command %q", cmd.Command))
	}
	return resp
}

// chartPayload is the chart event and response body.
type chartPayload struct {
	FIGI     string                `json:"figi"`
	Interval domain.CandleInterval `json:"interval"`
	Candles  []domain.Candle       `json:"candles"`
}

// chart fetches candles for the requested instrument, persists them, and
// broadcasts the series.
func (s *Server) chart(ctx context.Context, cmd Command) (*chartPayload, error) {
	figi := cmd.FIGI
	if figi == "" {
		figi = s.deps.ChartFIGI
	}
	interval := domain.IntervalHour
	if cmd.Interval != "" {
		var err error
		if interval, err = domain.ParseInterval(cmd.Interval); err != nil {
			return nil, err
		}
	}

	candles, err := s.deps.Cache.Candles(ctx, figi, interval, chartLookback[interval])
	if err != nil {
		return nil, err
	}
	if err := s.deps.Candles.AppendCandles(ctx, candles); err != nil {
		s.log.Warn().Err(err).Str("figi", figi).Msg("chart candle persist failed")
	}

	payload := &chartPayload{FIGI: figi, Interval: interval, Candles: candles}
	s.deps.Bus.Publish(events.TypeChart, payload)
	return payload, nil
}
