package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"sandtrader/internal/news"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("response encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"broker":  s.deps.Broker.Name(),
		"trading": s.deps.Loop.State().String(),
		"account": s.deps.Loop.AccountID(),
	})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	accountID := s.deps.Loop.AccountID()
	if accountID == "" {
		var err error
		accountID, err = s.deps.Broker.GetOrCreateAccount(r.Context())
		if err != nil {
			s.writeError(w, http.StatusBadGateway, err)
			return
		}
	}
	portfolio, err := s.deps.Broker.GetPortfolio(r.Context(), accountID)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, http.StatusOK, portfolio)
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	prices, err := s.deps.Cache.RefreshPrices(r.Context(), s.deps.Figis)
	if err != nil {
		// Serve the stale cache when the broker is down.
		stale := s.deps.Cache.Prices()
		if len(stale) == 0 {
			s.writeError(w, http.StatusBadGateway, err)
			return
		}
		s.writeJSON(w, http.StatusOK, stale)
		return
	}
	s.writeJSON(w, http.StatusOK, prices)
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	articles, err := s.deps.News.Latest(r.Context(), r.URL.Query().Get("source"), limit)
	if err != nil {
		if errors.Is(err, news.ErrUnknownSource) {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, http.StatusOK, articles)
}

func (s *Server) handleInstruments(w http.ResponseWriter, r *http.Request) {
	instruments, err := s.deps.Broker.ListInstruments(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, http.StatusOK, instruments)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	trades, err := s.deps.Trades.ListTrades(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, trades)
}
