package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/MAKaminski/alpha-kite/internal/aggregate"
	"github.com/MAKaminski/alpha-kite/internal/config"
	"github.com/MAKaminski/alpha-kite/internal/filter"
	"github.com/MAKaminski/alpha-kite/internal/model"
	"github.com/MAKaminski/alpha-kite/internal/store"
	"github.com/MAKaminski/alpha-kite/internal/version"
)

// Query parameters that are not field filters on the count route.
var countReserved = map[string]bool{"limit": true}

type recordsResponse struct {
	Table   string         `json:"table,omitempty"`
	Symbol  string         `json:"symbol,omitempty"`
	Count   int            `json:"count"`
	Records []model.Record `json:"records"`
}

func records(recs []model.Record) []model.Record {
	if recs == nil {
		return []model.Record{}
	}
	return recs
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := struct {
		Status     string         `json:"status"`
		Version    version.Info   `json:"version"`
		Components map[string]any `json:"components"`
	}{
		Status:     "healthy",
		Version:    version.Get(),
		Components: make(map[string]any),
	}

	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			health.Status = "unhealthy"
			health.Components[name] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
			continue
		}
		health.Components[name] = "connected"
	}

	if health.Status == "unhealthy" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(health)
		return
	}
	respondJSON(w, health)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]
	limit, err := intParam(r, "limit", store.DefaultLatestLimit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	recs, err := s.tables.Latest(r.Context(), table, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, recordsResponse{Table: table, Count: len(recs), Records: records(recs)})
}

func (s *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]
	start, ok, err := timeParam(r, "start")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		s.fail(w, r, &paramError{Param: "start", Reason: "required"})
		return
	}
	end, ok, err := timeParam(r, "end")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		end = time.Now().UTC()
	}

	recs, err := s.tables.DateRange(r.Context(), table, start, end)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, recordsResponse{Table: table, Count: len(recs), Records: records(recs)})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]
	limit, err := intParam(r, "limit", store.MaxSearchResults)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	recs, err := s.tables.Search(r.Context(), table, r.URL.Query().Get("q"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, recordsResponse{Table: table, Count: len(recs), Records: records(recs)})
}

// handleCount treats every query parameter as an equality filter, so
// ?symbol=SPY counts SPY rows.
func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]
	var spec filter.Spec
	for field, vals := range r.URL.Query() {
		if countReserved[field] || len(vals) == 0 {
			continue
		}
		if spec == nil {
			spec = make(filter.Spec)
		}
		if len(vals) == 1 {
			spec[field] = vals[0]
			continue
		}
		in := make([]any, len(vals))
		for i, v := range vals {
			in[i] = v
		}
		spec[field] = in
	}

	n, err := s.tables.Count(r.Context(), table, spec)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, map[string]any{"table": table, "count": n})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]
	sample, err := intParam(r, "sample", aggregate.DefaultSampleSize)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	stats, err := s.analytics.Stats(r.Context(), table, sample)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, stats)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])
	days, err := intParam(r, "days", aggregate.DefaultHistoryDays)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	recs, err := s.analytics.PriceHistory(r.Context(), symbol, days)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, recordsResponse{Symbol: symbol, Count: len(recs), Records: records(recs)})
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])
	days, err := intParam(r, "days", aggregate.DefaultHistoryDays)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	series, err := s.analytics.Series(r.Context(), symbol, days)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, series)
}

func (s *Server) handleChain(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])
	var expiry *time.Time
	t, ok, err := timeParam(r, "expiry")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if ok {
		expiry = &t
	}

	chain, err := s.analytics.OptionsChain(r.Context(), symbol, expiry)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if chain == nil {
		chain = []model.OptionsChainEntry{}
	}
	respondJSON(w, map[string]any{"symbol": symbol, "count": len(chain), "chain": chain})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	if s.ingester == nil {
		s.fail(w, r, &config.NotConfiguredError{Component: "ingest"})
		return
	}
	rec, err := s.ingester.CurrentQuote(r.Context(), mux.Vars(r)["symbol"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, rec)
}

type refreshRequest struct {
	Symbols []string `json:"symbols"`
}

type refreshResponse struct {
	RunID      string `json:"run_id"`
	Symbols    int    `json:"symbols"`
	Quotes     int    `json:"quotes"`
	Options    int    `json:"options"`
	DurationMs int64  `json:"duration_ms"`
}

// handleRefresh runs one ingestion pass. An empty body refreshes the
// configured symbols.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.ingester == nil {
		s.fail(w, r, &config.NotConfiguredError{Component: "ingest"})
		return
	}
	var req refreshRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.fail(w, r, &paramError{Param: "body", Reason: err.Error()})
		return
	}
	symbols := req.Symbols
	if len(symbols) == 0 {
		symbols = s.cfg.Symbols
	}
	if len(symbols) == 0 {
		s.fail(w, r, &paramError{Param: "symbols", Reason: "none requested or configured"})
		return
	}

	rep, err := s.ingester.Run(r.Context(), symbols)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, refreshResponse{
		RunID:      rep.RunID,
		Symbols:    rep.Symbols,
		Quotes:     rep.Quotes,
		Options:    rep.Options,
		DurationMs: rep.Duration.Milliseconds(),
	})
}
