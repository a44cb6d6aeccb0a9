package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/graaaaa/raidlog-companion/internal/app"
	"github.com/graaaaa/raidlog-companion/internal/raid"
	"github.com/graaaaa/raidlog-companion/internal/records"
)

// handleRecords handles GET /api/v1/accounts/{id}/records.
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	req, err := parsePageRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	page, err := s.records.Page(r.Context(), r.PathValue("id"), req)
	if err != nil {
		if errors.Is(err, records.ErrInvalidPage) {
			writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		writeLookupError(w, err)
		return
	}
	if page.Items == nil {
		page.Items = []records.Entry{}
	}
	writeJSON(w, http.StatusOK, page)
}

// handleRecord handles GET /api/v1/accounts/{id}/records/{index}.
func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid index", nil)
		return
	}
	rec, err := s.records.ByIndex(r.Context(), r.PathValue("id"), index)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleBuyback handles GET /api/v1/accounts/{id}/records/{index}/buyback.
func (s *Server) handleBuyback(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid index", nil)
		return
	}
	quote, err := s.records.BuybackQuote(r.Context(), r.PathValue("id"), index)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// handleMatch handles GET /api/v1/accounts/{id}/matches/{matchID}.
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	entry, err := s.records.ByMatchID(r.Context(), r.PathValue("id"), r.PathValue("matchID"))
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleReload handles POST /api/v1/accounts/{id}/reload.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	account, err := s.reload.Reload(r.Context(), r.PathValue("id"))
	if err != nil {
		writeLookupError(w, err)
		return
	}
	s.logger.Info("history cache dropped", "account", account, "op", "reload")
	writeJSON(w, http.StatusOK, map[string]string{"account": account})
}

func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, app.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found", nil)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error", err)
}

// parsePageRequest reads page, page_size, side, outcome, exit, since and
// until (RFC3339) from the query string.
func parsePageRequest(r *http.Request) (records.PageRequest, error) {
	var req records.PageRequest
	q := r.URL.Query()

	for name, dst := range map[string]*int{"page": &req.Page, "page_size": &req.PageSize} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return req, fmt.Errorf("invalid %s: %s", name, v)
			}
			*dst = n
		}
	}

	if v := q.Get("side"); v != "" {
		switch side := raid.Side(v); side {
		case raid.SidePMC, raid.SideSavage:
			req.Filter.Side = side
		default:
			return req, fmt.Errorf("invalid side: %s", v)
		}
	}

	if v := q.Get("outcome"); v != "" {
		o, ok := raid.ParseOutcome(v)
		if !ok {
			return req, fmt.Errorf("invalid outcome: %s", v)
		}
		req.Filter.Outcome = o
	}

	req.Filter.Exit = q.Get("exit")

	for name, dst := range map[string]*time.Time{"since": &req.Filter.Since, "until": &req.Filter.Until} {
		if v := q.Get(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return req, fmt.Errorf("invalid %s: %w", name, err)
			}
			*dst = t
		}
	}

	return req, nil
}
