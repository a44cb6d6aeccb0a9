package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/graaaaa/raidlog-companion/internal/lifecycle"
	"github.com/graaaaa/raidlog-companion/internal/raid"
	"github.com/graaaaa/raidlog-companion/internal/records"
)

// maxRaidBodyBytes bounds raid payloads; a full character inventory plus
// post-raid statistics stays well below it.
const maxRaidBodyBytes = 8 << 20

// raidStartResponse acknowledges a raid start without echoing the entry
// snapshot.
type raidStartResponse struct {
	MatchID      string    `json:"matchId"`
	PlayerID     string    `json:"playerId"`
	Side         raid.Side `json:"side"`
	CreatedAt    time.Time `json:"createdAt"`
	Items        int       `json:"items"`
	EntryValue   int64     `json:"entryValue"`
	LoadoutValue int64     `json:"loadoutValue"`
	SecuredValue int64     `json:"securedValue"`
}

// handleRaidStart handles POST /api/v1/raids/start.
func (s *Server) handleRaidStart(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.StartRequest
	if err := decodeJSON(w, r, maxRaidBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	rec, err := s.raids.Start(r.Context(), req)
	if err != nil {
		writeRaidError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, raidStartResponse{
		MatchID:      rec.MatchID,
		PlayerID:     rec.PlayerID,
		Side:         rec.Side,
		CreatedAt:    rec.CreatedAt,
		Items:        len(rec.Entry),
		EntryValue:   rec.Totals.EntryValue,
		LoadoutValue: rec.Totals.LoadoutValue,
		SecuredValue: rec.Totals.SecuredValue,
	})
}

// handleRaidEnd handles POST /api/v1/raids/end and returns the archived
// record.
func (s *Server) handleRaidEnd(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.EndRequest
	if err := decodeJSON(w, r, maxRaidBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	rec, err := s.raids.End(r.Context(), req)
	if err != nil {
		writeRaidError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// writeRaidError maps lifecycle failures to responses.
func writeRaidError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, lifecycle.ErrUnknownPlayer):
		writeError(w, http.StatusNotFound, "unknown player", nil)
	case errors.Is(err, lifecycle.ErrNoPendingRecord):
		writeError(w, http.StatusConflict, "no raid in progress", nil)
	case errors.Is(err, records.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "record store unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}
