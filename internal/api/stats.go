package api

import (
	"net/http"
)

// handleStats handles GET /api/v1/accounts/{id}/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	result, err := s.stats.AccountStats(r.Context(), r.PathValue("id"))
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handlePrice handles GET /api/v1/prices/{tpl}.
func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.prices.PriceOf(r.Context(), r.PathValue("tpl")))
}
