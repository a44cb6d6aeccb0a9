package api

import (
	"bytes"
	"log/slog"
	"net/http"

	json "github.com/goccy/go-json"
)

// errorResponse is the standard error response format.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to the response.
// The body is buffered so encoding errors surface before headers go out.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		slog.Error("json encode failed", "error", err)
		writeErrorFallback(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}

// writeError writes a JSON error body. The public message is what clients
// see; for 5xx the underlying error is only logged.
func writeError(w http.ResponseWriter, status int, public string, err error) {
	if public == "" {
		public = http.StatusText(status)
	}
	if status >= 500 && err != nil {
		slog.Error("internal error", "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: public})
}

// writeErrorFallback writes a plain text error when JSON encoding fails.
func writeErrorFallback(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(message))
}

// decodeJSON reads a request body of at most limit bytes into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	return json.NewDecoder(r.Body).Decode(v)
}
