package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
)

const (
	// heartbeatInterval is the interval for sending SSE heartbeat comments.
	heartbeatInterval = 20 * time.Second

	eventRaidArchived = "raid.archived"
)

// handleStream handles GET /api/v1/stream (SSE). A numeric Last-Event-ID
// header or last_event_id query parameter replays recent summaries.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	lastEventID := r.Header.Get("Last-Event-ID")
	if lastEventID == "" {
		lastEventID = r.URL.Query().Get("last_event_id")
	}
	// Unparseable ids start a fresh stream.
	after, _ := strconv.ParseUint(lastEventID, 10, 64)

	sub := s.hub.Subscribe(after)
	defer s.hub.Unsubscribe(sub)

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case summary, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeSSEEvent(w, summary); err != nil {
				s.logger.Warn("sse encode failed", "match", summary.MatchID, "error", err)
				continue
			}
			flusher.Flush()

		case <-ticker.C:
			fmt.Fprintf(w, ":\n\n")
			flusher.Flush()

		case <-ctx.Done():
			return

		case <-sub.Done():
			return
		}
	}
}

// writeSSEEvent writes one summary in SSE format with its sequence number
// as the event id.
func writeSSEEvent(w http.ResponseWriter, summary *RaidSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "id: %d\n", summary.Seq)
	fmt.Fprintf(w, "event: %s\n", eventRaidArchived)
	fmt.Fprintf(w, "data: %s\n\n", data)
	return nil
}
