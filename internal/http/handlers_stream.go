package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const heartbeatInterval = 25 * time.Second

// handleStream serves the live transaction feed over SSE. Each event is a
// full household snapshot; clients replace local state wholesale, so a
// dropped event costs nothing once the next one lands.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	member, ok := s.requesterUID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "unknown member")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	snapshots, cancel := s.broadcaster.Subscribe(s.household.ID())
	defer cancel()

	slog.InfoContext(r.Context(), "Stream subscriber connected", "uid", member.UID)

	// Prime the client with the current state before any event arrives.
	txs, err := s.transactions.List(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Stream initial snapshot error", "error", err)
	} else {
		writeSSEEvent(w, "snapshot", map[string]any{
			"household_id": s.household.ID(),
			"transactions": txs,
		})
		flusher.Flush()
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			slog.InfoContext(r.Context(), "Stream subscriber disconnected", "uid", member.UID)
			return
		case snap := <-snapshots:
			writeSSEEvent(w, "snapshot", snap)
			flusher.Flush()
		case <-heartbeat.C:
			// Comment line keeps proxies from reaping the idle connection.
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal SSE payload", "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
