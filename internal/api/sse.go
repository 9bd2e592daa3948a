package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/chatforge/commandd/internal/metrics"
)

// StreamReloadEvents handles GET /api/v1/servers/{serverId}/reload-events/stream
// It implements Server-Sent Events for the bot worker's subscription path.
// Replaying missed events via Last-Event-ID happens before live tailing, so a
// reconnecting worker never drops an event (it may see one twice; reloads are
// idempotent).
func (h *Handlers) StreamReloadEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	serverID := mux.Vars(r)["serverId"]

	if h.events == nil {
		writeErrorResponse(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavail,
			"reload log is not readable with the configured notifier", nil)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErrorResponse(w, r, http.StatusInternalServerError, ErrCodeInternalError,
			"streaming unsupported", nil)
		return
	}

	metrics.SSEActiveConnections.Inc()
	defer metrics.SSEActiveConnections.Dec()

	h.logger.Info("SSE connection opened",
		slog.String("server_id", serverID),
		slog.String("remote_addr", r.RemoteAddr),
	)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Subscribe before replay so events published during the replay are not
	// lost; duplicates are fine.
	events, cleanup, err := h.events.Subscribe(ctx, serverID)
	if err != nil {
		h.logger.Error("subscribe failed", "error", err, "server_id", serverID)
		return
	}
	defer cleanup()

	// Replay anything after the client's last seen event.
	if lastEventID := r.Header.Get("Last-Event-ID"); lastEventID != "" {
		missed, err := h.events.EventsSince(ctx, serverID, lastEventID)
		if err != nil {
			h.logger.Error("replay failed", "error", err, "server_id", serverID)
		}
		for _, event := range missed {
			if _, err := w.Write(event.ToSSE()); err != nil {
				return
			}
			metrics.ReloadEventsStreamed.Inc()
		}
		flusher.Flush()
	}

	// Keep-alive comments stop proxies from closing idle streams.
	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("SSE connection closed", slog.String("server_id", serverID))
			return
		case <-keepalive.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			if _, err := w.Write(event.ToSSE()); err != nil {
				return
			}
			metrics.ReloadEventsStreamed.Inc()
			flusher.Flush()
		}
	}
}
