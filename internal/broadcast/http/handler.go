package broadcasthttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/broadcast"
	"github.com/gatehouse-io/gatehouse/internal/gate"
	"github.com/gatehouse-io/gatehouse/internal/platform/httpx"
)

// HeartbeatInterval paces SSE keep-alive comments. A write failure on a
// heartbeat is how dead connections are detected and reclaimed.
const HeartbeatInterval = 25 * time.Second

// Handler streams change events to authenticated subscribers over SSE.
type Handler struct {
	broadcaster *broadcast.Broadcaster
	logger      *slog.Logger
	heartbeat   time.Duration
}

// NewHandler constructs the SSE handler.
func NewHandler(broadcaster *broadcast.Broadcaster, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{broadcaster: broadcaster, logger: logger, heartbeat: HeartbeatInterval}
}

// Stream subscribes the resolved actor and writes events until the
// client disconnects. The gate middleware has already admitted the
// request; the broadcaster applies the per-event permission filter. An
// optional ?resource= query narrows delivery, permission filter
// notwithstanding.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	decision, ok := gate.DecisionFromContext(r.Context())
	if !ok || decision.Actor == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "no resolved actor on stream")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "streaming unsupported")
		return
	}

	// The server-wide write timeout would sever the stream long before
	// the first heartbeat. Push the deadline out ahead of every write
	// instead; two missed heartbeats means the connection is dead.
	rc := http.NewResponseController(w)
	extend := func() {
		if err := rc.SetWriteDeadline(time.Now().Add(2 * h.heartbeat)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			h.logger.Warn("extend stream write deadline", slog.Any("error", err))
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	extend()
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.broadcaster.Subscribe(r.Context(), decision.Actor, r.URL.Query().Get("resource"))
	defer sub.Close()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.Done():
			return
		case delivery := <-sub.Events():
			payload, err := json.Marshal(delivery)
			if err != nil {
				h.logger.Error("marshal delivery", slog.Any("error", err))
				continue
			}
			extend()
			if _, err := fmt.Fprintf(w, "event: change\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			extend()
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
