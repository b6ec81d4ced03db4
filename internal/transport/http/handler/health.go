package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports whether a dependency is reachable.
type Pinger func(ctx context.Context) error

// HealthHandler answers liveness checks.
type HealthHandler struct {
	ping Pinger
}

// NewHealthHandler builds a handler. A nil ping reports healthy without
// touching dependencies.
func NewHealthHandler(ping Pinger) *HealthHandler { return &HealthHandler{ping: ping} }

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "UNHEALTHY", "store unreachable")
			return
		}
	}
	writeData(w, http.StatusOK, map[string]string{"status": "ok"}, "")
}
