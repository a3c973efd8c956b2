package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/noah-isme/toko-checkout/internal/common"
)

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady flips the readiness flag, e.g. to drain traffic during shutdown.
func SetReady(v bool) { ready.Store(v) }

// Check probes one dependency. A failing non-critical check reports the
// service as degraded while keeping it ready.
type Check struct {
	Name     string
	Probe    func(ctx context.Context) error
	Critical bool
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checks  []Check
	Timeout time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]any{"status": "shutting_down"})
		return
	}
	status := "ok"
	checks := make(map[string]string, len(h.Checks))
	for _, c := range h.Checks {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
		err := c.Probe(ctx)
		cancel()
		if err == nil {
			checks[c.Name] = "ok"
			continue
		}
		checks[c.Name] = err.Error()
		switch {
		case c.Critical:
			status = "unavailable"
		case status == "ok":
			status = "degraded"
		}
	}
	code := http.StatusOK
	if status == "unavailable" {
		code = http.StatusServiceUnavailable
	}
	common.JSON(w, code, map[string]any{"status": status, "checks": checks})
}

func (h Handler) timeout() time.Duration {
	if h.Timeout <= 0 {
		return 500 * time.Millisecond
	}
	return h.Timeout
}
