package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger is a dependency the readiness check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health handles GET /health.
func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// Ready handles GET /health/ready. It reports 503 while the registry cannot
// be reached. The audit producer is optional (nil when disabled) and only
// reported, since audit loss never blocks a login.
func Ready(registry, audit Pinger, timeout time.Duration, errs Errors) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := registry.Ping(ctx); err != nil {
			errs.logger().WarnContext(r.Context(), "readiness check failed", "dependency", "registry", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}

		body := map[string]string{"status": "ready"}
		if audit != nil {
			body["audit"] = "ok"
			if err := audit.Ping(ctx); err != nil {
				errs.logger().WarnContext(r.Context(), "audit stream unreachable", "dependency", "audit", "error", err)
				body["audit"] = "unavailable"
			}
		}
		writeJSON(w, http.StatusOK, body)
	}
}
