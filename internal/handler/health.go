package handler

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// HealthHandler returns a health check endpoint. Every named check must pass
// within 3 seconds for the service to report healthy.
func HealthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		failed := map[string]string{}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			RespondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"errors": failed,
			})
			return
		}
		RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}
