package health

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the liveness and readiness probes, plus metrics when
// non-nil, on a chi router.
//
// Routes:
//
//	GET /healthz  liveness
//	GET /readyz   readiness with component results
//	GET /metrics  Prometheus text exposition
func NewRouter(c *Checker, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", c.ServeLive)
	r.Get("/readyz", c.ServeReady)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	return r
}
