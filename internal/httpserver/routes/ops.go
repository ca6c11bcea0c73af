package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/vpsinv/internal/httpserver/deps"
	"github.com/MrSnakeDoc/vpsinv/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/vpsinv/internal/httpserver/mw"
)

func init() { Register(registerOps) }

// registerOps mounts the operational endpoints. All but /healthz are
// restricted to the allowed CIDRs.
func registerOps(r chi.Router, d deps.Deps) {
	r.Get("/healthz", handlers.Healthz(d))

	guarded := r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))
	guarded.Get("/readyz", handlers.Readyz(d))
	guarded.Get("/infra", handlers.Infra(d))
	if d.Metrics != nil {
		guarded.Method("GET", "/metrics", d.Metrics.Handler())
	}
}
