package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/vpsinv/internal/httpserver/deps"
	"github.com/MrSnakeDoc/vpsinv/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/vpsinv/internal/httpserver/mw"
)

func init() { Register(registerAuth) }

func registerAuth(r chi.Router, d deps.Deps) {
	limited := r.With(mw.RateLimit(mw.RateLimitConfig{
		PerMinute:  d.AuthRatePerMin,
		MaxEntries: 10000,
		TrustProxy: d.TrustProxy,
		Now:        d.TimeNow,
	}, d.Logger))

	limited.Post("/api/auth/register", handlers.Register(d))
	limited.Post("/api/auth/login", handlers.Login(d))
	r.Post("/api/auth/logout", handlers.Logout(d))
	r.With(mw.RequireUser(d.Auth, d.Logger)).Get("/api/auth/me", handlers.Me(d))
}
