package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/vpsinv/internal/httpserver/deps"
	"github.com/MrSnakeDoc/vpsinv/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/vpsinv/internal/httpserver/mw"
)

func init() { Register(registerServers) }

func registerServers(r chi.Router, d deps.Deps) {
	r.Route("/api/servers", func(r chi.Router) {
		r.Use(mw.RequireUser(d.Auth, d.Logger))

		r.Get("/", handlers.ListServers(d))
		r.Post("/", handlers.CreateServer(d))
		r.Get("/export", handlers.ExportServers(d))
		r.Post("/import", handlers.ImportServers(d))
		r.Put("/{id}", handlers.UpdateServer(d))
		r.Delete("/{id}", handlers.DeleteServer(d))
	})
}
