package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/vpsinv/internal/httpserver/deps"
)

// Registrar mounts a group of routes. Middlewares that need deps are applied
// inside the registrar with r.With or r.Use.
type Registrar func(r chi.Router, d deps.Deps)

var registry []Registrar

// Register adds a registrar. It is meant to be called from init.
func Register(reg Registrar) {
	registry = append(registry, reg)
}

// RegisterAll mounts every registered group on r. Called once from
// httpserver.New.
func RegisterAll(r chi.Router, d deps.Deps) {
	for _, reg := range registry {
		reg(r, d)
	}
}
