package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/vpsinv/internal/httpserver/deps"
	"github.com/MrSnakeDoc/vpsinv/internal/scheduler"
)

type componentStatus struct {
	OK       bool                  `json:"ok"`
	Backend  string                `json:"backend,omitempty"`
	Views    *int                  `json:"views,omitempty"`
	LastLoad string                `json:"last_load,omitempty"`
	Seed     *scheduler.SeedStatus `json:"seed,omitempty"`
	Mode     string                `json:"mode,omitempty"`
	Error    string                `json:"error,omitempty"`
}

type infraResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components"`
}

// Infra reports the state of the store, the view cache and the seed
// reloader.
func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components := map[string]componentStatus{
			"store": checkStore(r.Context(), d),
			"views": viewStatus(d),
			"seed":  seedStatus(d),
		}
		writeJSON(w, http.StatusOK, infraResponse{
			Status:     overallStatus(components),
			Components: components,
		})
	}
}

// overallStatus is "critical" when the store is down and "degraded" when
// the last seed import failed.
func overallStatus(components map[string]componentStatus) string {
	if !components["store"].OK {
		return "critical"
	}
	if seed, ok := components["seed"]; ok && !seed.OK {
		return "degraded"
	}
	return "ok"
}

func checkStore(ctx context.Context, d deps.Deps) componentStatus {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := d.Store.Ping(ctx); err != nil {
		return componentStatus{OK: false, Backend: d.StoreName, Error: err.Error()}
	}
	return componentStatus{OK: true, Backend: d.StoreName}
}

func viewStatus(d deps.Deps) componentStatus {
	count := d.Inventory.ViewCount()
	last := "never"
	if t := d.Inventory.LastLoad(); !t.IsZero() {
		last = t.UTC().Format(time.RFC3339)
	}
	return componentStatus{OK: true, Views: &count, LastLoad: last}
}

func seedStatus(d deps.Deps) componentStatus {
	if d.SeedReloader == nil {
		return componentStatus{OK: true, Mode: "disabled"}
	}
	st := d.SeedReloader.Status()
	return componentStatus{OK: st.LastErr == "", Mode: "enabled", Seed: &st}
}
