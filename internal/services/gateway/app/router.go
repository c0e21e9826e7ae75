package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/LeonardoBeccarini/citywatch/internal/metrics"
	"github.com/LeonardoBeccarini/citywatch/internal/services/event"
)

// Router builds the HTTP surface of the monitor.
func (g *Gateway) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/healthz", event.NewHealthHandler(g.deps.Health))
	r.Method(http.MethodGet, "/readyz", event.NewReadyHandler(g.deps.Health, g.cfg.ReadyMinErrAge))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	if g.deps.Hub != nil {
		r.Get("/ws", g.deps.Hub.ServeWS)
	}

	r.Route("/api", func(r chi.Router) {
		// niente access log sul websocket e sulle probe
		r.Use(middleware.Logger)

		r.Get("/dashboard", g.HandleDashboard)
		r.Get("/zones", g.HandleZones)

		r.Get("/alerts", g.HandleAlerts)
		r.Get("/alerts/archive", g.HandleAlertArchive)
		if g.deps.AlertHistory != nil {
			r.Method(http.MethodGet, "/alerts/history", g.deps.AlertHistory)
		} else {
			r.Get("/alerts/history", func(w http.ResponseWriter, _ *http.Request) {
				writeError(w, http.StatusServiceUnavailable, "alert history not configured")
			})
		}

		r.Get("/entities", g.HandleEntities)
		r.Get("/entities/{id}", g.HandleEntity)
		r.Get("/entities/{id}/history", g.HandleEntityHistory)

		r.Get("/weather", g.HandleWeather)
		r.Get("/geocode", g.HandleGeocode)
		r.Get("/route", g.HandleRoute)
		r.Get("/upstreams", g.HandleUpstreams)

		r.Get("/settings", g.HandleGetSettings)
		r.Put("/settings", g.HandlePutSettings)
	})
	return r
}
