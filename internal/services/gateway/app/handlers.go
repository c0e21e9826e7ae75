package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/LeonardoBeccarini/citywatch/internal/model"
	"github.com/LeonardoBeccarini/citywatch/internal/services/persistence"
	"github.com/LeonardoBeccarini/citywatch/internal/services/weather"
	"github.com/LeonardoBeccarini/citywatch/pkg/settings"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}

func intParam(r *http.Request, key string, def, min, max int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

func (g *Gateway) HandleDashboard(w http.ResponseWriter, _ *http.Request) {
	m := g.deps.Monitor
	data := DashboardData{
		Zones:    m.Zones(),
		Alerts:   m.RecentAlerts(20),
		Entities: m.Latest(),
		Stats:    map[string]float64{},
		Muted:    g.deps.Settings.Get().AlertsMuted,
	}
	if data.Alerts == nil {
		data.Alerts = []model.Alert{}
	}
	if data.Entities == nil {
		data.Entities = []model.Reading{}
	}

	// conteggi per livello di rischio per la UI
	for _, z := range data.Zones {
		data.Stats["zones_"+strings.ToLower(string(z.HazardLevel))]++
	}
	data.Stats["zones"] = float64(len(data.Zones))
	data.Stats["entities"] = float64(len(data.Entities))

	writeJSON(w, http.StatusOK, data)
}

func (g *Gateway) HandleZones(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, g.deps.Monitor.Zones())
}

// GET /api/alerts?limit=50
func (g *Gateway) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := g.deps.Monitor.RecentAlerts(intParam(r, "limit", 50, 1, 1000))
	if alerts == nil {
		alerts = []model.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

// GET /api/alerts/archive?minutes=1440&limit=100 (Postgres)
func (g *Gateway) HandleAlertArchive(w http.ResponseWriter, r *http.Request) {
	if g.deps.Archive == nil {
		writeError(w, http.StatusServiceUnavailable, "alert archive not configured")
		return
	}
	minutes := intParam(r, "minutes", 1440, 1, 30*24*60)
	limit := intParam(r, "limit", 100, 1, 1000)

	ctx, cancel := context.WithTimeout(r.Context(), g.cfg.HTTPTimeout)
	defer cancel()
	list, err := g.deps.Archive.Recent(ctx, time.Now().Add(-time.Duration(minutes)*time.Minute), limit)
	if err != nil {
		g.cfg.Logger.Printf("gateway: alert archive: %v", err)
		writeError(w, http.StatusBadGateway, "alert archive unavailable")
		return
	}
	if list == nil {
		list = []model.Alert{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (g *Gateway) HandleEntities(w http.ResponseWriter, _ *http.Request) {
	list := g.deps.Monitor.Latest()
	if list == nil {
		list = []model.Reading{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (g *Gateway) HandleEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, rd := range g.deps.Monitor.Latest() {
		if rd.EntityID == id {
			writeJSON(w, http.StatusOK, rd)
			return
		}
	}
	writeError(w, http.StatusNotFound, "unknown entity "+id)
}

// GET /api/entities/{id}/history?minutes=60&limit=100
func (g *Gateway) HandleEntityHistory(w http.ResponseWriter, r *http.Request) {
	if g.deps.History == nil {
		writeError(w, http.StatusServiceUnavailable, "history not configured")
		return
	}
	id := chi.URLParam(r, "id")
	minutes, limit := persistence.HistoryParams(r)

	ctx, cancel := context.WithTimeout(r.Context(), g.cfg.HTTPTimeout)
	defer cancel()
	list, err := g.deps.History.QueryHistory(ctx, id, minutes, limit)
	if err != nil {
		w.Header().Set("X-Error", "influx-query-error")
	}
	if list == nil {
		list = []persistence.HistoryPoint{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GET /api/weather?q=Kuala+Lumpur
func (g *Gateway) HandleWeather(w http.ResponseWriter, r *http.Request) {
	if g.deps.Weather == nil {
		writeError(w, http.StatusServiceUnavailable, "weather not configured")
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing q")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), g.cfg.HTTPTimeout)
	defer cancel()

	rd, err := g.deps.Weather.Current(ctx, q)
	if err != nil {
		g.upstreamError(w, "weather", err)
		return
	}
	if g.deps.OnWeather != nil {
		g.deps.OnWeather(rd)
	}
	writeJSON(w, http.StatusOK, rd)
}

// GET /api/geocode?q=Cheras
func (g *Gateway) HandleGeocode(w http.ResponseWriter, r *http.Request) {
	if g.deps.Geocoder == nil {
		writeError(w, http.StatusServiceUnavailable, "geocoder not configured")
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing q")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), g.cfg.HTTPTimeout)
	defer cancel()

	place, err := g.deps.Geocoder.Geocode(ctx, q)
	if err != nil {
		g.upstreamError(w, "geocode", err)
		return
	}
	writeJSON(w, http.StatusOK, place)
}

// resolve accetta "lat,lon" oppure un nome da geocodificare.
func (g *Gateway) resolve(ctx context.Context, s string) (model.Coordinates, error) {
	if c, err := weather.ParseCoordinates(s); err == nil {
		return c, nil
	}
	if g.deps.Geocoder == nil {
		return model.Coordinates{}, errors.New("not a lat,lon pair and no geocoder configured")
	}
	place, err := g.deps.Geocoder.Geocode(ctx, s)
	if err != nil {
		return model.Coordinates{}, err
	}
	return place.Coordinates, nil
}

// GET /api/route?from=3.14,101.69&to=Cheras
func (g *Gateway) HandleRoute(w http.ResponseWriter, r *http.Request) {
	if g.deps.Router == nil {
		writeError(w, http.StatusServiceUnavailable, "router not configured")
		return
	}
	fromQ := strings.TrimSpace(r.URL.Query().Get("from"))
	toQ := strings.TrimSpace(r.URL.Query().Get("to"))
	if fromQ == "" || toQ == "" {
		writeError(w, http.StatusBadRequest, "missing from or to")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), g.cfg.HTTPTimeout)
	defer cancel()

	from, err := g.resolve(ctx, fromQ)
	if err != nil {
		g.upstreamError(w, "route from", err)
		return
	}
	to, err := g.resolve(ctx, toQ)
	if err != nil {
		g.upstreamError(w, "route to", err)
		return
	}
	route, err := g.deps.Router.Route(ctx, from, to)
	if err != nil {
		g.upstreamError(w, "route", err)
		return
	}
	writeJSON(w, http.StatusOK, RouteResponse{From: from, To: to, Route: route})
}

func (g *Gateway) upstreamError(w http.ResponseWriter, what string, err error) {
	switch {
	case errors.Is(err, weather.ErrNotFound):
		writeError(w, http.StatusNotFound, what+": not found")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, what+": timeout")
	default:
		g.cfg.Logger.Printf("gateway: %s: %v", what, err)
		writeError(w, http.StatusBadGateway, what+": "+err.Error())
	}
}

func (g *Gateway) HandleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, g.deps.Settings.Get())
}

// PUT /api/settings applies the fields present in the body.
func (g *Gateway) HandlePutSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}
	var decodeErr error
	next, err := g.deps.Settings.Update(func(s *settings.Settings) {
		tmp := *s
		if decodeErr = json.Unmarshal(body, &tmp); decodeErr == nil {
			*s = tmp
		}
	})
	if decodeErr != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+decodeErr.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, next)
}

func (g *Gateway) HandleUpstreams(w http.ResponseWriter, _ *http.Request) {
	out := make([]UpstreamStatus, 0, len(g.deps.Upstreams))
	for _, u := range g.deps.Upstreams {
		out = append(out, UpstreamStatus{Name: u.Name(), State: u.State().String()})
	}
	writeJSON(w, http.StatusOK, out)
}
