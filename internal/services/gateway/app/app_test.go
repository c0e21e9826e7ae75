package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/LeonardoBeccarini/citywatch/internal/model"
	"github.com/LeonardoBeccarini/citywatch/internal/services/persistence"
	"github.com/LeonardoBeccarini/citywatch/internal/services/weather"
	"github.com/LeonardoBeccarini/citywatch/pkg/settings"
)

type fakeMonitor struct {
	zones  []model.ZoneSummary
	alerts []model.Alert
	latest []model.Reading
}

func (f *fakeMonitor) Zones() []model.ZoneSummary { return f.zones }
func (f *fakeMonitor) RecentAlerts(limit int) []model.Alert {
	if limit < len(f.alerts) {
		return f.alerts[:limit]
	}
	return f.alerts
}
func (f *fakeMonitor) Latest() []model.Reading { return f.latest }

type fakeWeather struct{ calls []string }

func (f *fakeWeather) Current(_ context.Context, q string) (model.Reading, error) {
	f.calls = append(f.calls, q)
	return model.Reading{EntityID: "weather:" + strings.ToLower(q), LocationName: q, Metrics: map[string]float64{"wind_mph": 20}}, nil
}

type fakeGeo struct{}

func (fakeGeo) Geocode(_ context.Context, q string) (weather.Place, error) {
	if q == "Atlantis" {
		return weather.Place{}, fmt.Errorf("nominatim: %w", weather.ErrNotFound)
	}
	return weather.Place{Name: q, Coordinates: model.Coordinates{Lat: 3.08, Lon: 101.74}}, nil
}

type fakeRouter struct{ from, to model.Coordinates }

func (f *fakeRouter) Route(_ context.Context, from, to model.Coordinates) (weather.Route, error) {
	f.from, f.to = from, to
	return weather.Route{DistanceM: 1200, DurationS: 180, Path: []model.Coordinates{from, to}}, nil
}

type fakeHistory struct{ err error }

func (f fakeHistory) QueryHistory(_ context.Context, id string, minutes, limit int) ([]persistence.HistoryPoint, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []persistence.HistoryPoint{{Metrics: map[string]float64{"minutes": float64(minutes), "limit": float64(limit)}}}, nil
}

type fakeArchive struct{ since time.Time }

func (f *fakeArchive) Recent(_ context.Context, since time.Time, limit int) ([]model.Alert, error) {
	f.since = since
	return []model.Alert{{ID: "a1", Message: "Flood watch: Cheras"}}, nil
}

func newTestGateway(d Deps) http.Handler {
	if d.Monitor == nil {
		d.Monitor = &fakeMonitor{}
	}
	return NewGateway(Config{HTTPTimeout: time.Second}, d).Router()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMonitorEndpoints(t *testing.T) {
	t.Parallel()

	mean := 130.0
	mon := &fakeMonitor{
		zones: []model.ZoneSummary{
			{Location: "Cheras", HazardLevel: model.HazardCritical, Metric: "waterLevel", SummaryMetric: &mean, Members: 3, Hazardous: 2},
			{Location: "Kampung Baru", HazardLevel: model.HazardNone, Members: 2},
		},
		alerts: []model.Alert{{ID: "1", Message: "FLOOD WARNING: Cheras"}, {ID: "2", Message: "bin-01 is full"}},
		latest: []model.Reading{{EntityID: "fs-cheras-1", LocationName: "Cheras"}},
	}
	h := newTestGateway(Deps{Monitor: mon})

	rec := do(t, h, http.MethodGet, "/api/zones", "")
	var zones []model.ZoneSummary
	if err := json.NewDecoder(rec.Body).Decode(&zones); err != nil || len(zones) != 2 || *zones[0].SummaryMetric != 130 {
		t.Fatalf("zones %v %+v", err, zones)
	}

	rec = do(t, h, http.MethodGet, "/api/alerts?limit=1", "")
	var alerts []model.Alert
	if err := json.NewDecoder(rec.Body).Decode(&alerts); err != nil || len(alerts) != 1 {
		t.Fatalf("alerts %v %+v", err, alerts)
	}

	rec = do(t, h, http.MethodGet, "/api/entities/fs-cheras-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("entity code %d", rec.Code)
	}
	if rec = do(t, h, http.MethodGet, "/api/entities/nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown entity code %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/dashboard", "")
	var dash DashboardData
	if err := json.NewDecoder(rec.Body).Decode(&dash); err != nil {
		t.Fatal(err)
	}
	if dash.Stats["zones_critical"] != 1 || dash.Stats["zones_none"] != 1 || dash.Stats["entities"] != 1 {
		t.Fatalf("stats %v", dash.Stats)
	}
}

func TestEmptyListsEncodeAsArrays(t *testing.T) {
	t.Parallel()

	h := newTestGateway(Deps{})
	for _, path := range []string{"/api/alerts", "/api/entities"} {
		rec := do(t, h, http.MethodGet, path, "")
		if strings.TrimSpace(rec.Body.String()) != "[]" {
			t.Errorf("%s body %q", path, rec.Body.String())
		}
	}
}

func TestWeatherFeedsMonitor(t *testing.T) {
	t.Parallel()

	fw := &fakeWeather{}
	var observed []model.Reading
	h := newTestGateway(Deps{Weather: fw, OnWeather: func(r model.Reading) { observed = append(observed, r) }})

	if rec := do(t, h, http.MethodGet, "/api/weather", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing q code %d", rec.Code)
	}
	rec := do(t, h, http.MethodGet, "/api/weather?q=Kuala+Lumpur", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code %d", rec.Code)
	}
	if len(fw.calls) != 1 || fw.calls[0] != "Kuala Lumpur" || len(observed) != 1 {
		t.Fatalf("calls %v observed %d", fw.calls, len(observed))
	}
}

func TestMissingBackendsAnswer503(t *testing.T) {
	t.Parallel()

	h := newTestGateway(Deps{})
	for _, path := range []string{
		"/api/weather?q=x", "/api/geocode?q=x", "/api/route?from=1,2&to=3,4",
		"/api/entities/bus-01/history", "/api/alerts/history", "/api/alerts/archive",
	} {
		if rec := do(t, h, http.MethodGet, path, ""); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s code %d", path, rec.Code)
		}
	}
}

func TestGeocodeAndRoute(t *testing.T) {
	t.Parallel()

	fr := &fakeRouter{}
	h := newTestGateway(Deps{Geocoder: fakeGeo{}, Router: fr})

	if rec := do(t, h, http.MethodGet, "/api/geocode?q=Atlantis", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("not found code %d", rec.Code)
	}
	rec := do(t, h, http.MethodGet, "/api/route?from=3.1478,101.6953&to=Cheras", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("route code %d: %s", rec.Code, rec.Body.String())
	}
	if fr.from.Lat != 3.1478 || fr.to.Lon != 101.74 {
		t.Fatalf("resolved %+v -> %+v", fr.from, fr.to)
	}
	var resp RouteResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil || resp.Route.DistanceM != 1200 {
		t.Fatalf("route %v %+v", err, resp)
	}
	if rec := do(t, h, http.MethodGet, "/api/route?from=1,2", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing to code %d", rec.Code)
	}
}

func TestEntityHistory(t *testing.T) {
	t.Parallel()

	h := newTestGateway(Deps{History: fakeHistory{}})
	rec := do(t, h, http.MethodGet, "/api/entities/bus-01/history?minutes=5&limit=3", "")
	var pts []persistence.HistoryPoint
	if err := json.NewDecoder(rec.Body).Decode(&pts); err != nil || len(pts) != 1 {
		t.Fatalf("history %v %+v", err, pts)
	}
	if pts[0].Metrics["minutes"] != 5 || pts[0].Metrics["limit"] != 3 {
		t.Fatalf("params %v", pts[0].Metrics)
	}

	h = newTestGateway(Deps{History: fakeHistory{err: errors.New("influx down")}})
	rec = do(t, h, http.MethodGet, "/api/entities/bus-01/history", "")
	if rec.Code != http.StatusOK || rec.Header().Get("X-Error") == "" || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("degraded history: %d %q", rec.Code, rec.Body.String())
	}
}

func TestAlertArchive(t *testing.T) {
	t.Parallel()

	fa := &fakeArchive{}
	h := newTestGateway(Deps{Archive: fa})
	rec := do(t, h, http.MethodGet, "/api/alerts/archive?minutes=60", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code %d", rec.Code)
	}
	if age := time.Since(fa.since); age < 59*time.Minute || age > 61*time.Minute {
		t.Fatalf("since %v ago", age)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	t.Parallel()

	store := settings.NewStore(settings.Default())
	h := newTestGateway(Deps{Settings: store})

	rec := do(t, h, http.MethodPut, "/api/settings", `{"alerts_muted":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put code %d: %s", rec.Code, rec.Body.String())
	}
	if got := store.Get(); !got.AlertsMuted || got.Theme != settings.ThemeLight {
		t.Fatalf("store %+v", got)
	}

	if rec := do(t, h, http.MethodPut, "/api/settings", `{"theme":"neon"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid theme code %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPut, "/api/settings", `{`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json code %d", rec.Code)
	}
	if store.Get().Theme != settings.ThemeLight {
		t.Fatal("rejected update must not be applied")
	}

	rec = do(t, h, http.MethodGet, "/api/settings", "")
	var s settings.Settings
	if err := json.NewDecoder(rec.Body).Decode(&s); err != nil || !s.AlertsMuted {
		t.Fatalf("get %v %+v", err, s)
	}
}

func TestProbesAndUpstreams(t *testing.T) {
	t.Parallel()

	up := weather.NewUpstream("weatherapi", weather.DefaultUpstreamConfig())
	h := newTestGateway(Deps{Upstreams: []*weather.Upstream{up}})

	if rec := do(t, h, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Fatalf("readyz %d", rec.Code)
	}
	rec := do(t, h, http.MethodGet, "/healthz", "")
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("healthz %s", rec.Body.String())
	}
	rec = do(t, h, http.MethodGet, "/api/upstreams", "")
	var st []UpstreamStatus
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil || len(st) != 1 || st[0].State != "closed" {
		t.Fatalf("upstreams %v %+v", err, st)
	}
	if rec := do(t, h, http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK {
		t.Fatalf("metrics %d", rec.Code)
	}
}
