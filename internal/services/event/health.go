package event

import (
	"encoding/json"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
)

// Deps are the backends reported by /healthz and /readyz.
// A nil backend is not configured and does not count against readiness.
type Deps struct {
	MQTT   mqtt.Client
	Influx influxdb2.Client
	Writer *Writer
}

func (d Deps) mqttOK() *bool {
	if d.MQTT == nil {
		return nil
	}
	ok := d.MQTT.IsConnectionOpen()
	return &ok
}

func (d Deps) influxOK() *bool {
	if d.Influx == nil {
		return nil
	}
	ok := true // esistenza client (check leggero)
	return &ok
}

func isFalse(b *bool) bool { return b != nil && !*b }

type healthHandler struct{ deps Deps }

func NewHealthHandler(d Deps) http.Handler { return &healthHandler{deps: d} }

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	type status struct {
		Status          string   `json:"status"`
		MQTTConnected   *bool    `json:"mqtt_connected,omitempty"`
		InfluxOK        *bool    `json:"influx_ok,omitempty"`
		LastWriteErrorS *float64 `json:"last_write_error_age_sec,omitempty"`
	}
	st := status{
		MQTTConnected: h.deps.mqttOK(),
		InfluxOK:      h.deps.influxOK(),
	}
	recentErr := false
	if h.deps.Writer != nil {
		age := h.deps.Writer.LastErrorAge()
		s := age.Seconds()
		st.LastWriteErrorS = &s
		recentErr = age <= 30*time.Second
	}

	failed := 0
	for _, b := range []*bool{st.MQTTConnected, st.InfluxOK} {
		if isFalse(b) {
			failed++
		}
	}
	switch {
	case failed == 0 && !recentErr:
		st.Status = "ok"
	case failed < 2:
		st.Status = "degraded"
	default:
		st.Status = "down"
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}

// Handler /readyz: 200 solo se tutte le dipendenze configurate sono ok.
type readyHandler struct {
	deps     Deps
	minError time.Duration
}

func NewReadyHandler(d Deps, minOkErrorAge time.Duration) http.Handler {
	return &readyHandler{deps: d, minError: minOkErrorAge}
}

func (h *readyHandler) Ready() bool {
	if isFalse(h.deps.mqttOK()) || isFalse(h.deps.influxOK()) {
		return false
	}
	return h.deps.Writer == nil || h.deps.Writer.LastErrorAge() > h.minError
}

func (h *readyHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	ready := h.Ready()
	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	type resp struct {
		Ready bool `json:"ready"`
	}
	_ = json.NewEncoder(w).Encode(resp{Ready: ready})
}
