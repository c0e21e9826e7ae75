package app

import (
	"github.com/LeonardoBeccarini/citywatch/internal/model"
	"github.com/LeonardoBeccarini/citywatch/internal/services/weather"
)

// ---------- Payload verso la dashboard ----------

type DashboardData struct {
	Zones    []model.ZoneSummary `json:"zones"`
	Alerts   []model.Alert       `json:"alerts"`
	Entities []model.Reading     `json:"entities"`
	Stats    map[string]float64  `json:"stats"`
	Muted    bool                `json:"alerts_muted"`
}

type UpstreamStatus struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

type RouteResponse struct {
	From  model.Coordinates `json:"from"`
	To    model.Coordinates `json:"to"`
	Route weather.Route     `json:"route"`
}

type errorBody struct {
	Error string `json:"error"`
}
