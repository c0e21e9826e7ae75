package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/LeonardoBeccarini/citywatch/internal/hub"
	"github.com/LeonardoBeccarini/citywatch/internal/model"
	"github.com/LeonardoBeccarini/citywatch/internal/services/event"
	"github.com/LeonardoBeccarini/citywatch/internal/services/persistence"
	"github.com/LeonardoBeccarini/citywatch/internal/services/weather"
	"github.com/LeonardoBeccarini/citywatch/pkg/settings"
)

type Config struct {
	HTTPTimeout time.Duration
	// ReadyMinErrAge: /readyz fallisce se l'ultimo errore Influx è più recente.
	ReadyMinErrAge time.Duration

	Logger *log.Logger
}

// Monitor is the read side of the monitor pipeline.
type Monitor interface {
	Zones() []model.ZoneSummary
	RecentAlerts(limit int) []model.Alert
	Latest() []model.Reading
}

type HistoryQuerier interface {
	QueryHistory(ctx context.Context, entityID string, minutes, limit int) ([]persistence.HistoryPoint, error)
}

type AlertArchive interface {
	Recent(ctx context.Context, since time.Time, limit int) ([]model.Alert, error)
}

// Deps wires the gateway to the rest of the process. Only Monitor and
// Settings are required; missing backends answer 503.
type Deps struct {
	Monitor  Monitor
	Settings *settings.Store

	Weather  weather.Provider
	Geocoder weather.Geocoder
	Router   weather.Router
	// OnWeather riceve le letture richieste dalla UI, per valutarne gli alert.
	OnWeather func(model.Reading)

	History      HistoryQuerier
	AlertHistory http.Handler // Influx-backed /api/alerts/history
	Archive      AlertArchive
	Hub          *hub.Hub
	Health       event.Deps
	Upstreams    []*weather.Upstream
}

type Gateway struct {
	cfg  Config
	deps Deps
}

func NewGateway(cfg Config, deps Deps) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 8 * time.Second
	}
	if cfg.ReadyMinErrAge <= 0 {
		cfg.ReadyMinErrAge = 30 * time.Second
	}
	if deps.Settings == nil {
		deps.Settings = settings.NewStore(settings.Default())
	}
	return &Gateway{cfg: cfg, deps: deps}
}
