package weather

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/citywatch/internal/model/entities"
	"github.com/LeonardoBeccarini/citywatch/internal/model/messages"
)

// Provider returns the current conditions for a free-text query
// ("Kuala Lumpur", "3.14,101.69").
type Provider interface {
	Current(ctx context.Context, query string) (messages.Reading, error)
}

const SourceWeatherAPI = "weatherapi"

type wapiResp struct {
	Location struct {
		Name    string  `json:"name"`
		Region  string  `json:"region"`
		Country string  `json:"country"`
		Lat     float64 `json:"lat"`
		Lon     float64 `json:"lon"`
	} `json:"location"`
	Current struct {
		LastUpdatedEpoch int64   `json:"last_updated_epoch"`
		TempC            float64 `json:"temp_c"`
		FeelsLikeC       float64 `json:"feelslike_c"`
		WindMph          float64 `json:"wind_mph"`
		WindKph          float64 `json:"wind_kph"`
		GustMph          float64 `json:"gust_mph"`
		PressureMb       float64 `json:"pressure_mb"`
		PrecipMm         float64 `json:"precip_mm"`
		Humidity         float64 `json:"humidity"`
		Cloud            float64 `json:"cloud"`
		VisKm            float64 `json:"vis_km"`
		UV               float64 `json:"uv"`
		Condition        struct {
			Text string `json:"text"`
		} `json:"condition"`
	} `json:"current"`
}

// WeatherAPI è il client per api.weatherapi.com (current.json).
type WeatherAPI struct {
	up      *Upstream
	baseURL string
	apiKey  string
}

func NewWeatherAPI(baseURL, apiKey string, up *Upstream) *WeatherAPI {
	if baseURL == "" {
		baseURL = "https://api.weatherapi.com/v1"
	}
	return &WeatherAPI{up: up, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

func (c *WeatherAPI) Current(ctx context.Context, query string) (messages.Reading, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return messages.Reading{}, errors.New("weather: empty query")
	}
	if c.apiKey == "" {
		return messages.Reading{}, errors.New("weather: missing api key")
	}

	u := fmt.Sprintf("%s/current.json?key=%s&q=%s&aqi=no",
		c.baseURL, url.QueryEscape(c.apiKey), url.QueryEscape(query))
	var out wapiResp
	if err := c.up.GetJSON(ctx, u, &out); err != nil {
		return messages.Reading{}, err
	}
	if out.Location.Name == "" {
		return messages.Reading{}, fmt.Errorf("weather %q: %w", query, ErrNotFound)
	}
	return out.toReading(), nil
}

func (w wapiResp) toReading() messages.Reading {
	loc, cur := w.Location, w.Current
	observed := time.Now().UTC()
	if cur.LastUpdatedEpoch > 0 {
		observed = time.Unix(cur.LastUpdatedEpoch, 0).UTC()
	}
	parts := []string{loc.Name}
	for _, p := range []string{loc.Region, loc.Country} {
		if p != "" && p != loc.Name {
			parts = append(parts, p)
		}
	}
	return messages.Reading{
		EntityID:     "weather:" + strings.ToLower(loc.Name),
		LocationName: loc.Name,
		DisplayName:  strings.Join(parts, ", "),
		Coordinates:  entities.Coordinates{Lat: loc.Lat, Lon: loc.Lon},
		Metrics: map[string]float64{
			"temp_c":      cur.TempC,
			"feelslike_c": cur.FeelsLikeC,
			"wind_mph":    cur.WindMph,
			"wind_kph":    cur.WindKph,
			"gust_mph":    cur.GustMph,
			"pressure_mb": cur.PressureMb,
			"precip_mm":   cur.PrecipMm,
			"humidity":    cur.Humidity,
			"cloud":       cur.Cloud,
			"vis_km":      cur.VisKm,
			"uv":          cur.UV,
		},
		Status:     cur.Condition.Text,
		ObservedAt: observed,
		Source:     SourceWeatherAPI,
	}
}
