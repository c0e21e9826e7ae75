package weather

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/citywatch/internal/metrics"
	"github.com/LeonardoBeccarini/citywatch/internal/model/entities"
	"github.com/LeonardoBeccarini/citywatch/internal/model/messages"
)

const (
	FallbackLastGood = "last_good"
	FallbackDemo     = "demo"

	SourceFallback = "fallback"
	SourceDemo     = "demo"
)

// Notice tells the UI that stale or demo data is being shown.
type Notice struct {
	Upstream string    `json:"upstream"`
	Kind     string    `json:"kind"`
	Query    string    `json:"query"`
	Error    string    `json:"error"`
	At       time.Time `json:"at"`
}

// FallbackProvider wraps a live provider. When the live call fails it
// serves the last good reading for the query, else demo data, and reports
// a Notice. It never returns an error.
type FallbackProvider struct {
	primary Provider
	name    string

	mu       sync.Mutex
	lastGood map[string]messages.Reading
	demo     map[string]messages.Reading
	notify   []func(Notice)
	now      func() time.Time
}

func NewFallbackProvider(name string, primary Provider, demo []messages.Reading) *FallbackProvider {
	if demo == nil {
		demo = DemoReadings()
	}
	f := &FallbackProvider{
		primary:  primary,
		name:     name,
		lastGood: make(map[string]messages.Reading),
		demo:     make(map[string]messages.Reading, len(demo)),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, r := range demo {
		f.demo[normQuery(r.LocationName)] = r
	}
	return f
}

// OnFallback registers a notice hook. Hooks run on the caller's goroutine.
func (f *FallbackProvider) OnFallback(fn func(Notice)) {
	f.mu.Lock()
	f.notify = append(f.notify, fn)
	f.mu.Unlock()
}

func normQuery(q string) string { return strings.ToLower(strings.TrimSpace(q)) }

func (f *FallbackProvider) Current(ctx context.Context, query string) (messages.Reading, error) {
	key := normQuery(query)
	var err error
	if f.primary != nil {
		var r messages.Reading
		r, err = f.primary.Current(ctx, query)
		if err == nil {
			f.mu.Lock()
			f.lastGood[key] = r.Clone()
			f.mu.Unlock()
			return r, nil
		}
	}

	f.mu.Lock()
	r, kind := f.pickLocked(key)
	hooks := append([]func(Notice){}, f.notify...)
	f.mu.Unlock()

	n := Notice{Upstream: f.name, Kind: kind, Query: query, At: f.now()}
	if err != nil {
		n.Error = err.Error()
		log.Printf("weather: %s failed for %q, serving %s data: %v", f.name, query, kind, err)
	}
	metrics.FallbackServed.WithLabelValues(f.name, kind).Inc()
	for _, h := range hooks {
		h(n)
	}
	return r, nil
}

func (f *FallbackProvider) pickLocked(key string) (messages.Reading, string) {
	if r, ok := f.lastGood[key]; ok {
		r = r.Clone()
		r.Source = SourceFallback
		return r, FallbackLastGood
	}
	r, ok := f.demo[key]
	if !ok {
		r = f.demo[normQuery(demoDefault)]
	}
	r = r.Clone()
	r.Source = SourceDemo
	r.ObservedAt = f.now()
	return r, FallbackDemo
}

const demoDefault = "Kuala Lumpur"

func demo(name, region string, lat, lon, temp, wind, precip, pressure, humidity float64, cond string) messages.Reading {
	return messages.Reading{
		EntityID:     "weather:" + strings.ToLower(name),
		LocationName: name,
		DisplayName:  name + ", " + region + ", Malaysia",
		Coordinates:  entities.Coordinates{Lat: lat, Lon: lon},
		Metrics: map[string]float64{
			"temp_c":      temp,
			"wind_mph":    wind,
			"precip_mm":   precip,
			"pressure_mb": pressure,
			"humidity":    humidity,
		},
		Status: cond,
		Source: SourceDemo,
	}
}

// DemoReadings è il dataset statico usato quando nessuna API risponde.
func DemoReadings() []messages.Reading {
	return []messages.Reading{
		demo("Kuala Lumpur", "Kuala Lumpur", 3.1390, 101.6869, 31, 7.4, 0.3, 1009, 74, "Partly cloudy"),
		demo("Petaling Jaya", "Selangor", 3.1073, 101.6067, 30, 6.2, 1.1, 1009, 79, "Patchy rain nearby"),
		demo("Shah Alam", "Selangor", 3.0733, 101.5185, 32, 5.8, 0, 1008, 70, "Sunny"),
		demo("Putrajaya", "Putrajaya", 2.9264, 101.6964, 29, 8.1, 4.2, 1010, 85, "Light rain shower"),
	}
}
