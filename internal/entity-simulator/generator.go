package entity_simulator

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/citywatch/internal/model/entities"
	"github.com/LeonardoBeccarini/citywatch/internal/model/messages"
)

const (
	// metrica seedata dal meteo all'avvio
	temperatureMetric = "temperature"
	weatherTempMetric = "temp_c"
)

// WeatherSource is the slice of the weather capability the generator needs.
type WeatherSource interface {
	Current(ctx context.Context, query string) (messages.Reading, error)
}

// Generator advances entity state. It is deterministic for a given rng.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

func NewGenerator(rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{rng: rng, now: func() time.Time { return time.Now().UTC() }}
}

// uniform returns a value in [-a, a).
func (g *Generator) uniform(a float64) float64 {
	return (g.rng.Float64()*2 - 1) * a
}

// Tick moves e one step and returns the resulting reading.
// Positions random-walk by at most step/2 per axis and are clamped into the
// entity's bounds; metrics random-walk with drift and are clamped to their spec.
// e must not be nil.
func (g *Generator) Tick(e *entities.Entity) messages.Reading {
	if e == nil {
		panic("entity simulator: Tick called with a nil entity")
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if e.Step > 0 {
		e.Position.Lat += (g.rng.Float64() - 0.5) * e.Step
		e.Position.Lon += (g.rng.Float64() - 0.5) * e.Step
	}
	e.Position = e.Bounds.Clamp(e.Position)

	if e.Metrics == nil && len(e.Specs) > 0 {
		e.Metrics = make(map[string]float64, len(e.Specs))
	}
	for _, spec := range e.Specs {
		old, ok := e.Metrics[spec.Name]
		if !ok {
			old = spec.Initial
		}
		e.Metrics[spec.Name] = spec.Clamp(spec.Clamp(old) + g.uniform(spec.Jitter) + spec.Drift)
	}

	metrics := make(map[string]float64, len(e.Metrics))
	for k, v := range e.Metrics {
		metrics[k] = v
	}
	status := ""
	if e.StatusRule != nil {
		status = e.StatusRule.Classify(metrics)
	}

	return messages.Reading{
		EntityID:     e.ID,
		LocationName: e.Location,
		DisplayName:  e.Name,
		Coordinates:  e.Position,
		Metrics:      metrics,
		Status:       status,
		ObservedAt:   g.now(),
		Source:       "simulator",
	}
}

// SeedFromWeather --> singola fetch meteo all'avvio per la temperatura.
// On any failure the registry value is kept.
func (g *Generator) SeedFromWeather(ctx context.Context, src WeatherSource, e *entities.Entity) error {
	var spec *entities.MetricSpec
	for i := range e.Specs {
		if e.Specs[i].Name == temperatureMetric {
			spec = &e.Specs[i]
			break
		}
	}
	if spec == nil || src == nil {
		return nil
	}

	q := fmt.Sprintf("%.4f,%.4f", e.Position.Lat, e.Position.Lon)
	r, err := src.Current(ctx, q)
	if err != nil {
		return fmt.Errorf("seed %s: %w", e.ID, err)
	}
	t, ok := r.Metric(weatherTempMetric)
	if !ok {
		return fmt.Errorf("seed %s: no %s in weather reading", e.ID, weatherTempMetric)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if e.Metrics == nil {
		e.Metrics = make(map[string]float64)
	}
	e.Metrics[temperatureMetric] = spec.Clamp(t)
	return nil
}
