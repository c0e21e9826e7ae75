package messages

import (
	"errors"
	"math"
	"time"

	"github.com/LeonardoBeccarini/citywatch/internal/model/entities"
)

// UnknownLocation is the zone key for readings without a location name.
const UnknownLocation = "unknown"

var ErrInvalidReading = errors.New("invalid reading")

// Reading is a timestamped observation at a point.
type Reading struct {
	EntityID     string               `json:"entity_id"`
	LocationName string               `json:"location_name"`
	DisplayName  string               `json:"display_name,omitempty"` // "name, region, country"
	Coordinates  entities.Coordinates `json:"coordinates"`
	Metrics      map[string]float64   `json:"metrics"`
	Status       string               `json:"status,omitempty"`
	ObservedAt   time.Time            `json:"observed_at"`
	Source       string               `json:"source,omitempty"`
}

// Metric returns the named metric. Missing, NaN and infinite values are
// reported as absent.
func (r Reading) Metric(name string) (float64, bool) {
	v, ok := r.Metrics[name]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Zone returns the grouping key of the reading.
func (r Reading) Zone() string {
	if r.LocationName == "" {
		return UnknownLocation
	}
	return r.LocationName
}

// Subject is the human label substituted into alert messages.
func (r Reading) Subject() string {
	switch {
	case r.DisplayName != "":
		return r.DisplayName
	case r.LocationName != "":
		return r.LocationName
	default:
		return r.EntityID
	}
}

// Validate rejects readings that identify nothing at all.
// Coordinates outside the operational region are a data-quality issue and pass.
func (r Reading) Validate() error {
	if r.EntityID == "" && r.LocationName == "" {
		return ErrInvalidReading
	}
	return nil
}

// Clone copies the metrics map so the reading can be handed to another goroutine.
func (r Reading) Clone() Reading {
	if r.Metrics != nil {
		m := make(map[string]float64, len(r.Metrics))
		for k, v := range r.Metrics {
			m[k] = v
		}
		r.Metrics = m
	}
	return r
}
