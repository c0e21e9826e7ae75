package entities

import (
	"math"
	"time"
)

// EntityClass groups entities that share a tick period and a step size.
type EntityClass string

const (
	ClassVehicle     EntityClass = "vehicle"
	ClassTruck       EntityClass = "truck"
	ClassBin         EntityClass = "bin"
	ClassFloodSensor EntityClass = "flood_sensor"
	ClassWeather     EntityClass = "weather" // fetched, never simulated
	ClassZone        EntityClass = "zone"
)

// Coordinates is a point in WGS84 degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// MetricSpec describes the random walk of one telemetry metric.
// Each tick: new = clamp(old + uniform(-Jitter, Jitter) + Drift, Min, Max).
type MetricSpec struct {
	Name    string  `json:"name"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Jitter  float64 `json:"jitter"`
	Drift   float64 `json:"drift,omitempty"` // >0 trends up (fill level), <0 trends down (battery)
	Initial float64 `json:"initial"`
}

// Clamp forces v into [Min, Max]. A NaN collapses to Initial (itself clamped).
func (m MetricSpec) Clamp(v float64) float64 {
	if math.IsNaN(v) {
		v = m.Initial
		if math.IsNaN(v) {
			v = m.Min
		}
	}
	if v < m.Min {
		return m.Min
	}
	if v > m.Max {
		return m.Max
	}
	return v
}

// StatusLevel maps "metric >= AtLeast" to a status tag.
type StatusLevel struct {
	AtLeast float64 `json:"at_least"`
	Status  string  `json:"status"`
}

// StatusRule derives the status tag of a reading from one metric.
// Levels are checked highest first; Default applies when none matches
// or the metric is missing.
type StatusRule struct {
	Metric  string        `json:"metric"`
	Levels  []StatusLevel `json:"levels"`
	Default string        `json:"default"`
}

func (r StatusRule) Classify(metrics map[string]float64) string {
	v, ok := metrics[r.Metric]
	if !ok || math.IsNaN(v) {
		return r.Default
	}
	best := -1
	for i, l := range r.Levels {
		if v >= l.AtLeast && (best < 0 || l.AtLeast > r.Levels[best].AtLeast) {
			best = i
		}
	}
	if best < 0 {
		return r.Default
	}
	return r.Levels[best].Status
}

// Entity is a tracked mobile or IoT point. Its position and metrics are
// owned by the simulator that ticks it.
type Entity struct {
	ID         string             `json:"id"`
	Class      EntityClass        `json:"class"`
	Name       string             `json:"name,omitempty"`
	Location   string             `json:"location"`
	Position   Coordinates        `json:"position"`
	Step       float64            `json:"step"`     // max degrees moved per tick
	PeriodS    float64            `json:"period_s"` // tick period in seconds
	Bounds     Bounds             `json:"bounds"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	Specs      []MetricSpec       `json:"specs,omitempty"`
	StatusRule *StatusRule        `json:"status_rule,omitempty"`
}

// MinPeriod is the shortest tick period a registry may ask for.
const MinPeriod = time.Millisecond

// Period is the tick period of e. Unset, non-finite or sub-millisecond
// values fall back to the class default.
func (e *Entity) Period() time.Duration {
	if !(e.PeriodS > 0) || math.IsInf(e.PeriodS, 0) {
		return DefaultPeriod(e.Class)
	}
	d := time.Duration(e.PeriodS * float64(time.Second))
	if d < MinPeriod {
		return DefaultPeriod(e.Class)
	}
	return d
}

// DefaultPeriod returns the tick period used when the registry does not set one.
func DefaultPeriod(c EntityClass) time.Duration {
	switch c {
	case ClassVehicle:
		return 2 * time.Second
	case ClassBin:
		return 3 * time.Second
	default:
		return 5 * time.Second
	}
}

// DisplayName is the label used in alert messages.
func (e *Entity) DisplayName() string {
	if e.Name != "" {
		return e.Name
	}
	return e.ID
}
