package messages

import (
	"time"

	"github.com/LeonardoBeccarini/citywatch/internal/model/entities"
)

type HazardLevel string

const (
	HazardNone     HazardLevel = "NONE"
	HazardWarning  HazardLevel = "WARNING"
	HazardCritical HazardLevel = "CRITICAL"
)

// Rank orders hazard levels: NONE=0, WARNING=1, CRITICAL=2.
func (h HazardLevel) Rank() int {
	switch h {
	case HazardWarning:
		return 1
	case HazardCritical:
		return 2
	default:
		return 0
	}
}

// ZoneSummary is the wire form of an aggregated zone.
type ZoneSummary struct {
	Location      string                 `json:"location"`
	HazardLevel   HazardLevel            `json:"hazard_level"`
	Metric        string                 `json:"metric,omitempty"`
	SummaryMetric *float64               `json:"summary_metric,omitempty"`
	Members       int                    `json:"members"`
	Hazardous     int                    `json:"hazardous"`
	Boundary      []entities.Coordinates `json:"boundary,omitempty"`
	ComputedAt    time.Time              `json:"computed_at"`
}
