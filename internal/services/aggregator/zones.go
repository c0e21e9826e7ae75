package aggregator

import (
	"sort"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/citywatch/internal/model/entities"
	"github.com/LeonardoBeccarini/citywatch/internal/model/messages"
)

const (
	DefaultHazardStatus = "flooded"
	DefaultMetric       = "waterLevel"

	// metriche esposte da Zone.AsReading
	MetricHazardRank      = "hazard_rank"
	MetricHazardousMember = "hazardous_members"
	MetricMembers         = "members"
)

// HazardPolicy turns (hazardous, total) member counts into a hazard level.
// It is only consulted when hazardous > 0.
type HazardPolicy interface {
	Level(hazardous, total int) messages.HazardLevel
}

type HazardPolicyFunc func(hazardous, total int) messages.HazardLevel

func (f HazardPolicyFunc) Level(hazardous, total int) messages.HazardLevel { return f(hazardous, total) }

var (
	// AnyHazardous: a single flooded sensor makes the zone CRITICAL.
	AnyHazardous HazardPolicy = HazardPolicyFunc(func(int, int) messages.HazardLevel {
		return messages.HazardCritical
	})

	// Proportional: WARNING while some members are still safe.
	Proportional HazardPolicy = HazardPolicyFunc(func(hazardous, total int) messages.HazardLevel {
		if hazardous < total {
			return messages.HazardWarning
		}
		return messages.HazardCritical
	})
)

// PolicyByName resolves "any" and "proportional".
func PolicyByName(name string) (HazardPolicy, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "any":
		return AnyHazardous, true
	case "proportional":
		return Proportional, true
	}
	return nil, false
}

// Zone is the aggregation of the readings sharing a location name.
type Zone struct {
	Location      string
	Order         int // first appearance in the input
	Metric        string
	Members       []messages.Reading
	Hazardous     []messages.Reading
	HazardLevel   messages.HazardLevel
	SummaryMetric float64
	HasSummary    bool
	Boundary      []entities.Coordinates
}

// Aggregator is stateless: the same input always gives the same zones.
type Aggregator struct {
	HazardStatuses []string
	Metric         string
	Policy         HazardPolicy

	// HazardCapable, se impostato, restringe il totale passato alla policy
	// ai membri che possono segnalare un rischio (es. solo i sensori di
	// allagamento). Hazardous members always count. Members is unaffected.
	HazardCapable func(messages.Reading) bool
}

// CarriesMetric reports readings that carry the named metric; with the
// default metric it selects the flood sensors of a zone.
func CarriesMetric(name string) func(messages.Reading) bool {
	return func(r messages.Reading) bool {
		_, ok := r.Metrics[name]
		return ok
	}
}

func (a *Aggregator) policyTotal(z Zone) int {
	if a.HazardCapable == nil {
		return len(z.Members)
	}
	n := 0
	for _, r := range z.Members {
		if a.isHazardous(r.Status) || a.HazardCapable(r) {
			n++
		}
	}
	return n
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		HazardStatuses: []string{DefaultHazardStatus},
		Metric:         DefaultMetric,
		Policy:         AnyHazardous,
	}
}

func (a *Aggregator) isHazardous(status string) bool {
	for _, s := range a.HazardStatuses {
		if strings.EqualFold(s, status) {
			return true
		}
	}
	return false
}

// Aggregate groups readings by location and classifies each group.
// Every reading lands in exactly one zone; readings without a location go
// to "unknown".
func (a *Aggregator) Aggregate(readings []messages.Reading) map[string]Zone {
	policy := a.Policy
	if policy == nil {
		policy = AnyHazardous
	}
	metric := a.Metric
	if metric == "" {
		metric = DefaultMetric
	}

	zones := make(map[string]Zone)
	for _, r := range readings {
		key := r.Zone()
		z, ok := zones[key]
		if !ok {
			z = Zone{Location: key, Order: len(zones), Metric: metric}
		}
		z.Members = append(z.Members, r)
		if a.isHazardous(r.Status) {
			z.Hazardous = append(z.Hazardous, r)
		}
		zones[key] = z
	}

	for key, z := range zones {
		if len(z.Hazardous) == 0 {
			z.HazardLevel = messages.HazardNone
			zones[key] = z
			continue
		}
		z.HazardLevel = policy.Level(len(z.Hazardous), a.policyTotal(z))
		if z.HazardLevel.Rank() == 0 {
			z.HazardLevel = messages.HazardWarning
		}

		var sum float64
		var n int
		pts := make([]entities.Coordinates, 0, len(z.Hazardous))
		for _, r := range z.Hazardous {
			if v, ok := r.Metric(metric); ok {
				sum += v
				n++
			}
			pts = append(pts, r.Coordinates)
		}
		if n > 0 {
			z.SummaryMetric = sum / float64(n)
			z.HasSummary = true
		}
		z.Boundary = ConvexHull(pts)
		zones[key] = z
	}
	return zones
}

// Sorted returns zones in first-appearance order.
func Sorted(zones map[string]Zone) []Zone {
	out := make([]Zone, 0, len(zones))
	for _, z := range zones {
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Summary is the wire form of the zone.
func (z Zone) Summary(at time.Time) messages.ZoneSummary {
	s := messages.ZoneSummary{
		Location:    z.Location,
		HazardLevel: z.HazardLevel,
		Members:     len(z.Members),
		Hazardous:   len(z.Hazardous),
		Boundary:    z.Boundary,
		ComputedAt:  at,
	}
	if z.HasSummary {
		v := z.SummaryMetric
		s.Metric = z.Metric
		s.SummaryMetric = &v
	}
	return s
}

// AsReading lets zone hazards go through the same alert rules as point
// readings. The position is the centroid of the members.
func (z Zone) AsReading() messages.Reading {
	var c entities.Coordinates
	for _, m := range z.Members {
		c.Lat += m.Coordinates.Lat
		c.Lon += m.Coordinates.Lon
	}
	if n := float64(len(z.Members)); n > 0 {
		c.Lat /= n
		c.Lon /= n
	}
	metrics := map[string]float64{
		MetricHazardRank:      float64(z.HazardLevel.Rank()),
		MetricHazardousMember: float64(len(z.Hazardous)),
		MetricMembers:         float64(len(z.Members)),
	}
	if z.HasSummary {
		metrics[z.Metric+"_mean"] = z.SummaryMetric
	}
	loc := z.Location
	if loc == messages.UnknownLocation {
		loc = ""
	}
	return messages.Reading{
		EntityID:     "zone:" + z.Location,
		LocationName: loc,
		DisplayName:  z.Location,
		Coordinates:  c,
		Metrics:      metrics,
		Status:       string(z.HazardLevel),
		ObservedAt:   time.Now().UTC(),
		Source:       "aggregator",
	}
}
