package entity_simulator

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/LeonardoBeccarini/citywatch/internal/model/entities"
)

// LoadRegistry reads a JSON array of entities. An empty path returns the
// built-in demo registry.
func LoadRegistry(path string) ([]entities.Entity, error) {
	if path == "" {
		return DefaultRegistry(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var list []entities.Entity
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	if err := ValidateRegistry(list); err != nil {
		return nil, fmt.Errorf("registry %s: %w", path, err)
	}
	return list, nil
}

func ValidateRegistry(list []entities.Entity) error {
	seen := make(map[string]bool, len(list))
	for i, e := range list {
		if e.ID == "" {
			return fmt.Errorf("entity #%d without id", i)
		}
		if seen[e.ID] {
			return fmt.Errorf("duplicate entity id %q", e.ID)
		}
		seen[e.ID] = true
		if e.Step < 0 || e.PeriodS < 0 {
			return fmt.Errorf("entity %s: negative step or period", e.ID)
		}
		if e.PeriodS > 0 && (math.IsInf(e.PeriodS, 0) || time.Duration(e.PeriodS*float64(time.Second)) < entities.MinPeriod) {
			return fmt.Errorf("entity %s: period_s %g out of range (min %s)", e.ID, e.PeriodS, entities.MinPeriod)
		}
		b := e.Bounds
		if !b.IsZero() && (b.MinLat > b.MaxLat || b.MinLon > b.MaxLon) {
			return fmt.Errorf("entity %s: inverted bounds", e.ID)
		}
		for _, s := range e.Specs {
			if s.Name == "" {
				return fmt.Errorf("entity %s: metric spec without name", e.ID)
			}
			if s.Min > s.Max {
				return fmt.Errorf("entity %s: metric %s has min > max", e.ID, s.Name)
			}
			if s.Jitter < 0 {
				return errors.New("negative jitter for " + e.ID + "/" + s.Name)
			}
		}
	}
	return nil
}

var (
	floodRule = &entities.StatusRule{
		Metric:  "waterLevel",
		Levels:  []entities.StatusLevel{{AtLeast: 100, Status: "flooded"}},
		Default: "safe",
	}
	binRule = &entities.StatusRule{
		Metric: "fill_level",
		Levels: []entities.StatusLevel{
			{AtLeast: 90, Status: "critical"},
			{AtLeast: 70, Status: "warning"},
		},
		Default: "normal",
	}
)

func binSpecs(fill float64) []entities.MetricSpec {
	return []entities.MetricSpec{
		{Name: "fill_level", Min: 0, Max: 100, Jitter: 2, Drift: 0.5, Initial: fill},
		{Name: "battery", Min: 10, Max: 100, Jitter: 0.5, Drift: -0.05, Initial: 95},
		{Name: "temperature", Min: 24, Max: 38, Jitter: 0.5, Initial: 30},
	}
}

func floodSpecs(level float64) []entities.MetricSpec {
	return []entities.MetricSpec{
		{Name: "waterLevel", Min: 0, Max: 250, Jitter: 8, Initial: level},
	}
}

// DefaultRegistry is a small Kuala Lumpur fleet used by the demo.
func DefaultRegistry() []entities.Entity {
	kl := entities.KualaLumpur
	vehicle := func(id, name, loc string, lat, lon float64) entities.Entity {
		return entities.Entity{
			ID: id, Class: entities.ClassVehicle, Name: name, Location: loc,
			Position: entities.Coordinates{Lat: lat, Lon: lon},
			Step:     0.001, PeriodS: 2, Bounds: kl,
			Specs: []entities.MetricSpec{{Name: "speed_kmh", Min: 0, Max: 80, Jitter: 5, Initial: 30}},
		}
	}
	truck := func(id, name, loc string, lat, lon float64) entities.Entity {
		return entities.Entity{
			ID: id, Class: entities.ClassTruck, Name: name, Location: loc,
			Position: entities.Coordinates{Lat: lat, Lon: lon},
			Step:     0.01, PeriodS: 5, Bounds: kl,
			Specs: []entities.MetricSpec{{Name: "fuel_pct", Min: 0, Max: 100, Jitter: 0.3, Drift: -0.1, Initial: 85}},
		}
	}
	bin := func(id, loc string, lat, lon, fill float64) entities.Entity {
		return entities.Entity{
			ID: id, Class: entities.ClassBin, Name: "Bin " + id, Location: loc,
			Position: entities.Coordinates{Lat: lat, Lon: lon},
			PeriodS:  3, Specs: binSpecs(fill), StatusRule: binRule,
		}
	}
	flood := func(id, loc string, lat, lon, level float64) entities.Entity {
		return entities.Entity{
			ID: id, Class: entities.ClassFloodSensor, Location: loc,
			Position: entities.Coordinates{Lat: lat, Lon: lon},
			PeriodS:  5, Specs: floodSpecs(level), StatusRule: floodRule,
		}
	}

	return []entities.Entity{
		vehicle("bus-01", "RapidKL T789", "Bukit Bintang", 3.1466, 101.7101),
		vehicle("bus-02", "RapidKL T402", "Chow Kit", 3.1640, 101.6981),
		truck("truck-01", "Alam Flora WT-12", "Setapak", 3.1960, 101.7290),
		truck("truck-02", "Alam Flora WT-07", "Cheras", 3.1035, 101.7410),
		bin("bin-01", "Bukit Bintang", 3.1478, 101.7130, 45),
		bin("bin-02", "Chow Kit", 3.1652, 101.6990, 72),
		bin("bin-03", "Cheras", 3.1050, 101.7380, 30),
		bin("bin-04", "Kampung Baru", 3.1645, 101.7065, 88),
		flood("fs-cheras-1", "Cheras", 3.1012, 101.7402, 110),
		flood("fs-cheras-2", "Cheras", 3.1060, 101.7451, 95),
		flood("fs-cheras-3", "Cheras", 3.0991, 101.7475, 60),
		flood("fs-kgbaru-1", "Kampung Baru", 3.1638, 101.7052, 80),
		flood("fs-kgbaru-2", "Kampung Baru", 3.1661, 101.7080, 40),
		flood("fs-srip-1", "Sri Petaling", 3.0685, 101.6905, 20),
	}
}
