package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// HistoryPoint è una lettura storica di un'entità.
type HistoryPoint struct {
	Time    time.Time          `json:"time"`
	Lat     float64            `json:"lat"`
	Lon     float64            `json:"lon"`
	Status  string             `json:"status,omitempty"`
	Metrics map[string]float64 `json:"metrics"`
}

var errNoQuery = errors.New("persistence: history query not configured")

func buildHistoryFlux(bucket, measurement, entityID string, minutes, limit int) string {
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%dm)
  |> filter(fn: (r) => r._measurement =~ /^%s/ and r.entity_id == %q)
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> group()
  |> sort(columns: ["_time"], desc: true)
  |> limit(n:%d)
`, bucket, minutes, measurement, entityID, limit)
}

// colonne di sistema e tag che non sono metriche
var nonMetric = map[string]bool{
	"result": true, "table": true, "entity_id": true, "location": true,
	"class": true, "source": true, "status": true, "lat": true, "lon": true,
}

// toHistoryPoint converte una riga pivotata (colonna per field) in HistoryPoint.
func toHistoryPoint(t time.Time, values map[string]interface{}) HistoryPoint {
	hp := HistoryPoint{Time: t.UTC(), Metrics: map[string]float64{}}
	for k, v := range values {
		if strings.HasPrefix(k, "_") {
			continue
		}
		f, isNum := asFloat(v)
		switch {
		case k == "lat" && isNum:
			hp.Lat = f
		case k == "lon" && isNum:
			hp.Lon = f
		case k == "status":
			if s, ok := v.(string); ok {
				hp.Status = s
			}
		case !nonMetric[k] && isNum:
			hp.Metrics[k] = f
		}
	}
	return hp
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// QueryHistory restituisce le ultime letture di entityID, dalla più recente.
func (s *Service) QueryHistory(ctx context.Context, entityID string, minutes, limit int) ([]HistoryPoint, error) {
	if s == nil || s.queryAPI == nil {
		return nil, errNoQuery
	}
	if minutes <= 0 {
		minutes = 60
	}
	if limit <= 0 {
		limit = 100
	}
	res, err := s.queryAPI.Query(ctx, buildHistoryFlux(s.bucket, sanitizeMeasurement(s.measurementName), entityID, minutes, limit))
	if err != nil {
		return nil, fmt.Errorf("persistence: history query: %w", err)
	}
	defer res.Close()

	out := make([]HistoryPoint, 0, limit)
	for res.Next() {
		rec := res.Record()
		out = append(out, toHistoryPoint(rec.Time(), rec.Values()))
	}
	if err := res.Err(); err != nil {
		return out, fmt.Errorf("persistence: history iter: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.After(out[j].Time) })
	return out, nil
}
