package event

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
)

// AlertRecord è la riga restituita dallo storico alert.
type AlertRecord struct {
	Rule     string  `json:"rule"`
	Severity string  `json:"severity"`
	Location string  `json:"location,omitempty"`
	EntityID string  `json:"entity_id,omitempty"`
	Message  string  `json:"message"`
	Time     string  `json:"time"` // RFC3339
	Value    float64 `json:"value,omitempty"`
}

type historyParams struct {
	Minutes   int
	Limit     int
	TimeoutMS int
	Severity  string
}

func parseHistory(r *http.Request, defMin, defLim, defTOms int) historyParams {
	q := r.URL.Query()
	get := func(k string, def, min, max int) int {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				if n < min {
					return min
				}
				if max > 0 && n > max {
					return max
				}
				return n
			}
		}
		return def
	}
	sev := strings.ToLower(strings.TrimSpace(q.Get("severity")))
	switch sev {
	case "info", "warning", "critical":
	default:
		sev = ""
	}
	return historyParams{
		Minutes:   get("minutes", defMin, 1, 7*24*60),
		Limit:     get("limit", defLim, 1, 500),
		TimeoutMS: get("timeout_ms", defTOms, 200, 5000),
		Severity:  sev,
	}
}

func buildAlertFlux(bucket string, p historyParams) string {
	sevFilter := ""
	if p.Severity != "" {
		sevFilter = fmt.Sprintf("\n  |> filter(fn: (r) => r.severity == %q)", p.Severity)
	}
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%dm)
  |> filter(fn: (r) => r._measurement == %q)%s
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> group()
  |> sort(columns: ["_time"], desc: true)
  |> limit(n:%d)
`, bucket, p.Minutes, MeasurementAlert, sevFilter, p.Limit)
}

func str(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func runHistory(w http.ResponseWriter, r *http.Request, influx influxdb2.Client, org, bucket string, defMin, defLim int) {
	p := parseHistory(r, defMin, defLim, 2000)

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(p.TimeoutMS)*time.Millisecond)
	defer cancel()

	res, err := influx.QueryAPI(org).Query(ctx, buildAlertFlux(bucket, p))
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Error", "influx-query-error")
		_, _ = w.Write([]byte("[]"))
		return
	}
	defer res.Close()

	out := make([]AlertRecord, 0, p.Limit)
	for res.Next() {
		rec := res.Record()
		var value float64
		switch v := rec.ValueByKey("value").(type) {
		case float64:
			value = v
		case int64:
			value = float64(v)
		}
		out = append(out, AlertRecord{
			Rule:     str(rec.ValueByKey("rule")),
			Severity: str(rec.ValueByKey("severity")),
			Location: str(rec.ValueByKey("location")),
			EntityID: str(rec.ValueByKey("entity_id")),
			Message:  str(rec.ValueByKey("message")),
			Value:    value,
			Time:     rec.Time().UTC().Format(time.RFC3339),
		})
	}
	if res.Err() != nil {
		w.Header().Set("X-Error", "influx-iter-error")
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// GET /api/alerts/history?limit=50[&minutes=1440][&severity=critical]
func NewAlertHistoryHandler(influx influxdb2.Client, org, bucket string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		runHistory(w, r, influx, org, bucket, 1440, 50)
	})
}
