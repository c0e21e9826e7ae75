package event

import (
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	msg "github.com/LeonardoBeccarini/citywatch/internal/model/messages"
)

const (
	MeasurementAlert = "city_alert"
	MeasurementZone  = "city_zone"
)

// AlertToPoint normalizza un Alert in un *write.Point per InfluxDB.
func AlertToPoint(a msg.Alert) *write.Point {
	tags := map[string]string{
		"rule":     a.Rule,
		"severity": string(a.Severity),
		"metric":   a.Metric,
	}
	if a.SubjectLocation != "" {
		tags["location"] = a.SubjectLocation
	}
	if a.SubjectEntity != "" {
		tags["entity_id"] = a.SubjectEntity
	}
	fields := map[string]interface{}{
		"message":   a.Message,
		"value":     a.Value,
		"threshold": a.Threshold,
		"id":        a.ID,
	}
	return influxdb2.NewPoint(MeasurementAlert, tags, fields, stamp(a.FiredAt))
}

// ZoneToPoint: un punto per zona e passata di aggregazione.
func ZoneToPoint(z msg.ZoneSummary) *write.Point {
	tags := map[string]string{
		"location":     z.Location,
		"hazard_level": string(z.HazardLevel),
	}
	fields := map[string]interface{}{
		"hazard_rank": int64(z.HazardLevel.Rank()),
		"members":     int64(z.Members),
		"hazardous":   int64(z.Hazardous),
	}
	if z.SummaryMetric != nil {
		fields[z.Metric+"_mean"] = *z.SummaryMetric
	}
	return influxdb2.NewPoint(MeasurementZone, tags, fields, stamp(z.ComputedAt))
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
