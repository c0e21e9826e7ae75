package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReadingsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "citywatch_readings_ingested_total",
		Help: "Readings accepted by the monitor pipeline, by source.",
	}, []string{"source"})

	ReadingsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "citywatch_readings_rejected_total",
		Help: "Readings rejected at the ingest boundary.",
	})

	SimulatorTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "citywatch_simulator_ticks_total",
		Help: "Simulated readings produced, by entity class.",
	}, []string{"class"})

	AlertsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "citywatch_alerts_emitted_total",
		Help: "Alerts emitted after dedup, by severity.",
	}, []string{"severity"})

	AlertsMuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "citywatch_alerts_muted_total",
		Help: "Alerts emitted while notifications were muted.",
	})

	ZonesByHazard = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "citywatch_zones",
		Help: "Zones in the last aggregation pass, by hazard level.",
	}, []string{"hazard_level"})

	AggregationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "citywatch_aggregation_seconds",
		Help:    "Duration of one aggregation pass.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "citywatch_upstream_requests_total",
		Help: "External API calls, by upstream and outcome.",
	}, []string{"upstream", "outcome"})

	FallbackServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "citywatch_fallback_served_total",
		Help: "Fallback responses served instead of live upstream data.",
	}, []string{"upstream", "kind"})

	SinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "citywatch_sink_errors_total",
		Help: "Failed deliveries to notification sinks.",
	}, []string{"sink"})
)

func Handler() http.Handler { return promhttp.Handler() }
