package monitor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LeonardoBeccarini/citywatch/internal/metrics"
	"github.com/LeonardoBeccarini/citywatch/internal/model"
	"github.com/LeonardoBeccarini/citywatch/internal/model/entities"
	"github.com/LeonardoBeccarini/citywatch/internal/services/aggregator"
	"github.com/LeonardoBeccarini/citywatch/internal/services/alerting"
	"github.com/LeonardoBeccarini/citywatch/pkg/settings"
)

const defaultSinkTimeout = 3 * time.Second

// Pipeline connects ingestion to aggregation, evaluation and the sinks.
// It is safe for concurrent use: readings may arrive from MQTT, the
// in-process simulator and the weather poller at the same time.
type Pipeline struct {
	evaluator *alerting.Evaluator
	zones     *aggregator.DataAggregatorService
	recent    *Recent

	mu    sync.RWMutex
	sinks []Sink

	muted       atomic.Bool
	sinkTimeout time.Duration
	lastZones   atomic.Pointer[[]model.ZoneSummary]
}

func NewPipeline(ev *alerting.Evaluator, agg *aggregator.Aggregator, interval time.Duration, sinks ...Sink) *Pipeline {
	if ev == nil {
		ev = alerting.NewEvaluator(alerting.DefaultRules(), nil)
	}
	p := &Pipeline{
		evaluator:   ev,
		recent:      NewRecent(200),
		sinks:       sinks,
		sinkTimeout: defaultSinkTimeout,
	}
	p.zones = aggregator.NewDataAggregatorService(agg, interval, p.onZones)
	return p
}

// AddSink registers a sink after construction (e.g. once a store connects).
func (p *Pipeline) AddSink(s Sink) {
	p.mu.Lock()
	p.sinks = append(p.sinks, s)
	p.mu.Unlock()
}

func (p *Pipeline) SetMuted(m bool) { p.muted.Store(m) }

func (p *Pipeline) Muted() bool { return p.muted.Load() }

// FollowSettings keeps the mute flag in sync with the settings store.
func (p *Pipeline) FollowSettings(store *settings.Store) (cancel func()) {
	return store.Subscribe(func(s settings.Settings) { p.SetMuted(s.AlertsMuted) })
}

// Ingest accepts a reading of a spatially grouped entity: it replaces the
// entity's latest reading in the zone buffer, then evaluates it.
func (p *Pipeline) Ingest(class model.EntityClass, r model.Reading) error {
	if err := p.accept(class, r); err != nil {
		return err
	}
	p.zones.Ingest(r)
	p.dispatch(class, r)
	return nil
}

// Observe evaluates a reading without adding it to the zone buffer
// (weather observations describe a whole city, not a member of a zone).
func (p *Pipeline) Observe(class model.EntityClass, r model.Reading) error {
	if err := p.accept(class, r); err != nil {
		return err
	}
	p.dispatch(class, r)
	return nil
}

func (p *Pipeline) accept(class model.EntityClass, r model.Reading) error {
	if err := r.Validate(); err != nil {
		metrics.ReadingsRejected.Inc()
		return fmt.Errorf("ingest %s reading: %w", class, err)
	}
	src := r.Source
	if src == "" {
		src = "unknown"
	}
	metrics.ReadingsIngested.WithLabelValues(src).Inc()
	return nil
}

func (p *Pipeline) dispatch(class model.EntityClass, r model.Reading) {
	ctx, cancel := context.WithTimeout(context.Background(), p.sinkTimeout)
	defer cancel()

	for _, s := range p.snapshotSinks() {
		if err := s.OnReading(ctx, class, r); err != nil {
			sinkFailed(s, "reading", err)
		}
	}
	p.evaluate(ctx, r)
}

func (p *Pipeline) evaluate(ctx context.Context, r model.Reading) int {
	n := 0
	for a := range p.evaluator.Evaluate(r) {
		p.emit(ctx, a)
		n++
	}
	return n
}

// emit records the alert and fans it out unless alerts are muted. A muted
// alert is still marked as seen by the evaluator and kept in the recent log.
func (p *Pipeline) emit(ctx context.Context, a model.Alert) {
	p.recent.Add(a)
	metrics.AlertsEmitted.WithLabelValues(string(a.Severity)).Inc()
	if p.muted.Load() {
		metrics.AlertsMuted.Inc()
		return
	}
	log.Printf("monitor: alert [%s] %s", a.Severity, a.Message)
	for _, s := range p.snapshotSinks() {
		if err := s.OnAlert(ctx, a); err != nil {
			sinkFailed(s, "alert", err)
		}
	}
}

func (p *Pipeline) onZones(zones []aggregator.Zone) {
	ctx, cancel := context.WithTimeout(context.Background(), p.sinkTimeout)
	defer cancel()

	now := time.Now().UTC()
	summaries := make([]model.ZoneSummary, 0, len(zones))
	for _, z := range zones {
		summaries = append(summaries, z.Summary(now))
	}
	p.lastZones.Store(&summaries)

	for _, s := range p.snapshotSinks() {
		if err := s.OnZones(ctx, summaries); err != nil {
			sinkFailed(s, "zones", err)
		}
	}
	for _, z := range zones {
		p.evaluate(ctx, z.AsReading())
	}
}

func (p *Pipeline) snapshotSinks() []Sink {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Sink(nil), p.sinks...)
}

func sinkFailed(s Sink, what string, err error) {
	metrics.SinkErrors.WithLabelValues(s.Name()).Inc()
	log.Printf("monitor: sink %s %s: %v", s.Name(), what, err)
}

// AggregateNow forces an aggregation pass if the buffer changed.
func (p *Pipeline) AggregateNow() bool {
	_, ok := p.zones.AggregateNow()
	return ok
}

// Start runs the aggregation ticker until ctx is done.
func (p *Pipeline) Start(ctx context.Context) { p.zones.Start(ctx) }

func (p *Pipeline) Zones() []model.ZoneSummary {
	z := p.lastZones.Load()
	if z == nil {
		return []model.ZoneSummary{}
	}
	out := make([]model.ZoneSummary, len(*z))
	copy(out, *z)
	return out
}

// Latest returns the buffered reading of every zone member, in arrival order.
func (p *Pipeline) Latest() []model.Reading { return p.zones.Latest() }

func (p *Pipeline) RecentAlerts(limit int) []model.Alert { return p.recent.List(limit) }

func (p *Pipeline) Rules() []alerting.Rule { return p.evaluator.Rules() }

// IngestFunc adapts Ingest to the reading callbacks of the simulator and
// the MQTT decoder. Rejected readings are logged.
func (p *Pipeline) IngestFunc() func(model.EntityClass, model.Reading) {
	return func(class model.EntityClass, r model.Reading) {
		if err := p.Ingest(class, r); err != nil {
			log.Printf("monitor: %v", err)
		}
	}
}

func (p *Pipeline) ObserveWeather(r model.Reading) {
	if err := p.Observe(entities.ClassWeather, r); err != nil {
		log.Printf("monitor: %v", err)
	}
}
