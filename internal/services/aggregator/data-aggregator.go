package aggregator

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/citywatch/internal/metrics"
	"github.com/LeonardoBeccarini/citywatch/internal/model/messages"
)

// DataAggregatorService keeps the latest reading of every entity and
// re-aggregates zones on a ticker, only when something changed.
type DataAggregatorService struct {
	aggregator          *Aggregator
	mutex               sync.Mutex
	index               map[string]int // chiave entità -> posizione in buffer
	buffer              []messages.Reading
	dirty               bool
	lastZones           []Zone
	aggregationInterval time.Duration
	onZones             func([]Zone)
}

func NewDataAggregatorService(agg *Aggregator, aggregationInterval time.Duration, onZones func([]Zone)) *DataAggregatorService {
	if agg == nil {
		agg = NewAggregator()
	}
	if aggregationInterval <= 0 {
		aggregationInterval = 2 * time.Second
	}
	return &DataAggregatorService{
		aggregator:          agg,
		aggregationInterval: aggregationInterval,
		onZones:             onZones,
		index:               make(map[string]int),
	}
}

func bufferKey(r messages.Reading) string {
	if r.EntityID != "" {
		return r.EntityID
	}
	return "loc:" + r.LocationName
}

// Ingest replaces the previous reading of the same entity. An entity keeps
// the buffer position of its first reading.
func (d *DataAggregatorService) Ingest(r messages.Reading) {
	key := bufferKey(r)
	r = r.Clone()

	d.mutex.Lock()
	defer d.mutex.Unlock()
	if i, ok := d.index[key]; ok {
		d.buffer[i] = r
	} else {
		d.index[key] = len(d.buffer)
		d.buffer = append(d.buffer, r)
	}
	d.dirty = true
}

// Latest returns a copy of the buffer in arrival order.
func (d *DataAggregatorService) Latest() []messages.Reading {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	out := make([]messages.Reading, len(d.buffer))
	copy(out, d.buffer)
	return out
}

// Zones returns the result of the last aggregation pass.
func (d *DataAggregatorService) Zones() []Zone {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]Zone(nil), d.lastZones...)
}

// AggregateNow runs one pass if the buffer changed since the last one.
func (d *DataAggregatorService) AggregateNow() ([]Zone, bool) {
	d.mutex.Lock()
	if !d.dirty {
		d.mutex.Unlock()
		return nil, false
	}
	snapshot := make([]messages.Reading, len(d.buffer))
	copy(snapshot, d.buffer)
	d.dirty = false
	d.mutex.Unlock()

	start := time.Now()
	zones := Sorted(d.aggregator.Aggregate(snapshot))
	metrics.AggregationSeconds.Observe(time.Since(start).Seconds())

	counts := map[messages.HazardLevel]int{}
	for _, z := range zones {
		counts[z.HazardLevel]++
	}
	for _, h := range []messages.HazardLevel{messages.HazardNone, messages.HazardWarning, messages.HazardCritical} {
		metrics.ZonesByHazard.WithLabelValues(string(h)).Set(float64(counts[h]))
	}

	d.mutex.Lock()
	d.lastZones = zones
	d.mutex.Unlock()

	if d.onZones != nil {
		d.onZones(zones)
	}
	return zones, true
}

func (d *DataAggregatorService) Start(ctx context.Context) {
	ticker := time.NewTicker(d.aggregationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if zones, ok := d.AggregateNow(); ok {
				log.Printf("aggregator: %d zones from %d entities", len(zones), len(d.Latest()))
			}
		}
	}
}
