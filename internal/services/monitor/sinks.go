package monitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/LeonardoBeccarini/citywatch/internal/hub"
	"github.com/LeonardoBeccarini/citywatch/internal/model"
	"github.com/LeonardoBeccarini/citywatch/pkg/rabbitmq"
)

// Sink receives everything the pipeline produces. Implementations must be
// safe for concurrent use; errors are logged and counted, never retried.
type Sink interface {
	Name() string
	OnReading(ctx context.Context, class model.EntityClass, r model.Reading) error
	OnZones(ctx context.Context, zones []model.ZoneSummary) error
	OnAlert(ctx context.Context, a model.Alert) error
}

// NopSink implements Sink with no-ops; embed it to handle a subset.
type NopSink struct{}

func (NopSink) OnReading(context.Context, model.EntityClass, model.Reading) error { return nil }
func (NopSink) OnZones(context.Context, []model.ZoneSummary) error                 { return nil }
func (NopSink) OnAlert(context.Context, model.Alert) error                         { return nil }

// MQTTSink pubblica alert e zone sul broker. Readings already travel on MQTT.
type MQTTSink struct {
	NopSink
	pub rabbitmq.IPublisher
}

func NewMQTTSink(pub rabbitmq.IPublisher) *MQTTSink { return &MQTTSink{pub: pub} }

func (*MQTTSink) Name() string { return "mqtt" }

func (s *MQTTSink) OnZones(_ context.Context, zones []model.ZoneSummary) error {
	var errs []error
	for _, z := range zones {
		if err := s.pub.PublishTo(fmt.Sprintf(rabbitmq.TopicZoneFmt, z.Location), z); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *MQTTSink) OnAlert(_ context.Context, a model.Alert) error {
	return s.pub.PublishTo(fmt.Sprintf(rabbitmq.TopicAlertFmt, a.Severity), a)
}

// HubSink streams everything to websocket clients.
type HubSink struct {
	hub *hub.Hub
}

func NewHubSink(h *hub.Hub) *HubSink { return &HubSink{hub: h} }

// ReadingEvent is the payload of a "reading" envelope.
type ReadingEvent struct {
	Class   model.EntityClass `json:"class"`
	Reading model.Reading     `json:"reading"`
}

func (*HubSink) Name() string { return "websocket" }

func (s *HubSink) OnReading(_ context.Context, class model.EntityClass, r model.Reading) error {
	s.hub.Broadcast(hub.TypeReading, ReadingEvent{Class: class, Reading: r})
	return nil
}

func (s *HubSink) OnZones(_ context.Context, zones []model.ZoneSummary) error {
	s.hub.Broadcast(hub.TypeZones, zones)
	return nil
}

func (s *HubSink) OnAlert(_ context.Context, a model.Alert) error {
	s.hub.Broadcast(hub.TypeAlert, a)
	return nil
}

// ReadingRecorder is satisfied by persistence.Service.
type ReadingRecorder interface {
	Record(ctx context.Context, class model.EntityClass, r model.Reading) error
}

// EventWriter is satisfied by event.Writer.
type EventWriter interface {
	WriteAlert(a model.Alert)
	WriteZone(z model.ZoneSummary)
}

// InfluxSink writes readings through the persistence service and zones and
// alerts through the non-blocking event writer.
type InfluxSink struct {
	readings ReadingRecorder
	events   EventWriter
}

func NewInfluxSink(readings ReadingRecorder, events EventWriter) *InfluxSink {
	return &InfluxSink{readings: readings, events: events}
}

func (*InfluxSink) Name() string { return "influx" }

func (s *InfluxSink) OnReading(ctx context.Context, class model.EntityClass, r model.Reading) error {
	if s.readings == nil {
		return nil
	}
	return s.readings.Record(ctx, class, r)
}

func (s *InfluxSink) OnZones(_ context.Context, zones []model.ZoneSummary) error {
	if s.events != nil {
		for _, z := range zones {
			s.events.WriteZone(z)
		}
	}
	return nil
}

func (s *InfluxSink) OnAlert(_ context.Context, a model.Alert) error {
	if s.events != nil {
		s.events.WriteAlert(a)
	}
	return nil
}

// StateStore is satisfied by store.RedisStore.
type StateStore interface {
	SaveReading(ctx context.Context, class string, r model.Reading) error
	PublishAlert(ctx context.Context, a model.Alert) error
	PublishZone(ctx context.Context, z model.ZoneSummary) error
}

type RedisSink struct {
	store StateStore
}

func NewRedisSink(s StateStore) *RedisSink { return &RedisSink{store: s} }

func (*RedisSink) Name() string { return "redis" }

func (s *RedisSink) OnReading(ctx context.Context, class model.EntityClass, r model.Reading) error {
	return s.store.SaveReading(ctx, string(class), r)
}

func (s *RedisSink) OnZones(ctx context.Context, zones []model.ZoneSummary) error {
	var errs []error
	for _, z := range zones {
		if err := s.store.PublishZone(ctx, z); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *RedisSink) OnAlert(ctx context.Context, a model.Alert) error {
	return s.store.PublishAlert(ctx, a)
}

// AlertLog is satisfied by store.AlertStore.
type AlertLog interface {
	InsertAlert(ctx context.Context, a model.Alert) error
}

type PostgresSink struct {
	NopSink
	log AlertLog
}

func NewPostgresSink(l AlertLog) *PostgresSink { return &PostgresSink{log: l} }

func (*PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) OnAlert(ctx context.Context, a model.Alert) error {
	return s.log.InsertAlert(ctx, a)
}
