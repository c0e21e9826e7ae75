package persistence

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/LeonardoBeccarini/citywatch/internal/model/entities"
	"github.com/LeonardoBeccarini/citywatch/internal/model/messages"
	"github.com/LeonardoBeccarini/citywatch/internal/services/event"
	"github.com/LeonardoBeccarini/citywatch/pkg/rabbitmq"
)

// Configurazione Influx
type InfluxConfig struct {
	InfluxURL       string
	InfluxToken     string
	InfluxOrg       string
	InfluxBucket    string
	MeasurementMode string // "per-class" | "single"
	MeasurementName string // default "city_reading"
}

// pointWriter is the part of api.WriteAPIBlocking the service needs.
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Service scrive le letture su InfluxDB e ne interroga lo storico.
type Service struct {
	consumer        rabbitmq.IConsumer[mqtt.Message]
	writeAPI        pointWriter
	queryAPI        api.QueryAPI
	bucket          string
	measurementMode string
	measurementName string
}

func NewService(consumer rabbitmq.IConsumer[mqtt.Message], client influxdb2.Client, cfg InfluxConfig) (*Service, error) {
	if client == nil || cfg.InfluxOrg == "" || cfg.InfluxBucket == "" {
		return nil, fmt.Errorf("influx config incomplete")
	}
	return newService(consumer, client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket),
		client.QueryAPI(cfg.InfluxOrg), cfg), nil
}

func newService(consumer rabbitmq.IConsumer[mqtt.Message], w pointWriter, q api.QueryAPI, cfg InfluxConfig) *Service {
	name := cfg.MeasurementName
	if name == "" {
		name = "city_reading"
	}
	return &Service{
		consumer:        consumer,
		writeAPI:        w,
		queryAPI:        q,
		bucket:          cfg.InfluxBucket,
		measurementMode: cfg.MeasurementMode,
		measurementName: name,
	}
}

func (s *Service) measurement(class entities.EntityClass) string {
	m := s.measurementName
	if s.measurementMode == "per-class" && class != "" {
		m = m + "_" + string(class) // es. city_reading_bin
	}
	return sanitizeMeasurement(m)
}

// ReadingToPoint: tag per entità/zona/classe, un field per metrica.
func ReadingToPoint(measurement string, class entities.EntityClass, r messages.Reading) *write.Point {
	t := r.ObservedAt
	if t.IsZero() {
		t = time.Now()
	}
	tags := map[string]string{"location": r.Zone()}
	if r.EntityID != "" {
		tags["entity_id"] = r.EntityID
	}
	if class != "" {
		tags["class"] = string(class)
	}
	if r.Source != "" {
		tags["source"] = r.Source
	}
	fields := map[string]interface{}{
		"lat": r.Coordinates.Lat,
		"lon": r.Coordinates.Lon,
	}
	for k := range r.Metrics {
		if v, ok := r.Metric(k); ok {
			fields[k] = v
		}
	}
	if r.Status != "" {
		fields["status"] = r.Status
	}
	return influxdb2.NewPoint(measurement, tags, fields, t)
}

// Record scrive una lettura.
func (s *Service) Record(ctx context.Context, class entities.EntityClass, r messages.Reading) error {
	p := ReadingToPoint(s.measurement(class), class, r)
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("persistence: write %s: %w", r.EntityID, err)
	}
	return nil
}

// Start consuma le letture da MQTT e le scrive su Influx; blocca finché ctx non chiude.
func (s *Service) Start(ctx context.Context) {
	h := &event.MQTTHandler{
		OnReading: func(class entities.EntityClass, r messages.Reading) {
			if err := s.Record(ctx, class, r); err != nil {
				log.Print(err)
			}
		},
	}
	s.consumer.SetHandler(func(topic string, m mqtt.Message) error {
		if err := h.Handle(topic, m); err != nil {
			log.Printf("persistence: invalid reading on %s: %v", m.Topic(), err)
		}
		return nil // non bloccare lo stream
	})
	s.consumer.ConsumeMessage(ctx)
}

func sanitizeMeasurement(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '_', r == ':', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
