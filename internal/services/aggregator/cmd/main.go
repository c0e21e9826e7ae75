package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/LeonardoBeccarini/citywatch/internal/model/entities"
	"github.com/LeonardoBeccarini/citywatch/internal/model/messages"
	"github.com/LeonardoBeccarini/citywatch/internal/services/aggregator"
	"github.com/LeonardoBeccarini/citywatch/internal/services/event"
	"github.com/LeonardoBeccarini/citywatch/internal/services/monitor"
	"github.com/LeonardoBeccarini/citywatch/pkg/rabbitmq"
)

func getenv(k, d string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

// Zone service standalone: legge le letture da MQTT e pubblica i riepiloghi
// su city/zones/{location}. Gli alert restano al monitor.
func main() {
	_ = godotenv.Load()

	policyName := flag.String("policy", getenv("HAZARD_POLICY", "any"), "hazard policy: any | proportional")
	metric := flag.String("metric", getenv("ZONE_METRIC", aggregator.DefaultMetric), "metric summarised over hazardous members")
	statuses := flag.String("statuses", getenv("HAZARD_STATUSES", aggregator.DefaultHazardStatus), "comma separated hazardous statuses")
	sensorsOnly := flag.Bool("sensors-only", true, "policy total counts only members carrying the metric")
	interval := flag.Duration("interval", 2*time.Second, "aggregation interval")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy, ok := aggregator.PolicyByName(*policyName)
	if !ok {
		log.Fatalf("aggregator: unknown hazard policy %q", *policyName)
	}
	agg := aggregator.NewAggregator()
	agg.Policy = policy
	agg.Metric = *metric
	if *sensorsOnly {
		agg.HazardCapable = aggregator.CarriesMetric(*metric)
	}
	agg.HazardStatuses = nil
	for _, st := range strings.Split(*statuses, ",") {
		if st = strings.TrimSpace(st); st != "" {
			agg.HazardStatuses = append(agg.HazardStatuses, st)
		}
	}

	cfg := &rabbitmq.RabbitMQConfig{
		Host:     getenv("MQTT_HOST", "localhost"),
		Port:     getenvInt("MQTT_PORT", 1883),
		User:     getenv("MQTT_USER", "guest"),
		Password: getenv("MQTT_PASSWORD", "guest"),
		ClientID: getenv("MQTT_CLIENT_ID", "dataAggregator1"),
	}
	client, err := rabbitmq.NewRabbitMQConn(cfg, ctx)
	if err != nil {
		log.Fatalf("aggregator: failed to connect to MQTT broker: %v", err)
	}
	defer rabbitmq.CloseRabbitMQConn(client)

	sink := monitor.NewMQTTSink(rabbitmq.NewPublisher(client, ""))
	service := aggregator.NewDataAggregatorService(agg, *interval, func(zones []aggregator.Zone) {
		now := time.Now().UTC()
		summaries := make([]messages.ZoneSummary, 0, len(zones))
		for _, z := range zones {
			summaries = append(summaries, z.Summary(now))
		}
		if err := sink.OnZones(ctx, summaries); err != nil {
			log.Printf("aggregator: publish zones: %v", err)
		}
	})

	handler := &event.MQTTHandler{OnReading: func(_ entities.EntityClass, r messages.Reading) {
		if err := r.Validate(); err != nil {
			log.Printf("aggregator: dropping reading: %v", err)
			return
		}
		service.Ingest(r)
	}}
	consumer := rabbitmq.NewMultiConsumer(client, []string{rabbitmq.TopicReadings}, handler.Handle)
	go consumer.ConsumeMessage(ctx)

	log.Println("aggregator: zone service is running...")
	service.Start(ctx)
}
