package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	entitySimulator "github.com/LeonardoBeccarini/citywatch/internal/entity-simulator"
	"github.com/LeonardoBeccarini/citywatch/internal/services/weather"
	"github.com/LeonardoBeccarini/citywatch/pkg/rabbitmq"
)

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
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

func main() {
	// .env opzionale
	_ = godotenv.Load()

	registryPath := flag.String("registry", getenv("REGISTRY_PATH", ""), "entity registry JSON (empty = built-in Kuala Lumpur demo)")
	seed := flag.Int64("seed", 0, "random seed (0 = time based)")
	clientID := flag.String("client-id", getenv("MQTT_CLIENT_ID", "entitySimulator"), "MQTT client ID")
	host := flag.String("mqtt-host", getenv("MQTT_HOST", "localhost"), "MQTT broker host")
	port := flag.Int("mqtt-port", getenvInt("MQTT_PORT", 1883), "MQTT broker port")
	seedWeather := flag.Bool("seed-weather", os.Getenv("WEATHER_API_KEY") != "", "seed temperature metrics from WeatherAPI at start")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := entitySimulator.LoadRegistry(*registryPath)
	if err != nil {
		log.Fatalf("sim: %v", err)
	}

	cfg := &rabbitmq.RabbitMQConfig{
		Host:     *host,
		Port:     *port,
		User:     getenv("MQTT_USER", "guest"),
		Password: getenv("MQTT_PASSWORD", "guest"),
		ClientID: *clientID,
	}
	client, err := rabbitmq.NewRabbitMQConn(cfg, ctx)
	if err != nil {
		log.Fatal(err)
	}

	s := *seed
	if s == 0 {
		s = time.Now().UnixNano()
	}
	gen := entitySimulator.NewGenerator(rand.New(rand.NewSource(s)))

	if *seedWeather {
		api := weather.NewWeatherAPI(getenv("WEATHER_API_URL", ""), os.Getenv("WEATHER_API_KEY"),
			weather.NewUpstream("weatherapi", weather.DefaultUpstreamConfig()))
		for i := range registry {
			seedCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := gen.SeedFromWeather(seedCtx, api, &registry[i]); err != nil {
				log.Printf("sim: keeping registry temperature: %v", err)
			}
			cancel()
		}
	}

	scheduler := entitySimulator.NewScheduler(gen)
	for i := range registry {
		scheduler.Add(&registry[i])
	}

	publisher := rabbitmq.NewPublisher(client, "")
	publisher.Quiet = true
	consumer := rabbitmq.NewConsumer(client, rabbitmq.TopicEntityCommands, nil)

	sim := entitySimulator.NewEntitySimulator(consumer, publisher, scheduler)
	sim.Start(ctx)
}
