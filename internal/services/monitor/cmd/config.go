package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/citywatch/internal/services/persistence"
	"github.com/LeonardoBeccarini/citywatch/internal/store"
	"github.com/LeonardoBeccarini/citywatch/pkg/rabbitmq"
)

type Config struct {
	HTTPPort string
	GRPCPort string

	// MQTT disabilitato se MQTT.Host è vuoto
	MQTT rabbitmq.RabbitMQConfig

	RulesPath           string
	HazardPolicy        string
	HazardStatuses      []string
	ZoneMetric          string
	HazardSensorsOnly   bool // policy total counts only members carrying ZoneMetric
	AggregationInterval time.Duration

	Simulate     bool
	RegistryPath string
	SimSeed      int64

	WeatherAPIKey       string
	WeatherAPIURL       string
	WeatherLocations    []string
	WeatherPollInterval time.Duration
	NominatimURL        string
	OSRMURL             string

	// Influx disabilitato se URL vuoto
	Influx       persistence.InfluxConfig
	EventsBucket string

	Redis      store.RedisConfig
	RedisDedup bool

	// Postgres disabilitato se Host vuoto
	Postgres store.PostgresConfig

	HTTPTimeout     time.Duration
	ShutdownTimeout time.Duration
}

func getenv(k, d string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return d
}

func getenvBool(k string, d bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return d
}

// getenvDuration accepts Go durations ("90s") or plain milliseconds.
func getenvDuration(k string, d time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return d
}

func getenvList(k string, d []string) []string {
	v := os.Getenv(k)
	if strings.TrimSpace(v) == "" {
		return d
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func loadConfig() Config {
	return Config{
		HTTPPort: getenv("HTTP_PORT", "8080"),
		GRPCPort: getenv("GRPC_PORT", "9090"),

		MQTT: rabbitmq.RabbitMQConfig{
			Host:     getenv("MQTT_HOST", ""),
			Port:     getenvInt("MQTT_PORT", 1883),
			User:     getenv("MQTT_USER", "guest"),
			Password: getenv("MQTT_PASSWORD", "guest"),
			ClientID: getenv("MQTT_CLIENT_ID", "citywatch-monitor"),
		},

		RulesPath:           getenv("RULES_PATH", ""),
		HazardPolicy:        getenv("HAZARD_POLICY", "any"),
		HazardStatuses:      getenvList("HAZARD_STATUSES", []string{"flooded"}),
		ZoneMetric:          getenv("ZONE_METRIC", "waterLevel"),
		HazardSensorsOnly:   getenvBool("HAZARD_SENSORS_ONLY", true),
		AggregationInterval: getenvDuration("AGGREGATION_INTERVAL", 2*time.Second),

		Simulate:     getenvBool("SIMULATE", true),
		RegistryPath: getenv("REGISTRY_PATH", ""),
		SimSeed:      int64(getenvInt("SIM_SEED", 0)),

		WeatherAPIKey:       os.Getenv("WEATHER_API_KEY"),
		WeatherAPIURL:       getenv("WEATHER_API_URL", ""),
		WeatherLocations:    getenvList("WEATHER_LOCATIONS", []string{"Kuala Lumpur"}),
		WeatherPollInterval: getenvDuration("WEATHER_POLL_INTERVAL", 10*time.Minute),
		NominatimURL:        getenv("NOMINATIM_URL", ""),
		OSRMURL:             getenv("OSRM_URL", ""),

		Influx: persistence.InfluxConfig{
			InfluxURL:       getenv("INFLUX_URL", ""),
			InfluxToken:     os.Getenv("INFLUX_TOKEN"),
			InfluxOrg:       getenv("INFLUX_ORG", "citywatch"),
			InfluxBucket:    getenv("INFLUX_BUCKET", "readings"),
			MeasurementMode: getenv("MEASUREMENT_MODE", "single"),
			MeasurementName: getenv("MEASUREMENT", "city_reading"),
		},
		EventsBucket: getenv("INFLUX_EVENTS_BUCKET", "events"),

		Redis: store.RedisConfig{
			Addr:     getenv("REDIS_ADDR", ""),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RedisDedup: getenvBool("REDIS_DEDUP", true),

		Postgres: store.PostgresConfig{
			Host:     getenv("DB_HOST", ""),
			Port:     getenv("DB_PORT", "5432"),
			User:     getenv("DB_USER", "citywatch"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     getenv("DB_NAME", "citywatch"),
			MaxConns: getenvInt("DB_MAX_CONNS", 5),
		},

		HTTPTimeout:     getenvDuration("HTTP_TIMEOUT", 8*time.Second),
		ShutdownTimeout: getenvDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
	}
}
