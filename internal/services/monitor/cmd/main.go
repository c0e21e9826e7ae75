package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/joho/godotenv"

	entitySimulator "github.com/LeonardoBeccarini/citywatch/internal/entity-simulator"
	"github.com/LeonardoBeccarini/citywatch/internal/hub"
	"github.com/LeonardoBeccarini/citywatch/internal/services/aggregator"
	"github.com/LeonardoBeccarini/citywatch/internal/services/alerting"
	"github.com/LeonardoBeccarini/citywatch/internal/services/event"
	"github.com/LeonardoBeccarini/citywatch/internal/services/gateway/app"
	"github.com/LeonardoBeccarini/citywatch/internal/services/monitor"
	"github.com/LeonardoBeccarini/citywatch/internal/services/persistence"
	"github.com/LeonardoBeccarini/citywatch/internal/services/weather"
	"github.com/LeonardoBeccarini/citywatch/internal/store"
	"github.com/LeonardoBeccarini/citywatch/pkg/rabbitmq"
	"github.com/LeonardoBeccarini/citywatch/pkg/settings"
)

// monitor: simulatore, aggregazione zone, alert, dashboard HTTP/WS e health gRPC
// in un solo processo. Ogni backend esterno è opzionale.
func main() {
	_ = godotenv.Load()
	cfg := loadConfig()

	flag.StringVar(&cfg.HTTPPort, "http-port", cfg.HTTPPort, "HTTP port")
	flag.StringVar(&cfg.GRPCPort, "grpc-port", cfg.GRPCPort, "gRPC health port")
	flag.StringVar(&cfg.RulesPath, "rules", cfg.RulesPath, "alert rules file (empty = built-in rules)")
	flag.BoolVar(&cfg.Simulate, "simulate", cfg.Simulate, "run the entity simulator in process")
	flag.StringVar(&cfg.RegistryPath, "registry", cfg.RegistryPath, "entity registry JSON (empty = built-in Kuala Lumpur demo)")
	flag.Int64Var(&cfg.SimSeed, "seed", cfg.SimSeed, "random seed (0 = time based)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// === Alert rules + dedup ===
	rules, err := alerting.LoadRules(cfg.RulesPath)
	if err != nil {
		log.Fatalf("monitor: %v", err)
	}

	var redisStore *store.RedisStore
	if cfg.Redis.Addr != "" {
		rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		redisStore, err = store.NewRedisStore(rctx, cfg.Redis)
		cancel()
		if err != nil {
			log.Printf("monitor: redis disabled: %v", err)
			redisStore = nil
		} else {
			defer redisStore.Close()
		}
	}

	var deduper alerting.Deduper
	if redisStore != nil && cfg.RedisDedup {
		deduper = redisStore.AlertDedup()
	}
	evaluator := alerting.NewEvaluator(rules, deduper)
	log.Printf("monitor: %d alert rules loaded", len(evaluator.Rules()))

	// === Zone aggregation ===
	policy, ok := aggregator.PolicyByName(cfg.HazardPolicy)
	if !ok {
		log.Fatalf("monitor: unknown hazard policy %q", cfg.HazardPolicy)
	}
	agg := aggregator.NewAggregator()
	agg.Policy = policy
	agg.HazardStatuses = cfg.HazardStatuses
	agg.Metric = cfg.ZoneMetric
	if cfg.HazardSensorsOnly {
		agg.HazardCapable = aggregator.CarriesMetric(cfg.ZoneMetric)
	}

	// === Pipeline + hub ===
	settingsStore := settings.NewStore(settings.Default())
	h := hub.New()
	pipeline := monitor.NewPipeline(evaluator, agg, cfg.AggregationInterval, monitor.NewHubSink(h))

	unfollow := pipeline.FollowSettings(settingsStore)
	defer unfollow()
	unsubscribe := settingsStore.Subscribe(func(s settings.Settings) { h.Broadcast(hub.TypeSettings, s) })
	defer unsubscribe()

	h.Snapshot = func() []hub.Envelope {
		now := time.Now().UTC()
		return []hub.Envelope{
			{Type: hub.TypeSettings, Payload: settingsStore.Get(), SentAt: now},
			{Type: hub.TypeZones, Payload: pipeline.Zones(), SentAt: now},
			{Type: hub.TypeSnapshot, Payload: pipeline.RecentAlerts(50), SentAt: now},
		}
	}

	health := monitor.NewHealthReporter()
	var healthDeps event.Deps

	// === MQTT ===
	var mqttClient mqtt.Client
	if cfg.MQTT.Host != "" {
		mqttClient, err = rabbitmq.NewRabbitMQConn(&cfg.MQTT, ctx)
		if err != nil {
			log.Fatalf("monitor: mqtt connection error: %v", err)
		}
		defer rabbitmq.CloseRabbitMQConn(mqttClient)
		healthDeps.MQTT = mqttClient
		health.AddProbe("mqtt", mqttClient.IsConnectionOpen)

		publisher := rabbitmq.NewPublisher(mqttClient, "")
		pipeline.AddSink(monitor.NewMQTTSink(publisher))

		handler := &event.MQTTHandler{OnReading: pipeline.IngestFunc()}
		readings := rabbitmq.NewMultiConsumer(mqttClient, []string{rabbitmq.TopicReadings}, handler.Handle)
		go readings.ConsumeMessage(ctx)
	}

	// === Weather, geocoding, routing ===
	upCfg := weather.DefaultUpstreamConfig()
	weatherUp := weather.NewUpstream("weatherapi", upCfg)
	geoUp := weather.NewUpstream("nominatim", upCfg)
	routeUp := weather.NewUpstream("osrm", upCfg)

	var primary weather.Provider
	if cfg.WeatherAPIKey != "" {
		primary = weather.NewWeatherAPI(cfg.WeatherAPIURL, cfg.WeatherAPIKey, weatherUp)
	} else {
		log.Printf("monitor: WEATHER_API_KEY not set, serving demo weather")
	}
	provider := weather.NewFallbackProvider("weatherapi", primary, nil)
	provider.OnFallback(func(n weather.Notice) { h.Broadcast(hub.TypeNotice, n) })

	// === Simulator ===
	if cfg.Simulate {
		registry, err := entitySimulator.LoadRegistry(cfg.RegistryPath)
		if err != nil {
			log.Fatalf("monitor: %v", err)
		}
		seed := cfg.SimSeed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		gen := entitySimulator.NewGenerator(rand.New(rand.NewSource(seed)))
		if primary != nil {
			for i := range registry {
				sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
				if err := gen.SeedFromWeather(sctx, primary, &registry[i]); err != nil {
					log.Printf("sim: keeping registry temperature: %v", err)
				}
				cancel()
			}
		}

		scheduler := entitySimulator.NewScheduler(gen)
		for i := range registry {
			scheduler.Add(&registry[i])
		}
		// letture direttamente nella pipeline, niente giro su MQTT
		scheduler.OnReading(pipeline.IngestFunc())

		var commands rabbitmq.IConsumer[mqtt.Message]
		if mqttClient != nil {
			commands = rabbitmq.NewConsumer(mqttClient, rabbitmq.TopicEntityCommands, nil)
		}
		sim := entitySimulator.NewEntitySimulator(commands, nil, scheduler)
		unpause := sim.FollowSettings(settingsStore)
		defer unpause()
		go sim.Start(ctx)
	}

	// === InfluxDB ===
	var history app.HistoryQuerier
	var alertHistory http.Handler
	if cfg.Influx.InfluxURL != "" {
		influx := influxdb2.NewClient(cfg.Influx.InfluxURL, cfg.Influx.InfluxToken)
		defer influx.Close()

		svc, err := persistence.NewService(nil, influx, cfg.Influx)
		if err != nil {
			log.Fatalf("monitor: persistence init failed: %v", err)
		}
		writer := event.NewWriter(influx.WriteAPI(cfg.Influx.InfluxOrg, cfg.EventsBucket))
		defer writer.Flush()

		pipeline.AddSink(monitor.NewInfluxSink(svc, writer))
		history = svc
		alertHistory = event.NewAlertHistoryHandler(influx, cfg.Influx.InfluxOrg, cfg.EventsBucket)
		healthDeps.Influx = influx
		healthDeps.Writer = writer
	}

	// === Redis state ===
	if redisStore != nil {
		pipeline.AddSink(monitor.NewRedisSink(redisStore))
		health.AddProbe("redis", func() bool {
			pctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return redisStore.Ping(pctx) == nil
		})
	}

	// === Postgres alert log ===
	var archive app.AlertArchive
	if cfg.Postgres.Host != "" {
		alertStore, err := openAlertStore(ctx, cfg.Postgres)
		if err != nil {
			log.Printf("monitor: postgres disabled: %v", err)
		} else {
			defer alertStore.Close()
			pipeline.AddSink(monitor.NewPostgresSink(alertStore))
			archive = alertStore
			health.AddProbe("postgres", func() bool {
				pctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				return alertStore.Ping(pctx) == nil
			})
		}
	}

	// === HTTP ===
	gw := app.NewGateway(app.Config{HTTPTimeout: cfg.HTTPTimeout}, app.Deps{
		Monitor:      pipeline,
		Settings:     settingsStore,
		Weather:      provider,
		Geocoder:     weather.NewNominatim(cfg.NominatimURL, geoUp),
		Router:       weather.NewOSRM(cfg.OSRMURL, routeUp),
		OnWeather:    pipeline.ObserveWeather,
		History:      history,
		AlertHistory: alertHistory,
		Archive:      archive,
		Hub:          h,
		Health:       healthDeps,
		Upstreams:    []*weather.Upstream{weatherUp, geoUp, routeUp},
	})
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           gw.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go h.Run(ctx)
	go pipeline.Start(ctx)
	go weather.NewPoller(provider, cfg.WeatherLocations, cfg.WeatherPollInterval, pipeline.ObserveWeather).Run(ctx)
	go health.Run(ctx, 5*time.Second)
	go func() {
		if err := health.ServeGRPC(ctx, ":"+cfg.GRPCPort); err != nil {
			log.Printf("monitor: gRPC health stopped: %v", err)
		}
	}()
	go func() {
		log.Printf("monitor: HTTP listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("monitor: http server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("monitor: shutting down...")

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shCtx)
}

func openAlertStore(ctx context.Context, cfg store.PostgresConfig) (*store.AlertStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	s, err := store.NewAlertStore(ctx, cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
