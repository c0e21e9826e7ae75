package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LeonardoBeccarini/citywatch/internal/model/messages"
	"github.com/LeonardoBeccarini/citywatch/pkg/dedup"
)

const (
	keyPrefix      = "citywatch"
	AlertsChannel  = keyPrefix + ":alerts"
	ZonesChannel   = keyPrefix + ":zones"
	entityStateTTL = 5 * time.Minute
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore keeps the latest state per entity, a geo index of entity
// positions and pub/sub channels for alerts and zones.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     20,
		MinIdleConns: 2,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func NewRedisStoreFromClient(c *redis.Client) *RedisStore { return &RedisStore{client: c} }

func (r *RedisStore) Close() error { return r.client.Close() }

func (r *RedisStore) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func entityStateKey(id string) string { return fmt.Sprintf("%s:entity:%s:state", keyPrefix, id) }

func geoKey(class string) string {
	if class == "" {
		class = "all"
	}
	return fmt.Sprintf("%s:geo:%s", keyPrefix, class)
}

func alertDedupKey(message string) string { return keyPrefix + ":alert:seen:" + message }

func stateFields(class string, rd messages.Reading) map[string]interface{} {
	fields := map[string]interface{}{
		"entity_id":   rd.EntityID,
		"class":       class,
		"location":    rd.LocationName,
		"lat":         rd.Coordinates.Lat,
		"lon":         rd.Coordinates.Lon,
		"status":      rd.Status,
		"source":      rd.Source,
		"observed_at": rd.ObservedAt.Unix(),
	}
	for k := range rd.Metrics {
		if v, ok := rd.Metric(k); ok {
			fields["m:"+k] = v
		}
	}
	return fields
}

// SaveReading stores the latest state of an entity and indexes its position.
// Readings without an entity id (location-only feeds) are skipped.
func (r *RedisStore) SaveReading(ctx context.Context, class string, rd messages.Reading) error {
	if rd.EntityID == "" {
		return nil
	}
	key := entityStateKey(rd.EntityID)

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, stateFields(class, rd))
	pipe.Expire(ctx, key, entityStateTTL)
	if rd.Coordinates.Lat != 0 || rd.Coordinates.Lon != 0 {
		pipe.GeoAdd(ctx, geoKey(class), &redis.GeoLocation{
			Name:      rd.EntityID,
			Longitude: rd.Coordinates.Lon,
			Latitude:  rd.Coordinates.Lat,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// Nearby returns the ids of entities of a class within radiusKm of (lat, lon), nearest first.
func (r *RedisStore) Nearby(ctx context.Context, class string, lat, lon, radiusKm float64) ([]string, error) {
	locs, err := r.client.GeoSearch(ctx, geoKey(class), &redis.GeoSearchQuery{
		Longitude:  lon,
		Latitude:   lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis geosearch failed: %w", err)
	}
	return locs, nil
}

func (r *RedisStore) PublishAlert(ctx context.Context, a messages.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, AlertsChannel, payload).Err()
}

func (r *RedisStore) PublishZone(ctx context.Context, z messages.ZoneSummary) error {
	payload, err := json.Marshal(z)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, ZonesChannel, payload).Err()
}

// AlertDedup shares the set of fired alert messages across processes via
// SETNX. Entries never expire. When Redis is unreachable it falls back to
// an in-process set, so an alert may fire once per process during an outage.
type AlertDedup struct {
	client  *redis.Client
	timeout time.Duration
	local   *dedup.Deduper
	failing atomic.Bool
}

func (r *RedisStore) AlertDedup() *AlertDedup { return NewAlertDedup(r.client) }

func NewAlertDedup(c *redis.Client) *AlertDedup {
	return &AlertDedup{client: c, timeout: 500 * time.Millisecond, local: dedup.NewPermanent()}
}

func (d *AlertDedup) ShouldProcess(message string) bool {
	if strings.TrimSpace(message) == "" {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	ok, err := d.client.SetNX(ctx, alertDedupKey(message), time.Now().Unix(), 0).Result()
	if err != nil {
		if !d.failing.Swap(true) {
			log.Printf("store: redis dedup unavailable, using local set: %v", err)
		}
		return d.local.ShouldProcess(message)
	}
	if d.failing.Swap(false) {
		log.Printf("store: redis dedup back online")
	}
	// tenere allineato il set locale per i periodi di outage
	d.local.ShouldProcess(message)
	return ok
}
