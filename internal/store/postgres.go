package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/LeonardoBeccarini/citywatch/internal/model/messages"
)

type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	MaxConns int
}

// DSN builds a pgxpool connection string.
func (c PostgresConfig) DSN() string {
	maxConns := c.MaxConns
	if maxConns <= 0 {
		maxConns = 5
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?pool_max_conns=%d",
		c.User, c.Password, c.Host, c.Port, c.Name, maxConns)
}

// AlertStore is the durable alert log.
type AlertStore struct {
	pool *pgxpool.Pool
}

func NewAlertStore(ctx context.Context, dsn string) (*AlertStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return &AlertStore{pool: pool}, nil
}

func (s *AlertStore) Close() { s.pool.Close() }

func (s *AlertStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

const alertsSchema = `
CREATE TABLE IF NOT EXISTS city_alerts (
	id               UUID PRIMARY KEY,
	rule             TEXT        NOT NULL,
	message          TEXT        NOT NULL,
	severity         TEXT        NOT NULL,
	subject_location TEXT,
	subject_entity   TEXT,
	metric           TEXT        NOT NULL,
	value            DOUBLE PRECISION NOT NULL,
	threshold        DOUBLE PRECISION NOT NULL,
	fired_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS city_alerts_fired_at_idx ON city_alerts (fired_at DESC);
`

func (s *AlertStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, alertsSchema); err != nil {
		return fmt.Errorf("create city_alerts: %w", err)
	}
	return nil
}

func (s *AlertStore) InsertAlert(ctx context.Context, a messages.Alert) error {
	const q = `
		INSERT INTO city_alerts
			(id, rule, message, severity, subject_location, subject_entity, metric, value, threshold, fired_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT DO NOTHING
	`
	_, err := s.pool.Exec(ctx, q,
		a.ID, a.Rule, a.Message, string(a.Severity),
		nullable(a.SubjectLocation), nullable(a.SubjectEntity),
		a.Metric, a.Value, a.Threshold, a.FiredAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert %s: %w", a.ID, err)
	}
	return nil
}

// Recent returns the last alerts, newest first. A zero since means no
// lower bound.
func (s *AlertStore) Recent(ctx context.Context, since time.Time, limit int) ([]messages.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, rule, message, severity, COALESCE(subject_location, ''), COALESCE(subject_entity, ''),
		       metric, value, threshold, fired_at
		FROM city_alerts
		WHERE fired_at >= $1
		ORDER BY fired_at DESC
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (messages.Alert, error) {
		var a messages.Alert
		var sev string
		err := row.Scan(&a.ID, &a.Rule, &a.Message, &sev, &a.SubjectLocation, &a.SubjectEntity,
			&a.Metric, &a.Value, &a.Threshold, &a.FiredAt)
		a.Severity = messages.Severity(sev)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan alerts: %w", err)
	}
	return out, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
