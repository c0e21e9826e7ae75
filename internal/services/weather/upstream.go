package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/citywatch/internal/metrics"
)

// ErrNotFound is returned when an upstream answers but has nothing for the query.
var ErrNotFound = errors.New("no result")

// StatusError is a non-2xx answer from an upstream.
type StatusError struct {
	Upstream string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s upstream status %d", e.Upstream, e.Code)
	}
	return fmt.Sprintf("%s upstream status %d: %s", e.Upstream, e.Code, e.Body)
}

// retryable: rate limiting and server side errors
func (e *StatusError) retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

type UpstreamConfig struct {
	Timeout         time.Duration // per attempt
	Retries         int           // extra attempts after the first
	BreakerFails    int           // consecutive failures before opening
	BreakerOpen     time.Duration // how long the breaker stays open
	BreakerInterval time.Duration // closed-state counter reset, 0 = never
	UserAgent       string
}

func DefaultUpstreamConfig() UpstreamConfig {
	return UpstreamConfig{
		Timeout:      5 * time.Second,
		Retries:      2,
		BreakerFails: 3,
		BreakerOpen:  30 * time.Second,
		UserAgent:    "citywatch/1.0",
	}
}

// Upstream incapsula le chiamate HTTP verso un servizio esterno:
// timeout per tentativo, retry con backoff e circuit breaker.
type Upstream struct {
	name    string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	cfg     UpstreamConfig
}

func NewUpstream(name string, cfg UpstreamConfig) *Upstream {
	def := DefaultUpstreamConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.BreakerFails <= 0 {
		cfg.BreakerFails = def.BreakerFails
	}
	if cfg.BreakerOpen <= 0 {
		cfg.BreakerOpen = def.BreakerOpen
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	fails := uint32(cfg.BreakerFails)
	return &Upstream{
		name:   name,
		client: &http.Client{},
		cfg:    cfg,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     name,
			Interval: cfg.BreakerInterval,
			Timeout:  cfg.BreakerOpen,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= fails
			},
			// a 4xx means the upstream is alive, the query is wrong
			IsSuccessful: func(err error) bool {
				if err == nil || errors.Is(err, ErrNotFound) {
					return true
				}
				var se *StatusError
				return errors.As(err, &se) && !se.retryable()
			},
		}),
	}
}

func (u *Upstream) Name() string { return u.name }

func (u *Upstream) State() gobreaker.State { return u.breaker.State() }

// GetJSON esegue la GET e decodifica JSON in out.
func (u *Upstream) GetJSON(ctx context.Context, url string, out any) error {
	_, err := u.breaker.Execute(func() (interface{}, error) {
		return nil, u.fetch(ctx, url, out)
	})
	switch {
	case err == nil:
		metrics.UpstreamRequests.WithLabelValues(u.name, "ok").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.UpstreamRequests.WithLabelValues(u.name, "open").Inc()
		return fmt.Errorf("%s breaker open: %w", u.name, err)
	default:
		metrics.UpstreamRequests.WithLabelValues(u.name, "error").Inc()
	}
	return err
}

func (u *Upstream) fetch(ctx context.Context, url string, out any) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = 0 // bounded by Retries

	op := func() error {
		reqCtx, cancel := context.WithTimeout(ctx, u.cfg.Timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", u.cfg.UserAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := u.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(fmt.Errorf("%s request error: %w", u.name, err))
			}
			return fmt.Errorf("%s request error: %w", u.name, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
			se := &StatusError{Upstream: u.name, Code: resp.StatusCode, Body: string(b)}
			if se.retryable() {
				return se
			}
			return backoff.Permanent(se)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("%s decode error: %w", u.name, err))
		}
		return nil
	}

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(u.cfg.Retries)), ctx))
}
