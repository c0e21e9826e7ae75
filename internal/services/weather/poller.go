package weather

import (
	"context"
	"log"
	"time"

	"github.com/LeonardoBeccarini/citywatch/internal/model/messages"
)

// Poller fetches a fixed list of locations on an interval.
type Poller struct {
	provider  Provider
	queries   []string
	interval  time.Duration
	onReading func(messages.Reading)
}

func NewPoller(p Provider, queries []string, interval time.Duration, onReading func(messages.Reading)) *Poller {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Poller{provider: p, queries: queries, interval: interval, onReading: onReading}
}

// PollOnce fetches every query once and returns how many readings were delivered.
func (p *Poller) PollOnce(ctx context.Context) int {
	n := 0
	for _, q := range p.queries {
		if ctx.Err() != nil {
			return n
		}
		r, err := p.provider.Current(ctx, q)
		if err != nil {
			log.Printf("weather: poll %q: %v", q, err)
			continue
		}
		if p.onReading != nil {
			p.onReading(r)
		}
		n++
	}
	return n
}

// Run polls immediately and then every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	if len(p.queries) == 0 {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.PollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}
