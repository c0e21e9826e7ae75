package dedup

import (
	"sync"
	"time"
)

// Deduper remembers ids it has already let through.
//
// With a positive TTL an id may pass again once its entry expires and the
// table is bounded by max (expired entries are pruned first). With ttl == 0
// ids are remembered for the lifetime of the Deduper and max is ignored:
// forgetting an id would let it fire again.
type Deduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	max  int
	now  func() time.Time
	seen map[string]time.Time
}

// New builds a TTL deduper. ttl < 0 falls back to 10 minutes, ttl == 0 never expires.
func New(ttl time.Duration, max int) *Deduper {
	if ttl < 0 {
		ttl = 10 * time.Minute
	}
	if max <= 0 {
		max = 10000
	}
	return &Deduper{ttl: ttl, max: max, now: time.Now, seen: make(map[string]time.Time)}
}

// NewPermanent remembers every id forever.
func NewPermanent() *Deduper { return New(0, 0) }

// ShouldProcess reports whether id is new, and marks it as seen.
func (d *Deduper) ShouldProcess(id string) bool {
	if id == "" {
		return true
	}
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()

	if exp, ok := d.seen[id]; ok {
		if d.ttl == 0 || now.Before(exp) {
			return false
		}
	}
	if d.ttl == 0 {
		d.seen[id] = time.Time{}
		return true
	}
	d.seen[id] = now.Add(d.ttl)
	if len(d.seen) > d.max {
		for k, v := range d.seen {
			if now.After(v) {
				delete(d.seen, k)
			}
			if len(d.seen) <= d.max {
				break
			}
		}
	}
	return true
}

// Seen reports whether id was already let through, without marking it.
func (d *Deduper) Seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	exp, ok := d.seen[id]
	if !ok {
		return false
	}
	return d.ttl == 0 || d.now().Before(exp)
}

func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
