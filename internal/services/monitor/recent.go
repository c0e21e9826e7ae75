package monitor

import (
	"sync"

	"github.com/LeonardoBeccarini/citywatch/internal/model"
)

// Recent is a fixed-size ring of the last emitted alerts.
type Recent struct {
	mu   sync.Mutex
	buf  []model.Alert
	next int
	full bool
}

func NewRecent(size int) *Recent {
	if size <= 0 {
		size = 100
	}
	return &Recent{buf: make([]model.Alert, size)}
}

func (r *Recent) Add(a model.Alert) {
	r.mu.Lock()
	r.buf[r.next] = a
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()
}

func (r *Recent) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// List returns up to limit alerts, newest first. limit <= 0 means all.
func (r *Recent) List(limit int) []model.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	if r.full {
		n = len(r.buf)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]model.Alert, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (r.next - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}
