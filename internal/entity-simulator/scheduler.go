package entity_simulator

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/citywatch/internal/metrics"
	"github.com/LeonardoBeccarini/citywatch/internal/model/entities"
	"github.com/LeonardoBeccarini/citywatch/internal/model/messages"
)

// Sink receives every reading the scheduler produces.
type Sink func(class entities.EntityClass, r messages.Reading)

type job struct {
	entity      *entities.Entity
	period      time.Duration
	due         time.Time
	paused      bool
	pausedUntil time.Time
	index       int
}

func (j *job) isPaused(now time.Time) bool {
	return j.paused || now.Before(j.pausedUntil)
}

// dueQueue is a min-heap on due time; ties break on entity id so that
// RunDue is reproducible.
type dueQueue []*job

func (q dueQueue) Len() int { return len(q) }
func (q dueQueue) Less(i, k int) bool {
	if q[i].due.Equal(q[k].due) {
		return q[i].entity.ID < q[k].entity.ID
	}
	return q[i].due.Before(q[k].due)
}
func (q dueQueue) Swap(i, k int) {
	q[i], q[k] = q[k], q[i]
	q[i].index = i
	q[k].index = k
}
func (q *dueQueue) Push(x any) {
	j := x.(*job)
	j.index = len(*q)
	*q = append(*q, j)
}
func (q *dueQueue) Pop() any {
	old := *q
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	j.index = -1
	*q = old[:n-1]
	return j
}

// Scheduler drives every simulated entity from one goroutine and one
// timer. Each entity keeps its own period.
type Scheduler struct {
	mu     sync.Mutex
	gen    *Generator
	queue  dueQueue
	jobs   map[string]*job
	sinks  []Sink
	paused bool
	wake   chan struct{}
	now    func() time.Time
}

func NewScheduler(gen *Generator) *Scheduler {
	return &Scheduler{
		gen:  gen,
		jobs: make(map[string]*job),
		wake: make(chan struct{}, 1),
		now:  time.Now,
	}
}

// OnReading registers a sink. Sinks run on the scheduler goroutine,
// outside the scheduler lock.
func (s *Scheduler) OnReading(fn Sink) {
	s.mu.Lock()
	s.sinks = append(s.sinks, fn)
	s.mu.Unlock()
}

// Add schedules e; its first tick is one period from now. Adding an id
// that is already scheduled replaces it. The returned func cancels the job.
func (s *Scheduler) Add(e *entities.Entity) (cancel func()) {
	s.mu.Lock()
	if old, ok := s.jobs[e.ID]; ok {
		heap.Remove(&s.queue, old.index)
	}
	period := e.Period()
	if period <= 0 {
		period = entities.DefaultPeriod(e.Class)
	}
	j := &job{entity: e, period: period, due: s.now().Add(period)}
	s.jobs[e.ID] = j
	heap.Push(&s.queue, j)
	s.mu.Unlock()
	s.poke()

	id := e.ID
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if cur, ok := s.jobs[id]; ok && cur == j {
			heap.Remove(&s.queue, j.index)
			delete(s.jobs, id)
		}
	}
}

func (s *Scheduler) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return false
	}
	heap.Remove(&s.queue, j.index)
	delete(s.jobs, id)
	return true
}

// Pause stops ticking id. With d > 0 the pause reverts by itself.
func (s *Scheduler) Pause(id string, d time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return false
	}
	if d > 0 {
		j.pausedUntil = s.now().Add(d)
		j.paused = false
	} else {
		j.paused = true
	}
	return true
}

func (s *Scheduler) Resume(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return false
	}
	j.paused = false
	j.pausedUntil = time.Time{}
	return true
}

// SetPaused pauses or resumes the whole simulation. Jobs keep their
// cadence while paused; they just produce nothing.
func (s *Scheduler) SetPaused(p bool) {
	s.mu.Lock()
	s.paused = p
	s.mu.Unlock()
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Scheduler) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[id]
	return ok
}

// RunDue fires every job due at or before now and returns how many
// readings were produced. A job that fell more than one period behind
// skips the missed ticks instead of bursting.
func (s *Scheduler) RunDue(now time.Time) int {
	type produced struct {
		class entities.EntityClass
		r     messages.Reading
	}
	s.mu.Lock()
	var out []produced
	for len(s.queue) > 0 && !s.queue[0].due.After(now) {
		j := s.queue[0]
		if !s.paused && !j.isPaused(now) {
			out = append(out, produced{class: j.entity.Class, r: s.gen.Tick(j.entity)})
		}
		j.due = j.due.Add(j.period)
		if !j.due.After(now) {
			j.due = now.Add(j.period)
		}
		heap.Fix(&s.queue, 0)
	}
	sinks := append([]Sink(nil), s.sinks...)
	s.mu.Unlock()

	for _, p := range out {
		metrics.SimulatorTicks.WithLabelValues(string(p.class)).Inc()
		for _, sink := range sinks {
			sink(p.class, p.r)
		}
	}
	return len(out)
}

func (s *Scheduler) nextDue() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return time.Time{}, false
	}
	return s.queue[0].due, true
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		s.RunDue(s.now())

		wait := time.Hour
		if next, ok := s.nextDue(); ok {
			wait = next.Sub(s.now())
			if wait < 0 {
				wait = 0
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-s.wake:
		}
	}
}

// Snapshot returns a copy of every scheduled entity, sorted by id.
func (s *Scheduler) Snapshot() []entities.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entities.Entity, 0, len(s.jobs))
	for _, j := range s.jobs {
		e := *j.entity
		if e.Metrics != nil {
			m := make(map[string]float64, len(e.Metrics))
			for k, v := range e.Metrics {
				m[k] = v
			}
			e.Metrics = m
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}
