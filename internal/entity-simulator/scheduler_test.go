package entity_simulator

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/LeonardoBeccarini/citywatch/internal/model/entities"
	"github.com/LeonardoBeccarini/citywatch/internal/model/messages"
)

var t0 = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

type tickLog struct {
	mu  sync.Mutex
	ids []string
}

func (l *tickLog) sink(_ entities.EntityClass, r messages.Reading) {
	l.mu.Lock()
	l.ids = append(l.ids, r.EntityID)
	l.mu.Unlock()
}

func (l *tickLog) count(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, v := range l.ids {
		if v == id {
			n++
		}
	}
	return n
}

func newTestScheduler() (*Scheduler, *tickLog) {
	s := NewScheduler(NewGenerator(rand.New(rand.NewSource(1))))
	s.now = func() time.Time { return t0 }
	l := &tickLog{}
	s.OnReading(l.sink)
	return s, l
}

func testEntity(id string, class entities.EntityClass) *entities.Entity {
	return &entities.Entity{
		ID: id, Class: class, Location: "Cheras",
		Specs: []entities.MetricSpec{{Name: "m", Min: 0, Max: 1, Initial: 0.5}},
	}
}

func TestSchedulerIndependentPeriods(t *testing.T) {
	t.Parallel()

	s, l := newTestScheduler()
	s.Add(testEntity("bus", entities.ClassVehicle)) // 2s
	s.Add(testEntity("bin", entities.ClassBin))     // 3s
	s.Add(testEntity("truck", entities.ClassTruck)) // 5s

	for sec := 1; sec <= 30; sec++ {
		s.RunDue(t0.Add(time.Duration(sec) * time.Second))
	}
	if got := l.count("bus"); got != 15 {
		t.Errorf("bus ticked %d times, want 15", got)
	}
	if got := l.count("bin"); got != 10 {
		t.Errorf("bin ticked %d times, want 10", got)
	}
	if got := l.count("truck"); got != 6 {
		t.Errorf("truck ticked %d times, want 6", got)
	}
}

func TestSchedulerRunDueOrderIsStable(t *testing.T) {
	t.Parallel()

	s, l := newTestScheduler()
	for _, id := range []string{"c", "a", "b"} {
		s.Add(testEntity(id, entities.ClassTruck))
	}
	if n := s.RunDue(t0.Add(5 * time.Second)); n != 3 {
		t.Fatalf("RunDue = %d, want 3", n)
	}
	if l.ids[0] != "a" || l.ids[1] != "b" || l.ids[2] != "c" {
		t.Fatalf("order %v, want a b c", l.ids)
	}
}

func TestSchedulerCancel(t *testing.T) {
	t.Parallel()

	s, l := newTestScheduler()
	cancel := s.Add(testEntity("bus", entities.ClassVehicle))
	s.Add(testEntity("truck", entities.ClassTruck))

	s.RunDue(t0.Add(2 * time.Second))
	cancel()
	cancel() // idempotent
	s.RunDue(t0.Add(10 * time.Second))

	if got := l.count("bus"); got != 1 {
		t.Fatalf("cancelled job ticked %d times, want 1", got)
	}
	if got := l.count("truck"); got != 1 {
		t.Fatalf("other job must keep running, got %d", got)
	}
	if s.Has("bus") || s.Len() != 1 {
		t.Fatalf("bus still scheduled (len %d)", s.Len())
	}
}

func TestSchedulerTimedPauseReverts(t *testing.T) {
	t.Parallel()

	s, l := newTestScheduler()
	s.Add(testEntity("bus", entities.ClassVehicle))

	if !s.Pause("bus", 3*time.Second) {
		t.Fatal("Pause on a scheduled entity returned false")
	}
	s.RunDue(t0.Add(2 * time.Second))
	if got := l.count("bus"); got != 0 {
		t.Fatalf("paused entity ticked %d times", got)
	}
	s.RunDue(t0.Add(4 * time.Second))
	if got := l.count("bus"); got != 1 {
		t.Fatalf("pause did not revert, ticks = %d", got)
	}
	if s.Pause("ghost", time.Second) {
		t.Fatal("Pause on an unknown entity returned true")
	}
}

func TestSchedulerPauseResumeAndGlobalPause(t *testing.T) {
	t.Parallel()

	s, l := newTestScheduler()
	s.Add(testEntity("bus", entities.ClassVehicle))

	s.Pause("bus", 0)
	s.RunDue(t0.Add(2 * time.Second))
	s.Resume("bus")
	s.RunDue(t0.Add(4 * time.Second))
	if got := l.count("bus"); got != 1 {
		t.Fatalf("ticks after resume = %d, want 1", got)
	}

	s.SetPaused(true)
	s.RunDue(t0.Add(6 * time.Second))
	s.SetPaused(false)
	s.RunDue(t0.Add(8 * time.Second))
	if got := l.count("bus"); got != 2 {
		t.Fatalf("ticks after global pause = %d, want 2", got)
	}
}

func TestSchedulerSkipsMissedTicks(t *testing.T) {
	t.Parallel()

	s, l := newTestScheduler()
	s.Add(testEntity("bus", entities.ClassVehicle))
	if n := s.RunDue(t0.Add(time.Minute)); n != 1 {
		t.Fatalf("late RunDue produced %d readings, want 1", n)
	}
	if n := s.RunDue(t0.Add(time.Minute + time.Second)); n != 0 {
		t.Fatalf("next tick came early: %d", n)
	}
	if n := s.RunDue(t0.Add(time.Minute + 2*time.Second)); n != 1 || l.count("bus") != 2 {
		t.Fatalf("cadence not restored: n=%d total=%d", n, l.count("bus"))
	}
}

func TestSchedulerSnapshotIsCopy(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler()
	s.Add(testEntity("b", entities.ClassBin))
	s.Add(testEntity("a", entities.ClassBin))
	s.RunDue(t0.Add(3 * time.Second))

	snap := s.Snapshot()
	if len(snap) != 2 || snap[0].ID != "a" {
		t.Fatalf("snapshot %v", snap)
	}
	snap[0].Metrics["m"] = 99
	if s.Snapshot()[0].Metrics["m"] == 99 {
		t.Fatal("snapshot shares the metrics map")
	}
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	s := NewScheduler(NewGenerator(rand.New(rand.NewSource(1))))
	got := make(chan string, 16)
	s.OnReading(func(_ entities.EntityClass, r messages.Reading) {
		select {
		case got <- r.EntityID:
		default:
		}
	})
	e := testEntity("fast", entities.ClassVehicle)
	e.PeriodS = 0.01
	s.Add(e)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case id := <-got:
		if id != "fast" {
			t.Fatalf("unexpected reading for %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run produced no reading")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
