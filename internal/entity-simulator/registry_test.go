package entity_simulator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/LeonardoBeccarini/citywatch/internal/model/entities"
)

func TestValidateRegistry(t *testing.T) {
	t.Parallel()

	spec := func(name string, min, max, jitter float64) []entities.MetricSpec {
		return []entities.MetricSpec{{Name: name, Min: min, Max: max, Jitter: jitter}}
	}
	tests := []struct {
		name    string
		list    []entities.Entity
		wantErr string
	}{
		{"valid", []entities.Entity{{ID: "a", PeriodS: 0.5, Step: 0.001, Specs: spec("m", 0, 1, 0.1)}}, ""},
		{"unset period", []entities.Entity{{ID: "a"}}, ""},
		{"missing id", []entities.Entity{{}}, "without id"},
		{"duplicate id", []entities.Entity{{ID: "a"}, {ID: "a"}}, "duplicate"},
		{"negative step", []entities.Entity{{ID: "a", Step: -1}}, "negative"},
		{"negative period", []entities.Entity{{ID: "a", PeriodS: -2}}, "negative"},
		{"sub-nanosecond period", []entities.Entity{{ID: "a", PeriodS: 1e-10}}, "out of range"},
		{"sub-millisecond period", []entities.Entity{{ID: "a", PeriodS: 0.0005}}, "out of range"},
		{"inverted bounds", []entities.Entity{{ID: "a", Bounds: entities.Bounds{MinLat: 4, MaxLat: 3, MinLon: 101, MaxLon: 102}}}, "inverted"},
		{"unnamed spec", []entities.Entity{{ID: "a", Specs: spec("", 0, 1, 0)}}, "without name"},
		{"min above max", []entities.Entity{{ID: "a", Specs: spec("m", 5, 1, 0)}}, "min > max"},
		{"negative jitter", []entities.Entity{{ID: "a", Specs: spec("m", 0, 1, -1)}}, "negative jitter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateRegistry(tt.list)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadRegistry(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
		return p
	}

	list, err := LoadRegistry(write("ok.json", `[{"id":"bus-9","class":"vehicle","location":"Cheras","period_s":2}]`))
	if err != nil || len(list) != 1 || list[0].Period() != 2*time.Second {
		t.Fatalf("LoadRegistry = %+v, %v", list, err)
	}
	if _, err := LoadRegistry(write("tiny.json", `[{"id":"x","period_s":1e-10}]`)); err == nil {
		t.Fatal("tiny period accepted")
	}
	if _, err := LoadRegistry(write("broken.json", `[{"id":`)); err == nil {
		t.Fatal("malformed JSON accepted")
	}
	if _, err := LoadRegistry(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("missing file accepted")
	}
	if list, err := LoadRegistry(""); err != nil || len(list) == 0 {
		t.Fatalf("default registry: %d entities, %v", len(list), err)
	}
}

func TestPeriodFallsBackToClassDefault(t *testing.T) {
	t.Parallel()

	for _, p := range []float64{0, -1, 1e-10, 0.0001} {
		e := entities.Entity{ID: "x", Class: entities.ClassBin, PeriodS: p}
		if got := e.Period(); got != entities.DefaultPeriod(entities.ClassBin) {
			t.Errorf("PeriodS %g: Period() = %s", p, got)
		}
	}
	e := entities.Entity{ID: "x", PeriodS: 0.25}
	if got := e.Period(); got != 250*time.Millisecond {
		t.Fatalf("Period() = %s", got)
	}
}

func TestSchedulerTinyPeriodDoesNotSpin(t *testing.T) {
	t.Parallel()

	s, l := newTestScheduler()
	e := testEntity("gauge", entities.ClassBin)
	e.PeriodS = 1e-10
	s.Add(e)

	done := make(chan int, 1)
	go func() { done <- s.RunDue(t0.Add(time.Second)) }()
	select {
	case n := <-done:
		if n != 0 || l.count("gauge") != 0 {
			t.Fatalf("ticked %d times before the 3s class default", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunDue did not return")
	}
	if n := s.RunDue(t0.Add(3 * time.Second)); n != 1 {
		t.Fatalf("RunDue at 3s = %d, want 1", n)
	}
}
