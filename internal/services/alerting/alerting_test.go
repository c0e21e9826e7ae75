package alerting

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/LeonardoBeccarini/citywatch/internal/model/messages"
)

func weather(metrics map[string]float64) messages.Reading {
	return messages.Reading{
		EntityID:     "weather:kuala lumpur",
		LocationName: "Kuala Lumpur",
		DisplayName:  "Kuala Lumpur, Kuala Lumpur, Malaysia",
		Metrics:      metrics,
	}
}

func collect(e *Evaluator, r messages.Reading) []messages.Alert {
	var out []messages.Alert
	for a := range e.Evaluate(r) {
		out = append(out, a)
	}
	return out
}

func TestWindAlertFiresOnce(t *testing.T) {
	t.Parallel()

	e := NewEvaluator(DefaultRules(), nil)
	first := collect(e, weather(map[string]float64{"wind_mph": 20}))
	second := collect(e, weather(map[string]float64{"wind_mph": 20}))

	if len(first) != 1 {
		t.Fatalf("first evaluate: %d alerts, want 1", len(first))
	}
	a := first[0]
	if a.Rule != "wind" || a.Severity != messages.SeverityWarning {
		t.Fatalf("alert %+v", a)
	}
	if a.Message != "High winds in Kuala Lumpur, Kuala Lumpur, Malaysia" {
		t.Fatalf("message %q", a.Message)
	}
	if a.ID == "" || a.FiredAt.IsZero() || a.Value != 20 || a.SubjectLocation != "Kuala Lumpur" {
		t.Fatalf("alert fields %+v", a)
	}
	if len(second) != 0 {
		t.Fatalf("second evaluate: %d alerts, want 0", len(second))
	}

	// cleared and back again: still suppressed
	_ = collect(e, weather(map[string]float64{"wind_mph": 3}))
	if got := collect(e, weather(map[string]float64{"wind_mph": 40})); len(got) != 0 {
		t.Fatalf("recurring condition fired again: %+v", got)
	}
}

func TestThresholdBoundaries(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		metric string
		value  float64
		rule   string
	}{
		{"heat at threshold", "temp_c", 40, "heat"},
		{"heat just below", "temp_c", 39.999, ""},
		{"cold at threshold", "temp_c", 5, "cold"},
		{"cold just above", "temp_c", 5.001, ""},
		{"pressure below", "pressure_mb", 979.9, "low_pressure"},
		{"pressure at threshold", "pressure_mb", 980, ""},
		{"humidity at threshold", "humidity", 90, "humidity"},
		{"humidity just below", "humidity", 89.99, ""},
		{"rain at threshold", "precip_mm", 10, "precipitation"},
		{"wind just below", "wind_mph", 14.9, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			e := NewEvaluator(DefaultRules(), nil)
			got := collect(e, weather(map[string]float64{tc.metric: tc.value}))
			if tc.rule == "" {
				if len(got) != 0 {
					t.Fatalf("unexpected alerts %+v", got)
				}
				return
			}
			if len(got) != 1 || got[0].Rule != tc.rule {
				t.Fatalf("got %+v, want rule %s", got, tc.rule)
			}
		})
	}
}

func TestMissingOrMalformedMetricsNeverFire(t *testing.T) {
	t.Parallel()

	e := NewEvaluator(DefaultRules(), nil)
	readings := []messages.Reading{
		weather(nil),
		weather(map[string]float64{}),
		weather(map[string]float64{"wind_mph": math.NaN(), "temp_c": math.Inf(1)}),
		{EntityID: "bin-01"},
	}
	for _, r := range readings {
		if got := collect(e, r); len(got) != 0 {
			t.Fatalf("reading %+v fired %+v", r, got)
		}
	}
}

func TestAllMatchingRulesFireInOrder(t *testing.T) {
	t.Parallel()

	e := NewEvaluator(DefaultRules(), nil)
	got := collect(e, weather(map[string]float64{"wind_mph": 30, "temp_c": 41, "humidity": 95}))
	var rules []string
	for _, a := range got {
		rules = append(rules, a.Rule)
	}
	if strings.Join(rules, ",") != "wind,heat,humidity" {
		t.Fatalf("rules %v", rules)
	}
}

func TestZoneHazardRules(t *testing.T) {
	t.Parallel()

	e := NewEvaluator(DefaultRules(), nil)
	zone := messages.Reading{EntityID: "zone:Cheras", LocationName: "Cheras", DisplayName: "Cheras",
		Metrics: map[string]float64{"hazard_rank": 2}}
	got := collect(e, zone)
	if len(got) != 1 || got[0].Message != "FLOOD WARNING: Cheras" || got[0].Severity != messages.SeverityCritical {
		t.Fatalf("got %+v", got)
	}
	zone.Metrics["hazard_rank"] = 1
	got = collect(e, zone)
	if len(got) != 1 || got[0].Rule != "flood_watch" {
		t.Fatalf("watch: %+v", got)
	}
	zone.Metrics["hazard_rank"] = 0
	if got = collect(e, zone); len(got) != 0 {
		t.Fatalf("no hazard fired %+v", got)
	}
}

func TestSubjectFallsBackToLocationAndEntity(t *testing.T) {
	t.Parallel()

	e := NewEvaluator(DefaultRules(), nil)
	got := collect(e, messages.Reading{EntityID: "bin-03", Metrics: map[string]float64{"fill_level": 95}})
	if len(got) != 1 || got[0].Message != "bin-03 is full" {
		t.Fatalf("got %+v", got)
	}
	got = collect(e, messages.Reading{LocationName: "Chow Kit", Metrics: map[string]float64{"fill_level": 95}})
	if len(got) != 1 || got[0].Message != "Chow Kit is full" {
		t.Fatalf("got %+v", got)
	}
}

type countingDeduper struct {
	calls int
	seen  map[string]bool
}

func (c *countingDeduper) ShouldProcess(id string) bool {
	c.calls++
	if c.seen[id] {
		return false
	}
	c.seen[id] = true
	return true
}

func TestEvaluateIsLazy(t *testing.T) {
	t.Parallel()

	d := &countingDeduper{seen: map[string]bool{}}
	e := NewEvaluator(DefaultRules(), d)
	seq := e.Evaluate(weather(map[string]float64{"wind_mph": 30, "temp_c": 41, "humidity": 95}))
	if d.calls != 0 {
		t.Fatal("building the sequence must not evaluate rules")
	}
	for range seq {
		break
	}
	if d.calls != 1 || len(d.seen) != 1 {
		t.Fatalf("after one alert: calls=%d seen=%d", d.calls, len(d.seen))
	}
	// the rest is still unseen and fires on the next pass
	if got := collect(e, weather(map[string]float64{"wind_mph": 30, "temp_c": 41, "humidity": 95})); len(got) != 2 {
		t.Fatalf("remaining alerts %d, want 2", len(got))
	}
}

func TestRenderPlaceholders(t *testing.T) {
	t.Parallel()

	r := Rule{Metric: "waterLevel", Threshold: 100, Template: "{subject}: {metric} {value} over {threshold}"}
	if got := r.Render("Cheras", 130.5); got != "Cheras: waterLevel 130.5 over 100" {
		t.Fatalf("render %q", got)
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadRules(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "rules.yaml", `
rules:
  - name: river
    metric: waterLevel
    comparison: ">="
    threshold: 150
    severity: critical
    template: "River overflow near {subject}"
  - name: gust
    metric: gust_mph
    comparison: ">"
    threshold: 35
    severity: warning
    template: "Gusts of {value} mph in {subject}"
`)
	rules, err := LoadRules(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 2 || rules[0].Comparison != GTE || rules[0].Threshold != 150 || rules[1].Severity != messages.SeverityWarning {
		t.Fatalf("rules %+v", rules)
	}

	e := NewEvaluator(rules, nil)
	got := collect(e, messages.Reading{LocationName: "Sri Petaling", Metrics: map[string]float64{"gust_mph": 40}})
	if len(got) != 1 || got[0].Message != "Gusts of 40 mph in Sri Petaling" {
		t.Fatalf("got %+v", got)
	}
}

func TestLoadRulesDefaultsAndErrors(t *testing.T) {
	t.Parallel()

	if rules, err := LoadRules(""); err != nil || len(rules) != len(DefaultRules()) {
		t.Fatalf("empty path: %d rules, err %v", len(rules), err)
	}
	if _, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file must fail")
	}

	bad := map[string]string{
		"empty":      "rules: []\n",
		"comparison": "rules:\n  - {name: a, metric: m, comparison: '~', threshold: 1, severity: info, template: x}\n",
		"severity":   "rules:\n  - {name: a, metric: m, comparison: '<', threshold: 1, severity: loud, template: x}\n",
		"template":   "rules:\n  - {name: a, metric: m, comparison: '<', threshold: 1, severity: info, template: ''}\n",
		"duplicate": "rules:\n  - {name: a, metric: m, comparison: '<', threshold: 1, severity: info, template: x}\n" +
			"  - {name: a, metric: n, comparison: '>', threshold: 2, severity: info, template: y}\n",
	}
	for name, body := range bad {
		path := writeFile(t, name+".yaml", body)
		if _, err := LoadRules(path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestDefaultRulesAreValid(t *testing.T) {
	t.Parallel()

	for _, r := range DefaultRules() {
		if err := r.Validate(); err != nil {
			t.Error(err)
		}
	}
}
