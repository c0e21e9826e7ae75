package aggregator

import (
	"reflect"
	"testing"
	"time"

	"github.com/LeonardoBeccarini/citywatch/internal/model/entities"
	"github.com/LeonardoBeccarini/citywatch/internal/model/messages"
)

func sensor(id, loc string, level float64, status string, lat, lon float64) messages.Reading {
	return messages.Reading{
		EntityID:     id,
		LocationName: loc,
		Coordinates:  entities.Coordinates{Lat: lat, Lon: lon},
		Metrics:      map[string]float64{DefaultMetric: level},
		Status:       status,
	}
}

func cheras() []messages.Reading {
	return []messages.Reading{
		sensor("fs-1", "Cheras", 100, "flooded", 3.080, 101.740),
		sensor("fs-2", "Cheras", 160, "flooded", 3.090, 101.750),
		sensor("fs-3", "Cheras", 40, "safe", 3.085, 101.760),
	}
}

func TestAggregateCheras(t *testing.T) {
	t.Parallel()

	zones := NewAggregator().Aggregate(cheras())
	z, ok := zones["Cheras"]
	if !ok || len(zones) != 1 {
		t.Fatalf("zones %v", zones)
	}
	if z.HazardLevel != messages.HazardCritical {
		t.Fatalf("level %s, want CRITICAL", z.HazardLevel)
	}
	if !z.HasSummary || z.SummaryMetric != 130 {
		t.Fatalf("summary %v (%v), want 130", z.SummaryMetric, z.HasSummary)
	}
	if len(z.Members) != 3 || len(z.Hazardous) != 2 {
		t.Fatalf("members %d hazardous %d", len(z.Members), len(z.Hazardous))
	}
	// two hazardous points: the hull is the segment between them
	if len(z.Boundary) != 2 {
		t.Fatalf("boundary %v", z.Boundary)
	}
}

func TestAggregateMeanOverHazardousOnly(t *testing.T) {
	t.Parallel()

	in := []messages.Reading{
		sensor("a", "Kampung Baru", 120, "flooded", 3.16, 101.70),
		sensor("b", "Kampung Baru", 140, "flooded", 3.17, 101.71),
		sensor("c", "Kampung Baru", 500, "safe", 3.18, 101.72),
	}
	z := NewAggregator().Aggregate(in)["Kampung Baru"]
	if z.SummaryMetric != 130 {
		t.Fatalf("mean %v, want 130", z.SummaryMetric)
	}
}

func TestAggregateNoHazard(t *testing.T) {
	t.Parallel()

	in := []messages.Reading{
		sensor("a", "Bangsar", 10, "safe", 3.13, 101.67),
		sensor("b", "Bangsar", 12, "", 3.14, 101.68),
	}
	z := NewAggregator().Aggregate(in)["Bangsar"]
	if z.HazardLevel != messages.HazardNone || z.HasSummary || z.Boundary != nil {
		t.Fatalf("zone %+v", z)
	}
	s := z.Summary(time.Unix(0, 0))
	if s.SummaryMetric != nil || s.Metric != "" || s.Members != 2 {
		t.Fatalf("summary %+v", s)
	}
}

func TestAggregateMissingMetric(t *testing.T) {
	t.Parallel()

	noMetric := sensor("a", "Setapak", 0, "flooded", 3.20, 101.72)
	noMetric.Metrics = map[string]float64{"battery": 80}
	z := NewAggregator().Aggregate([]messages.Reading{noMetric})["Setapak"]
	if z.HazardLevel != messages.HazardCritical {
		t.Fatalf("level %s", z.HazardLevel)
	}
	if z.HasSummary {
		t.Fatal("summary without any metric value")
	}

	withOne := append([]messages.Reading{noMetric}, sensor("b", "Setapak", 90, "flooded", 3.21, 101.73))
	z = NewAggregator().Aggregate(withOne)["Setapak"]
	if !z.HasSummary || z.SummaryMetric != 90 {
		t.Fatalf("summary %v", z.SummaryMetric)
	}
}

func TestAggregateTotality(t *testing.T) {
	t.Parallel()

	in := append(cheras(),
		sensor("x", "", 200, "flooded", 3.0, 101.0),
		sensor("y", "Bangsar", 5, "safe", 3.13, 101.67),
	)
	zones := NewAggregator().Aggregate(in)
	total := 0
	for _, z := range zones {
		total += len(z.Members)
	}
	if total != len(in) {
		t.Fatalf("%d members over zones, want %d", total, len(in))
	}
	if u, ok := zones[messages.UnknownLocation]; !ok || len(u.Members) != 1 {
		t.Fatalf("unknown zone %+v", u)
	}

	var order []string
	for _, z := range Sorted(zones) {
		order = append(order, z.Location)
	}
	if want := []string{"Cheras", messages.UnknownLocation, "Bangsar"}; !reflect.DeepEqual(order, want) {
		t.Fatalf("order %v, want %v", order, want)
	}
}

func TestAggregateStatusCaseInsensitive(t *testing.T) {
	t.Parallel()

	z := NewAggregator().Aggregate([]messages.Reading{sensor("a", "Cheras", 1, "FLOODED", 0, 0)})["Cheras"]
	if z.HazardLevel != messages.HazardCritical {
		t.Fatalf("level %s", z.HazardLevel)
	}

	a := NewAggregator()
	a.HazardStatuses = []string{"flooded", "overflowing"}
	z = a.Aggregate([]messages.Reading{sensor("b", "Cheras", 1, "overflowing", 0, 0)})["Cheras"]
	if z.HazardLevel == messages.HazardNone {
		t.Fatal("extra hazardous status ignored")
	}
}

func TestPolicies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		policy    HazardPolicy
		hazardous int
		total     int
		want      messages.HazardLevel
	}{
		{"any single", AnyHazardous, 1, 5, messages.HazardCritical},
		{"any all", AnyHazardous, 3, 3, messages.HazardCritical},
		{"proportional some", Proportional, 1, 2, messages.HazardWarning},
		{"proportional all", Proportional, 2, 2, messages.HazardCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.policy.Level(tt.hazardous, tt.total); got != tt.want {
				t.Fatalf("Level(%d,%d) = %s, want %s", tt.hazardous, tt.total, got, tt.want)
			}
		})
	}
}

func TestPolicyByName(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", "any", " ANY ", "proportional"} {
		if _, ok := PolicyByName(name); !ok {
			t.Errorf("PolicyByName(%q) not found", name)
		}
	}
	if _, ok := PolicyByName("majority"); ok {
		t.Error("unknown policy resolved")
	}
}

func TestPolicyNoneIsBumpedToWarning(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	a.Policy = HazardPolicyFunc(func(int, int) messages.HazardLevel { return messages.HazardNone })
	z := a.Aggregate(cheras())["Cheras"]
	if z.HazardLevel != messages.HazardWarning {
		t.Fatalf("level %s, want WARNING", z.HazardLevel)
	}
}

func TestAggregateMonotonic(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	a.Policy = Proportional
	in := []messages.Reading{
		sensor("a", "Cheras", 10, "safe", 0, 0),
		sensor("b", "Cheras", 10, "safe", 0, 1),
	}
	prev := a.Aggregate(in)["Cheras"].HazardLevel.Rank()
	for i := range in {
		in[i].Status = "flooded"
		got := a.Aggregate(in)["Cheras"].HazardLevel.Rank()
		if got < prev {
			t.Fatalf("rank dropped from %d to %d after flooding %s", prev, got, in[i].EntityID)
		}
		prev = got
	}
	if prev != 2 {
		t.Fatalf("all flooded rank %d, want 2", prev)
	}
}

func TestZoneAsReading(t *testing.T) {
	t.Parallel()

	z := NewAggregator().Aggregate(cheras())["Cheras"]
	r := z.AsReading()
	if r.EntityID != "zone:Cheras" || r.LocationName != "Cheras" {
		t.Fatalf("reading %+v", r)
	}
	if v, _ := r.Metric(MetricHazardRank); v != 2 {
		t.Fatalf("hazard_rank %v", v)
	}
	if v, _ := r.Metric(DefaultMetric + "_mean"); v != 130 {
		t.Fatalf("mean %v", v)
	}
	if v, _ := r.Metric(MetricMembers); v != 3 {
		t.Fatalf("members %v", v)
	}

	u := NewAggregator().Aggregate([]messages.Reading{sensor("x", "", 1, "safe", 0, 0)})[messages.UnknownLocation]
	if got := u.AsReading(); got.LocationName != "" || got.Subject() != messages.UnknownLocation {
		t.Fatalf("unknown zone reading %+v", got)
	}
}

func TestConvexHull(t *testing.T) {
	t.Parallel()

	c := func(lat, lon float64) entities.Coordinates { return entities.Coordinates{Lat: lat, Lon: lon} }
	tests := []struct {
		name string
		in   []entities.Coordinates
		want []entities.Coordinates
	}{
		{"empty", nil, nil},
		{"single", []entities.Coordinates{c(1, 1)}, []entities.Coordinates{c(1, 1)}},
		{"duplicates", []entities.Coordinates{c(1, 1), c(1, 1)}, []entities.Coordinates{c(1, 1)}},
		{"collinear", []entities.Coordinates{c(2, 2), c(0, 0), c(1, 1)}, []entities.Coordinates{c(0, 0), c(2, 2)}},
		{
			"square with interior point",
			[]entities.Coordinates{c(1, 1), c(0.5, 0.5), c(0, 1), c(1, 0), c(0, 0)},
			[]entities.Coordinates{c(0, 0), c(0, 1), c(1, 1), c(1, 0)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ConvexHull(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("ConvexHull = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDataAggregatorServiceDirtyFlag(t *testing.T) {
	t.Parallel()

	var passes [][]Zone
	svc := NewDataAggregatorService(nil, time.Hour, func(z []Zone) { passes = append(passes, z) })

	if _, ok := svc.AggregateNow(); ok {
		t.Fatal("empty buffer aggregated")
	}
	for _, r := range cheras() {
		svc.Ingest(r)
	}
	zones, ok := svc.AggregateNow()
	if !ok || len(zones) != 1 || len(passes) != 1 {
		t.Fatalf("first pass ok=%v zones=%d callbacks=%d", ok, len(zones), len(passes))
	}
	if _, ok := svc.AggregateNow(); ok {
		t.Fatal("clean buffer aggregated again")
	}

	// same entity: replaced in place, position kept
	svc.Ingest(sensor("fs-1", "Cheras", 10, "safe", 3.080, 101.740))
	latest := svc.Latest()
	if len(latest) != 3 || latest[0].EntityID != "fs-1" || latest[0].Status != "safe" {
		t.Fatalf("latest %+v", latest)
	}
	zones, ok = svc.AggregateNow()
	if !ok || zones[0].SummaryMetric != 160 {
		t.Fatalf("second pass %+v", zones)
	}
	if got := svc.Zones(); len(got) != 1 || got[0].Location != "Cheras" {
		t.Fatalf("Zones() %+v", got)
	}
}

func TestIngestCopiesMetrics(t *testing.T) {
	t.Parallel()

	svc := NewDataAggregatorService(nil, time.Hour, nil)
	r := sensor("fs-1", "Cheras", 100, "flooded", 0, 0)
	svc.Ingest(r)
	r.Metrics[DefaultMetric] = 1

	if v, _ := svc.Latest()[0].Metric(DefaultMetric); v != 100 {
		t.Fatalf("buffered metric changed to %v", v)
	}
}

func TestProportionalCountsOnlyHazardCapableMembers(t *testing.T) {
	t.Parallel()

	bin := messages.Reading{EntityID: "bin-1", LocationName: "Cheras", Metrics: map[string]float64{"fill_level": 40}, Status: "normal"}
	bus := messages.Reading{EntityID: "bus-1", LocationName: "Cheras", Metrics: map[string]float64{"battery": 80}}
	in := []messages.Reading{
		sensor("fs-1", "Cheras", 120, "flooded", 3.08, 101.74),
		sensor("fs-2", "Cheras", 140, "flooded", 3.09, 101.75),
		bin, bus,
	}

	a := NewAggregator()
	a.Policy = Proportional
	if got := a.Aggregate(in)["Cheras"].HazardLevel; got != messages.HazardWarning {
		t.Fatalf("without filter: %s, want WARNING", got)
	}

	a.HazardCapable = CarriesMetric(DefaultMetric)
	z := a.Aggregate(in)["Cheras"]
	if z.HazardLevel != messages.HazardCritical {
		t.Fatalf("all flood sensors flooded: %s, want CRITICAL", z.HazardLevel)
	}
	if len(z.Members) != 4 {
		t.Fatalf("members %d, the filter must not drop readings", len(z.Members))
	}

	in = append(in, sensor("fs-3", "Cheras", 30, "safe", 3.10, 101.76))
	if got := a.Aggregate(in)["Cheras"].HazardLevel; got != messages.HazardWarning {
		t.Fatalf("one flood sensor still safe: %s, want WARNING", got)
	}
}
