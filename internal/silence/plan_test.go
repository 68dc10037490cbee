package silence

import (
	"slices"
	"testing"
)

func ev(start, end float64) Event {
	return Event{Start: start, End: end, Duration: end - start, HasEnd: true, HasDuration: true}
}

func TestPlanTrimStartRule(t *testing.T) {
	tests := []struct {
		name   string
		events []Event
		want   float64
	}{
		{"within tolerance", []Event{ev(0.05, 1.2)}, 1.2},
		{"negative jitter", []Event{ev(-0.2, 0.8)}, 0.8},
		{"upper bound inclusive", []Event{ev(0.2, 2.5)}, 2.5},
		{"outside tolerance", []Event{ev(5.0, 6.0)}, 0},
		{"rounded to millis", []Event{ev(0, 1.23456)}, 1.235},
		{"missing end", []Event{{Start: 0}}, 0},
		{"no events", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlanTrim(tt.events, 10).Start; got != tt.want {
				t.Fatalf("Start = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPlanTrimEndRule(t *testing.T) {
	tests := []struct {
		name   string
		events []Event
		want   float64
	}{
		{"tail gap under tolerance", []Event{ev(0.05, 1.2), ev(8.5, 9.85)}, 8.5},
		{"tail gap over tolerance", []Event{ev(0.05, 1.2), ev(8.5, 9.5)}, 11},
		{"single event ignores tail", []Event{ev(8.5, 9.95)}, 11},
		{"open tail runs to EOF", []Event{ev(0.05, 1.2), {Start: 9.1234}}, 9.123},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlanTrim(tt.events, 10).End; got != tt.want {
				t.Fatalf("End = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTrimPlanFilter(t *testing.T) {
	got := TrimPlan{Start: 1.2, End: 11}.Filter().String()
	if got != "atrim=start=1.200:end=11.000" {
		t.Fatalf("Filter() = %q", got)
	}
}

func TestPlanKeepZonesEmptyIsPassThrough(t *testing.T) {
	plan, ok := PlanKeepZones(nil, 10)
	if ok || plan.Count() != 0 || plan.Graph.Len() != 0 {
		t.Fatalf("expected pass-through, got ok=%v plan=%+v", ok, plan)
	}
}

func TestPlanKeepZonesTwoGaps(t *testing.T) {
	plan, ok := PlanKeepZones([]Event{ev(2, 3), ev(6, 7)}, 10)
	if !ok {
		t.Fatal("expected plan")
	}
	want := []KeepZone{
		{Start: 0, End: 2, Label: "a1"},
		{Start: 3, End: 6, Label: "a2"},
		{Start: 7, End: 11, Label: "a3"},
	}
	if !slices.Equal(plan.Zones, want) {
		t.Fatalf("zones = %+v", plan.Zones)
	}
	if plan.Count() != 3 {
		t.Fatalf("Count() = %d", plan.Count())
	}
	if !slices.Equal(plan.Labels(), []string{"a1", "a2", "a3"}) {
		t.Fatalf("labels = %v", plan.Labels())
	}
	wantGraph := "[0]atrim=start=0.000:end=2.000[a1];[0]atrim=start=3.000:end=6.000[a2];[0]atrim=start=7.000:end=11.000[a3];[a1][a2][a3]concat=n=3:v=0:a=1"
	if got := plan.Graph.String(); got != wantGraph {
		t.Fatalf("graph =\n%s\nwant\n%s", got, wantGraph)
	}
}

func TestPlanKeepZonesBumpsDegenerateZones(t *testing.T) {
	plan, ok := PlanKeepZones([]Event{ev(0, 1.5), ev(1.5, 2)}, 5)
	if !ok {
		t.Fatal("expected plan")
	}
	for _, z := range plan.Zones {
		if z.End <= z.Start {
			t.Fatalf("non-positive zone %+v", z)
		}
	}
	if z := plan.Zones[0]; z.Start != 0 || z.End != 0.001 {
		t.Fatalf("leading zone = %+v", z)
	}
	if z := plan.Zones[1]; z.Start != 1.5 || z.End != 1.501 {
		t.Fatalf("collapsed zone = %+v", z)
	}
}

func TestPlanKeepZonesOpenTailOmitsTrailingZone(t *testing.T) {
	plan, ok := PlanKeepZones([]Event{ev(2, 3), {Start: 8}}, 10)
	if !ok {
		t.Fatal("expected plan")
	}
	if plan.Count() != 2 || plan.Zones[1] != (KeepZone{Start: 3, End: 8, Label: "a2"}) {
		t.Fatalf("zones = %+v", plan.Zones)
	}
}

func TestPlanKeepZonesIdempotentOnCleanOutput(t *testing.T) {
	// Re-detecting a silence-free result yields no events, so the second pass is a no-op.
	report := "size=N/A time=00:00:08.00 bitrate=N/A speed=900x\n"
	events := slices.Collect(ParseString(report))
	if _, ok := PlanKeepZones(events, 8); ok {
		t.Fatal("expected pass-through on silence-free report")
	}
}
