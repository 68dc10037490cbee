package silence

import (
	"strconv"

	"episodic/internal/filtergraph"
)

// KeepZone is a window of the source that survives silence removal.
type KeepZone struct {
	Start float64
	End   float64
	Label string
}

// KeepZonePlan holds the zones in source order and the concat graph over them.
type KeepZonePlan struct {
	Zones []KeepZone
	Graph filtergraph.Graph
}

// Count is the concat node's input count.
func (p KeepZonePlan) Count() int { return len(p.Zones) }

// Labels returns the zone labels in concat order.
func (p KeepZonePlan) Labels() []string {
	labels := make([]string, len(p.Zones))
	for i, z := range p.Zones {
		labels[i] = z.Label
	}
	return labels
}

// PlanKeepZones computes the windows between silences. It returns ok=false
// when there is nothing to remove.
//
// Each zone runs from the previous silence's end (0 for the first) to the
// next silence's start; a zone whose end does not exceed its start is widened
// to MinZone. A trailing zone from the last silence's end to duration +
// TailPadding is appended unless that silence ran to EOF.
func PlanKeepZones(events []Event, duration float64) (KeepZonePlan, bool) {
	if len(events) == 0 {
		return KeepZonePlan{}, false
	}

	zones := make([]KeepZone, 0, len(events)+1)
	appendZone := func(start, end float64) {
		if start >= end {
			end = round3(start + MinZone)
		}
		zones = append(zones, KeepZone{Start: start, End: end, Label: "a" + strconv.Itoa(len(zones)+1)})
	}

	cursor := 0.0
	for i, ev := range events {
		appendZone(round3(cursor), round3(ev.Start))
		switch {
		case ev.HasEnd:
			cursor = ev.End
		case i == len(events)-1:
			cursor = -1
		default:
			cursor = ev.Start
		}
	}
	if cursor >= 0 {
		appendZone(round3(cursor), duration+TailPadding)
	}

	var graph filtergraph.Graph
	labels := make([]string, 0, len(zones))
	for _, z := range zones {
		graph.Add([]string{filtergraph.Input(0)}, filtergraph.New("atrim").
			With("start", filtergraph.Seconds(z.Start)).
			With("end", filtergraph.Seconds(z.End)), z.Label)
		labels = append(labels, z.Label)
	}
	graph.Add(labels, filtergraph.New("concat").
		With("n", strconv.Itoa(len(zones))).
		With("v", "0").
		With("a", "1"))

	return KeepZonePlan{Zones: zones, Graph: graph}, true
}
