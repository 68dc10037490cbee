package silence

import (
	"math"

	"episodic/internal/filtergraph"
)

const (
	// EdgeTolerance is the jitter window, in seconds, for treating a silence as
	// touching the start or end of the asset.
	EdgeTolerance = 0.2
	// MinZone is the width given to a keep zone whose bounds collapsed.
	MinZone = 0.001
	// TailPadding keeps a window open past the true end so the engine never
	// clips on float rounding.
	TailPadding = 1.0
)

// TrimPlan is the single window kept by a head/tail trim.
type TrimPlan struct {
	Start float64
	End   float64
}

// Filter renders the atrim filter for the plan.
func (p TrimPlan) Filter() filtergraph.Filter {
	return filtergraph.New("atrim").
		With("start", filtergraph.Seconds(p.Start)).
		With("end", filtergraph.Seconds(p.End))
}

// PlanTrim derives the head/tail keep window.
//
// The head is cut only when the first silence starts within EdgeTolerance of
// zero and has an end. The tail is considered only when more than one silence
// was reported, and is cut at the last silence's start when that silence ends
// within EdgeTolerance of duration. A last silence without an end ran to EOF
// and is treated as ending at duration.
func PlanTrim(events []Event, duration float64) TrimPlan {
	plan := TrimPlan{Start: 0, End: duration + TailPadding}
	if len(events) == 0 {
		return plan
	}

	first := events[0]
	if first.Start >= -EdgeTolerance && first.Start <= EdgeTolerance && first.HasEnd {
		plan.Start = round3(first.End)
	}

	if len(events) > 1 {
		last := events[len(events)-1]
		end := duration
		if last.HasEnd {
			end = last.End
		}
		if duration-end < EdgeTolerance {
			plan.End = round3(last.Start)
		}
	}
	return plan
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
