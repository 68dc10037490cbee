package processing

import (
	"episodic/internal/fade"
	"episodic/internal/filtergraph"
)

// Clip is a prepared intro or outro and its duration in seconds.
type Clip struct {
	Path     string
	Duration float64
}

// Composition is the mix plan for a main track with an optional intro and
// outro. Inputs lists the extra engine inputs after the main track, in order.
type Composition struct {
	Inputs     []string
	IntroDelay fade.ChannelDelays
	OutroDelay fade.ChannelDelays
	Graph      filtergraph.Graph
}

// IntroDelaySeconds is where the main track starts under an intro of the
// given length, pulled earlier by the overlay when the intro is long enough.
func IntroDelaySeconds(intro, overlay float64) float64 {
	if overlay > 0 && intro > overlay {
		return intro - overlay
	}
	return intro
}

// OutroDelaySeconds is where the outro starts. With an intro present the
// main track is itself shifted, so both overlays are subtracted.
func OutroDelaySeconds(main, intro, overlay float64, hasIntro bool) float64 {
	if !hasIntro {
		if overlay > 0 {
			return main - overlay
		}
		return main
	}
	if overlay > 0 {
		return intro + main - 2*overlay
	}
	return intro + main
}

// PlanComposition builds the mix graph. Input 0 is always the main track.
// It returns ok=false when neither clip is present.
func PlanComposition(mainDuration float64, intro, outro *Clip, overlay float64) (Composition, bool) {
	if intro == nil && outro == nil {
		return Composition{}, false
	}
	var plan Composition
	introLen := 0.0
	if intro != nil {
		introLen = intro.Duration
		plan.Inputs = append(plan.Inputs, intro.Path)
		plan.IntroDelay = fade.ComputeChannelDelays(IntroDelaySeconds(introLen, overlay))
	}
	if outro != nil {
		plan.Inputs = append(plan.Inputs, outro.Path)
		plan.OutroDelay = fade.ComputeChannelDelays(OutroDelaySeconds(mainDuration, introLen, overlay, intro != nil))
	}

	adelay := func(d fade.ChannelDelays) filtergraph.Filter {
		return filtergraph.New("adelay").Positional(d.String())
	}
	amix := func(n int) filtergraph.Filter {
		return filtergraph.New("amix").Positional(filtergraph.Input(n))
	}
	g := &plan.Graph
	switch {
	case outro == nil:
		g.Add([]string{filtergraph.Input(0)}, adelay(plan.IntroDelay), "a")
		g.Add([]string{filtergraph.Input(1), "a"}, amix(2))
	case intro == nil:
		g.Add([]string{filtergraph.Input(1)}, adelay(plan.OutroDelay), "a")
		g.Add([]string{filtergraph.Input(0), "a"}, amix(2))
	default:
		g.Add([]string{filtergraph.Input(0)}, adelay(plan.IntroDelay), "a")
		g.Add([]string{filtergraph.Input(2)}, adelay(plan.OutroDelay), "b")
		g.Add([]string{filtergraph.Input(1), "a", "b"}, amix(3))
	}
	return plan, true
}
