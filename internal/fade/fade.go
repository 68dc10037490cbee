// Package fade computes crossfade windows and per-channel delay values for
// intro/outro composition. Everything here is pure arithmetic.
package fade

import (
	"math"
	"strconv"
	"strings"
)

// ChannelSlots is the number of channel indexes (0..8) an adelay value is
// repeated over. adelay inside -filter_complex has no all-channels form.
const ChannelSlots = 9

// Window is an afade placement.
type Window struct {
	Start    float64
	Duration float64
}

// ComputeWindow places a fade of overlay*2 seconds at the end of a clip.
// Start is rounded to centiseconds and clamped to zero for short clips.
func ComputeWindow(overlay, clip float64) Window {
	d := overlay * 2
	st := math.Round((clip-d)*100) / 100
	if st < 0 {
		st = 0
	}
	return Window{Start: st, Duration: d}
}

// ChannelDelays is one millisecond delay repeated across ChannelSlots.
type ChannelDelays struct {
	Millis int64
}

// ComputeChannelDelays floors seconds to whole milliseconds. Negative input clamps to 0.
func ComputeChannelDelays(seconds float64) ChannelDelays {
	ms := int64(math.Floor(seconds * 1000))
	if ms < 0 {
		ms = 0
	}
	return ChannelDelays{Millis: ms}
}

// Values returns the per-slot delays.
func (d ChannelDelays) Values() []int64 {
	out := make([]int64, ChannelSlots)
	for i := range out {
		out[i] = d.Millis
	}
	return out
}

// String renders the pipe-joined adelay argument, e.g. "2500|2500|...".
func (d ChannelDelays) String() string {
	v := strconv.FormatInt(d.Millis, 10)
	parts := make([]string, ChannelSlots)
	for i := range parts {
		parts[i] = v
	}
	return strings.Join(parts, "|")
}
