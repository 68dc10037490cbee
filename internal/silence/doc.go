// Package silence turns ffmpeg silencedetect reports into structured events
// and plans the cuts that remove them.
//
// Parse reads the engine's combined output lazily. PlanTrim derives a single
// head/tail keep window; PlanKeepZones derives every window between silences
// and the concat graph that stitches them back together. Tolerances are fixed:
// a head silence starting within 0.2s of zero counts as leading, a tail
// silence ending within 0.2s of the end counts as trailing, and collapsed keep
// zones are widened by 1ms.
package silence
