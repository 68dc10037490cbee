// Package engine drives ffmpeg as an opaque transcoding capability.
//
// Engine.Load probes an asset with ffprobe and returns a Job bound to it.
// Stages accumulate arguments on the Job in order, optionally set an audio
// codec and bitrate, then Run it against an output path. Run blocks until the
// process exits and returns both captured streams so callers can inspect the
// engine's diagnostic report.
//
// Probing and process execution are injectable through Options so tests run
// without the real binaries.
package engine
