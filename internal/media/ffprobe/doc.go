// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect runs ffprobe and decodes the result; Decode parses a captured
// payload. Helper methods on Result expose the fields the pipeline needs:
// container duration, the primary audio stream codec and channel layout, and
// the dimensions of an image input used as cover art.
package ffprobe
