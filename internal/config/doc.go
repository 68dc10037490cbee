// Package config loads, normalizes, and validates episodic configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// EPISODIC_FFMPEG. The Config type centralizes every knob the pipeline and CLI
// need: engine binaries, silence thresholds, mix overlay, loudness targets,
// tagging defaults, download behaviour, logging and metrics.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
