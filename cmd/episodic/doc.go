// Package main hosts the episodic CLI entrypoint and command graph.
//
// The Cobra command tree exposes the full preparation pipeline (prepare),
// every stage on its own (detect, plan, trim, remove-silence, codec,
// compose, normalize, tag), and housekeeping over the run ledger and staging
// area (doctor, history, clean, config). Configuration, logging, the ledger
// and metrics are resolved once in commandContext so subcommands only wire
// flags to internal packages.
package main
