// Package ledger records pipeline runs and their stages in SQLite.
//
// Each run gets one row keyed by its run ID plus one row per executed stage,
// so `episodic history` can show what happened to an episode after its
// intermediate files are gone. The database is local operational state:
// schema changes bump schemaVersion and users delete the file to adopt them.
package ledger
