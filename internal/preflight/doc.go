// Package preflight provides readiness checks for the binaries and
// filesystem paths episodic depends on.
//
// The prepare command calls RunAll before starting a run and refuses to
// continue when a check fails, so a long pipeline never dies halfway on a
// missing ffmpeg or a full disk. `episodic doctor` prints the same results.
package preflight
