// Package pipeline sequences the processing stages for one episode.
//
// Prepare threads the output of each stage into the next:
//
//	overread-guard → codec-normalize → trim | remove-silence → download →
//	prepare-intro → prepare-outro → compose → normalize → resize-cover → tag
//
// Each stage is recorded in the run ledger and observed by metrics. A failing
// stage stops the run with a *StageError; its input file is left in place so
// the run can be inspected or resumed by hand.
package pipeline
