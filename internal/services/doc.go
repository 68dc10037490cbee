// Package services holds the error taxonomy and context annotations shared by
// every processing stage.
//
// Stages wrap collaborator failures with Wrap so the marker (missing input,
// engine load, engine run, download) survives errors.Is checks while the
// message carries stage and path context. The run ledger and CLI classify
// failures through FailureStatus and Hint.
package services
