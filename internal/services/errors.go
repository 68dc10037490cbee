package services

import (
	"errors"
	"fmt"
	"strings"

	"episodic/internal/ledger"
)

var (
	// ErrMissingInput marks a required path or parameter that was not supplied.
	ErrMissingInput = errors.New("missing input")
	// ErrEngineLoad marks an asset the transcoding engine could not open or probe.
	ErrEngineLoad = errors.New("engine load failure")
	// ErrEngineRun marks an engine command that ran but reported failure.
	ErrEngineRun = errors.New("engine run failure")
	// ErrDownload marks a failed intro/outro fetch.
	ErrDownload = errors.New("download failure")
	// ErrExternalTool marks an engine binary that is missing or not executable.
	ErrExternalTool = errors.New("external tool error")
	// ErrValidation marks run settings no stage can honour.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks a staging, config or collaborator setup problem.
	ErrConfiguration = errors.New("configuration error")
	// ErrTransient is the default marker for unclassified failures.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later status classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureStatus maps a stage error to the ledger status a run should be
// recorded with after it fails.
func FailureStatus(err error) ledger.Status {
	switch {
	case errors.Is(err, ErrMissingInput), errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration):
		return ledger.StatusReview
	default:
		return ledger.StatusFailed
	}
}

// Hint returns a short operator-facing remediation for a classified error.
func Hint(err error) string {
	switch {
	case errors.Is(err, ErrMissingInput):
		return "supply the missing path or parameter and rerun"
	case errors.Is(err, ErrEngineLoad):
		return "verify the file exists and ffprobe can read it"
	case errors.Is(err, ErrEngineRun):
		return "rerun with --log-level debug to see the ffmpeg command"
	case errors.Is(err, ErrExternalTool):
		return "install ffmpeg/ffprobe or set engine.ffmpeg_binary and engine.ffprobe_binary"
	case errors.Is(err, ErrValidation):
		return "use --mode trim or remove_all and a non-negative --overlay"
	case errors.Is(err, ErrDownload):
		return "check the intro/outro URLs and network access"
	case errors.Is(err, ErrConfiguration):
		return "run episodic config init or fix the config file"
	default:
		return "check logs for details"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
