// Package stageexec runs one pipeline stage with the shared logging, ledger
// and metrics bookkeeping every stage needs.
package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"episodic/internal/ledger"
	"episodic/internal/logging"
	"episodic/internal/services"
)

// Recorder persists stage outcomes. *ledger.Store satisfies it.
type Recorder interface {
	RecordStage(ctx context.Context, stage ledger.Stage) error
}

// Observer receives stage timings. *metrics.Metrics satisfies it.
type Observer interface {
	RecordStage(stage, result string, seconds float64)
}

// Func transforms the stage input into its output path. Returning the input
// unchanged marks the stage as skipped.
type Func func(ctx context.Context, input string) (string, error)

// Options controls stage execution and bookkeeping.
type Options struct {
	Logger    *slog.Logger
	Recorder  Recorder
	Observer  Observer
	RunID     string
	Seq       int
	StageName string
	Input     string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Result values reported to the Observer.
const (
	ResultCompleted = "completed"
	ResultSkipped   = "skipped"
	ResultFailed    = "failed"
)

// Run executes fn for the configured stage and records its outcome.
func Run(ctx context.Context, opts Options, fn Func) (string, error) {
	if fn == nil {
		return "", fmt.Errorf("stage function unavailable: %s", opts.StageName)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	stageCtx := services.WithStage(ctx, opts.StageName)
	stageLogger := logging.WithContext(stageCtx, opts.Logger)

	stageLogger.Info(
		fmt.Sprintf("%s started", Label(opts.StageName)),
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("input_file", strings.TrimSpace(opts.Input)),
	)

	started := now()
	output, err := fn(stageCtx, opts.Input)
	elapsed := now().Sub(started)

	record := ledger.Stage{
		RunID:     opts.RunID,
		Seq:       opts.Seq,
		Name:      opts.StageName,
		Input:     opts.Input,
		Output:    output,
		Elapsed:   elapsed,
		StartedAt: started.UTC(),
	}

	if err != nil {
		record.Status = ledger.StageFailed
		record.Error = strings.TrimSpace(err.Error())
		logging.ErrorWithContext(
			stageLogger,
			fmt.Sprintf("%s failed", Label(opts.StageName)),
			"stage_failure",
			logging.String(logging.FieldErrorHint, services.Hint(err)),
			logging.Duration("elapsed", elapsed),
			logging.Error(err),
		)
		observe(opts.Observer, opts.StageName, ResultFailed, elapsed)
		persist(stageCtx, stageLogger, opts.Recorder, record)
		return "", err
	}

	result := ResultCompleted
	record.Status = ledger.StageCompleted
	if output == opts.Input {
		result = ResultSkipped
		record.Status = ledger.StageSkipped
	}

	stageLogger.Info(
		fmt.Sprintf("%s %s", Label(opts.StageName), result),
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("output_file", output),
		logging.String("stage_result", result),
		logging.Duration("elapsed", elapsed),
	)
	observe(opts.Observer, opts.StageName, result, elapsed)
	persist(stageCtx, stageLogger, opts.Recorder, record)
	return output, nil
}

func observe(o Observer, stage, result string, elapsed time.Duration) {
	if o == nil {
		return
	}
	o.RecordStage(stage, result, elapsed.Seconds())
}

// The ledger is bookkeeping; a write failure never fails the stage.
func persist(ctx context.Context, logger *slog.Logger, r Recorder, stage ledger.Stage) {
	if r == nil || stage.RunID == "" {
		return
	}
	if err := r.RecordStage(ctx, stage); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logging.WarnWithContext(
			logger,
			"failed to persist stage result",
			"ledger_write_failed",
			logging.String(logging.FieldErrorHint, "check the state directory is writable"),
			logging.String(logging.FieldImpact, "run history will be incomplete"),
			logging.Error(err),
		)
	}
}

// Label renders a stage name such as "remove-silence" as "Remove Silence".
func Label(stage string) string {
	if stage == "" {
		return ""
	}
	parts := strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(stage))
	return cases.Title(language.English).String(strings.Join(parts, " "))
}
