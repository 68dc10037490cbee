package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"episodic/internal/config"
	"episodic/internal/download"
	"episodic/internal/fileutil"
	"episodic/internal/ledger"
	"episodic/internal/logging"
	"episodic/internal/metrics"
	"episodic/internal/processing"
	"episodic/internal/services"
	"episodic/internal/stageexec"
	"episodic/internal/staging"
)

// Bookkeeping stages that run outside the processor.
const (
	StageSource  = "stage-source"
	StagePublish = "publish"
)

// Ledger persists runs. *ledger.Store satisfies it.
type Ledger interface {
	BeginRun(ctx context.Context, run ledger.Run) error
	RecordStage(ctx context.Context, stage ledger.Stage) error
	Finish(ctx context.Context, id string, status ledger.Status, output, errMsg, hint string) error
}

// Options configures an Orchestrator.
type Options struct {
	Processor *processing.Processor
	Fetcher   download.Fetcher
	Mirror    download.Mirror
	// Mode is config.SilenceModeTrim or config.SilenceModeRemoveAll.
	Mode     string
	Overlay  float64
	ForceMP3 bool
	Ledger   Ledger
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	// StagingDir holds one working directory per run. When empty the
	// source file itself is processed and consumed.
	StagingDir string
	NewRunID   func() string
	Now        func() time.Time
}

// Request describes one episode to prepare. Zero values fall back to the
// orchestrator options.
type Request struct {
	Source    string
	Mode      string
	ForceMP3  bool
	IntroURL  string
	OutroURL  string
	IntroPath string
	OutroPath string
	Overlay   *float64
	CoverPath string
	Tags      processing.Tags
	// Destination receives the final file. When empty the result stays
	// where the last stage wrote it.
	Destination string
}

// Result is the outcome of a successful run.
type Result struct {
	RunID    string
	Output   string
	Stages   []ledger.Stage
	Overread bool
}

// StageError reports the stage a run stopped at.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Orchestrator runs the full preparation pipeline.
type Orchestrator struct {
	opts   Options
	logger *slog.Logger
}

// New constructs an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Processor == nil {
		return nil, errors.New("pipeline: processor is required")
	}
	if opts.Mode == "" {
		opts.Mode = config.SilenceModeTrim
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{opts: opts, logger: logging.NewComponentLogger(opts.Logger, "pipeline")}, nil
}

// run carries the mutable state of one Prepare call.
type run struct {
	id       string
	req      Request
	mode     string
	overlay  float64
	workDir  string
	main     string
	seq      int
	stages   []ledger.Stage
	overread bool
	noiseDB  float64
	intro    *processing.Clip
	outro    *processing.Clip
	clips    [2]string
}

// recorder collects stage rows for the Result and forwards them to the ledger.
func (r *run) recorder(l Ledger) stageexec.Recorder {
	return recorderFunc(func(ctx context.Context, s ledger.Stage) error {
		r.stages = append(r.stages, s)
		if l == nil {
			return nil
		}
		return l.RecordStage(ctx, s)
	})
}

// clipSources names what the download stage starts from.
func (r *run) clipSources() string {
	var parts []string
	for _, v := range []string{r.req.IntroURL, r.req.IntroPath, r.req.OutroURL, r.req.OutroPath} {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

func (r *run) clipPaths() string {
	var parts []string
	for _, v := range r.clips {
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

type recorderFunc func(context.Context, ledger.Stage) error

func (f recorderFunc) RecordStage(ctx context.Context, s ledger.Stage) error { return f(ctx, s) }

// Prepare runs every stage over req.Source.
func (o *Orchestrator) Prepare(ctx context.Context, req Request) (Result, error) {
	source := strings.TrimSpace(req.Source)
	if source == "" {
		return Result{}, &StageError{Stage: processing.StageOverread,
			Err: services.Wrap(services.ErrMissingInput, processing.StageOverread, "", "Source audio file is missing", nil)}
	}

	r := &run{id: o.opts.NewRunID(), req: req, mode: o.opts.Mode, overlay: o.opts.Overlay}
	if req.Mode != "" {
		r.mode = req.Mode
	}
	if req.Overlay != nil {
		r.overlay = *req.Overlay
	}
	if err := validateRun(r); err != nil {
		return Result{}, &StageError{Stage: StageSource, Err: err}
	}
	ctx = services.WithAsset(services.WithRunID(ctx, r.id), source)
	logger := logging.WithContext(ctx, o.logger)

	started := o.opts.Now()
	o.begin(ctx, logger, r, source, started)
	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("silence_mode", r.mode),
		logging.Float64("overlay_seconds", r.overlay),
	)

	output, err := o.execute(ctx, r, source)
	if err == nil && strings.TrimSpace(req.Destination) != "" {
		if err = o.publish(output, req.Destination); err == nil {
			output = req.Destination
		}
	}
	o.finish(ctx, logger, r, output, started, err)
	if err != nil {
		return Result{RunID: r.id, Stages: r.stages, Overread: r.overread}, err
	}
	if r.workDir != "" && strings.TrimSpace(req.Destination) != "" {
		if rmErr := staging.Remove(o.opts.StagingDir, r.id); rmErr != nil {
			logger.Debug("run directory not removed", logging.Error(rmErr))
		}
	}
	return Result{RunID: r.id, Output: output, Stages: r.stages, Overread: r.overread}, nil
}

// validateRun rejects settings no stage can honour before anything is recorded.
func validateRun(r *run) error {
	switch {
	case r.mode != config.SilenceModeTrim && r.mode != config.SilenceModeRemoveAll:
		return services.Wrap(services.ErrValidation, StageSource, "",
			fmt.Sprintf("Unknown silence mode %q", r.mode), nil)
	case r.overlay < 0:
		return services.Wrap(services.ErrValidation, StageSource, "",
			fmt.Sprintf("Overlay %gs must not be negative", r.overlay), nil)
	}
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run, source string) (string, error) {
	current := source
	if o.opts.StagingDir != "" {
		dir, err := staging.RunDir(o.opts.StagingDir, r.id)
		if err != nil {
			return "", &StageError{Stage: StageSource, Err: services.Wrap(services.ErrConfiguration, StageSource, "", "Unable to create run directory", err)}
		}
		r.workDir = dir
		current = filepath.Join(dir, filepath.Base(source))
		if _, err := fileutil.CopyFile(source, current); err != nil {
			return "", &StageError{Stage: StageSource, Err: services.Wrap(services.ErrEngineLoad, StageSource, "copy",
				fmt.Sprintf("Error loading file %s for staging", source), err)}
		}
	}

	p := o.opts.Processor
	// Clip stages work on the intro/outro files; the main track passes
	// through them untouched.
	steps := []struct {
		name string
		clip func() string
		fn   stageexec.Func
	}{
		{name: processing.StageOverread, fn: func(ctx context.Context, in string) (string, error) {
			guard, err := p.GuardOverread(ctx, in)
			if err != nil {
				return "", err
			}
			r.overread = guard.Overread
			r.noiseDB = guard.NoiseDB
			return guard.Path, nil
		}},
		{name: processing.StageCodec, fn: func(ctx context.Context, in string) (string, error) {
			if r.overread {
				return in, nil
			}
			return p.SetMP3Codec(ctx, in, r.req.ForceMP3 || o.opts.ForceMP3)
		}},
		{name: o.silenceStage(r), fn: func(ctx context.Context, in string) (string, error) {
			return o.removeSilence(ctx, r, in)
		}},
		{name: download.StageDownload, clip: r.clipSources, fn: func(ctx context.Context, _ string) (string, error) {
			if err := o.gatherClips(ctx, r); err != nil {
				return "", err
			}
			return r.clipPaths(), nil
		}},
		{name: processing.StageIntro, clip: func() string { return r.clips[0] }, fn: func(ctx context.Context, in string) (string, error) {
			if in == "" {
				return in, nil
			}
			clip, err := p.PrepareIntro(ctx, in, r.overlay)
			if err != nil {
				return "", err
			}
			r.intro = &clip
			return clip.Path, nil
		}},
		{name: processing.StageOutro, clip: func() string { return r.clips[1] }, fn: func(ctx context.Context, in string) (string, error) {
			if in == "" {
				return in, nil
			}
			clip, err := p.PrepareOutro(ctx, in, r.overlay)
			if err != nil {
				return "", err
			}
			r.outro = &clip
			return clip.Path, nil
		}},
		{name: processing.StageCompose, fn: func(ctx context.Context, in string) (string, error) {
			return p.ComposeIntroOutro(ctx, in, r.intro, r.outro, r.overlay)
		}},
		{name: processing.StageNormalize, fn: p.NormalizeVolume},
		{name: processing.StageTag, fn: func(ctx context.Context, in string) (string, error) {
			return o.tag(ctx, r, in)
		}},
	}

	r.main = current
	for _, step := range steps {
		r.seq++
		input := r.main
		if step.clip != nil {
			input = step.clip()
		}
		out, err := stageexec.Run(ctx, stageexec.Options{
			Logger:    o.logger,
			Recorder:  r.recorder(o.opts.Ledger),
			Observer:  o.opts.Metrics,
			RunID:     r.id,
			Seq:       r.seq,
			StageName: step.name,
			Input:     input,
			Now:       o.opts.Now,
		}, step.fn)
		if err != nil {
			return "", &StageError{Stage: step.name, Err: err}
		}
		if step.clip == nil {
			r.main = out
		}
	}
	return r.main, nil
}

func (o *Orchestrator) silenceStage(r *run) string {
	if r.mode == config.SilenceModeRemoveAll {
		return processing.StageRemoveSilence
	}
	return processing.StageTrim
}

func (o *Orchestrator) removeSilence(ctx context.Context, r *run, in string) (string, error) {
	p := o.opts.Processor
	var before float64
	if o.opts.Metrics != nil {
		asset, err := p.Probe(ctx, o.silenceStage(r), in)
		if err != nil {
			return "", err
		}
		before = asset.Duration
	}

	var (
		out string
		err error
	)
	if r.mode == config.SilenceModeRemoveAll {
		out, err = p.RemoveAllSilence(ctx, in)
	} else {
		out, err = p.TrimSilence(ctx, in, r.noiseDB)
	}
	if err != nil {
		return "", err
	}
	if o.opts.Metrics != nil && out != in {
		if asset, probeErr := p.Probe(ctx, o.silenceStage(r), out); probeErr == nil {
			o.opts.Metrics.RecordSilenceRemoved(before - asset.Duration)
		}
	}
	return out, nil
}

// gatherClips places the intro and outro next to the main track. Every
// clip gets its own file because fade stages consume their input.
func (o *Orchestrator) gatherClips(ctx context.Context, r *run) error {
	req := r.req
	main := r.main
	if req.IntroURL != "" || req.OutroURL != "" {
		if o.opts.Fetcher == nil {
			return services.Wrap(services.ErrConfiguration, download.StageDownload, "", "No downloader configured", nil)
		}
		fetched, err := download.IntroOutro(ctx, o.opts.Fetcher, download.Request{
			IntroURL: req.IntroURL,
			OutroURL: req.OutroURL,
			RefPath:  main,
			Mirror:   o.opts.Mirror,
		}, o.logger)
		if err != nil {
			return err
		}
		r.clips[0], r.clips[1] = fetched.IntroPath, fetched.OutroPath
		o.recordDownload(fetched.IntroPath)
		if !fetched.Shared {
			o.recordDownload(fetched.OutroPath)
		}
		if fetched.Shared {
			dup, err := copyClip(fetched.IntroPath, main, "outro")
			if err != nil {
				return err
			}
			r.clips[1] = dup
		}
	}

	if req.IntroPath != "" && r.clips[0] == "" {
		staged, err := copyClip(req.IntroPath, main, "intro")
		if err != nil {
			return err
		}
		r.clips[0] = staged
	}
	if req.OutroPath != "" && r.clips[1] == "" {
		staged, err := copyClip(req.OutroPath, main, "outro")
		if err != nil {
			return err
		}
		r.clips[1] = staged
	}
	return nil
}

func (o *Orchestrator) recordDownload(path string) {
	if path == "" || o.opts.Metrics == nil {
		return
	}
	if info, err := os.Stat(path); err == nil {
		o.opts.Metrics.RecordDownload(info.Size())
	}
}

func copyClip(src, ref, role string) (string, error) {
	ext := strings.TrimPrefix(filepath.Ext(src), ".")
	if ext == "" {
		ext = "bin"
	}
	dest := download.SavePath(ref, role, ext)
	if _, err := fileutil.CopyFile(src, dest); err != nil {
		return "", services.Wrap(services.ErrEngineLoad, download.StageDownload, "copy",
			fmt.Sprintf("Error loading file %s for %s processing", src, role), err)
	}
	return dest, nil
}

func (o *Orchestrator) tag(ctx context.Context, r *run, in string) (string, error) {
	if strings.TrimSpace(r.req.CoverPath) == "" {
		o.logger.Debug("cover not supplied",
			logging.Args(logging.DecisionAttrs("tag", "skip", "no cover image")...)...)
		return in, nil
	}
	p := o.opts.Processor
	coverCopy := processing.DerivePath(in, "_cover", filepath.Ext(r.req.CoverPath))
	if _, err := fileutil.CopyFile(r.req.CoverPath, coverCopy); err != nil {
		return "", services.Wrap(services.ErrEngineLoad, processing.StageTag, "copy",
			fmt.Sprintf("Error loading file %s for cover image", r.req.CoverPath), err)
	}
	cover, err := p.ProbeCover(ctx, coverCopy)
	if err != nil {
		return "", err
	}
	tags := r.req.Tags
	if strings.TrimSpace(tags.Title) == "" {
		tags.Title = processing.DefaultTitle(r.req.Source)
	}
	out, err := p.TagAudio(ctx, in, cover, tags)
	if err != nil {
		return "", err
	}
	for _, leftover := range []string{coverCopy, processing.DerivePath(coverCopy, "_resized", ".png")} {
		if rmErr := os.Remove(leftover); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			o.logger.Debug("cover copy not removed", logging.String("file_path", leftover), logging.Error(rmErr))
		}
	}
	return out, nil
}

func (o *Orchestrator) publish(output, destination string) error {
	if dir := filepath.Dir(destination); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &StageError{Stage: StagePublish, Err: fmt.Errorf("create destination dir: %w", err)}
		}
	}
	if err := fileutil.MoveFile(output, destination); err != nil {
		return &StageError{Stage: StagePublish, Err: fmt.Errorf("move %s to %s: %w", output, destination, err)}
	}
	return nil
}

func (o *Orchestrator) begin(ctx context.Context, logger *slog.Logger, r *run, source string, started time.Time) {
	if o.opts.Ledger == nil {
		return
	}
	err := o.opts.Ledger.BeginRun(ctx, ledger.Run{
		ID:        r.id,
		Input:     source,
		Mode:      r.mode,
		Status:    ledger.StatusRunning,
		StartedAt: started.UTC(),
	})
	if err != nil {
		logging.WarnWithContext(logger, "run not recorded", "ledger_write_failed",
			logging.String(logging.FieldErrorHint, "check the state directory is writable"),
			logging.String(logging.FieldImpact, "run history will be incomplete"),
			logging.Error(err),
		)
	}
}

func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger, r *run, output string, started time.Time, runErr error) {
	finished := o.opts.Now()
	elapsed := finished.Sub(started)
	status := ledger.StatusCompleted
	var errMsg, hint string
	if runErr != nil {
		status = services.FailureStatus(runErr)
		errMsg = runErr.Error()
		hint = services.Hint(runErr)
	}
	o.opts.Metrics.RecordRun(string(status), elapsed.Seconds(), float64(finished.Unix()))

	if o.opts.Ledger != nil {
		// Record the outcome even when the caller's context is cancelled.
		if err := o.opts.Ledger.Finish(context.WithoutCancel(ctx), r.id, status, output, errMsg, hint); err != nil {
			logger.Debug("run outcome not recorded", logging.Error(err))
		}
	}

	if runErr != nil {
		logging.ErrorWithContext(logger, "run failed", "run_failure",
			logging.String(logging.FieldErrorHint, hint),
			logging.String("run_status", string(status)),
			logging.Duration("elapsed", elapsed),
			logging.Error(runErr),
		)
		return
	}
	logger.Info("run completed",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.String("output_path", output),
		logging.Bool("overread", r.overread),
		logging.Int("stages", len(r.stages)),
		logging.Duration("elapsed", elapsed),
	)
}
