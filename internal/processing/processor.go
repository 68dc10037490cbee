package processing

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"episodic/internal/config"
	"episodic/internal/engine"
	"episodic/internal/logging"
	"episodic/internal/services"
)

// Stage names used in errors, logs, metrics and the run ledger.
const (
	StageDetect        = "detect-silence"
	StageOverread      = "overread-guard"
	StageCodec         = "codec-normalize"
	StageTrim          = "trim"
	StageRemoveSilence = "remove-silence"
	StageIntro         = "prepare-intro"
	StageOutro         = "prepare-outro"
	StageCompose       = "compose"
	StageNormalize     = "normalize"
	StageResizeCover   = "resize-cover"
	StageTag           = "tag"
)

// Threshold parameterizes silencedetect.
type Threshold struct {
	NoiseDB  float64
	Duration float64
}

// Options carries the tunables every stage reads.
type Options struct {
	Quality         int
	Trim            Threshold
	OverreadNoiseDB float64
	RemoveAll       Threshold
	BitrateKbps     int
	Loudness        config.Loudness
	CoverMaxSize    int
	Artist          string
	Genre           string
	// Now supplies the tagging year.
	Now func() time.Time
}

// OptionsFromConfig maps configuration onto stage options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Quality:         cfg.Engine.Quality,
		Trim:            Threshold{NoiseDB: cfg.Silence.NoiseDB, Duration: cfg.Silence.MinDuration},
		OverreadNoiseDB: cfg.Silence.OverreadNoiseDB,
		RemoveAll:       Threshold{NoiseDB: cfg.Silence.NoiseDB, Duration: cfg.Silence.RemoveAllMinDuration},
		BitrateKbps:     cfg.Codec.BitrateKbps,
		Loudness:        cfg.Loudness,
		CoverMaxSize:    cfg.Tagging.CoverMaxSize,
		Artist:          cfg.Tagging.Artist,
		Genre:           cfg.Tagging.Genre,
	}
}

// DefaultOptions returns OptionsFromConfig over the repository defaults.
func DefaultOptions() Options {
	cfg := config.Default()
	return OptionsFromConfig(&cfg)
}

// Processor runs stages against one engine.
type Processor struct {
	engine *engine.Engine
	opts   Options
	logger *slog.Logger
}

// New constructs a Processor.
func New(eng *engine.Engine, opts Options, logger *slog.Logger) *Processor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Genre == "" {
		opts.Genre = "Podcast"
	}
	if opts.CoverMaxSize <= 0 {
		opts.CoverMaxSize = 300
	}
	return &Processor{engine: eng, opts: opts, logger: logging.NewComponentLogger(logger, "processing")}
}

// Options returns the active stage options.
func (p *Processor) Options() Options { return p.opts }

func (p *Processor) quality() string {
	return strconv.Itoa(p.opts.Quality)
}

func (p *Processor) log(ctx context.Context, stage string) *slog.Logger {
	return logging.WithContext(services.WithStage(ctx, stage), p.logger)
}

// load opens an input, tagging failures as engine load errors.
func (p *Processor) load(ctx context.Context, stage, path, purpose string) (*engine.Job, error) {
	if strings.TrimSpace(path) == "" {
		return nil, missingInput(stage, purpose+" input file is missing")
	}
	job, err := p.engine.Load(ctx, path)
	if err != nil {
		return nil, services.Wrap(engineMarker(services.ErrEngineLoad, err), stage, "load",
			fmt.Sprintf("Error loading file %s for %s", path, purpose), err)
	}
	return job, nil
}

// Probe inspects path without running a stage.
func (p *Processor) Probe(ctx context.Context, stage, path string) (engine.Asset, error) {
	job, err := p.load(ctx, stage, path, "inspection")
	if err != nil {
		return engine.Asset{}, err
	}
	return job.Asset(), nil
}

// execute runs job to output. On failure the partial output is removed and
// the error is tagged as an engine run failure. On success every consumed
// path other than output is deleted.
func (p *Processor) execute(ctx context.Context, stage string, job *engine.Job, output, failure string, consumed ...string) (engine.Output, error) {
	out, err := job.Run(ctx, output)
	if err != nil {
		if output != engine.NullOutput {
			p.discard(ctx, stage, output)
		}
		return out, services.Wrap(engineMarker(services.ErrEngineRun, err), stage, "run", failure, err)
	}
	seen := map[string]struct{}{output: {}}
	for _, path := range consumed {
		if path == "" {
			continue
		}
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}
		p.discard(ctx, stage, path)
	}
	return out, nil
}

func (p *Processor) discard(ctx context.Context, stage, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.WarnWithContext(p.log(ctx, stage), "intermediate file not removed", "cleanup_failed",
			logging.String("file_path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check staging directory permissions"),
			logging.String(logging.FieldImpact, "stale intermediate file stays on disk"),
		)
	}
}

// engineMarker tags a missing engine binary as an external tool problem so
// it is not reported as a bad input file.
func engineMarker(fallback, err error) error {
	if errors.Is(err, exec.ErrNotFound) {
		return services.ErrExternalTool
	}
	return fallback
}

func missingInput(stage, message string) error {
	return services.Wrap(services.ErrMissingInput, stage, "", message, nil)
}

// DerivePath builds the sibling path a stage writes: the input's directory and
// base name, then suffix, then ext (the input's own extension when ext is empty).
func DerivePath(input, suffix, ext string) string {
	current := filepath.Ext(input)
	if ext == "" {
		ext = current
	}
	return strings.TrimSuffix(input, current) + suffix + ext
}
