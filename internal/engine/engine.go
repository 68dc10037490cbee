package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"episodic/internal/logging"
	"episodic/internal/media/ffprobe"
)

// NullOutput discards the encoded result; used for analysis passes.
const NullOutput = "-"

// Asset is a probed media file.
type Asset struct {
	Path     string
	Duration float64
	Codec    string
	Channels int
	// Width and Height are set for image inputs such as cover art.
	Width  int
	Height int
}

// Prober inspects a media file.
type Prober func(ctx context.Context, binary, path string) (ffprobe.Result, error)

// Runner executes the engine binary with args and captures its output.
type Runner func(ctx context.Context, binary string, args []string) (Output, error)

// Options configures an Engine.
type Options struct {
	FFmpegBinary  string
	FFprobeBinary string
	// Timeout bounds each Run; zero means no limit beyond the caller's context.
	Timeout time.Duration
	Logger  *slog.Logger
	Probe   Prober
	Run     Runner
}

// Engine loads assets and runs jobs against them.
type Engine struct {
	ffmpeg  string
	ffprobe string
	timeout time.Duration
	logger  *slog.Logger
	probe   Prober
	run     Runner
}

// New constructs an Engine, filling unset options with the real binaries.
func New(opts Options) *Engine {
	e := &Engine{
		ffmpeg:  strings.TrimSpace(opts.FFmpegBinary),
		ffprobe: strings.TrimSpace(opts.FFprobeBinary),
		timeout: opts.Timeout,
		logger:  logging.NewComponentLogger(opts.Logger, "engine"),
		probe:   opts.Probe,
		run:     opts.Run,
	}
	if e.ffmpeg == "" {
		e.ffmpeg = "ffmpeg"
	}
	if e.ffprobe == "" {
		e.ffprobe = "ffprobe"
	}
	if e.probe == nil {
		e.probe = ffprobe.Inspect
	}
	if e.run == nil {
		e.run = execRunner
	}
	return e
}

// Probe inspects path without creating a job.
func (e *Engine) Probe(ctx context.Context, path string) (Asset, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Asset{}, errors.New("empty asset path")
	}
	if _, err := os.Stat(path); err != nil {
		return Asset{}, err
	}
	result, err := e.probe(ctx, e.ffprobe, path)
	if err != nil {
		return Asset{}, err
	}
	asset := Asset{Path: path}
	asset.Width, asset.Height = result.ImageSize()
	duration := result.DurationSeconds()
	switch {
	case math.IsNaN(duration) && asset.Width > 0:
		// Still images carry no meaningful duration.
		duration = 0
	case math.IsNaN(duration) || duration < 0:
		return Asset{}, fmt.Errorf("unreadable duration %q", result.Format.Duration)
	}
	asset.Duration = duration
	if stream, ok := result.AudioStream(); ok {
		asset.Codec = strings.ToLower(stream.CodecName)
		asset.Channels = stream.Channels
	}
	return asset, nil
}

// Load probes path and returns a job reading from it.
func (e *Engine) Load(ctx context.Context, path string) (*Job, error) {
	asset, err := e.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	return &Job{engine: e, asset: asset}, nil
}

// Job accumulates the command for one engine invocation.
type Job struct {
	engine  *Engine
	asset   Asset
	args    []string
	codec   string
	bitrate int
}

// Asset returns the probed input.
func (j *Job) Asset() Asset { return j.asset }

// AddArgument appends a flag and its values, preserving order.
func (j *Job) AddArgument(flag string, values ...string) *Job {
	j.args = append(j.args, flag)
	j.args = append(j.args, values...)
	return j
}

// SetAudioCodec selects the output audio encoder.
func (j *Job) SetAudioCodec(name string) *Job {
	j.codec = strings.TrimSpace(name)
	return j
}

// SetAudioBitRate sets the output audio bitrate in kbps.
func (j *Job) SetAudioBitRate(kbps int) *Job {
	j.bitrate = kbps
	return j
}

// Args returns the full argument vector, excluding the binary, for output.
func (j *Job) Args(output string) []string {
	args := make([]string, 0, len(j.args)+10)
	args = append(args, "-y", "-hide_banner", "-i", j.asset.Path)
	args = append(args, j.args...)
	if j.codec != "" {
		args = append(args, "-c:a", j.codec)
	}
	if j.bitrate > 0 {
		args = append(args, "-b:a", strconv.Itoa(j.bitrate)+"k")
	}
	return append(args, output)
}

// Run executes the job and blocks until the engine exits.
func (j *Job) Run(ctx context.Context, output string) (Output, error) {
	e := j.engine
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	args := j.Args(output)
	logger := logging.WithContext(ctx, e.logger)
	logger.Debug("ffmpeg command",
		logging.String(logging.FieldCommand, commandLine(e.ffmpeg, args)),
		logging.String(logging.FieldEventType, "engine_run"),
	)

	started := time.Now()
	out, err := e.run(ctx, e.ffmpeg, args)
	if err != nil {
		logger.Debug("ffmpeg failed",
			logging.Error(err),
			logging.Duration("engine_elapsed", time.Since(started)),
		)
		return out, err
	}
	logger.Debug("ffmpeg finished", logging.Duration("engine_elapsed", time.Since(started)))
	return out, nil
}
