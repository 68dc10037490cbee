package processing

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"episodic/internal/engine"
	"episodic/internal/filtergraph"
	"episodic/internal/logging"
	"episodic/internal/silence"
)

// Detection is the outcome of one silencedetect pass.
type Detection struct {
	Asset  engine.Asset
	Events []silence.Event
	// Report is the engine's combined stdout and stderr.
	Report string
}

// SilenceFilter renders the silencedetect filter for threshold.
func SilenceFilter(threshold Threshold) filtergraph.Filter {
	return filtergraph.New("silencedetect").
		With("n", filtergraph.Number(threshold.NoiseDB)+"dB").
		With("d", filtergraph.Number(threshold.Duration))
}

// DetectSilence runs an analysis pass over path and parses the reported
// silence intervals. The input is never modified.
func (p *Processor) DetectSilence(ctx context.Context, path string, threshold Threshold) (Detection, error) {
	if strings.TrimSpace(path) == "" {
		return Detection{}, missingInput(StageDetect, "Detect silence input file is missing")
	}
	job, err := p.load(ctx, StageDetect, path, "silence detect")
	if err != nil {
		return Detection{}, err
	}
	job.AddArgument("-af", filtergraph.Simple(SilenceFilter(threshold))).
		AddArgument("-f", "null")
	out, err := p.execute(ctx, StageDetect, job, engine.NullOutput,
		fmt.Sprintf("Unable to read silence detect for file %s", path))
	if err != nil {
		return Detection{}, err
	}
	report := out.Combined()
	events := slices.Collect(silence.ParseString(report))
	p.log(ctx, StageDetect).Debug("silence detected",
		logging.String("file_path", path),
		logging.Int("silence_events", len(events)),
		logging.Float64("duration_seconds", job.Asset().Duration),
	)
	return Detection{Asset: job.Asset(), Events: events, Report: report}, nil
}

const (
	overreadMarker = " overread, skip "
	enddistsMarker = " enddists: "
)

// HasOverread reports whether an engine report carries the decoder overread
// warning pair.
func HasOverread(report string) bool {
	return strings.Contains(report, overreadMarker) && strings.Contains(report, enddistsMarker)
}

// DetectOverread runs a default silence pass and checks its report for
// decoder overread warnings.
func (p *Processor) DetectOverread(ctx context.Context, path string) (bool, error) {
	if strings.TrimSpace(path) == "" {
		return false, missingInput(StageOverread, "Overread input file is missing")
	}
	detection, err := p.DetectSilence(ctx, path, p.opts.Trim)
	if err != nil {
		return false, err
	}
	return HasOverread(detection.Report), nil
}

// Guard is the result of the overread guard: the path to continue with and
// the noise floor the trim pass should use.
type Guard struct {
	Path     string
	Overread bool
	NoiseDB  float64
}

// GuardOverread checks path for overread and, when found, forces an MP3
// re-encode and raises the trim noise floor.
func (p *Processor) GuardOverread(ctx context.Context, path string) (Guard, error) {
	overread, err := p.DetectOverread(ctx, path)
	if err != nil {
		return Guard{}, err
	}
	guard := Guard{Path: path, NoiseDB: p.opts.Trim.NoiseDB}
	if !overread {
		return guard, nil
	}
	logger := p.log(ctx, StageOverread)
	logger.Info("overread detected",
		logging.Args(append(logging.DecisionAttrs("overread_guard", "reencode", "decoder overread warning in report"),
			logging.String("file_path", path))...)...,
	)
	converted, err := p.SetMP3Codec(ctx, path, true)
	if err != nil {
		return Guard{}, err
	}
	guard.Path = converted
	guard.Overread = true
	guard.NoiseDB = p.opts.OverreadNoiseDB
	logger.Info("source replaced after overread", logging.String("file_path", converted))
	return guard, nil
}
