package processing

import (
	"context"
	"fmt"
	"strings"

	"episodic/internal/config"
	"episodic/internal/filtergraph"
	"episodic/internal/logging"
)

// LoudnormFilter renders a linear loudnorm pass from pre-measured values.
func LoudnormFilter(l config.Loudness) filtergraph.Filter {
	return filtergraph.New("loudnorm").
		With("I", filtergraph.Number(l.IntegratedLUFS)).
		With("TP", filtergraph.Number(l.TruePeak)).
		With("LRA", filtergraph.Number(l.LRA)).
		With("measured_I", filtergraph.Number(l.MeasuredI)).
		With("measured_LRA", filtergraph.Number(l.MeasuredLRA)).
		With("measured_TP", filtergraph.Number(l.MeasuredTP)).
		With("measured_thresh", filtergraph.Number(l.MeasuredThresh)).
		With("linear", "true").
		With("print_format", "summary")
}

// NormalizeVolume applies loudness normalization and resamples the output.
// When normalization is disabled the input is returned unchanged.
func (p *Processor) NormalizeVolume(ctx context.Context, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", missingInput(StageNormalize, "Normalize volume input file is missing")
	}
	loud := p.opts.Loudness
	if !loud.Enabled {
		p.log(ctx, StageNormalize).Info("loudness normalization disabled",
			logging.Args(logging.DecisionAttrs("normalize", "skip", "loudness.enabled is false")...)...)
		return path, nil
	}
	job, err := p.load(ctx, StageNormalize, path, "normalize volume")
	if err != nil {
		return "", err
	}
	output := DerivePath(path, "_set_volume", "")
	job.AddArgument("-af", filtergraph.Simple(LoudnormFilter(loud)))
	if rate := strings.TrimSpace(loud.SampleRate); rate != "" {
		job.AddArgument("-ar", rate)
	}
	job.AddArgument("-q:a", p.quality())
	if _, err := p.execute(ctx, StageNormalize, job, output,
		fmt.Sprintf("Unable to normalize volume audio file %s to %s", path, output), path); err != nil {
		return "", err
	}
	p.log(ctx, StageNormalize).Info("volume normalized",
		logging.Float64("target_lufs", loud.IntegratedLUFS),
		logging.String("output_path", output),
	)
	return output, nil
}
