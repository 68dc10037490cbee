package processing

import (
	"context"
	"fmt"
	"strings"

	"episodic/internal/filtergraph"
	"episodic/internal/logging"
	"episodic/internal/silence"
)

// TrimSilence cuts leading and trailing silence from path, detecting with the
// given noise floor. A zero noise floor uses the configured default.
func (p *Processor) TrimSilence(ctx context.Context, path string, noiseDB float64) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", missingInput(StageTrim, "Remove silence input file is missing")
	}
	threshold := p.opts.Trim
	if noiseDB != 0 {
		threshold.NoiseDB = noiseDB
	}
	detection, err := p.DetectSilence(ctx, path, threshold)
	if err != nil {
		return "", err
	}
	plan := silence.PlanTrim(detection.Events, detection.Asset.Duration)

	job, err := p.load(ctx, StageTrim, path, "trim")
	if err != nil {
		return "", err
	}
	output := DerivePath(path, "_trimmed", "")
	job.AddArgument("-af", filtergraph.Simple(plan.Filter())).
		AddArgument("-q:a", p.quality())
	if _, err := p.execute(ctx, StageTrim, job, output,
		fmt.Sprintf("Unable to trim audio file %s to %s", path, output), path); err != nil {
		return "", err
	}
	p.log(ctx, StageTrim).Info("silence trimmed",
		logging.Float64("trim_start_seconds", plan.Start),
		logging.Float64("trim_end_seconds", plan.End),
		logging.Float64("noise_db", threshold.NoiseDB),
		logging.String("output_path", output),
	)
	return output, nil
}

// RemoveAllSilence splices out every detected silent interval. When no
// silence is found the input is returned unchanged.
func (p *Processor) RemoveAllSilence(ctx context.Context, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", missingInput(StageRemoveSilence, "Remove all silence input file is missing")
	}
	detection, err := p.DetectSilence(ctx, path, p.opts.RemoveAll)
	if err != nil {
		return "", err
	}
	plan, ok := silence.PlanKeepZones(detection.Events, detection.Asset.Duration)
	if !ok {
		p.log(ctx, StageRemoveSilence).Info("no silence found",
			logging.Args(logging.DecisionAttrs("remove_silence", "skip", "no silent intervals detected")...)...)
		return path, nil
	}

	job, err := p.load(ctx, StageRemoveSilence, path, "remove all silence")
	if err != nil {
		return "", err
	}
	output := DerivePath(path, "_silence_removed", "")
	graph := plan.Graph.String()
	job.AddArgument("-filter_complex", graph).
		AddArgument("-q:a", p.quality())
	if _, err := p.execute(ctx, StageRemoveSilence, job, output,
		fmt.Sprintf("Unable to remove all silence of audio file %s to %s", path, output), path); err != nil {
		return "", err
	}
	p.log(ctx, StageRemoveSilence).Info("silence removed",
		logging.Int("keep_zones", plan.Count()),
		logging.String("filter_graph", graph),
		logging.String("output_path", output),
	)
	return output, nil
}
