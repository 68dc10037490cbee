package processing

import (
	"context"
	"fmt"
	"strings"

	"episodic/internal/fade"
	"episodic/internal/filtergraph"
	"episodic/internal/logging"
)

func fadeOut(window fade.Window) filtergraph.Filter {
	return filtergraph.New("afade").With("t", "out").
		With("st", filtergraph.Number(window.Start)).
		With("d", filtergraph.Number(window.Duration))
}

// PrepareIntro fades out the tail of an intro so it can overlap the main
// track. With no overlay the intro is used as-is.
func (p *Processor) PrepareIntro(ctx context.Context, path string, overlay float64) (Clip, error) {
	if strings.TrimSpace(path) == "" {
		return Clip{}, missingInput(StageIntro, "Intro processing input file is missing")
	}
	job, err := p.load(ctx, StageIntro, path, "intro processing")
	if err != nil {
		return Clip{}, err
	}
	duration := job.Asset().Duration
	if overlay <= 0 {
		return Clip{Path: path, Duration: duration}, nil
	}
	output := DerivePath(path, "_fadeintro", "")
	window := fade.ComputeWindow(overlay, duration)
	job.AddArgument("-af", filtergraph.Simple(fadeOut(window))).
		AddArgument("-q:a", p.quality())
	if _, err := p.execute(ctx, StageIntro, job, output,
		fmt.Sprintf("Processing intro fade failed %s", output), path); err != nil {
		return Clip{}, err
	}
	p.log(ctx, StageIntro).Info("intro prepared",
		logging.Float64("fade_start_seconds", window.Start),
		logging.Float64("fade_seconds", window.Duration),
		logging.String("output_path", output),
	)
	return Clip{Path: output, Duration: duration}, nil
}

// PrepareOutro fades an outro in over the overlay and out at its tail.
func (p *Processor) PrepareOutro(ctx context.Context, path string, overlay float64) (Clip, error) {
	if strings.TrimSpace(path) == "" {
		return Clip{}, missingInput(StageOutro, "Outro processing input file is missing")
	}
	job, err := p.load(ctx, StageOutro, path, "outro processing")
	if err != nil {
		return Clip{}, err
	}
	duration := job.Asset().Duration
	if overlay <= 0 {
		return Clip{Path: path, Duration: duration}, nil
	}
	output := DerivePath(path, "_fadeoutro", "")
	window := fade.ComputeWindow(overlay, duration)
	fadeIn := filtergraph.New("afade").With("t", "in").
		With("st", "0").
		With("d", filtergraph.Number(2*overlay))
	job.AddArgument("-af", filtergraph.Simple(fadeIn, fadeOut(window))).
		AddArgument("-q:a", p.quality())
	if _, err := p.execute(ctx, StageOutro, job, output,
		fmt.Sprintf("Processing outro fade failed %s", output), path); err != nil {
		return Clip{}, err
	}
	p.log(ctx, StageOutro).Info("outro prepared",
		logging.Float64("fade_start_seconds", window.Start),
		logging.Float64("fade_seconds", window.Duration),
		logging.String("output_path", output),
	)
	return Clip{Path: output, Duration: duration}, nil
}

// ComposeIntroOutro mixes the prepared clips around the main track. The main
// track and both clips are consumed on success. With neither clip the main
// path is returned unchanged.
func (p *Processor) ComposeIntroOutro(ctx context.Context, mainPath string, intro, outro *Clip, overlay float64) (string, error) {
	if strings.TrimSpace(mainPath) == "" {
		return "", missingInput(StageCompose, "Main audio file is missing")
	}
	if intro == nil && outro == nil {
		p.log(ctx, StageCompose).Info("intro and outro both absent",
			logging.Args(logging.DecisionAttrs("compose", "skip", "no intro or outro supplied")...)...)
		return mainPath, nil
	}
	job, err := p.load(ctx, StageCompose, mainPath, "concat intro/outro")
	if err != nil {
		return "", err
	}
	plan, _ := PlanComposition(job.Asset().Duration, intro, outro, overlay)
	for _, input := range plan.Inputs {
		job.AddArgument("-i", input)
	}
	graph := plan.Graph.String()
	job.AddArgument("-filter_complex", graph).
		AddArgument("-q:a", p.quality())

	output := DerivePath(mainPath, "_concat", "")
	consumed := append([]string{mainPath}, plan.Inputs...)
	if _, err := p.execute(ctx, StageCompose, job, output,
		fmt.Sprintf("Unable to concat intro/outro to audio file %s as %s", mainPath, output), consumed...); err != nil {
		return "", err
	}
	p.log(ctx, StageCompose).Info("intro/outro composed",
		logging.Bool("has_intro", intro != nil),
		logging.Bool("has_outro", outro != nil),
		logging.Int64("intro_delay_ms", plan.IntroDelay.Millis),
		logging.Int64("outro_delay_ms", plan.OutroDelay.Millis),
		logging.String("filter_graph", graph),
		logging.String("output_path", output),
	)
	return output, nil
}
