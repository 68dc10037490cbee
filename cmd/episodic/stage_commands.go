package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"episodic/internal/config"
	"episodic/internal/fileutil"
	"episodic/internal/processing"
	"episodic/internal/silence"
	"episodic/internal/stageexec"
)

func newStageCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newDetectCommand(ctx),
		newPlanCommand(ctx),
		newTrimCommand(ctx),
		newRemoveSilenceCommand(ctx),
		newCodecCommand(ctx),
		newComposeCommand(ctx),
		newNormalizeCommand(ctx),
		newTagCommand(ctx),
	}
}

// runStage executes one processor stage over the file named on the command
// line and prints the resulting path. Stages consume their input; with keep
// set the input is restored from a backup after a successful run.
func runStage(cmd *cobra.Command, ctx *commandContext, arg, stage string, keep bool, fn func(context.Context, *processing.Processor, string) (string, error)) error {
	return ctx.withResources(func() error {
		input, err := resolveInput(arg)
		if err != nil {
			return err
		}
		logger, err := ctx.ensureLogger()
		if err != nil {
			return err
		}
		proc, err := ctx.processor()
		if err != nil {
			return err
		}

		restore := func() error { return nil }
		if keep {
			if restore, err = preserve(input); err != nil {
				return err
			}
		}

		output, err := stageexec.Run(cmd.Context(), stageexec.Options{
			Logger:    logger,
			Observer:  ctx.metricsValue(),
			StageName: stage,
			Input:     input,
		}, func(c context.Context, in string) (string, error) {
			return fn(c, proc, in)
		})
		if restoreErr := restore(); restoreErr != nil {
			return errors.Join(err, restoreErr)
		}
		if err != nil {
			return err
		}
		if output == input {
			fmt.Fprintf(cmd.OutOrStdout(), "%s unchanged: %s\n", stageexec.Label(stage), output)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), output)
		return nil
	})
}

// preserve copies path aside and returns a func that puts it back if the
// stage removed it.
func preserve(path string) (func() error, error) {
	backup := path + ".keep"
	if _, err := fileutil.CopyFile(path, backup); err != nil {
		return nil, fmt.Errorf("back up %s: %w", path, err)
	}
	return func() error {
		if _, err := os.Stat(path); err == nil {
			return os.Remove(backup)
		}
		if err := fileutil.MoveFile(backup, path); err != nil {
			return fmt.Errorf("restore %s: %w", path, err)
		}
		return nil
	}, nil
}

func newDetectCommand(ctx *commandContext) *cobra.Command {
	var noiseDB, minDuration float64
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "detect <audio-file>",
		Short: "Report silent intervals and decoder overread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withResources(func() error {
				input, err := resolveInput(args[0])
				if err != nil {
					return err
				}
				proc, err := ctx.processor()
				if err != nil {
					return err
				}
				threshold := proc.Options().Trim
				if cmd.Flags().Changed("noise-db") {
					threshold.NoiseDB = noiseDB
				}
				if cmd.Flags().Changed("duration") {
					threshold.Duration = minDuration
				}
				detection, err := proc.DetectSilence(cmd.Context(), input, threshold)
				if err != nil {
					return err
				}
				overread := processing.HasOverread(detection.Report)
				if asJSON {
					return writeJSON(cmd, detectView(detection, overread))
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s: %s s, codec %s, overread %s\n",
					filepath.Base(input), formatSeconds(detection.Asset.Duration), detection.Asset.Codec, yesNo(overread))
				if len(detection.Events) == 0 {
					fmt.Fprintln(out, "No silence detected")
					return nil
				}
				fmt.Fprintln(out, renderEventTable(detection.Events, shouldColorize(out)))
				return nil
			})
		},
	}
	cmd.Flags().Float64Var(&noiseDB, "noise-db", 0, "Noise floor in dB (default silence.noise_db)")
	cmd.Flags().Float64Var(&minDuration, "duration", 0, "Minimum silence length in seconds (default silence.min_duration)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print events as JSON")
	return cmd
}

func renderEventTable(events []silence.Event, colorize bool) string {
	rows := make([][]string, 0, len(events))
	for i, e := range events {
		end, duration := "eof", "-"
		if e.HasEnd {
			end = formatSeconds(e.End)
		}
		if e.HasDuration {
			duration = formatSeconds(e.Duration)
		}
		rows = append(rows, []string{fmt.Sprintf("%d", i+1), formatSeconds(e.Start), end, duration})
	}
	return renderTable([]string{"#", "Start", "End", "Duration"}, rows,
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight}, colorize)
}

type eventJSON struct {
	Start    float64  `json:"start"`
	End      *float64 `json:"end,omitempty"`
	Duration *float64 `json:"duration,omitempty"`
}

type detectJSON struct {
	Path     string      `json:"path"`
	Duration float64     `json:"duration"`
	Codec    string      `json:"codec"`
	Overread bool        `json:"overread"`
	Events   []eventJSON `json:"events"`
}

func detectView(d processing.Detection, overread bool) detectJSON {
	view := detectJSON{Path: d.Asset.Path, Duration: d.Asset.Duration, Codec: d.Asset.Codec, Overread: overread, Events: []eventJSON{}}
	for _, e := range d.Events {
		ev := eventJSON{Start: e.Start}
		if e.HasEnd {
			end := e.End
			ev.End = &end
		}
		if e.HasDuration {
			dur := e.Duration
			ev.Duration = &dur
		}
		view.Events = append(view.Events, ev)
	}
	return view
}

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var mode string
	var introSeconds, outroSeconds, overlay float64

	cmd := &cobra.Command{
		Use:   "plan <audio-file>",
		Short: "Show the filter graphs a run would use without writing audio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withResources(func() error {
				input, err := resolveInput(args[0])
				if err != nil {
					return err
				}
				proc, err := ctx.processor()
				if err != nil {
					return err
				}
				if mode == "" {
					mode = ctx.configValue().Silence.Mode
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				opts := proc.Options()

				var duration float64
				switch mode {
				case config.SilenceModeTrim:
					detection, err := proc.DetectSilence(cmd.Context(), input, opts.Trim)
					if err != nil {
						return err
					}
					duration = detection.Asset.Duration
					plan := silence.PlanTrim(detection.Events, duration)
					fmt.Fprintln(out, renderSectionHeader("Trim", colorize))
					fmt.Fprintf(out, "keep %s .. %s of %s s\n", formatSeconds(plan.Start), formatSeconds(plan.End), formatSeconds(duration))
					fmt.Fprintf(out, "-af %s\n", plan.Filter())
				case config.SilenceModeRemoveAll:
					detection, err := proc.DetectSilence(cmd.Context(), input, opts.RemoveAll)
					if err != nil {
						return err
					}
					duration = detection.Asset.Duration
					fmt.Fprintln(out, renderSectionHeader("Remove silence", colorize))
					plan, ok := silence.PlanKeepZones(detection.Events, duration)
					if !ok {
						fmt.Fprintln(out, "no silence detected; audio passes through")
						break
					}
					rows := make([][]string, 0, plan.Count())
					for _, z := range plan.Zones {
						rows = append(rows, []string{z.Label, formatSeconds(z.Start), formatSeconds(z.End)})
					}
					fmt.Fprintln(out, renderTable([]string{"Zone", "Start", "End"}, rows,
						[]columnAlignment{alignLeft, alignRight, alignRight}, colorize))
					fmt.Fprintf(out, "-filter_complex %s\n", plan.Graph.String())
				default:
					return errInvalidMode(mode)
				}

				if introSeconds <= 0 && outroSeconds <= 0 {
					return nil
				}
				if !cmd.Flags().Changed("overlay") {
					overlay = ctx.configValue().Mix.OverlaySeconds
				}
				var intro, outro *processing.Clip
				if introSeconds > 0 {
					intro = &processing.Clip{Path: "intro", Duration: introSeconds}
				}
				if outroSeconds > 0 {
					outro = &processing.Clip{Path: "outro", Duration: outroSeconds}
				}
				composition, _ := processing.PlanComposition(duration, intro, outro, overlay)
				fmt.Fprintln(out, renderSectionHeader("Compose", colorize))
				fmt.Fprintf(out, "intro delay %s ms, outro delay %s ms\n", composition.IntroDelay, composition.OutroDelay)
				fmt.Fprintf(out, "-filter_complex %s\n", composition.Graph.String())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "Silence handling: trim or remove_all (default silence.mode)")
	cmd.Flags().Float64Var(&introSeconds, "intro-seconds", 0, "Intro length to plan a mix for")
	cmd.Flags().Float64Var(&outroSeconds, "outro-seconds", 0, "Outro length to plan a mix for")
	cmd.Flags().Float64Var(&overlay, "overlay", 0, "Overlay seconds (default mix.overlay_seconds)")
	return cmd
}

func newTrimCommand(ctx *commandContext) *cobra.Command {
	var noiseDB float64
	var keep bool
	cmd := &cobra.Command{
		Use:   "trim <audio-file>",
		Short: "Cut leading and trailing silence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(cmd, ctx, args[0], processing.StageTrim, keep, func(c context.Context, p *processing.Processor, in string) (string, error) {
				return p.TrimSilence(c, in, noiseDB)
			})
		},
	}
	cmd.Flags().Float64Var(&noiseDB, "noise-db", 0, "Noise floor in dB (default silence.noise_db)")
	cmd.Flags().BoolVar(&keep, "keep", false, "Keep the input file")
	return cmd
}

func newRemoveSilenceCommand(ctx *commandContext) *cobra.Command {
	var keep bool
	cmd := &cobra.Command{
		Use:   "remove-silence <audio-file>",
		Short: "Splice out every silent gap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(cmd, ctx, args[0], processing.StageRemoveSilence, keep, func(c context.Context, p *processing.Processor, in string) (string, error) {
				return p.RemoveAllSilence(c, in)
			})
		},
	}
	cmd.Flags().BoolVar(&keep, "keep", false, "Keep the input file")
	return cmd
}

func newCodecCommand(ctx *commandContext) *cobra.Command {
	var force, keep bool
	cmd := &cobra.Command{
		Use:   "codec <audio-file>",
		Short: "Re-encode to MP3 unless the file already is MP3",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(cmd, ctx, args[0], processing.StageCodec, keep, func(c context.Context, p *processing.Processor, in string) (string, error) {
				return p.SetMP3Codec(c, in, force)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Re-encode MP3 input too")
	cmd.Flags().BoolVar(&keep, "keep", false, "Keep the input file")
	return cmd
}

func newComposeCommand(ctx *commandContext) *cobra.Command {
	var introPath, outroPath string
	var overlay float64
	var keep bool
	cmd := &cobra.Command{
		Use:   "compose <audio-file>",
		Short: "Mix an intro and/or outro around the episode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(introPath) == "" && strings.TrimSpace(outroPath) == "" {
				return errors.New("at least one of --intro or --outro is required")
			}
			if !cmd.Flags().Changed("overlay") {
				overlay = ctx.configValue().Mix.OverlaySeconds
			}
			return runStage(cmd, ctx, args[0], processing.StageCompose, keep, func(c context.Context, p *processing.Processor, in string) (string, error) {
				intro, err := prepareClip(in, introPath, "intro", func(path string) (processing.Clip, error) {
					return p.PrepareIntro(c, path, overlay)
				})
				if err != nil {
					return "", err
				}
				outro, err := prepareClip(in, outroPath, "outro", func(path string) (processing.Clip, error) {
					return p.PrepareOutro(c, path, overlay)
				})
				if err != nil {
					return "", err
				}
				return p.ComposeIntroOutro(c, in, intro, outro, overlay)
			})
		},
	}
	cmd.Flags().StringVar(&introPath, "intro", "", "Intro clip")
	cmd.Flags().StringVar(&outroPath, "outro", "", "Outro clip")
	cmd.Flags().Float64Var(&overlay, "overlay", 0, "Overlap in seconds (default mix.overlay_seconds)")
	cmd.Flags().BoolVar(&keep, "keep", false, "Keep the episode file")
	return cmd
}

// prepareClip fades a copy of a user clip so the original is never consumed.
func prepareClip(main, path, role string, prepare func(string) (processing.Clip, error)) (*processing.Clip, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	src, err := resolveInput(path)
	if err != nil {
		return nil, err
	}
	work := processing.DerivePath(main, "_"+role, filepath.Ext(src))
	if _, err := fileutil.CopyFile(src, work); err != nil {
		return nil, fmt.Errorf("copy %s: %w", role, err)
	}
	clip, err := prepare(work)
	if err != nil {
		_ = os.Remove(work)
		return nil, err
	}
	return &clip, nil
}

func newNormalizeCommand(ctx *commandContext) *cobra.Command {
	var keep bool
	cmd := &cobra.Command{
		Use:   "normalize <audio-file>",
		Short: "Apply loudness normalization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(cmd, ctx, args[0], processing.StageNormalize, keep, func(c context.Context, p *processing.Processor, in string) (string, error) {
				return p.NormalizeVolume(c, in)
			})
		},
	}
	cmd.Flags().BoolVar(&keep, "keep", false, "Keep the input file")
	return cmd
}

func newTagCommand(ctx *commandContext) *cobra.Command {
	var coverPath, title, artist string
	var track int
	var keep bool
	cmd := &cobra.Command{
		Use:   "tag <mp3-file>",
		Short: "Embed cover art and ID3 metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tags := processing.Tags{Title: title, Artist: artist}
			if cmd.Flags().Changed("track") {
				tags.Track = &track
			}
			return runStage(cmd, ctx, args[0], processing.StageTag, keep, func(c context.Context, p *processing.Processor, in string) (string, error) {
				src, err := resolveInput(coverPath)
				if err != nil {
					return "", err
				}
				// Resizing consumes the cover, so tag from a copy.
				work := processing.DerivePath(in, "_cover", filepath.Ext(src))
				if _, err := fileutil.CopyFile(src, work); err != nil {
					return "", fmt.Errorf("copy cover: %w", err)
				}
				defer os.Remove(work)
				defer os.Remove(processing.DerivePath(work, "_resized", ".png"))
				cover, err := p.ProbeCover(c, work)
				if err != nil {
					return "", err
				}
				return p.TagAudio(c, in, cover, tags)
			})
		},
	}
	cmd.Flags().StringVar(&coverPath, "cover", "", "Cover image")
	cmd.Flags().StringVar(&title, "title", "", "Title (default derived from the file name)")
	cmd.Flags().StringVar(&artist, "artist", "", "Artist (default tagging.artist)")
	cmd.Flags().IntVar(&track, "track", 0, "Track number")
	cmd.Flags().BoolVar(&keep, "keep", false, "Keep the input file")
	_ = cmd.MarkFlagRequired("cover")
	return cmd
}
