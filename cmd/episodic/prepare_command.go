package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"episodic/internal/assetlock"
	"episodic/internal/config"
	"episodic/internal/ledger"
	"episodic/internal/logging"
	"episodic/internal/pipeline"
	"episodic/internal/preflight"
	"episodic/internal/processing"
	"episodic/internal/services"
)

type prepareFlags struct {
	output        string
	mode          string
	forceMP3      bool
	introURL      string
	outroURL      string
	introPath     string
	outroPath     string
	overlay       float64
	cover         string
	title         string
	artist        string
	track         int
	inPlace       bool
	skipPreflight bool
	json          bool
}

func newPrepareCommand(ctx *commandContext) *cobra.Command {
	var flags prepareFlags

	cmd := &cobra.Command{
		Use:   "prepare <audio-file>",
		Short: "Run the full pipeline over one episode",
		Long: `Run every stage over one episode: overread guard, MP3 normalization,
silence trimming (or removal), intro/outro download and mixing, loudness
normalization and cover tagging.

The source is copied into a per-run staging directory and left untouched
unless --in-place is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withResources(func() error {
				return runPrepare(cmd, ctx, args[0], flags)
			})
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.output, "output", "o", "", "Destination file (default <source>_episodic.mp3)")
	f.StringVar(&flags.mode, "mode", "", "Silence handling: trim or remove_all (default silence.mode)")
	f.BoolVar(&flags.forceMP3, "force-mp3", false, "Re-encode even when the source is already MP3")
	f.StringVar(&flags.introURL, "intro-url", "", "URL of the intro clip")
	f.StringVar(&flags.outroURL, "outro-url", "", "URL of the outro clip")
	f.StringVar(&flags.introPath, "intro", "", "Local intro clip")
	f.StringVar(&flags.outroPath, "outro", "", "Local outro clip")
	f.Float64Var(&flags.overlay, "overlay", 0, "Seconds the intro/outro overlap the episode (default mix.overlay_seconds)")
	f.StringVar(&flags.cover, "cover", "", "Cover image to embed; tagging is skipped without one")
	f.StringVar(&flags.title, "title", "", "Episode title (default derived from the file name)")
	f.StringVar(&flags.artist, "artist", "", "Artist tag (default tagging.artist)")
	f.IntVar(&flags.track, "track", 0, "Track number tag")
	f.BoolVar(&flags.inPlace, "in-place", false, "Process the source file directly instead of a staged copy")
	f.BoolVar(&flags.skipPreflight, "skip-preflight", false, "Do not check directories and binaries first")
	f.BoolVar(&flags.json, "json", false, "Print the result as JSON")
	return cmd
}

func runPrepare(cmd *cobra.Command, ctx *commandContext, arg string, flags prepareFlags) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}

	source, err := resolveInput(arg)
	if err != nil {
		return err
	}
	mode := strings.TrimSpace(flags.mode)
	if mode != "" && mode != config.SilenceModeTrim && mode != config.SilenceModeRemoveAll {
		return errInvalidMode(mode)
	}

	if !flags.skipPreflight {
		if failed := preflight.Failed(preflight.RunAll(cmd.Context(), cfg)); len(failed) > 0 {
			parts := make([]string, 0, len(failed))
			for _, r := range failed {
				parts = append(parts, fmt.Sprintf("%s: %s", r.Name, r.Detail))
			}
			return fmt.Errorf("preflight failed (run `episodic doctor`): %s", strings.Join(parts, "; "))
		}
	}

	lock, err := assetlock.Acquire(cfg.LockDir(), source)
	if err != nil {
		if errors.Is(err, assetlock.ErrLocked) {
			return fmt.Errorf("%w; wait for the other run to finish", err)
		}
		return err
	}
	defer lock.Release() //nolint:errcheck

	proc, err := ctx.processor()
	if err != nil {
		return err
	}

	var store pipeline.Ledger
	if s, err := ctx.openLedger(); err != nil {
		logging.WarnWithContext(logger, "run ledger unavailable", "ledger_open_failed",
			logging.String(logging.FieldErrorHint, "check state_dir permissions"),
			logging.String(logging.FieldImpact, "this run will not appear in episodic history"),
			logging.Error(err),
		)
	} else {
		store = s
	}

	opts := pipeline.Options{
		Processor:  proc,
		Fetcher:    ctx.fetcher(),
		Mirror:     ctx.mirror(),
		Mode:       cfg.Silence.Mode,
		Overlay:    cfg.Mix.OverlaySeconds,
		ForceMP3:   cfg.Codec.ForceMP3,
		Ledger:     store,
		Metrics:    ctx.metricsValue(),
		Logger:     logger,
		StagingDir: cfg.Paths.StagingDir,
	}
	if flags.inPlace {
		opts.StagingDir = ""
	}
	orch, err := pipeline.New(opts)
	if err != nil {
		return err
	}

	req := pipeline.Request{
		Source:    source,
		Mode:      mode,
		ForceMP3:  flags.forceMP3,
		IntroURL:  strings.TrimSpace(flags.introURL),
		OutroURL:  strings.TrimSpace(flags.outroURL),
		CoverPath: strings.TrimSpace(flags.cover),
		Tags:      processing.Tags{Title: flags.title, Artist: flags.artist},
	}
	if req.IntroPath, err = optionalInput(flags.introPath); err != nil {
		return err
	}
	if req.OutroPath, err = optionalInput(flags.outroPath); err != nil {
		return err
	}
	if req.CoverPath, err = optionalInput(req.CoverPath); err != nil {
		return err
	}
	if cmd.Flags().Changed("overlay") {
		overlay := flags.overlay
		req.Overlay = &overlay
	}
	if cmd.Flags().Changed("track") {
		track := flags.track
		req.Tags.Track = &track
	}
	req.Destination = strings.TrimSpace(flags.output)
	if req.Destination == "" && !flags.inPlace {
		req.Destination = defaultDestination(source)
	}

	res, runErr := orch.Prepare(cmd.Context(), req)
	if flags.json {
		if err := writeJSON(cmd, prepareView(res, runErr)); err != nil {
			return err
		}
		return runErr
	}
	if runErr != nil {
		return runErr
	}
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	fmt.Fprintln(out, renderStageTable(res.Stages, colorize))
	fmt.Fprintf(out, "Run %s complete: %s\n", res.RunID, res.Output)
	if res.Overread {
		fmt.Fprintln(out, "Source had decoder overread; it was re-encoded before trimming.")
	}
	return nil
}

func defaultDestination(source string) string {
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	return filepath.Join(filepath.Dir(source), base+"_episodic.mp3")
}

func resolveInput(arg string) (string, error) {
	path, err := config.ExpandPath(strings.TrimSpace(arg))
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", errors.New("input file is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("inspect %q: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	return path, nil
}

func optionalInput(arg string) (string, error) {
	if strings.TrimSpace(arg) == "" {
		return "", nil
	}
	return resolveInput(arg)
}

func renderStageTable(stages []ledger.Stage, colorize bool) string {
	rows := make([][]string, 0, len(stages))
	for _, s := range stages {
		output := s.Output
		if output != "" {
			output = filepath.Base(output)
		}
		rows = append(rows, []string{fmt.Sprintf("%d", s.Seq), s.Name, string(s.Status), formatElapsed(s.Elapsed), output})
	}
	return renderTable(
		[]string{"#", "Stage", "Status", "Elapsed", "Output"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
		colorize,
	)
}

type stageJSON struct {
	Seq       int    `json:"seq"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Output    string `json:"output,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
	Error     string `json:"error,omitempty"`
}

type prepareJSON struct {
	RunID    string      `json:"run_id"`
	Output   string      `json:"output,omitempty"`
	Overread bool        `json:"overread"`
	Stages   []stageJSON `json:"stages"`
	Error    string      `json:"error,omitempty"`
}

func prepareView(res pipeline.Result, err error) prepareJSON {
	view := prepareJSON{RunID: res.RunID, Output: res.Output, Overread: res.Overread, Stages: stagesView(res.Stages)}
	if err != nil {
		view.Error = err.Error()
	}
	return view
}

func stagesView(stages []ledger.Stage) []stageJSON {
	views := make([]stageJSON, 0, len(stages))
	for _, s := range stages {
		views = append(views, stageJSON{
			Seq:       s.Seq,
			Name:      s.Name,
			Status:    string(s.Status),
			Output:    s.Output,
			ElapsedMS: s.Elapsed.Milliseconds(),
			Error:     s.Error,
		})
	}
	return views
}

func errInvalidMode(mode string) error {
	return services.Wrap(services.ErrValidation, "", "",
		fmt.Sprintf("--mode %q must be %q or %q", mode, config.SilenceModeTrim, config.SilenceModeRemoveAll), nil)
}
