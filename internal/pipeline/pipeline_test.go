package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"episodic/internal/config"
	"episodic/internal/engine"
	"episodic/internal/ledger"
	"episodic/internal/media/ffprobe"
	"episodic/internal/metrics"
	"episodic/internal/processing"
	"episodic/internal/services"
	"episodic/internal/testsupport"
)

const silenceReport = "[silencedetect @ 0x55] silence_start: 0\n" +
	"[silencedetect @ 0x55] silence_end: 2.5 | silence_duration: 2.5\n" +
	"[silencedetect @ 0x55] silence_start: 98.9\n" +
	"[silencedetect @ 0x55] silence_end: 100 | silence_duration: 1.1\n"

// fakeEngine probes by file base name and creates every output it is asked for.
type fakeEngine struct {
	mu        sync.Mutex
	durations map[string]string
	codecs    map[string]string
	images    map[string][2]int
	report    func(args []string) string
	failOn    string
	calls     [][]string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		durations: map[string]string{},
		codecs:    map[string]string{},
		images:    map[string][2]int{},
		report: func(args []string) string {
			if strings.Contains(strings.Join(args, " "), "silencedetect") {
				return silenceReport
			}
			return ""
		},
	}
}

func (f *fakeEngine) probe(_ context.Context, _ string, path string) (ffprobe.Result, error) {
	if _, err := os.Stat(path); err != nil {
		return ffprobe.Result{}, err
	}
	base := filepath.Base(path)
	if size, ok := f.images[base]; ok {
		return ffprobe.Result{Streams: []ffprobe.Stream{{CodecType: "video", CodecName: "png", Width: size[0], Height: size[1]}}}, nil
	}
	duration := f.durations[base]
	if duration == "" {
		duration = "100"
	}
	codec := f.codecs[base]
	if codec == "" {
		codec = "mp3"
	}
	return ffprobe.Result{
		Streams: []ffprobe.Stream{{CodecType: "audio", CodecName: codec, Channels: 2}},
		Format:  ffprobe.Format{Duration: duration},
	}, nil
}

func (f *fakeEngine) run(_ context.Context, _ string, args []string) (engine.Output, error) {
	f.mu.Lock()
	f.calls = append(f.calls, slices.Clone(args))
	f.mu.Unlock()
	output := args[len(args)-1]
	if output != engine.NullOutput {
		if err := os.WriteFile(output, []byte("encoded"), 0o644); err != nil {
			return engine.Output{}, err
		}
	}
	if f.failOn != "" && strings.Contains(strings.Join(args, " "), f.failOn) {
		return engine.Output{}, &engine.RunError{Command: "ffmpeg", ExitCode: 1, Tail: "Conversion failed!"}
	}
	return engine.Output{Stderr: f.report(args)}, nil
}

type fakeFetcher struct {
	mu      sync.Mutex
	fetched []string
	fail    map[string]error
}

func (f *fakeFetcher) Fetch(_ context.Context, url string, resolve func(string) string) (string, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, url)
	f.mu.Unlock()
	if err := f.fail[url]; err != nil {
		return "", err
	}
	dest := resolve("mp3")
	return dest, os.WriteFile(dest, []byte("clip-bytes"), 0o644)
}

type harness struct {
	cfg     *config.Config
	fake    *fakeEngine
	fetcher *fakeFetcher
	store   *ledger.Store
	metrics *metrics.Metrics
	orch    *Orchestrator
	source  string
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	h := &harness{
		cfg:     cfg,
		fake:    newFakeEngine(),
		fetcher: &fakeFetcher{fail: map[string]error{}},
		store:   testsupport.MustOpenLedger(t, cfg),
		metrics: metrics.New(),
	}
	popts := processing.OptionsFromConfig(cfg)
	popts.Now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }
	proc := processing.New(engine.New(engine.Options{Probe: h.fake.probe, Run: h.fake.run}), popts, nil)

	ids := 0
	opts := Options{
		Processor:  proc,
		Fetcher:    h.fetcher,
		Mode:       config.SilenceModeTrim,
		Ledger:     h.store,
		Metrics:    h.metrics,
		StagingDir: cfg.Paths.StagingDir,
		NewRunID: func() string {
			ids++
			return "run-" + string(rune('0'+ids))
		},
	}
	if mutate != nil {
		mutate(&opts)
	}
	orch, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	h.orch = orch

	h.source = testsupport.WriteMedia(t, filepath.Join(testsupport.BaseDir(cfg), "episode.mp3"), "source")
	return h
}

func stageNames(stages []ledger.Stage) []string {
	names := make([]string, 0, len(stages))
	for _, s := range stages {
		names = append(names, s.Name)
	}
	return names
}

func stageByName(t *testing.T, stages []ledger.Stage, name string) ledger.Stage {
	t.Helper()
	for _, s := range stages {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("stage %s not recorded in %v", name, stageNames(stages))
	return ledger.Stage{}
}

func TestPrepareFullRun(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Overlay = 2 })
	h.fake.images["episode_trimmed_concat_set_volume_cover.png"] = [2]int{1400, 1400}
	cover := testsupport.WriteMedia(t, filepath.Join(testsupport.BaseDir(h.cfg), "cover.png"), "png")
	dest := filepath.Join(testsupport.BaseDir(h.cfg), "out", "episode.mp3")

	res, err := h.orch.Prepare(context.Background(), Request{
		Source:      h.source,
		IntroURL:    "https://cdn.example.com/intro.mp3",
		OutroURL:    "https://cdn.example.com/outro.mp3",
		CoverPath:   cover,
		Tags:        processing.Tags{Artist: "Host"},
		Destination: dest,
	})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if res.Output != dest {
		t.Fatalf("output = %q, want %q", res.Output, dest)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("destination missing: %v", err)
	}
	if _, err := os.Stat(h.source); err != nil {
		t.Fatal("source must survive a staged run")
	}
	if _, err := os.Stat(cover); err != nil {
		t.Fatal("cover must survive a staged run")
	}
	if _, err := os.Stat(filepath.Join(h.cfg.Paths.StagingDir, res.RunID)); !os.IsNotExist(err) {
		t.Fatalf("run directory should be removed after publish, stat err = %v", err)
	}

	want := []string{
		processing.StageOverread, processing.StageCodec, processing.StageTrim, "download",
		processing.StageIntro, processing.StageOutro, processing.StageCompose,
		processing.StageNormalize, processing.StageTag,
	}
	if got := stageNames(res.Stages); !slices.Equal(got, want) {
		t.Fatalf("stages = %v, want %v", got, want)
	}
	if s := stageByName(t, res.Stages, processing.StageCodec); s.Status != ledger.StageSkipped {
		t.Fatalf("codec stage status = %s, want skipped for mp3 input", s.Status)
	}
	if s := stageByName(t, res.Stages, "download"); s.Status != ledger.StageCompleted || !strings.Contains(s.Output, "_intro.mp3") {
		t.Fatalf("download stage = %#v", s)
	}
	if s := stageByName(t, res.Stages, processing.StageIntro); !strings.HasSuffix(s.Output, "_intro_fadeintro.mp3") {
		t.Fatalf("intro stage output = %q", s.Output)
	}

	run, err := h.store.GetRun(context.Background(), res.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != ledger.StatusCompleted || run.Output != dest || len(run.Stages) != len(want) {
		t.Fatalf("ledger run = %#v", run)
	}
	if got := testutil.ToFloat64(h.metrics.Runs.WithLabelValues(string(ledger.StatusCompleted))); got != 1 {
		t.Fatalf("completed runs metric = %v", got)
	}
	if got := testutil.ToFloat64(h.metrics.DownloadBytes); got != float64(2*len("clip-bytes")) {
		t.Fatalf("download bytes = %v", got)
	}
	if len(h.fetcher.fetched) != 2 {
		t.Fatalf("fetched = %v", h.fetcher.fetched)
	}
}

func TestPrepareMinimalRunSkipsOptionalStages(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.StagingDir = "" })
	h.fake.durations["episode_trimmed.mp3"] = "96.4"

	res, err := h.orch.Prepare(context.Background(), Request{Source: h.source})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if res.Output != filepath.Join(filepath.Dir(h.source), "episode_trimmed_set_volume.mp3") {
		t.Fatalf("output = %q", res.Output)
	}
	if _, err := os.Stat(h.source); !os.IsNotExist(err) {
		t.Fatal("in-place run should consume the source")
	}
	for _, name := range []string{"download", processing.StageIntro, processing.StageOutro, processing.StageCompose, processing.StageTag} {
		if s := stageByName(t, res.Stages, name); s.Status != ledger.StageSkipped {
			t.Fatalf("%s status = %s, want skipped", name, s.Status)
		}
	}
	if got := testutil.ToFloat64(h.metrics.SilenceRemoved); got < 3.59 || got > 3.61 {
		t.Fatalf("silence removed = %v, want 3.6", got)
	}
}

func TestPrepareOverreadForcesCodecAndRaisesNoiseFloor(t *testing.T) {
	h := newHarness(t, nil)
	detects := 0
	h.fake.report = func(args []string) string {
		if !strings.Contains(strings.Join(args, " "), "silencedetect") {
			return ""
		}
		detects++
		if detects == 1 {
			return "[mp3float @ 0x7f] overread, skip -5 enddists: -3 -3\n"
		}
		return silenceReport
	}

	res, err := h.orch.Prepare(context.Background(), Request{Source: h.source})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if !res.Overread {
		t.Fatal("expected overread flag")
	}
	if s := stageByName(t, res.Stages, processing.StageOverread); !strings.HasSuffix(s.Output, "episode_mp3codec.mp3") {
		t.Fatalf("guard output = %q", s.Output)
	}
	if s := stageByName(t, res.Stages, processing.StageCodec); s.Status != ledger.StageSkipped {
		t.Fatalf("codec stage should be skipped after forced re-encode, got %s", s.Status)
	}
	var sawRaised bool
	for _, call := range h.fake.calls {
		joined := strings.Join(call, " ")
		if strings.Contains(joined, "silencedetect=n=-50dB") {
			sawRaised = true
		}
	}
	if !sawRaised {
		t.Fatal("trim detection should use the -50dB floor after overread")
	}
}

func TestPrepareRemoveAllMode(t *testing.T) {
	h := newHarness(t, nil)
	res, err := h.orch.Prepare(context.Background(), Request{Source: h.source, Mode: config.SilenceModeRemoveAll})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	s := stageByName(t, res.Stages, processing.StageRemoveSilence)
	if !strings.HasSuffix(s.Output, "episode_silence_removed.mp3") {
		t.Fatalf("remove-silence output = %q", s.Output)
	}
	run, err := h.store.GetRun(context.Background(), res.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if run.Mode != config.SilenceModeRemoveAll {
		t.Fatalf("ledger mode = %q", run.Mode)
	}
}

func TestPrepareSharedClipIsDownloadedOnce(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Overlay = 1 })
	const url = "https://cdn.example.com/jingle.mp3"
	res, err := h.orch.Prepare(context.Background(), Request{Source: h.source, IntroURL: url, OutroURL: url})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(h.fetcher.fetched) != 1 {
		t.Fatalf("fetched %v, want one download", h.fetcher.fetched)
	}
	intro := stageByName(t, res.Stages, processing.StageIntro)
	outro := stageByName(t, res.Stages, processing.StageOutro)
	if intro.Input == outro.Input {
		t.Fatalf("intro and outro must be separate files, both %q", intro.Input)
	}
}

func TestPrepareLocalClips(t *testing.T) {
	h := newHarness(t, nil)
	intro := testsupport.WriteMedia(t, filepath.Join(testsupport.BaseDir(h.cfg), "intro.wav"), "wav")
	res, err := h.orch.Prepare(context.Background(), Request{Source: h.source, IntroPath: intro})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if _, err := os.Stat(intro); err != nil {
		t.Fatal("local intro must not be consumed")
	}
	if s := stageByName(t, res.Stages, processing.StageCompose); s.Status != ledger.StageCompleted {
		t.Fatalf("compose status = %s", s.Status)
	}
	if len(h.fetcher.fetched) != 0 {
		t.Fatalf("local clips should not be fetched: %v", h.fetcher.fetched)
	}
}

func TestPrepareStageFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.fake.failOn = "atrim="

	res, err := h.orch.Prepare(context.Background(), Request{Source: h.source, Destination: filepath.Join(t.TempDir(), "out.mp3")})
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected *StageError, got %v", err)
	}
	if stageErr.Stage != processing.StageTrim || !errors.Is(err, services.ErrEngineRun) {
		t.Fatalf("stage error = %v", stageErr)
	}
	last := res.Stages[len(res.Stages)-1]
	if last.Name != processing.StageTrim || last.Status != ledger.StageFailed {
		t.Fatalf("last stage = %#v", last)
	}
	if _, statErr := os.Stat(last.Input); statErr != nil {
		t.Fatalf("failed stage input must be preserved: %v", statErr)
	}
	if _, statErr := os.Stat(processing.DerivePath(last.Input, "_trimmed", "")); !os.IsNotExist(statErr) {
		t.Fatal("partial trim output should be removed")
	}

	run, getErr := h.store.GetRun(context.Background(), res.RunID)
	if getErr != nil {
		t.Fatal(getErr)
	}
	if run.Status != ledger.StatusFailed || run.Hint == "" {
		t.Fatalf("ledger run = %#v", run)
	}
}

func TestPrepareDownloadFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.fetcher.fail["https://cdn.example.com/outro.mp3"] = errors.New("404")
	_, err := h.orch.Prepare(context.Background(), Request{
		Source:   h.source,
		IntroURL: "https://cdn.example.com/intro.mp3",
		OutroURL: "https://cdn.example.com/outro.mp3",
	})
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != "download" {
		t.Fatalf("expected download stage error, got %v", err)
	}
	if !errors.Is(err, services.ErrDownload) {
		t.Fatalf("expected download marker: %v", err)
	}
}

func TestPrepareMissingSource(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.orch.Prepare(context.Background(), Request{})
	if !errors.Is(err, services.ErrMissingInput) {
		t.Fatalf("expected missing input, got %v", err)
	}
	if review := services.FailureStatus(err); review != ledger.StatusReview {
		t.Fatalf("status = %s", review)
	}
}

func TestPrepareRejectsInvalidSettings(t *testing.T) {
	negative := -1.5
	tests := []struct {
		name string
		req  func(source string) Request
	}{
		{"unknown mode", func(source string) Request { return Request{Source: source, Mode: "aggressive"} }},
		{"negative overlay", func(source string) Request { return Request{Source: source, Overlay: &negative} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			_, err := h.orch.Prepare(context.Background(), tt.req(h.source))
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			var stageErr *StageError
			if !errors.As(err, &stageErr) || stageErr.Stage != StageSource {
				t.Fatalf("expected %s stage error, got %v", StageSource, err)
			}
			if len(h.fake.calls) != 0 {
				t.Fatalf("engine ran %d times before validation", len(h.fake.calls))
			}
			runs, err := h.store.ListRuns(context.Background(), 10, "")
			if err != nil {
				t.Fatal(err)
			}
			if len(runs) != 0 {
				t.Fatalf("invalid request recorded %d runs", len(runs))
			}
		})
	}
}

func TestNewRequiresProcessor(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error without processor")
	}
}
