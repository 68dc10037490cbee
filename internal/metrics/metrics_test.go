package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordStageAndRun(t *testing.T) {
	m := New()
	m.RecordStage("trim", "completed", 1.5)
	m.RecordStage("trim", "completed", 0.5)
	m.RecordStage("compose", "skipped", 0)
	m.RecordRun("completed", 12, 1700000000)
	m.RecordDownload(2048)
	m.RecordDownload(-1)
	m.RecordSilenceRemoved(3.25)

	if got := testutil.ToFloat64(m.StageResults.WithLabelValues("trim", "completed")); got != 2 {
		t.Fatalf("trim completed = %v", got)
	}
	if got := testutil.ToFloat64(m.StageResults.WithLabelValues("compose", "skipped")); got != 1 {
		t.Fatalf("compose skipped = %v", got)
	}
	if got := testutil.ToFloat64(m.Runs.WithLabelValues("completed")); got != 1 {
		t.Fatalf("runs = %v", got)
	}
	if got := testutil.ToFloat64(m.DownloadBytes); got != 2048 {
		t.Fatalf("download bytes = %v", got)
	}
	if got := testutil.ToFloat64(m.SilenceRemoved); got != 3.25 {
		t.Fatalf("silence removed = %v", got)
	}
	if got := testutil.ToFloat64(m.LastRun); got != 1700000000 {
		t.Fatalf("last run = %v", got)
	}
	if n := testutil.CollectAndCount(m.StageDuration); n != 2 {
		t.Fatalf("stage duration series = %d", n)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordStage("trim", "completed", 1)
	m.RecordRun("failed", 1, 1)
	m.RecordDownload(10)
	m.RecordSilenceRemoved(1)
	if err := m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")); err != nil {
		t.Fatalf("nil WriteTextfile: %v", err)
	}
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.RecordStage("normalize", "completed", 2)
	path := filepath.Join(t.TempDir(), "nested", "episodic.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{
		`episodic_stage_results_total{result="completed",stage="normalize"} 1`,
		"# TYPE episodic_stage_duration_seconds histogram",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("textfile missing %q:\n%s", want, text)
		}
	}
}
