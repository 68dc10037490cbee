// Package metrics exposes pipeline counters and timings in Prometheus form.
//
// episodic is a one-shot CLI, so there is no scrape endpoint. Values are
// collected on a private registry and written to a node_exporter textfile
// when the run ends.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "episodic"

// Metrics holds the collectors for one process.
type Metrics struct {
	registry *prometheus.Registry

	StageDuration  *prometheus.HistogramVec
	StageResults   *prometheus.CounterVec
	Runs           *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	DownloadBytes  prometheus.Counter
	SilenceRemoved prometheus.Counter
	LastRun        prometheus.Gauge
}

// New creates and registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent in each pipeline stage",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}, []string{"stage"}),
		StageResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage outcomes by result",
		}, []string{"stage", "result"}),
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by final status",
		}, []string{"status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of complete pipeline runs",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1h
		}),
		DownloadBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Bytes fetched for intro and outro clips",
		}),
		SilenceRemoved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "silence_removed_seconds_total",
			Help:      "Audio duration removed by trim and silence removal",
		}),
		LastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
	}
}

// Registry returns the gatherer backing these metrics.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordStage observes one stage outcome. A nil receiver is a no-op.
func (m *Metrics) RecordStage(stage, result string, seconds float64) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(seconds)
	m.StageResults.WithLabelValues(stage, result).Inc()
}

// RecordRun observes a finished run.
func (m *Metrics) RecordRun(status string, seconds float64, finishedUnix float64) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(status).Inc()
	m.RunDuration.Observe(seconds)
	m.LastRun.Set(finishedUnix)
}

// RecordDownload adds fetched bytes.
func (m *Metrics) RecordDownload(bytes int64) {
	if m == nil || bytes <= 0 {
		return
	}
	m.DownloadBytes.Add(float64(bytes))
}

// RecordSilenceRemoved adds the duration a stage cut from the audio.
func (m *Metrics) RecordSilenceRemoved(seconds float64) {
	if m == nil || seconds <= 0 {
		return
	}
	m.SilenceRemoved.Add(seconds)
}

// WriteTextfile writes the registry in text exposition format to path.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
