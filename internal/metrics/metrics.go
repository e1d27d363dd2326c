// Package metrics records run statistics in a private Prometheus registry
// and writes them as a node-exporter textfile.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/specialistvlad/incrbuild/internal/executor"
	"github.com/specialistvlad/incrbuild/internal/model"
)

const namespace = "incrbuild"

// Metrics holds the collectors of one run.
type Metrics struct {
	registry *prometheus.Registry

	ActionsTotal      *prometheus.CounterVec
	ActionDuration    *prometheus.HistogramVec
	ChangedFiles      *prometheus.GaugeVec
	LastRunSuccess    prometheus.Gauge
	ManifestCommitted prometheus.Gauge
	LastRunTimestamp  prometheus.Gauge
}

var _ executor.Observer = (*Metrics)(nil)

// New creates the collectors in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		ActionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Rebuild actions by stage and outcome.",
			},
			[]string{"stage", "outcome"},
		),
		ActionDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "action_duration_seconds",
				Help:      "Wall-clock duration of rebuild commands.",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 13),
			},
			[]string{"stage"},
		),
		ChangedFiles: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "changed_files",
				Help:      "Files detected in the last diff, by kind.",
			},
			[]string{"kind"},
		),
		LastRunSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 when the last run finished without failed actions.",
		}),
		ManifestCommitted: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "manifest_committed",
			Help:      "1 when the last run committed the manifest.",
		}),
		LastRunTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}
}

// ObserveAction implements executor.Observer.
func (m *Metrics) ObserveAction(stage int, outcome executor.Outcome, d time.Duration) {
	s := strconv.Itoa(stage)
	m.ActionsTotal.WithLabelValues(s, string(outcome)).Inc()
	if outcome != executor.OutcomeDryRun && outcome != executor.OutcomeCancelled {
		m.ActionDuration.WithLabelValues(s).Observe(d.Seconds())
	}
}

// ObserveChangeSet records the size of a diff.
func (m *Metrics) ObserveChangeSet(cs *model.ChangeSet) {
	if cs == nil {
		return
	}
	m.ChangedFiles.WithLabelValues("new").Set(float64(len(cs.New)))
	m.ChangedFiles.WithLabelValues("changed").Set(float64(len(cs.Changed)))
	m.ChangedFiles.WithLabelValues("deleted").Set(float64(len(cs.Deleted)))
	m.ChangedFiles.WithLabelValues("unchanged").Set(float64(cs.UnchangedCount))
}

// ObserveRun records the final state of a run.
func (m *Metrics) ObserveRun(success, committed bool, finished time.Time) {
	m.LastRunSuccess.Set(boolGauge(success))
	m.ManifestCommitted.Set(boolGauge(committed))
	m.LastRunTimestamp.Set(float64(finished.Unix()))
}

// WriteTextfile writes every metric in the text exposition format. The file
// is replaced atomically, so a collector never reads a partial file.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
