// Package metrics exposes migration run counters to Prometheus.
//
// A Recorder is attached to a pipeline as its observer. At the end of a
// run the registry can be written in the text exposition format for the
// node exporter's textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/opinionated/internal/engine"
	"github.com/roach88/opinionated/internal/ir"
)

const namespace = "opinionated"

// Recorder counts pipeline events. It implements engine.Observer.
type Recorder struct {
	registry *prometheus.Registry

	processed *prometheus.CounterVec
	mutated   *prometheus.CounterVec
	actions   *prometheus.CounterVec
	missing   *prometheus.CounterVec
	rules     prometheus.Gauge
	labels    prometheus.Gauge
	duration  prometheus.Gauge
	lastRun   prometheus.Gauge
}

var _ engine.Observer = (*Recorder)(nil)

// NewRecorder creates a recorder with its own registry.
func NewRecorder() (*Recorder, error) {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_processed_total",
			Help:      "Entities passed through the transform pipeline",
		}, []string{"type"}),

		mutated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_mutated_total",
			Help:      "Entities whose tags were replaced",
		}, []string{"type"}),

		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Ledger actions recorded",
		}, []string{"type", "action"}),

		missing: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "missing_references_total",
			Help:      "Entities whose reference id had no labels",
		}, []string{"type"}),

		rules: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rules",
			Help:      "Rules loaded into the rule table",
		}),

		labels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "labels",
			Help:      "Rows loaded into the label table",
		}),

		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run",
		}),

		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
	}

	for _, c := range []prometheus.Collector{
		r.processed, r.mutated, r.actions, r.missing,
		r.rules, r.labels, r.duration, r.lastRun,
	} {
		if err := r.registry.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}

	// Zero every type so series exist even for empty runs.
	for _, t := range ir.EntityTypes {
		r.processed.WithLabelValues(t.String())
		r.mutated.WithLabelValues(t.String())
		r.missing.WithLabelValues(t.String())
	}
	return r, nil
}

// Registry returns the registry the recorder's collectors live in.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// EntityProcessed implements engine.Observer.
func (r *Recorder) EntityProcessed(t ir.EntityType, mutated bool) {
	r.processed.WithLabelValues(t.String()).Inc()
	if mutated {
		r.mutated.WithLabelValues(t.String()).Inc()
	}
}

// ActionRecorded implements engine.Observer.
func (r *Recorder) ActionRecorded(t ir.EntityType, kind ir.ActionKind) {
	r.actions.WithLabelValues(t.String(), string(kind)).Inc()
}

// ReferenceMissing implements engine.Observer.
func (r *Recorder) ReferenceMissing(t ir.EntityType) {
	r.missing.WithLabelValues(t.String()).Inc()
}

// SetTables records the size of the run's rule and label tables.
func (r *Recorder) SetTables(rules, labels int) {
	r.rules.Set(float64(rules))
	r.labels.Set(float64(labels))
}

// Finish records the duration and completion time of a run.
func (r *Recorder) Finish(started, finished time.Time) {
	r.duration.Set(finished.Sub(started).Seconds())
	r.lastRun.Set(float64(finished.Unix()))
}

// WriteTextfile writes the registry to path in the text exposition format.
// The file is written to a temporary name and renamed into place.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
