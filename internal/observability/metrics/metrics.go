package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the run counters. A process runs once and exits, so the
// registry is written to a node-exporter textfile rather than scraped.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal         *prometheus.CounterVec
	RunDuration       prometheus.Histogram
	EventsFetched     *prometheus.CounterVec
	PostsTotal        *prometheus.CounterVec
	EventsSkipped     *prometheus.CounterVec
	SourceErrorsTotal *prometheus.CounterVec
	StateEntries      prometheus.Gauge
	StatePruned       prometheus.Counter
	LastSuccessfulRun prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "matchday_runs_total",
			Help: "Invocations by final status",
		}, []string{"status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "matchday_run_duration_seconds",
			Help:    "Wall time of a single invocation",
			Buckets: prometheus.DefBuckets,
		}),
		EventsFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "matchday_events_fetched_total",
			Help: "Announcement candidates returned by each source",
		}, []string{"source"}),
		PostsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "matchday_posts_total",
			Help: "Post attempts by event kind and outcome",
		}, []string{"kind", "status"}),
		EventsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "matchday_events_skipped_total",
			Help: "Events not posted, by reason",
		}, []string{"reason"}),
		SourceErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "matchday_source_errors_total",
			Help: "Failed source fetches",
		}, []string{"source"}),
		StateEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "matchday_state_entries",
			Help: "Seen identifiers held in state after the run",
		}),
		StatePruned: factory.NewCounter(prometheus.CounterOpts{
			Name: "matchday_state_pruned_total",
			Help: "Seen identifiers dropped by retention",
		}),
		LastSuccessfulRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "matchday_last_success_timestamp_seconds",
			Help: "Unix time of the last run that completed",
		}),
	}
}

func (m *Metrics) ObserveRun(status string, started time.Time, finished time.Time) {
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(finished.Sub(started).Seconds())
	if status == "completed" {
		m.LastSuccessfulRun.Set(float64(finished.Unix()))
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile atomically writes the registry in text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
