// Package metrics counts what a run did and exports it in the Prometheus
// textfile format for node_exporter's textfile collector.
package metrics

import (
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"hackops/pkg/envapi"
	"hackops/pkg/github"
	"hackops/pkg/roster"
)

const namespace = "hackops"

// Recorder holds the counters of one run on its own registry
type Recorder struct {
	registry *prometheus.Registry

	teams         *prometheus.CounterVec
	repositories  *prometheus.CounterVec
	collaborators *prometheus.CounterVec
	unresolved    prometheus.Counter
	variables     *prometheus.CounterVec
	protected     prometheus.Gauge
	lastRun       prometheus.Gauge
	duration      prometheus.Gauge
}

// NewRecorder creates a recorder with every collector registered
func NewRecorder() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.teams = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "teams_total",
		Help:      "Teams processed, by result",
	}, []string{"result"})

	r.repositories = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "repositories_total",
		Help:      "Repository ensure outcomes",
	}, []string{"outcome"})

	r.collaborators = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "collaborator_changes_total",
		Help:      "Collaborator grants and revokes, by result",
	}, []string{"change", "result"})

	r.unresolved = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "unresolved_members_total",
		Help:      "Roster members without a resolvable profile link",
	})

	r.variables = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "env",
		Name:      "variables_published_total",
		Help:      "Team variables written to the service, by key and result",
	}, []string{"key", "result"})

	r.protected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "protected_members",
		Help:      "Organization members preserved as collaborators",
	})

	r.lastRun = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the run finished",
	})

	r.duration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_duration_seconds",
		Help:      "Wall time of the run",
	})

	r.registry.MustRegister(r.teams, r.repositories, r.collaborators, r.unresolved,
		r.variables, r.protected, r.lastRun, r.duration)

	return r
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ProtectedLoaded implements github.SyncReporter
func (r *Recorder) ProtectedLoaded(count int) {
	r.protected.Set(float64(count))
}

// TeamStarted implements github.SyncReporter
func (r *Recorder) TeamStarted(int, int, roster.Team) {}

// TeamFinished implements github.SyncReporter
func (r *Recorder) TeamFinished(result *github.TeamResult) {
	if result.Succeeded() {
		r.teams.WithLabelValues("succeeded").Inc()
	} else {
		r.teams.WithLabelValues("failed").Inc()
	}
	r.repositories.WithLabelValues(string(result.Outcome)).Inc()

	if result.Plan != nil {
		r.unresolved.Add(float64(len(result.Plan.Unresolved)))
	}
	if result.Apply != nil {
		r.collaborators.WithLabelValues("grant", "ok").Add(float64(len(result.Apply.Added)))
		r.collaborators.WithLabelValues("revoke", "ok").Add(float64(len(result.Apply.Removed)))
		for op := range result.Apply.Failures {
			change, _, _ := strings.Cut(op, " ")
			r.collaborators.WithLabelValues(change, "failed").Inc()
		}
	}
	if result.Published {
		r.VariablePublished(envapi.KeyRepo, nil)
	} else if result.PublishErr != nil {
		r.VariablePublished(envapi.KeyRepo, result.PublishErr)
	}
}

// VariablePublished counts one variable write
func (r *Recorder) VariablePublished(key string, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	r.variables.WithLabelValues(key, result).Inc()
}

// Finish stamps the run end
func (r *Recorder) Finish(started time.Time) {
	now := time.Now()
	r.lastRun.Set(float64(now.Unix()))
	r.duration.Set(now.Sub(started).Seconds())
}

// WriteTextfile writes every metric to path atomically
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
