// Package metrics instruments a gh-grep run with Prometheus collectors.
//
// Collectors live on a private registry because a run is a short-lived
// process; there is nothing to scrape. When a Pushgateway URL is
// configured the CLI pushes the registry once the run ends.
package metrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Fetch outcomes recorded by RecordFileFetched.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeTooLarge = "too_large"
)

// Metrics holds Prometheus metrics for one run. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RemoteRequestsTotal   *prometheus.CounterVec
	RemoteRequestDuration *prometheus.HistogramVec
	FilesFetchedTotal     *prometheus.CounterVec
	RepositoriesProcessed prometheus.Counter
	RecordsEmittedTotal   prometheus.Counter
}

// New creates the collectors on a fresh registry.
//
// Metrics:
//   - ghgrep_remote_requests_total{operation,status} - GitHub API calls by outcome
//   - ghgrep_remote_request_duration_seconds{operation} - GitHub API latency
//   - ghgrep_files_fetched_total{outcome} - file retrievals (ok, not_found, too_large)
//   - ghgrep_repositories_processed_total - repositories fully scanned
//   - ghgrep_records_emitted_total - records written to the output sink
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RemoteRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ghgrep_remote_requests_total",
				Help: "Total number of GitHub API requests",
			},
			[]string{"operation", "status"},
		),

		RemoteRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ghgrep_remote_request_duration_seconds",
				Help:    "Duration of GitHub API requests in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
			},
			[]string{"operation"},
		),

		FilesFetchedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ghgrep_files_fetched_total",
				Help: "Total number of file retrievals by outcome",
			},
			[]string{"outcome"},
		),

		RepositoriesProcessed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ghgrep_repositories_processed_total",
				Help: "Total number of repositories fully scanned",
			},
		),

		RecordsEmittedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ghgrep_records_emitted_total",
				Help: "Total number of output records emitted",
			},
		),
	}
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest records one GitHub API call. status is the HTTP status
// code, or 0 when the request never got a response.
func (m *Metrics) RecordRequest(operation string, status int, d time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.RemoteRequestsTotal.WithLabelValues(operation, label).Inc()
	m.RemoteRequestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordFileFetched records a file retrieval outcome.
func (m *Metrics) RecordFileFetched(outcome string) {
	if m == nil {
		return
	}
	m.FilesFetchedTotal.WithLabelValues(outcome).Inc()
}

// RecordRepository records a fully processed repository.
func (m *Metrics) RecordRepository() {
	if m == nil {
		return
	}
	m.RepositoriesProcessed.Inc()
}

// RecordEmitted records one output record.
func (m *Metrics) RecordEmitted() {
	if m == nil {
		return
	}
	m.RecordsEmittedTotal.Inc()
}

// Push sends every collector to a Pushgateway under job.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if m == nil || url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
