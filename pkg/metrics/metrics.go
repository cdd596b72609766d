// Package metrics keeps the Prometheus metrics of a single task invocation.
// A CLI invocation is short-lived, so metrics are exported by writing the
// registry to a node-exporter textfile instead of serving /metrics.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "catalyst"

// Config holds the labels for build information.
type Config struct {
	Component string
	Version   string
	Commit    string
}

// Recorder collects metrics for one invocation. A nil *Recorder is valid and
// records nothing, so components can take one unconditionally.
type Recorder struct {
	registry *prometheus.Registry

	buildInfo       *prometheus.GaugeVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retries         *prometheus.CounterVec
	polls           *prometheus.CounterVec
	outcomes        *prometheus.CounterVec
	lastRun         prometheus.Gauge
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder(cfg Config) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information for the task runtime",
		}, []string{"component", "version", "commit"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "controller_requests_total",
			Help:      "Controller HTTP requests by method and status class",
		}, []string{"method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "controller_request_duration_seconds",
			Help:      "Latency of controller HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "controller_retries_total",
			Help:      "Controller requests that were retried",
		}, []string{"method"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracker_polls_total",
			Help:      "Execution status polls by observed status",
		}, []string{"status"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_outcomes_total",
			Help:      "Task results by task, outcome kind and changed flag",
		}, []string{"task", "kind", "changed"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "task_last_run_timestamp_seconds",
			Help:      "Unix timestamp of the last finished task",
		}),
	}

	r.registry.MustRegister(r.buildInfo, r.requests, r.requestDuration, r.retries, r.polls, r.outcomes, r.lastRun)
	r.buildInfo.WithLabelValues(cfg.Component, cfg.Version, cfg.Commit).Set(1)
	return r
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RecordRequest counts a finished controller request. status is the HTTP
// status code, or 0 when no response was received.
func (r *Recorder) RecordRequest(method string, status int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(method, statusClass(status)).Inc()
	r.requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// RecordRetry counts one retry of a controller request.
func (r *Recorder) RecordRetry(method string) {
	if r == nil {
		return
	}
	r.retries.WithLabelValues(method).Inc()
}

// RecordPoll counts one tracker poll with the status it observed.
func (r *Recorder) RecordPoll(status string) {
	if r == nil {
		return
	}
	r.polls.WithLabelValues(status).Inc()
}

// RecordOutcome counts a finished task.
func (r *Recorder) RecordOutcome(task, kind string, changed bool) {
	if r == nil {
		return
	}
	r.outcomes.WithLabelValues(task, kind, strconv.FormatBool(changed)).Inc()
	r.lastRun.SetToCurrentTime()
}

// WriteTextfile writes the registry in the text exposition format to path,
// atomically, for the node-exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile %s: %w", path, err)
	}
	return nil
}

func statusClass(status int) string {
	if status <= 0 {
		return "transport"
	}
	return fmt.Sprintf("%dxx", status/100)
}
