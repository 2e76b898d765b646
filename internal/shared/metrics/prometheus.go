package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dokku_deployer"

// PrometheusCollector exposes job and remote command metrics on its own registry.
type PrometheusCollector struct {
	registry        *prometheus.Registry
	jobsTotal       *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	hookFailures    *prometheus.CounterVec
	jobsStalled     prometheus.Counter
	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	eventsDropped   *prometheus.CounterVec
}

func NewPrometheusCollector() *PrometheusCollector {
	registry := prometheus.NewRegistry()

	c := &PrometheusCollector{
		registry: registry,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Jobs processed by type and outcome.",
		}, []string{"type", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Execution time of jobs by type.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"type"}),
		hookFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_hook_failures_total",
			Help:      "Errors returned by OnSuccess/OnFailed hooks.",
		}, []string{"type", "hook"}),
		jobsStalled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_stalled_total",
			Help:      "Jobs redelivered after their lease expired.",
		}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dokku_commands_total",
			Help:      "Dokku commands run over the remote session.",
		}, []string{"command", "success"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dokku_command_duration_seconds",
			Help:      "Duration of Dokku commands.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"command"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped for slow subscribers.",
		}, []string{"topic"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.jobsTotal,
		c.jobDuration,
		c.hookFailures,
		c.jobsStalled,
		c.commandsTotal,
		c.commandDuration,
		c.eventsDropped,
	)

	return c
}

// Handler serves the collector's registry in the Prometheus exposition format.
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *PrometheusCollector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *PrometheusCollector) RecordJob(ctx context.Context, jobType string, outcome string, duration time.Duration) {
	c.jobsTotal.WithLabelValues(jobType, outcome).Inc()
	c.jobDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}

func (c *PrometheusCollector) RecordHookFailure(ctx context.Context, jobType string, hook string) {
	c.hookFailures.WithLabelValues(jobType, hook).Inc()
}

func (c *PrometheusCollector) RecordJobStalled(ctx context.Context, count int) {
	c.jobsStalled.Add(float64(count))
}

func (c *PrometheusCollector) RecordDokkuCommand(ctx context.Context, command string, duration time.Duration, success bool) {
	// Label by the command name only ("git:sync"), never by arguments.
	name := strings.Fields(command)
	label := command
	if len(name) > 0 {
		label = name[0]
	}
	c.commandsTotal.WithLabelValues(label, strconv.FormatBool(success)).Inc()
	c.commandDuration.WithLabelValues(label).Observe(duration.Seconds())
}

func (c *PrometheusCollector) RecordEventDropped(topic string) {
	c.eventsDropped.WithLabelValues(topic).Inc()
}

func (c *PrometheusCollector) Close() error {
	return nil
}
