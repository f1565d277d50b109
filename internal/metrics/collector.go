package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Collector collects the metrics of one backup run. Every series describes
// the last run of its Pushgateway group; the group keeps whatever a run
// does not push.
type Collector struct {
	registry      *prometheus.Registry
	lastStatus    *prometheus.GaugeVec
	polls         prometheus.Gauge
	jobProgress   prometheus.Gauge
	duration      prometheus.Gauge
	artifactBytes prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

// New creates a new metrics collector on its own registry. The product
// is not a label: it becomes the Pushgateway grouping key.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		lastStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "atlasbackup_last_run_status",
				Help: "Outcome of the last backup run (1 for the reported status)",
			},
			[]string{"status"},
		),
		polls: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "atlasbackup_last_run_polls",
				Help: "Number of progress requests made by the last run",
			},
		),
		jobProgress: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "atlasbackup_job_progress_percent",
				Help: "Last progress reported by the vendor",
			},
		),
		duration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "atlasbackup_last_run_duration_seconds",
				Help: "Time taken by the last backup run",
			},
		),
		artifactBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "atlasbackup_artifact_bytes",
				Help: "Size of the last downloaded backup archive",
			},
		),
		lastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "atlasbackup_last_success_timestamp_seconds",
				Help: "Unix time of the last successful backup",
			},
		),
	}

	// artifactBytes and lastSuccess are registered once they hold a value,
	// so a failed run leaves the pushed ones untouched.
	c.registry.MustRegister(
		c.lastStatus,
		c.polls,
		c.jobProgress,
		c.duration,
	)

	return c
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObservePoll records one progress response
func (c *Collector) ObservePoll(progress int) {
	c.polls.Inc()
	c.jobProgress.Set(float64(progress))
}

// SetArtifactBytes records the archive size
func (c *Collector) SetArtifactBytes(size int64) {
	c.artifactBytes.Set(float64(size))
	c.enable(c.artifactBytes)
}

// ObserveRun records a finished run
func (c *Collector) ObserveRun(status string, duration time.Duration) {
	c.lastStatus.Reset()
	c.lastStatus.WithLabelValues(status).Set(1)
	c.duration.Set(duration.Seconds())
	if status == "completed" {
		c.lastSuccess.SetToCurrentTime()
		c.enable(c.lastSuccess)
	}
}

func (c *Collector) enable(col prometheus.Collector) {
	if err := c.registry.Register(col); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			panic(err)
		}
	}
}

// Push adds the collected metrics to a Prometheus Pushgateway group. POST
// replaces only the metric names pushed by this run.
func (c *Collector) Push(ctx context.Context, url, job, product string) error {
	err := push.New(url, job).
		Gatherer(c.registry).
		Grouping("product", product).
		AddContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
