// Package metrics collects and exposes Prometheus metrics for the import pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Item failure stages
const (
	StageFetch   = "fetch"
	StageParse   = "parse"
	StagePersist = "persist"
)

// MetricsCollector is what the pipeline records into
type MetricsCollector interface {
	RecordJobSubmitted(totalPosts int)
	RecordJobFinalized(status string)
	RecordPoolStarted()
	RecordPoolStopped()
	RecordItemSucceeded()
	RecordItemFailed(stage string)
	RecordFetchLatency(duration time.Duration)
	RecordItemDuration(duration time.Duration)
}

// Collector is the Prometheus implementation of MetricsCollector
type Collector struct {
	jobsSubmitted prometheus.Counter
	postsReceived prometheus.Counter
	jobsFinalized *prometheus.CounterVec
	poolsRunning  prometheus.Gauge
	items         *prometheus.CounterVec
	fetchLatency  prometheus.Histogram
	itemDuration  prometheus.Histogram
}

// NewCollector creates a Collector and registers it with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recipe_import_jobs_submitted_total",
			Help: "Bulk import jobs accepted",
		}),
		postsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recipe_import_posts_submitted_total",
			Help: "Post ids received across all bulk import jobs",
		}),
		jobsFinalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recipe_import_jobs_finalized_total",
			Help: "Jobs that reached a terminal status",
		}, []string{"status"}),
		poolsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recipe_import_pools_running",
			Help: "Worker pools currently draining a job",
		}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recipe_import_items_total",
			Help: "Processed import items by outcome and failing stage",
		}, []string{"outcome", "stage"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "recipe_import_fetch_latency_seconds",
			Help:    "Latency of post fetches",
			Buckets: prometheus.DefBuckets,
		}),
		itemDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "recipe_import_item_duration_seconds",
			Help:    "Time from claim to recorded outcome",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.jobsSubmitted,
		c.postsReceived,
		c.jobsFinalized,
		c.poolsRunning,
		c.items,
		c.fetchLatency,
		c.itemDuration,
	)

	return c
}

func (c *Collector) RecordJobSubmitted(totalPosts int) {
	c.jobsSubmitted.Inc()
	c.postsReceived.Add(float64(totalPosts))
}

func (c *Collector) RecordJobFinalized(status string) {
	c.jobsFinalized.WithLabelValues(status).Inc()
}

func (c *Collector) RecordPoolStarted() {
	c.poolsRunning.Inc()
}

func (c *Collector) RecordPoolStopped() {
	c.poolsRunning.Dec()
}

func (c *Collector) RecordItemSucceeded() {
	c.items.WithLabelValues("succeeded", "").Inc()
}

func (c *Collector) RecordItemFailed(stage string) {
	c.items.WithLabelValues("failed", stage).Inc()
}

func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

func (c *Collector) RecordItemDuration(duration time.Duration) {
	c.itemDuration.Observe(duration.Seconds())
}

// Nop discards every measurement
type Nop struct{}

func (Nop) RecordJobSubmitted(int)           {}
func (Nop) RecordJobFinalized(string)        {}
func (Nop) RecordPoolStarted()               {}
func (Nop) RecordPoolStopped()               {}
func (Nop) RecordItemSucceeded()             {}
func (Nop) RecordItemFailed(string)          {}
func (Nop) RecordFetchLatency(time.Duration) {}
func (Nop) RecordItemDuration(time.Duration) {}

// Handler returns the scrape handler for gatherer
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NewServeMux serves the scrape handler at path
func NewServeMux(gatherer prometheus.Gatherer, path string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(path, Handler(gatherer))
	return mux
}
