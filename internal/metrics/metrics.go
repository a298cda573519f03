// Package metrics exposes Prometheus instrumentation for news-ingestor.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "news_ingestor"

// Feed URL results.
const (
	FeedURLPublished = "published"
	FeedURLFailed    = "failed"
)

// Metrics holds every collector the service records into.
type Metrics struct {
	registry *prometheus.Registry

	MessagesTotal  *prometheus.CounterVec
	ScrapeDuration *prometheus.HistogramVec
	FeedURLsTotal  *prometheus.CounterVec
	StoreErrors    prometheus.Counter
	QueueLength    *prometheus.GaugeVec
}

// New registers the collectors on a fresh registry, so tests can build as many as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		MessagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Queue messages handled, by outcome",
		}, []string{"outcome"}),
		ScrapeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scrape_duration_seconds",
			Help:      "Time to fetch and extract one article page",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"publisher"}),
		FeedURLsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_urls_total",
			Help:      "Article URLs extracted from feeds, by publish result",
		}, []string{"result"}),
		StoreErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Article store writes that failed",
		}),
		QueueLength: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_length",
			Help:      "Messages waiting in a queue at the last stats read",
		}, []string{"queue"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordOutcome counts one handled message. A nil receiver is a no-op.
func (m *Metrics) RecordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.MessagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveScrape records how long a scrape for publisher took.
func (m *Metrics) ObserveScrape(publisher string, d time.Duration) {
	if m == nil {
		return
	}
	m.ScrapeDuration.WithLabelValues(publisher).Observe(d.Seconds())
}

// RecordFeedURLs counts the URLs one extraction published and failed to publish.
func (m *Metrics) RecordFeedURLs(published, failed int) {
	if m == nil {
		return
	}
	m.FeedURLsTotal.WithLabelValues(FeedURLPublished).Add(float64(published))
	m.FeedURLsTotal.WithLabelValues(FeedURLFailed).Add(float64(failed))
}

// RecordStoreError counts a failed store write.
func (m *Metrics) RecordStoreError() {
	if m == nil {
		return
	}
	m.StoreErrors.Inc()
}

// SetQueueLength records the last observed length of queue.
func (m *Metrics) SetQueueLength(queue string, n int64) {
	if m == nil {
		return
	}
	m.QueueLength.WithLabelValues(queue).Set(float64(n))
}
