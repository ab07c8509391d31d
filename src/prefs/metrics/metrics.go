// Package metrics exposes the Prometheus instruments of the preference
// pipeline. Every method is safe on a nil *Metrics so components can run
// without a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "prefs"

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

type Metrics struct {
	composerUpdates  *prometheus.CounterVec
	composerDuration *prometheus.HistogramVec
	recommendations  *prometheus.CounterVec
	recommendLatency *prometheus.HistogramVec
	resultSize       *prometheus.HistogramVec
	indexQueries     *prometheus.CounterVec
	embedCache       *prometheus.CounterVec
}

// New registers the instruments on reg. Passing prometheus.DefaultRegisterer
// exposes them on the default /metrics handler.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		composerUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "composer",
			Name:      "updates_total",
			Help:      "Composite vector updates by domain and outcome.",
		}, []string{"domain", "outcome"}),
		composerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "composer",
			Name:      "update_duration_seconds",
			Help:      "Duration of UpdateEmbedding including encoding and the vector write.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"domain"}),
		recommendations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recommend",
			Name:      "requests_total",
			Help:      "Recommendation requests by base domain and outcome.",
		}, []string{"base_domain", "outcome"}),
		recommendLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "recommend",
			Name:      "duration_seconds",
			Help:      "Duration of a full recommendation across all domains.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"base_domain"}),
		resultSize: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "recommend",
			Name:      "result_size",
			Help:      "Number of items returned per domain.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 10},
		}, []string{"domain"}),
		indexQueries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "queries_total",
			Help:      "Vector index queries by index and outcome.",
		}, []string{"index", "outcome"}),
		embedCache: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embed",
			Name:      "cache_lookups_total",
			Help:      "Embedding cache lookups by result.",
		}, []string{"result"}),
	}
}

// Nop returns nil, which every method accepts.
func Nop() *Metrics { return nil }

func (m *Metrics) ObserveUpdate(domain string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.composerUpdates.WithLabelValues(domain, outcome(err)).Inc()
	m.composerDuration.WithLabelValues(domain).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveRecommend(baseDomain string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.recommendations.WithLabelValues(baseDomain, outcome(err)).Inc()
	m.recommendLatency.WithLabelValues(baseDomain).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveResultSize(domain string, n int) {
	if m == nil {
		return
	}
	m.resultSize.WithLabelValues(domain).Observe(float64(n))
}

func (m *Metrics) IndexQuery(index string, err error) {
	if m == nil {
		return
	}
	m.indexQueries.WithLabelValues(index, outcome(err)).Inc()
}

func (m *Metrics) EmbedCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.embedCache.WithLabelValues(result).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
