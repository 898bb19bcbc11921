package observability

import (
	"time"

	"github.com/boddenberg/payping-sync-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the sync core.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	gatewayDuration     *prometheus.HistogramVec
	externalErrors      *prometheus.CounterVec
	cacheHits           *prometheus.CounterVec
	cacheMisses         *prometheus.CounterVec
	actionsDispatched   *prometheus.CounterVec
	pushesDelivered     *prometheus.CounterVec
	staleDropped        *prometheus.CounterVec
	activeSubscriptions *prometheus.GaugeVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		gatewayDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "payping_gateway_duration_seconds",
				Help:    "Duration of remote gateway calls by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payping_external_errors_total",
				Help: "Total errors from the remote store.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payping_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payping_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		actionsDispatched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payping_actions_dispatched_total",
				Help: "Actions applied by the local store reducer.",
			},
			[]string{"action"},
		),
		pushesDelivered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payping_pushes_delivered_total",
				Help: "Collection snapshots delivered by push channels.",
			},
			[]string{"collection"},
		),
		staleDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payping_stale_results_dropped_total",
				Help: "Async results discarded because the principal changed.",
			},
			[]string{"action"},
		),
		activeSubscriptions: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "payping_active_subscriptions",
				Help: "Open push channels by collection.",
			},
			[]string{"collection"},
		),
	}
}

// RecordGatewayDuration records the duration of a gateway operation.
func (m *Metrics) RecordGatewayDuration(operation string, d time.Duration) {
	m.gatewayDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

func (m *Metrics) IncrAction(action string) {
	m.actionsDispatched.WithLabelValues(action).Inc()
}

func (m *Metrics) IncrPush(collection domain.Collection) {
	m.pushesDelivered.WithLabelValues(string(collection)).Inc()
}

func (m *Metrics) IncrStaleDropped(action string) {
	m.staleDropped.WithLabelValues(action).Inc()
}

// SubscriptionOpened and SubscriptionClosed track open push channels.
func (m *Metrics) SubscriptionOpened(collection domain.Collection) {
	m.activeSubscriptions.WithLabelValues(string(collection)).Inc()
}

func (m *Metrics) SubscriptionClosed(collection domain.Collection) {
	m.activeSubscriptions.WithLabelValues(string(collection)).Dec()
}

// ActiveSubscriptions returns the number of open channels for a collection.
func (m *Metrics) ActiveSubscriptions(collection domain.Collection) float64 {
	g := m.activeSubscriptions.WithLabelValues(string(collection))
	out := &dto.Metric{}
	if err := g.Write(out); err != nil || out.Gauge == nil {
		return 0
	}
	return out.Gauge.GetValue()
}

// GetSyncSnapshot returns cumulative sync metrics suitable for the
// GET /v1/metrics/sync endpoint.
func (m *Metrics) GetSyncSnapshot() *domain.SyncMetrics {
	hits := sumCounterVec(m.cacheHits)
	misses := sumCounterVec(m.cacheMisses)

	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &domain.SyncMetrics{
		ActionsDispatched: sumCounterVec(m.actionsDispatched),
		PushesDelivered:   sumCounterVec(m.pushesDelivered),
		StaleDropped:      sumCounterVec(m.staleDropped),
		ExternalErrors:    sumCounterVec(m.externalErrors),
		CacheHitRate:      hitRate,
	}
}

// sumCounterVec adds up the current value of every label combination of cv.
func sumCounterVec(cv *prometheus.CounterVec) float64 {
	ch := make(chan prometheus.Metric, 32)
	go func() {
		cv.Collect(ch)
		close(ch)
	}()

	total := float64(0)
	for metric := range ch {
		m := &dto.Metric{}
		if err := metric.Write(m); err != nil {
			continue
		}
		if m.Counter != nil && m.Counter.Value != nil {
			total += *m.Counter.Value
		}
	}
	return total
}
