package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector 业务指标，方法对 nil 接收者安全，测试中可直接传 nil
type Collector struct {
	webhookEvents     *prometheus.CounterVec
	webhookFailures   *prometheus.CounterVec
	playbackDecisions *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
	checkoutResults   *prometheus.CounterVec
	ingestDuration    prometheus.Histogram
	expiredSwept      prometheus.Counter
}

// NewCollector 在 reg 上注册全部指标
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		webhookEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_webhook_events_total",
			Help: "Payment processor events by type and outcome",
		}, []string{"event_type", "outcome"}),

		webhookFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_webhook_failures_total",
			Help: "Payment processor events rejected or failed, by reason",
		}, []string{"reason"}),

		playbackDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_playback_decisions_total",
			Help: "Playback authorization decisions",
		}, []string{"decision"}),

		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_entitlement_cache_lookups_total",
			Help: "Entitlement cache lookups by result",
		}, []string{"result"}),

		checkoutResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_checkout_sessions_total",
			Help: "Checkout session creation attempts by result",
		}, []string{"result"}),

		ingestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pulse_webhook_ingest_duration_seconds",
			Help:    "Time spent ingesting one payment processor event",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}),

		expiredSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "pulse_entitlements_expired_swept_total",
			Help: "Entitlements materialized as expired by the sweep",
		}),
	}
}

func (c *Collector) WebhookEvent(eventType, outcome string) {
	if c == nil {
		return
	}
	c.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (c *Collector) WebhookFailure(reason string) {
	if c == nil {
		return
	}
	c.webhookFailures.WithLabelValues(reason).Inc()
}

func (c *Collector) IngestDuration(seconds float64) {
	if c == nil {
		return
	}
	c.ingestDuration.Observe(seconds)
}

func (c *Collector) PlaybackDecision(decision string) {
	if c == nil {
		return
	}
	c.playbackDecisions.WithLabelValues(decision).Inc()
}

// CacheLookup result 取 hit 或 miss
func (c *Collector) CacheLookup(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

func (c *Collector) CheckoutResult(result string) {
	if c == nil {
		return
	}
	c.checkoutResults.WithLabelValues(result).Inc()
}

func (c *Collector) ExpiredSwept(n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.expiredSwept.Add(float64(n))
}
