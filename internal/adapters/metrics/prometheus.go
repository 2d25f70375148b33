// Package metrics exports lifecycle and scheduler activity to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alejandrodnm/attention/internal/domain"
	"github.com/alejandrodnm/attention/internal/ports"
)

// Option configures a Prometheus.
type Option func(*Prometheus)

// WithNamespace sets the metric namespace. Default "attention".
func WithNamespace(ns string) Option {
	return func(p *Prometheus) { p.namespace = ns }
}

// WithRegistry registers the metrics on r instead of a private registry.
func WithRegistry(r *prometheus.Registry) Option {
	return func(p *Prometheus) { p.registry = r }
}

// Prometheus implements ports.Metrics.
type Prometheus struct {
	namespace string
	registry  *prometheus.Registry

	ticks        *prometheus.CounterVec
	tickFailures prometheus.Counter
	tickLatency  *prometheus.HistogramVec
	trades       *prometheus.CounterVec
	tradeVolume  *prometheus.CounterVec
	rejections   *prometheus.CounterVec
	proposals    *prometheus.CounterVec
	resolutions  *prometheus.CounterVec
	openEvents   prometheus.Gauge
}

var _ ports.Metrics = (*Prometheus)(nil)

// New creates the collectors on their own registry, so the default Go
// runtime metrics are not exported unless WithRegistry says so.
func New(opts ...Option) *Prometheus {
	p := &Prometheus{namespace: "attention"}
	for _, opt := range opts {
		opt(p)
	}
	if p.registry == nil {
		p.registry = prometheus.NewRegistry()
	}

	auto := promauto.With(p.registry)
	p.ticks = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: p.namespace,
		Name:      "ticks_total",
		Help:      "Index ticks completed, by market kind and whether every channel failed.",
	}, []string{"kind", "degraded"})
	p.tickFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: p.namespace,
		Name:      "tick_failures_total",
		Help:      "Ticks that failed on storage.",
	})
	p.tickLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: p.namespace,
		Name:      "tick_duration_seconds",
		Help:      "Time spent computing and recording one tick.",
		Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"kind"})
	p.trades = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: p.namespace,
		Name:      "trades_total",
		Help:      "Accepted trades by side.",
	}, []string{"side"})
	p.tradeVolume = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: p.namespace,
		Name:      "trade_volume_total",
		Help:      "Sum of accepted trade amounts by side.",
	}, []string{"side"})
	p.rejections = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: p.namespace,
		Name:      "trade_rejections_total",
		Help:      "Rejected trades by reason.",
	}, []string{"reason"})
	p.proposals = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: p.namespace,
		Name:      "proposals_total",
		Help:      "Proposals by final status.",
	}, []string{"status"})
	p.resolutions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: p.namespace,
		Name:      "resolutions_total",
		Help:      "Resolved events by outcome.",
	}, []string{"resolution"})
	p.openEvents = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: p.namespace,
		Name:      "open_events",
		Help:      "Open events tracked by the scheduler.",
	})
	return p
}

// Handler serves the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Registry exposes the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

func (p *Prometheus) TickCompleted(demo, degraded bool, took time.Duration) {
	kind := kindLabel(demo)
	p.ticks.WithLabelValues(kind, boolLabel(degraded)).Inc()
	p.tickLatency.WithLabelValues(kind).Observe(took.Seconds())
}

func (p *Prometheus) TickFailed() { p.tickFailures.Inc() }

func (p *Prometheus) TradeAccepted(side domain.Side, amount float64) {
	p.trades.WithLabelValues(string(side)).Inc()
	p.tradeVolume.WithLabelValues(string(side)).Add(amount)
}

func (p *Prometheus) TradeRejected(reason string) { p.rejections.WithLabelValues(reason).Inc() }

func (p *Prometheus) EventProposed(status domain.EventStatus) {
	p.proposals.WithLabelValues(string(status)).Inc()
}

func (p *Prometheus) EventResolved(res domain.Resolution) {
	p.resolutions.WithLabelValues(string(res)).Inc()
}

func (p *Prometheus) OpenEvents(n int) { p.openEvents.Set(float64(n)) }

func kindLabel(demo bool) string {
	if demo {
		return "demo"
	}
	return "live"
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
