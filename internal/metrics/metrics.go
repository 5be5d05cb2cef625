// Package metrics exports simulator metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder records tick, trade and price metrics.
type Recorder struct {
	registry     *prometheus.Registry
	ticks        prometheus.Counter
	tickFailures *prometheus.CounterVec
	tickDuration prometheus.Histogram
	trades       *prometheus.CounterVec
	orderErrors  *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	pressure     *prometheus.GaugeVec
	makerPos     *prometheus.GaugeVec
	events       *prometheus.CounterVec
}

// New creates a recorder on its own registry. namespace prefixes every metric.
func New(namespace string) *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Total number of completed tick passes",
		}),
		tickFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_failures_total",
			Help:      "Total number of per-stock tick failures",
		}, []string{"stage"}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Duration of one tick pass in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		trades: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Total number of settled trades",
		}, []string{"ticker", "side"}),
		orderErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_errors_total",
			Help:      "Total number of rejected or failed orders",
		}, []string{"reason"}),
		lastPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_price",
			Help:      "Last price for a ticker",
		}, []string{"ticker"}),
		pressure: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "market_pressure",
			Help:      "Signed market pressure for a ticker",
		}, []string{"ticker"}),
		makerPos: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "market_maker_position",
			Help:      "Market maker position for a ticker",
		}, []string{"ticker"}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "market_events_total",
			Help:      "Total number of fired market events",
		}, []string{"ticker", "kind"}),
	}
}

// RecordTick records one completed tick pass.
func (r *Recorder) RecordTick(d time.Duration) {
	r.ticks.Inc()
	r.tickDuration.Observe(d.Seconds())
}

// RecordTickFailure records a per-stock failure at stage.
func (r *Recorder) RecordTickFailure(stage string) {
	r.tickFailures.WithLabelValues(stage).Inc()
}

// RecordTrade records a settled trade.
func (r *Recorder) RecordTrade(ticker, side string) {
	r.trades.WithLabelValues(ticker, side).Inc()
}

// RecordOrderError records a failed order.
func (r *Recorder) RecordOrderError(reason string) {
	r.orderErrors.WithLabelValues(reason).Inc()
}

// RecordQuote records the post-tick state of a ticker.
func (r *Recorder) RecordQuote(ticker string, price, pressure, makerPosition float64) {
	r.lastPrice.WithLabelValues(ticker).Set(price)
	r.pressure.WithLabelValues(ticker).Set(pressure)
	r.makerPos.WithLabelValues(ticker).Set(makerPosition)
}

// RecordEvent records a fired market event.
func (r *Recorder) RecordEvent(ticker, kind string) {
	r.events.WithLabelValues(ticker, kind).Inc()
}

// Forget drops the per-ticker series of a delisted stock.
func (r *Recorder) Forget(ticker string) {
	r.lastPrice.DeleteLabelValues(ticker)
	r.pressure.DeleteLabelValues(ticker)
	r.makerPos.DeleteLabelValues(ticker)
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler returns the /metrics HTTP handler.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
