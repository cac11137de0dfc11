// Package metrics exposes Prometheus counters for flows, catalog calls and the
// Telegram sender, served by a small chi router.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "filmbot"

// Collector owns a private registry so tests and multiple bots do not clash.
type Collector struct {
	registry *prometheus.Registry

	flowsStarted  *prometheus.CounterVec
	flowsFinished *prometheus.CounterVec
	storeCalls    *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec
	handlers      *prometheus.CounterVec
}

// New registers the bot metrics plus the Go runtime and process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		flowsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flows_started_total",
			Help:      "Conversation flows entered, by flow.",
		}, []string{"flow"}),
		flowsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flows_finished_total",
			Help:      "Conversation flows torn down, by flow and outcome.",
		}, []string{"flow", "outcome"}),
		storeCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_calls_total",
			Help:      "Catalog store calls, by operation and status.",
		}, []string{"op", "status"}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_call_duration_seconds",
			Help:      "Catalog store call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		handlers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_total",
			Help:      "Telegram updates handled, by handler and status.",
		}, []string{"handler", "status"}),
	}
	c.registry.MustRegister(
		c.flowsStarted,
		c.flowsFinished,
		c.storeCalls,
		c.storeDuration,
		c.handlers,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the underlying registry for the HTTP handler and tests.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// FlowStarted counts a flow entry.
func (c *Collector) FlowStarted(flow string) {
	c.flowsStarted.WithLabelValues(flow).Inc()
}

// FlowFinished counts a flow teardown.
func (c *Collector) FlowFinished(flow, outcome string) {
	c.flowsFinished.WithLabelValues(flow, outcome).Inc()
}

// StoreCall records one catalog operation.
func (c *Collector) StoreCall(op string, err error, took time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.storeCalls.WithLabelValues(op, status).Inc()
	c.storeDuration.WithLabelValues(op).Observe(took.Seconds())
}

// Handled counts one routed update.
func (c *Collector) Handled(handler, status string) {
	c.handlers.WithLabelValues(handler, status).Inc()
}

// WatchSenderErrors exports the Telegram sender failure count read from fn.
func (c *Collector) WatchSenderErrors(fn func() uint64) {
	c.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sender_failures_total",
		Help:      "Outbound Telegram calls that failed after retries.",
	}, func() float64 { return float64(fn()) }))
}
