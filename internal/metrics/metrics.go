// Package metrics exposes scheduler counters to Prometheus.
package metrics

import (
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives scheduler observations. The zero-cost NopRecorder is used
// when metrics are disabled.
type Recorder interface {
	Command(name string)
	Tick()
	SessionEnd(kind string)
	PersistFailure()
	BridgeDropped()
	ListenerAttached(attached bool)
}

type NopRecorder struct{}

func (NopRecorder) Command(string)        {}
func (NopRecorder) Tick()                 {}
func (NopRecorder) SessionEnd(string)     {}
func (NopRecorder) PersistFailure()       {}
func (NopRecorder) BridgeDropped()        {}
func (NopRecorder) ListenerAttached(bool) {}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	registry        *prom.Registry
	commands        *prom.CounterVec
	ticks           prom.Counter
	sessionEnds     *prom.CounterVec
	persistFailures prom.Counter
	bridgeDropped   prom.Counter
	listener        prom.Gauge
}

// NewPrometheusRecorder constructs and registers the metrics on reg (a fresh
// registry when nil).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{registry: reg}
	pr.commands = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "pomotimer",
		Name:      "commands_total",
		Help:      "Commands applied by the scheduler",
	}, []string{"command"})
	pr.ticks = prom.NewCounter(prom.CounterOpts{
		Namespace: "pomotimer",
		Name:      "ticks_total",
		Help:      "Ticks that advanced a running session",
	})
	pr.sessionEnds = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "pomotimer",
		Name:      "session_ends_total",
		Help:      "Countdowns that reached zero, by ended segment",
	}, []string{"kind"})
	pr.persistFailures = prom.NewCounter(prom.CounterOpts{
		Namespace: "pomotimer",
		Name:      "persist_failures_total",
		Help:      "Failed write-throughs to the state store",
	})
	pr.bridgeDropped = prom.NewCounter(prom.CounterOpts{
		Namespace: "pomotimer",
		Name:      "bridge_dropped_total",
		Help:      "Snapshots discarded because the listener fell behind",
	})
	pr.listener = prom.NewGauge(prom.GaugeOpts{
		Namespace: "pomotimer",
		Name:      "listener_attached",
		Help:      "1 while a presentation listener is attached",
	})
	reg.MustRegister(pr.commands, pr.ticks, pr.sessionEnds, pr.persistFailures, pr.bridgeDropped, pr.listener)
	return pr
}

func (pr *PrometheusRecorder) Command(name string)    { pr.commands.WithLabelValues(name).Inc() }
func (pr *PrometheusRecorder) Tick()                  { pr.ticks.Inc() }
func (pr *PrometheusRecorder) SessionEnd(kind string) { pr.sessionEnds.WithLabelValues(kind).Inc() }
func (pr *PrometheusRecorder) PersistFailure()        { pr.persistFailures.Inc() }
func (pr *PrometheusRecorder) BridgeDropped()         { pr.bridgeDropped.Inc() }

func (pr *PrometheusRecorder) ListenerAttached(attached bool) {
	if attached {
		pr.listener.Set(1)
		return
	}
	pr.listener.Set(0)
}

// Handler serves the recorder's registry.
func (pr *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(pr.registry, promhttp.HandlerOpts{})
}
