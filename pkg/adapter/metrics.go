package adapter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/westonvoglesonger/cortex/pkg/cortexerr"
)

// Metrics holds the Prometheus collectors a Session reports to. A nil
// *Metrics is valid everywhere a Session accepts one: every method on
// it is a no-op on a nil receiver, so metrics collection is opt-in via
// WithMetrics without sprinkling nil checks through session.go.
type Metrics struct {
	windowLatency prometheus.Histogram
	framesSent    prometheus.Counter
	framesRecv    prometheus.Counter
	fatalErrors   *prometheus.CounterVec
}

// NewMetrics builds a Metrics with the three collectors the run loop
// reports to, and registers them against reg. Pass
// prometheus.NewRegistry() for an isolated registry, or
// prometheus.DefaultRegisterer to publish on the global one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		windowLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cortex_adapter_window_latency_seconds",
			Help:    "Kernel Process() latency per window (tend - tstart).",
			Buckets: prometheus.DefBuckets,
		}),
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cortex_adapter_frames_sent_total",
			Help: "Frames sent by the adapter across the session.",
		}),
		framesRecv: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cortex_adapter_frames_received_total",
			Help: "Frames received by the adapter across the session.",
		}),
		fatalErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cortex_adapter_fatal_errors_total",
			Help: "Fatal errors surfaced by the adapter, by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.windowLatency, m.framesSent, m.framesRecv, m.fatalErrors)
	return m
}

func (m *Metrics) observeWindowLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.windowLatency.Observe(d.Seconds())
}

func (m *Metrics) addFramesSent(n float64) {
	if m == nil {
		return
	}
	m.framesSent.Add(n)
}

func (m *Metrics) addFramesRecv(n float64) {
	if m == nil {
		return
	}
	m.framesRecv.Add(n)
}

func (m *Metrics) addFatalError(kind cortexerr.Kind) {
	if m == nil {
		return
	}
	m.fatalErrors.WithLabelValues(kind.String()).Inc()
}
