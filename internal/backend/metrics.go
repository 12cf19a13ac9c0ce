package backend

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the callbacks a Dispatcher reports through. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	OnDequantize  func(backend, format string, blocks int, took time.Duration)
	OnQuantize    func(backend, format string, blocks int, took time.Duration)
	OnUnavailable func(backend string)
}

// NewMetrics registers the dispatcher collectors on reg. A nil registerer
// yields nil metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	ops := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Namespace: "qtensor",
		Name:      "dispatch_operations_total",
		Help:      "Number of quantize and dequantize calls by backend and format",
	}, []string{"op", "backend", "format"})

	blocks := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Namespace: "qtensor",
		Name:      "dispatch_blocks_total",
		Help:      "Number of blocks processed by backend",
	}, []string{"op", "backend"})

	duration := promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "qtensor",
		Name:      "dispatch_duration_seconds",
		Help:      "Wall time of quantize and dequantize calls",
		Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
	}, []string{"op", "backend"})

	unavailable := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Namespace: "qtensor",
		Name:      "dispatch_unavailable_total",
		Help:      "Number of calls rejected because the requested backend is unavailable",
	}, []string{"backend"})

	record := func(op, backend, format string, n int, took time.Duration) {
		ops.WithLabelValues(op, backend, format).Inc()
		blocks.WithLabelValues(op, backend).Add(float64(n))
		duration.WithLabelValues(op, backend).Observe(took.Seconds())
	}

	return &Metrics{
		OnDequantize: func(backend, format string, n int, took time.Duration) {
			record("dequantize", backend, format, n, took)
		},
		OnQuantize: func(backend, format string, n int, took time.Duration) {
			record("quantize", backend, format, n, took)
		},
		OnUnavailable: func(backend string) {
			unavailable.WithLabelValues(backend).Inc()
		},
	}
}

func (m *Metrics) dequantized(backend Kind, format string, blocks int, took time.Duration) {
	if m != nil && m.OnDequantize != nil {
		m.OnDequantize(backend.String(), format, blocks, took)
	}
}

func (m *Metrics) quantized(backend Kind, format string, blocks int, took time.Duration) {
	if m != nil && m.OnQuantize != nil {
		m.OnQuantize(backend.String(), format, blocks, took)
	}
}

func (m *Metrics) unavailable(backend Kind) {
	if m != nil && m.OnUnavailable != nil {
		m.OnUnavailable(backend.String())
	}
}
