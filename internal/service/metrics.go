package service

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OperationMetrics counts registry operations by outcome.
type OperationMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewOperationMetrics registers the registry operation collectors on reg.
func NewOperationMetrics(reg prometheus.Registerer) (*OperationMetrics, error) {
	m := &OperationMetrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "registry_operations_total",
				Help: "Total number of registry operations by result.",
			},
			[]string{"operation", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "registry_operation_duration_seconds",
				Help:    "Registry operation latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
	for _, c := range []prometheus.Collector{m.operations, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *OperationMetrics) observe(op, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, result).Inc()
	m.duration.WithLabelValues(op).Observe(took.Seconds())
}

// resultLabel is "ok" for success and the lower-cased failure code otherwise.
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(Code(err))
}
