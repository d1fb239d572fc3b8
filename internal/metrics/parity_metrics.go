package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ParityMetrics содержит метрики сверки с ledger.
type ParityMetrics struct {
	checked      *prometheus.CounterVec
	reoffered    *prometheus.CounterVec
	inconclusive *prometheus.CounterVec
	runs         *prometheus.CounterVec
	runDuration  prometheus.Histogram
}

// NewParityMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewParityMetrics() *ParityMetrics {
	return NewParityMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewParityMetricsWithRegisterer регистрирует метрики в переданном registerer.
func NewParityMetricsWithRegisterer(registerer prometheus.Registerer) *ParityMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ParityMetrics{
		checked: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "connector_parity_checked_total",
			Help: "Total number of records checked against the ledger grouped by resource type and parity status.",
		}, []string{"resource_type", "status"}),
		reoffered: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "connector_parity_reoffered_total",
			Help: "Total number of transitions re-offered after drift grouped by resource type and result.",
		}, []string{"resource_type", "result"}),
		inconclusive: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "connector_parity_inconclusive_total",
			Help: "Total number of records left unchanged because the ledger lookup failed.",
		}, []string{"resource_type"}),
		runs: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "connector_parity_runs_total",
			Help: "Total number of parity runs grouped by result.",
		}, []string{"result"}),
		runDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "connector_parity_run_duration_seconds",
			Help:    "Duration of parity runs in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900, 1800},
		}),
	}
}

// RecordChecked учитывает вычисленный статус сверки.
func (m *ParityMetrics) RecordChecked(resourceType, status string) {
	m.checked.WithLabelValues(resourceType, status).Inc()
}

// RecordReoffer учитывает повторное предложение события.
func (m *ParityMetrics) RecordReoffer(resourceType, result string) {
	m.reoffered.WithLabelValues(resourceType, result).Inc()
}

// RecordInconclusive учитывает запись, для которой ledger не дал ответа.
func (m *ParityMetrics) RecordInconclusive(resourceType string) {
	m.inconclusive.WithLabelValues(resourceType).Inc()
}

// RecordRun учитывает завершение прогона сверки.
func (m *ParityMetrics) RecordRun(result string, duration time.Duration) {
	m.runs.WithLabelValues(result).Inc()
	m.runDuration.Observe(duration.Seconds())
}
