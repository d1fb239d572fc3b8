package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// TransitionMetrics содержит метрики предложения и публикации событий.
type TransitionMetrics struct {
	offers     *prometheus.CounterVec
	emissions  *prometheus.CounterVec
	queueDepth prometheus.Gauge
}

// NewTransitionMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewTransitionMetrics() *TransitionMetrics {
	return NewTransitionMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewTransitionMetricsWithRegisterer регистрирует метрики в переданном registerer.
func NewTransitionMetricsWithRegisterer(registerer prometheus.Registerer) *TransitionMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &TransitionMetrics{
		offers: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "connector_transition_offers_total",
			Help: "Total number of state transition offers grouped by resource type and result.",
		}, []string{"resource_type", "result"}),
		emissions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "connector_event_emissions_total",
			Help: "Total number of event emission attempts grouped by event type and result.",
		}, []string{"event_type", "result"}),
		queueDepth: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "connector_transition_queue_depth",
			Help: "Current number of transitions waiting in the delay queue.",
		}),
	}
}

// RecordOffer учитывает результат предложения перехода.
func (m *TransitionMetrics) RecordOffer(resourceType, result string) {
	m.offers.WithLabelValues(resourceType, result).Inc()
}

// RecordEmission учитывает результат публикации события.
func (m *TransitionMetrics) RecordEmission(eventType, result string) {
	m.emissions.WithLabelValues(eventType, result).Inc()
}

// SetQueueDepth обновляет размер очереди переходов.
func (m *TransitionMetrics) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}
