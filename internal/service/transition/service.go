package transition

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
	"github.com/vladislavdragonenkov/payconnector/internal/metrics"
)

// Enqueuer принимает переходы к публикации.
type Enqueuer interface {
	Offer(t StateTransition) bool
}

// OfferRecorder записывает факт предложения события в журнал публикаций.
type OfferRecorder interface {
	RecordOffered(ctx context.Context, key domain.EmittedEventKey, doNotRetryBefore *time.Time) error
}

// ServiceOptions задаёт параметры Service.
type ServiceOptions struct {
	Logger  *log.Entry
	Metrics *metrics.TransitionMetrics
	Clock   func() time.Time
}

// Option настраивает Service.
type Option func(*ServiceOptions)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(opts *ServiceOptions) {
		opts.Logger = logger
	}
}

// WithMetrics включает метрики предложений.
func WithMetrics(m *metrics.TransitionMetrics) Option {
	return func(opts *ServiceOptions) {
		opts.Metrics = m
	}
}

// WithClock подменяет источник текущего времени.
func WithClock(clock func() time.Time) Option {
	return func(opts *ServiceOptions) {
		opts.Clock = clock
	}
}

// Service — единственная точка, через которую смена статуса превращается
// в предложение события. Вызывается внутри транзакции, меняющей статус.
type Service struct {
	queue    Enqueuer
	recorder OfferRecorder
	logger   *log.Entry
	metrics  *metrics.TransitionMetrics
	now      func() time.Time
}

// NewService создаёт сервис переходов.
func NewService(queue Enqueuer, recorder OfferRecorder, options ...Option) *Service {
	opts := ServiceOptions{}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "transition-service")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Service{
		queue:    queue,
		recorder: recorder,
		logger:   logger,
		metrics:  opts.Metrics,
		now:      clock,
	}
}

// OfferPaymentTransition предлагает событие для смены статуса платежа from -> to.
// Если ребро не публикуется наружу, ничего не делает.
func (s *Service) OfferPaymentTransition(ctx context.Context, chargeExternalID string, from, to domain.ChargeStatus, row domain.ChargeEvent) error {
	eventType, ok := domain.EventForTransition(from, to)
	if !ok {
		s.logger.WithFields(log.Fields{
			"charge_external_id": chargeExternalID,
			"from":               from,
			"to":                 to,
		}).Debug("no event for charge status change")
		return nil
	}

	t := NewPaymentStateTransition(row.ID, eventType)
	key := domain.EmittedEventKey{
		ResourceType: domain.ResourceTypePayment,
		ExternalID:   chargeExternalID,
		EventType:    eventType,
		Timestamp:    row.UpdatedAt,
	}
	return s.offer(ctx, t, key, nil)
}

// OfferRefundTransition предлагает событие для перевода возврата в target.
// at — HistoryStartDate строки истории, записанной вместе со сменой статуса: по ней
// Resolver восстанавливает тот же ключ события. Нулевой at заменяется текущим временем.
func (s *Service) OfferRefundTransition(ctx context.Context, refund domain.Refund, target domain.RefundStatus, at time.Time) error {
	eventType, ok := domain.RefundEventFor(refund.UserExternalID, target)
	if !ok {
		s.logger.WithFields(log.Fields{
			"refund_external_id": refund.ExternalID,
			"to":                 target,
		}).Debug("no event for refund status change")
		return nil
	}

	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()
	t := NewRefundStateTransition(refund.ExternalID, target, eventType, at)
	key := domain.EmittedEventKey{
		ResourceType: domain.ResourceTypeRefund,
		ExternalID:   refund.ExternalID,
		EventType:    eventType,
		Timestamp:    at,
	}
	return s.offer(ctx, t, key, nil)
}

// OfferTransition — общая форма для повторного запуска публикации (сверка, sweeper).
// doNotRetryBefore ограничивает повторные попытки sweeper до указанного момента.
func (s *Service) OfferTransition(ctx context.Context, t StateTransition, event domain.Event, doNotRetryBefore *time.Time) error {
	if t == nil {
		return fmt.Errorf("offer transition: %w", domain.ErrNoEventForTransition)
	}
	return s.offer(ctx, t, event.Key(), doNotRetryBefore)
}

// offer: ровно одна постановка в очередь, затем ровно одна запись в журнал.
func (s *Service) offer(ctx context.Context, t StateTransition, key domain.EmittedEventKey, doNotRetryBefore *time.Time) error {
	resourceType := string(key.ResourceType)

	if !s.queue.Offer(t) {
		s.recordOffer(resourceType, "rejected")
		return fmt.Errorf("offer %s for %s: %w", t.EventType(), t.Identifier(), domain.ErrTransitionQueueRejected)
	}

	if err := s.recorder.RecordOffered(ctx, key, doNotRetryBefore); err != nil {
		s.recordOffer(resourceType, "record_failed")
		return fmt.Errorf("record offered %s for %s: %w", key.EventType, key.ExternalID, err)
	}

	s.recordOffer(resourceType, "accepted")
	s.logger.WithFields(log.Fields{
		"resource_type": key.ResourceType,
		"external_id":   key.ExternalID,
		"event_type":    t.EventType(),
		"transition_id": t.Identifier(),
		"attempts":      t.Attempts(),
	}).Debug("state transition offered")
	return nil
}

func (s *Service) recordOffer(resourceType, result string) {
	if s.metrics != nil {
		s.metrics.RecordOffer(resourceType, result)
	}
}
