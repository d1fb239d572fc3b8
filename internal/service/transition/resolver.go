package transition

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
)

// Resolver восстанавливает переход и ключ события из сохранённого состояния ресурса.
// Очередь не персистентна, поэтому сверка и sweeper получают переходы только отсюда.
type Resolver struct {
	charges       domain.ChargeRepository
	chargeEvents  domain.ChargeEventRepository
	refunds       domain.RefundRepository
	refundHistory domain.RefundHistoryRepository
}

// NewResolver создаёт Resolver.
func NewResolver(
	charges domain.ChargeRepository,
	chargeEvents domain.ChargeEventRepository,
	refunds domain.RefundRepository,
	refundHistory domain.RefundHistoryRepository,
) *Resolver {
	return &Resolver{
		charges:       charges,
		chargeEvents:  chargeEvents,
		refunds:       refunds,
		refundHistory: refundHistory,
	}
}

// ForCharge возвращает событие последней публикуемой смены статуса платежа,
// а если такой нет — PAYMENT_CREATED по первой строке истории.
func (r *Resolver) ForCharge(ctx context.Context, charge domain.Charge) (StateTransition, domain.Event, error) {
	history, err := r.chargeEvents.ListByChargeID(ctx, charge.ID)
	if err != nil {
		return nil, domain.Event{}, fmt.Errorf("load charge history %d: %w", charge.ID, err)
	}
	if len(history) == 0 {
		return nil, domain.Event{}, fmt.Errorf("charge %s has no status history: %w", charge.ExternalID, domain.ErrNoEventForTransition)
	}

	row, eventType := history[0], domain.EventPaymentCreated
	for i := len(history) - 1; i >= 1; i-- {
		if event, ok := domain.EventForTransition(history[i-1].Status, history[i].Status); ok {
			row, eventType = history[i], event
			break
		}
	}

	return NewPaymentStateTransition(row.ID, eventType), paymentEvent(charge, eventType, row.UpdatedAt), nil
}

// ForRefund возвращает событие текущего статуса возврата с инициатором из истории.
func (r *Resolver) ForRefund(ctx context.Context, refund domain.Refund) (StateTransition, domain.Event, error) {
	history, err := r.refundHistory.ListByExternalID(ctx, refund.ExternalID)
	if err != nil {
		return nil, domain.Event{}, fmt.Errorf("load refund history %s: %w", refund.ExternalID, err)
	}

	userExternalID, _, ok := domain.RefundActor(history)
	if !ok {
		userExternalID = refund.UserExternalID
	}
	eventType, ok := domain.RefundEventFor(userExternalID, refund.Status)
	if !ok {
		return nil, domain.Event{}, fmt.Errorf("refund %s in status %q: %w", refund.ExternalID, refund.Status, domain.ErrNoEventForTransition)
	}

	ts := refund.CreatedAt
	for _, row := range history {
		if row.Status == refund.Status {
			ts = row.HistoryStartDate
		}
	}
	ts = ts.UTC()

	t := NewRefundStateTransition(refund.ExternalID, refund.Status, eventType, ts)
	return t, refundEvent(refund, eventType, ts), nil
}

// ForEmittedEvent восстанавливает переход для записи, предложенной, но не опубликованной.
func (r *Resolver) ForEmittedEvent(ctx context.Context, record domain.EmittedEvent) (StateTransition, domain.Event, error) {
	switch record.ResourceType {
	case domain.ResourceTypePayment:
		return r.paymentForRecord(ctx, record)
	case domain.ResourceTypeRefund:
		return r.refundForRecord(ctx, record)
	default:
		return nil, domain.Event{}, fmt.Errorf("resolve %q: %w", record.ResourceType, domain.ErrUnknownResourceType)
	}
}

// paymentForRecord ищет строку истории, смена статуса в которой породила событие записи.
// Производные события (PAYMENT_DETAILS_ENTERED, REFUND_AVAILABILITY_UPDATED) разрешаются
// в переход, вместе с которым они публикуются.
func (r *Resolver) paymentForRecord(ctx context.Context, record domain.EmittedEvent) (StateTransition, domain.Event, error) {
	charge, err := r.charges.FindByExternalID(ctx, record.ExternalID)
	if err != nil {
		return nil, domain.Event{}, fmt.Errorf("load charge %s: %w", record.ExternalID, err)
	}
	history, err := r.chargeEvents.ListByChargeID(ctx, charge.ID)
	if err != nil {
		return nil, domain.Event{}, fmt.Errorf("load charge history %d: %w", charge.ID, err)
	}

	for i, row := range history {
		if !row.UpdatedAt.Equal(record.Timestamp) {
			continue
		}
		primary, ok := rowEvent(history, i)
		if !ok {
			continue
		}
		if primary == record.EventType || publishedWith(primary, record.EventType) {
			return NewPaymentStateTransition(row.ID, primary), paymentEvent(charge, record.EventType, row.UpdatedAt), nil
		}
	}

	if record.EventType == domain.EventRefundAvailabilityUpdated {
		return r.refundAvailabilityForRecord(ctx, charge, record)
	}
	return nil, domain.Event{}, fmt.Errorf("charge %s has no row for %s: %w", record.ExternalID, record.EventType, domain.ErrNoEventForTransition)
}

// refundAvailabilityForRecord находит переход возврата, после которого было опубликовано
// REFUND_AVAILABILITY_UPDATED платежа.
func (r *Resolver) refundAvailabilityForRecord(ctx context.Context, charge domain.Charge, record domain.EmittedEvent) (StateTransition, domain.Event, error) {
	refunds, err := r.refunds.ListByChargeExternalID(ctx, charge.ExternalID)
	if err != nil {
		return nil, domain.Event{}, fmt.Errorf("load refunds for %s: %w", charge.ExternalID, err)
	}

	for _, refund := range refunds {
		history, err := r.refundHistory.ListByExternalID(ctx, refund.ExternalID)
		if err != nil {
			return nil, domain.Event{}, fmt.Errorf("load refund history %s: %w", refund.ExternalID, err)
		}
		userExternalID, _, ok := domain.RefundActor(history)
		if !ok {
			userExternalID = refund.UserExternalID
		}

		for _, row := range history {
			if !row.HistoryStartDate.Equal(record.Timestamp) {
				continue
			}
			eventType, ok := domain.RefundEventFor(userExternalID, row.Status)
			if !ok {
				continue
			}
			ts := row.HistoryStartDate.UTC()
			return NewRefundStateTransition(refund.ExternalID, row.Status, eventType, ts), paymentEvent(charge, record.EventType, ts), nil
		}
	}
	return nil, domain.Event{}, fmt.Errorf("charge %s has no transition for %s: %w", charge.ExternalID, record.EventType, domain.ErrNoEventForTransition)
}

// rowEvent — событие i-й строки истории: PAYMENT_CREATED для первой, иначе по ребру статусов.
func rowEvent(history []domain.ChargeEvent, i int) (domain.EventType, bool) {
	if i == 0 {
		return domain.EventPaymentCreated, true
	}
	return domain.EventForTransition(history[i-1].Status, history[i].Status)
}

// publishedWith сообщает, публикуется ли derived вместе с основным событием primary.
func publishedWith(primary, derived domain.EventType) bool {
	switch derived {
	case domain.EventPaymentDetailsEntered:
		return domain.AuthorisationOutcome(primary)
	case domain.EventRefundAvailabilityUpdated:
		return primary == domain.EventCaptureConfirmed
	default:
		return false
	}
}

func (r *Resolver) refundForRecord(ctx context.Context, record domain.EmittedEvent) (StateTransition, domain.Event, error) {
	status, ok := domain.RefundStatusForEvent(record.EventType)
	if !ok {
		return nil, domain.Event{}, fmt.Errorf("refund event %s: %w", record.EventType, domain.ErrNoEventForTransition)
	}
	refund, err := r.refunds.FindByExternalID(ctx, record.ExternalID)
	if err != nil {
		return nil, domain.Event{}, fmt.Errorf("load refund %s: %w", record.ExternalID, err)
	}

	ts := record.Timestamp.UTC()
	t := NewRefundStateTransition(refund.ExternalID, status, record.EventType, ts)
	return t, refundEvent(refund, record.EventType, ts), nil
}

func paymentEvent(charge domain.Charge, eventType domain.EventType, ts time.Time) domain.Event {
	return domain.Event{
		ResourceType:       domain.ResourceTypePayment,
		ResourceExternalID: charge.ExternalID,
		EventType:          eventType,
		Timestamp:          ts.UTC(),
		Live:               charge.GatewayAccount.Live,
	}
}

func refundEvent(refund domain.Refund, eventType domain.EventType, ts time.Time) domain.Event {
	return domain.Event{
		ResourceType:             domain.ResourceTypeRefund,
		ResourceExternalID:       refund.ExternalID,
		ParentResourceExternalID: refund.ChargeExternalID,
		EventType:                eventType,
		Timestamp:                ts,
	}
}
