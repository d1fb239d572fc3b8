package events

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
	"github.com/vladislavdragonenkov/payconnector/internal/service/transition"
)

// Factory строит события по переходу, дочитывая актуальное состояние ресурса.
type Factory struct {
	charges       domain.ChargeRepository
	chargeEvents  domain.ChargeEventRepository
	refunds       domain.RefundRepository
	refundHistory domain.RefundHistoryRepository
}

// NewFactory создаёт фабрику событий.
func NewFactory(
	charges domain.ChargeRepository,
	chargeEvents domain.ChargeEventRepository,
	refunds domain.RefundRepository,
	refundHistory domain.RefundHistoryRepository,
) *Factory {
	return &Factory{
		charges:       charges,
		chargeEvents:  chargeEvents,
		refunds:       refunds,
		refundHistory: refundHistory,
	}
}

// Create возвращает основное событие перехода и производные от него события
// в порядке публикации.
func (f *Factory) Create(ctx context.Context, t transition.StateTransition) ([]domain.Event, error) {
	switch tr := t.(type) {
	case transition.PaymentStateTransition:
		return f.paymentEvents(ctx, tr)
	case transition.RefundStateTransition:
		return f.refundEvents(ctx, tr)
	default:
		return nil, fmt.Errorf("create events for %T: %w", t, domain.ErrUnknownResourceType)
	}
}

func (f *Factory) paymentEvents(ctx context.Context, t transition.PaymentStateTransition) ([]domain.Event, error) {
	row, err := f.chargeEvents.FindByID(ctx, t.ChargeEventID())
	if err != nil {
		return nil, fmt.Errorf("load charge event %d: %w", t.ChargeEventID(), err)
	}
	charge, err := f.charges.FindByID(ctx, row.ChargeID)
	if err != nil {
		return nil, fmt.Errorf("load charge %d: %w", row.ChargeID, err)
	}

	event := domain.Event{
		ResourceType:       domain.ResourceTypePayment,
		ResourceExternalID: charge.ExternalID,
		EventType:          t.EventType(),
		Timestamp:          row.UpdatedAt.UTC(),
		Live:               charge.GatewayAccount.Live,
	}

	var out []domain.Event
	switch t.EventType() {
	case domain.EventPaymentCreated:
		event.Details = paymentCreatedDetails(charge)
	case domain.EventCaptureSubmitted:
		history, err := f.chargeEvents.ListByChargeID(ctx, charge.ID)
		if err != nil {
			return nil, fmt.Errorf("load charge history %d: %w", charge.ID, err)
		}
		event.Details = domain.CaptureSubmittedDetails{CaptureSubmittedDate: domain.CaptureSubmittedDate(history)}
	case domain.EventCaptureConfirmed:
		history, err := f.chargeEvents.ListByChargeID(ctx, charge.ID)
		if err != nil {
			return nil, fmt.Errorf("load charge history %d: %w", charge.ID, err)
		}
		event.Details = domain.CaptureConfirmedDetails{
			CapturedDate: domain.CapturedDate(history),
			Fee:          charge.Fee,
			NetAmount:    charge.NetAmount,
		}
	}

	if domain.AuthorisationOutcome(t.EventType()) {
		event.Details = domain.AuthorisationDetails{GatewayTransactionID: charge.GatewayTransactionID}
		if charge.CardDetails != nil || charge.WalletType != nil {
			entered := event
			entered.EventType = domain.EventPaymentDetailsEntered
			entered.Details = paymentDetailsEntered(charge)
			out = append(out, entered)
		}
	}
	out = append(out, event)

	if t.EventType() == domain.EventCaptureConfirmed {
		availability, err := f.refundAvailability(ctx, charge, event.Timestamp)
		if err != nil {
			return nil, err
		}
		out = append(out, availability)
	}
	return out, nil
}

func (f *Factory) refundEvents(ctx context.Context, t transition.RefundStateTransition) ([]domain.Event, error) {
	refund, err := f.refunds.FindByExternalID(ctx, t.RefundExternalID())
	if err != nil {
		return nil, fmt.Errorf("load refund %s: %w", t.RefundExternalID(), err)
	}
	charge, err := f.charges.FindByExternalID(ctx, refund.ChargeExternalID)
	if err != nil {
		return nil, fmt.Errorf("load charge %s: %w", refund.ChargeExternalID, err)
	}
	history, err := f.refundHistory.ListByExternalID(ctx, refund.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("load refund history %s: %w", refund.ExternalID, err)
	}

	userExternalID, userEmail, ok := domain.RefundActor(history)
	if !ok {
		userExternalID, userEmail = refund.UserExternalID, refund.UserEmail
	}

	event := domain.Event{
		ResourceType:             domain.ResourceTypeRefund,
		ResourceExternalID:       refund.ExternalID,
		ParentResourceExternalID: charge.ExternalID,
		EventType:                t.EventType(),
		Timestamp:                t.Timestamp().UTC(),
		Live:                     charge.GatewayAccount.Live,
		Details: domain.RefundDetails{
			Amount:               refund.AmountMinor,
			RefundedBy:           optionalString(userExternalID),
			UserEmail:            optionalString(userEmail),
			GatewayTransactionID: optionalString(refund.GatewayTransactionID),
		},
	}

	availability, err := f.refundAvailability(ctx, charge, event.Timestamp)
	if err != nil {
		return nil, err
	}
	return []domain.Event{event, availability}, nil
}

func (f *Factory) refundAvailability(ctx context.Context, charge domain.Charge, ts time.Time) (domain.Event, error) {
	refunds, err := f.refunds.ListByChargeExternalID(ctx, charge.ExternalID)
	if err != nil {
		return domain.Event{}, fmt.Errorf("load refunds for %s: %w", charge.ExternalID, err)
	}
	summary := domain.SummariseRefunds(charge, refunds)

	return domain.Event{
		ResourceType:       domain.ResourceTypePayment,
		ResourceExternalID: charge.ExternalID,
		EventType:          domain.EventRefundAvailabilityUpdated,
		Timestamp:          ts,
		Live:               charge.GatewayAccount.Live,
		Details: domain.RefundAvailabilityDetails{
			RefundStatus:          summary.Status,
			RefundAmountAvailable: summary.AmountAvailable,
			RefundAmountRefunded:  summary.AmountRefunded,
		},
	}, nil
}

func paymentCreatedDetails(charge domain.Charge) domain.PaymentCreatedDetails {
	return domain.PaymentCreatedDetails{
		Amount:           charge.AmountMinor,
		Description:      charge.Description,
		Reference:        charge.Reference,
		ReturnURL:        charge.ReturnURL,
		Language:         charge.Language,
		Email:            charge.Email,
		GatewayAccountID: charge.GatewayAccount.ID,
		PaymentProvider:  charge.GatewayAccount.PaymentProvider,
		DelayedCapture:   charge.DelayedCapture,
		Moto:             charge.Moto,
		Source:           charge.Source,
	}
}

func paymentDetailsEntered(charge domain.Charge) domain.PaymentDetailsEnteredDetails {
	details := domain.PaymentDetailsEnteredDetails{
		CorporateSurcharge:   charge.CorporateSurcharge,
		TotalAmount:          charge.TotalAmount(),
		GatewayTransactionID: charge.GatewayTransactionID,
		WalletType:           charge.WalletType,
	}
	if card := charge.CardDetails; card != nil {
		details.CardholderName = card.CardholderName
		details.FirstDigits = card.FirstDigits
		details.LastDigits = card.LastDigits
		details.CardBrand = card.CardBrand
		details.CardType = card.CardType
		details.ExpiryDate = card.ExpiryDate
		details.BillingAddress = card.BillingAddress
	}
	return details
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
