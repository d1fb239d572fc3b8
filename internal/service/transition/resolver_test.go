package transition

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
	"github.com/vladislavdragonenkov/payconnector/internal/storage/memory"
)

type resolverFixture struct {
	charges       domain.ChargeRepository
	chargeEvents  domain.ChargeEventRepository
	refunds       domain.RefundRepository
	refundHistory domain.RefundHistoryRepository
	resolver      *Resolver
}

func newResolverFixture() *resolverFixture {
	f := &resolverFixture{
		charges:       memory.NewChargeRepository(),
		chargeEvents:  memory.NewChargeEventRepository(),
		refunds:       memory.NewRefundRepository(),
		refundHistory: memory.NewRefundHistoryRepository(),
	}
	f.resolver = NewResolver(f.charges, f.chargeEvents, f.refunds, f.refundHistory)
	return f
}

func (f *resolverFixture) chargeWithHistory(t *testing.T, externalID string, statuses ...domain.ChargeStatus) (domain.Charge, []domain.ChargeEvent) {
	t.Helper()
	ctx := context.Background()

	charge, err := f.charges.Create(ctx, domain.Charge{ExternalID: externalID, Status: statuses[len(statuses)-1]})
	require.NoError(t, err)

	base := time.Date(2024, 9, 10, 8, 0, 0, 0, time.UTC)
	rows := make([]domain.ChargeEvent, 0, len(statuses))
	for i, status := range statuses {
		row, err := f.chargeEvents.Append(ctx, domain.ChargeEvent{ChargeID: charge.ID, Status: status, UpdatedAt: base.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
		rows = append(rows, row)
	}
	return charge, rows
}

func TestResolver_ForCharge_LatestMappedChange(t *testing.T) {
	f := newResolverFixture()
	charge, rows := f.chargeWithHistory(t, "ch-1",
		domain.ChargeStatusCreated,
		domain.ChargeStatusEnteringCardDetails,
		domain.ChargeStatusAuthorisationReady,
		domain.ChargeStatusAuthorisationSuccess,
		domain.ChargeStatusCaptureApproved,
		domain.ChargeStatusCaptureReady,
	)

	tr, event, err := f.resolver.ForCharge(context.Background(), charge)
	require.NoError(t, err)

	// CAPTURE APPROVED -> CAPTURE READY внутреннее, последнее публикуемое ребро ведёт в CAPTURE APPROVED
	assert.Equal(t, domain.EventUserApprovedForCapture, tr.EventType())
	assert.Equal(t, rows[4].ID, tr.(PaymentStateTransition).ChargeEventID())
	assert.True(t, event.Timestamp.Equal(rows[4].UpdatedAt))
	assert.Equal(t, "ch-1", event.ResourceExternalID)
}

func TestResolver_ForCharge_FallsBackToCreated(t *testing.T) {
	f := newResolverFixture()
	charge, rows := f.chargeWithHistory(t, "ch-2", domain.ChargeStatusCreated)

	tr, event, err := f.resolver.ForCharge(context.Background(), charge)
	require.NoError(t, err)
	assert.Equal(t, domain.EventPaymentCreated, tr.EventType())
	assert.Equal(t, domain.EventPaymentCreated, event.EventType)
	assert.Equal(t, rows[0].ID, tr.(PaymentStateTransition).ChargeEventID())
}

func TestResolver_ForCharge_NoHistory(t *testing.T) {
	f := newResolverFixture()
	charge, err := f.charges.Create(context.Background(), domain.Charge{ExternalID: "ch-3"})
	require.NoError(t, err)

	_, _, err = f.resolver.ForCharge(context.Background(), charge)
	require.ErrorIs(t, err, domain.ErrNoEventForTransition)
}

func TestResolver_ForRefund_UsesHistoricalActor(t *testing.T) {
	ctx := context.Background()
	f := newResolverFixture()

	refund, err := f.refunds.Create(ctx, domain.Refund{ExternalID: "rf-1", ChargeExternalID: "ch-1", Status: domain.RefundStatusCreated})
	require.NoError(t, err)

	created := time.Date(2024, 9, 11, 8, 0, 0, 0, time.UTC)
	_, err = f.refundHistory.Append(ctx, domain.RefundHistory{ExternalID: "rf-1", Status: domain.RefundStatusCreated, UserExternalID: "user-1", HistoryStartDate: created})
	require.NoError(t, err)

	tr, event, err := f.resolver.ForRefund(ctx, refund)
	require.NoError(t, err)
	assert.Equal(t, domain.EventRefundCreatedByUser, tr.EventType())
	assert.Equal(t, "rf-1-CREATED", tr.Identifier())
	assert.True(t, event.Timestamp.Equal(created))
	assert.Equal(t, "ch-1", event.ParentResourceExternalID)
}

func TestResolver_ForEmittedEvent(t *testing.T) {
	f := newResolverFixture()
	_, rows := f.chargeWithHistory(t, "ch-4",
		domain.ChargeStatusCreated,
		domain.ChargeStatusEnteringCardDetails,
	)

	record := domain.EmittedEvent{EmittedEventKey: domain.EmittedEventKey{
		ResourceType: domain.ResourceTypePayment,
		ExternalID:   "ch-4",
		EventType:    domain.EventPaymentStarted,
		Timestamp:    rows[1].UpdatedAt,
	}}

	tr, event, err := f.resolver.ForEmittedEvent(context.Background(), record)
	require.NoError(t, err)
	assert.Equal(t, rows[1].ID, tr.(PaymentStateTransition).ChargeEventID())
	assert.Equal(t, record.EmittedEventKey, event.Key())

	record.EventType = domain.EventCaptureConfirmed
	_, _, err = f.resolver.ForEmittedEvent(context.Background(), record)
	require.ErrorIs(t, err, domain.ErrNoEventForTransition)
}

func TestResolver_ForEmittedEvent_DerivedPaymentEvents(t *testing.T) {
	f := newResolverFixture()
	_, rows := f.chargeWithHistory(t, "ch-5",
		domain.ChargeStatusCreated,
		domain.ChargeStatusEnteringCardDetails,
		domain.ChargeStatusAuthorisationReady,
		domain.ChargeStatusAuthorisationSuccess,
		domain.ChargeStatusCaptureApproved,
		domain.ChargeStatusCaptured,
	)

	tests := []struct {
		name      string
		eventType domain.EventType
		row       domain.ChargeEvent
		primary   domain.EventType
	}{
		{
			name:      "details entered with authorisation outcome",
			eventType: domain.EventPaymentDetailsEntered,
			row:       rows[3],
			primary:   domain.EventAuthorisationSucceeded,
		},
		{
			name:      "refund availability with capture confirmation",
			eventType: domain.EventRefundAvailabilityUpdated,
			row:       rows[5],
			primary:   domain.EventCaptureConfirmed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := domain.EmittedEvent{EmittedEventKey: domain.EmittedEventKey{
				ResourceType: domain.ResourceTypePayment,
				ExternalID:   "ch-5",
				EventType:    tt.eventType,
				Timestamp:    tt.row.UpdatedAt,
			}}

			tr, event, err := f.resolver.ForEmittedEvent(context.Background(), record)
			require.NoError(t, err)
			assert.Equal(t, tt.primary, tr.EventType())
			assert.Equal(t, tt.row.ID, tr.(PaymentStateTransition).ChargeEventID())
			assert.Equal(t, record.EmittedEventKey, event.Key())
		})
	}

	// PAYMENT_DETAILS_ENTERED не публикуется вместе с PAYMENT_STARTED
	record := domain.EmittedEvent{EmittedEventKey: domain.EmittedEventKey{
		ResourceType: domain.ResourceTypePayment,
		ExternalID:   "ch-5",
		EventType:    domain.EventPaymentDetailsEntered,
		Timestamp:    rows[1].UpdatedAt,
	}}
	_, _, err := f.resolver.ForEmittedEvent(context.Background(), record)
	require.ErrorIs(t, err, domain.ErrNoEventForTransition)
}

func TestResolver_ForEmittedEvent_RefundAvailabilityFromRefundTransition(t *testing.T) {
	ctx := context.Background()
	f := newResolverFixture()
	f.chargeWithHistory(t, "ch-6", domain.ChargeStatusCreated)

	_, err := f.refunds.Create(ctx, domain.Refund{ExternalID: "rf-6", ChargeExternalID: "ch-6", Status: domain.RefundStatusSubmitted})
	require.NoError(t, err)
	created := time.Date(2024, 9, 12, 8, 0, 0, 0, time.UTC)
	submitted := created.Add(time.Minute)
	for _, row := range []domain.RefundHistory{
		{ExternalID: "rf-6", ChargeExternalID: "ch-6", Status: domain.RefundStatusCreated, UserExternalID: "user-6", HistoryStartDate: created},
		{ExternalID: "rf-6", ChargeExternalID: "ch-6", Status: domain.RefundStatusSubmitted, UserExternalID: "user-6", HistoryStartDate: submitted},
	} {
		_, err := f.refundHistory.Append(ctx, row)
		require.NoError(t, err)
	}

	record := domain.EmittedEvent{EmittedEventKey: domain.EmittedEventKey{
		ResourceType: domain.ResourceTypePayment,
		ExternalID:   "ch-6",
		EventType:    domain.EventRefundAvailabilityUpdated,
		Timestamp:    created,
	}}

	tr, event, err := f.resolver.ForEmittedEvent(ctx, record)
	require.NoError(t, err)
	assert.Equal(t, domain.EventRefundCreatedByUser, tr.EventType())
	assert.Equal(t, "rf-6-CREATED", tr.Identifier())
	assert.True(t, tr.(RefundStateTransition).Timestamp().Equal(created))
	assert.Equal(t, record.EmittedEventKey, event.Key())

	record.Timestamp = created.Add(time.Hour)
	_, _, err = f.resolver.ForEmittedEvent(ctx, record)
	require.ErrorIs(t, err, domain.ErrNoEventForTransition)
}
