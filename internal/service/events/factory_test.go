package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
	"github.com/vladislavdragonenkov/payconnector/internal/service/transition"
	"github.com/vladislavdragonenkov/payconnector/internal/storage/memory"
)

type fixture struct {
	charges       domain.ChargeRepository
	chargeEvents  domain.ChargeEventRepository
	refunds       domain.RefundRepository
	refundHistory domain.RefundHistoryRepository
	factory       *Factory
}

func newFixture() *fixture {
	f := &fixture{
		charges:       memory.NewChargeRepository(),
		chargeEvents:  memory.NewChargeEventRepository(),
		refunds:       memory.NewRefundRepository(),
		refundHistory: memory.NewRefundHistoryRepository(),
	}
	f.factory = NewFactory(f.charges, f.chargeEvents, f.refunds, f.refundHistory)
	return f
}

func strPtr(v string) *string { return &v }

func int64Ptr(v int64) *int64 { return &v }

func TestFactory_AuthorisationAddsDetailsEntered(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	charge, err := f.charges.Create(ctx, domain.Charge{
		ExternalID:           "ch-1",
		AmountMinor:          1000,
		Status:               domain.ChargeStatusAuthorisationSuccess,
		GatewayTransactionID: strPtr("gw-1"),
		CardDetails:          &domain.CardDetails{LastDigits: strPtr("4242"), CardBrand: strPtr("visa")},
		GatewayAccount:       domain.GatewayAccount{ID: 7, Live: true},
	})
	require.NoError(t, err)

	ts := time.Date(2024, 8, 2, 9, 0, 0, 0, time.UTC)
	row, err := f.chargeEvents.Append(ctx, domain.ChargeEvent{ChargeID: charge.ID, Status: domain.ChargeStatusAuthorisationSuccess, UpdatedAt: ts})
	require.NoError(t, err)

	events, err := f.factory.Create(ctx, transition.NewPaymentStateTransition(row.ID, domain.EventAuthorisationSucceeded))
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, domain.EventPaymentDetailsEntered, events[0].EventType)
	entered, ok := events[0].Details.(domain.PaymentDetailsEnteredDetails)
	require.True(t, ok)
	assert.Equal(t, "4242", *entered.LastDigits)
	assert.Equal(t, int64(1000), entered.TotalAmount)

	assert.Equal(t, domain.EventAuthorisationSucceeded, events[1].EventType)
	assert.Equal(t, "ch-1", events[1].ResourceExternalID)
	assert.True(t, events[1].Timestamp.Equal(ts))
	assert.True(t, events[1].Live)
}

func TestFactory_CaptureConfirmedAddsRefundAvailability(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	charge, err := f.charges.Create(ctx, domain.Charge{
		ExternalID:  "ch-2",
		AmountMinor: 2000,
		Fee:         int64Ptr(30),
		NetAmount:   int64Ptr(1970),
		Status:      domain.ChargeStatusCaptured,
	})
	require.NoError(t, err)

	submitted := time.Date(2024, 8, 2, 9, 0, 0, 0, time.UTC)
	_, err = f.chargeEvents.Append(ctx, domain.ChargeEvent{ChargeID: charge.ID, Status: domain.ChargeStatusCaptureSubmitted, UpdatedAt: submitted})
	require.NoError(t, err)
	row, err := f.chargeEvents.Append(ctx, domain.ChargeEvent{ChargeID: charge.ID, Status: domain.ChargeStatusCaptured, UpdatedAt: submitted.Add(time.Hour)})
	require.NoError(t, err)

	events, err := f.factory.Create(ctx, transition.NewPaymentStateTransition(row.ID, domain.EventCaptureConfirmed))
	require.NoError(t, err)
	require.Len(t, events, 2)

	confirmed, ok := events[0].Details.(domain.CaptureConfirmedDetails)
	require.True(t, ok)
	assert.Equal(t, int64(30), *confirmed.Fee)
	require.NotNil(t, confirmed.CapturedDate)
	assert.True(t, confirmed.CapturedDate.Equal(row.UpdatedAt))

	assert.Equal(t, domain.EventRefundAvailabilityUpdated, events[1].EventType)
	availability := events[1].Details.(domain.RefundAvailabilityDetails)
	assert.Equal(t, domain.RefundAvailabilityAvailable, availability.RefundStatus)
	assert.Equal(t, int64(2000), availability.RefundAmountAvailable)
}

func TestFactory_RefundUsesHistoricalActor(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.charges.Create(ctx, domain.Charge{ExternalID: "ch-3", AmountMinor: 1000, Status: domain.ChargeStatusCaptured})
	require.NoError(t, err)
	_, err = f.refunds.Create(ctx, domain.Refund{ExternalID: "rf-1", ChargeExternalID: "ch-3", AmountMinor: 400, Status: domain.RefundStatusSubmitted})
	require.NoError(t, err)

	created := time.Date(2024, 8, 3, 9, 0, 0, 0, time.UTC)
	_, err = f.refundHistory.Append(ctx, domain.RefundHistory{ExternalID: "rf-1", Status: domain.RefundStatusCreated, UserExternalID: "user-1", UserEmail: "u@example.org", HistoryStartDate: created})
	require.NoError(t, err)

	ts := created.Add(time.Minute)
	events, err := f.factory.Create(ctx, transition.NewRefundStateTransition("rf-1", domain.RefundStatusSubmitted, domain.EventRefundSubmitted, ts))
	require.NoError(t, err)
	require.Len(t, events, 2)

	refundEvent := events[0]
	assert.Equal(t, domain.ResourceTypeRefund, refundEvent.ResourceType)
	assert.Equal(t, "ch-3", refundEvent.ParentResourceExternalID)
	assert.True(t, refundEvent.Timestamp.Equal(ts))
	details := refundEvent.Details.(domain.RefundDetails)
	require.NotNil(t, details.RefundedBy)
	assert.Equal(t, "user-1", *details.RefundedBy)
	assert.Equal(t, "u@example.org", *details.UserEmail)

	availability := events[1].Details.(domain.RefundAvailabilityDetails)
	assert.Equal(t, int64(600), availability.RefundAmountAvailable)
}

func TestFactory_UnknownChargeEvent(t *testing.T) {
	f := newFixture()

	_, err := f.factory.Create(context.Background(), transition.NewPaymentStateTransition(404, domain.EventCaptureConfirmed))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrChargeEventNotFound))
}
