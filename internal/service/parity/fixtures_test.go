package parity

import (
	"time"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
)

var chargeCreatedAt = time.Date(2024, 9, 10, 8, 0, 0, 0, time.UTC)

func strPtr(v string) *string { return &v }
func int64Ptr(v int64) *int64 { return &v }

// capturedCharge возвращает списанный платёж с историей CREATED -> CAPTURE SUBMITTED -> CAPTURED.
func capturedCharge(externalID string) (domain.Charge, []domain.ChargeEvent) {
	charge := domain.Charge{
		ExternalID:           externalID,
		AmountMinor:          1000,
		Fee:                  int64Ptr(5),
		NetAmount:            int64Ptr(995),
		Status:               domain.ChargeStatusCaptured,
		Description:          "Passport renewal",
		Reference:            "ref-" + externalID,
		Email:                strPtr("payer@example.org"),
		Language:             "en",
		ReturnURL:            "https://service.example/return",
		GatewayTransactionID: strPtr("gw-" + externalID),
		CardDetails: &domain.CardDetails{
			CardholderName: strPtr("J Doe"),
			FirstDigits:    strPtr("424242"),
			LastDigits:     strPtr("4242"),
			CardBrand:      strPtr("visa"),
			CardType:       strPtr("DEBIT"),
			ExpiryDate:     strPtr("12/30"),
			BillingAddress: &domain.Address{Line1: "1 High Street", Postcode: "AB1 2CD", City: "London", Country: "GB"},
		},
		GatewayAccount: domain.GatewayAccount{ID: 42, PaymentProvider: "sandbox"},
		CreatedAt:      chargeCreatedAt,
	}
	history := []domain.ChargeEvent{
		{Status: domain.ChargeStatusCreated, UpdatedAt: chargeCreatedAt},
		{Status: domain.ChargeStatusCaptureSubmitted, UpdatedAt: chargeCreatedAt.Add(2 * time.Minute)},
		{Status: domain.ChargeStatusCaptured, UpdatedAt: chargeCreatedAt.Add(5 * time.Minute)},
	}
	return charge, history
}

// ledgerForCharge строит проекцию ledger, совпадающую с capturedCharge.
func ledgerForCharge(charge domain.Charge, summary domain.LedgerRefundSummary) domain.LedgerTransaction {
	submitted := chargeCreatedAt.Add(2 * time.Minute)
	created := charge.CreatedAt
	return domain.LedgerTransaction{
		TransactionID:        charge.ExternalID,
		TransactionType:      "PAYMENT",
		GatewayAccountID:     "42",
		Amount:               int64Ptr(charge.AmountMinor),
		Fee:                  int64Ptr(5),
		NetAmount:            int64Ptr(995),
		State:                domain.LedgerState{Status: "success", Finished: true},
		Description:          strPtr(charge.Description),
		Reference:            strPtr(charge.Reference),
		Language:             strPtr("en"),
		ReturnURL:            strPtr(charge.ReturnURL),
		Email:                strPtr("payer@example.org"),
		PaymentProvider:      strPtr("sandbox"),
		CreatedDate:          &created,
		GatewayTransactionID: strPtr("gw-" + charge.ExternalID),
		CardDetails: &domain.LedgerCardDetails{
			CardholderName:        strPtr("J Doe"),
			FirstDigitsCardNumber: strPtr("424242"),
			LastDigitsCardNumber:  strPtr("4242"),
			CardBrand:             strPtr("visa"),
			CardType:              strPtr("DEBIT"),
			ExpiryDate:            strPtr("12/30"),
			BillingAddress:        &domain.LedgerAddress{Line1: "1 High Street", Postcode: "AB1 2CD", City: "London", Country: "GB"},
		},
		RefundSummary: &summary,
		SettlementSummary: &domain.LedgerSettlementSummary{
			CaptureSubmitTime: &submitted,
			CapturedDate:      strPtr("2024-09-10"),
		},
	}
}

func fullyAvailable() domain.LedgerRefundSummary {
	return domain.LedgerRefundSummary{Status: domain.RefundAvailabilityAvailable, AmountAvailable: 1000}
}

func ledgerForRefund(refund domain.Refund, refundedBy *string) domain.LedgerTransaction {
	created := refund.CreatedAt
	var gatewayTransactionID *string
	if refund.GatewayTransactionID != "" {
		gatewayTransactionID = strPtr(refund.GatewayTransactionID)
	}
	return domain.LedgerTransaction{
		TransactionID:        refund.ExternalID,
		ParentTransactionID:  refund.ChargeExternalID,
		TransactionType:      "REFUND",
		GatewayAccountID:     "42",
		Amount:               int64Ptr(refund.AmountMinor),
		State:                domain.LedgerState{Status: refund.Status.ToExternal()},
		CreatedDate:          &created,
		GatewayTransactionID: gatewayTransactionID,
		RefundedBy:           refundedBy,
	}
}
