package domain

import "time"

// LedgerDateLayout — формат дат без времени в ответах ledger (captured_date).
const LedgerDateLayout = "2006-01-02"

// LedgerState — статус транзакции в представлении ledger (status_version=2).
type LedgerState struct {
	Status   string `json:"status"`
	Finished bool   `json:"finished"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
}

// LedgerAddress — адрес плательщика в ledger.
type LedgerAddress struct {
	Line1    string `json:"line1"`
	Line2    string `json:"line2,omitempty"`
	Postcode string `json:"postcode"`
	City     string `json:"city"`
	County   string `json:"county,omitempty"`
	Country  string `json:"country"`
}

// LedgerCardDetails — данные карты в ledger.
type LedgerCardDetails struct {
	CardholderName        *string        `json:"cardholder_name,omitempty"`
	BillingAddress        *LedgerAddress `json:"billing_address,omitempty"`
	CardBrand             *string        `json:"card_brand,omitempty"`
	LastDigitsCardNumber  *string        `json:"last_digits_card_number,omitempty"`
	FirstDigitsCardNumber *string        `json:"first_digits_card_number,omitempty"`
	ExpiryDate            *string        `json:"expiry_date,omitempty"`
	CardType              *string        `json:"card_type,omitempty"`
}

// LedgerRefundSummary — сводка по возвратам платежа.
type LedgerRefundSummary struct {
	Status          string `json:"status"`
	AmountAvailable int64  `json:"amount_available"`
	AmountSubmitted int64  `json:"amount_submitted"`
	AmountRefunded  int64  `json:"amount_refunded"`
}

// LedgerSettlementSummary — даты отправки и подтверждения списания.
type LedgerSettlementSummary struct {
	CaptureSubmitTime *time.Time `json:"capture_submit_time,omitempty"`
	CapturedDate      *string    `json:"captured_date,omitempty"`
}

// LedgerTransaction — проекция платежа или возврата, которую хранит ledger.
type LedgerTransaction struct {
	TransactionID          string                   `json:"transaction_id"`
	ParentTransactionID    string                   `json:"parent_transaction_id,omitempty"`
	TransactionType        string                   `json:"transaction_type"`
	GatewayAccountID       string                   `json:"gateway_account_id"`
	Live                   bool                     `json:"live"`
	Amount                 *int64                   `json:"amount,omitempty"`
	Fee                    *int64                   `json:"fee,omitempty"`
	NetAmount              *int64                   `json:"net_amount,omitempty"`
	CorporateCardSurcharge *int64                   `json:"corporate_card_surcharge,omitempty"`
	TotalAmount            *int64                   `json:"total_amount,omitempty"`
	State                  LedgerState              `json:"state"`
	Description            *string                  `json:"description,omitempty"`
	Reference              *string                  `json:"reference,omitempty"`
	Language               *string                  `json:"language,omitempty"`
	ReturnURL              *string                  `json:"return_url,omitempty"`
	Email                  *string                  `json:"email,omitempty"`
	PaymentProvider        *string                  `json:"payment_provider,omitempty"`
	CreatedDate            *time.Time               `json:"created_date,omitempty"`
	CardDetails            *LedgerCardDetails       `json:"card_details,omitempty"`
	DelayedCapture         bool                     `json:"delayed_capture"`
	Moto                   bool                     `json:"moto"`
	GatewayTransactionID   *string                  `json:"gateway_transaction_id,omitempty"`
	RefundSummary          *LedgerRefundSummary     `json:"refund_summary,omitempty"`
	SettlementSummary      *LedgerSettlementSummary `json:"settlement_summary,omitempty"`
	WalletType             *string                  `json:"wallet_type,omitempty"`
	Source                 *string                  `json:"source,omitempty"`
	RefundedBy             *string                  `json:"refunded_by,omitempty"`
	RefundedByUserEmail    *string                  `json:"refunded_by_user_email,omitempty"`
}

// LedgerQuery — параметры поиска транзакции в ledger.
type LedgerQuery struct {
	GatewayAccountID int64
	TransactionType  ResourceType
	ParentExternalID string
}
