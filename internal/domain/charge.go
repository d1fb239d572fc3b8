package domain

import "time"

// Source — канал, через который был создан платёж.
type Source string

const (
	SourceCardAPI                Source = "CARD_API"
	SourceCardPaymentLink        Source = "CARD_PAYMENT_LINK"
	SourceCardExternalTelephone  Source = "CARD_EXTERNAL_TELEPHONE"
	SourceCardAgentInitiatedMoto Source = "CARD_AGENT_INITIATED_MOTO"
)

// WalletType — тип кошелька, если оплата прошла через Apple Pay / Google Pay.
type WalletType string

const (
	WalletTypeApplePay  WalletType = "APPLE_PAY"
	WalletTypeGooglePay WalletType = "GOOGLE_PAY"
)

// Address — адрес плательщика, указанный при вводе карты.
type Address struct {
	Line1    string
	Line2    string
	Postcode string
	City     string
	County   string
	Country  string
}

// CardDetails хранит данные карты в том объёме, в котором их видит коннектор.
// Указатели равны nil, если поле не было получено или удалено при редактировании данных.
type CardDetails struct {
	CardholderName *string
	FirstDigits    *string
	LastDigits     *string
	CardBrand      *string
	CardType       *string
	ExpiryDate     *string
	BillingAddress *Address
}

// GatewayAccount описывает учётную запись сервиса у платёжного провайдера.
type GatewayAccount struct {
	ID              int64
	Live            bool
	PaymentProvider string
}

// Charge — агрегат платежа с полями, которые нужны сверке с ledger.
type Charge struct {
	ID                   int64
	ExternalID           string
	AmountMinor          int64
	CorporateSurcharge   *int64
	Fee                  *int64
	NetAmount            *int64
	Status               ChargeStatus
	Description          string
	Reference            string
	Email                *string
	Language             string
	ReturnURL            string
	GatewayTransactionID *string
	CardDetails          *CardDetails
	WalletType           *WalletType
	Moto                 bool
	DelayedCapture       bool
	Source               *Source
	GatewayAccount       GatewayAccount
	CreatedAt            time.Time
	ParityCheckStatus    ParityCheckStatus
	ParityCheckedAt      *time.Time
}

// TotalAmount возвращает сумму платежа с учётом корпоративной надбавки.
func (c *Charge) TotalAmount() int64 {
	if c.CorporateSurcharge == nil {
		return c.AmountMinor
	}
	return c.AmountMinor + *c.CorporateSurcharge
}

// ChargeEvent — строка истории смены статуса платежа.
// Идентификатор строки служит ключом PaymentStateTransition.
type ChargeEvent struct {
	ID               int64
	ChargeID         int64
	Status           ChargeStatus
	UpdatedAt        time.Time
	GatewayEventDate *time.Time
}

// CapturedDate возвращает момент подтверждения списания по истории статусов.
func CapturedDate(events []ChargeEvent) *time.Time {
	return latestStatusDate(events, ChargeStatusCaptured, true)
}

// CaptureSubmittedDate возвращает момент отправки запроса на списание.
func CaptureSubmittedDate(events []ChargeEvent) *time.Time {
	return latestStatusDate(events, ChargeStatusCaptureSubmitted, false)
}

func latestStatusDate(events []ChargeEvent, status ChargeStatus, preferGatewayDate bool) *time.Time {
	var found *ChargeEvent
	for i := range events {
		ev := &events[i]
		if ev.Status != status {
			continue
		}
		if found == nil || ev.UpdatedAt.After(found.UpdatedAt) {
			found = ev
		}
	}
	if found == nil {
		return nil
	}
	if preferGatewayDate && found.GatewayEventDate != nil {
		t := found.GatewayEventDate.UTC()
		return &t
	}
	t := found.UpdatedAt.UTC()
	return &t
}
