package domain

import "time"

// ResourceType — тип ресурса, к которому относится событие.
type ResourceType string

const (
	ResourceTypePayment ResourceType = "payment"
	ResourceTypeRefund  ResourceType = "refund"
)

// EventType — закрытый набор событий, которые коннектор публикует наружу.
type EventType string

const (
	EventPaymentCreated                                EventType = "PAYMENT_CREATED"
	EventPaymentStarted                                EventType = "PAYMENT_STARTED"
	EventPaymentDetailsEntered                         EventType = "PAYMENT_DETAILS_ENTERED"
	EventPaymentNotificationCreated                    EventType = "PAYMENT_NOTIFICATION_CREATED"
	EventAuthorisationSucceeded                        EventType = "AUTHORISATION_SUCCEEDED"
	EventAuthorisationRejected                         EventType = "AUTHORISATION_REJECTED"
	EventAuthorisationCancelled                        EventType = "AUTHORISATION_CANCELLED"
	EventGatewayErrorDuringAuthorisation               EventType = "GATEWAY_ERROR_DURING_AUTHORISATION"
	EventGatewayTimeoutDuringAuthorisation             EventType = "GATEWAY_TIMEOUT_DURING_AUTHORISATION"
	EventUnexpectedGatewayErrorDuringAuthorisation     EventType = "UNEXPECTED_GATEWAY_ERROR_DURING_AUTHORISATION"
	EventGatewayRequires3DSAuthorisation               EventType = "GATEWAY_REQUIRES_3DS_AUTHORISATION"
	EventUserApprovedForCapture                        EventType = "USER_APPROVED_FOR_CAPTURE"
	EventUserApprovedForCaptureAwaitingServiceApproval EventType = "USER_APPROVED_FOR_CAPTURE_AWAITING_SERVICE_APPROVAL"
	EventServiceApprovedForCapture                     EventType = "SERVICE_APPROVED_FOR_CAPTURE"
	EventQueuedForCapture                              EventType = "QUEUED_FOR_CAPTURE"
	EventCaptureSubmitted                              EventType = "CAPTURE_SUBMITTED"
	EventCaptureConfirmed                              EventType = "CAPTURE_CONFIRMED"
	EventCaptureErrored                                EventType = "CAPTURE_ERRORED"
	EventCaptureAbandonedAfterTooManyRetries           EventType = "CAPTURE_ABANDONED_AFTER_TOO_MANY_RETRIES"
	EventCancelledByUser                               EventType = "CANCELLED_BY_USER"
	EventCancelByUserFailed                            EventType = "CANCEL_BY_USER_FAILED"
	EventCancelByExternalServiceSubmitted              EventType = "CANCEL_BY_EXTERNAL_SERVICE_SUBMITTED"
	EventCancelledByExternalService                    EventType = "CANCELLED_BY_EXTERNAL_SERVICE"
	EventCancelByExternalServiceFailed                 EventType = "CANCEL_BY_EXTERNAL_SERVICE_FAILED"
	EventCancelByExpirationSubmitted                   EventType = "CANCEL_BY_EXPIRATION_SUBMITTED"
	EventCancelledByExpiration                         EventType = "CANCELLED_BY_EXPIRATION"
	EventCancelByExpirationFailed                      EventType = "CANCEL_BY_EXPIRATION_FAILED"
	EventPaymentExpired                                EventType = "PAYMENT_EXPIRED"
	EventRefundAvailabilityUpdated                     EventType = "REFUND_AVAILABILITY_UPDATED"

	EventRefundCreatedByUser    EventType = "REFUND_CREATED_BY_USER"
	EventRefundCreatedByService EventType = "REFUND_CREATED_BY_SERVICE"
	EventRefundSubmitted        EventType = "REFUND_SUBMITTED"
	EventRefundSucceeded        EventType = "REFUND_SUCCEEDED"
	EventRefundError            EventType = "REFUND_ERROR"
)

var refundEventTypes = map[EventType]struct{}{
	EventRefundCreatedByUser:    {},
	EventRefundCreatedByService: {},
	EventRefundSubmitted:        {},
	EventRefundSucceeded:        {},
	EventRefundError:            {},
}

// ResourceType возвращает тип ресурса, к которому относится событие данного типа.
func (t EventType) ResourceType() ResourceType {
	if _, ok := refundEventTypes[t]; ok {
		return ResourceTypeRefund
	}
	return ResourceTypePayment
}

// Event — событие, публикуемое во внешнюю шину.
type Event struct {
	ResourceType             ResourceType `json:"resource_type"`
	ResourceExternalID       string       `json:"resource_external_id"`
	ParentResourceExternalID string       `json:"parent_resource_external_id,omitempty"`
	EventType                EventType    `json:"event_type"`
	Timestamp                time.Time    `json:"timestamp"`
	Live                     bool         `json:"live"`
	Details                  EventDetails `json:"event_details,omitempty"`
}

// Key возвращает ключ идемпотентности события.
func (e Event) Key() EmittedEventKey {
	return EmittedEventKey{
		ResourceType: e.ResourceType,
		ExternalID:   e.ResourceExternalID,
		EventType:    e.EventType,
		Timestamp:    e.Timestamp,
	}
}

// EventDetails — закрытый набор payload-вариантов событий.
type EventDetails interface {
	eventDetails()
}

// PaymentCreatedDetails сопровождает PAYMENT_CREATED.
type PaymentCreatedDetails struct {
	Amount           int64   `json:"amount"`
	Description      string  `json:"description"`
	Reference        string  `json:"reference"`
	ReturnURL        string  `json:"return_url"`
	Language         string  `json:"language"`
	Email            *string `json:"email,omitempty"`
	GatewayAccountID int64   `json:"gateway_account_id"`
	PaymentProvider  string  `json:"payment_provider"`
	DelayedCapture   bool    `json:"delayed_capture"`
	Moto             bool    `json:"moto"`
	Source           *Source `json:"source,omitempty"`
}

// PaymentDetailsEnteredDetails сопровождает PAYMENT_DETAILS_ENTERED.
type PaymentDetailsEnteredDetails struct {
	CorporateSurcharge   *int64      `json:"corporate_surcharge,omitempty"`
	TotalAmount          int64       `json:"total_amount"`
	GatewayTransactionID *string     `json:"gateway_transaction_id,omitempty"`
	WalletType           *WalletType `json:"wallet,omitempty"`
	CardholderName       *string     `json:"cardholder_name,omitempty"`
	FirstDigits          *string     `json:"first_digits_card_number,omitempty"`
	LastDigits           *string     `json:"last_digits_card_number,omitempty"`
	CardBrand            *string     `json:"card_brand,omitempty"`
	CardType             *string     `json:"card_type,omitempty"`
	ExpiryDate           *string     `json:"expiry_date,omitempty"`
	BillingAddress       *Address    `json:"billing_address,omitempty"`
}

// AuthorisationDetails сопровождает исходы авторизации.
type AuthorisationDetails struct {
	GatewayTransactionID *string `json:"gateway_transaction_id,omitempty"`
}

// CaptureSubmittedDetails сопровождает CAPTURE_SUBMITTED.
type CaptureSubmittedDetails struct {
	CaptureSubmittedDate *time.Time `json:"capture_submitted_date,omitempty"`
}

// CaptureConfirmedDetails сопровождает CAPTURE_CONFIRMED.
type CaptureConfirmedDetails struct {
	CapturedDate *time.Time `json:"captured_date,omitempty"`
	Fee          *int64     `json:"fee,omitempty"`
	NetAmount    *int64     `json:"net_amount,omitempty"`
}

// RefundAvailabilityDetails сопровождает REFUND_AVAILABILITY_UPDATED.
type RefundAvailabilityDetails struct {
	RefundStatus          string `json:"refund_status"`
	RefundAmountAvailable int64  `json:"refund_amount_available"`
	RefundAmountRefunded  int64  `json:"refund_amount_refunded"`
}

// RefundDetails сопровождает события возврата.
type RefundDetails struct {
	Amount               int64   `json:"amount"`
	RefundedBy           *string `json:"refunded_by,omitempty"`
	UserEmail            *string `json:"user_email,omitempty"`
	GatewayTransactionID *string `json:"gateway_transaction_id,omitempty"`
}

func (PaymentCreatedDetails) eventDetails()        {}
func (PaymentDetailsEnteredDetails) eventDetails() {}
func (AuthorisationDetails) eventDetails()         {}
func (CaptureSubmittedDetails) eventDetails()      {}
func (CaptureConfirmedDetails) eventDetails()      {}
func (RefundAvailabilityDetails) eventDetails()    {}
func (RefundDetails) eventDetails()                {}
