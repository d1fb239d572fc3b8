package domain

// transitionKey — ребро графа статусов платежа.
type transitionKey struct {
	from ChargeStatus
	to   ChargeStatus
}

// paymentTransitionEvents — плоская неизменяемая карта (from, to) -> событие.
// Рёбра, которых здесь нет, считаются внутренними и наружу не публикуются.
var paymentTransitionEvents = map[transitionKey]EventType{
	{ChargeStatusCreated, ChargeStatusEnteringCardDetails}:  EventPaymentStarted,
	{ChargeStatusCreated, ChargeStatusAuthorisationSuccess}: EventUserApprovedForCapture,
	{ChargeStatusCreated, ChargeStatusExpired}:              EventPaymentExpired,
	{ChargeStatusCreated, ChargeStatusSystemCancelled}:      EventCancelledByExternalService,

	{ChargeStatusEnteringCardDetails, ChargeStatusExpired}:              EventPaymentExpired,
	{ChargeStatusEnteringCardDetails, ChargeStatusUserCancelled}:        EventCancelledByUser,
	{ChargeStatusEnteringCardDetails, ChargeStatusSystemCancelled}:      EventCancelledByExternalService,
	{ChargeStatusEnteringCardDetails, ChargeStatusAuthorisationAborted}: EventAuthorisationRejected,

	{ChargeStatusAuthorisationReady, ChargeStatusAuthorisationSuccess}:         EventAuthorisationSucceeded,
	{ChargeStatusAuthorisationReady, ChargeStatusAuthorisationRejected}:        EventAuthorisationRejected,
	{ChargeStatusAuthorisationReady, ChargeStatusAuthorisationCancelled}:       EventAuthorisationCancelled,
	{ChargeStatusAuthorisationReady, ChargeStatusAuthorisationError}:           EventGatewayErrorDuringAuthorisation,
	{ChargeStatusAuthorisationReady, ChargeStatusAuthorisationTimeout}:         EventGatewayTimeoutDuringAuthorisation,
	{ChargeStatusAuthorisationReady, ChargeStatusAuthorisationUnexpectedError}: EventUnexpectedGatewayErrorDuringAuthorisation,
	{ChargeStatusAuthorisationReady, ChargeStatusAuthorisation3DSRequired}:     EventGatewayRequires3DSAuthorisation,

	{ChargeStatusAuthorisationSubmitted, ChargeStatusAuthorisationSuccess}:  EventAuthorisationSucceeded,
	{ChargeStatusAuthorisationSubmitted, ChargeStatusAuthorisationRejected}: EventAuthorisationRejected,
	{ChargeStatusAuthorisationSubmitted, ChargeStatusAuthorisationError}:    EventGatewayErrorDuringAuthorisation,

	{ChargeStatusAuthorisation3DSRequired, ChargeStatusUserCancelled}: EventCancelledByUser,

	{ChargeStatusAuthorisation3DSReady, ChargeStatusAuthorisationSuccess}:   EventAuthorisationSucceeded,
	{ChargeStatusAuthorisation3DSReady, ChargeStatusAuthorisationRejected}:  EventAuthorisationRejected,
	{ChargeStatusAuthorisation3DSReady, ChargeStatusAuthorisationCancelled}: EventAuthorisationCancelled,
	{ChargeStatusAuthorisation3DSReady, ChargeStatusAuthorisationError}:     EventGatewayErrorDuringAuthorisation,

	{ChargeStatusAuthorisationSuccess, ChargeStatusCaptureApproved}:        EventUserApprovedForCapture,
	{ChargeStatusAuthorisationSuccess, ChargeStatusAwaitingCaptureRequest}: EventUserApprovedForCaptureAwaitingServiceApproval,
	{ChargeStatusAuthorisationSuccess, ChargeStatusCaptureQueued}:          EventQueuedForCapture,

	{ChargeStatusAwaitingCaptureRequest, ChargeStatusCaptureApproved}: EventServiceApprovedForCapture,

	{ChargeStatusCaptureApproved, ChargeStatusCaptureError}:      EventCaptureAbandonedAfterTooManyRetries,
	{ChargeStatusCaptureApproved, ChargeStatusCaptured}:          EventCaptureConfirmed,
	{ChargeStatusCaptureApprovedRetry, ChargeStatusCaptureError}: EventCaptureAbandonedAfterTooManyRetries,
	{ChargeStatusCaptureReady, ChargeStatusCaptureSubmitted}:     EventCaptureSubmitted,
	{ChargeStatusCaptureReady, ChargeStatusCaptureError}:         EventCaptureErrored,
	{ChargeStatusCaptureQueued, ChargeStatusCaptureSubmitted}:    EventCaptureSubmitted,
	{ChargeStatusCaptureQueued, ChargeStatusCaptureError}:        EventCaptureErrored,
	{ChargeStatusCaptureSubmitted, ChargeStatusCaptured}:         EventCaptureConfirmed,
	{ChargeStatusCaptureSubmitted, ChargeStatusCaptureError}:     EventCaptureErrored,

	{ChargeStatusUserCancelReady, ChargeStatusUserCancelled}:     EventCancelledByUser,
	{ChargeStatusUserCancelReady, ChargeStatusUserCancelError}:   EventCancelByUserFailed,
	{ChargeStatusUserCancelSubmitted, ChargeStatusUserCancelled}: EventCancelledByUser,

	{ChargeStatusSystemCancelReady, ChargeStatusSystemCancelSubmitted}: EventCancelByExternalServiceSubmitted,
	{ChargeStatusSystemCancelReady, ChargeStatusSystemCancelled}:       EventCancelledByExternalService,
	{ChargeStatusSystemCancelReady, ChargeStatusSystemCancelError}:     EventCancelByExternalServiceFailed,
	{ChargeStatusSystemCancelSubmitted, ChargeStatusSystemCancelled}:   EventCancelledByExternalService,

	{ChargeStatusExpireCancelReady, ChargeStatusExpireCancelSubmitted}: EventCancelByExpirationSubmitted,
	{ChargeStatusExpireCancelReady, ChargeStatusExpired}:               EventCancelledByExpiration,
	{ChargeStatusExpireCancelReady, ChargeStatusExpireCancelFailed}:    EventCancelByExpirationFailed,
	{ChargeStatusExpireCancelSubmitted, ChargeStatusExpired}:           EventCancelledByExpiration,

	{ChargeStatusPaymentNotificationCreated, ChargeStatusAuthorisationRejected}: EventAuthorisationRejected,
	{ChargeStatusPaymentNotificationCreated, ChargeStatusAuthorisationError}:    EventGatewayErrorDuringAuthorisation,
	{ChargeStatusPaymentNotificationCreated, ChargeStatusCaptureSubmitted}:      EventCaptureSubmitted,
}

// EventForTransition возвращает событие для ребра (from, to).
// false означает внутреннюю смену статуса, о которой внешний мир не уведомляется.
func EventForTransition(from, to ChargeStatus) (EventType, bool) {
	event, ok := paymentTransitionEvents[transitionKey{from: from, to: to}]
	return event, ok
}

// RefundEventFor выбирает событие возврата с учётом инициатора.
// Для CREATED непустой userExternalID означает пользователя, пустой — сервис.
func RefundEventFor(userExternalID string, target RefundStatus) (EventType, bool) {
	switch target {
	case RefundStatusCreated:
		if userExternalID != "" {
			return EventRefundCreatedByUser, true
		}
		return EventRefundCreatedByService, true
	case RefundStatusSubmitted:
		return EventRefundSubmitted, true
	case RefundStatusRefunded:
		return EventRefundSucceeded, true
	case RefundStatusError:
		return EventRefundError, true
	default:
		return "", false
	}
}

// AuthorisationOutcome сообщает, является ли событие исходом авторизации,
// после которого ledger должен получить введённые данные карты.
func AuthorisationOutcome(event EventType) bool {
	switch event {
	case EventAuthorisationSucceeded,
		EventAuthorisationRejected,
		EventAuthorisationCancelled,
		EventGatewayErrorDuringAuthorisation,
		EventGatewayTimeoutDuringAuthorisation,
		EventUnexpectedGatewayErrorDuringAuthorisation,
		EventUserApprovedForCapture:
		return true
	default:
		return false
	}
}

// RefundStatusForEvent возвращает статус возврата, которому соответствует событие.
func RefundStatusForEvent(event EventType) (RefundStatus, bool) {
	switch event {
	case EventRefundCreatedByUser, EventRefundCreatedByService:
		return RefundStatusCreated, true
	case EventRefundSubmitted:
		return RefundStatusSubmitted, true
	case EventRefundSucceeded:
		return RefundStatusRefunded, true
	case EventRefundError:
		return RefundStatusError, true
	default:
		return "", false
	}
}
