package domain

// ChargeStatus описывает внутренний статус платежа (charge) в коннекторе.
// Допустимость переходов между статусами здесь не задаётся: она целиком
// определяется картой переходов (см. EventForTransition).
type ChargeStatus string

const (
	ChargeStatusCreated                           ChargeStatus = "CREATED"
	ChargeStatusEnteringCardDetails               ChargeStatus = "ENTERING CARD DETAILS"
	ChargeStatusAuthorisationReady                ChargeStatus = "AUTHORISATION READY"
	ChargeStatusAuthorisation3DSRequired          ChargeStatus = "AUTHORISATION 3DS REQUIRED"
	ChargeStatusAuthorisation3DSReady             ChargeStatus = "AUTHORISATION 3DS READY"
	ChargeStatusAuthorisationSubmitted            ChargeStatus = "AUTHORISATION SUBMITTED"
	ChargeStatusAuthorisationSuccess              ChargeStatus = "AUTHORISATION SUCCESS"
	ChargeStatusAuthorisationRejected             ChargeStatus = "AUTHORISATION REJECTED"
	ChargeStatusAuthorisationCancelled            ChargeStatus = "AUTHORISATION CANCELLED"
	ChargeStatusAuthorisationAborted              ChargeStatus = "AUTHORISATION ABORTED"
	ChargeStatusAuthorisationError                ChargeStatus = "AUTHORISATION ERROR"
	ChargeStatusAuthorisationTimeout              ChargeStatus = "AUTHORISATION TIMEOUT"
	ChargeStatusAuthorisationUnexpectedError      ChargeStatus = "AUTHORISATION UNEXPECTED ERROR"
	ChargeStatusAuthorisationUserNotPresentQueued ChargeStatus = "AUTHORISATION USER NOT PRESENT QUEUED"
	ChargeStatusAwaitingCaptureRequest            ChargeStatus = "AWAITING CAPTURE REQUEST"
	ChargeStatusCaptureApproved                   ChargeStatus = "CAPTURE APPROVED"
	ChargeStatusCaptureApprovedRetry              ChargeStatus = "CAPTURE APPROVED RETRY"
	ChargeStatusCaptureReady                      ChargeStatus = "CAPTURE READY"
	ChargeStatusCaptureSubmitted                  ChargeStatus = "CAPTURE SUBMITTED"
	ChargeStatusCaptureQueued                     ChargeStatus = "CAPTURE QUEUED"
	ChargeStatusCaptureError                      ChargeStatus = "CAPTURE ERROR"
	ChargeStatusCaptured                          ChargeStatus = "CAPTURED"
	ChargeStatusExpireCancelReady                 ChargeStatus = "EXPIRE CANCEL READY"
	ChargeStatusExpireCancelSubmitted             ChargeStatus = "EXPIRE CANCEL SUBMITTED"
	ChargeStatusExpireCancelFailed                ChargeStatus = "EXPIRE CANCEL FAILED"
	ChargeStatusExpired                           ChargeStatus = "EXPIRED"
	ChargeStatusSystemCancelReady                 ChargeStatus = "SYSTEM CANCEL READY"
	ChargeStatusSystemCancelSubmitted             ChargeStatus = "SYSTEM CANCEL SUBMITTED"
	ChargeStatusSystemCancelError                 ChargeStatus = "SYSTEM CANCEL ERROR"
	ChargeStatusSystemCancelled                   ChargeStatus = "SYSTEM CANCELLED"
	ChargeStatusUserCancelReady                   ChargeStatus = "USER CANCEL READY"
	ChargeStatusUserCancelSubmitted               ChargeStatus = "USER CANCEL SUBMITTED"
	ChargeStatusUserCancelError                   ChargeStatus = "USER CANCEL ERROR"
	ChargeStatusUserCancelled                     ChargeStatus = "USER CANCELLED"
	ChargeStatusPaymentNotificationCreated        ChargeStatus = "PAYMENT NOTIFICATION CREATED"
)

// ExternalChargeState — видимая пользователю проекция статуса платежа.
type ExternalChargeState struct {
	// Status — статус в публичном API (v1).
	Status string
	// StatusV2 — статус в том виде, в котором его хранит ledger.
	StatusV2 string
	// Code и Message заполнены только для неуспешных финальных состояний.
	Code     string
	Message  string
	Finished bool
}

var (
	ExternalCreated    = ExternalChargeState{Status: "created", StatusV2: "created"}
	ExternalStarted    = ExternalChargeState{Status: "started", StatusV2: "started"}
	ExternalSubmitted  = ExternalChargeState{Status: "submitted", StatusV2: "submitted"}
	ExternalCapturable = ExternalChargeState{Status: "capturable", StatusV2: "capturable"}
	ExternalSuccess    = ExternalChargeState{Status: "success", StatusV2: "success", Finished: true}

	ExternalFailedRejected = ExternalChargeState{
		Status: "failed", StatusV2: "declined", Finished: true,
		Code: "P0010", Message: "Payment method rejected",
	}
	ExternalFailedExpired = ExternalChargeState{
		Status: "failed", StatusV2: "timedout", Finished: true,
		Code: "P0020", Message: "Payment expired",
	}
	ExternalFailedCancelled = ExternalChargeState{
		Status: "failed", StatusV2: "cancelled", Finished: true,
		Code: "P0030", Message: "Payment was cancelled by the user",
	}
	ExternalCancelled = ExternalChargeState{
		Status: "cancelled", StatusV2: "cancelled", Finished: true,
		Code: "P0040", Message: "Payment was cancelled by the service",
	}
	ExternalErrorGateway = ExternalChargeState{
		Status: "error", StatusV2: "error", Finished: true,
		Code: "P0050", Message: "Payment provider returned an error",
	}
)

var chargeExternalStates = map[ChargeStatus]ExternalChargeState{
	ChargeStatusCreated:                           ExternalCreated,
	ChargeStatusPaymentNotificationCreated:        ExternalCreated,
	ChargeStatusEnteringCardDetails:               ExternalStarted,
	ChargeStatusAuthorisationReady:                ExternalStarted,
	ChargeStatusAuthorisation3DSRequired:          ExternalStarted,
	ChargeStatusAuthorisation3DSReady:             ExternalStarted,
	ChargeStatusAuthorisationSubmitted:            ExternalStarted,
	ChargeStatusAuthorisationUserNotPresentQueued: ExternalStarted,
	ChargeStatusAuthorisationSuccess:              ExternalSubmitted,
	ChargeStatusAuthorisationRejected:             ExternalFailedRejected,
	ChargeStatusAuthorisationCancelled:            ExternalFailedRejected,
	ChargeStatusAuthorisationAborted:              ExternalFailedRejected,
	ChargeStatusAuthorisationError:                ExternalErrorGateway,
	ChargeStatusAuthorisationTimeout:              ExternalErrorGateway,
	ChargeStatusAuthorisationUnexpectedError:      ExternalErrorGateway,
	ChargeStatusAwaitingCaptureRequest:            ExternalCapturable,
	ChargeStatusCaptureApproved:                   ExternalSuccess,
	ChargeStatusCaptureApprovedRetry:              ExternalSuccess,
	ChargeStatusCaptureReady:                      ExternalSuccess,
	ChargeStatusCaptureSubmitted:                  ExternalSuccess,
	ChargeStatusCaptureQueued:                     ExternalSuccess,
	ChargeStatusCaptured:                          ExternalSuccess,
	ChargeStatusCaptureError:                      ExternalErrorGateway,
	ChargeStatusExpireCancelReady:                 ExternalFailedExpired,
	ChargeStatusExpireCancelSubmitted:             ExternalFailedExpired,
	ChargeStatusExpireCancelFailed:                ExternalFailedExpired,
	ChargeStatusExpired:                           ExternalFailedExpired,
	ChargeStatusSystemCancelReady:                 ExternalCancelled,
	ChargeStatusSystemCancelSubmitted:             ExternalCancelled,
	ChargeStatusSystemCancelError:                 ExternalCancelled,
	ChargeStatusSystemCancelled:                   ExternalCancelled,
	ChargeStatusUserCancelReady:                   ExternalFailedCancelled,
	ChargeStatusUserCancelSubmitted:               ExternalFailedCancelled,
	ChargeStatusUserCancelError:                   ExternalFailedCancelled,
	ChargeStatusUserCancelled:                     ExternalFailedCancelled,
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s ChargeStatus) Valid() bool {
	_, ok := chargeExternalStates[s]
	return ok
}

// ToExternal возвращает внешнюю проекцию статуса.
// Для неизвестного статуса возвращается нулевое значение и false.
func (s ChargeStatus) ToExternal() (ExternalChargeState, bool) {
	state, ok := chargeExternalStates[s]
	return state, ok
}

// ParseChargeStatus приводит строку из хранилища к ChargeStatus.
func ParseChargeStatus(raw string) (ChargeStatus, error) {
	status := ChargeStatus(raw)
	if !status.Valid() {
		return "", ErrUnknownChargeStatus
	}
	return status, nil
}
