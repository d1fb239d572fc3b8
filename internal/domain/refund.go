package domain

import "time"

// RefundStatus описывает внутренний статус возврата.
type RefundStatus string

const (
	// RefundStatusCreated — возврат создан, но ещё не отправлен провайдеру.
	RefundStatusCreated RefundStatus = "CREATED"
	// RefundStatusSubmitted — запрос на возврат отправлен провайдеру.
	RefundStatusSubmitted RefundStatus = "REFUND SUBMITTED"
	// RefundStatusRefunded — провайдер подтвердил возврат.
	RefundStatusRefunded RefundStatus = "REFUNDED"
	// RefundStatusError — провайдер вернул ошибку.
	RefundStatusError RefundStatus = "REFUND ERROR"
)

var refundExternalStatuses = map[RefundStatus]string{
	RefundStatusCreated:   "submitted",
	RefundStatusSubmitted: "submitted",
	RefundStatusRefunded:  "success",
	RefundStatusError:     "error",
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s RefundStatus) Valid() bool {
	_, ok := refundExternalStatuses[s]
	return ok
}

// ToExternal возвращает статус возврата в представлении ledger/публичного API.
func (s RefundStatus) ToExternal() string {
	return refundExternalStatuses[s]
}

// CountsTowardsRefunded сообщает, уменьшает ли возврат в этом статусе
// доступную к возврату сумму платежа.
func (s RefundStatus) CountsTowardsRefunded() bool {
	return s == RefundStatusCreated || s == RefundStatusSubmitted || s == RefundStatusRefunded
}

// ParseRefundStatus приводит строку из хранилища к RefundStatus.
func ParseRefundStatus(raw string) (RefundStatus, error) {
	status := RefundStatus(raw)
	if !status.Valid() {
		return "", ErrUnknownRefundStatus
	}
	return status, nil
}

// Refund — возврат средств по одному платежу.
// UserExternalID пустой, если возврат инициирован сервисом (API-ключом), а не пользователем.
type Refund struct {
	ID                   int64
	ExternalID           string
	ChargeExternalID     string
	AmountMinor          int64
	Status               RefundStatus
	UserExternalID       string
	UserEmail            string
	GatewayTransactionID string
	CreatedAt            time.Time
	ParityCheckStatus    ParityCheckStatus
	ParityCheckedAt      *time.Time
}

// RefundHistory — append-only снимок возврата на момент смены статуса.
type RefundHistory struct {
	ID                   int64
	RefundID             int64
	ExternalID           string
	ChargeExternalID     string
	AmountMinor          int64
	Status               RefundStatus
	UserExternalID       string
	UserEmail            string
	GatewayTransactionID string
	HistoryStartDate     time.Time
}

// RefundActor восстанавливает инициатора создания возврата по истории.
// Берётся самая ранняя запись в статусе CREATED; если её нет (например,
// история частично удалена), используется самая ранняя запись вообще.
func RefundActor(history []RefundHistory) (userExternalID, userEmail string, ok bool) {
	var (
		first   *RefundHistory
		created *RefundHistory
	)
	for i := range history {
		h := &history[i]
		if first == nil || h.HistoryStartDate.Before(first.HistoryStartDate) {
			first = h
		}
		if h.Status == RefundStatusCreated && (created == nil || h.HistoryStartDate.Before(created.HistoryStartDate)) {
			created = h
		}
	}
	if created != nil {
		return created.UserExternalID, created.UserEmail, true
	}
	if first != nil {
		return first.UserExternalID, first.UserEmail, true
	}
	return "", "", false
}
