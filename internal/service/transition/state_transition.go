package transition

import (
	"strconv"
	"time"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
)

const (
	retryBaseDelay = 100 * time.Millisecond
	maxRetryDelay  = 5 * time.Minute
)

// StateTransition — неизменяемая единица работы «опубликовать событие E для ресурса R».
// Повтор всегда создаёт новое значение через Next.
type StateTransition interface {
	// Identifier нужен только для логов и корреляции, очередь по нему не дедуплицирует.
	Identifier() string
	EventType() domain.EventType
	Attempts() int
	// Delay — задержка видимости относительно момента постановки в очередь.
	Delay() time.Duration
	Next() StateTransition

	sealed()
}

// PaymentStateTransition привязан к строке истории статусов платежа.
type PaymentStateTransition struct {
	chargeEventID int64
	eventType     domain.EventType
	attempts      int
	delay         time.Duration
}

// NewPaymentStateTransition создаёт первую попытку без задержки.
func NewPaymentStateTransition(chargeEventID int64, eventType domain.EventType) PaymentStateTransition {
	return PaymentStateTransition{
		chargeEventID: chargeEventID,
		eventType:     eventType,
		attempts:      1,
	}
}

func (t PaymentStateTransition) ChargeEventID() int64        { return t.chargeEventID }
func (t PaymentStateTransition) Identifier() string          { return strconv.FormatInt(t.chargeEventID, 10) }
func (t PaymentStateTransition) EventType() domain.EventType { return t.eventType }
func (t PaymentStateTransition) Attempts() int               { return t.attempts }
func (t PaymentStateTransition) Delay() time.Duration        { return t.delay }
func (PaymentStateTransition) sealed()                       {}

// Next возвращает следующую попытку с экспоненциальной задержкой.
func (t PaymentStateTransition) Next() StateTransition {
	next := t
	next.attempts = t.attempts + 1
	next.delay = retryBackoff(next.attempts)
	return next
}

// RefundStateTransition привязан к возврату и целевому статусу:
// у возвратов нет отдельной строки события, как у платежей.
type RefundStateTransition struct {
	refundExternalID string
	status           domain.RefundStatus
	eventType        domain.EventType
	timestamp        time.Time
	attempts         int
	delay            time.Duration
}

// NewRefundStateTransition создаёт первую попытку без задержки.
// timestamp совпадает с меткой времени записи о предложении события.
func NewRefundStateTransition(refundExternalID string, status domain.RefundStatus, eventType domain.EventType, timestamp time.Time) RefundStateTransition {
	return RefundStateTransition{
		refundExternalID: refundExternalID,
		status:           status,
		eventType:        eventType,
		timestamp:        timestamp,
		attempts:         1,
	}
}

func (t RefundStateTransition) RefundExternalID() string          { return t.refundExternalID }
func (t RefundStateTransition) RefundStatus() domain.RefundStatus { return t.status }
func (t RefundStateTransition) Timestamp() time.Time              { return t.timestamp }
func (t RefundStateTransition) Identifier() string                { return t.refundExternalID + "-" + string(t.status) }
func (t RefundStateTransition) EventType() domain.EventType       { return t.eventType }
func (t RefundStateTransition) Attempts() int                     { return t.attempts }
func (t RefundStateTransition) Delay() time.Duration              { return t.delay }
func (RefundStateTransition) sealed()                             {}

// Next возвращает следующую попытку с экспоненциальной задержкой.
func (t RefundStateTransition) Next() StateTransition {
	next := t
	next.attempts = t.attempts + 1
	next.delay = retryBackoff(next.attempts)
	return next
}

// retryBackoff: вторая попытка ждёт retryBaseDelay, каждая следующая вдвое дольше, но не больше maxRetryDelay.
func retryBackoff(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delay := retryBaseDelay
	for i := 2; i < attempt; i++ {
		if delay >= maxRetryDelay/2 {
			return maxRetryDelay
		}
		delay *= 2
	}
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}
