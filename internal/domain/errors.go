package domain

import "errors"

var (
	// ErrUnknownChargeStatus — строка из хранилища не является известным статусом платежа.
	ErrUnknownChargeStatus = errors.New("unknown charge status")
	// ErrUnknownRefundStatus — строка из хранилища не является известным статусом возврата.
	ErrUnknownRefundStatus = errors.New("unknown refund status")
	// ErrUnknownParityStatus — неизвестное значение статуса сверки.
	ErrUnknownParityStatus = errors.New("unknown parity check status")
	// ErrUnknownResourceType — событие или переход относятся к неизвестному типу ресурса.
	ErrUnknownResourceType = errors.New("unknown resource type")
	// ErrChargeNotFound возвращается, если платёж не найден в репозитории.
	ErrChargeNotFound = errors.New("charge not found")
	// ErrChargeAlreadyExists — платёж с таким external_id уже сохранён.
	ErrChargeAlreadyExists = errors.New("charge already exists")
	// ErrChargeEventNotFound возвращается, если строка истории статусов не найдена.
	ErrChargeEventNotFound = errors.New("charge event not found")
	// ErrRefundNotFound возвращается, если возврат не найден в репозитории.
	ErrRefundNotFound = errors.New("refund not found")
	// ErrRefundAlreadyExists — возврат с таким external_id уже сохранён.
	ErrRefundAlreadyExists = errors.New("refund already exists")
	// ErrEmittedEventNotFound — для ключа события нет записи о предложении/публикации.
	ErrEmittedEventNotFound = errors.New("emitted event not found")
	// ErrTransitionQueueRejected — очередь переходов не приняла элемент.
	ErrTransitionQueueRejected = errors.New("transition queue rejected offer")
	// ErrNoEventForTransition — для ресурса не удалось восстановить публикуемое событие.
	ErrNoEventForTransition = errors.New("no event applies to transition")
	// ErrEventPublish — ошибка при публикации события во внешнюю шину.
	ErrEventPublish = errors.New("event publish failed")
	// ErrLedgerUnavailable — ledger ответил ошибкой или недоступен; результат сверки неизвестен.
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	// ErrParityCheckInProgress — сверка уже выполняется в этом или другом процессе.
	ErrParityCheckInProgress = errors.New("parity check already in progress")
)
