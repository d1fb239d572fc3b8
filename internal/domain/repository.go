package domain

import (
	"context"
	"time"
)

// ChargeRepository описывает требования к хранилищу платежей.
type ChargeRepository interface {
	// Create сохраняет платёж и возвращает его с присвоенным ID.
	Create(ctx context.Context, charge Charge) (Charge, error)
	// FindByID возвращает платёж или ErrChargeNotFound.
	FindByID(ctx context.Context, id int64) (Charge, error)
	// FindByExternalID возвращает платёж или ErrChargeNotFound.
	FindByExternalID(ctx context.Context, externalID string) (Charge, error)
	// UpdateStatus меняет статус платежа.
	UpdateStatus(ctx context.Context, id int64, status ChargeStatus) error
	// UpdateParityStatus сохраняет результат сверки.
	UpdateParityStatus(ctx context.Context, id int64, status ParityCheckStatus, checkedAt time.Time) error
	// ListByIDRange возвращает платежи с fromID <= id <= toID по возрастанию id.
	ListByIDRange(ctx context.Context, fromID, toID int64, limit int) ([]Charge, error)
	// ListByParityStatus возвращает платежи с заданным статусом сверки и id > afterID.
	ListByParityStatus(ctx context.Context, status ParityCheckStatus, afterID int64, limit int) ([]Charge, error)
	// MaxID возвращает наибольший id или 0, если платежей нет.
	MaxID(ctx context.Context) (int64, error)
}

// ChargeEventRepository хранит историю смены статусов платежа.
type ChargeEventRepository interface {
	Append(ctx context.Context, event ChargeEvent) (ChargeEvent, error)
	// FindByID возвращает строку истории или ErrChargeEventNotFound.
	FindByID(ctx context.Context, id int64) (ChargeEvent, error)
	// ListByChargeID возвращает историю в порядке возрастания id.
	ListByChargeID(ctx context.Context, chargeID int64) ([]ChargeEvent, error)
}

// RefundRepository описывает требования к хранилищу возвратов.
type RefundRepository interface {
	Create(ctx context.Context, refund Refund) (Refund, error)
	// FindByExternalID возвращает возврат или ErrRefundNotFound.
	FindByExternalID(ctx context.Context, externalID string) (Refund, error)
	// ListByChargeExternalID возвращает возвраты платежа по возрастанию id.
	ListByChargeExternalID(ctx context.Context, chargeExternalID string) ([]Refund, error)
	UpdateStatus(ctx context.Context, id int64, status RefundStatus) error
	UpdateParityStatus(ctx context.Context, id int64, status ParityCheckStatus, checkedAt time.Time) error
	ListByIDRange(ctx context.Context, fromID, toID int64, limit int) ([]Refund, error)
	ListByParityStatus(ctx context.Context, status ParityCheckStatus, afterID int64, limit int) ([]Refund, error)
	MaxID(ctx context.Context) (int64, error)
}

// RefundHistoryRepository хранит append-only историю возвратов.
type RefundHistoryRepository interface {
	Append(ctx context.Context, row RefundHistory) (RefundHistory, error)
	// ListByExternalID возвращает историю возврата в порядке history_start_date.
	ListByExternalID(ctx context.Context, externalID string) ([]RefundHistory, error)
}

// EmittedEventRepository — журнал идемпотентности публикаций.
type EmittedEventRepository interface {
	// RecordOffered создаёт запись без даты публикации; для существующего ключа
	// обновляет только водяной знак повтора.
	RecordOffered(ctx context.Context, key EmittedEventKey, doNotRetryBefore *time.Time) error
	// MarkEmitted проставляет дату публикации, создавая запись при необходимости.
	MarkEmitted(ctx context.Context, key EmittedEventKey, emittedAt time.Time) error
	// Get возвращает запись или ErrEmittedEventNotFound.
	Get(ctx context.Context, key EmittedEventKey) (EmittedEvent, error)
	// ListNotEmitted возвращает неопубликованные записи с timestamp < before,
	// у которых водяной знак не задан или уже наступил к моменту now.
	ListNotEmitted(ctx context.Context, before, now time.Time, limit int) ([]EmittedEvent, error)
}
