package domain

import "context"

// Transactor выполняет fn в одной транзакции хранилища.
// Репозитории, получившие ctx из fn, работают внутри этой транзакции.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventPublisher публикует события во внешнюю шину.
type EventPublisher interface {
	// Publish передаёт событие наружу; повторная доставка допустима.
	Publish(ctx context.Context, event Event) error
}

// LedgerClient читает проекцию транзакции из ledger.
type LedgerClient interface {
	// GetTransaction возвращает транзакцию и true, если ledger её знает.
	// Отсутствие записи не является ошибкой; ошибка означает, что ответ неизвестен.
	GetTransaction(ctx context.Context, externalID string, query LedgerQuery) (LedgerTransaction, bool, error)
}
