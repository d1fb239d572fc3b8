package memory

import (
	"context"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
)

type transactor struct{}

// NewTransactor возвращает Transactor без транзакционной семантики:
// in-memory репозитории применяют изменения сразу и не откатывают их.
func NewTransactor() domain.Transactor {
	return transactor{}
}

func (transactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
