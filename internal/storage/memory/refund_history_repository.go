package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
)

// refundHistoryRepositoryInMemory — append-only история возвратов в памяти.
type refundHistoryRepositoryInMemory struct {
	mu     sync.RWMutex
	nextID int64
	rows   []domain.RefundHistory
}

// NewRefundHistoryRepository возвращает in-memory репозиторий истории возвратов.
func NewRefundHistoryRepository() domain.RefundHistoryRepository {
	return &refundHistoryRepositoryInMemory{}
}

func (r *refundHistoryRepositoryInMemory) Append(_ context.Context, row domain.RefundHistory) (domain.RefundHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	row.ID = r.nextID
	r.rows = append(r.rows, row)
	return row, nil
}

func (r *refundHistoryRepositoryInMemory) ListByExternalID(_ context.Context, externalID string) ([]domain.RefundHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.RefundHistory, 0)
	for _, row := range r.rows {
		if row.ExternalID == externalID {
			result = append(result, row)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].HistoryStartDate.Before(result[j].HistoryStartDate)
	})
	return result, nil
}
