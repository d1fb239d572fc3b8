package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
)

// refundRepositoryInMemory — in-memory реализация RefundRepository.
type refundRepositoryInMemory struct {
	mu         sync.RWMutex
	nextID     int64
	items      map[int64]domain.Refund
	byExternal map[string]int64
}

// NewRefundRepository возвращает in-memory репозиторий возвратов.
func NewRefundRepository() domain.RefundRepository {
	return &refundRepositoryInMemory{
		items:      make(map[int64]domain.Refund),
		byExternal: make(map[string]int64),
	}
}

func (r *refundRepositoryInMemory) Create(_ context.Context, refund domain.Refund) (domain.Refund, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byExternal[refund.ExternalID]; exists {
		return domain.Refund{}, domain.ErrRefundAlreadyExists
	}
	if refund.ID == 0 {
		r.nextID++
		refund.ID = r.nextID
	} else if refund.ID > r.nextID {
		r.nextID = refund.ID
	}
	if refund.ParityCheckStatus == "" {
		refund.ParityCheckStatus = domain.ParityNotChecked
	}
	r.items[refund.ID] = refund
	r.byExternal[refund.ExternalID] = refund.ID
	return refund, nil
}

func (r *refundRepositoryInMemory) FindByExternalID(_ context.Context, externalID string) (domain.Refund, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byExternal[externalID]
	if !ok {
		return domain.Refund{}, domain.ErrRefundNotFound
	}
	return r.items[id], nil
}

func (r *refundRepositoryInMemory) ListByChargeExternalID(_ context.Context, chargeExternalID string) ([]domain.Refund, error) {
	return r.list(func(rf domain.Refund) bool { return rf.ChargeExternalID == chargeExternalID }, 0), nil
}

func (r *refundRepositoryInMemory) UpdateStatus(_ context.Context, id int64, status domain.RefundStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	refund, ok := r.items[id]
	if !ok {
		return domain.ErrRefundNotFound
	}
	refund.Status = status
	r.items[id] = refund
	return nil
}

func (r *refundRepositoryInMemory) UpdateParityStatus(_ context.Context, id int64, status domain.ParityCheckStatus, checkedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	refund, ok := r.items[id]
	if !ok {
		return domain.ErrRefundNotFound
	}
	checked := checkedAt.UTC()
	refund.ParityCheckStatus = status
	refund.ParityCheckedAt = &checked
	r.items[id] = refund
	return nil
}

func (r *refundRepositoryInMemory) ListByIDRange(_ context.Context, fromID, toID int64, limit int) ([]domain.Refund, error) {
	return r.list(func(rf domain.Refund) bool { return rf.ID >= fromID && rf.ID <= toID }, limit), nil
}

func (r *refundRepositoryInMemory) ListByParityStatus(_ context.Context, status domain.ParityCheckStatus, afterID int64, limit int) ([]domain.Refund, error) {
	return r.list(func(rf domain.Refund) bool { return rf.ID > afterID && rf.ParityCheckStatus == status }, limit), nil
}

func (r *refundRepositoryInMemory) MaxID(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var maxID int64
	for id := range r.items {
		if id > maxID {
			maxID = id
		}
	}
	return maxID, nil
}

func (r *refundRepositoryInMemory) list(match func(domain.Refund) bool, limit int) []domain.Refund {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Refund, 0)
	for _, refund := range r.items {
		if match(refund) {
			result = append(result, refund)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}
