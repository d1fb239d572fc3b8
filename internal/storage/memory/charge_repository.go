package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
)

// chargeRepositoryInMemory — in-memory реализация ChargeRepository.
type chargeRepositoryInMemory struct {
	mu         sync.RWMutex
	nextID     int64
	items      map[int64]domain.Charge
	byExternal map[string]int64
}

// NewChargeRepository возвращает in-memory репозиторий платежей для локальной разработки и тестов.
func NewChargeRepository() domain.ChargeRepository {
	return &chargeRepositoryInMemory{
		items:      make(map[int64]domain.Charge),
		byExternal: make(map[string]int64),
	}
}

func (r *chargeRepositoryInMemory) Create(_ context.Context, charge domain.Charge) (domain.Charge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byExternal[charge.ExternalID]; exists {
		return domain.Charge{}, domain.ErrChargeAlreadyExists
	}
	if charge.ID == 0 {
		r.nextID++
		charge.ID = r.nextID
	} else if charge.ID > r.nextID {
		r.nextID = charge.ID
	}
	if charge.ParityCheckStatus == "" {
		charge.ParityCheckStatus = domain.ParityNotChecked
	}
	r.items[charge.ID] = charge
	r.byExternal[charge.ExternalID] = charge.ID
	return charge, nil
}

func (r *chargeRepositoryInMemory) FindByID(_ context.Context, id int64) (domain.Charge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	charge, ok := r.items[id]
	if !ok {
		return domain.Charge{}, domain.ErrChargeNotFound
	}
	return charge, nil
}

func (r *chargeRepositoryInMemory) FindByExternalID(_ context.Context, externalID string) (domain.Charge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byExternal[externalID]
	if !ok {
		return domain.Charge{}, domain.ErrChargeNotFound
	}
	return r.items[id], nil
}

func (r *chargeRepositoryInMemory) UpdateStatus(_ context.Context, id int64, status domain.ChargeStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	charge, ok := r.items[id]
	if !ok {
		return domain.ErrChargeNotFound
	}
	charge.Status = status
	r.items[id] = charge
	return nil
}

func (r *chargeRepositoryInMemory) UpdateParityStatus(_ context.Context, id int64, status domain.ParityCheckStatus, checkedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	charge, ok := r.items[id]
	if !ok {
		return domain.ErrChargeNotFound
	}
	checked := checkedAt.UTC()
	charge.ParityCheckStatus = status
	charge.ParityCheckedAt = &checked
	r.items[id] = charge
	return nil
}

func (r *chargeRepositoryInMemory) ListByIDRange(_ context.Context, fromID, toID int64, limit int) ([]domain.Charge, error) {
	return r.list(func(c domain.Charge) bool { return c.ID >= fromID && c.ID <= toID }, limit), nil
}

func (r *chargeRepositoryInMemory) ListByParityStatus(_ context.Context, status domain.ParityCheckStatus, afterID int64, limit int) ([]domain.Charge, error) {
	return r.list(func(c domain.Charge) bool { return c.ID > afterID && c.ParityCheckStatus == status }, limit), nil
}

func (r *chargeRepositoryInMemory) MaxID(_ context.Context) (int64, error) {
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

func (r *chargeRepositoryInMemory) list(match func(domain.Charge) bool, limit int) []domain.Charge {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Charge, 0)
	for _, charge := range r.items {
		if match(charge) {
			result = append(result, charge)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}
