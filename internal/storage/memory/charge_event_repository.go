package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
)

// chargeEventRepositoryInMemory хранит историю статусов платежей в памяти.
type chargeEventRepositoryInMemory struct {
	mu     sync.RWMutex
	nextID int64
	items  map[int64]domain.ChargeEvent
}

// NewChargeEventRepository возвращает in-memory репозиторий истории статусов.
func NewChargeEventRepository() domain.ChargeEventRepository {
	return &chargeEventRepositoryInMemory{
		items: make(map[int64]domain.ChargeEvent),
	}
}

func (r *chargeEventRepositoryInMemory) Append(_ context.Context, event domain.ChargeEvent) (domain.ChargeEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	event.ID = r.nextID
	r.items[event.ID] = event
	return event, nil
}

func (r *chargeEventRepositoryInMemory) FindByID(_ context.Context, id int64) (domain.ChargeEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	event, ok := r.items[id]
	if !ok {
		return domain.ChargeEvent{}, domain.ErrChargeEventNotFound
	}
	return event, nil
}

func (r *chargeEventRepositoryInMemory) ListByChargeID(_ context.Context, chargeID int64) ([]domain.ChargeEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.ChargeEvent, 0)
	for _, event := range r.items {
		if event.ChargeID == chargeID {
			result = append(result, event)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
