package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
)

// emittedEventRepositoryInMemory — журнал публикаций в памяти.
type emittedEventRepositoryInMemory struct {
	mu     sync.RWMutex
	nextID int64
	items  map[string]domain.EmittedEvent
}

// NewEmittedEventRepository возвращает in-memory журнал публикаций.
func NewEmittedEventRepository() domain.EmittedEventRepository {
	return &emittedEventRepositoryInMemory{
		items: make(map[string]domain.EmittedEvent),
	}
}

// mapKey нормализует время: ключи с одинаковым моментом в разных зонах совпадают.
func mapKey(key domain.EmittedEventKey) string {
	return fmt.Sprintf("%s|%s|%s|%d", key.ResourceType, key.ExternalID, key.EventType, key.Timestamp.UnixNano())
}

func (r *emittedEventRepositoryInMemory) RecordOffered(_ context.Context, key domain.EmittedEventKey, doNotRetryBefore *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := mapKey(key)
	record, ok := r.items[k]
	if !ok {
		r.nextID++
		record = domain.EmittedEvent{ID: r.nextID, EmittedEventKey: normalizeKey(key)}
	}
	record.DoNotRetryEmitUntil = utcPtr(doNotRetryBefore)
	r.items[k] = record
	return nil
}

func (r *emittedEventRepositoryInMemory) MarkEmitted(_ context.Context, key domain.EmittedEventKey, emittedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := mapKey(key)
	record, ok := r.items[k]
	if !ok {
		r.nextID++
		record = domain.EmittedEvent{ID: r.nextID, EmittedEventKey: normalizeKey(key)}
	}
	emitted := emittedAt.UTC()
	record.EmittedDate = &emitted
	r.items[k] = record
	return nil
}

func (r *emittedEventRepositoryInMemory) Get(_ context.Context, key domain.EmittedEventKey) (domain.EmittedEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.items[mapKey(key)]
	if !ok {
		return domain.EmittedEvent{}, domain.ErrEmittedEventNotFound
	}
	return record, nil
}

func (r *emittedEventRepositoryInMemory) ListNotEmitted(_ context.Context, before, now time.Time, limit int) ([]domain.EmittedEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.EmittedEvent, 0)
	for _, record := range r.items {
		if record.Emitted() || !record.Timestamp.Before(before) {
			continue
		}
		if record.DoNotRetryEmitUntil != nil && record.DoNotRetryEmitUntil.After(now) {
			continue
		}
		result = append(result, record)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func normalizeKey(key domain.EmittedEventKey) domain.EmittedEventKey {
	key.Timestamp = key.Timestamp.UTC()
	return key
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
