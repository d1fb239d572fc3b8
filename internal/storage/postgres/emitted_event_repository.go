package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
)

type emittedEventRepository struct {
	store *Store
}

// NewEmittedEventRepository создаёт PostgreSQL-реализацию журнала публикаций.
func NewEmittedEventRepository(store *Store) domain.EmittedEventRepository {
	return &emittedEventRepository{store: store}
}

func (r *emittedEventRepository) RecordOffered(ctx context.Context, key domain.EmittedEventKey, doNotRetryBefore *time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.store.conn(ctx).ExecContext(ctx, `
		INSERT INTO emitted_events (
			resource_type, resource_external_id, event_type, event_date, do_not_retry_emit_until
		) VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT ON CONSTRAINT uq_emitted_events_key
		DO UPDATE SET do_not_retry_emit_until = EXCLUDED.do_not_retry_emit_until
	`,
		string(key.ResourceType), key.ExternalID, string(key.EventType), key.Timestamp.UTC(),
		nullTime(doNotRetryBefore),
	)
	if err != nil {
		return fmt.Errorf("record offered event: %w", err)
	}
	return nil
}

func (r *emittedEventRepository) MarkEmitted(ctx context.Context, key domain.EmittedEventKey, emittedAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.store.conn(ctx).ExecContext(ctx, `
		INSERT INTO emitted_events (
			resource_type, resource_external_id, event_type, event_date, emitted_date
		) VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT ON CONSTRAINT uq_emitted_events_key
		DO UPDATE SET emitted_date = EXCLUDED.emitted_date
	`,
		string(key.ResourceType), key.ExternalID, string(key.EventType), key.Timestamp.UTC(),
		emittedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("mark event emitted: %w", err)
	}
	return nil
}

func (r *emittedEventRepository) Get(ctx context.Context, key domain.EmittedEventKey) (domain.EmittedEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.store.conn(ctx).QueryRowContext(ctx, `
		SELECT id, resource_type, resource_external_id, event_type, event_date,
			emitted_date, do_not_retry_emit_until
		FROM emitted_events
		WHERE resource_type = $1 AND resource_external_id = $2 AND event_type = $3 AND event_date = $4
	`, string(key.ResourceType), key.ExternalID, string(key.EventType), key.Timestamp.UTC())

	record, err := scanEmittedEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.EmittedEvent{}, domain.ErrEmittedEventNotFound
		}
		return domain.EmittedEvent{}, fmt.Errorf("select emitted event: %w", err)
	}
	return record, nil
}

func (r *emittedEventRepository) ListNotEmitted(ctx context.Context, before, now time.Time, limit int) ([]domain.EmittedEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.store.conn(ctx).QueryContext(ctx, `
		SELECT id, resource_type, resource_external_id, event_type, event_date,
			emitted_date, do_not_retry_emit_until
		FROM emitted_events
		WHERE emitted_date IS NULL
		  AND event_date < $1
		  AND (do_not_retry_emit_until IS NULL OR do_not_retry_emit_until <= $2)
		ORDER BY id
		LIMIT $3
	`, before.UTC(), now.UTC(), normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list not emitted events: %w", err)
	}
	defer rows.Close()

	records := make([]domain.EmittedEvent, 0)
	for rows.Next() {
		record, err := scanEmittedEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan emitted event row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate emitted events: %w", err)
	}
	return records, nil
}

func scanEmittedEvent(row rowScanner) (domain.EmittedEvent, error) {
	var (
		record                  domain.EmittedEvent
		resourceType, eventType string
		emitted, notBefore      sql.NullTime
	)
	if err := row.Scan(
		&record.ID, &resourceType, &record.ExternalID, &eventType, &record.Timestamp,
		&emitted, &notBefore,
	); err != nil {
		return domain.EmittedEvent{}, err
	}
	record.ResourceType = domain.ResourceType(resourceType)
	record.EventType = domain.EventType(eventType)
	record.Timestamp = record.Timestamp.UTC()
	record.EmittedDate = timePtr(emitted)
	record.DoNotRetryEmitUntil = timePtr(notBefore)
	return record, nil
}

var _ domain.EmittedEventRepository = (*emittedEventRepository)(nil)
