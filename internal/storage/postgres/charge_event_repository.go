package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
)

type chargeEventRepository struct {
	store *Store
}

// NewChargeEventRepository создаёт PostgreSQL-реализацию ChargeEventRepository.
func NewChargeEventRepository(store *Store) domain.ChargeEventRepository {
	return &chargeEventRepository{store: store}
}

func (r *chargeEventRepository) Append(ctx context.Context, event domain.ChargeEvent) (domain.ChargeEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	event.UpdatedAt = event.UpdatedAt.UTC()
	err := r.store.conn(ctx).QueryRowContext(ctx, `
		INSERT INTO charge_events (charge_id, status, updated, gateway_event_date)
		VALUES ($1,$2,$3,$4)
		RETURNING id
	`, event.ChargeID, string(event.Status), event.UpdatedAt, nullTime(event.GatewayEventDate)).Scan(&event.ID)
	if err != nil {
		return domain.ChargeEvent{}, fmt.Errorf("insert charge event: %w", err)
	}
	return event, nil
}

func (r *chargeEventRepository) FindByID(ctx context.Context, id int64) (domain.ChargeEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.store.conn(ctx).QueryRowContext(ctx, `
		SELECT id, charge_id, status, updated, gateway_event_date
		FROM charge_events
		WHERE id = $1
	`, id)
	event, err := scanChargeEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ChargeEvent{}, domain.ErrChargeEventNotFound
		}
		return domain.ChargeEvent{}, fmt.Errorf("select charge event: %w", err)
	}
	return event, nil
}

func (r *chargeEventRepository) ListByChargeID(ctx context.Context, chargeID int64) ([]domain.ChargeEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.store.conn(ctx).QueryContext(ctx, `
		SELECT id, charge_id, status, updated, gateway_event_date
		FROM charge_events
		WHERE charge_id = $1
		ORDER BY id
	`, chargeID)
	if err != nil {
		return nil, fmt.Errorf("list charge events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.ChargeEvent, 0)
	for rows.Next() {
		event, err := scanChargeEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan charge event row: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate charge events: %w", err)
	}
	return events, nil
}

func scanChargeEvent(row rowScanner) (domain.ChargeEvent, error) {
	var (
		event            domain.ChargeEvent
		status           string
		gatewayEventDate sql.NullTime
	)
	if err := row.Scan(&event.ID, &event.ChargeID, &status, &event.UpdatedAt, &gatewayEventDate); err != nil {
		return domain.ChargeEvent{}, err
	}
	parsed, err := domain.ParseChargeStatus(status)
	if err != nil {
		return domain.ChargeEvent{}, fmt.Errorf("charge event %d: %w", event.ID, err)
	}
	event.Status = parsed
	event.UpdatedAt = event.UpdatedAt.UTC()
	event.GatewayEventDate = timePtr(gatewayEventDate)
	return event, nil
}

var _ domain.ChargeEventRepository = (*chargeEventRepository)(nil)
