package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
)

type refundHistoryRepository struct {
	store *Store
}

// NewRefundHistoryRepository создаёт PostgreSQL-реализацию RefundHistoryRepository.
func NewRefundHistoryRepository(store *Store) domain.RefundHistoryRepository {
	return &refundHistoryRepository{store: store}
}

func (r *refundHistoryRepository) Append(ctx context.Context, row domain.RefundHistory) (domain.RefundHistory, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row.HistoryStartDate = row.HistoryStartDate.UTC()
	err := r.store.conn(ctx).QueryRowContext(ctx, `
		INSERT INTO refunds_history (
			refund_id, external_id, charge_external_id, amount, status,
			user_external_id, user_email, gateway_transaction_id, history_start_date
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id
	`,
		row.RefundID, row.ExternalID, row.ChargeExternalID, row.AmountMinor, string(row.Status),
		nullStringFromValue(row.UserExternalID), nullStringFromValue(row.UserEmail),
		nullStringFromValue(row.GatewayTransactionID), row.HistoryStartDate,
	).Scan(&row.ID)
	if err != nil {
		return domain.RefundHistory{}, fmt.Errorf("insert refund history: %w", err)
	}
	return row, nil
}

func (r *refundHistoryRepository) ListByExternalID(ctx context.Context, externalID string) ([]domain.RefundHistory, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.store.conn(ctx).QueryContext(ctx, `
		SELECT id, refund_id, external_id, charge_external_id, amount, status,
			user_external_id, user_email, gateway_transaction_id, history_start_date
		FROM refunds_history
		WHERE external_id = $1
		ORDER BY history_start_date, id
	`, externalID)
	if err != nil {
		return nil, fmt.Errorf("list refund history: %w", err)
	}
	defer rows.Close()

	history := make([]domain.RefundHistory, 0)
	for rows.Next() {
		var (
			h                              domain.RefundHistory
			status                         string
			userID, userEmail, gatewayTxID sql.NullString
		)
		if err := rows.Scan(
			&h.ID, &h.RefundID, &h.ExternalID, &h.ChargeExternalID, &h.AmountMinor, &status,
			&userID, &userEmail, &gatewayTxID, &h.HistoryStartDate,
		); err != nil {
			return nil, fmt.Errorf("scan refund history row: %w", err)
		}
		parsed, err := domain.ParseRefundStatus(status)
		if err != nil {
			return nil, fmt.Errorf("refund history %d: %w", h.ID, err)
		}
		h.Status = parsed
		h.UserExternalID = userID.String
		h.UserEmail = userEmail.String
		h.GatewayTransactionID = gatewayTxID.String
		h.HistoryStartDate = h.HistoryStartDate.UTC()
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refund history: %w", err)
	}
	return history, nil
}

var _ domain.RefundHistoryRepository = (*refundHistoryRepository)(nil)
