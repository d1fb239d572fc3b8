package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
)

const refundColumns = `
	id, external_id, charge_external_id, amount, status,
	user_external_id, user_email, gateway_transaction_id, created_date,
	parity_check_status, parity_check_date`

type refundRepository struct {
	store *Store
}

// NewRefundRepository создаёт PostgreSQL-реализацию RefundRepository.
func NewRefundRepository(store *Store) domain.RefundRepository {
	return &refundRepository{store: store}
}

func (r *refundRepository) Create(ctx context.Context, refund domain.Refund) (domain.Refund, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if refund.ParityCheckStatus == "" {
		refund.ParityCheckStatus = domain.ParityNotChecked
	}
	refund.CreatedAt = refund.CreatedAt.UTC()

	err := r.store.conn(ctx).QueryRowContext(ctx, `
		INSERT INTO refunds (
			external_id, charge_external_id, amount, status,
			user_external_id, user_email, gateway_transaction_id, created_date,
			parity_check_status, parity_check_date
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id
	`,
		refund.ExternalID, refund.ChargeExternalID, refund.AmountMinor, string(refund.Status),
		nullStringFromValue(refund.UserExternalID), nullStringFromValue(refund.UserEmail),
		nullStringFromValue(refund.GatewayTransactionID), refund.CreatedAt,
		string(refund.ParityCheckStatus), nullTime(refund.ParityCheckedAt),
	).Scan(&refund.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Refund{}, domain.ErrRefundAlreadyExists
		}
		return domain.Refund{}, fmt.Errorf("insert refund: %w", err)
	}
	return refund, nil
}

func (r *refundRepository) FindByExternalID(ctx context.Context, externalID string) (domain.Refund, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.store.conn(ctx).QueryRowContext(ctx, `SELECT `+refundColumns+` FROM refunds WHERE external_id = $1`, externalID)
	refund, err := scanRefund(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Refund{}, domain.ErrRefundNotFound
		}
		return domain.Refund{}, fmt.Errorf("select refund: %w", err)
	}
	return refund, nil
}

func (r *refundRepository) ListByChargeExternalID(ctx context.Context, chargeExternalID string) ([]domain.Refund, error) {
	return r.list(ctx, `
		SELECT `+refundColumns+`
		FROM refunds
		WHERE charge_external_id = $1
		ORDER BY id
	`, chargeExternalID)
}

func (r *refundRepository) UpdateStatus(ctx context.Context, id int64, status domain.RefundStatus) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.store.conn(ctx).ExecContext(ctx, `UPDATE refunds SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update refund status: %w", err)
	}
	return expectAffected(res, domain.ErrRefundNotFound)
}

func (r *refundRepository) UpdateParityStatus(ctx context.Context, id int64, status domain.ParityCheckStatus, checkedAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.store.conn(ctx).ExecContext(ctx, `
		UPDATE refunds
		SET parity_check_status = $2, parity_check_date = $3
		WHERE id = $1
	`, id, string(status), checkedAt.UTC())
	if err != nil {
		return fmt.Errorf("update refund parity status: %w", err)
	}
	return expectAffected(res, domain.ErrRefundNotFound)
}

func (r *refundRepository) ListByIDRange(ctx context.Context, fromID, toID int64, limit int) ([]domain.Refund, error) {
	return r.list(ctx, `
		SELECT `+refundColumns+`
		FROM refunds
		WHERE id >= $1 AND id <= $2
		ORDER BY id
		LIMIT $3
	`, fromID, toID, normalizeLimit(limit))
}

func (r *refundRepository) ListByParityStatus(ctx context.Context, status domain.ParityCheckStatus, afterID int64, limit int) ([]domain.Refund, error) {
	return r.list(ctx, `
		SELECT `+refundColumns+`
		FROM refunds
		WHERE parity_check_status = $1 AND id > $2
		ORDER BY id
		LIMIT $3
	`, string(status), afterID, normalizeLimit(limit))
}

func (r *refundRepository) MaxID(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var maxID int64
	if err := r.store.conn(ctx).QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM refunds`).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("select max refund id: %w", err)
	}
	return maxID, nil
}

func (r *refundRepository) list(ctx context.Context, query string, args ...any) ([]domain.Refund, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.store.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list refunds: %w", err)
	}
	defer rows.Close()

	refunds := make([]domain.Refund, 0)
	for rows.Next() {
		refund, err := scanRefund(rows)
		if err != nil {
			return nil, fmt.Errorf("scan refund row: %w", err)
		}
		refunds = append(refunds, refund)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refunds: %w", err)
	}
	return refunds, nil
}

func scanRefund(row rowScanner) (domain.Refund, error) {
	var (
		refund                         domain.Refund
		status, parityStatus           string
		userID, userEmail, gatewayTxID sql.NullString
		parityCheckedAt                sql.NullTime
	)
	if err := row.Scan(
		&refund.ID, &refund.ExternalID, &refund.ChargeExternalID, &refund.AmountMinor, &status,
		&userID, &userEmail, &gatewayTxID, &refund.CreatedAt,
		&parityStatus, &parityCheckedAt,
	); err != nil {
		return domain.Refund{}, err
	}

	parsedStatus, err := domain.ParseRefundStatus(status)
	if err != nil {
		return domain.Refund{}, fmt.Errorf("refund %s: %w", refund.ExternalID, err)
	}
	parsedParity, err := domain.ParseParityCheckStatus(parityStatus)
	if err != nil {
		return domain.Refund{}, fmt.Errorf("refund %s: %w", refund.ExternalID, err)
	}

	refund.Status = parsedStatus
	refund.ParityCheckStatus = parsedParity
	refund.ParityCheckedAt = timePtr(parityCheckedAt)
	refund.CreatedAt = refund.CreatedAt.UTC()
	refund.UserExternalID = userID.String
	refund.UserEmail = userEmail.String
	refund.GatewayTransactionID = gatewayTxID.String
	return refund, nil
}

var _ domain.RefundRepository = (*refundRepository)(nil)
