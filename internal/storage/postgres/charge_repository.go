package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
)

const chargeColumns = `
	id, external_id, amount, corporate_surcharge, fee, net_amount, status,
	description, reference, email, language, return_url, gateway_transaction_id,
	has_card_details, cardholder_name, first_digits_card_number, last_digits_card_number,
	card_brand, card_type, expiry_date,
	has_billing_address, address_line1, address_line2, address_postcode,
	address_city, address_county, address_country,
	wallet_type, moto, delayed_capture, source,
	gateway_account_id, live, payment_provider, created_date,
	parity_check_status, parity_check_date`

type chargeRepository struct {
	store *Store
}

// NewChargeRepository создаёт PostgreSQL-реализацию ChargeRepository.
func NewChargeRepository(store *Store) domain.ChargeRepository {
	return &chargeRepository{store: store}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *chargeRepository) Create(ctx context.Context, charge domain.Charge) (domain.Charge, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if charge.ParityCheckStatus == "" {
		charge.ParityCheckStatus = domain.ParityNotChecked
	}

	card := charge.CardDetails
	if card == nil {
		card = &domain.CardDetails{}
	}
	address := card.BillingAddress
	if address == nil {
		address = &domain.Address{}
	}

	var walletType, source sql.NullString
	if charge.WalletType != nil {
		walletType = sql.NullString{String: string(*charge.WalletType), Valid: true}
	}
	if charge.Source != nil {
		source = sql.NullString{String: string(*charge.Source), Valid: true}
	}

	err := r.store.conn(ctx).QueryRowContext(ctx, `
		INSERT INTO charges (
			external_id, amount, corporate_surcharge, fee, net_amount, status,
			description, reference, email, language, return_url, gateway_transaction_id,
			has_card_details, cardholder_name, first_digits_card_number, last_digits_card_number,
			card_brand, card_type, expiry_date,
			has_billing_address, address_line1, address_line2, address_postcode,
			address_city, address_county, address_country,
			wallet_type, moto, delayed_capture, source,
			gateway_account_id, live, payment_provider, created_date,
			parity_check_status, parity_check_date
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,
			$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$33,$34,$35,$36
		)
		RETURNING id
	`,
		charge.ExternalID, charge.AmountMinor, nullInt64(charge.CorporateSurcharge),
		nullInt64(charge.Fee), nullInt64(charge.NetAmount), string(charge.Status),
		charge.Description, charge.Reference, nullString(charge.Email), charge.Language,
		charge.ReturnURL, nullString(charge.GatewayTransactionID),
		charge.CardDetails != nil, nullString(card.CardholderName), nullString(card.FirstDigits),
		nullString(card.LastDigits), nullString(card.CardBrand), nullString(card.CardType),
		nullString(card.ExpiryDate),
		card.BillingAddress != nil, nullStringFromValue(address.Line1), nullStringFromValue(address.Line2),
		nullStringFromValue(address.Postcode), nullStringFromValue(address.City),
		nullStringFromValue(address.County), nullStringFromValue(address.Country),
		walletType, charge.Moto, charge.DelayedCapture, source,
		charge.GatewayAccount.ID, charge.GatewayAccount.Live, charge.GatewayAccount.PaymentProvider,
		charge.CreatedAt.UTC(), string(charge.ParityCheckStatus), nullTime(charge.ParityCheckedAt),
	).Scan(&charge.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Charge{}, domain.ErrChargeAlreadyExists
		}
		return domain.Charge{}, fmt.Errorf("insert charge: %w", err)
	}

	return charge, nil
}

func (r *chargeRepository) FindByID(ctx context.Context, id int64) (domain.Charge, error) {
	return r.findOne(ctx, "id = $1", id)
}

func (r *chargeRepository) FindByExternalID(ctx context.Context, externalID string) (domain.Charge, error) {
	return r.findOne(ctx, "external_id = $1", externalID)
}

func (r *chargeRepository) findOne(ctx context.Context, where string, arg any) (domain.Charge, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.store.conn(ctx).QueryRowContext(ctx, `SELECT `+chargeColumns+` FROM charges WHERE `+where, arg)
	charge, err := scanCharge(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Charge{}, domain.ErrChargeNotFound
		}
		return domain.Charge{}, fmt.Errorf("select charge: %w", err)
	}
	return charge, nil
}

func (r *chargeRepository) UpdateStatus(ctx context.Context, id int64, status domain.ChargeStatus) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.store.conn(ctx).ExecContext(ctx, `UPDATE charges SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update charge status: %w", err)
	}
	return expectAffected(res, domain.ErrChargeNotFound)
}

func (r *chargeRepository) UpdateParityStatus(ctx context.Context, id int64, status domain.ParityCheckStatus, checkedAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.store.conn(ctx).ExecContext(ctx, `
		UPDATE charges
		SET parity_check_status = $2, parity_check_date = $3
		WHERE id = $1
	`, id, string(status), checkedAt.UTC())
	if err != nil {
		return fmt.Errorf("update charge parity status: %w", err)
	}
	return expectAffected(res, domain.ErrChargeNotFound)
}

func (r *chargeRepository) ListByIDRange(ctx context.Context, fromID, toID int64, limit int) ([]domain.Charge, error) {
	return r.list(ctx, `
		SELECT `+chargeColumns+`
		FROM charges
		WHERE id >= $1 AND id <= $2
		ORDER BY id
		LIMIT $3
	`, fromID, toID, normalizeLimit(limit))
}

func (r *chargeRepository) ListByParityStatus(ctx context.Context, status domain.ParityCheckStatus, afterID int64, limit int) ([]domain.Charge, error) {
	return r.list(ctx, `
		SELECT `+chargeColumns+`
		FROM charges
		WHERE parity_check_status = $1 AND id > $2
		ORDER BY id
		LIMIT $3
	`, string(status), afterID, normalizeLimit(limit))
}

func (r *chargeRepository) MaxID(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var maxID int64
	if err := r.store.conn(ctx).QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM charges`).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("select max charge id: %w", err)
	}
	return maxID, nil
}

func (r *chargeRepository) list(ctx context.Context, query string, args ...any) ([]domain.Charge, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.store.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list charges: %w", err)
	}
	defer rows.Close()

	charges := make([]domain.Charge, 0)
	for rows.Next() {
		charge, err := scanCharge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan charge row: %w", err)
		}
		charges = append(charges, charge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate charges: %w", err)
	}
	return charges, nil
}

func scanCharge(row rowScanner) (domain.Charge, error) {
	var (
		charge                                        domain.Charge
		status, parityStatus                          string
		surcharge, fee, netAmount                     sql.NullInt64
		email, gatewayTxID, walletType, source        sql.NullString
		hasCard, hasAddress                           bool
		cardholder, firstDigits, lastDigits           sql.NullString
		brand, cardType, expiry                       sql.NullString
		line1, line2, postcode, city, county, country sql.NullString
		parityCheckedAt                               sql.NullTime
	)
	if err := row.Scan(
		&charge.ID, &charge.ExternalID, &charge.AmountMinor, &surcharge, &fee, &netAmount, &status,
		&charge.Description, &charge.Reference, &email, &charge.Language, &charge.ReturnURL, &gatewayTxID,
		&hasCard, &cardholder, &firstDigits, &lastDigits,
		&brand, &cardType, &expiry,
		&hasAddress, &line1, &line2, &postcode,
		&city, &county, &country,
		&walletType, &charge.Moto, &charge.DelayedCapture, &source,
		&charge.GatewayAccount.ID, &charge.GatewayAccount.Live, &charge.GatewayAccount.PaymentProvider, &charge.CreatedAt,
		&parityStatus, &parityCheckedAt,
	); err != nil {
		return domain.Charge{}, err
	}

	parsedStatus, err := domain.ParseChargeStatus(status)
	if err != nil {
		return domain.Charge{}, fmt.Errorf("charge %s: %w", charge.ExternalID, err)
	}
	parsedParity, err := domain.ParseParityCheckStatus(parityStatus)
	if err != nil {
		return domain.Charge{}, fmt.Errorf("charge %s: %w", charge.ExternalID, err)
	}

	charge.Status = parsedStatus
	charge.ParityCheckStatus = parsedParity
	charge.ParityCheckedAt = timePtr(parityCheckedAt)
	charge.CreatedAt = charge.CreatedAt.UTC()
	charge.CorporateSurcharge = int64Ptr(surcharge)
	charge.Fee = int64Ptr(fee)
	charge.NetAmount = int64Ptr(netAmount)
	charge.Email = stringPtr(email)
	charge.GatewayTransactionID = stringPtr(gatewayTxID)
	if walletType.Valid {
		w := domain.WalletType(walletType.String)
		charge.WalletType = &w
	}
	if source.Valid {
		s := domain.Source(source.String)
		charge.Source = &s
	}
	if hasCard {
		charge.CardDetails = &domain.CardDetails{
			CardholderName: stringPtr(cardholder),
			FirstDigits:    stringPtr(firstDigits),
			LastDigits:     stringPtr(lastDigits),
			CardBrand:      stringPtr(brand),
			CardType:       stringPtr(cardType),
			ExpiryDate:     stringPtr(expiry),
		}
		if hasAddress {
			charge.CardDetails.BillingAddress = &domain.Address{
				Line1:    line1.String,
				Line2:    line2.String,
				Postcode: postcode.String,
				City:     city.String,
				County:   county.String,
				Country:  country.String,
			}
		}
	}
	return charge, nil
}

func expectAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

var _ domain.ChargeRepository = (*chargeRepository)(nil)
