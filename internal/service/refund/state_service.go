package refund

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
)

// TransitionOfferer — часть transition.Service, которую использует StateService.
type TransitionOfferer interface {
	OfferRefundTransition(ctx context.Context, refund domain.Refund, target domain.RefundStatus, at time.Time) error
}

// Option настраивает StateService.
type Option func(*StateService)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *StateService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(clock func() time.Time) Option {
	return func(s *StateService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// StateService создаёт возвраты и меняет их статус, дописывая историю и предлагая событие
// в одной транзакции.
type StateService struct {
	tx      domain.Transactor
	charges domain.ChargeRepository
	refunds domain.RefundRepository
	history domain.RefundHistoryRepository
	offerer TransitionOfferer
	logger  *log.Entry
	now     func() time.Time
}

// NewStateService создаёт StateService.
func NewStateService(
	tx domain.Transactor,
	charges domain.ChargeRepository,
	refunds domain.RefundRepository,
	history domain.RefundHistoryRepository,
	offerer TransitionOfferer,
	options ...Option,
) *StateService {
	s := &StateService{
		tx:      tx,
		charges: charges,
		refunds: refunds,
		history: history,
		offerer: offerer,
		logger:  log.WithField("component", "refund-state"),
		now:     time.Now,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// CreateRefund сохраняет возврат в статусе CREATED. Пустой UserExternalID означает,
// что возврат инициирован сервисом.
func (s *StateService) CreateRefund(ctx context.Context, refund domain.Refund) (domain.Refund, error) {
	now := s.timestamp()
	refund.Status = domain.RefundStatusCreated
	if refund.CreatedAt.IsZero() {
		refund.CreatedAt = now
	}

	var created domain.Refund
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.charges.FindByExternalID(ctx, refund.ChargeExternalID); err != nil {
			return fmt.Errorf("load charge %s for refund: %w", refund.ChargeExternalID, err)
		}

		var err error
		created, err = s.refunds.Create(ctx, refund)
		if err != nil {
			return fmt.Errorf("create refund %s: %w", refund.ExternalID, err)
		}
		row, err := s.appendHistory(ctx, created, now)
		if err != nil {
			return err
		}
		return s.offerer.OfferRefundTransition(ctx, created, domain.RefundStatusCreated, row.HistoryStartDate)
	})
	if err != nil {
		return domain.Refund{}, err
	}

	s.logger.WithFields(log.Fields{
		"refund_external_id": created.ExternalID,
		"charge_external_id": created.ChargeExternalID,
	}).Info("refund created")
	return created, nil
}

// TransitionRefundState переводит возврат в target.
func (s *StateService) TransitionRefundState(ctx context.Context, externalID string, target domain.RefundStatus) (domain.Refund, error) {
	if !target.Valid() {
		return domain.Refund{}, fmt.Errorf("transition refund %s to %q: %w", externalID, target, domain.ErrUnknownRefundStatus)
	}

	var updated domain.Refund
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		refund, err := s.refunds.FindByExternalID(ctx, externalID)
		if err != nil {
			return fmt.Errorf("load refund %s: %w", externalID, err)
		}

		if err := s.refunds.UpdateStatus(ctx, refund.ID, target); err != nil {
			return fmt.Errorf("update refund %s status: %w", externalID, err)
		}
		refund.Status = target

		row, err := s.appendHistory(ctx, refund, s.timestamp())
		if err != nil {
			return err
		}
		if err := s.offerer.OfferRefundTransition(ctx, refund, target, row.HistoryStartDate); err != nil {
			return err
		}

		updated = refund
		return nil
	})
	if err != nil {
		return domain.Refund{}, err
	}

	s.logger.WithFields(log.Fields{
		"refund_external_id": externalID,
		"status":             target,
	}).Debug("refund status changed")
	return updated, nil
}

// timestamp обрезан до микросекунд: с такой точностью postgres хранит HistoryStartDate,
// и ключ события, восстановленный из истории, должен совпасть с предложенным.
func (s *StateService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// appendHistory дописывает строку истории. Её HistoryStartDate — момент события возврата.
func (s *StateService) appendHistory(ctx context.Context, refund domain.Refund, at time.Time) (domain.RefundHistory, error) {
	row, err := s.history.Append(ctx, domain.RefundHistory{
		RefundID:             refund.ID,
		ExternalID:           refund.ExternalID,
		ChargeExternalID:     refund.ChargeExternalID,
		AmountMinor:          refund.AmountMinor,
		Status:               refund.Status,
		UserExternalID:       refund.UserExternalID,
		UserEmail:            refund.UserEmail,
		GatewayTransactionID: refund.GatewayTransactionID,
		HistoryStartDate:     at,
	})
	if err != nil {
		return domain.RefundHistory{}, fmt.Errorf("append refund history for %s: %w", refund.ExternalID, err)
	}
	return row, nil
}
