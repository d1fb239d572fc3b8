package charge

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
	"github.com/vladislavdragonenkov/payconnector/internal/service/transition"
)

// TransitionOfferer — часть transition.Service, которую использует StateService.
type TransitionOfferer interface {
	OfferPaymentTransition(ctx context.Context, chargeExternalID string, from, to domain.ChargeStatus, row domain.ChargeEvent) error
	OfferTransition(ctx context.Context, t transition.StateTransition, event domain.Event, doNotRetryBefore *time.Time) error
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

// StateService меняет статус платежа и в той же транзакции пишет историю и предлагает событие.
type StateService struct {
	tx      domain.Transactor
	charges domain.ChargeRepository
	events  domain.ChargeEventRepository
	offerer TransitionOfferer
	logger  *log.Entry
	now     func() time.Time
}

// NewStateService создаёт StateService.
func NewStateService(tx domain.Transactor, charges domain.ChargeRepository, events domain.ChargeEventRepository, offerer TransitionOfferer, options ...Option) *StateService {
	s := &StateService{
		tx:      tx,
		charges: charges,
		events:  events,
		offerer: offerer,
		logger:  log.WithField("component", "charge-state"),
		now:     time.Now,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// CreateCharge сохраняет новый платёж в статусе CREATED и предлагает PAYMENT_CREATED.
func (s *StateService) CreateCharge(ctx context.Context, charge domain.Charge) (domain.Charge, error) {
	now := s.now().UTC().Truncate(time.Microsecond)
	charge.Status = domain.ChargeStatusCreated
	if charge.CreatedAt.IsZero() {
		charge.CreatedAt = now
	}

	var created domain.Charge
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.charges.Create(ctx, charge)
		if err != nil {
			return fmt.Errorf("create charge %s: %w", charge.ExternalID, err)
		}

		row, err := s.events.Append(ctx, domain.ChargeEvent{
			ChargeID:  created.ID,
			Status:    domain.ChargeStatusCreated,
			UpdatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("append charge event for %s: %w", created.ExternalID, err)
		}

		event := domain.Event{
			ResourceType:       domain.ResourceTypePayment,
			ResourceExternalID: created.ExternalID,
			EventType:          domain.EventPaymentCreated,
			Timestamp:          row.UpdatedAt,
			Live:               created.GatewayAccount.Live,
		}
		return s.offerer.OfferTransition(ctx, transition.NewPaymentStateTransition(row.ID, domain.EventPaymentCreated), event, nil)
	})
	if err != nil {
		return domain.Charge{}, err
	}

	s.logger.WithField("charge_external_id", created.ExternalID).Info("charge created")
	return created, nil
}

// TransitionChargeState переводит платёж в target. gatewayEventDate — время события
// у провайдера, если оно известно (например, дата подтверждения списания).
func (s *StateService) TransitionChargeState(ctx context.Context, externalID string, target domain.ChargeStatus, gatewayEventDate *time.Time) (domain.Charge, error) {
	if !target.Valid() {
		return domain.Charge{}, fmt.Errorf("transition charge %s to %q: %w", externalID, target, domain.ErrUnknownChargeStatus)
	}

	var updated domain.Charge
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		charge, err := s.charges.FindByExternalID(ctx, externalID)
		if err != nil {
			return fmt.Errorf("load charge %s: %w", externalID, err)
		}
		from := charge.Status

		if err := s.charges.UpdateStatus(ctx, charge.ID, target); err != nil {
			return fmt.Errorf("update charge %s status: %w", externalID, err)
		}

		row, err := s.events.Append(ctx, domain.ChargeEvent{
			ChargeID:         charge.ID,
			Status:           target,
			UpdatedAt:        s.now().UTC().Truncate(time.Microsecond),
			GatewayEventDate: gatewayEventDate,
		})
		if err != nil {
			return fmt.Errorf("append charge event for %s: %w", externalID, err)
		}

		if err := s.offerer.OfferPaymentTransition(ctx, externalID, from, target, row); err != nil {
			return err
		}

		charge.Status = target
		updated = charge
		return nil
	})
	if err != nil {
		return domain.Charge{}, err
	}

	s.logger.WithFields(log.Fields{
		"charge_external_id": externalID,
		"status":             target,
	}).Debug("charge status changed")
	return updated, nil
}
