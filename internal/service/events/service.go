package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
)

// Service публикует события и ведёт журнал идемпотентности публикаций.
type Service struct {
	repo      domain.EmittedEventRepository
	publisher domain.EventPublisher
	logger    *log.Entry
	now       func() time.Time
}

// ServiceOption настраивает Service.
type ServiceOption func(*Service)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock подменяет источник текущего времени.
func WithClock(clock func() time.Time) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewService создаёт сервис публикации событий.
func NewService(repo domain.EmittedEventRepository, publisher domain.EventPublisher, options ...ServiceOption) *Service {
	s := &Service{
		repo:      repo,
		publisher: publisher,
		logger:    log.WithField("component", "event-service"),
		now:       time.Now,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Emit публикует событие без записи в журнал.
func (s *Service) Emit(ctx context.Context, event domain.Event) error {
	if err := s.publisher.Publish(ctx, event); err != nil {
		return fmt.Errorf("%w: %s %s: %w", domain.ErrEventPublish, event.EventType, event.ResourceExternalID, err)
	}
	return nil
}

// RecordOffered отмечает, что событие предложено к публикации.
func (s *Service) RecordOffered(ctx context.Context, key domain.EmittedEventKey, doNotRetryBefore *time.Time) error {
	if err := s.repo.RecordOffered(ctx, key, doNotRetryBefore); err != nil {
		return fmt.Errorf("record offered event: %w", err)
	}
	return nil
}

// EmitAndRecord публикует событие и проставляет дату публикации.
// Если запись в журнал не удалась, событие уже опубликовано и повтор будет поглощён получателем.
func (s *Service) EmitAndRecord(ctx context.Context, event domain.Event) error {
	if err := s.Emit(ctx, event); err != nil {
		return err
	}
	if err := s.repo.MarkEmitted(ctx, event.Key(), s.now().UTC()); err != nil {
		return fmt.Errorf("mark event emitted: %w", err)
	}

	s.logger.WithFields(log.Fields{
		"resource_type": event.ResourceType,
		"external_id":   event.ResourceExternalID,
		"event_type":    event.EventType,
	}).Debug("event emitted")
	return nil
}

// HasBeenEmitted сообщает, подтверждена ли публикация события с данным ключом.
func (s *Service) HasBeenEmitted(ctx context.Context, key domain.EmittedEventKey) (bool, error) {
	record, err := s.repo.Get(ctx, key)
	if errors.Is(err, domain.ErrEmittedEventNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get emitted event: %w", err)
	}
	return record.Emitted(), nil
}
