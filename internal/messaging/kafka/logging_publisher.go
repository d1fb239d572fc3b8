package kafka

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
	"github.com/vladislavdragonenkov/payconnector/internal/service/emitter"
)

// LoggingPublisher пишет события и DLQ-записи в лог. Используется, когда Kafka не настроена.
type LoggingPublisher struct {
	logger *log.Entry
}

// NewLoggingPublisher создаёт паблишер, который только логирует.
func NewLoggingPublisher(logger *log.Entry) *LoggingPublisher {
	if logger == nil {
		logger = log.WithField("component", "logging-publisher")
	}
	return &LoggingPublisher{logger: logger}
}

// Publish логирует событие.
func (p *LoggingPublisher) Publish(_ context.Context, event domain.Event) error {
	p.logger.WithFields(log.Fields{
		"event_type":           event.EventType,
		"resource_type":        event.ResourceType,
		"resource_external_id": event.ResourceExternalID,
		"parent_external_id":   event.ParentResourceExternalID,
		"timestamp":            event.Timestamp,
		"partition_key":        PartitionKey(event),
	}).Info("event published")
	return nil
}

// PublishDeadLetter логирует переход, исчерпавший попытки.
func (p *LoggingPublisher) PublishDeadLetter(_ context.Context, letter emitter.DeadLetter) error {
	p.logger.WithFields(log.Fields{
		"transition_id":        letter.TransitionID,
		"event_type":           letter.EventType,
		"resource_external_id": letter.ResourceExternalID,
		"attempts":             letter.Attempts,
		"publish_error":        letter.Error,
	}).Warn("dead letter")
	return nil
}

var (
	_ domain.EventPublisher       = (*LoggingPublisher)(nil)
	_ emitter.DeadLetterPublisher = (*LoggingPublisher)(nil)
)
