package kafka

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
)

// EventPublisher публикует события коннектора в Kafka topic.
// Ключ сообщения — external_id платежа, поэтому события платежа и его возвратов
// попадают в одну партицию и читаются по порядку.
type EventPublisher struct {
	producer *Producer
	topic    string
	newID    func() string
}

// NewEventPublisher создаёт Kafka-паблишер событий.
func NewEventPublisher(producer *Producer, topic string) *EventPublisher {
	if topic == "" {
		topic = TopicPaymentEvents
	}
	return &EventPublisher{
		producer: producer,
		topic:    topic,
		newID:    uuid.NewString,
	}
}

// Publish отправляет событие; повторная доставка допускается.
func (p *EventPublisher) Publish(ctx context.Context, event domain.Event) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka event publisher is not initialized")
	}

	headers := map[string]string{
		HeaderEventID:      p.newID(),
		HeaderEventType:    string(event.EventType),
		HeaderResourceType: string(event.ResourceType),
	}
	return p.producer.PublishEvent(ctx, p.topic, PartitionKey(event), event, headers)
}

// PartitionKey возвращает ключ партиционирования события.
func PartitionKey(event domain.Event) string {
	if event.ParentResourceExternalID != "" {
		return event.ParentResourceExternalID
	}
	return event.ResourceExternalID
}

var _ domain.EventPublisher = (*EventPublisher)(nil)
