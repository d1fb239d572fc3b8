package kafka

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/vladislavdragonenkov/payconnector/internal/service/emitter"
)

// DeadLetterPublisher отправляет исчерпавшие попытки переходы в DLQ topic.
type DeadLetterPublisher struct {
	producer    *Producer
	topic       string
	sourceTopic string
}

// NewDeadLetterPublisher создаёт паблишер DLQ. sourceTopic попадает в заголовок
// x-original-topic и нужен при разборе очереди.
func NewDeadLetterPublisher(producer *Producer, topic, sourceTopic string) *DeadLetterPublisher {
	if topic == "" {
		topic = TopicDeadLetterQueue
	}
	if sourceTopic == "" {
		sourceTopic = TopicPaymentEvents
	}
	return &DeadLetterPublisher{
		producer:    producer,
		topic:       topic,
		sourceTopic: sourceTopic,
	}
}

// PublishDeadLetter отправляет запись о переходе в DLQ.
func (p *DeadLetterPublisher) PublishDeadLetter(ctx context.Context, letter emitter.DeadLetter) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka dlq publisher is not initialized")
	}

	key := letter.ResourceExternalID
	if key == "" {
		key = letter.TransitionID
	}
	headers := map[string]string{
		HeaderOriginalTopic: p.sourceTopic,
		HeaderRetryCount:    strconv.Itoa(letter.Attempts),
		HeaderErrorMessage:  letter.Error,
		HeaderFailedAt:      letter.FailedAt.UTC().Format(time.RFC3339),
		HeaderEventType:     string(letter.EventType),
	}
	return p.producer.PublishEvent(ctx, p.topic, key, letter, headers)
}

var _ emitter.DeadLetterPublisher = (*DeadLetterPublisher)(nil)
