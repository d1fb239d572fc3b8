package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
	"github.com/vladislavdragonenkov/payconnector/internal/service/emitter"
)

var sentAt = time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)

func newTestProducer(t *testing.T) (*Producer, *mocks.SyncProducer) {
	t.Helper()
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := newProducer(mockProducer, ProducerOptions{
		Logger: log.WithField("component", "kafka-producer-test"),
		Now:    func() time.Time { return sentAt },
	})
	return producer, mockProducer
}

func headerValue(msg *sarama.ProducerMessage, name string) string {
	for _, h := range msg.Headers {
		if string(h.Key) == name {
			return string(h.Value)
		}
	}
	return ""
}

func messageKey(msg *sarama.ProducerMessage) string {
	if msg.Key == nil {
		return ""
	}
	raw, err := msg.Key.Encode()
	if err != nil {
		return ""
	}
	return string(raw)
}

func TestProducer_PublishEvent(t *testing.T) {
	producer, mockProducer := newTestProducer(t)

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicPaymentEvents {
			return errors.New("unexpected topic " + msg.Topic)
		}
		if got := messageKey(msg); got != "ch-1" {
			return errors.New("unexpected key " + got)
		}
		if !msg.Timestamp.Equal(sentAt) {
			return errors.New("unexpected timestamp")
		}
		if headerValue(msg, HeaderEventType) != "PAYMENT_CREATED" {
			return errors.New("event type header is missing")
		}
		return nil
	})

	err := producer.PublishEvent(context.Background(), TopicPaymentEvents, "ch-1",
		map[string]string{"status": "created"}, map[string]string{HeaderEventType: "PAYMENT_CREATED"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	producer, mockProducer := newTestProducer(t)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := producer.PublishEvent(context.Background(), TopicPaymentEvents, "ch-1", struct{}{}, nil)
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("expected ErrOutOfBrokers, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_CancelledContext(t *testing.T) {
	producer, mockProducer := newTestProducer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := producer.PublishEvent(ctx, TopicPaymentEvents, "ch-1", struct{}{}, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_NilProducer(t *testing.T) {
	var producer *Producer
	if err := producer.PublishEvent(context.Background(), TopicPaymentEvents, "k", struct{}{}, nil); err == nil {
		t.Fatal("expected error for nil producer")
	}
}

func TestEventPublisher_Publish(t *testing.T) {
	producer, mockProducer := newTestProducer(t)
	publisher := NewEventPublisher(producer, "")
	publisher.newID = func() string { return "evt-1" }

	event := domain.Event{
		ResourceType:             domain.ResourceTypeRefund,
		ResourceExternalID:       "rf-1",
		ParentResourceExternalID: "ch-1",
		EventType:                domain.EventRefundSubmitted,
		Timestamp:                sentAt,
		Details:                  domain.RefundDetails{Amount: 500},
	}

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicPaymentEvents {
			return errors.New("unexpected topic " + msg.Topic)
		}
		if got := messageKey(msg); got != "ch-1" {
			return errors.New("refund must be keyed by parent charge, got " + got)
		}
		if headerValue(msg, HeaderEventID) != "evt-1" {
			return errors.New("event id header is missing")
		}
		if headerValue(msg, HeaderResourceType) != "refund" {
			return errors.New("resource type header is missing")
		}

		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			return err
		}
		if body["event_type"] != "REFUND_SUBMITTED" || body["resource_external_id"] != "rf-1" {
			return errors.New("unexpected payload " + string(raw))
		}
		details, ok := body["event_details"].(map[string]any)
		if !ok || details["amount"] != float64(500) {
			return errors.New("event details are missing")
		}
		return nil
	})

	if err := publisher.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestEventPublisher_PublishProducerError(t *testing.T) {
	producer, mockProducer := newTestProducer(t)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	publisher := NewEventPublisher(producer, TopicPaymentEvents)

	err := publisher.Publish(context.Background(), domain.Event{
		ResourceType:       domain.ResourceTypePayment,
		ResourceExternalID: "ch-2",
		EventType:          domain.EventPaymentCreated,
		Timestamp:          sentAt,
	})
	if err == nil {
		t.Fatal("expected publish error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestEventPublisher_PublishNilProducer(t *testing.T) {
	publisher := NewEventPublisher(nil, TopicPaymentEvents)
	if err := publisher.Publish(context.Background(), domain.Event{ResourceExternalID: "ch-3"}); err == nil {
		t.Fatal("expected error for nil producer")
	}
}

func TestPartitionKey(t *testing.T) {
	if got := PartitionKey(domain.Event{ResourceExternalID: "ch-1"}); got != "ch-1" {
		t.Fatalf("expected charge key, got %q", got)
	}
	if got := PartitionKey(domain.Event{ResourceExternalID: "rf-1", ParentResourceExternalID: "ch-1"}); got != "ch-1" {
		t.Fatalf("expected parent key, got %q", got)
	}
}

func TestDeadLetterPublisher_Publish(t *testing.T) {
	producer, mockProducer := newTestProducer(t)
	publisher := NewDeadLetterPublisher(producer, "", "")

	eventTime := sentAt.Add(-time.Hour)
	letter := emitter.DeadLetter{
		TransitionID:       "payment-17",
		EventType:          domain.EventCaptureConfirmed,
		ResourceType:       domain.ResourceTypePayment,
		ResourceExternalID: "ch-17",
		EventTimestamp:     &eventTime,
		Attempts:           10,
		Error:              "broker unavailable",
		FailedAt:           sentAt,
	}

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicDeadLetterQueue {
			return errors.New("unexpected topic " + msg.Topic)
		}
		if got := messageKey(msg); got != "ch-17" {
			return errors.New("unexpected key " + got)
		}
		if headerValue(msg, HeaderOriginalTopic) != TopicPaymentEvents {
			return errors.New("original topic header is missing")
		}
		if headerValue(msg, HeaderRetryCount) != "10" {
			return errors.New("retry count header is missing")
		}
		if headerValue(msg, HeaderFailedAt) != "2024-09-01T12:00:00Z" {
			return errors.New("failed at header is missing")
		}

		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var decoded emitter.DeadLetter
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return err
		}
		key, ok := decoded.Key()
		if !ok || key.ExternalID != "ch-17" || !key.Timestamp.Equal(eventTime) {
			return errors.New("dead letter lost its event key")
		}
		return nil
	})

	if err := publisher.PublishDeadLetter(context.Background(), letter); err != nil {
		t.Fatalf("publish dead letter failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestDeadLetterPublisher_KeyFallsBackToTransition(t *testing.T) {
	producer, mockProducer := newTestProducer(t)
	publisher := NewDeadLetterPublisher(producer, TopicDeadLetterQueue, TopicPaymentEvents)

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if got := messageKey(msg); got != "payment-18" {
			return errors.New("unexpected key " + got)
		}
		return nil
	})

	err := publisher.PublishDeadLetter(context.Background(), emitter.DeadLetter{
		TransitionID: "payment-18",
		EventType:    domain.EventPaymentCreated,
		Attempts:     10,
		Error:        "build events: charge not found",
		FailedAt:     sentAt,
	})
	if err != nil {
		t.Fatalf("publish dead letter failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestLoggingPublisher(t *testing.T) {
	publisher := NewLoggingPublisher(nil)

	if err := publisher.Publish(context.Background(), domain.Event{ResourceExternalID: "ch-1"}); err != nil {
		t.Fatalf("logging publish must not fail: %v", err)
	}
	if err := publisher.PublishDeadLetter(context.Background(), emitter.DeadLetter{TransitionID: "payment-1"}); err != nil {
		t.Fatalf("logging dead letter must not fail: %v", err)
	}
}
