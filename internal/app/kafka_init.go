package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
	"github.com/vladislavdragonenkov/payconnector/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/payconnector/internal/service/emitter"
)

// initKafkaProducer инициализирует Kafka producer если brokers не пустой.
// Возвращает nil, nil если brokers пустой.
func initKafkaProducer(brokers string, logger *log.Entry, options ...kafka.ProducerOption) (*kafka.Producer, error) {
	brokerList := splitBrokers(brokers)
	if len(brokerList) == 0 {
		return nil, nil
	}

	options = append([]kafka.ProducerOption{kafka.WithProducerLogger(logger.WithField("component", "kafka-producer"))}, options...)
	producer, err := kafka.NewProducer(brokerList, options...)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

// newPublishers выбирает паблишеры событий и DLQ: Kafka, если producer создан, иначе лог.
func newPublishers(producer *kafka.Producer, cfg Config, logger *log.Entry) (domain.EventPublisher, emitter.DeadLetterPublisher) {
	if producer == nil {
		logging := kafka.NewLoggingPublisher(logger.WithField("component", "logging-publisher"))
		return logging, logging
	}
	return kafka.NewEventPublisher(producer, cfg.EventsTopic),
		kafka.NewDeadLetterPublisher(producer, cfg.DLQTopic, cfg.EventsTopic)
}

// closeKafkaProducer закрывает Kafka producer если он не nil.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
