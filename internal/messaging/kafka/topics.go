package kafka

// Topics для Kafka
const (
	TopicPaymentEvents   = "connector.payment.events"
	TopicDeadLetterQueue = "connector.events.dlq"
)

// Kafka headers
const (
	HeaderEventID       = "x-event-id"
	HeaderEventType     = "x-event-type"
	HeaderResourceType  = "x-resource-type"
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)
