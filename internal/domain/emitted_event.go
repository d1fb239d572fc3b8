package domain

import "time"

// EmittedEventKey — ключ идемпотентности публикации.
type EmittedEventKey struct {
	ResourceType ResourceType
	ExternalID   string
	EventType    EventType
	Timestamp    time.Time
}

// EmittedEvent — запись о том, что событие было предложено к публикации и, возможно, опубликовано.
// EmittedDate == nil означает, что событие предложено, но подтверждения публикации нет.
type EmittedEvent struct {
	ID int64
	EmittedEventKey
	EmittedDate         *time.Time
	DoNotRetryEmitUntil *time.Time
}

// Emitted сообщает, подтверждена ли публикация события.
func (e EmittedEvent) Emitted() bool {
	return e.EmittedDate != nil
}
