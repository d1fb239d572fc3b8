package emitter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
	"github.com/vladislavdragonenkov/payconnector/internal/metrics"
	"github.com/vladislavdragonenkov/payconnector/internal/service/transition"
)

const (
	defaultWorkers     = 1
	defaultPollTimeout = 1 * time.Second
	defaultMaxAttempts = 10
)

// TransitionQueue — очередь, из которой воркер забирает переходы и куда возвращает повторы.
type TransitionQueue interface {
	Poll(ctx context.Context, timeout time.Duration) (transition.StateTransition, bool)
	Offer(t transition.StateTransition) bool
	Len() int
}

// EventFactory строит события по переходу.
type EventFactory interface {
	Create(ctx context.Context, t transition.StateTransition) ([]domain.Event, error)
}

// EventEmitter публикует события с учётом журнала идемпотентности.
type EventEmitter interface {
	HasBeenEmitted(ctx context.Context, key domain.EmittedEventKey) (bool, error)
	EmitAndRecord(ctx context.Context, event domain.Event) error
}

// DeadLetter описывает переход, для которого исчерпаны попытки публикации.
// Поля ресурса заполнены, если сбой произошёл на публикации конкретного события;
// по ним запись журнала можно вернуть в работу sweeper.
type DeadLetter struct {
	TransitionID       string              `json:"transition_id"`
	EventType          domain.EventType    `json:"event_type"`
	ResourceType       domain.ResourceType `json:"resource_type,omitempty"`
	ResourceExternalID string              `json:"resource_external_id,omitempty"`
	EventTimestamp     *time.Time          `json:"event_timestamp,omitempty"`
	Attempts           int                 `json:"attempts"`
	Error              string              `json:"publish_error"`
	FailedAt           time.Time           `json:"dlq_published_at"`
}

// Key возвращает ключ журнала публикаций, если он известен.
func (d DeadLetter) Key() (domain.EmittedEventKey, bool) {
	if d.ResourceType == "" || d.ResourceExternalID == "" || d.EventTimestamp == nil {
		return domain.EmittedEventKey{}, false
	}
	return domain.EmittedEventKey{
		ResourceType: d.ResourceType,
		ExternalID:   d.ResourceExternalID,
		EventType:    d.EventType,
		Timestamp:    d.EventTimestamp.UTC(),
	}, true
}

// eventError привязывает ошибку публикации к событию.
type eventError struct {
	event domain.Event
	err   error
}

func (e *eventError) Error() string { return e.err.Error() }
func (e *eventError) Unwrap() error { return e.err }

// DeadLetterPublisher отправляет переходы в DLQ.
type DeadLetterPublisher interface {
	PublishDeadLetter(ctx context.Context, letter DeadLetter) error
}

// WorkerOptions задаёт параметры воркера публикации.
type WorkerOptions struct {
	Logger       *log.Entry
	Metrics      *metrics.TransitionMetrics
	DLQPublisher DeadLetterPublisher
	Workers      int
	PollTimeout  time.Duration
	MaxAttempts  int
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) {
		opts.Logger = logger
	}
}

// WithMetrics включает метрики публикации.
func WithMetrics(m *metrics.TransitionMetrics) Option {
	return func(opts *WorkerOptions) {
		opts.Metrics = m
	}
}

// WithDLQPublisher задаёт publisher для отправки в DLQ после исчерпания попыток.
func WithDLQPublisher(publisher DeadLetterPublisher) Option {
	return func(opts *WorkerOptions) {
		opts.DLQPublisher = publisher
	}
}

// WithWorkers задаёт число горутин, разбирающих очередь.
func WithWorkers(workers int) Option {
	return func(opts *WorkerOptions) {
		opts.Workers = workers
	}
}

// WithPollTimeout задаёт максимальное ожидание одного Poll.
func WithPollTimeout(timeout time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.PollTimeout = timeout
	}
}

// WithMaxAttempts задаёт число попыток публикации перехода перед DLQ.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *WorkerOptions) {
		opts.MaxAttempts = maxAttempts
	}
}

// Worker разбирает очередь переходов и публикует события.
type Worker struct {
	queue        TransitionQueue
	factory      EventFactory
	emitter      EventEmitter
	dlqPublisher DeadLetterPublisher
	logger       *log.Entry
	metrics      *metrics.TransitionMetrics
	workers      int
	pollTimeout  time.Duration
	maxAttempts  int
}

// NewWorker создаёт воркер публикации событий.
func NewWorker(queue TransitionQueue, factory EventFactory, emitter EventEmitter, options ...Option) *Worker {
	opts := WorkerOptions{
		Workers:     defaultWorkers,
		PollTimeout: defaultPollTimeout,
		MaxAttempts: defaultMaxAttempts,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "event-emitter")
	}

	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaultPollTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}

	return &Worker{
		queue:        queue,
		factory:      factory,
		emitter:      emitter,
		dlqPublisher: opts.DLQPublisher,
		logger:       logger,
		metrics:      opts.Metrics,
		workers:      opts.Workers,
		pollTimeout:  opts.PollTimeout,
		maxAttempts:  opts.MaxAttempts,
	}
}

// Run запускает горутины-потребители и ждёт их завершения после отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.queue == nil || w.factory == nil || w.emitter == nil {
		w.logger.Warn("event emitter is disabled: queue, factory or emitter is nil")
		return
	}

	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				w.ProcessNext(ctx)
			}
		}()
	}
	wg.Wait()
}

// ProcessNext ждёт один переход не дольше pollTimeout и обрабатывает его.
// Возвращает false, если за это время переход не появился.
func (w *Worker) ProcessNext(ctx context.Context) bool {
	t, ok := w.queue.Poll(ctx, w.pollTimeout)
	if w.metrics != nil {
		w.metrics.SetQueueDepth(w.queue.Len())
	}
	if !ok {
		return false
	}

	if err := w.emit(ctx, t); err != nil {
		w.retry(ctx, t, err)
	}
	return true
}

func (w *Worker) emit(ctx context.Context, t transition.StateTransition) error {
	events, err := w.factory.Create(ctx, t)
	if err != nil {
		return fmt.Errorf("build events: %w", err)
	}

	for _, event := range events {
		emitted, err := w.emitter.HasBeenEmitted(ctx, event.Key())
		if err != nil {
			return &eventError{event: event, err: fmt.Errorf("check emitted %s: %w", event.EventType, err)}
		}
		if emitted {
			w.recordEmission(event.EventType, "skipped")
			continue
		}

		if err := w.emitter.EmitAndRecord(ctx, event); err != nil {
			w.recordEmission(event.EventType, "error")
			return &eventError{event: event, err: err}
		}
		w.recordEmission(event.EventType, "sent")
	}
	return nil
}

func (w *Worker) retry(ctx context.Context, t transition.StateTransition, emitErr error) {
	fields := log.Fields{
		"transition_id": t.Identifier(),
		"event_type":    t.EventType(),
		"attempts":      t.Attempts(),
	}

	if t.Attempts() < w.maxAttempts {
		next := t.Next()
		if w.queue.Offer(next) {
			w.logger.WithError(emitErr).WithFields(fields).WithField("retry_in", next.Delay()).Warn("event emission failed, retrying")
			w.recordEmission(t.EventType(), "retry")
			return
		}
		w.logger.WithFields(fields).Error("transition queue rejected retry")
	}

	w.logger.WithError(emitErr).WithFields(fields).Error("event emission failed after retries")
	w.recordEmission(t.EventType(), "failed")

	if err := w.publishToDLQ(ctx, t, emitErr); err != nil {
		w.logger.WithError(err).WithFields(fields).Warn("failed to publish to DLQ")
		w.recordEmission(t.EventType(), "dlq_failed")
	}
}

func (w *Worker) publishToDLQ(ctx context.Context, t transition.StateTransition, emitErr error) error {
	if w.dlqPublisher == nil {
		return nil
	}

	letter := DeadLetter{
		TransitionID: t.Identifier(),
		EventType:    t.EventType(),
		Attempts:     t.Attempts(),
		Error:        emitErr.Error(),
		FailedAt:     time.Now().UTC(),
	}
	var failed *eventError
	if errors.As(emitErr, &failed) {
		ts := failed.event.Timestamp.UTC()
		letter.EventType = failed.event.EventType
		letter.ResourceType = failed.event.ResourceType
		letter.ResourceExternalID = failed.event.ResourceExternalID
		letter.EventTimestamp = &ts
	}
	if err := w.dlqPublisher.PublishDeadLetter(ctx, letter); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}

func (w *Worker) recordEmission(eventType domain.EventType, result string) {
	if w.metrics != nil {
		w.metrics.RecordEmission(string(eventType), result)
	}
}
