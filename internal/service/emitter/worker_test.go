package emitter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
	"github.com/vladislavdragonenkov/payconnector/internal/service/transition"
)

type stubFactory struct {
	err    error
	events []domain.Event
}

func (f *stubFactory) Create(_ context.Context, t transition.StateTransition) ([]domain.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.events != nil {
		return f.events, nil
	}
	return []domain.Event{{
		ResourceType:       domain.ResourceTypePayment,
		ResourceExternalID: "ch-" + t.Identifier(),
		EventType:          t.EventType(),
		Timestamp:          time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
	}}, nil
}

type stubEmitter struct {
	mu       sync.Mutex
	err      error
	emitted  map[domain.EmittedEventKey]bool
	sent     []domain.Event
	attempts int
}

func newStubEmitter() *stubEmitter {
	return &stubEmitter{emitted: make(map[domain.EmittedEventKey]bool)}
}

func (e *stubEmitter) HasBeenEmitted(_ context.Context, key domain.EmittedEventKey) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.emitted[key], nil
}

func (e *stubEmitter) EmitAndRecord(_ context.Context, event domain.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attempts++
	if e.err != nil {
		return e.err
	}
	e.sent = append(e.sent, event)
	e.emitted[event.Key()] = true
	return nil
}

type stubDLQ struct {
	mu      sync.Mutex
	letters []DeadLetter
}

func (d *stubDLQ) PublishDeadLetter(_ context.Context, letter DeadLetter) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.letters = append(d.letters, letter)
	return nil
}

func TestWorker_ProcessNext_Emits(t *testing.T) {
	t.Parallel()

	queue := transition.NewQueue()
	emitter := newStubEmitter()
	worker := NewWorker(queue, &stubFactory{}, emitter, WithPollTimeout(100*time.Millisecond))

	queue.Offer(transition.NewPaymentStateTransition(1, domain.EventCaptureConfirmed))

	if !worker.ProcessNext(context.Background()) {
		t.Fatal("expected a transition to be processed")
	}
	if got := len(emitter.sent); got != 1 {
		t.Fatalf("expected 1 emitted event, got %d", got)
	}
	if queue.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", queue.Len())
	}
}

func TestWorker_ProcessNext_SkipsAlreadyEmitted(t *testing.T) {
	t.Parallel()

	queue := transition.NewQueue()
	emitter := newStubEmitter()
	worker := NewWorker(queue, &stubFactory{}, emitter, WithPollTimeout(100*time.Millisecond))

	tr := transition.NewPaymentStateTransition(2, domain.EventCaptureConfirmed)
	queue.Offer(tr)
	queue.Offer(tr)

	worker.ProcessNext(context.Background())
	worker.ProcessNext(context.Background())

	if emitter.attempts != 1 {
		t.Fatalf("expected duplicate delivery to be absorbed, got %d emissions", emitter.attempts)
	}
}

func TestWorker_ProcessNext_RetriesWithNext(t *testing.T) {
	t.Parallel()

	queue := transition.NewQueue()
	emitter := newStubEmitter()
	emitter.err = errors.New("broker unavailable")
	worker := NewWorker(queue, &stubFactory{}, emitter, WithPollTimeout(100*time.Millisecond), WithMaxAttempts(3))

	queue.Offer(transition.NewPaymentStateTransition(3, domain.EventCaptureSubmitted))
	worker.ProcessNext(context.Background())

	if queue.Len() != 1 {
		t.Fatalf("expected retry to be re-offered, queue len %d", queue.Len())
	}

	retry, ok := queue.Poll(context.Background(), time.Second)
	if !ok {
		t.Fatal("expected retry to become due")
	}
	if retry.Attempts() != 2 || retry.Identifier() != "3" {
		t.Fatalf("unexpected retry: attempts=%d id=%s", retry.Attempts(), retry.Identifier())
	}
}

func TestWorker_ProcessNext_DeadLetterAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	queue := transition.NewQueue()
	dlq := &stubDLQ{}
	worker := NewWorker(
		queue,
		&stubFactory{err: domain.ErrChargeNotFound},
		newStubEmitter(),
		WithPollTimeout(time.Second),
		WithMaxAttempts(2),
		WithDLQPublisher(dlq),
	)

	last := transition.NewPaymentStateTransition(4, domain.EventCaptureSubmitted).Next()
	queue.Offer(last)

	// у повторной попытки есть задержка, Poll дождётся её
	if !worker.ProcessNext(context.Background()) {
		t.Fatal("expected transition to be processed")
	}

	if queue.Len() != 0 {
		t.Fatalf("expected no re-offer after max attempts, queue len %d", queue.Len())
	}
	if len(dlq.letters) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(dlq.letters))
	}
	if dlq.letters[0].Attempts != 2 || dlq.letters[0].TransitionID != "4" {
		t.Fatalf("unexpected dead letter %+v", dlq.letters[0])
	}
}

func TestWorker_ProcessNext_DeadLetterCarriesEventKey(t *testing.T) {
	t.Parallel()

	queue := transition.NewQueue()
	dlq := &stubDLQ{}
	emitter := newStubEmitter()
	emitter.err = errors.New("broker unavailable")
	worker := NewWorker(queue, &stubFactory{}, emitter,
		WithPollTimeout(time.Second),
		WithMaxAttempts(1),
		WithDLQPublisher(dlq),
	)

	queue.Offer(transition.NewPaymentStateTransition(5, domain.EventCaptureConfirmed))
	if !worker.ProcessNext(context.Background()) {
		t.Fatal("expected transition to be processed")
	}

	if len(dlq.letters) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(dlq.letters))
	}
	key, ok := dlq.letters[0].Key()
	if !ok {
		t.Fatalf("expected dead letter to carry the event key: %+v", dlq.letters[0])
	}
	if key.ExternalID != "ch-5" || key.EventType != domain.EventCaptureConfirmed {
		t.Fatalf("unexpected key %+v", key)
	}
}

func TestWorker_Run_StopsOnCancel(t *testing.T) {
	t.Parallel()

	queue := transition.NewQueue()
	emitter := newStubEmitter()
	worker := NewWorker(queue, &stubFactory{}, emitter, WithWorkers(3), WithPollTimeout(20*time.Millisecond))

	for i := int64(1); i <= 10; i++ {
		queue.Offer(transition.NewPaymentStateTransition(i, domain.EventPaymentCreated))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		emitter.mu.Lock()
		sent := len(emitter.sent)
		emitter.mu.Unlock()
		if sent == 10 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected 10 emitted events, got %d", sent)
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
