package transition

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

type queueItem struct {
	transition StateTransition
	due        time.Time
}

type dueHeap []queueItem

func (h dueHeap) Len() int           { return len(h) }
func (h dueHeap) Less(i, j int) bool { return h[i].due.Before(h[j].due) }
func (h dueHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *dueHeap) Push(x any) {
	*h = append(*h, x.(queueItem))
}

func (h *dueHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = queueItem{}
	*h = old[:n-1]
	return item
}

// Queue — общая очередь переходов, упорядоченная по времени готовности
// (момент постановки + Delay). Порядок при равном времени не гарантируется.
type Queue struct {
	mu    sync.Mutex
	items dueHeap
	// wake закрывается при каждом Offer, чтобы разбудить ожидающих в Poll.
	wake chan struct{}
}

// NewQueue создаёт пустую очередь.
func NewQueue() *Queue {
	return &Queue{wake: make(chan struct{})}
}

// Offer добавляет переход в очередь и никогда не блокируется.
func (q *Queue) Offer(t StateTransition) bool {
	if t == nil {
		return false
	}

	q.mu.Lock()
	heap.Push(&q.items, queueItem{transition: t, due: time.Now().Add(t.Delay())})
	close(q.wake)
	q.wake = make(chan struct{})
	q.mu.Unlock()

	return true
}

// Poll ждёт, пока самый ранний элемент станет готов, истечёт timeout или
// отменится ctx. timeout <= 0 означает ожидание без ограничения по времени.
func (q *Queue) Poll(ctx context.Context, timeout time.Duration) (StateTransition, bool) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		q.mu.Lock()
		wait := time.Duration(-1)
		if len(q.items) > 0 {
			head := q.items[0]
			until := time.Until(head.due)
			if until <= 0 {
				heap.Pop(&q.items)
				q.mu.Unlock()
				return head.transition, true
			}
			wait = until
		}
		wake := q.wake
		q.mu.Unlock()

		var (
			dueTimer *time.Timer
			due      <-chan time.Time
		)
		if wait >= 0 {
			dueTimer = time.NewTimer(wait)
			due = dueTimer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(dueTimer)
			return nil, false
		case <-deadline:
			stopTimer(dueTimer)
			return nil, false
		case <-wake:
		case <-due:
		}
		stopTimer(dueTimer)
	}
}

// Len возвращает текущее число элементов, включая ещё не готовые.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func stopTimer(timer *time.Timer) {
	if timer != nil {
		timer.Stop()
	}
}
