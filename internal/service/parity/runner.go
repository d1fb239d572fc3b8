package parity

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
	"github.com/vladislavdragonenkov/payconnector/internal/lock"
	"github.com/vladislavdragonenkov/payconnector/internal/metrics"
)

const (
	runLockKey     = "payconnector:parity-check"
	defaultLockTTL = 30 * time.Minute
)

// RunEngine выполняет один запрос сверки.
type RunEngine interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// Locker удерживает распределённую блокировку на время fn.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// RunnerOption настраивает Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger задаёт logger.
func WithRunnerLogger(logger *log.Entry) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRunnerMetrics задаёт метрики прогонов.
func WithRunnerMetrics(m *metrics.ParityMetrics) RunnerOption {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithLocker включает блокировку между процессами.
func WithLocker(locker Locker, ttl time.Duration) RunnerOption {
	return func(r *Runner) {
		r.locker = locker
		if ttl > 0 {
			r.lockTTL = ttl
		}
	}
}

// WithSchedule включает периодические прогоны с заданными запросами.
func WithSchedule(interval time.Duration, requests ...Request) RunnerOption {
	return func(r *Runner) {
		r.interval = interval
		if len(requests) > 0 {
			r.scheduled = requests
		}
	}
}

// Runner гарантирует, что сверка выполняется не более чем одним прогоном одновременно.
type Runner struct {
	engine    RunEngine
	locker    Locker
	lockTTL   time.Duration
	logger    *log.Entry
	metrics   *metrics.ParityMetrics
	interval  time.Duration
	scheduled []Request
	running   atomic.Bool
}

// NewRunner создаёт Runner. Без WithSchedule периодические прогоны отключены.
func NewRunner(engine RunEngine, options ...RunnerOption) *Runner {
	r := &Runner{
		engine:    engine,
		lockTTL:   defaultLockTTL,
		logger:    log.WithField("component", "parity-runner"),
		scheduled: DefaultScheduledRequests(),
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// DefaultScheduledRequests — запросы периодического прогона: всё, что разошлось с ledger
// или ещё не сверено, по платежам и возвратам. Разошедшиеся записи идут первыми.
func DefaultScheduledRequests() []Request {
	var requests []Request
	for _, resourceType := range []domain.ResourceType{domain.ResourceTypePayment, domain.ResourceTypeRefund} {
		for _, status := range []domain.ParityCheckStatus{domain.ParityMissingInLedger, domain.ParityDataMismatch, domain.ParityNotChecked} {
			requests = append(requests, Request{ResourceType: resourceType, ParityStatus: status})
		}
	}
	return requests
}

// RunOnce выполняет запросы последовательно. Каждая запись сверяется за прогон не более
// одного раза, даже если после смены статуса попадает в следующий запрос.
// Если прогон уже идёт в этом или другом процессе, возвращает domain.ErrParityCheckInProgress.
func (r *Runner) RunOnce(ctx context.Context, requests ...Request) ([]Result, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, domain.ErrParityCheckInProgress
	}
	defer r.running.Store(false)

	started := time.Now()
	results := make([]Result, 0, len(requests))
	seen := make(visitSet)
	run := func(ctx context.Context) error {
		for _, req := range requests {
			req.seen = seen
			result, err := r.engine.Run(ctx, req)
			results = append(results, result)
			if err != nil {
				return fmt.Errorf("parity run %s: %w", req.ResourceType, err)
			}
		}
		return nil
	}

	var err error
	if r.locker != nil {
		err = r.locker.WithLock(ctx, runLockKey, r.lockTTL, run)
		if errors.Is(err, lock.ErrNotAcquired) {
			err = fmt.Errorf("%w: %w", domain.ErrParityCheckInProgress, err)
		}
	} else {
		err = run(ctx)
	}

	r.recordRun(err, time.Since(started))
	return results, err
}

// Run выполняет периодические прогоны до отмены ctx.
func (r *Runner) Run(ctx context.Context) {
	if r.interval <= 0 {
		r.logger.Info("scheduled parity checks are disabled")
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx, r.scheduled...); err != nil {
				if errors.Is(err, domain.ErrParityCheckInProgress) {
					r.logger.Debug("parity check already in progress, skipping tick")
					continue
				}
				if ctx.Err() != nil {
					return
				}
				r.logger.WithError(err).Warn("scheduled parity check failed")
			}
		}
	}
}

func (r *Runner) recordRun(err error, duration time.Duration) {
	if r.metrics == nil {
		return
	}
	result := "ok"
	switch {
	case errors.Is(err, domain.ErrParityCheckInProgress):
		result = "skipped"
	case err != nil:
		result = "error"
	}
	r.metrics.RecordRun(result, duration)
}
