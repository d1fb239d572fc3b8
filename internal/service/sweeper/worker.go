package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
	"github.com/vladislavdragonenkov/payconnector/internal/service/transition"
)

const (
	defaultInterval    = 5 * time.Minute
	defaultBatchSize   = 100
	defaultGracePeriod = 10 * time.Minute
	defaultRetryDelay  = 30 * time.Minute
)

var (
	sweeperRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connector_emitted_events_sweep_runs_total",
		Help: "Total number of not-emitted event sweeps grouped by result.",
	}, []string{"result"})
	sweeperReofferedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "connector_emitted_events_sweep_reoffered_total",
		Help: "Total number of events re-offered by the sweeper.",
	})
	sweeperUnresolvedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "connector_emitted_events_sweep_unresolved_total",
		Help: "Total number of not-emitted records whose transition could not be restored.",
	})
)

// TransitionResolver восстанавливает переход по записи журнала.
type TransitionResolver interface {
	ForEmittedEvent(ctx context.Context, record domain.EmittedEvent) (transition.StateTransition, domain.Event, error)
}

// Offerer повторно предлагает переход.
type Offerer interface {
	OfferTransition(ctx context.Context, t transition.StateTransition, event domain.Event, doNotRetryBefore *time.Time) error
}

// Options задаёт параметры sweeper.
type Options struct {
	Logger      *log.Entry
	Interval    time.Duration
	BatchSize   int
	GracePeriod time.Duration
	RetryDelay  time.Duration
}

// Option настраивает Worker.
type Option func(*Options)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithInterval задаёт интервал между проходами.
func WithInterval(interval time.Duration) Option {
	return func(opts *Options) {
		opts.Interval = interval
	}
}

// WithBatchSize ограничивает число записей за один проход.
func WithBatchSize(batchSize int) Option {
	return func(opts *Options) {
		opts.BatchSize = batchSize
	}
}

// WithGracePeriod задаёт возраст, после которого неопубликованное событие считается потерянным.
func WithGracePeriod(grace time.Duration) Option {
	return func(opts *Options) {
		opts.GracePeriod = grace
	}
}

// WithRetryDelay задаёт водяной знак повторной попытки (now + delay).
func WithRetryDelay(delay time.Duration) Option {
	return func(opts *Options) {
		opts.RetryDelay = delay
	}
}

// Worker периодически находит события, предложенные, но так и не опубликованные,
// и предлагает их заново.
type Worker struct {
	repo        domain.EmittedEventRepository
	resolver    TransitionResolver
	offerer     Offerer
	logger      *log.Entry
	interval    time.Duration
	batchSize   int
	gracePeriod time.Duration
	retryDelay  time.Duration
}

// NewWorker создаёт sweeper.
func NewWorker(repo domain.EmittedEventRepository, resolver TransitionResolver, offerer Offerer, options ...Option) *Worker {
	opts := Options{
		Interval:    defaultInterval,
		BatchSize:   defaultBatchSize,
		GracePeriod: defaultGracePeriod,
		RetryDelay:  defaultRetryDelay,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "emitted-events-sweeper")
	}

	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.GracePeriod < 0 {
		opts.GracePeriod = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}

	return &Worker{
		repo:        repo,
		resolver:    resolver,
		offerer:     offerer,
		logger:      logger,
		interval:    opts.Interval,
		batchSize:   opts.BatchSize,
		gracePeriod: opts.GracePeriod,
		retryDelay:  opts.RetryDelay,
	}
}

// Run запускает периодические проходы до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.resolver == nil || w.offerer == nil {
		w.logger.Warn("emitted events sweeper is disabled: dependency is nil")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx, time.Now().UTC())
		}
	}
}

func (w *Worker) sweep(ctx context.Context, now time.Time) {
	reoffered, err := w.Sweep(ctx, now)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		sweeperRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("emitted events sweep failed")
		return
	}

	sweeperRunsTotal.WithLabelValues("ok").Inc()
	if reoffered > 0 {
		w.logger.WithField("reoffered", reoffered).Info("emitted events sweep completed")
	}
}

// Sweep обрабатывает одну порцию неопубликованных событий и возвращает число повторных предложений.
// Каждой обработанной записи ставится водяной знак now + retryDelay, чтобы не крутить её по кругу.
func (w *Worker) Sweep(ctx context.Context, now time.Time) (int, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	records, err := w.repo.ListNotEmitted(ctx, now.Add(-w.gracePeriod), now, w.batchSize)
	if err != nil {
		return 0, err
	}

	watermark := now.Add(w.retryDelay)
	reoffered := 0
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return reoffered, err
		}

		t, event, err := w.resolver.ForEmittedEvent(ctx, record)
		if err != nil {
			sweeperUnresolvedTotal.Inc()
			w.logger.WithError(err).WithFields(log.Fields{
				"resource_type": record.ResourceType,
				"external_id":   record.ExternalID,
				"event_type":    record.EventType,
			}).Warn("cannot restore transition for not emitted event")
			if err := w.repo.RecordOffered(ctx, record.EmittedEventKey, &watermark); err != nil {
				return reoffered, err
			}
			continue
		}

		if err := w.offerer.OfferTransition(ctx, t, event, &watermark); err != nil {
			return reoffered, err
		}
		reoffered++
		sweeperReofferedTotal.Inc()
	}
	return reoffered, nil
}
