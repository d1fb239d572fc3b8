package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
	"github.com/vladislavdragonenkov/payconnector/internal/ledger"
	"github.com/vladislavdragonenkov/payconnector/internal/metrics"
	"github.com/vladislavdragonenkov/payconnector/internal/service/charge"
	"github.com/vladislavdragonenkov/payconnector/internal/service/emitter"
	"github.com/vladislavdragonenkov/payconnector/internal/service/events"
	"github.com/vladislavdragonenkov/payconnector/internal/service/parity"
	"github.com/vladislavdragonenkov/payconnector/internal/service/refund"
	"github.com/vladislavdragonenkov/payconnector/internal/service/sweeper"
	"github.com/vladislavdragonenkov/payconnector/internal/service/transition"
)

// services — собранный граф сервисов коннектора поверх выбранного хранилища.
type services struct {
	queue        *transition.Queue
	transitions  *transition.Service
	events       *events.Service
	emitter      *emitter.Worker
	sweeper      *sweeper.Worker
	parity       *parity.Runner
	chargeStates *charge.StateService
	refundStates *refund.StateService
}

// serviceInputs — внешние зависимости графа, которые создаются в Run.
type serviceInputs struct {
	publisher  domain.EventPublisher
	dlq        emitter.DeadLetterPublisher
	locker     parity.Locker
	registerer prometheus.Registerer
}

func buildServices(cfg Config, deps *runtimeDependencies, in serviceInputs, logger *log.Entry) *services {
	registerer := in.registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	transitionMetrics := metrics.NewTransitionMetricsWithRegisterer(registerer)
	parityMetrics := metrics.NewParityMetricsWithRegisterer(registerer)

	queue := transition.NewQueue()
	eventService := events.NewService(deps.emittedEvents, in.publisher,
		events.WithLogger(logger.WithField("component", "event-service")))
	transitions := transition.NewService(queue, eventService,
		transition.WithLogger(logger.WithField("component", "transition-service")),
		transition.WithMetrics(transitionMetrics),
	)
	resolver := transition.NewResolver(deps.charges, deps.chargeEvents, deps.refunds, deps.refundHistory)
	factory := events.NewFactory(deps.charges, deps.chargeEvents, deps.refunds, deps.refundHistory)

	emitterOptions := []emitter.Option{
		emitter.WithLogger(logger.WithField("component", "emitter")),
		emitter.WithMetrics(transitionMetrics),
		emitter.WithWorkers(cfg.EmitterWorkers),
		emitter.WithPollTimeout(cfg.EmitterPollTimeout),
		emitter.WithMaxAttempts(cfg.EmitterMaxAttempts),
	}
	if in.dlq != nil {
		emitterOptions = append(emitterOptions, emitter.WithDLQPublisher(in.dlq))
	}

	ledgerOptions := []ledger.Option{
		ledger.WithLogger(logger.WithField("component", "ledger-client")),
		ledger.WithRetryPolicy(cfg.LedgerMaxRetries, 0),
	}
	if cfg.LedgerTimeout > 0 {
		ledgerOptions = append(ledgerOptions, ledger.WithHTTPClient(&http.Client{Timeout: cfg.LedgerTimeout}))
	}
	ledgerClient := ledger.NewClient(cfg.LedgerURL, ledgerOptions...)
	engine := parity.NewEngine(
		parity.Repositories{
			Charges:       deps.charges,
			ChargeEvents:  deps.chargeEvents,
			Refunds:       deps.refunds,
			RefundHistory: deps.refundHistory,
		},
		ledgerClient,
		resolver,
		transitions,
		parity.WithLogger(logger.WithField("component", "parity-engine")),
		parity.WithMetrics(parityMetrics),
		parity.WithBatchSize(cfg.ParityBatchSize),
		parity.WithRetryDelay(cfg.ParityRetryDelay),
	)
	runnerOptions := []parity.RunnerOption{
		parity.WithRunnerLogger(logger.WithField("component", "parity-runner")),
		parity.WithRunnerMetrics(parityMetrics),
		parity.WithSchedule(cfg.ParityInterval),
	}
	if in.locker != nil {
		runnerOptions = append(runnerOptions, parity.WithLocker(in.locker, cfg.ParityLockTTL))
	}

	return &services{
		queue:       queue,
		transitions: transitions,
		events:      eventService,
		emitter:     emitter.NewWorker(queue, factory, eventService, emitterOptions...),
		sweeper: sweeper.NewWorker(deps.emittedEvents, resolver, transitions,
			sweeper.WithLogger(logger.WithField("component", "sweeper")),
			sweeper.WithInterval(cfg.SweeperInterval),
			sweeper.WithBatchSize(cfg.SweeperBatchSize),
			sweeper.WithGracePeriod(cfg.SweeperGracePeriod),
			sweeper.WithRetryDelay(cfg.SweeperRetryDelay),
		),
		parity: parity.NewRunner(engine, runnerOptions...),
		chargeStates: charge.NewStateService(deps.transactor, deps.charges, deps.chargeEvents, transitions,
			charge.WithLogger(logger.WithField("component", "charge-state"))),
		refundStates: refund.NewStateService(deps.transactor, deps.charges, deps.refunds, deps.refundHistory, transitions,
			refund.WithLogger(logger.WithField("component", "refund-state"))),
	}
}
