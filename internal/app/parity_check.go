package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/payconnector/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/payconnector/internal/service/parity"
)

// DefaultDrainTimeout ограничивает время, за которое разовая сверка отправляет перепредложенные события.
const DefaultDrainTimeout = 30 * time.Second

// RunParityCheck выполняет разовый прогон сверки с ledger поверх того же хранилища, что и сервис.
// Перепредложенные переходы отправляются до опустошения очереди или истечения drainTimeout;
// недоставленные остаются в журнале публикаций и будут подобраны sweeper'ом сервиса.
func RunParityCheck(ctx context.Context, cfg Config, drainTimeout time.Duration, requests ...parity.Request) ([]parity.Result, error) {
	logger := log.WithField("component", "parity-check")
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if len(requests) == 0 {
		requests = parity.DefaultScheduledRequests()
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer deps.close(logger)

	producer, _ := initKafkaProducer(cfg.KafkaBrokers, logger, kafka.WithClientID(cfg.KafkaClientID+"-parity-check"))
	defer closeKafkaProducer(producer, logger)
	publisher, dlq := newPublishers(producer, cfg, logger)

	locker, closeLocker, err := initLocker(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer closeLocker()

	// Метрики разового прогона не экспортируются.
	svc := buildServices(cfg, deps, serviceInputs{
		publisher:  publisher,
		dlq:        dlq,
		locker:     locker,
		registerer: prometheus.NewRegistry(),
	}, logger)

	results, runErr := svc.parity.RunOnce(ctx, requests...)
	drainQueue(ctx, svc, drainTimeout, logger)
	return results, runErr
}

func drainQueue(ctx context.Context, svc *services, timeout time.Duration, logger *log.Entry) {
	if svc.queue.Len() == 0 {
		return
	}
	if timeout <= 0 {
		timeout = DefaultDrainTimeout
	}

	drainCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for svc.queue.Len() > 0 && drainCtx.Err() == nil {
		svc.emitter.ProcessNext(drainCtx)
	}
	if backlog := svc.queue.Len(); backlog > 0 {
		logger.WithField("backlog", backlog).Warn("reoffered transitions left for the sweeper")
	}
}
