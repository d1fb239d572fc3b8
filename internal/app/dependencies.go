package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/payconnector/internal/health"
	"github.com/vladislavdragonenkov/payconnector/internal/storage/memory"
	"github.com/vladislavdragonenkov/payconnector/internal/storage/postgres"
)

// runtimeDependencies — хранилища, выбранные по StorageDriver.
type runtimeDependencies struct {
	charges       domain.ChargeRepository
	chargeEvents  domain.ChargeEventRepository
	refunds       domain.RefundRepository
	refundHistory domain.RefundHistoryRepository
	emittedEvents domain.EmittedEventRepository
	transactor    domain.Transactor

	// storageChecker равен nil для memory: проверять там нечего.
	storageChecker healthcheck.Checker
	closeFn        func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		logger.Info("using in-memory storage")
		return &runtimeDependencies{
			charges:       memory.NewChargeRepository(),
			chargeEvents:  memory.NewChargeEventRepository(),
			refunds:       memory.NewRefundRepository(),
			refundHistory: memory.NewRefundHistoryRepository(),
			emittedEvents: memory.NewEmittedEventRepository(),
			transactor:    memory.NewTransactor(),
		}, nil
	case StorageDriverPostgres:
		return initPostgresDependencies(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func initPostgresDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	dsn := strings.TrimSpace(cfg.PostgresDSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required for postgres storage driver")
	}

	store, err := postgres.Open(ctx, dsn, postgres.DefaultPoolOptions())
	if err != nil {
		return nil, err
	}

	if cfg.PostgresAutoMigrate {
		if err := store.MigrateUp(ctx, 0); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply postgres migrations: %w", err)
		}
	}

	logger.Info("using postgres storage")
	return &runtimeDependencies{
		charges:        postgres.NewChargeRepository(store),
		chargeEvents:   postgres.NewChargeEventRepository(store),
		refunds:        postgres.NewRefundRepository(store),
		refundHistory:  postgres.NewRefundHistoryRepository(store),
		emittedEvents:  postgres.NewEmittedEventRepository(store),
		transactor:     store,
		storageChecker: healthcheck.NewSimpleChecker("postgres", store.Ping),
		closeFn:        store.Close,
	}, nil
}

// close освобождает ресурсы хранилища.
func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil || d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}
