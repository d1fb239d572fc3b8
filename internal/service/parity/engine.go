package parity

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
	"github.com/vladislavdragonenkov/payconnector/internal/metrics"
	"github.com/vladislavdragonenkov/payconnector/internal/service/transition"
)

const (
	defaultBatchSize  = 100
	defaultRetryDelay = 30 * time.Minute
)

// TransitionResolver выбирает причинное событие для записи, разошедшейся с ledger.
type TransitionResolver interface {
	ForCharge(ctx context.Context, charge domain.Charge) (transition.StateTransition, domain.Event, error)
	ForRefund(ctx context.Context, refund domain.Refund) (transition.StateTransition, domain.Event, error)
}

// Offerer повторно предлагает переход к публикации.
type Offerer interface {
	OfferTransition(ctx context.Context, t transition.StateTransition, event domain.Event, doNotRetryBefore *time.Time) error
}

// Request описывает один прогон сверки.
// Если ParityStatus задан, записи выбираются по прошлому статусу сверки (курсор по id > StartID-1),
// иначе по диапазону [StartID, MaxID].
type Request struct {
	ResourceType               domain.ResourceType
	StartID                    int64
	MaxID                      int64
	DoNotReprocessValidRecords bool
	ParityStatus               domain.ParityCheckStatus

	// seen общий для всех запросов одного RunOnce: запись, уже сверенная в этом
	// прогоне, не проверяется и не предлагается повторно.
	seen visitSet
}

type visitKey struct {
	resourceType domain.ResourceType
	id           int64
}

type visitSet map[visitKey]struct{}

// markVisited отмечает запись и сообщает, встречалась ли она раньше. nil-набор ничего не помнит.
func (v visitSet) markVisited(resourceType domain.ResourceType, id int64) bool {
	if v == nil {
		return false
	}
	key := visitKey{resourceType: resourceType, id: id}
	if _, ok := v[key]; ok {
		return true
	}
	v[key] = struct{}{}
	return false
}

// Result — итог прогона. LastProcessedID можно передать в следующий запуск как StartID-1.
type Result struct {
	ResourceType    domain.ResourceType
	Processed       int
	Skipped         int
	Exists          int
	Mismatched      int
	Missing         int
	Inconclusive    int
	Reoffered       int
	LastProcessedID int64
}

// EngineOptions задаёт зависимости и параметры Engine.
type EngineOptions struct {
	Logger     *log.Entry
	Metrics    *metrics.ParityMetrics
	Tracer     trace.Tracer
	Clock      func() time.Time
	BatchSize  int
	RetryDelay time.Duration
}

// EngineOption настраивает Engine.
type EngineOption func(*EngineOptions)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) EngineOption {
	return func(opts *EngineOptions) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики сверки.
func WithMetrics(m *metrics.ParityMetrics) EngineOption {
	return func(opts *EngineOptions) {
		opts.Metrics = m
	}
}

// WithTracer задаёт tracer.
func WithTracer(tracer trace.Tracer) EngineOption {
	return func(opts *EngineOptions) {
		opts.Tracer = tracer
	}
}

// WithClock подменяет источник времени.
func WithClock(clock func() time.Time) EngineOption {
	return func(opts *EngineOptions) {
		opts.Clock = clock
	}
}

// WithBatchSize задаёт размер страницы выборки.
func WithBatchSize(batchSize int) EngineOption {
	return func(opts *EngineOptions) {
		opts.BatchSize = batchSize
	}
}

// WithRetryDelay задаёт водяной знак повторного предложения (now + delay).
func WithRetryDelay(delay time.Duration) EngineOption {
	return func(opts *EngineOptions) {
		opts.RetryDelay = delay
	}
}

// Repositories — хранилища, которые читает и обновляет сверка.
type Repositories struct {
	Charges       domain.ChargeRepository
	ChargeEvents  domain.ChargeEventRepository
	Refunds       domain.RefundRepository
	RefundHistory domain.RefundHistoryRepository
}

// Engine сверяет локальные платежи и возвраты с ledger и лечит расхождения
// повторной публикацией причинного события.
type Engine struct {
	repos      Repositories
	ledger     domain.LedgerClient
	resolver   TransitionResolver
	offerer    Offerer
	logger     *log.Entry
	metrics    *metrics.ParityMetrics
	tracer     trace.Tracer
	clock      func() time.Time
	batchSize  int
	retryDelay time.Duration
}

// NewEngine создаёт движок сверки.
func NewEngine(repos Repositories, ledger domain.LedgerClient, resolver TransitionResolver, offerer Offerer, options ...EngineOption) *Engine {
	opts := EngineOptions{}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "parity-engine")
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("payconnector/parity")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}

	return &Engine{
		repos:      repos,
		ledger:     ledger,
		resolver:   resolver,
		offerer:    offerer,
		logger:     logger,
		metrics:    opts.Metrics,
		tracer:     tracer,
		clock:      clock,
		batchSize:  opts.BatchSize,
		retryDelay: opts.RetryDelay,
	}
}

// Run выполняет один прогон сверки. При ошибке возвращается частичный результат,
// по LastProcessedID которого прогон можно продолжить.
func (e *Engine) Run(ctx context.Context, req Request) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "parity.Run", trace.WithAttributes(
		attribute.String("resource_type", string(req.ResourceType)),
		attribute.Int64("start_id", req.StartID),
		attribute.String("parity_status", string(req.ParityStatus)),
	))
	defer span.End()

	result := Result{ResourceType: req.ResourceType}
	var err error
	switch req.ResourceType {
	case domain.ResourceTypePayment:
		err = e.runCharges(ctx, req, &result)
	case domain.ResourceTypeRefund:
		err = e.runRefunds(ctx, req, &result)
	default:
		err = fmt.Errorf("parity run for %q: %w", req.ResourceType, domain.ErrUnknownResourceType)
	}

	span.SetAttributes(
		attribute.Int("processed", result.Processed),
		attribute.Int64("last_processed_id", result.LastProcessedID),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	e.logger.WithFields(log.Fields{
		"resource_type":     result.ResourceType,
		"processed":         result.Processed,
		"skipped":           result.Skipped,
		"exists":            result.Exists,
		"mismatched":        result.Mismatched,
		"missing":           result.Missing,
		"inconclusive":      result.Inconclusive,
		"reoffered":         result.Reoffered,
		"last_processed_id": result.LastProcessedID,
	}).Info("parity run completed")
	return result, nil
}

func (e *Engine) runCharges(ctx context.Context, req Request, result *Result) error {
	visit := func(charge domain.Charge) error {
		result.LastProcessedID = charge.ID
		if req.DoNotReprocessValidRecords && charge.ParityCheckStatus == domain.ParityExistsInLedger {
			result.Skipped++
			return nil
		}
		if req.seen.markVisited(domain.ResourceTypePayment, charge.ID) {
			result.Skipped++
			return nil
		}
		return e.reconcileCharge(ctx, charge, result)
	}

	if req.ParityStatus != "" {
		afterID := max(req.StartID-1, 0)
		for {
			page, err := e.repos.Charges.ListByParityStatus(ctx, req.ParityStatus, afterID, e.batchSize)
			if err != nil {
				return fmt.Errorf("list charges by parity status: %w", err)
			}
			for _, charge := range page {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := visit(charge); err != nil {
					return err
				}
				afterID = charge.ID
			}
			if len(page) < e.batchSize {
				return nil
			}
		}
	}

	maxID := req.MaxID
	if maxID <= 0 {
		var err error
		if maxID, err = e.repos.Charges.MaxID(ctx); err != nil {
			return fmt.Errorf("charge max id: %w", err)
		}
	}
	for fromID := req.StartID; fromID <= maxID; {
		page, err := e.repos.Charges.ListByIDRange(ctx, fromID, maxID, e.batchSize)
		if err != nil {
			return fmt.Errorf("list charges by id range: %w", err)
		}
		if len(page) == 0 {
			return nil
		}
		for _, charge := range page {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := visit(charge); err != nil {
				return err
			}
		}
		fromID = page[len(page)-1].ID + 1
	}
	return nil
}

func (e *Engine) runRefunds(ctx context.Context, req Request, result *Result) error {
	visit := func(refund domain.Refund) error {
		result.LastProcessedID = refund.ID
		if req.DoNotReprocessValidRecords && refund.ParityCheckStatus == domain.ParityExistsInLedger {
			result.Skipped++
			return nil
		}
		if req.seen.markVisited(domain.ResourceTypeRefund, refund.ID) {
			result.Skipped++
			return nil
		}
		return e.reconcileRefund(ctx, refund, result)
	}

	if req.ParityStatus != "" {
		afterID := max(req.StartID-1, 0)
		for {
			page, err := e.repos.Refunds.ListByParityStatus(ctx, req.ParityStatus, afterID, e.batchSize)
			if err != nil {
				return fmt.Errorf("list refunds by parity status: %w", err)
			}
			for _, refund := range page {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := visit(refund); err != nil {
					return err
				}
				afterID = refund.ID
			}
			if len(page) < e.batchSize {
				return nil
			}
		}
	}

	maxID := req.MaxID
	if maxID <= 0 {
		var err error
		if maxID, err = e.repos.Refunds.MaxID(ctx); err != nil {
			return fmt.Errorf("refund max id: %w", err)
		}
	}
	for fromID := req.StartID; fromID <= maxID; {
		page, err := e.repos.Refunds.ListByIDRange(ctx, fromID, maxID, e.batchSize)
		if err != nil {
			return fmt.Errorf("list refunds by id range: %w", err)
		}
		if len(page) == 0 {
			return nil
		}
		for _, refund := range page {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := visit(refund); err != nil {
				return err
			}
		}
		fromID = page[len(page)-1].ID + 1
	}
	return nil
}

func (e *Engine) reconcileCharge(ctx context.Context, charge domain.Charge, result *Result) error {
	logger := e.logger.WithField("charge_external_id", charge.ExternalID)
	status, err := e.CheckCharge(ctx, charge)
	if errors.Is(err, domain.ErrLedgerUnavailable) {
		result.Inconclusive++
		e.recordInconclusive(domain.ResourceTypePayment)
		logger.WithError(err).Warn("ledger lookup failed, parity status left unchanged")
		return nil
	}
	if err != nil {
		return err
	}

	result.Processed++
	if err := e.repos.Charges.UpdateParityStatus(ctx, charge.ID, status, e.clock().UTC()); err != nil {
		return fmt.Errorf("update charge %s parity status: %w", charge.ExternalID, err)
	}
	e.count(domain.ResourceTypePayment, status, result)
	if status == domain.ParityExistsInLedger {
		return nil
	}

	t, event, err := e.resolver.ForCharge(ctx, charge)
	if err != nil {
		e.recordReoffer(domain.ResourceTypePayment, "unresolved")
		logger.WithError(err).Warn("cannot resolve causal event for drifted charge")
		return nil
	}
	e.reoffer(ctx, logger, t, event, result)
	return nil
}

func (e *Engine) reconcileRefund(ctx context.Context, refund domain.Refund, result *Result) error {
	logger := e.logger.WithField("refund_external_id", refund.ExternalID)
	status, err := e.CheckRefund(ctx, refund)
	if errors.Is(err, domain.ErrLedgerUnavailable) {
		result.Inconclusive++
		e.recordInconclusive(domain.ResourceTypeRefund)
		logger.WithError(err).Warn("ledger lookup failed, parity status left unchanged")
		return nil
	}
	if err != nil {
		return err
	}

	result.Processed++
	if err := e.repos.Refunds.UpdateParityStatus(ctx, refund.ID, status, e.clock().UTC()); err != nil {
		return fmt.Errorf("update refund %s parity status: %w", refund.ExternalID, err)
	}
	e.count(domain.ResourceTypeRefund, status, result)
	if status == domain.ParityExistsInLedger {
		return nil
	}

	t, event, err := e.resolver.ForRefund(ctx, refund)
	if err != nil {
		e.recordReoffer(domain.ResourceTypeRefund, "unresolved")
		logger.WithError(err).Warn("cannot resolve causal event for drifted refund")
		return nil
	}
	e.reoffer(ctx, logger, t, event, result)
	return nil
}

// reoffer ошибки не пробрасывает: статус сверки уже сохранён, событие подберёт sweeper.
func (e *Engine) reoffer(ctx context.Context, logger *log.Entry, t transition.StateTransition, event domain.Event, result *Result) {
	watermark := e.clock().UTC().Add(e.retryDelay)
	if err := e.offerer.OfferTransition(ctx, t, event, &watermark); err != nil {
		e.recordReoffer(event.ResourceType, "failed")
		logger.WithError(err).WithField("event_type", event.EventType).Warn("failed to re-offer event after drift")
		return
	}
	result.Reoffered++
	e.recordReoffer(event.ResourceType, "offered")
	logger.WithField("event_type", event.EventType).Info("event re-offered after drift")
}

// CheckCharge вычисляет статус сверки платежа, включая все его возвраты.
// Недоступность ledger возвращается как ошибка, обёрнутая в domain.ErrLedgerUnavailable.
func (e *Engine) CheckCharge(ctx context.Context, charge domain.Charge) (domain.ParityCheckStatus, error) {
	ctx, span := e.tracer.Start(ctx, "parity.CheckCharge", trace.WithAttributes(
		attribute.String("charge_external_id", charge.ExternalID),
	))
	defer span.End()

	status, err := e.checkCharge(ctx, charge)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.String("parity_status", string(status)))
	return status, nil
}

func (e *Engine) checkCharge(ctx context.Context, charge domain.Charge) (domain.ParityCheckStatus, error) {
	ledgerTx, found, err := e.ledger.GetTransaction(ctx, charge.ExternalID, domain.LedgerQuery{
		GatewayAccountID: charge.GatewayAccount.ID,
		TransactionType:  domain.ResourceTypePayment,
	})
	if err != nil {
		return "", fmt.Errorf("%w: charge %s: %w", domain.ErrLedgerUnavailable, charge.ExternalID, err)
	}
	if !found {
		return domain.ParityMissingInLedger, nil
	}

	history, err := e.repos.ChargeEvents.ListByChargeID(ctx, charge.ID)
	if err != nil {
		return "", fmt.Errorf("load charge history %d: %w", charge.ID, err)
	}
	refunds, err := e.repos.Refunds.ListByChargeExternalID(ctx, charge.ExternalID)
	if err != nil {
		return "", fmt.Errorf("load refunds of charge %s: %w", charge.ExternalID, err)
	}

	if mismatches := CompareCharge(charge, history, refunds, ledgerTx); len(mismatches) > 0 {
		e.logMismatches(e.logger.WithField("charge_external_id", charge.ExternalID), mismatches)
		return domain.ParityDataMismatch, nil
	}

	for _, refund := range refunds {
		status, err := e.checkRefund(ctx, refund, charge.GatewayAccount.ID)
		if err != nil {
			return "", err
		}
		if status != domain.ParityExistsInLedger {
			return domain.ParityDataMismatch, nil
		}
	}
	return domain.ParityExistsInLedger, nil
}

// CheckRefund вычисляет статус сверки возврата.
func (e *Engine) CheckRefund(ctx context.Context, refund domain.Refund) (domain.ParityCheckStatus, error) {
	ctx, span := e.tracer.Start(ctx, "parity.CheckRefund", trace.WithAttributes(
		attribute.String("refund_external_id", refund.ExternalID),
	))
	defer span.End()

	charge, err := e.repos.Charges.FindByExternalID(ctx, refund.ChargeExternalID)
	if err != nil {
		err = fmt.Errorf("load parent charge %s: %w", refund.ChargeExternalID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	status, err := e.checkRefund(ctx, refund, charge.GatewayAccount.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.String("parity_status", string(status)))
	return status, nil
}

func (e *Engine) checkRefund(ctx context.Context, refund domain.Refund, gatewayAccountID int64) (domain.ParityCheckStatus, error) {
	ledgerTx, found, err := e.ledger.GetTransaction(ctx, refund.ExternalID, domain.LedgerQuery{
		GatewayAccountID: gatewayAccountID,
		TransactionType:  domain.ResourceTypeRefund,
		ParentExternalID: refund.ChargeExternalID,
	})
	if err != nil {
		return "", fmt.Errorf("%w: refund %s: %w", domain.ErrLedgerUnavailable, refund.ExternalID, err)
	}
	if !found {
		return domain.ParityMissingInLedger, nil
	}

	history, err := e.repos.RefundHistory.ListByExternalID(ctx, refund.ExternalID)
	if err != nil {
		return "", fmt.Errorf("load refund history %s: %w", refund.ExternalID, err)
	}
	actor := CreationActor{UserExternalID: refund.UserExternalID, UserEmail: refund.UserEmail}
	if userExternalID, userEmail, ok := domain.RefundActor(history); ok {
		actor = CreationActor{UserExternalID: userExternalID, UserEmail: userEmail}
	}

	if mismatches := CompareRefund(refund, actor, ledgerTx); len(mismatches) > 0 {
		e.logMismatches(e.logger.WithField("refund_external_id", refund.ExternalID), mismatches)
		return domain.ParityDataMismatch, nil
	}
	return domain.ParityExistsInLedger, nil
}

func (e *Engine) logMismatches(logger *log.Entry, mismatches []Mismatch) {
	fields := make([]string, 0, len(mismatches))
	for _, m := range mismatches {
		fields = append(fields, m.String())
	}
	logger.WithField("mismatches", fields).Info("record differs from ledger")
}

func (e *Engine) count(resourceType domain.ResourceType, status domain.ParityCheckStatus, result *Result) {
	switch status {
	case domain.ParityExistsInLedger:
		result.Exists++
	case domain.ParityDataMismatch:
		result.Mismatched++
	case domain.ParityMissingInLedger:
		result.Missing++
	}
	if e.metrics != nil {
		e.metrics.RecordChecked(string(resourceType), string(status))
	}
}

func (e *Engine) recordInconclusive(resourceType domain.ResourceType) {
	if e.metrics != nil {
		e.metrics.RecordInconclusive(string(resourceType))
	}
}

func (e *Engine) recordReoffer(resourceType domain.ResourceType, result string) {
	if e.metrics != nil {
		e.metrics.RecordReoffer(string(resourceType), result)
	}
}
