package integration

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
	"github.com/vladislavdragonenkov/payconnector/internal/ledger"
	"github.com/vladislavdragonenkov/payconnector/internal/service/charge"
	"github.com/vladislavdragonenkov/payconnector/internal/service/emitter"
	"github.com/vladislavdragonenkov/payconnector/internal/service/events"
	"github.com/vladislavdragonenkov/payconnector/internal/service/parity"
	"github.com/vladislavdragonenkov/payconnector/internal/service/refund"
	"github.com/vladislavdragonenkov/payconnector/internal/service/sweeper"
	"github.com/vladislavdragonenkov/payconnector/internal/service/transition"
	"github.com/vladislavdragonenkov/payconnector/internal/storage/memory"
)

const ledgerURL = "http://ledger.test"

var errBrokerUnavailable = errors.New("broker unavailable")

type recordingPublisher struct {
	mu      sync.Mutex
	events  []domain.Event
	failing map[domain.EventType]bool
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failing[event.EventType] {
		return errBrokerUnavailable
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) failOn(eventType domain.EventType, fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failing == nil {
		p.failing = make(map[domain.EventType]bool)
	}
	p.failing[eventType] = fail
}

func (p *recordingPublisher) countOf(externalID string, eventType domain.EventType) int {
	n := 0
	for _, got := range p.typesFor(externalID) {
		if got == eventType {
			n++
		}
	}
	return n
}

type recordingDLQ struct {
	mu      sync.Mutex
	letters []emitter.DeadLetter
}

func (d *recordingDLQ) PublishDeadLetter(_ context.Context, letter emitter.DeadLetter) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.letters = append(d.letters, letter)
	return nil
}

func (d *recordingDLQ) all() []emitter.DeadLetter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]emitter.DeadLetter(nil), d.letters...)
}

func (p *recordingPublisher) typesFor(externalID string) []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var types []domain.EventType
	for _, event := range p.events {
		if event.ResourceExternalID == externalID {
			types = append(types, event.EventType)
		}
	}
	return types
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// PaymentLifecycleTestSuite прогоняет платежи и возвраты через сервисы состояний,
// очередь переходов, эмиттер и сверку поверх in-memory хранилища.
type PaymentLifecycleTestSuite struct {
	suite.Suite
	ctx       context.Context
	charges   domain.ChargeRepository
	refunds   domain.RefundRepository
	emitted   domain.EmittedEventRepository
	queue     *transition.Queue
	emitter   *emitter.Worker
	sweeper   *sweeper.Worker
	dlq       *recordingDLQ
	chargeSvc *charge.StateService
	refundSvc *refund.StateService
	runner    *parity.Runner
	publisher *recordingPublisher
	transport *httpmock.MockTransport
}

func (s *PaymentLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	logger := baseLogger.WithField("component", "integration-test")

	s.ctx = context.Background()
	s.charges = memory.NewChargeRepository()
	chargeEvents := memory.NewChargeEventRepository()
	s.refunds = memory.NewRefundRepository()
	refundHistory := memory.NewRefundHistoryRepository()
	s.emitted = memory.NewEmittedEventRepository()
	tx := memory.NewTransactor()

	s.publisher = &recordingPublisher{}
	s.queue = transition.NewQueue()
	eventService := events.NewService(s.emitted, s.publisher, events.WithLogger(logger))
	transitions := transition.NewService(s.queue, eventService, transition.WithLogger(logger))
	resolver := transition.NewResolver(s.charges, chargeEvents, s.refunds, refundHistory)
	factory := events.NewFactory(s.charges, chargeEvents, s.refunds, refundHistory)

	s.dlq = &recordingDLQ{}
	s.emitter = emitter.NewWorker(s.queue, factory, eventService,
		emitter.WithLogger(logger),
		emitter.WithPollTimeout(20*time.Millisecond),
		emitter.WithMaxAttempts(1),
		emitter.WithDLQPublisher(s.dlq),
	)
	s.sweeper = sweeper.NewWorker(s.emitted, resolver, transitions, sweeper.WithLogger(logger))
	s.chargeSvc = charge.NewStateService(tx, s.charges, chargeEvents, transitions, charge.WithLogger(logger))
	s.refundSvc = refund.NewStateService(tx, s.charges, s.refunds, refundHistory, transitions, refund.WithLogger(logger))

	s.transport = httpmock.NewMockTransport()
	ledgerClient := ledger.NewClient(ledgerURL,
		ledger.WithHTTPClient(&http.Client{Transport: s.transport}),
		ledger.WithRetryPolicy(0, time.Millisecond),
		ledger.WithLogger(logger),
	)
	engine := parity.NewEngine(
		parity.Repositories{
			Charges:       s.charges,
			ChargeEvents:  chargeEvents,
			Refunds:       s.refunds,
			RefundHistory: refundHistory,
		},
		ledgerClient, resolver, transitions,
		parity.WithLogger(logger),
	)
	s.runner = parity.NewRunner(engine, parity.WithRunnerLogger(logger))
}

// drain синхронно отправляет всё, что сейчас лежит в очереди.
func (s *PaymentLifecycleTestSuite) drain() {
	for s.queue.Len() > 0 {
		s.emitter.ProcessNext(s.ctx)
	}
}

func (s *PaymentLifecycleTestSuite) createCharge(externalID string) domain.Charge {
	created, err := s.chargeSvc.CreateCharge(s.ctx, domain.Charge{
		ExternalID:     externalID,
		AmountMinor:    2500,
		Description:    "Lifecycle payment",
		Reference:      "ref-" + externalID,
		Language:       "en",
		GatewayAccount: domain.GatewayAccount{ID: 11, PaymentProvider: "sandbox"},
	})
	s.Require().NoError(err)
	return created
}

func (s *PaymentLifecycleTestSuite) moveCharge(externalID string, statuses ...domain.ChargeStatus) {
	for _, status := range statuses {
		_, err := s.chargeSvc.TransitionChargeState(s.ctx, externalID, status, nil)
		s.Require().NoError(err)
	}
}

func (s *PaymentLifecycleTestSuite) captureCharge(externalID string) domain.Charge {
	created := s.createCharge(externalID)
	s.moveCharge(externalID,
		domain.ChargeStatusAuthorisationReady,
		domain.ChargeStatusAuthorisationSuccess,
		domain.ChargeStatusCaptureApproved,
		domain.ChargeStatusCaptured,
	)
	return created
}

func (s *PaymentLifecycleTestSuite) TestChargeCaptureEmitsMappedEventsOnly() {
	s.captureCharge("ch-capture")
	s.drain()

	types := s.publisher.typesFor("ch-capture")
	s.Contains(types, domain.EventPaymentCreated)
	s.Contains(types, domain.EventAuthorisationSucceeded)
	s.Contains(types, domain.EventUserApprovedForCapture)
	s.Contains(types, domain.EventCaptureConfirmed)
	s.NotContains(types, domain.EventPaymentStarted)

	// каждое событие опубликовано ровно один раз
	seen := make(map[domain.EventType]int)
	for _, eventType := range types {
		seen[eventType]++
	}
	for eventType, n := range seen {
		s.Equal(1, n, "event %s published %d times", eventType, n)
	}
}

func (s *PaymentLifecycleTestSuite) TestRefundLifecycleUsesCreationActor() {
	s.captureCharge("ch-refund")
	s.drain()

	_, err := s.refundSvc.CreateRefund(s.ctx, domain.Refund{
		ExternalID:       "rf-user",
		ChargeExternalID: "ch-refund",
		AmountMinor:      1000,
		UserExternalID:   "user-1",
		UserEmail:        "user@example.org",
	})
	s.Require().NoError(err)
	_, err = s.refundSvc.CreateRefund(s.ctx, domain.Refund{
		ExternalID:       "rf-service",
		ChargeExternalID: "ch-refund",
		AmountMinor:      500,
	})
	s.Require().NoError(err)

	_, err = s.refundSvc.TransitionRefundState(s.ctx, "rf-user", domain.RefundStatusSubmitted)
	s.Require().NoError(err)
	_, err = s.refundSvc.TransitionRefundState(s.ctx, "rf-user", domain.RefundStatusRefunded)
	s.Require().NoError(err)
	s.drain()

	s.Equal([]domain.EventType{
		domain.EventRefundCreatedByUser,
		domain.EventRefundSubmitted,
		domain.EventRefundSucceeded,
	}, s.publisher.typesFor("rf-user"))
	s.Equal([]domain.EventType{domain.EventRefundCreatedByService}, s.publisher.typesFor("rf-service"))
}

func (s *PaymentLifecycleTestSuite) TestRefundForUnknownChargeRollsBack() {
	_, err := s.refundSvc.CreateRefund(s.ctx, domain.Refund{ExternalID: "rf-orphan", ChargeExternalID: "ch-missing", AmountMinor: 100})
	s.Require().ErrorIs(err, domain.ErrChargeNotFound)
	s.Zero(s.queue.Len())

	_, err = s.refunds.FindByExternalID(s.ctx, "rf-orphan")
	s.ErrorIs(err, domain.ErrRefundNotFound)
}

func (s *PaymentLifecycleTestSuite) TestParityMissingChargeReofferIsAbsorbed() {
	created := s.captureCharge("ch-drift")
	s.drain()
	published := s.publisher.count()

	s.transport.RegisterResponder(http.MethodGet, `=~/v1/transaction/ch-drift`,
		httpmock.NewStringResponder(http.StatusNotFound, `{"message":"not found"}`))

	results, err := s.runner.RunOnce(s.ctx, parity.Request{
		ResourceType: domain.ResourceTypePayment,
		StartID:      created.ID,
		MaxID:        created.ID,
	})
	s.Require().NoError(err)
	s.Require().Len(results, 1)
	s.Equal(1, results[0].Missing)
	s.Equal(1, results[0].Reoffered)
	s.Equal(created.ID, results[0].LastProcessedID)

	stored, err := s.charges.FindByExternalID(s.ctx, "ch-drift")
	s.Require().NoError(err)
	s.Equal(domain.ParityMissingInLedger, stored.ParityCheckStatus)
	s.NotNil(stored.ParityCheckedAt)

	// событие уже было опубликовано: повторное предложение гасится журналом публикаций
	s.Equal(1, s.queue.Len())
	s.drain()
	s.Equal(published, s.publisher.count())
}

func (s *PaymentLifecycleTestSuite) TestParityMissingRefundReofferIsAbsorbed() {
	s.captureCharge("ch-refund-drift")
	created, err := s.refundSvc.CreateRefund(s.ctx, domain.Refund{
		ExternalID:       "rf-drift",
		ChargeExternalID: "ch-refund-drift",
		AmountMinor:      700,
		UserExternalID:   "user-7",
	})
	s.Require().NoError(err)
	s.drain()
	s.Equal([]domain.EventType{domain.EventRefundCreatedByUser}, s.publisher.typesFor("rf-drift"))

	s.transport.RegisterResponder(http.MethodGet, `=~/v1/transaction/rf-drift`,
		httpmock.NewStringResponder(http.StatusNotFound, `{"message":"not found"}`))

	results, err := s.runner.RunOnce(s.ctx, parity.Request{
		ResourceType: domain.ResourceTypeRefund,
		StartID:      created.ID,
		MaxID:        created.ID,
	})
	s.Require().NoError(err)
	s.Require().Len(results, 1)
	s.Equal(1, results[0].Missing)
	s.Equal(1, results[0].Reoffered)

	// ключ, восстановленный из истории возврата, совпадает с исходным
	s.drain()
	s.Equal([]domain.EventType{domain.EventRefundCreatedByUser}, s.publisher.typesFor("rf-drift"))
}

func (s *PaymentLifecycleTestSuite) TestScheduledRunChecksEachRecordOnce() {
	s.captureCharge("ch-fresh")
	s.drain()

	s.transport.RegisterResponder(http.MethodGet, `=~/v1/transaction/ch-fresh`,
		httpmock.NewStringResponder(http.StatusNotFound, `{"message":"not found"}`))

	results, err := s.runner.RunOnce(s.ctx, parity.DefaultScheduledRequests()...)
	s.Require().NoError(err)

	missing, reoffered := 0, 0
	for _, result := range results {
		missing += result.Missing
		reoffered += result.Reoffered
	}
	s.Equal(1, missing)
	s.Equal(1, reoffered)
	s.Equal(1, s.queue.Len())
	s.Equal(1, s.transport.GetTotalCallCount())
}

func (s *PaymentLifecycleTestSuite) TestRecheckedStatusIsNotVisitedAgainInSameRun() {
	created := s.captureCharge("ch-reclassified")
	s.drain()

	s.transport.RegisterResponder(http.MethodGet, `=~/v1/transaction/ch-reclassified`,
		httpmock.NewStringResponder(http.StatusNotFound, `{"message":"not found"}`))

	results, err := s.runner.RunOnce(s.ctx,
		parity.Request{ResourceType: domain.ResourceTypePayment, ParityStatus: domain.ParityNotChecked},
		parity.Request{ResourceType: domain.ResourceTypePayment, ParityStatus: domain.ParityMissingInLedger},
	)
	s.Require().NoError(err)
	s.Require().Len(results, 2)
	s.Equal(1, results[0].Reoffered)
	s.Zero(results[1].Reoffered)
	s.Equal(1, results[1].Skipped)
	s.Equal(created.ID, results[1].LastProcessedID)
	s.Equal(1, s.queue.Len())
}

func (s *PaymentLifecycleTestSuite) TestDeadLetteredAvailabilityUpdateIsEmittedAfterRearm() {
	s.publisher.failOn(domain.EventRefundAvailabilityUpdated, true)
	s.captureCharge("ch-dlq")
	s.drain()

	s.Equal(1, s.publisher.countOf("ch-dlq", domain.EventCaptureConfirmed))
	s.Zero(s.publisher.countOf("ch-dlq", domain.EventRefundAvailabilityUpdated))
	letters := s.dlq.all()
	s.Require().Len(letters, 1)
	key, ok := letters[0].Key()
	s.Require().True(ok)
	s.Equal(domain.EventRefundAvailabilityUpdated, key.EventType)

	// повторная постановка письма из DLQ: запись журнала без водяного знака подбирает sweeper
	s.publisher.failOn(domain.EventRefundAvailabilityUpdated, false)
	s.Require().NoError(s.emitted.RecordOffered(s.ctx, key, nil))

	reoffered, err := s.sweeper.Sweep(s.ctx, time.Now().Add(time.Hour))
	s.Require().NoError(err)
	s.Equal(1, reoffered)
	s.drain()

	s.Equal(1, s.publisher.countOf("ch-dlq", domain.EventRefundAvailabilityUpdated))
	s.Equal(1, s.publisher.countOf("ch-dlq", domain.EventCaptureConfirmed))
	emitted, err := s.emitted.Get(s.ctx, key)
	s.Require().NoError(err)
	s.True(emitted.Emitted())
}

func (s *PaymentLifecycleTestSuite) TestParityLedgerOutageIsInconclusive() {
	created := s.createCharge("ch-outage")
	s.drain()

	s.transport.RegisterResponder(http.MethodGet, `=~/v1/transaction/ch-outage`,
		httpmock.NewStringResponder(http.StatusServiceUnavailable, `{}`))

	results, err := s.runner.RunOnce(s.ctx, parity.Request{
		ResourceType: domain.ResourceTypePayment,
		StartID:      created.ID,
		MaxID:        created.ID,
	})
	s.Require().NoError(err)
	s.Require().Len(results, 1)
	s.Equal(1, results[0].Inconclusive)
	s.Zero(results[0].Reoffered)
	s.Zero(s.queue.Len())

	stored, err := s.charges.FindByExternalID(s.ctx, "ch-outage")
	s.Require().NoError(err)
	s.Equal(domain.ParityNotChecked, stored.ParityCheckStatus)
}

func (s *PaymentLifecycleTestSuite) TestUndeliveredEventStaysOfferedInJournal() {
	s.createCharge("ch-pending")
	later := time.Now().Add(time.Minute)

	records, err := s.emitted.ListNotEmitted(s.ctx, later, later, 10)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal("ch-pending", records[0].ExternalID)
	s.Equal(domain.EventPaymentCreated, records[0].EventType)
	s.Nil(records[0].EmittedDate)

	s.drain()
	records, err = s.emitted.ListNotEmitted(s.ctx, later, later, 10)
	s.Require().NoError(err)
	s.Empty(records)
}

func TestPaymentLifecycleTestSuite(t *testing.T) {
	suite.Run(t, new(PaymentLifecycleTestSuite))
}
