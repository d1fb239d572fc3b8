package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
	"github.com/vladislavdragonenkov/payconnector/internal/service/parity"
)

func TestRunParityCheck_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LedgerURL = ""

	_, err := RunParityCheck(context.Background(), cfg, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger url is required")
}

func TestRunParityCheck_DefaultRequestsOnEmptyStorage(t *testing.T) {
	ledger := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ledger.Close()

	cfg := DefaultConfig()
	cfg.LedgerURL = ledger.URL

	results, err := RunParityCheck(context.Background(), cfg, time.Second)
	require.NoError(t, err)
	require.Len(t, results, len(parity.DefaultScheduledRequests()))
	for _, result := range results {
		assert.Zero(t, result.Processed)
		assert.Zero(t, result.Reoffered)
	}
}

func TestDrainQueue_EmitsReofferedTransitions(t *testing.T) {
	ledger := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ledger.Close()

	cfg := DefaultConfig()
	cfg.LedgerURL = ledger.URL
	cfg.LedgerMaxRetries = 0
	cfg.EmitterPollTimeout = 20 * time.Millisecond
	svc, publisher := newTestServices(t, cfg)
	ctx := context.Background()

	charge, err := svc.chargeStates.CreateCharge(ctx, domain.Charge{ExternalID: "ch-drain-1", AmountMinor: 700})
	require.NoError(t, err)
	for svc.queue.Len() > 0 {
		_, ok := svc.queue.Poll(ctx, 10*time.Millisecond)
		require.True(t, ok)
	}

	_, err = svc.parity.RunOnce(ctx, parity.Request{ResourceType: domain.ResourceTypePayment, StartID: charge.ID})
	require.NoError(t, err)
	require.Equal(t, 1, svc.queue.Len())

	drainQueue(ctx, svc, time.Second, log.WithField("test", t.Name()))

	assert.Zero(t, svc.queue.Len())
	assert.True(t, contains(publisher.types(), domain.EventPaymentCreated))
}

func TestDrainQueue_EmptyQueueReturnsImmediately(t *testing.T) {
	svc, publisher := newTestServices(t, DefaultConfig())

	started := time.Now()
	drainQueue(context.Background(), svc, time.Minute, log.WithField("test", t.Name()))

	assert.Less(t, time.Since(started), time.Second)
	assert.Empty(t, publisher.types())
}
