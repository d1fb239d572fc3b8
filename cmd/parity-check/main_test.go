package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/payconnector/internal/app"
	"github.com/vladislavdragonenkov/payconnector/internal/domain"
	"github.com/vladislavdragonenkov/payconnector/internal/service/parity"
)

func TestBuildRequests_Scheduled(t *testing.T) {
	requests, err := buildRequests(checkFlags{})
	require.NoError(t, err)
	assert.Nil(t, requests)

	_, err = buildRequests(checkFlags{startID: 10})
	require.Error(t, err)
}

func TestBuildRequests_Range(t *testing.T) {
	requests, err := buildRequests(checkFlags{resourceType: "Payment", startID: 5, maxID: 50, skipValid: true})
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, parity.Request{
		ResourceType:               domain.ResourceTypePayment,
		StartID:                    5,
		MaxID:                      50,
		DoNotReprocessValidRecords: true,
	}, requests[0])
}

func TestBuildRequests_ParityStatus(t *testing.T) {
	requests, err := buildRequests(checkFlags{resourceType: "refund", parityStatus: "missing_in_ledger"})
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, domain.ParityMissingInLedger, requests[0].ParityStatus)
}

func TestBuildRequests_Errors(t *testing.T) {
	_, err := buildRequests(checkFlags{resourceType: "order"})
	assert.ErrorIs(t, err, domain.ErrUnknownResourceType)

	_, err = buildRequests(checkFlags{resourceType: "payment", parityStatus: "maybe"})
	assert.ErrorIs(t, err, domain.ErrUnknownParityStatus)

	_, err = buildRequests(checkFlags{resourceType: "payment", startID: 10, maxID: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--max-id")
}

func TestPrintResults(t *testing.T) {
	var out bytes.Buffer
	printResults(&out, nil)
	assert.Equal(t, "no parity runs\n", out.String())

	out.Reset()
	printResults(&out, []parity.Result{{ResourceType: domain.ResourceTypeRefund, Processed: 3, Missing: 1, Reoffered: 1, LastProcessedID: 42}})
	assert.Contains(t, out.String(), "REOFFERED")
	assert.Contains(t, out.String(), "refund")
	assert.Contains(t, out.String(), "42")
}

func TestRootCmd_RunsCheckWithParsedFlags(t *testing.T) {
	old := runCheck
	t.Cleanup(func() { runCheck = old })

	var (
		gotRequests []parity.Request
		gotDrain    time.Duration
	)
	runCheck = func(_ context.Context, cfg app.Config, drain time.Duration, requests ...parity.Request) ([]parity.Result, error) {
		gotRequests = requests
		gotDrain = drain
		return []parity.Result{{ResourceType: domain.ResourceTypePayment, Processed: 2, Exists: 2}}, nil
	}

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--resource-type=payment", "--start-id=1", "--drain-timeout=5s"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	require.Len(t, gotRequests, 1)
	assert.Equal(t, int64(1), gotRequests[0].StartID)
	assert.Equal(t, 5*time.Second, gotDrain)
	assert.Contains(t, out.String(), "payment")
}

func TestRootCmd_PropagatesRunError(t *testing.T) {
	old := runCheck
	t.Cleanup(func() { runCheck = old })

	runCheck = func(context.Context, app.Config, time.Duration, ...parity.Request) ([]parity.Result, error) {
		return nil, domain.ErrParityCheckInProgress
	}

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs(nil)
	err := cmd.ExecuteContext(context.Background())
	assert.True(t, errors.Is(err, domain.ErrParityCheckInProgress))
}
