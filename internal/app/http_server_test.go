package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/payconnector/internal/health"
	"github.com/vladislavdragonenkov/payconnector/internal/service/transition"
	"github.com/vladislavdragonenkov/payconnector/internal/version"
)

// startTestMetricsServer поднимает HTTP-сервер с проверкой очереди переходов и ждёт /livez.
func startTestMetricsServer(t *testing.T, backlog func() int, warn, max int) (string, context.CancelFunc) {
	t.Helper()

	port := findFreePort(t)
	ctx, cancel := context.WithCancel(context.Background())

	handler := healthcheck.NewHandler(version.GetVersion())
	handler.RegisterChecker("transition_queue", healthcheck.NewBacklogChecker("transition_queue", backlog, warn, max))
	startMetricsServer(ctx, fmt.Sprintf(":%d", port), log.WithField("test", t.Name()), handler)

	base := fmt.Sprintf("http://localhost:%d", port)
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(base + "/livez")
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("metrics server did not start: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	return base, cancel
}

func getBody(t *testing.T, url string) (int, string) {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestMetricsServer_EndpointsWithEmptyQueue(t *testing.T) {
	queue := transition.NewQueue()
	base, cancel := startTestMetricsServer(t, queue.Len, 10, 100)
	defer cancel()

	tests := []struct {
		path string
		want int
		body string
	}{
		{path: "/metrics", want: http.StatusOK},
		{path: "/healthz", want: http.StatusOK},
		{path: "/livez", want: http.StatusOK, body: "ok"},
		{path: "/readyz", want: http.StatusOK, body: "ready"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			status, body := getBody(t, base+tt.path)
			if status != tt.want {
				t.Fatalf("unexpected status: got=%d want=%d", status, tt.want)
			}
			if tt.body != "" && body != tt.body {
				t.Fatalf("unexpected body: got=%q want=%q", body, tt.body)
			}
			if body == "" {
				t.Fatal("expected non-empty body")
			}
		})
	}
}

func TestMetricsServer_BacklogDegradesThenFailsReadiness(t *testing.T) {
	var backlog atomic.Int64
	base, cancel := startTestMetricsServer(t, func() int { return int(backlog.Load()) }, 2, 5)
	defer cancel()

	backlog.Store(3)
	status, body := getBody(t, base+"/healthz")
	if status != http.StatusOK {
		t.Fatalf("degraded backlog must keep /healthz at 200, got %d", status)
	}
	var response healthcheck.Response
	if err := json.Unmarshal([]byte(body), &response); err != nil {
		t.Fatalf("decode health response: %v", err)
	}
	if response.Status != healthcheck.StatusDegraded {
		t.Fatalf("expected degraded status, got %s", response.Status)
	}
	if status, _ := getBody(t, base+"/readyz"); status != http.StatusOK {
		t.Fatalf("degraded backlog must stay ready, got %d", status)
	}

	backlog.Store(6)
	if status, body := getBody(t, base+"/readyz"); status != http.StatusServiceUnavailable || body != "not ready" {
		t.Fatalf("expected 503 not ready, got %d %q", status, body)
	}
	if status, _ := getBody(t, base+"/healthz"); status != http.StatusServiceUnavailable {
		t.Fatalf("expected /healthz 503 over max backlog, got %d", status)
	}
}

func TestMetricsServer_StopsOnContextCancel(t *testing.T) {
	base, cancel := startTestMetricsServer(t, func() int { return 0 }, 0, 0)

	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(base + "/livez")
		if err != nil {
			return
		}
		resp.Body.Close()
		if time.Now().After(deadline) {
			t.Fatal("metrics server still serving after context cancellation")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestMetricsServer_BusyAddrDoesNotPanic(t *testing.T) {
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer listener.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := startMetricsServer(ctx, listener.Addr().String(), log.WithField("test", t.Name()), healthcheck.NewHandler("test"))
	if srv == nil {
		t.Fatal("startMetricsServer must return the server even if listen fails")
	}
}

// findFreePort находит свободный порт для тестов
func findFreePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}
