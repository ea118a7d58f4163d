package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_Status(t *testing.T) {
	tests := []struct {
		name   string
		checks []*HealthCheck
		want   HealthStatus
	}{
		{
			name: "all healthy",
			checks: []*HealthCheck{
				StorageCheck(func(context.Context) error { return nil }),
			},
			want: HealthStatusHealthy,
		},
		{
			name: "non-critical failure degrades",
			checks: []*HealthCheck{
				StorageCheck(func(context.Context) error { return nil }),
				ExternalServiceCheck("llm", func(context.Context) error { return errors.New("no key") }),
			},
			want: HealthStatusDegraded,
		},
		{
			name: "critical failure",
			checks: []*HealthCheck{
				StorageCheck(func(context.Context) error { return errors.New("down") }),
			},
			want: HealthStatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthChecker("test")
			for _, c := range tt.checks {
				hc.RegisterCheck(c)
			}
			resp := hc.Check(context.Background())
			assert.Equal(t, tt.want, resp.Status)
			assert.Len(t, resp.Checks, len(tt.checks))
			assert.Equal(t, "test", resp.Version)
		})
	}
}

func TestHealthChecker_Timeout(t *testing.T) {
	hc := NewHealthChecker("test")
	check := &HealthCheck{
		Name:     "slow",
		Timeout:  10 * time.Millisecond,
		Critical: true,
		CheckFunc: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	hc.RegisterCheck(check)

	resp := hc.Check(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, resp.Status)

	_, err := check.LastStatus()
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMount(t *testing.T) {
	InitMetrics()
	hc := NewHealthChecker("test")
	hc.RegisterCheck(StorageCheck(func(context.Context) error { return errors.New("down") }))

	mux := http.NewServeMux()
	Mount(mux, hc)

	tests := []struct {
		path string
		code int
	}{
		{"/health", http.StatusServiceUnavailable},
		{"/health/live", http.StatusOK},
		{"/health/ready", http.StatusServiceUnavailable},
		{"/metrics", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.code, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var body HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "down", body.Checks["storage"].Message)
}

func TestRecordHelpers(t *testing.T) {
	InitMetrics()

	before := testutil.ToFloat64(chatTurnsTotal.WithLabelValues("metrics-test", TurnOutcomeOK))
	RecordChatTurn("metrics-test", TurnOutcomeOK)
	assert.Equal(t, before+1, testutil.ToFloat64(chatTurnsTotal.WithLabelValues("metrics-test", TurnOutcomeOK)))

	SetActiveConnections("metrics-test", 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(activeConnections.WithLabelValues("metrics-test")))

	RecordSweep("metrics-test", 0)
	RecordSweep("metrics-test", 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(sweptConnectionsTotal.WithLabelValues("metrics-test")))

	RecordGeneration("mock", nil, time.Millisecond, 10, 5)
	assert.GreaterOrEqual(t, testutil.ToFloat64(generationTokens.WithLabelValues("mock", "prompt")), 10.0)

	RecordPersist("memory", errors.New("x"), time.Millisecond)
	RecordProtocolError("metrics-test")
	RecordRateLimited("metrics-test")
}
