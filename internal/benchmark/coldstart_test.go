package benchmark

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWaitForHealth_ReturnsOnFirst200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	got := waitForHealth(context.Background(), srv.Client(), srv.URL, http.Header{}, 5*time.Second)
	require.NotNil(t, got)
	assert.Less(t, got.Seconds(), 3.0)
}

func TestWaitForHealth_TimesOutWhenNeverReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got := waitForHealth(ctx, srv.Client(), srv.URL, http.Header{}, 500*time.Millisecond)
	assert.Nil(t, got)
}

func TestIsColdHTTP_NonOKStatusIsCold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	assert.True(t, IsCold(context.Background(), srv.Client(), "modal", srv.URL, http.Header{}))
}

func TestIsColdRunPod_ReadsWorkerCounts(t *testing.T) {
	warm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"workers":{"ready":1,"running":0,"initializing":0}}`))
	}))
	defer warm.Close()
	cold := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"workers":{"ready":0,"running":0,"initializing":0}}`))
	}))
	defer cold.Close()

	assert.False(t, IsCold(context.Background(), warm.Client(), "runpod", warm.URL, http.Header{}))
	assert.True(t, IsCold(context.Background(), cold.Client(), "runpod", cold.URL, http.Header{}))
}

func TestValidateProvider_RejectsAzure(t *testing.T) {
	err := ValidateProvider("azure")
	assert.Error(t, err)
	assert.NoError(t, ValidateProvider("modal"))
}

func TestMeasureTTFT_MeasuresFirstChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Write([]byte("data: chunk1\n"))
		flusher.Flush()
		time.Sleep(20 * time.Millisecond)
		w.Write([]byte("data: chunk2\n"))
	}))
	defer srv.Close()

	ttft, total := measureTTFT(context.Background(), srv.Client(), srv.URL, "test-model", http.Header{})
	require.NotNil(t, ttft)
	require.NotNil(t, total)
	assert.LessOrEqual(t, *ttft, *total)
}

func TestRunFreshColdStart_ReportsErrorWhenDeployFails(t *testing.T) {
	opts := FreshColdStartOptions{
		Provider: "modal",
		GPU:      "A100",
		Model:    "test-model",
		Headers:  http.Header{},
		Deploy: func(ctx context.Context) (string, string, map[string]string, error) {
			return "", "", nil, assertError{"deploy failed"}
		},
	}
	result, err := RunFreshColdStart(context.Background(), http.DefaultClient, zap.NewNop(), opts)
	require.NoError(t, err)
	assert.Equal(t, "deploy failed", result.Error)
	assert.NotNil(t, result.DeployTime)
}

func TestRunFreshColdStart_RejectsExcludedProvider(t *testing.T) {
	opts := FreshColdStartOptions{Provider: "azure"}
	_, err := RunFreshColdStart(context.Background(), http.DefaultClient, zap.NewNop(), opts)
	assert.Error(t, err)
}

func TestMeanOf_AveragesAcrossRuns(t *testing.T) {
	a := dur(2 * time.Second)
	b := dur(4 * time.Second)
	runs := []RunResult{
		{Scenario: "warm_cold_start", Total: 10 * time.Second, TTFT: a},
		{Scenario: "warm_cold_start", Total: 20 * time.Second, TTFT: b},
	}
	mean := MeanOf(runs)
	assert.Equal(t, 15*time.Second, mean.Total)
	require.NotNil(t, mean.TTFT)
	assert.Equal(t, 3*time.Second, *mean.TTFT)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
