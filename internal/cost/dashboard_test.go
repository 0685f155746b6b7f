package cost

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosslogic/tuna-orchestrator/internal/models"
)

func TestComputeServerlessOnly_ReportsMaxPossibleCost(t *testing.T) {
	rec := &models.DeploymentRecord{
		ServiceName:            "tuna-abcd",
		ServerlessProviderName: "modal",
		GPU:                    "A100",
		GPUCount:               1,
		CreatedAt:              time.Now().Add(-2 * time.Hour).Format(time.RFC3339),
	}

	report, err := Compute(context.Background(), http.DefaultClient, rec, false)
	require.NoError(t, err)
	assert.False(t, report.Hybrid)
	assert.InDelta(t, 2.0, report.ServerlessOnlyUptimeHours, 0.05)
	assert.Equal(t, ServerlessPrice("modal"), report.ServerlessOnlyRatePerHour)
	assert.InDelta(t, report.ServerlessOnlyUptimeHours*report.ServerlessOnlyRatePerHour, report.ServerlessOnlyMaxCost, 0.01)
}

func TestComputeHybrid_AppliesAllFiveFormulas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{RouteStats: routeStats{
			Total:                10,
			Spot:                 7,
			Serverless:           3,
			GPUSecondsServerless: 3600, // 1 GPU-hour on serverless
			GPUSecondsSpot:       0,
			UptimeSeconds:        7200, // 2 hours of uptime
			SpotReadySeconds:     3600, // 1 hour spot-ready
		}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	rec := &models.DeploymentRecord{
		ServiceName:            "tuna-hybrid",
		ServerlessProviderName: "modal",
		GPU:                    "A100",
		GPUCount:               1,
		RouterURL:              srv.URL,
	}

	report, err := Compute(context.Background(), srv.Client(), rec, true)
	require.NoError(t, err)
	require.True(t, report.Hybrid)
	require.False(t, report.ZeroRequest)

	svlRate := ServerlessPrice("modal")
	spotRate := GPUPrice("A100").SpotPerHour
	onDemandRate := GPUPrice("A100").OnDemandPerHour

	assert.InDelta(t, 1.0*svlRate, report.ActualServerless, 0.001)
	assert.InDelta(t, 1.0*spotRate, report.ActualSpot, 0.001)
	assert.Equal(t, 0.0, report.ActualRouter, "colocated router costs nothing extra")
	assert.InDelta(t, report.ActualServerless+report.ActualSpot, report.ActualTotal, 0.001)
	assert.InDelta(t, 1.0*svlRate, report.AllServerlessCounterfactual, 0.001, "gpu_sec_spot was 0 in this fixture")
	assert.InDelta(t, 2.0*onDemandRate, report.AllOnDemandCounterfactual, 0.001)
}

func TestComputeHybrid_NonColocatedRouterChargesFlatRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(healthResponse{RouteStats: routeStats{Total: 1, UptimeSeconds: 3600}})
	}))
	defer srv.Close()

	rec := &models.DeploymentRecord{ServiceName: "svc", RouterURL: srv.URL, GPU: "A100", GPUCount: 1}
	report, err := Compute(context.Background(), srv.Client(), rec, false)
	require.NoError(t, err)
	assert.InDelta(t, RouterCostPerHour, report.ActualRouter, 0.0001)
}

func TestComputeHybrid_ZeroRequestsDetected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(healthResponse{RouteStats: routeStats{Total: 0}})
	}))
	defer srv.Close()

	rec := &models.DeploymentRecord{ServiceName: "svc", RouterURL: srv.URL}
	report, err := Compute(context.Background(), srv.Client(), rec, true)
	require.NoError(t, err)
	assert.True(t, report.ZeroRequest)
}

func TestGPUPrice_UnknownGPUFallsBackToDefault(t *testing.T) {
	rate := GPUPrice("made-up-gpu")
	assert.Equal(t, defaultGPURate, rate)
}

func TestServerlessPrice_IsCaseInsensitive(t *testing.T) {
	assert.Equal(t, ServerlessPrice("Modal"), ServerlessPrice("modal"))
}
