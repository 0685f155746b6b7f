package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crosslogic/tuna-orchestrator/internal/config"
	"github.com/crosslogic/tuna-orchestrator/internal/lock"
	"github.com/crosslogic/tuna-orchestrator/internal/models"
	"github.com/crosslogic/tuna-orchestrator/internal/providers"
	"github.com/crosslogic/tuna-orchestrator/internal/state"
	"github.com/crosslogic/tuna-orchestrator/pkg/events"
)

type fakeRouterLauncher struct {
	launchCalls int
	pushCalls   int
}

func (f *fakeRouterLauncher) Launch(ctx context.Context, req *models.DeployRequest, controllerIP string) (*models.DeploymentResult, error) {
	f.launchCalls++
	return &models.DeploymentResult{Provider: "router", EndpointURL: "http://127.0.0.1:9999"}, nil
}

func (f *fakeRouterLauncher) PushConfig(ctx context.Context, routerURL string, cfg RouterPushConfig) error {
	f.pushCalls++
	return nil
}

func (f *fakeRouterLauncher) Teardown(ctx context.Context, rec *models.DeploymentRecord) error {
	return nil
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *fakeRouterLauncher) {
	t.Helper()
	store, err := state.Open(t.TempDir())
	require.NoError(t, err)

	locker, err := lock.NewLocker("", 0, zap.NewNop())
	require.NoError(t, err)

	reg := providers.NewRegistry(config.ProviderCredentials{RunPodAPIKey: "test-key"}, zap.NewNop())
	bus := events.NewBus(zap.NewNop())
	fakeRouter := &fakeRouterLauncher{}

	orch := New(reg, store, locker, bus, fakeRouter, zap.NewNop())
	// Shrunk so LaunchServerlessOnly's advisory warmup (which probes a
	// fabricated, unreachable health URL in these tests) gives up fast
	// instead of polling for the production 300s timeout.
	orch.WarmupInterval = time.Millisecond
	orch.WarmupTimeout = 10 * time.Millisecond
	return orch, fakeRouter
}

func TestBuildVLLMCmd_IncludesModelAndPort(t *testing.T) {
	req := &models.DeployRequest{ModelName: "meta-llama/Llama-3-8b", TPSize: 2, MaxModelLen: 8192}
	cmd := BuildVLLMCmd(req)
	assert.Contains(t, cmd, "meta-llama/Llama-3-8b")
	assert.Contains(t, cmd, "--tensor-parallel-size 2")
	assert.Contains(t, cmd, "--port 8000")
}

func TestBuildVLLMCmd_AddsEnforceEagerOnlyForFastBoot(t *testing.T) {
	fastBoot := &models.DeployRequest{ModelName: "meta-llama/Llama-3-8b", TPSize: 1, MaxModelLen: 4096, ColdStartMode: "fast_boot"}
	assert.Contains(t, BuildVLLMCmd(fastBoot), "--enforce-eager")

	normal := &models.DeployRequest{ModelName: "meta-llama/Llama-3-8b", TPSize: 1, MaxModelLen: 4096, ColdStartMode: "normal"}
	assert.NotContains(t, BuildVLLMCmd(normal), "--enforce-eager")
}

func TestLaunchHybrid_PreflightFailureShortCircuitsBeforeSpotOrRouter(t *testing.T) {
	orch, fakeRouter := newTestOrchestrator(t)
	ctx := context.Background()

	req := &models.DeployRequest{
		ServiceName:        "tuna-preflight-fail",
		ServerlessProvider: "azure", // azure preflight fails without subscription/resource group
		SpotsCloud:         "aws",
		Scaling:            models.DefaultScalingPolicy(),
	}

	result, err := orch.LaunchHybrid(ctx, req, false)
	require.NoError(t, err)
	require.NotNil(t, result.Serverless)
	assert.Contains(t, result.Serverless.Error, "preflight failed")
	assert.Nil(t, result.Spot)
	assert.Nil(t, result.Router)
	assert.Equal(t, 0, fakeRouter.launchCalls)
}

func TestLaunchServerlessOnly_SetsRouterURLToEndpoint(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	ctx := context.Background()

	req := &models.DeployRequest{
		ServiceName:        "tuna-solo",
		ServerlessProvider: "modal",
		Scaling:            models.DefaultScalingPolicy(),
	}

	result, err := orch.LaunchServerlessOnly(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, result.Serverless)
	assert.True(t, result.Serverless.OK())
	assert.Equal(t, result.Serverless.EndpointURL, result.RouterURL)
}
