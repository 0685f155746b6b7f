package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crosslogic/tuna-orchestrator/internal/models"
)

func TestAzureProvider_PlanRejectsUnknownGPU(t *testing.T) {
	p := NewAzureProvider("sub", "rg", "eastus", "env", zap.NewNop())
	req := &models.DeployRequest{ServiceName: "tuna-1", GPU: "RTX4090", GPUCount: 1, TPSize: 1}

	_, err := p.Plan(nil, req, "vllm serve")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPlanInvalid)
}

func TestAzureProvider_PlanRejectsMultiGPU(t *testing.T) {
	p := NewAzureProvider("sub", "rg", "eastus", "env", zap.NewNop())
	req := &models.DeployRequest{ServiceName: "tuna-1", GPU: "T4", GPUCount: 2, TPSize: 1}

	_, err := p.Plan(nil, req, "vllm serve")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPlanInvalid)
}

func TestAzureProvider_PlanAcceptsSupportedSingleGPU(t *testing.T) {
	p := NewAzureProvider("sub", "rg", "eastus", "env", zap.NewNop())
	req := &models.DeployRequest{ServiceName: "tuna-1", GPU: "t4", GPUCount: 1, TPSize: 1}

	plan, err := p.Plan(nil, req, "vllm serve")
	require.NoError(t, err)
	assert.Equal(t, "azure", plan.Provider)
}

func TestCloudRunProvider_PlanRejectsTPSizeAboveOne(t *testing.T) {
	p := NewCloudRunProvider("proj", "us-central1", zap.NewNop())
	req := &models.DeployRequest{ServiceName: "tuna-1", GPU: "L4", GPUCount: 1, TPSize: 2}

	_, err := p.Plan(nil, req, "vllm serve")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPlanInvalid)
}

func TestCloudRunProvider_PlanRejectsUnknownGPU(t *testing.T) {
	p := NewCloudRunProvider("proj", "us-central1", zap.NewNop())
	req := &models.DeployRequest{ServiceName: "tuna-1", GPU: "H100", GPUCount: 1, TPSize: 1}

	_, err := p.Plan(nil, req, "vllm serve")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPlanInvalid)
}

func TestBasetenProvider_PlanRejectsUnknownGPUButAllowsMultiGPU(t *testing.T) {
	p := NewBasetenProvider("key", zap.NewNop())

	_, err := p.Plan(nil, &models.DeployRequest{ServiceName: "tuna-1", GPU: "RTX4090"}, "vllm serve")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPlanInvalid)

	plan, err := p.Plan(nil, &models.DeployRequest{ServiceName: "tuna-1", GPU: "H100", GPUCount: 4, TPSize: 4}, "vllm serve")
	require.NoError(t, err)
	assert.Equal(t, "baseten", plan.Provider)
}

func TestCerebriumProvider_PlanRejectsUnknownGPU(t *testing.T) {
	p := NewCerebriumProvider("key", zap.NewNop())

	_, err := p.Plan(nil, &models.DeployRequest{ServiceName: "tuna-1", GPU: "RTX4090"}, "vllm serve")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPlanInvalid)

	plan, err := p.Plan(nil, &models.DeployRequest{ServiceName: "tuna-1", GPU: "A10"}, "vllm serve")
	require.NoError(t, err)
	assert.Equal(t, "cerebrium", plan.Provider)
}

func TestRunPodProvider_PlanRejectsUnknownGPU(t *testing.T) {
	p := NewRunPodProvider("key", zap.NewNop())

	_, err := p.Plan(nil, &models.DeployRequest{ServiceName: "tuna-1", GPU: "T4"}, "vllm serve")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPlanInvalid)

	plan, err := p.Plan(nil, &models.DeployRequest{ServiceName: "tuna-1", GPU: "H100", GPUCount: 8, TPSize: 8}, "vllm serve")
	require.NoError(t, err)
	assert.Equal(t, "runpod", plan.Provider)
}
