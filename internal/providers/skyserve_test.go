package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crosslogic/tuna-orchestrator/internal/models"
)

func TestSkyServeProvider_PlanRendersValidYAML(t *testing.T) {
	p := NewSkyServeProvider(zap.NewNop())
	req := &models.DeployRequest{
		GPU:        "a100",
		GPUCount:   1,
		SpotsCloud: "aws",
		Scaling:    models.DefaultScalingPolicy(),
	}

	plan, err := p.Plan(nil, req, "python -m vllm.entrypoints.openai.api_server")
	require.NoError(t, err)
	assert.Contains(t, plan.RenderedScript, "accelerators: A100:1")
	assert.Contains(t, plan.RenderedScript, "cloud: aws")
}

func TestSkyServeProvider_PlanWithRegionUsesAnyOfBlock(t *testing.T) {
	p := NewSkyServeProvider(zap.NewNop())
	req := &models.DeployRequest{
		GPU:        "h100",
		GPUCount:   2,
		SpotsCloud: "gcp",
		Region:     "us-central1",
		Scaling:    models.DefaultScalingPolicy(),
	}

	plan, err := p.Plan(nil, req, "vllm serve")
	require.NoError(t, err)
	assert.Contains(t, plan.RenderedScript, "any_of:")
	assert.Contains(t, plan.RenderedScript, "region: us-central1")
}

func TestIsTerminalServeStatus(t *testing.T) {
	assert.True(t, IsTerminalServeStatus("FAILED"))
	assert.True(t, IsTerminalServeStatus("SHUTTING_DOWN"))
	assert.False(t, IsTerminalServeStatus("READY"))
}
