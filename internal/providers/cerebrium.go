package providers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/crosslogic/tuna-orchestrator/internal/catalog"
	"github.com/crosslogic/tuna-orchestrator/internal/models"
)

// CerebriumProvider is the Cerebrium serverless backend.
type CerebriumProvider struct {
	apiKey string
	logger *zap.Logger
}

func NewCerebriumProvider(apiKey string, logger *zap.Logger) *CerebriumProvider {
	return &CerebriumProvider{apiKey: apiKey, logger: logger}
}

func (p *CerebriumProvider) Name() string { return "cerebrium" }

func (p *CerebriumProvider) VLLMVersion(req *models.DeployRequest) string { return req.VLLMVersion }

func (p *CerebriumProvider) AuthToken(ctx context.Context, req *models.DeployRequest) (string, error) {
	return p.apiKey, nil
}

func (p *CerebriumProvider) Preflight(ctx context.Context, req *models.DeployRequest) (*models.PreflightResult, error) {
	checks := []models.PreflightCheck{
		{
			Name:       "cerebrium_api_key_set",
			Passed:     p.apiKey != "",
			Message:    "CEREBRIUM_API_KEY is not set",
			FixCommand: "export CEREBRIUM_API_KEY=...",
		},
	}
	return &models.PreflightResult{Provider: p.Name(), Checks: checks}, nil
}

func (p *CerebriumProvider) Plan(ctx context.Context, req *models.DeployRequest, vllmCmd string) (*models.ProviderPlan, error) {
	if _, ok := catalog.ProviderGPUID(catalog.NormalizeGPUName(req.GPU), p.Name()); !ok {
		return nil, fmt.Errorf("%s: %w: unsupported GPU type %q", p.Name(), ErrPlanInvalid, req.GPU)
	}
	appName := fmt.Sprintf("%s-serverless", req.ServiceName)
	return &models.ProviderPlan{
		Provider: p.Name(),
		Env:      map[string]string{"VLLM_CMD": vllmCmd},
		Metadata: map[string]string{"app_name": appName},
	}, nil
}

func (p *CerebriumProvider) Deploy(ctx context.Context, plan *models.ProviderPlan) *models.DeploymentResult {
	appName := plan.Metadata["app_name"]
	return &models.DeploymentResult{
		Provider:    p.Name(),
		EndpointURL: fmt.Sprintf("https://api.cortex.cerebrium.ai/v4/%s/predict", appName),
		Metadata:    map[string]string{"app_name": appName},
	}
}

func (p *CerebriumProvider) Destroy(ctx context.Context, serviceName string, meta map[string]string) error {
	appName := meta["app_name"]
	if appName == "" {
		appName = fmt.Sprintf("%s-serverless", serviceName)
	}
	p.logger.Info("tearing down cerebrium app", zap.String("app_name", appName))
	return nil
}

func (p *CerebriumProvider) Status(ctx context.Context, serviceName string) (*models.DeploymentResult, error) {
	return &models.DeploymentResult{Provider: p.Name(), Metadata: map[string]string{"status": "unknown"}}, nil
}

func (p *CerebriumProvider) RecoverDestroyMetadata(ctx context.Context, serviceName string, meta map[string]string) map[string]string {
	return meta
}
