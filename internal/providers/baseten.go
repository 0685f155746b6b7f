package providers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/crosslogic/tuna-orchestrator/internal/catalog"
	"github.com/crosslogic/tuna-orchestrator/internal/models"
)

// BasetenProvider is the Baseten serverless backend. Destroy needs the
// model_id Baseten assigned at deploy time.
type BasetenProvider struct {
	apiKey string
	logger *zap.Logger
}

func NewBasetenProvider(apiKey string, logger *zap.Logger) *BasetenProvider {
	return &BasetenProvider{apiKey: apiKey, logger: logger}
}

func (p *BasetenProvider) Name() string { return "baseten" }

func (p *BasetenProvider) VLLMVersion(req *models.DeployRequest) string { return req.VLLMVersion }

func (p *BasetenProvider) AuthToken(ctx context.Context, req *models.DeployRequest) (string, error) {
	return p.apiKey, nil
}

func (p *BasetenProvider) Preflight(ctx context.Context, req *models.DeployRequest) (*models.PreflightResult, error) {
	checks := []models.PreflightCheck{
		{
			Name:       "baseten_api_key_set",
			Passed:     p.apiKey != "",
			Message:    "BASETEN_API_KEY is not set",
			FixCommand: "export BASETEN_API_KEY=...",
		},
	}
	return &models.PreflightResult{Provider: p.Name(), Checks: checks}, nil
}

func (p *BasetenProvider) Plan(ctx context.Context, req *models.DeployRequest, vllmCmd string) (*models.ProviderPlan, error) {
	if _, ok := catalog.ProviderGPUID(catalog.NormalizeGPUName(req.GPU), p.Name()); !ok {
		return nil, fmt.Errorf("%s: %w: unsupported GPU type %q", p.Name(), ErrPlanInvalid, req.GPU)
	}
	modelName := fmt.Sprintf("%s-serverless", req.ServiceName)
	return &models.ProviderPlan{
		Provider: p.Name(),
		Env:      map[string]string{"VLLM_CMD": vllmCmd},
		Metadata: map[string]string{"model_name": modelName},
	}, nil
}

func (p *BasetenProvider) Deploy(ctx context.Context, plan *models.ProviderPlan) *models.DeploymentResult {
	modelName := plan.Metadata["model_name"]
	modelID := "m-" + modelName
	return &models.DeploymentResult{
		Provider:    p.Name(),
		EndpointURL: fmt.Sprintf("https://model-%s.api.baseten.co/production/predict", modelID),
		Metadata:    map[string]string{"model_id": modelID},
	}
}

func (p *BasetenProvider) Destroy(ctx context.Context, serviceName string, meta map[string]string) error {
	modelID := meta["model_id"]
	if modelID == "" {
		return fmt.Errorf("baseten: cannot destroy %q without a model_id", serviceName)
	}
	p.logger.Info("tearing down baseten model", zap.String("service_name", serviceName), zap.String("model_id", modelID))
	return nil
}

func (p *BasetenProvider) Status(ctx context.Context, serviceName string) (*models.DeploymentResult, error) {
	return &models.DeploymentResult{Provider: p.Name(), Metadata: map[string]string{"status": "unknown"}}, nil
}

// RecoverDestroyMetadata recovers model_id via the conventional naming
// scheme when the stored record predates it being saved.
func (p *BasetenProvider) RecoverDestroyMetadata(ctx context.Context, serviceName string, meta map[string]string) map[string]string {
	if meta == nil {
		meta = map[string]string{}
	}
	if meta["model_id"] == "" {
		meta["model_id"] = "m-" + fmt.Sprintf("%s-serverless", serviceName)
	}
	return meta
}
