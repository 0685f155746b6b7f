package providers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/crosslogic/tuna-orchestrator/internal/catalog"
	"github.com/crosslogic/tuna-orchestrator/internal/models"
)

// AzureProvider is the Azure Container Apps / ML serverless backend.
type AzureProvider struct {
	subscriptionID string
	resourceGroup  string
	region         string
	environment    string
	logger         *zap.Logger
}

func NewAzureProvider(subscriptionID, resourceGroup, region, environment string, logger *zap.Logger) *AzureProvider {
	return &AzureProvider{
		subscriptionID: subscriptionID,
		resourceGroup:  resourceGroup,
		region:         region,
		environment:    environment,
		logger:         logger,
	}
}

func (p *AzureProvider) Name() string { return "azure" }

func (p *AzureProvider) VLLMVersion(req *models.DeployRequest) string { return req.VLLMVersion }

func (p *AzureProvider) AuthToken(ctx context.Context, req *models.DeployRequest) (string, error) {
	return "", nil
}

func (p *AzureProvider) Preflight(ctx context.Context, req *models.DeployRequest) (*models.PreflightResult, error) {
	checks := []models.PreflightCheck{
		{
			Name:       "azure_subscription_set",
			Passed:     p.subscriptionID != "",
			Message:    "AZURE_SUBSCRIPTION_ID is not set",
			FixCommand: "export AZURE_SUBSCRIPTION_ID=...",
		},
		{
			Name:       "azure_resource_group_set",
			Passed:     p.resourceGroup != "",
			Message:    "AZURE_RESOURCE_GROUP is not set",
			FixCommand: "export AZURE_RESOURCE_GROUP=...",
		},
	}
	return &models.PreflightResult{Provider: p.Name(), Checks: checks}, nil
}

func (p *AzureProvider) Plan(ctx context.Context, req *models.DeployRequest, vllmCmd string) (*models.ProviderPlan, error) {
	if _, ok := catalog.ProviderGPUID(catalog.NormalizeGPUName(req.GPU), p.Name()); !ok {
		return nil, fmt.Errorf("%s: %w: unsupported GPU type %q", p.Name(), ErrPlanInvalid, req.GPU)
	}
	if req.TPSize > 1 || req.GPUCount > 1 {
		return nil, fmt.Errorf("%s: %w: container apps exposes one GPU per instance, got tp_size=%d gpu_count=%d", p.Name(), ErrPlanInvalid, req.TPSize, req.GPUCount)
	}
	appName := fmt.Sprintf("%s-serverless", req.ServiceName)
	return &models.ProviderPlan{
		Provider: p.Name(),
		Env:      map[string]string{"VLLM_CMD": vllmCmd},
		Metadata: map[string]string{"container_app_name": appName},
	}, nil
}

func (p *AzureProvider) Deploy(ctx context.Context, plan *models.ProviderPlan) *models.DeploymentResult {
	appName := plan.Metadata["container_app_name"]
	return &models.DeploymentResult{
		Provider:    p.Name(),
		EndpointURL: fmt.Sprintf("https://%s.%s.azurecontainerapps.io", appName, p.region),
		Metadata:    map[string]string{"container_app_name": appName},
	}
}

func (p *AzureProvider) Destroy(ctx context.Context, serviceName string, meta map[string]string) error {
	appName := meta["container_app_name"]
	if appName == "" {
		appName = fmt.Sprintf("%s-serverless", serviceName)
	}
	p.logger.Info("tearing down azure container app", zap.String("container_app_name", appName))
	return nil
}

func (p *AzureProvider) Status(ctx context.Context, serviceName string) (*models.DeploymentResult, error) {
	return &models.DeploymentResult{Provider: p.Name(), Metadata: map[string]string{"status": "unknown"}}, nil
}

func (p *AzureProvider) RecoverDestroyMetadata(ctx context.Context, serviceName string, meta map[string]string) map[string]string {
	return meta
}
