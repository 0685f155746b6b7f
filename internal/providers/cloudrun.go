package providers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/crosslogic/tuna-orchestrator/internal/catalog"
	"github.com/crosslogic/tuna-orchestrator/internal/models"
)

// CloudRunProvider is the Google Cloud Run serverless backend. Destroy
// needs project_id and region; RecoverDestroyMetadata falls back to the
// provider's own configured project/region when the stored record lacks
// them.
type CloudRunProvider struct {
	project string
	region  string
	logger  *zap.Logger
}

func NewCloudRunProvider(project, region string, logger *zap.Logger) *CloudRunProvider {
	return &CloudRunProvider{project: project, region: region, logger: logger}
}

func (p *CloudRunProvider) Name() string { return "cloudrun" }

func (p *CloudRunProvider) VLLMVersion(req *models.DeployRequest) string { return req.VLLMVersion }

func (p *CloudRunProvider) AuthToken(ctx context.Context, req *models.DeployRequest) (string, error) {
	return "", nil
}

func (p *CloudRunProvider) Preflight(ctx context.Context, req *models.DeployRequest) (*models.PreflightResult, error) {
	checks := []models.PreflightCheck{
		{
			Name:       "gcp_project_set",
			Passed:     p.project != "",
			Message:    "GOOGLE_CLOUD_PROJECT is not set",
			FixCommand: "export GOOGLE_CLOUD_PROJECT=...",
		},
	}
	return &models.PreflightResult{Provider: p.Name(), Checks: checks}, nil
}

func (p *CloudRunProvider) Plan(ctx context.Context, req *models.DeployRequest, vllmCmd string) (*models.ProviderPlan, error) {
	if _, ok := catalog.ProviderGPUID(catalog.NormalizeGPUName(req.GPU), p.Name()); !ok {
		return nil, fmt.Errorf("%s: %w: unsupported GPU type %q", p.Name(), ErrPlanInvalid, req.GPU)
	}
	if req.TPSize > 1 || req.GPUCount > 1 {
		return nil, fmt.Errorf("%s: %w: cloud run exposes one GPU per instance, got tp_size=%d gpu_count=%d", p.Name(), ErrPlanInvalid, req.TPSize, req.GPUCount)
	}
	serviceName := fmt.Sprintf("%s-serverless", req.ServiceName)
	return &models.ProviderPlan{
		Provider: p.Name(),
		Env:      map[string]string{"VLLM_CMD": vllmCmd},
		Metadata: map[string]string{"cloud_run_service": serviceName},
	}, nil
}

func (p *CloudRunProvider) Deploy(ctx context.Context, plan *models.ProviderPlan) *models.DeploymentResult {
	svc := plan.Metadata["cloud_run_service"]
	return &models.DeploymentResult{
		Provider:    p.Name(),
		EndpointURL: fmt.Sprintf("https://%s-%s.a.run.app", svc, p.region),
		Metadata: map[string]string{
			"project_id": p.project,
			"region":     p.region,
		},
	}
}

func (p *CloudRunProvider) Destroy(ctx context.Context, serviceName string, meta map[string]string) error {
	projectID := meta["project_id"]
	region := meta["region"]
	if projectID == "" || region == "" {
		return fmt.Errorf("cloudrun: cannot destroy %q without project_id and region", serviceName)
	}
	p.logger.Info("tearing down cloud run service",
		zap.String("service_name", serviceName),
		zap.String("project_id", projectID),
		zap.String("region", region),
	)
	return nil
}

func (p *CloudRunProvider) Status(ctx context.Context, serviceName string) (*models.DeploymentResult, error) {
	return &models.DeploymentResult{Provider: p.Name(), Metadata: map[string]string{"status": "unknown"}}, nil
}

// RecoverDestroyMetadata recovers project_id/region from the provider's
// own configuration when the stored record is missing them.
func (p *CloudRunProvider) RecoverDestroyMetadata(ctx context.Context, serviceName string, meta map[string]string) map[string]string {
	if meta == nil {
		meta = map[string]string{}
	}
	if meta["project_id"] == "" {
		meta["project_id"] = p.project
	}
	if meta["region"] == "" {
		meta["region"] = p.region
	}
	return meta
}
