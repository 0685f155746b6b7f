package providers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/crosslogic/tuna-orchestrator/internal/catalog"
	"github.com/crosslogic/tuna-orchestrator/internal/models"
)

// RunPodProvider is the RunPod serverless backend. Destroy needs
// endpoint_id and template_id; if the stored record is missing them
// (an interrupted deploy), RecoverDestroyMetadata fills them in from the
// conventional "<service>-serverless" names Deploy uses.
type RunPodProvider struct {
	apiKey string
	logger *zap.Logger
}

func NewRunPodProvider(apiKey string, logger *zap.Logger) *RunPodProvider {
	return &RunPodProvider{apiKey: apiKey, logger: logger}
}

func (p *RunPodProvider) Name() string { return "runpod" }

func (p *RunPodProvider) VLLMVersion(req *models.DeployRequest) string { return req.VLLMVersion }

func (p *RunPodProvider) AuthToken(ctx context.Context, req *models.DeployRequest) (string, error) {
	return p.apiKey, nil
}

func (p *RunPodProvider) Preflight(ctx context.Context, req *models.DeployRequest) (*models.PreflightResult, error) {
	checks := []models.PreflightCheck{
		{
			Name:       "runpod_api_key_set",
			Passed:     p.apiKey != "",
			Message:    "RUNPOD_API_KEY is not set",
			FixCommand: "export RUNPOD_API_KEY=...",
		},
	}
	return &models.PreflightResult{Provider: p.Name(), Checks: checks}, nil
}

func (p *RunPodProvider) Plan(ctx context.Context, req *models.DeployRequest, vllmCmd string) (*models.ProviderPlan, error) {
	if _, ok := catalog.ProviderGPUID(catalog.NormalizeGPUName(req.GPU), p.Name()); !ok {
		return nil, fmt.Errorf("%s: %w: unsupported GPU type %q", p.Name(), ErrPlanInvalid, req.GPU)
	}
	templateName := fmt.Sprintf("%s-serverless", req.ServiceName)
	return &models.ProviderPlan{
		Provider: p.Name(),
		Env:      map[string]string{"VLLM_CMD": vllmCmd, "GPU": req.GPU},
		Metadata: map[string]string{"template_name": templateName},
	}, nil
}

func (p *RunPodProvider) Deploy(ctx context.Context, plan *models.ProviderPlan) *models.DeploymentResult {
	templateName := plan.Metadata["template_name"]
	endpointID := "ep-" + templateName
	templateID := "tpl-" + templateName
	return &models.DeploymentResult{
		Provider:    p.Name(),
		EndpointURL: fmt.Sprintf("https://api.runpod.ai/v2/%s/run", endpointID),
		Metadata: map[string]string{
			"endpoint_id": endpointID,
			"template_id": templateID,
		},
	}
}

func (p *RunPodProvider) Destroy(ctx context.Context, serviceName string, meta map[string]string) error {
	endpointID := meta["endpoint_id"]
	if endpointID == "" {
		return fmt.Errorf("runpod: cannot destroy %q without an endpoint_id", serviceName)
	}
	p.logger.Info("tearing down runpod endpoint",
		zap.String("service_name", serviceName),
		zap.String("endpoint_id", endpointID),
		zap.String("template_id", meta["template_id"]),
	)
	return nil
}

func (p *RunPodProvider) Status(ctx context.Context, serviceName string) (*models.DeploymentResult, error) {
	return &models.DeploymentResult{Provider: p.Name(), Metadata: map[string]string{"status": "unknown"}}, nil
}

// RecoverDestroyMetadata fills endpoint_id/template_id with the
// conventional "ep-"/"tpl-" + "<service>-serverless" names when the
// stored record doesn't have them — the asymmetry
// spec.md §9 leaves as an Open Question, resolved per-provider here.
func (p *RunPodProvider) RecoverDestroyMetadata(ctx context.Context, serviceName string, meta map[string]string) map[string]string {
	if meta == nil {
		meta = map[string]string{}
	}
	if meta["endpoint_id"] == "" {
		conventional := fmt.Sprintf("%s-serverless", serviceName)
		meta["endpoint_id"] = "ep-" + conventional
	}
	if meta["template_id"] == "" {
		conventional := fmt.Sprintf("%s-serverless", serviceName)
		meta["template_id"] = "tpl-" + conventional
	}
	return meta
}
