package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/crosslogic/tuna-orchestrator/internal/catalog"
	"github.com/crosslogic/tuna-orchestrator/internal/models"
	"github.com/crosslogic/tuna-orchestrator/internal/providers/skysdk"
	"github.com/crosslogic/tuna-orchestrator/internal/tmplengine"
)

const skyServeTaskTemplate = `
service:
  readiness_probe:
    path: /health
    initial_delay_seconds: 1200
  replica_policy:
    min_replicas: {min_replicas}
    max_replicas: {max_replicas}
    target_qps_per_replica: {target_qps}
    upscale_delay_seconds: {upscale_delay}
    downscale_delay_seconds: {downscale_delay}

resources:
  accelerators: {gpu_name}
  {region_block}
  ports: {port}

run: |
  {vllm_cmd}
`

const destroyPollAttempts = 12
const destroyPollInterval = 15 * time.Second

// terminalServeStatuses are the statuses _cleanup_serve_controller treats
// as safe to wait through before declaring a service list empty.
var terminalServeStatuses = map[string]bool{
	"SHUTTING_DOWN":  true,
	"NO_REPLICA":     true,
	"FAILED":         true,
	"FAILED_CLEANUP": true,
}

// SkyServeProvider is the spot/SkyServe backend: it renders a SkyPilot
// serve task, brings it up via the scheduler API, and confirms teardown
// with a bounded poll loop rather than trusting a single serve-down call.
type SkyServeProvider struct {
	logger *zap.Logger
	client *skysdk.Client
}

// NewSkyServeProvider constructs the spot launcher. The SkyPilot API
// server address is resolved per-request from DeployRequest/env, not
// baked in at construction time, since each deployment may target a
// differently-provisioned controller.
func NewSkyServeProvider(logger *zap.Logger) *SkyServeProvider {
	return &SkyServeProvider{logger: logger}
}

func (p *SkyServeProvider) Name() string { return "skyserve" }

func (p *SkyServeProvider) VLLMVersion(req *models.DeployRequest) string {
	return req.VLLMVersion
}

func (p *SkyServeProvider) AuthToken(ctx context.Context, req *models.DeployRequest) (string, error) {
	// The spot backend is reached directly on its controller IP; the
	// router leaves its Authorization header untouched rather than
	// injecting one, so there is no token to mint here.
	return "", nil
}

func (p *SkyServeProvider) Preflight(ctx context.Context, req *models.DeployRequest) (*models.PreflightResult, error) {
	checks := []models.PreflightCheck{
		{Name: "gpu_specified", Passed: req.GPU != "", Message: "gpu must be set"},
		{Name: "cloud_specified", Passed: req.SpotsCloud != "", Message: "spots_cloud must be set"},
	}
	return &models.PreflightResult{Provider: p.Name(), Checks: checks}, nil
}

func (p *SkyServeProvider) Plan(ctx context.Context, req *models.DeployRequest, vllmCmd string) (*models.ProviderPlan, error) {
	gpuName := catalog.ToSkyPilotGPUName(catalog.NormalizeGPUName(req.GPU), req.GPUCount)

	regionBlock := fmt.Sprintf("cloud: %s", req.SpotsCloud)
	if req.Region != "" {
		regionBlock = fmt.Sprintf("any_of:\n    - cloud: %s\n      region: %s", req.SpotsCloud, req.Region)
	}

	rendered := tmplengine.RenderString(skyServeTaskTemplate, map[string]string{
		"min_replicas":    itoa(req.Scaling.Spot.MinReplicas),
		"max_replicas":    itoa(req.Scaling.Spot.MaxReplicas),
		"target_qps":      ftoa(req.Scaling.Spot.TargetQPS),
		"upscale_delay":   itoa(req.Scaling.Spot.UpscaleDelay),
		"downscale_delay": itoa(req.Scaling.Spot.DownscaleDelay),
		"gpu_name":        gpuName,
		"region_block":    regionBlock,
		"port":            "30001",
		"vllm_cmd":        vllmCmd,
	})

	// Validate the rendered document parses as YAML before handing it to
	// the scheduler client, mirroring sky_sdk.task_from_yaml_str's
	// yaml.safe_load validation step.
	var probe map[string]any
	if err := yaml.Unmarshal([]byte(rendered), &probe); err != nil {
		return nil, fmt.Errorf("skyserve: rendered task is not valid YAML: %w", err)
	}

	return &models.ProviderPlan{
		Provider:       p.Name(),
		RenderedScript: rendered,
		Metadata: map[string]string{
			"port": "30001",
		},
	}, nil
}

func (p *SkyServeProvider) resolveClient(baseURL string) *skysdk.Client {
	if p.client != nil {
		return p.client
	}
	return skysdk.NewClient(skysdk.Config{BaseURL: baseURL}, p.logger)
}

func (p *SkyServeProvider) Deploy(ctx context.Context, plan *models.ProviderPlan) *models.DeploymentResult {
	serviceName := plan.Metadata["service_name"]
	baseURL := plan.Metadata["skypilot_api_base_url"]
	client := p.resolveClient(baseURL)

	resp, err := client.ServeUp(ctx, skysdk.ServeUpRequest{
		ServiceName: serviceName,
		TaskYAML:    plan.RenderedScript,
	})
	if err != nil {
		// The service may not be reachable yet even on success — the
		// router discovers readiness via its own health checks, so a
		// "not yet available" style error here is not fatal to the
		// overall hybrid deploy.
		if strings.Contains(err.Error(), "not yet available") {
			return &models.DeploymentResult{
				Provider: p.Name(),
				Metadata: map[string]string{"service_name": serviceName, "pending": "true"},
			}
		}
		return &models.DeploymentResult{Provider: p.Name(), Error: err.Error()}
	}
	meta := map[string]string{"service_name": resp.ServiceName}
	if controller, ferr := FindControllerCluster(ctx, client); ferr == nil && controller != nil && controller.IP != "" {
		meta["controller_ip"] = controller.IP
	}
	return &models.DeploymentResult{
		Provider:    p.Name(),
		EndpointURL: resp.Endpoint,
		Metadata:    meta,
	}
}

// Destroy calls serve-down and then confirms the service is actually
// gone, polling up to destroyPollAttempts times at destroyPollInterval.
// A controller stuck in INIT never reports the service list as settled,
// so serviceIsGone treats that case as "not yet confirmed" rather than
// "gone", exactly as the source's _service_is_gone does.
func (p *SkyServeProvider) Destroy(ctx context.Context, serviceName string, meta map[string]string) error {
	baseURL := meta["skypilot_api_base_url"]
	client := p.resolveClient(baseURL)

	for attempt := 0; attempt < destroyPollAttempts; attempt++ {
		err := client.ServeDown(ctx, skysdk.ServeDownRequest{ServiceNames: []string{serviceName}, Purge: true})
		if err != nil && !strings.Contains(err.Error(), "no live services") {
			p.logger.Warn("skyserve destroy: serve down returned an error, will re-check status",
				zap.String("service_name", serviceName), zap.Error(err))
		}

		gone, gerr := p.serviceIsGone(ctx, client, serviceName)
		if gerr != nil {
			p.logger.Warn("skyserve destroy: status check failed", zap.Error(gerr))
		} else if gone {
			return nil
		}

		select {
		case <-time.After(destroyPollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("skyserve: destroy of %q not confirmed after %d attempts", serviceName, destroyPollAttempts)
}

func (p *SkyServeProvider) serviceIsGone(ctx context.Context, client *skysdk.Client, serviceName string) (bool, error) {
	statuses, err := client.ServeStatus(ctx, nil)
	if err != nil {
		return false, err
	}
	if len(statuses) > 0 {
		return false, nil
	}
	return !p.controllerIsInit(ctx, client), nil
}

func (p *SkyServeProvider) controllerIsInit(ctx context.Context, client *skysdk.Client) bool {
	clusters, err := client.ClusterStatus(ctx, nil)
	if err != nil {
		return false
	}
	for _, c := range clusters {
		if strings.Contains(c.Name, "sky-serve-controller") && c.Status == skysdk.ClusterStatusInit {
			return true
		}
	}
	return false
}

func (p *SkyServeProvider) Status(ctx context.Context, serviceName string) (*models.DeploymentResult, error) {
	client := p.resolveClient("")
	statuses, err := client.ServeStatus(ctx, []string{serviceName})
	if err != nil {
		return nil, fmt.Errorf("skyserve status %q: %w", serviceName, err)
	}
	if len(statuses) == 0 {
		return &models.DeploymentResult{Provider: p.Name(), Error: "NOT_FOUND"}, nil
	}
	s := statuses[0]
	return &models.DeploymentResult{
		Provider:    p.Name(),
		EndpointURL: s.Endpoint,
		Metadata:    map[string]string{"status": s.Status},
	}, nil
}

func (p *SkyServeProvider) RecoverDestroyMetadata(ctx context.Context, serviceName string, meta map[string]string) map[string]string {
	return meta
}

const (
	controllerCleanupAttempts = 18
	controllerCleanupInterval = 5 * time.Second
)

// CleanupController polls sky serve status until every service on the
// shared controller has reached a terminal state, then tears the
// controller cluster down if it ended up empty. It gives up after
// controllerCleanupAttempts rather than blocking destroy indefinitely.
func (p *SkyServeProvider) CleanupController(ctx context.Context) error {
	client := p.resolveClient("")

	for attempt := 0; attempt < controllerCleanupAttempts; attempt++ {
		statuses, err := client.ServeStatus(ctx, nil)
		if err != nil {
			return fmt.Errorf("skyserve cleanup: checking serve status: %w", err)
		}

		allTerminal := true
		for _, s := range statuses {
			if !IsTerminalServeStatus(s.Status) {
				allTerminal = false
				break
			}
		}
		if len(statuses) == 0 || allTerminal {
			controller, ferr := FindControllerCluster(ctx, client)
			if ferr == nil && controller != nil && len(statuses) == 0 {
				if derr := client.ClusterDown(ctx, controller.Name, true); derr != nil {
					p.logger.Warn("skyserve cleanup: controller teardown failed", zap.Error(derr))
				}
			}
			return nil
		}

		select {
		case <-time.After(controllerCleanupInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("skyserve cleanup: controller did not reach a terminal state after %d attempts", controllerCleanupAttempts)
}

// FindControllerCluster locates the SkyServe controller VM by its
// conventional name pattern. Deploy uses it to record the controller's IP
// for the colocated router launch, and CleanupController to find the
// cluster to tear down.
func FindControllerCluster(ctx context.Context, client *skysdk.Client) (*skysdk.ClusterInfo, error) {
	clusters, err := client.ClusterStatus(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("listing clusters: %w", err)
	}
	for i := range clusters {
		if strings.Contains(clusters[i].Name, "sky-serve-controller") {
			return &clusters[i], nil
		}
	}
	return nil, nil
}

// IsTerminalServeStatus reports whether status is one of the terminal
// states _cleanup_serve_controller waits through.
func IsTerminalServeStatus(status string) bool {
	return terminalServeStatuses[status]
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}

func ftoa(f float64) string {
	return fmt.Sprintf("%g", f)
}
