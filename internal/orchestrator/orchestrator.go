// Package orchestrator implements the hybrid launch/destroy/status
// workflow: preflight-gated parallel provisioning across the router,
// serverless, and spot backends, and the durable record-keeping that lets
// a later destroy tear down a deployment it didn't itself launch.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/crosslogic/tuna-orchestrator/internal/lock"
	"github.com/crosslogic/tuna-orchestrator/internal/models"
	"github.com/crosslogic/tuna-orchestrator/internal/providers"
	"github.com/crosslogic/tuna-orchestrator/internal/state"
	"github.com/crosslogic/tuna-orchestrator/pkg/events"
)

// Timeouts from spec.md §4.5.1.
const (
	RouterLaunchTimeout     = 900 * time.Second
	ServerlessLaunchTimeout = 600 * time.Second
	SpotLaunchTimeout       = 900 * time.Second

	urlPushMaxAttempts = 5
	urlPushMinDelay    = 3 * time.Second

	warmupInterval = 5 * time.Second
	warmupTimeout  = 300 * time.Second
)

// Orchestrator drives launch_hybrid, launch_serverless_only,
// destroy_hybrid, and status_hybrid.
type Orchestrator struct {
	registry *providers.Registry
	store    *state.Store
	locker   lock.Locker
	bus      *events.Bus
	logger   *zap.Logger

	// RouterLauncher performs the SSH-based colocated/separate-VM router
	// launch. Separated out so it can be swapped in tests.
	RouterLauncher RouterLauncher

	// WarmupInterval and WarmupTimeout drive the advisory serverless
	// warmup poll in LaunchServerlessOnly. Exported so tests can shrink
	// them instead of waiting out the production timeout.
	WarmupInterval time.Duration
	WarmupTimeout  time.Duration
}

// RouterLauncher launches and tears down the router process for a hybrid
// deployment. The production implementation (ssh_launch.go) does this
// over SSH against either the SkyServe controller VM or a dedicated
// router VM; tests substitute a fake.
type RouterLauncher interface {
	Launch(ctx context.Context, req *models.DeployRequest, spotControllerIP string) (*models.DeploymentResult, error)
	PushConfig(ctx context.Context, routerURL string, cfg RouterPushConfig) error
	Teardown(ctx context.Context, rec *models.DeploymentRecord) error
}

// RouterPushConfig is what gets POSTed to /router/config after the
// serverless and spot legs are up.
type RouterPushConfig struct {
	ServerlessURL       string
	ServerlessAuthToken string
	SpotURL             string
}

// New constructs an Orchestrator.
func New(registry *providers.Registry, store *state.Store, locker lock.Locker, bus *events.Bus, routerLauncher RouterLauncher, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		registry:       registry,
		store:          store,
		locker:         locker,
		bus:            bus,
		RouterLauncher: routerLauncher,
		logger:         logger,
		WarmupInterval: warmupInterval,
		WarmupTimeout:  warmupTimeout,
	}
}

// BuildVLLMCmd renders the vLLM server command line from a request —
// the one piece of script-rendering the orchestrator owns directly,
// since every provider's Plan step needs the same command embedded.
// --enforce-eager is added iff cold_start_mode is fast_boot, trading
// CUDA graph capture time for a faster cold start (spec.md §4.5.1 step 1).
func BuildVLLMCmd(req *models.DeployRequest) string {
	cmd := fmt.Sprintf(
		"python -m vllm.entrypoints.openai.api_server --model %s --tensor-parallel-size %d --max-model-len %d --port 8000",
		req.ModelName, req.TPSize, req.MaxModelLen,
	)
	if req.ColdStartMode == "fast_boot" {
		cmd += " --enforce-eager"
	}
	return cmd
}

// LaunchHybrid runs the full launch: serverless preflight gates
// everything else, then serverless+spot launch in parallel (plus the
// router, in legacy separate-VM mode), and finally the router is wired
// to point at both.
func (o *Orchestrator) LaunchHybrid(ctx context.Context, req *models.DeployRequest, separateRouterVM bool) (*models.HybridDeployment, error) {
	release, err := o.locker.TryAcquire(ctx, req.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: acquiring launch lock for %q: %w", req.ServiceName, err)
	}
	defer release(ctx)

	o.publish(ctx, events.EventLaunchStarted, req.ServiceName, nil)

	serverlessProvider, err := o.registry.Get(req.ServerlessProvider)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: resolving serverless provider: %w", err)
	}

	// Preflight is the deploy gate: it runs before spot or router are
	// touched, and a failure here returns immediately with a fabricated
	// "<service>-serverless" metadata service name rather than a nil
	// result, matching the source's early-return behavior.
	preflight, err := serverlessProvider.Preflight(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: serverless preflight: %w", err)
	}
	if !preflight.OK() {
		result := &models.HybridDeployment{
			Serverless: &models.DeploymentResult{
				Provider: serverlessProvider.Name(),
				Error:    preflightFailureError(preflight).Error(),
				Metadata: map[string]string{"service_name": req.ServiceName + "-serverless"},
			},
		}
		o.persist(ctx, req, result)
		o.publish(ctx, events.EventPreflightFailed, req.ServiceName, map[string]any{"provider": serverlessProvider.Name()})
		return result, nil
	}

	vllmCmd := BuildVLLMCmd(req)
	spotProvider, err := o.registry.Get("skyserve")
	if err != nil {
		return nil, fmt.Errorf("orchestrator: resolving spot provider: %w", err)
	}

	var serverlessResult, spotResult *models.DeploymentResult
	var routerResult *models.DeploymentResult

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		launchCtx, cancel := context.WithTimeout(gctx, ServerlessLaunchTimeout)
		defer cancel()
		serverlessResult = o.deployOne(launchCtx, serverlessProvider, req, vllmCmd)
		return nil
	})
	group.Go(func() error {
		launchCtx, cancel := context.WithTimeout(gctx, SpotLaunchTimeout)
		defer cancel()
		spotResult = o.deployOne(launchCtx, spotProvider, req, vllmCmd)
		return nil
	})

	if separateRouterVM {
		group.Go(func() error {
			launchCtx, cancel := context.WithTimeout(gctx, RouterLaunchTimeout)
			defer cancel()
			r, err := o.RouterLauncher.Launch(launchCtx, req, "")
			if err != nil {
				routerResult = &models.DeploymentResult{Provider: "router", Error: err.Error()}
				return nil
			}
			routerResult = r
			return nil
		})
	}

	// errgroup never returns an error here since each goroutine swallows
	// its own into a DeploymentResult — deploy failures are data, not
	// control flow, matching spec.md §7's "providers never raise to the
	// orchestrator" rule.
	_ = group.Wait()

	if !separateRouterVM {
		// Colocated mode: the router rides on the spot controller VM,
		// whose IP the spot leg records as controller_ip. The fallback
		// calls Launch with no target IP, which SSHRouterLauncher
		// rejects, so a failed colocated launch leaves the router failed.
		controllerIP := spotResult.Metadata["controller_ip"]
		launchCtx, cancel := context.WithTimeout(ctx, RouterLaunchTimeout)
		r, err := o.RouterLauncher.Launch(launchCtx, req, controllerIP)
		cancel()
		if err != nil {
			o.logger.Warn("colocated router launch failed, falling back to separate VM",
				zap.String("service_name", req.ServiceName), zap.Error(err))
			launchCtx, cancel := context.WithTimeout(ctx, RouterLaunchTimeout)
			r, err = o.RouterLauncher.Launch(launchCtx, req, "")
			cancel()
		}
		if err != nil {
			routerResult = &models.DeploymentResult{Provider: "router", Error: err.Error()}
		} else {
			routerResult = r
		}
	}

	result := &models.HybridDeployment{
		Serverless: serverlessResult,
		Spot:       spotResult,
		Router:     routerResult,
	}
	if routerResult != nil && routerResult.OK() {
		result.RouterURL = routerResult.EndpointURL
		o.pushRouterConfig(ctx, req, serverlessProvider, serverlessResult, spotResult, result.RouterURL)
	}

	o.persist(ctx, req, result)

	if result.Serverless.OK() && (result.Spot == nil || result.Spot.OK()) {
		o.publish(ctx, events.EventLaunchCompleted, req.ServiceName, nil)
	} else {
		o.publish(ctx, events.EventLaunchFailed, req.ServiceName, nil)
	}
	return result, nil
}

func (o *Orchestrator) pushRouterConfig(ctx context.Context, req *models.DeployRequest, serverlessProvider providers.Provider, serverlessResult, spotResult *models.DeploymentResult, routerURL string) {
	token, err := serverlessProvider.AuthToken(ctx, req)
	if err != nil {
		o.logger.Warn("failed to mint serverless auth token for router push", zap.Error(err))
	}
	cfg := RouterPushConfig{
		ServerlessURL:       serverlessResult.EndpointURL,
		ServerlessAuthToken: token,
	}
	if spotResult != nil {
		cfg.SpotURL = spotResult.EndpointURL
	}

	var lastErr error
	for attempt := 0; attempt < urlPushMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(urlPushMinDelay):
			case <-ctx.Done():
				return
			}
		}
		if err := o.RouterLauncher.PushConfig(ctx, routerURL, cfg); err != nil {
			lastErr = err
			continue
		}
		return
	}
	// Non-fatal: the router also self-probes for readiness, so a failed
	// config push just delays discovery rather than breaking the deploy.
	o.logger.Warn("router config push exhausted retries; router will self-discover via probes",
		zap.String("service_name", req.ServiceName), zap.Error(lastErr))
}

func firstFailureMessage(p *models.PreflightResult) string {
	failed := p.Failed()
	if len(failed) == 0 {
		return "unknown failure"
	}
	return failed[0].Message
}

// preflightFailureError wraps providers.ErrPreflightFailed so the
// preflight_failed member of spec.md §7's error taxonomy is a real,
// errors.Is-checkable error rather than just a string embedded in
// DeploymentResult.Error.
func preflightFailureError(p *models.PreflightResult) error {
	return fmt.Errorf("%w: %s", providers.ErrPreflightFailed, firstFailureMessage(p))
}

func (o *Orchestrator) deployOne(ctx context.Context, p providers.Provider, req *models.DeployRequest, vllmCmd string) *models.DeploymentResult {
	plan, err := p.Plan(ctx, req, vllmCmd)
	if err != nil {
		return &models.DeploymentResult{Provider: p.Name(), Error: err.Error()}
	}
	if plan.Metadata == nil {
		plan.Metadata = map[string]string{}
	}
	plan.Metadata["service_name"] = req.ServiceName
	return p.Deploy(ctx, plan)
}

// LaunchServerlessOnly runs preflight, deploy, and advisory warmup
// polling against the serverless backend alone — no spot, no router.
func (o *Orchestrator) LaunchServerlessOnly(ctx context.Context, req *models.DeployRequest) (*models.HybridDeployment, error) {
	release, err := o.locker.TryAcquire(ctx, req.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: acquiring launch lock for %q: %w", req.ServiceName, err)
	}
	defer release(ctx)

	req.ServerlessOnly = true
	serverlessProvider, err := o.registry.Get(req.ServerlessProvider)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: resolving serverless provider: %w", err)
	}

	preflight, err := serverlessProvider.Preflight(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: preflight: %w", err)
	}
	if !preflight.OK() {
		result := &models.HybridDeployment{
			Serverless: &models.DeploymentResult{
				Provider: serverlessProvider.Name(),
				Error:    preflightFailureError(preflight).Error(),
			},
		}
		o.persist(ctx, req, result)
		return result, nil
	}

	launchCtx, cancel := context.WithTimeout(ctx, ServerlessLaunchTimeout)
	result := o.deployOne(launchCtx, serverlessProvider, req, BuildVLLMCmd(req))
	cancel()

	if result.OK() && result.HealthURL != "" {
		o.warmupServerless(ctx, result.HealthURL)
	}

	deployment := &models.HybridDeployment{Serverless: result, RouterURL: result.EndpointURL}
	o.persist(ctx, req, deployment)
	return deployment, nil
}

func (o *Orchestrator) warmupServerless(ctx context.Context, healthURL string) {
	deadline := time.Now().Add(o.WarmupTimeout)
	for time.Now().Before(deadline) {
		if probeHealthy(ctx, healthURL) {
			return
		}
		select {
		case <-time.After(o.WarmupInterval):
		case <-ctx.Done():
			return
		}
	}
	o.logger.Warn("serverless warmup timed out; advisory only", zap.String("health_url", healthURL))
}

func (o *Orchestrator) persist(ctx context.Context, req *models.DeployRequest, result *models.HybridDeployment) {
	if err := o.store.Save(ctx, req, result); err != nil {
		o.logger.Error("failed to persist deployment record",
			zap.String("service_name", req.ServiceName), zap.Error(err))
	}
}

func (o *Orchestrator) publish(ctx context.Context, eventType events.EventType, serviceName string, payload map[string]any) {
	if o.bus == nil {
		return
	}
	if err := o.bus.Publish(ctx, events.NewEvent(eventType, serviceName, payload)); err != nil {
		o.logger.Warn("event publish failed", zap.String("event_type", string(eventType)), zap.Error(err))
	}
}
