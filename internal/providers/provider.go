// Package providers defines the uniform lifecycle contract every GPU
// backend (serverless or spot) implements, and the static registry that
// resolves a provider name to an implementation.
package providers

import (
	"context"
	"errors"

	"github.com/crosslogic/tuna-orchestrator/internal/models"
)

// ErrUnknownProvider is returned by the registry for an unregistered name.
var ErrUnknownProvider = errors.New("providers: unknown provider")

// ErrPlanInvalid is returned by Plan when a request violates a provider's
// fixed constraints (unsupported GPU, tp_size/gpu_count on a single-GPU
// backend) — the plan_invalid member of spec.md §7's error taxonomy.
var ErrPlanInvalid = errors.New("providers: plan invalid")

// ErrPreflightFailed is returned when a provider's preflight checks fail
// and the orchestrator should stop before attempting a plan or deploy —
// the preflight_failed member of spec.md §7's error taxonomy.
var ErrPreflightFailed = errors.New("providers: preflight failed")

// Provider is the lifecycle every GPU backend control plane implements,
// uniform across serverless clouds and the spot/SkyServe launcher.
type Provider interface {
	// Name returns the provider's registry key, e.g. "modal" or "skyserve".
	Name() string

	// VLLMVersion returns the vLLM version this provider's launch scripts
	// pin, so the orchestrator can record it without the provider needing
	// to expose its render internals.
	VLLMVersion(req *models.DeployRequest) string

	// AuthToken returns the bearer token the router should present to this
	// provider's endpoint, or empty if the provider doesn't gate access.
	AuthToken(ctx context.Context, req *models.DeployRequest) (string, error)

	// Preflight verifies the provider has what it needs (credentials,
	// quota, reachability) before any launch work starts.
	Preflight(ctx context.Context, req *models.DeployRequest) (*models.PreflightResult, error)

	// Plan renders the launch script/task for req, given the vLLM server
	// command line the orchestrator built.
	Plan(ctx context.Context, req *models.DeployRequest, vllmCmd string) (*models.ProviderPlan, error)

	// Deploy executes plan and returns the resulting endpoint. Deploy never
	// panics or returns a result with both EndpointURL and Error set;
	// failures are reported via DeploymentResult.Error, not a returned err,
	// matching spec.md's "provider failures never escape as panics" rule.
	Deploy(ctx context.Context, plan *models.ProviderPlan) *models.DeploymentResult

	// Destroy tears down the named service. For providers with eventually
	// consistent teardown (the spot launcher), Destroy blocks until torn
	// down is confirmed or its own internal poll budget is exhausted.
	Destroy(ctx context.Context, serviceName string, meta map[string]string) error

	// Status reports the live state of a previously deployed service.
	Status(ctx context.Context, serviceName string) (*models.DeploymentResult, error)

	// RecoverDestroyMetadata lets a provider recover IDs it needs for
	// Destroy but which the stored record might be missing (e.g. because
	// the deploy was interrupted before they were persisted). Most
	// providers return meta unchanged.
	RecoverDestroyMetadata(ctx context.Context, serviceName string, meta map[string]string) map[string]string
}
