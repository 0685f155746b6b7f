// Package models holds the data shapes shared across the orchestrator,
// providers, router, and state store. Nothing in this package performs I/O.
package models

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/crosslogic/tuna-orchestrator/internal/catalog"
)

// ScalingPolicy holds the autoscaling knobs for the serverless and spot
// backends. Defaults mirror the original Python project's
// default_scaling_policy(): conservative enough to deploy without tuning,
// explicit enough that a caller can override any single field.
type ScalingPolicy struct {
	Serverless ServerlessScaling
	Spot       SpotScaling
}

// ServerlessScaling configures a serverless backend's concurrency and
// idle-teardown behavior.
type ServerlessScaling struct {
	Concurrency     int
	TimeoutSeconds  int
	ScaledownWindow int
}

// SpotScaling configures the SkyServe replica controller.
type SpotScaling struct {
	MinReplicas    int
	MaxReplicas    int
	TargetQPS      float64
	UpscaleDelay   int
	DownscaleDelay int
}

// DefaultScalingPolicy returns the same conservative defaults the original
// orchestrator baked into every request that didn't override them.
func DefaultScalingPolicy() ScalingPolicy {
	return ScalingPolicy{
		Serverless: ServerlessScaling{
			Concurrency:     1,
			TimeoutSeconds:  600,
			ScaledownWindow: 120,
		},
		Spot: SpotScaling{
			MinReplicas:    1,
			MaxReplicas:    2,
			TargetQPS:      1.0,
			UpscaleDelay:   300,
			DownscaleDelay: 600,
		},
	}
}

// DeployRequest is the input to a hybrid or serverless-only launch.
type DeployRequest struct {
	ModelName          string
	GPU                string
	GPUCount           int
	TPSize             int
	MaxModelLen        int
	ServerlessProvider string
	SpotsCloud         string
	Region             string
	ColdStartMode      string
	Scaling            ScalingPolicy
	ServiceName        string
	Public             bool
	VLLMVersion        string
	ServerlessOnly     bool
}

// NewDeployRequest fills in the same defaults __post_init__ applied in the
// original dataclass: an auto-generated service name, a normalized GPU
// name, and the conservative scaling policy.
func NewDeployRequest(modelName, gpu string) (*DeployRequest, error) {
	req := &DeployRequest{
		ModelName:          modelName,
		GPU:                catalog.NormalizeGPUName(gpu),
		GPUCount:           1,
		TPSize:             1,
		MaxModelLen:        4096,
		ServerlessProvider: "modal",
		SpotsCloud:         "aws",
		ColdStartMode:      "fast_boot",
		Scaling:            DefaultScalingPolicy(),
		VLLMVersion:        "0.15.1",
	}
	if req.ServiceName == "" {
		name, err := generateServiceName()
		if err != nil {
			return nil, fmt.Errorf("generating service name: %w", err)
		}
		req.ServiceName = name
	}
	return req, nil
}

func generateServiceName() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "tuna-" + hex.EncodeToString(buf), nil
}

// ProviderPlan is what a provider's Plan step hands to Deploy: a rendered
// launch script/task plus the environment and metadata it needs.
type ProviderPlan struct {
	Provider       string
	RenderedScript string
	Env            map[string]string
	Metadata       map[string]string
}

// DeploymentResult is what a provider's Deploy (or Status) step returns.
// Error is non-empty exactly when the deploy/operation failed; it is never
// combined with a populated EndpointURL.
type DeploymentResult struct {
	Provider    string
	EndpointURL string
	HealthURL   string
	Error       string
	Metadata    map[string]string
}

// OK reports whether this result represents success.
func (r DeploymentResult) OK() bool {
	return r.Error == ""
}

// HybridDeployment is the aggregate result of launch_hybrid /
// launch_serverless_only: up to three component results plus the URL a
// caller should actually send inference traffic to.
type HybridDeployment struct {
	Serverless *DeploymentResult
	Spot       *DeploymentResult
	Router     *DeploymentResult
	RouterURL  string
}

// PreflightCheck is a single named precondition a provider verifies before
// committing to a deploy.
type PreflightCheck struct {
	Name        string
	Passed      bool
	Message     string
	FixCommand  string
	AutoFixed   bool
}

// PreflightResult aggregates a provider's preflight checks.
type PreflightResult struct {
	Provider string
	Checks   []PreflightCheck
}

// OK reports whether every check passed.
func (r PreflightResult) OK() bool {
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// Failed returns the checks that did not pass.
func (r PreflightResult) Failed() []PreflightCheck {
	var failed []PreflightCheck
	for _, c := range r.Checks {
		if !c.Passed {
			failed = append(failed, c)
		}
	}
	return failed
}

// DeploymentRecord is the durable row persisted by the state store for one
// service_name — everything destroy_hybrid/status_hybrid need to operate on
// a deployment without re-deriving it from a live request.
type DeploymentRecord struct {
	ServiceName string
	Status      string
	CreatedAt   string
	UpdatedAt   string

	ModelName          string
	GPU                string
	GPUCount           int
	ServerlessProvider string
	SpotsCloud         string
	Region             string
	RequestJSON        string

	RouterEndpoint string
	RouterMetadata map[string]string

	ServerlessProviderName string
	ServerlessEndpoint     string
	ServerlessMetadata     map[string]string

	SpotProviderName string
	SpotEndpoint     string
	SpotMetadata     map[string]string

	RouterURL string
}

// Deployment lifecycle statuses, mirrored from the state store schema.
// The set is fixed: a record is created active, transitions active ->
// destroyed on successful teardown, and never returns to active.
const (
	StatusActive    = "active"
	StatusFailed    = "failed"
	StatusDestroyed = "destroyed"
)
