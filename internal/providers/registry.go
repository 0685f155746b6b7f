package providers

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/crosslogic/tuna-orchestrator/internal/config"
)

// Registry resolves a provider name to an implementation via a map filled
// once at construction rather than the reflection-driven lazy-import table the original
// used — Go has no runtime module loader, so every provider this binary
// supports is compiled in and constructed once, up front.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry constructs every known provider eagerly from cfg and wires
// them into a lookup table.
func NewRegistry(cfg config.ProviderCredentials, logger *zap.Logger) *Registry {
	reg := &Registry{providers: make(map[string]Provider)}

	reg.register(NewModalProvider(logger))
	reg.register(NewRunPodProvider(cfg.RunPodAPIKey, logger))
	reg.register(NewCloudRunProvider(cfg.GoogleCloudProject, cfg.GoogleCloudRegion, logger))
	reg.register(NewAzureProvider(cfg.AzureSubscriptionID, cfg.AzureResourceGroup, cfg.AzureRegion, cfg.AzureEnvironment, logger))
	reg.register(NewBasetenProvider(cfg.BasetenAPIKey, logger))
	reg.register(NewCerebriumProvider(cfg.CerebriumAPIKey, logger))
	reg.register(NewSkyServeProvider(logger))

	return reg
}

func (r *Registry) register(p Provider) {
	r.providers[p.Name()] = p
}

// Get resolves name to its Provider, or ErrUnknownProvider.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// List returns every registered provider name.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
