package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crosslogic/tuna-orchestrator/internal/config"
)

func TestRegistry_ResolvesAllKnownProviders(t *testing.T) {
	reg := NewRegistry(config.ProviderCredentials{}, zap.NewNop())

	for _, name := range []string{"modal", "runpod", "cloudrun", "azure", "baseten", "cerebrium", "skyserve"} {
		p, err := reg.Get(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, p.Name())
	}
}

func TestRegistry_UnknownProviderReturnsErrUnknownProvider(t *testing.T) {
	reg := NewRegistry(config.ProviderCredentials{}, zap.NewNop())

	_, err := reg.Get("does-not-exist")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestRunPodProvider_PreflightFailsWithoutAPIKey(t *testing.T) {
	p := NewRunPodProvider("", zap.NewNop())
	result, err := p.Preflight(nil, nil)
	require.NoError(t, err)
	assert.False(t, result.OK())
	assert.Len(t, result.Failed(), 1)
}

func TestRunPodProvider_RecoverDestroyMetadataFillsConventionalNames(t *testing.T) {
	p := NewRunPodProvider("key", zap.NewNop())
	meta := p.RecoverDestroyMetadata(nil, "tuna-abc", nil)
	assert.Equal(t, "ep-tuna-abc-serverless", meta["endpoint_id"])
	assert.Equal(t, "tpl-tuna-abc-serverless", meta["template_id"])
}
