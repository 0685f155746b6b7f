package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeGPUName_ResolvesAliases(t *testing.T) {
	assert.Equal(t, "A100", NormalizeGPUName("a100"))
	assert.Equal(t, "A100-80GB", NormalizeGPUName("A100-80G"))
	assert.Equal(t, "H100", NormalizeGPUName("h100"))
}

func TestNormalizeGPUName_UnknownPassesThroughUppercased(t *testing.T) {
	assert.Equal(t, "RTX6000", NormalizeGPUName("rtx6000"))
}

func TestToSkyPilotGPUName_DefaultsCountToOne(t *testing.T) {
	assert.Equal(t, "A100:1", ToSkyPilotGPUName("A100", 0))
	assert.Equal(t, "H100:4", ToSkyPilotGPUName("H100", 4))
}

func TestProviderGPUID_KnownMapping(t *testing.T) {
	id, ok := ProviderGPUID("L4", "cloudrun")
	assert.True(t, ok)
	assert.Equal(t, "nvidia-l4", id)
}

func TestProviderGPUID_UnknownGPUForProvider(t *testing.T) {
	_, ok := ProviderGPUID("H100", "cloudrun")
	assert.False(t, ok)
}

func TestProviderGPUID_UnknownProvider(t *testing.T) {
	_, ok := ProviderGPUID("A100", "does-not-exist")
	assert.False(t, ok)
}

func TestProviderGPUID_CerebriumGroundedOnItsOwnGPUResourcesEnum(t *testing.T) {
	id, ok := ProviderGPUID("H100", "cerebrium")
	assert.True(t, ok)
	assert.Equal(t, "HOPPER_H100", id)
}
