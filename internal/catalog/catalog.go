// Package catalog provides GPU name normalization, the thin helper the
// original project's pricing catalog exposed independently of pricing
// itself, plus a per-provider GPU identifier table that Plan uses to
// reject GPUs a provider does not offer. Pricing data is out of scope here.
package catalog

import (
	"strconv"
	"strings"
)

// aliases maps common shorthand/casing variants to the canonical GPU name
// SkyPilot and the serverless providers expect.
var aliases = map[string]string{
	"a100":     "A100",
	"a100-40":  "A100",
	"a100-80":  "A100-80GB",
	"a100-80g": "A100-80GB",
	"h100":     "H100",
	"l4":       "L4",
	"l40s":     "L40S",
	"t4":       "T4",
	"v100":     "V100",
	"a10g":     "A10G",
	"a10":      "A10",
}

// NormalizeGPUName canonicalizes a user-supplied GPU short name. Unknown
// names are returned unchanged (uppercased) rather than rejected — the
// same tolerant behavior as the original's __post_init__, which deferred
// hard validation to the provider.
func NormalizeGPUName(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := aliases[key]; ok {
		return canonical
	}
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ToSkyPilotGPUName converts a canonical GPU name plus a count into the
// "NAME:COUNT" form SkyPilot task YAML expects for its accelerators field.
func ToSkyPilotGPUName(canonical string, count int) string {
	if count <= 0 {
		count = 1
	}
	return canonical + ":" + strconv.Itoa(count)
}

// providerGPUIDs is the ID-mapping half of the original pricing catalog's
// _PROVIDER_GPUS table: canonical GPU name -> provider's own identifier for
// that GPU. Pricing and region fields are deliberately left out — this
// exists only so Plan can reject a GPU a provider doesn't offer.
//
// Cerebrium has no entries in the original _PROVIDER_GPUS table at all,
// so its row is grounded on its own separate _GPU_RESOURCES enum instead.
var providerGPUIDs = map[string]map[string]string{
	"modal": {
		"T4":        "T4",
		"A10G":      "A10G",
		"L4":        "L4",
		"A40":       "A40",
		"L40S":      "L40S",
		"A100":      "A100_40GB",
		"A100-80GB": "A100_80GB",
		"H100":      "H100",
		"B200":      "B200",
	},
	"runpod": {
		"L4":        "NVIDIA L4",
		"L40S":      "NVIDIA L40S",
		"A40":       "NVIDIA A40",
		"A100-80GB": "NVIDIA A100-SXM4-80GB",
		"H100":      "NVIDIA H100 80GB HBM3",
		"B200":      "NVIDIA B200",
	},
	"cloudrun": {
		"L4": "nvidia-l4",
	},
	"azure": {
		"T4":        "Consumption-GPU-NC8as-T4",
		"A100-80GB": "Consumption-GPU-NC24-A100",
	},
	"baseten": {
		"T4":        "T4",
		"L4":        "L4",
		"A10G":      "A10G",
		"A100-80GB": "A100",
		"H100":      "H100",
		"B200":      "B200",
	},
	"cerebrium": {
		"T4":        "TURING_T4",
		"L4":        "ADA_L4",
		"A10":       "AMPERE_A10",
		"L40":       "ADA_L40",
		"A100":      "AMPERE_A100_40GB",
		"A100-80GB": "AMPERE_A100_80GB",
		"H100":      "HOPPER_H100",
	},
}

// ProviderGPUID looks up a provider's identifier for a canonical GPU name.
// The second return value is false when the provider doesn't offer that
// GPU at all, which Plan treats as a plan_invalid error (spec.md §4.4).
func ProviderGPUID(canonicalGPU, provider string) (string, bool) {
	ids, ok := providerGPUIDs[provider]
	if !ok {
		return "", false
	}
	id, ok := ids[canonicalGPU]
	return id, ok
}
