// Package cost computes actual and counterfactual spend for a deployment,
// reading live counters off a running router process and static per-GPU/
// per-provider rate tables.
package cost

import "strings"

// GPURate holds the two per-GPU hourly rates the dashboard needs: the
// spot rate (what the SkyServe cluster actually costs) and the on-demand
// rate (the all-on-demand counterfactual). Adapted from the teacher's
// internal/billing.GPUPricingTier, trimmed to the two rates this domain's
// formulas (spec.md §4.7) actually consume — the per-token and
// minimum-charge fields there priced LLM API calls, not GPU-hour spend.
type GPURate struct {
	OnDemandPerHour float64
	SpotPerHour     float64
}

// gpuRates is the static on-demand/spot rate table, same figures as the
// teacher's default GPU pricing tiers.
var gpuRates = map[string]GPURate{
	"A10G":      {OnDemandPerHour: 1.20, SpotPerHour: 0.36},
	"A100":      {OnDemandPerHour: 4.00, SpotPerHour: 1.20},
	"A100-80GB": {OnDemandPerHour: 5.50, SpotPerHour: 1.65},
	"H100":      {OnDemandPerHour: 8.00, SpotPerHour: 2.40},
	"H100-NVL":  {OnDemandPerHour: 10.00, SpotPerHour: 3.00},
	"L4":        {OnDemandPerHour: 0.80, SpotPerHour: 0.24},
	"V100":      {OnDemandPerHour: 2.50, SpotPerHour: 0.75},
	"T4":        {OnDemandPerHour: 0.60, SpotPerHour: 0.18},
	"L40S":      {OnDemandPerHour: 1.50, SpotPerHour: 0.45},
}

var defaultGPURate = GPURate{OnDemandPerHour: 3.00, SpotPerHour: 0.90}

// GPUPrice returns the on-demand/spot rate pair for gpuType, falling back
// to a conservative default for GPUs not in the table.
func GPUPrice(gpuType string) GPURate {
	key := strings.ToUpper(strings.TrimSpace(gpuType))
	if rate, ok := gpuRates[key]; ok {
		return rate
	}
	return defaultGPURate
}

// serverlessRates is the per-provider hourly rate charged while a
// serverless container is warm, used for both the serverless-only pricing
// table and the hybrid actual_serverless/all_serverless_counterfactual
// formulas.
var serverlessRates = map[string]float64{
	"modal":     2.50,
	"baseten":   3.20,
	"cerebrium": 2.80,
	"cloudrun":  1.80,
	"azure":     3.60,
	"runpod":    1.90,
}

var defaultServerlessRate = 2.50

// ServerlessPrice returns the per-GPU hourly rate charged by provider.
func ServerlessPrice(provider string) float64 {
	if rate, ok := serverlessRates[strings.ToLower(strings.TrimSpace(provider))]; ok {
		return rate
	}
	return defaultServerlessRate
}

// RouterCostPerHour is the flat rate charged for a separate router VM.
// Colocated routers run on the spot controller's existing machine and so
// cost nothing extra — spec.md §4.7's "0 if colocated".
const RouterCostPerHour = 0.04
