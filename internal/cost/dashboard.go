package cost

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/crosslogic/tuna-orchestrator/internal/models"
)

// routeStats mirrors the JSON shape the router's /router/health endpoint
// reports under "route_stats" — kept as an unexported twin of
// internal/router.RouteStats rather than importing that package, since the
// cost dashboard only ever sees it across the wire as an HTTP client.
type routeStats struct {
	Total                int64   `json:"total"`
	Spot                 int64   `json:"spot"`
	Serverless           int64   `json:"serverless"`
	GPUSecondsSpot       float64 `json:"gpu_seconds_spot"`
	GPUSecondsServerless float64 `json:"gpu_seconds_serverless"`
	UptimeSeconds        float64 `json:"uptime_seconds"`
	SpotReadySeconds     float64 `json:"spot_ready_seconds"`
}

type healthResponse struct {
	RouteStats routeStats `json:"route_stats"`
}

// Report is the computed cost breakdown for one deployment, printed by the
// `tuna cost` CLI sub-command.
type Report struct {
	ServiceName string
	Hybrid      bool
	ZeroRequest bool

	// Hybrid fields (spec.md §4.7).
	ActualServerless            float64
	ActualSpot                  float64
	ActualRouter                float64
	ActualTotal                 float64
	AllServerlessCounterfactual float64
	AllOnDemandCounterfactual   float64
	SavingsVsAllServerless      float64

	// Serverless-only fields.
	ServerlessOnlyRatePerHour float64
	ServerlessOnlyMaxCost     float64
	ServerlessOnlyUptimeHours float64
}

// Compute loads rec's live cost picture. For a hybrid deployment it fetches
// route_stats from the router's /router/health and applies the five
// formulas in spec.md §4.7; for a serverless-only deployment (no router
// configured) it returns the pricing-table/max-possible-cost estimate
// instead, since there is no route_stats to read actual GPU-seconds from.
func Compute(ctx context.Context, client *http.Client, rec *models.DeploymentRecord, routerColocated bool) (*Report, error) {
	report := &Report{ServiceName: rec.ServiceName}

	if rec.RouterURL == "" {
		return computeServerlessOnly(rec, report)
	}

	report.Hybrid = true
	stats, err := fetchRouteStats(ctx, client, rec.RouterURL)
	if err != nil {
		return nil, fmt.Errorf("cost: fetching route stats: %w", err)
	}

	if stats.Total == 0 {
		report.ZeroRequest = true
		return report, nil
	}

	svlRate := ServerlessPrice(rec.ServerlessProviderName)
	gpuRate := GPUPrice(rec.GPU)
	gpuCount := rec.GPUCount
	if gpuCount <= 0 {
		gpuCount = 1
	}

	routerCostPerHour := RouterCostPerHour
	if routerColocated {
		routerCostPerHour = 0
	}

	report.ActualServerless = (stats.GPUSecondsServerless / 3600) * svlRate
	report.ActualSpot = (stats.SpotReadySeconds / 3600) * gpuRate.SpotPerHour * float64(gpuCount)
	report.ActualRouter = (stats.UptimeSeconds / 3600) * routerCostPerHour
	report.ActualTotal = report.ActualServerless + report.ActualSpot + report.ActualRouter

	report.AllServerlessCounterfactual = ((stats.GPUSecondsServerless + stats.GPUSecondsSpot) / 3600) * svlRate
	report.AllOnDemandCounterfactual = (stats.UptimeSeconds / 3600) * gpuRate.OnDemandPerHour * float64(gpuCount)

	if report.AllServerlessCounterfactual > 0 {
		report.SavingsVsAllServerless = 100.0 * (report.AllServerlessCounterfactual - report.ActualTotal) / report.AllServerlessCounterfactual
	}

	return report, nil
}

func computeServerlessOnly(rec *models.DeploymentRecord, report *Report) (*Report, error) {
	rate := ServerlessPrice(rec.ServerlessProviderName)
	gpuCount := rec.GPUCount
	if gpuCount <= 0 {
		gpuCount = 1
	}

	created, err := time.Parse(time.RFC3339, rec.CreatedAt)
	if err != nil {
		created = time.Now()
	}
	uptimeHours := time.Since(created).Hours()
	if uptimeHours < 0 {
		uptimeHours = 0
	}

	report.ServerlessOnlyRatePerHour = rate
	report.ServerlessOnlyUptimeHours = uptimeHours
	report.ServerlessOnlyMaxCost = uptimeHours * rate * float64(gpuCount)
	return report, nil
}

func fetchRouteStats(ctx context.Context, client *http.Client, routerURL string) (routeStats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, routerURL+"/router/health", nil)
	if err != nil {
		return routeStats{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return routeStats{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return routeStats{}, fmt.Errorf("router health returned status %d", resp.StatusCode)
	}
	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return routeStats{}, fmt.Errorf("decoding router health response: %w", err)
	}
	return health.RouteStats, nil
}
