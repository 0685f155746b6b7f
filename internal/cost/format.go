package cost

import "fmt"

// FormatCost renders a dollar amount the same way the teacher's
// billing.FormatCost does — four decimal places, since per-second GPU
// spend is routinely sub-cent.
func FormatCost(amount float64) string {
	return fmt.Sprintf("$%.4f", amount)
}

// Summary renders a Report as the multi-line text the `tuna cost` CLI
// sub-command prints to stdout.
func (r *Report) Summary() string {
	if !r.Hybrid {
		return fmt.Sprintf(
			"%s: serverless-only\n  rate: %s/gpu-hour\n  uptime: %.2fh\n  max possible cost: %s\n  (actual billing is per-second of active compute)",
			r.ServiceName, FormatCost(r.ServerlessOnlyRatePerHour), r.ServerlessOnlyUptimeHours, FormatCost(r.ServerlessOnlyMaxCost),
		)
	}
	if r.ZeroRequest {
		return fmt.Sprintf("%s: hybrid, no requests served yet — no cost to report", r.ServiceName)
	}
	return fmt.Sprintf(
		"%s: hybrid\n  actual serverless: %s\n  actual spot:       %s\n  actual router:     %s\n  actual total:      %s\n  all-serverless counterfactual: %s\n  all-on-demand counterfactual:  %s\n  savings vs all-serverless:     %.1f%%",
		r.ServiceName,
		FormatCost(r.ActualServerless), FormatCost(r.ActualSpot), FormatCost(r.ActualRouter), FormatCost(r.ActualTotal),
		FormatCost(r.AllServerlessCounterfactual), FormatCost(r.AllOnDemandCounterfactual),
		r.SavingsVsAllServerless,
	)
}
