package benchmark

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"
)

// resultJSON is the field set RunResult marshals to for `--output json`.
type resultJSON struct {
	Scenario       string   `json:"scenario"`
	Provider       string   `json:"provider"`
	GPU            string   `json:"gpu"`
	TotalS         float64  `json:"total_s"`
	HealthReadyS   *float64 `json:"health_ready_s,omitempty"`
	FirstInference *float64 `json:"first_inference_s,omitempty"`
	TTFTS          *float64 `json:"ttft_s,omitempty"`
	ContainerBootS *float64 `json:"container_boot_s,omitempty"`
	ModelLoadS     *float64 `json:"model_load_s,omitempty"`
	DeployTimeS    *float64 `json:"deploy_time_s,omitempty"`
	Error          string   `json:"error,omitempty"`
}

func toSeconds(d *time.Duration) *float64 {
	if d == nil {
		return nil
	}
	s := d.Seconds()
	return &s
}

func toJSON(r RunResult) resultJSON {
	return resultJSON{
		Scenario:       r.Scenario,
		Provider:       r.Provider,
		GPU:            r.GPU,
		TotalS:         r.Total.Seconds(),
		HealthReadyS:   toSeconds(r.HealthReady),
		FirstInference: toSeconds(r.FirstInference),
		TTFTS:          toSeconds(r.TTFT),
		ContainerBootS: toSeconds(r.ContainerBoot),
		ModelLoadS:     toSeconds(r.ModelLoad),
		DeployTimeS:    toSeconds(r.DeployTime),
		Error:          r.Error,
	}
}

// PrintSummary writes results to w in the requested format: "json", "csv",
// or the default aligned table. Mean-of-repeats collapsing (meanRun) is
// the caller's choice, not automatic here — RunWarmColdStart already
// returns one RunResult per repeat so the caller can print either the raw
// runs or MeanOf(results) for a single averaged row.
func PrintSummary(w io.Writer, results []RunResult, format string) error {
	switch format {
	case "json":
		encoded := make([]resultJSON, len(results))
		for i, r := range results {
			encoded[i] = toJSON(r)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(encoded)
	case "csv":
		return printCSV(w, results)
	default:
		printTable(w, results)
		return nil
	}
}

// MeanOf averages repeat runs the way cold_start.py's _mean_run does —
// exported so CLI callers can opt into a single averaged row.
func MeanOf(runs []RunResult) RunResult {
	return meanRun(runs)
}

func printCSV(w io.Writer, results []RunResult) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()
	header := []string{"scenario", "provider", "gpu", "total_s", "health_ready_s", "first_inference_s", "ttft_s", "container_boot_s", "model_load_s", "deploy_time_s", "error"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range results {
		j := toJSON(r)
		row := []string{
			j.Scenario, j.Provider, j.GPU,
			strconv.FormatFloat(j.TotalS, 'f', 2, 64),
			optFloat(j.HealthReadyS), optFloat(j.FirstInference), optFloat(j.TTFTS),
			optFloat(j.ContainerBootS), optFloat(j.ModelLoadS), optFloat(j.DeployTimeS),
			j.Error,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func optFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', 2, 64)
}

func printTable(w io.Writer, results []RunResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tGPU\tSCENARIO\tDEPLOY\tCONTAINER BOOT\tMODEL LOAD\tHEALTH READY\tFIRST INFERENCE\tTOTAL\tERROR")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%.1fs\t%s\n",
			r.Provider, r.GPU, r.Scenario,
			fmtDuration(r.DeployTime), fmtDuration(r.ContainerBoot), fmtDuration(r.ModelLoad),
			fmtDuration(r.HealthReady), fmtDuration(r.FirstInference),
			r.Total.Seconds(), r.Error,
		)
	}
	tw.Flush()
}
