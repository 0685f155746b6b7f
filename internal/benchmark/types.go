// Package benchmark measures cold-start latency (C8): forcing a
// deployment to scale to zero and timing how long the next request takes
// to come back, with provider log tailing for a phase breakdown where
// available.
package benchmark

import "time"

// RunResult is one cold-start measurement.
type RunResult struct {
	Scenario string // "fresh_cold_start" or "warm_cold_start"
	Provider string
	GPU      string

	Total time.Duration

	HealthReady    *time.Duration
	FirstInference *time.Duration
	TTFT           *time.Duration
	ContainerBoot  *time.Duration
	ModelLoad      *time.Duration
	DeployTime     *time.Duration

	Error string
}

// OK reports whether the run completed without error.
func (r RunResult) OK() bool { return r.Error == "" }

// LogPhases holds the absolute wall-clock timestamps extracted from a
// provider's log stream. Only the first matching line per phase counts.
type LogPhases struct {
	ContainerStart time.Time
	ModelLoadStart time.Time
	Ready          time.Time
}

func dur(d time.Duration) *time.Duration { return &d }

func avg(values []*time.Duration) *time.Duration {
	var sum time.Duration
	var n int
	for _, v := range values {
		if v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return dur(sum / time.Duration(n))
}

// meanRun collapses repeat runs into one averaged RunResult, mirroring
// cold_start.py's _mean_run: every optional phase is averaged over the
// runs that reported it, nil fields are excluded rather than treated as
// zero.
func meanRun(runs []RunResult) RunResult {
	if len(runs) == 1 {
		return runs[0]
	}
	var total time.Duration
	healthReady := make([]*time.Duration, 0, len(runs))
	firstInference := make([]*time.Duration, 0, len(runs))
	ttft := make([]*time.Duration, 0, len(runs))
	containerBoot := make([]*time.Duration, 0, len(runs))
	modelLoad := make([]*time.Duration, 0, len(runs))
	deployTime := make([]*time.Duration, 0, len(runs))
	for _, r := range runs {
		total += r.Total
		healthReady = append(healthReady, r.HealthReady)
		firstInference = append(firstInference, r.FirstInference)
		ttft = append(ttft, r.TTFT)
		containerBoot = append(containerBoot, r.ContainerBoot)
		modelLoad = append(modelLoad, r.ModelLoad)
		deployTime = append(deployTime, r.DeployTime)
	}
	return RunResult{
		Scenario:       runs[0].Scenario,
		Provider:       runs[0].Provider,
		GPU:            runs[0].GPU,
		Total:          total / time.Duration(len(runs)),
		HealthReady:    avg(healthReady),
		FirstInference: avg(firstInference),
		TTFT:           avg(ttft),
		ContainerBoot:  avg(containerBoot),
		ModelLoad:      avg(modelLoad),
		DeployTime:     avg(deployTime),
	}
}
