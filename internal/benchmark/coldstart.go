package benchmark

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// waitForHealth polls healthURL every 2s until it returns 200 or timeout
// elapses, returning the elapsed duration on success.
func waitForHealth(ctx context.Context, client *http.Client, healthURL string, headers http.Header, timeout time.Duration) *time.Duration {
	start := time.Now()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	deadline := start.Add(timeout)

	for time.Now().Before(deadline) {
		if ok := probeHealth(ctx, client, healthURL, headers); ok {
			return dur(time.Since(start))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

func probeHealth(ctx context.Context, client *http.Client, healthURL string, headers http.Header) bool {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, healthURL, nil)
	if err != nil {
		return false
	}
	req.Header = headers
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// measureTTFT sends a streamed chat-completion request and returns the
// time to the first non-empty chunk (TTFT) plus total inference time.
func measureTTFT(ctx context.Context, client *http.Client, endpointURL, model string, headers http.Header) (*time.Duration, *time.Duration) {
	url := strings.TrimSuffix(endpointURL, "/")
	if !strings.HasSuffix(url, "/v1/chat/completions") {
		url += "/v1/chat/completions"
	}

	body, _ := json.Marshal(map[string]any{
		"model":      model,
		"messages":   []map[string]string{{"role": "user", "content": "hi"}},
		"max_tokens": 8,
		"stream":     true,
	})

	reqCtx, cancel := context.WithTimeout(ctx, coldStartTriggerTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, nil
	}
	req.Header = headers.Clone()
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	var ttft *time.Duration
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if ttft == nil && len(scanner.Bytes()) > 0 {
			ttft = dur(time.Since(start))
		}
	}
	total := dur(time.Since(start))
	return ttft, total
}

// waitForCold waits for endpointURL to confirm scale-to-zero: a quiet
// period with no requests (so health polls don't reset the provider's own
// scaledown timer) followed by a single check, repeated until timeout.
func waitForCold(ctx context.Context, client *http.Client, logger *zap.Logger, provider, healthURL string, headers http.Header, timeout, cooldown time.Duration) bool {
	start := time.Now()
	for time.Since(start) < timeout {
		quietEnd := time.Now().Add(cooldown)
		logger.Info("quiet period, waiting for scaledown timer", zap.Duration("cooldown", cooldown))
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Until(quietEnd)):
		}
		if time.Since(start) >= timeout {
			break
		}
		if IsCold(ctx, client, provider, healthURL, headers) {
			logger.Info("scale-to-zero confirmed", zap.Duration("elapsed", time.Since(start)))
			return true
		}
		logger.Info("still warm, restarting quiet period", zap.Duration("elapsed", time.Since(start)))
	}
	logger.Warn("scale-to-zero not confirmed within timeout", zap.Duration("timeout", timeout))
	return false
}

// singleRun executes one cold-start measurement cycle: starts an optional
// log watcher, triggers the cold start in the background, waits for
// health, measures first inference, and derives the phase breakdown from
// log timestamps where available.
func singleRun(ctx context.Context, client *http.Client, provider, endpointURL, healthURL, model, gpu string, headers http.Header, metadata map[string]string, scenario string) RunResult {
	var watcher *LogWatcher
	if SupportsLogPhases(provider) {
		watcher = CreateLogWatcher(provider, metadata)
	}
	if watcher != nil {
		watcher.Start()
	}

	t0 := time.Now()
	go TriggerColdStart(ctx, client, provider, endpointURL, healthURL, model, headers)

	healthReady := waitForHealth(ctx, client, healthURL, headers, 600*time.Second)
	ttft, inferenceTotal := measureTTFT(ctx, client, endpointURL, model, headers)
	total := time.Since(t0)

	var containerBoot, modelLoad *time.Duration
	if watcher != nil {
		watcher.Stop()
		p := watcher.Phases()
		if !p.ContainerStart.IsZero() && !p.ModelLoadStart.IsZero() {
			containerBoot = dur(p.ModelLoadStart.Sub(p.ContainerStart))
		}
		if !p.ModelLoadStart.IsZero() && !p.Ready.IsZero() {
			modelLoad = dur(p.Ready.Sub(p.ModelLoadStart))
		}
	}

	return RunResult{
		Scenario:       scenario,
		Provider:       provider,
		GPU:            gpu,
		Total:          total,
		HealthReady:    healthReady,
		FirstInference: inferenceTotal,
		TTFT:           ttft,
		ContainerBoot:  containerBoot,
		ModelLoad:      modelLoad,
	}
}

// WarmColdStartOptions configures RunWarmColdStart.
type WarmColdStartOptions struct {
	Provider, GPU, Model, EndpointURL, HealthURL string
	Metadata                                     map[string]string
	Headers                                      http.Header
	Repeat                                        int
	IdleWait                                      time.Duration
}

// RunWarmColdStart benchmarks cold start against an existing (warm)
// deployment: for each repeat, wait for it to scale to zero, then trigger
// and measure a cold start. Runs where scale-to-zero never confirms are
// skipped rather than counted as failures.
func RunWarmColdStart(ctx context.Context, client *http.Client, logger *zap.Logger, opts WarmColdStartOptions) ([]RunResult, error) {
	if err := ValidateProvider(opts.Provider); err != nil {
		return nil, err
	}
	repeat := opts.Repeat
	if repeat <= 0 {
		repeat = 3
	}
	idleWait := opts.IdleWait
	if idleWait <= 0 {
		idleWait = 300 * time.Second
	}

	var results []RunResult
	for i := 0; i < repeat; i++ {
		logger.Info("warm cold start run", zap.Int("attempt", i+1), zap.Int("of", repeat))
		if !waitForCold(ctx, client, logger, opts.Provider, opts.HealthURL, opts.Headers, idleWait, 120*time.Second) {
			logger.Info("skipping run: endpoint did not scale to zero", zap.Int("attempt", i+1))
			continue
		}
		result := singleRun(ctx, client, opts.Provider, opts.EndpointURL, opts.HealthURL, opts.Model, opts.GPU, opts.Headers, opts.Metadata, "warm_cold_start")
		results = append(results, result)
	}
	return results, nil
}

// FreshColdStartOptions configures RunFreshColdStart. Deploy is
// injected so this package doesn't import internal/orchestrator directly —
// the CLI entrypoint wires launch_serverless_only's Go equivalent in.
type FreshColdStartOptions struct {
	Provider, GPU, Model string
	Headers              http.Header
	// Deploy runs the fresh serverless-only deployment and returns its
	// endpoint URL, health URL, and metadata.
	Deploy func(ctx context.Context) (endpointURL, healthURL string, metadata map[string]string, err error)
}

// RunFreshColdStart deploys fresh via opts.Deploy, measures the resulting
// cold start, and reports the combined deploy+boot time as RunResult.Total.
func RunFreshColdStart(ctx context.Context, client *http.Client, logger *zap.Logger, opts FreshColdStartOptions) (RunResult, error) {
	if err := ValidateProvider(opts.Provider); err != nil {
		return RunResult{}, err
	}

	deployStart := time.Now()
	endpointURL, healthURL, metadata, err := opts.Deploy(ctx)
	deployTime := time.Since(deployStart)
	if err != nil {
		return RunResult{
			Scenario:   "fresh_cold_start",
			Provider:   opts.Provider,
			GPU:        opts.GPU,
			Total:      deployTime,
			DeployTime: dur(deployTime),
			Error:      err.Error(),
		}, nil
	}

	var watcher *LogWatcher
	preMetadata := map[string]string{}
	for k, v := range metadata {
		preMetadata[k] = v
	}
	if SupportsLogPhases(opts.Provider) {
		watcher = CreateLogWatcher(opts.Provider, preMetadata)
		if watcher != nil {
			watcher.Start()
		}
	}

	t0 := time.Now()
	healthReady := waitForHealth(ctx, client, healthURL, opts.Headers, 600*time.Second)

	var containerBoot, modelLoad *time.Duration
	if watcher != nil {
		watcher.Stop()
		p := watcher.Phases()
		if !p.ContainerStart.IsZero() && !p.ModelLoadStart.IsZero() {
			containerBoot = dur(p.ModelLoadStart.Sub(p.ContainerStart))
		}
		if !p.ModelLoadStart.IsZero() && !p.Ready.IsZero() {
			modelLoad = dur(p.Ready.Sub(p.ModelLoadStart))
		}
	}

	if healthReady == nil {
		return RunResult{
			Scenario:      "fresh_cold_start",
			Provider:      opts.Provider,
			GPU:           opts.GPU,
			Total:         time.Since(t0) + deployTime,
			DeployTime:    dur(deployTime),
			ContainerBoot: containerBoot,
			ModelLoad:     modelLoad,
			Error:         "health endpoint never became ready (timeout 600s)",
		}, nil
	}

	ttft, inference := measureTTFT(ctx, client, endpointURL, opts.Model, opts.Headers)
	combinedHealthReady := dur(*healthReady + deployTime)

	return RunResult{
		Scenario:       "fresh_cold_start",
		Provider:       opts.Provider,
		GPU:            opts.GPU,
		Total:          time.Since(t0) + deployTime,
		DeployTime:     dur(deployTime),
		HealthReady:    combinedHealthReady,
		FirstInference: inference,
		TTFT:           ttft,
		ContainerBoot:  containerBoot,
		ModelLoad:      modelLoad,
	}, nil
}

// fmtDuration renders an optional duration for table/text output.
func fmtDuration(d *time.Duration) string {
	if d == nil {
		return "-"
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
