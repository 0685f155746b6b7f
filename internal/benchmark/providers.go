package benchmark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// logCapableProviders is the set of providers logwatcher.go has a verified
// log-tailing command for — anything else falls back to HTTP-only timing.
var logCapableProviders = map[string]bool{
	"modal":     true,
	"cloudrun":  true,
	"cerebrium": true,
	"baseten":   true,
}

// excludedProviders can't be cold-start benchmarked at all.
var excludedProviders = map[string]string{
	"azure": "Azure Container Apps ManagedEnvironment takes 30+ min to create/delete, making cold start benchmarking impractical.",
}

// ValidateProvider rejects providers unsuitable for cold-start
// benchmarking, returning the reason as the error.
func ValidateProvider(provider string) error {
	if reason, excluded := excludedProviders[provider]; excluded {
		return fmt.Errorf("benchmark: %s", reason)
	}
	return nil
}

// SupportsLogPhases reports whether provider has a verified log watcher.
func SupportsLogPhases(provider string) bool {
	return logCapableProviders[provider]
}

// AuthHeaders returns the headers required to call a provider's endpoints
// directly, read from the same credential fields the providers package
// already forwards from config.ProviderCredentials.
func AuthHeaders(provider, runpodAPIKey, basetenAPIKey string) (http.Header, error) {
	h := http.Header{}
	switch provider {
	case "runpod":
		if runpodAPIKey == "" {
			return nil, fmt.Errorf("benchmark: RUNPOD_API_KEY required for runpod benchmarking")
		}
		h.Set("Authorization", "Bearer "+runpodAPIKey)
	case "baseten":
		if basetenAPIKey == "" {
			return nil, fmt.Errorf("benchmark: BASETEN_API_KEY required for baseten benchmarking")
		}
		h.Set("Authorization", "Api-Key "+basetenAPIKey)
	}
	return h, nil
}

// IsCold checks whether provider's endpoint is currently scaled to zero.
func IsCold(ctx context.Context, client *http.Client, provider, healthURL string, headers http.Header) bool {
	if provider == "runpod" {
		return isColdRunPod(ctx, client, healthURL, headers)
	}
	return isColdHTTP(ctx, client, healthURL, headers)
}

// runpodWorkers is the subset of RunPod's /health JSON this package reads.
type runpodWorkers struct {
	Workers struct {
		Ready        int `json:"ready"`
		Running      int `json:"running"`
		Initializing int `json:"initializing"`
	} `json:"workers"`
}

// isColdRunPod reads RunPod's /health JSON, which returns 200 even while
// cold — coldness is determined from the worker counts, not the status.
func isColdRunPod(ctx context.Context, client *http.Client, healthURL string, headers http.Header) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return true
	}
	req.Header = headers
	resp, err := client.Do(req)
	if err != nil {
		return true
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return true
	}
	var w runpodWorkers
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return true
	}
	return w.Workers.Ready == 0 && w.Workers.Running == 0 && w.Workers.Initializing == 0
}

func isColdHTTP(ctx context.Context, client *http.Client, healthURL string, headers http.Header) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return true
	}
	req.Header = headers
	resp, err := client.Do(req)
	if err != nil {
		return true
	}
	defer resp.Body.Close()
	return resp.StatusCode != http.StatusOK
}

// TriggerColdStart sends whatever request actually wakes provider's
// endpoint from cold. RunPod's health check doesn't boot workers, so it
// needs a real inference POST; every other provider wakes on a plain
// health GET.
func TriggerColdStart(ctx context.Context, client *http.Client, provider, endpointURL, healthURL, model string, headers http.Header) {
	if provider == "runpod" {
		url := strings.TrimSuffix(endpointURL, "/")
		if !strings.HasSuffix(url, "/v1/chat/completions") {
			url += "/v1/chat/completions"
		}
		body, _ := json.Marshal(map[string]any{
			"model":      model,
			"messages":   []map[string]string{{"role": "user", "content": "hi"}},
			"max_tokens": 1,
			"stream":     false,
		})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return
		}
		req.Header = headers.Clone()
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
		}
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return
	}
	req.Header = headers
	resp, err := client.Do(req)
	if err == nil {
		resp.Body.Close()
	}
}

// coldStartTriggerTimeout is long enough to cover a genuine cold container
// boot — the same 600s budget cold_start.py gives its trigger request.
const coldStartTriggerTimeout = 600 * time.Second
