package orchestrator

import (
	"context"
	"net/http"
	"time"
)

// probeHealthy issues a single bounded GET against healthURL, treating
// any 2xx response as healthy.
func probeHealthy(ctx context.Context, healthURL string) bool {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, healthURL, nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
