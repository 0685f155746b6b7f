// Package skysdk is a thin, production-ready HTTP client for a SkyPilot
// API server, used by the spot/skyserve provider: serve up/down/status and
// cluster launch/status/down, with retry and exponential backoff on
// transient failures.
package skysdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Client talks to a SkyPilot API server over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger

	maxRetries    int
	retryDelay    time.Duration
	retryMaxDelay time.Duration
}

// Config configures a Client.
type Config struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration
}

// NewClient builds a Client with production defaults filled in for any
// zero-valued Config field.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	} else if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 1 * time.Second
	}
	if cfg.RetryMaxDelay == 0 {
		cfg.RetryMaxDelay = 30 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		baseURL:       cfg.BaseURL,
		token:         cfg.Token,
		httpClient:    &http.Client{Transport: transport, Timeout: cfg.Timeout},
		logger:        logger,
		maxRetries:    cfg.MaxRetries,
		retryDelay:    cfg.RetryDelay,
		retryMaxDelay: cfg.RetryMaxDelay,
	}
}

// ServeUpRequest launches a SkyServe replica service from a rendered task
// YAML document.
type ServeUpRequest struct {
	ServiceName string `json:"service_name"`
	TaskYAML    string `json:"task_yaml"`
}

// ServeUpResponse mirrors sky_sdk.serve_up's (name, endpoint) return.
type ServeUpResponse struct {
	ServiceName string `json:"service_name"`
	Endpoint    string `json:"endpoint"`
}

// ServeUp brings up (or updates) a SkyServe service.
func (c *Client) ServeUp(ctx context.Context, req ServeUpRequest) (*ServeUpResponse, error) {
	var result ServeUpResponse
	if err := c.doRequestWithRetry(ctx, http.MethodPost, "/api/v1/serve/up", req, &result); err != nil {
		return nil, fmt.Errorf("serve up %q: %w", req.ServiceName, err)
	}
	return &result, nil
}

// ServeDownRequest tears down one or more SkyServe services.
type ServeDownRequest struct {
	ServiceNames []string `json:"service_names"`
	Purge        bool     `json:"purge"`
}

// ServeDown tears down the named services.
func (c *Client) ServeDown(ctx context.Context, req ServeDownRequest) error {
	if err := c.doRequestWithRetry(ctx, http.MethodPost, "/api/v1/serve/down", req, nil); err != nil {
		return fmt.Errorf("serve down %v: %w", req.ServiceNames, err)
	}
	return nil
}

// ServiceStatus is one entry of a serve-status response.
type ServiceStatus struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Endpoint string `json:"endpoint"`
}

// ServeStatus lists the status of the named services, or every service
// when names is empty.
func (c *Client) ServeStatus(ctx context.Context, names []string) ([]ServiceStatus, error) {
	path := "/api/v1/serve/status"
	var result struct {
		Services []ServiceStatus `json:"services"`
	}
	body := map[string]any{"service_names": names}
	if err := c.doRequestWithRetry(ctx, http.MethodPost, path, body, &result); err != nil {
		return nil, fmt.Errorf("serve status: %w", err)
	}
	return result.Services, nil
}

// ClusterLaunchRequest launches a plain (non-serve) cluster. Nothing in
// this module calls ClusterLaunch.
type ClusterLaunchRequest struct {
	ClusterName string `json:"cluster_name"`
	TaskYAML    string `json:"task_yaml"`
	Down        bool   `json:"down"`
}

// ClusterLaunchResponse carries the job ID of an async cluster launch.
type ClusterLaunchResponse struct {
	JobID string `json:"job_id"`
}

// ClusterLaunch starts a cluster from task YAML.
func (c *Client) ClusterLaunch(ctx context.Context, req ClusterLaunchRequest) (*ClusterLaunchResponse, error) {
	var result ClusterLaunchResponse
	if err := c.doRequestWithRetry(ctx, http.MethodPost, "/api/v1/clusters/launch", req, &result); err != nil {
		return nil, fmt.Errorf("cluster launch %q: %w", req.ClusterName, err)
	}
	return &result, nil
}

// ClusterInfo describes one cluster in a status listing.
type ClusterInfo struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	IP     string `json:"ip"`
}

// ClusterStatus values that matter to the controller-discovery and
// cleanup logic.
const (
	ClusterStatusInit = "INIT"
	ClusterStatusUp   = "UP"
)

// ClusterStatus returns status for the named clusters, or all clusters
// when names is empty.
func (c *Client) ClusterStatus(ctx context.Context, names []string) ([]ClusterInfo, error) {
	var result struct {
		Clusters []ClusterInfo `json:"clusters"`
	}
	body := map[string]any{"cluster_names": names}
	if err := c.doRequestWithRetry(ctx, http.MethodPost, "/api/v1/clusters/status", body, &result); err != nil {
		return nil, fmt.Errorf("cluster status: %w", err)
	}
	return result.Clusters, nil
}

// ClusterDown tears a cluster down.
func (c *Client) ClusterDown(ctx context.Context, clusterName string, purge bool) error {
	body := map[string]any{"cluster_name": clusterName, "purge": purge}
	if err := c.doRequestWithRetry(ctx, http.MethodPost, "/api/v1/clusters/down", body, nil); err != nil {
		return fmt.Errorf("cluster down %q: %w", clusterName, err)
	}
	return nil
}

func (c *Client) doRequestWithRetry(ctx context.Context, method, path string, body, result any) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.calculateBackoff(attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := c.doRequest(ctx, method, path, body, result)
		if err == nil {
			return nil
		}
		lastErr = err

		if !c.isRetryable(err) {
			return err
		}
		c.logger.Warn("skypilot request failed, will retry",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	return fmt.Errorf("request failed after %d retries: %w", c.maxRetries, lastErr)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	delay := time.Duration(float64(c.retryDelay) * math.Pow(2, float64(attempt-1)))
	if delay > c.retryMaxDelay {
		delay = c.retryMaxDelay
	}
	jitter := float64(delay) * 0.25
	delay += time.Duration(jitter * (2*rand.Float64() - 1))
	return delay
}

func (c *Client) isRetryable(err error) bool {
	if err == context.Canceled || err == context.DeadlineExceeded {
		return false
	}
	if apiErr, ok := err.(*APIError); ok {
		if apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests {
			return true
		}
		return false
	}
	return true
}

// APIError is returned for any non-2xx SkyPilot API response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("skypilot API error: %s (status: %d)", e.Message, e.StatusCode)
}

// IsNotFound reports whether the error is a 404.
func (e *APIError) IsNotFound() bool { return e.StatusCode == http.StatusNotFound }

// Close releases idle connections held by the client.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
