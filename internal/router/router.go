// Package router implements the meta load balancer: a long-running,
// single-process reverse proxy that prefers the spot backend whenever it
// is ready and falls back to serverless otherwise, poking spot awake in
// the background during serverless-served requests.
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/crosslogic/tuna-orchestrator/internal/config"
	"github.com/crosslogic/tuna-orchestrator/internal/metrics"
)

// Router is the compiled router binary's HTTP handler. One instance lives
// for the lifetime of the process; state is all behind state's single
// mutex so the proxy handler can run concurrently across many requests.
type Router struct {
	cfg         config.RouterConfig
	serviceName string
	logger      *zap.Logger

	state *state
	mux   *chi.Mux

	probeClient *http.Client
	proxyClient *http.Client
	probeSem    chan struct{}
}

// New constructs a Router and wires its routes.
func New(cfg config.RouterConfig, serviceName string, logger *zap.Logger) *Router {
	workers := cfg.BackgroundProbeWorkers
	if workers <= 0 {
		workers = 4
	}
	rt := &Router{
		cfg:         cfg,
		serviceName: serviceName,
		logger:      logger,
		state:       newState(cfg.RouteWindowSize, cfg.ServerlessBaseURL, cfg.ServerlessAuthToken, cfg.SkyserveBaseURL),
		probeClient: &http.Client{Timeout: cfg.ProbeTimeout},
		proxyClient: &http.Client{
			// Per-request timeouts are applied via context instead of the
			// client's own Timeout, since connect and read budgets differ
			// (≈2s connect, ≈210s read) and http.Client only offers one knob.
		},
		probeSem: make(chan struct{}, workers),
	}
	rt.mux = rt.buildMux()
	return rt
}

func (rt *Router) buildMux() *chi.Mux {
	m := chi.NewRouter()
	m.Use(middleware.RequestID)
	m.Use(middleware.Recoverer)
	m.Get("/router/health", rt.handleHealth)
	m.Post("/router/config", rt.handleConfig)
	// Registered last so it only catches everything else, at any depth.
	m.HandleFunc("/*", rt.handleProxy)
	return m
}

// ServeHTTP implements http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.mux.ServeHTTP(w, r)
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !rt.cfg.AllowHealthNoAuth && !isAuthorized(r, rt.cfg.APIKey, rt.cfg.APIKeyHeader) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	// Re-probe synchronously so the cost timing this response carries is
	// never stale, per spec.md §4.6.
	rt.checkSkyserveReadySync(r.Context())

	resp := map[string]any{
		"skyserve_ready":      rt.state.isReady(),
		"serverless_base_url": rt.state.getServerlessURL(),
		"skyserve_base_url":   rt.state.getSkyserveURL(),
		"route_stats":         rt.state.routeStats(),
	}
	rt.state.mu.Lock()
	if !rt.state.lastProbeTS.IsZero() {
		resp["last_probe_ts"] = rt.state.lastProbeTS.Unix()
	} else {
		resp["last_probe_ts"] = nil
	}
	if rt.state.lastProbeErr != "" {
		resp["last_probe_err"] = rt.state.lastProbeErr
	} else {
		resp["last_probe_err"] = nil
	}
	rt.state.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

type configUpdate struct {
	ServerlessURL       *string `json:"serverless_url"`
	ServerlessAuthToken *string `json:"serverless_auth_token"`
	SpotURL             *string `json:"spot_url"`
}

func (rt *Router) handleConfig(w http.ResponseWriter, r *http.Request) {
	// /router/config is never exempt from auth, even when
	// allow_health_no_auth covers /router/health.
	if !isAuthorized(r, rt.cfg.APIKey, rt.cfg.APIKeyHeader) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var body configUpdate
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body) // malformed/empty body: no-op update, not an error
	}

	if body.ServerlessURL != nil {
		rt.state.setServerlessURL(*body.ServerlessURL)
		rt.logger.Info("serverless URL updated", zap.String("service_name", rt.serviceName))
	}
	if body.ServerlessAuthToken != nil {
		rt.state.setServerlessAuthToken(*body.ServerlessAuthToken)
		rt.logger.Info("serverless auth token updated", zap.String("service_name", rt.serviceName))
	}
	if body.SpotURL != nil {
		rt.state.setSpotURL(*body.SpotURL)
		rt.logger.Info("spot URL updated", zap.String("service_name", rt.serviceName))
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleProxy is the reverse-proxy catch-all: it picks a backend, builds a
// safe target URL, filters headers, streams the upstream response, and
// applies the spot->serverless failover rule on connection failure or a
// pre-stream 5xx.
func (rt *Router) handleProxy(w http.ResponseWriter, r *http.Request) {
	serverlessURL := rt.state.getServerlessURL()
	skyserveURL := rt.state.getSkyserveURL()

	if serverlessURL == "" && skyserveURL == "" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "No backends configured yet"})
		return
	}
	if !isAuthorized(r, rt.cfg.APIKey, rt.cfg.APIKeyHeader) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var backendBase, backendName string
	switch {
	case skyserveURL != "" && rt.state.isReady():
		backendBase, backendName = skyserveURL, "spot"
		rt.state.recordRoute("spot")
	case serverlessURL != "":
		backendBase, backendName = serverlessURL, "serverless"
		rt.state.recordRoute("serverless")
		if skyserveURL != "" {
			rt.pokeSkyserveAsync()
			rt.checkSkyserveReadyAsync()
		}
	default:
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Spot backend not ready, no serverless fallback"})
		return
	}

	stats := rt.state.routeStats()
	if stats.Total > 0 && stats.Total%100 == 0 {
		rt.logger.Info("route summary",
			zap.Int64("total", stats.Total), zap.Int64("spot", stats.Spot), zap.Float64("pct_spot", stats.PctSpot),
			zap.Int64("serverless", stats.Serverless), zap.Float64("pct_serverless", stats.PctServerless),
			zap.Bool("spot_ready", rt.state.isReady()),
		)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	r.Body.Close()

	strippedAuth := backendName == "serverless"
	headers := filterIncoming(r.Header, rt.cfg.APIKeyHeader, strippedAuth)
	if backendName == "serverless" {
		if token := rt.state.getServerlessAuthToken(); token != "" {
			headers.Set("Authorization", "Bearer "+token)
		}
	}

	rt.forward(w, r, backendBase, backendName, headers, body, serverlessURL)
}

// forward issues the upstream call for the chosen backend and applies the
// spot->serverless failover rule when appropriate.
func (rt *Router) forward(w http.ResponseWriter, r *http.Request, backendBase, backendName string, headers http.Header, body []byte, serverlessURL string) {
	target, err := buildProxyURL(backendBase, r.URL.Path, r.URL.RawQuery)
	if err != nil {
		rt.logger.Warn("failed to build proxy target", zap.Error(err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), rt.cfg.UpstreamTimeout)
	defer cancel()

	start := time.Now()
	resp, err := rt.doUpstream(ctx, r.Method, target, headers, body)
	if err != nil {
		elapsed := time.Since(start)
		rt.state.addGPUSeconds(backendName, elapsed)
		metrics.GPUSecondsTotal.WithLabelValues(rt.serviceName, backendName).Add(elapsed.Seconds())

		if backendName == "spot" && serverlessURL != "" {
			rt.logger.Warn("spot request failed, retrying on serverless", zap.Error(err))
			rt.state.setReady(false, err.Error())
			metrics.RouteRequestsTotal.WithLabelValues(rt.serviceName, "spot", "failover").Inc()
			rt.failoverToServerless(w, r, headers, body, serverlessURL)
			return
		}
		metrics.RouteRequestsTotal.WithLabelValues(rt.serviceName, backendName, "error").Inc()
		rt.logger.Warn("upstream error", zap.Error(err))
		http.Error(w, "upstream_error", http.StatusBadGateway)
		return
	}

	// Failover on a pre-stream 5xx: nothing has been written to w yet, so
	// it's still safe to retry on serverless.
	if backendName == "spot" && resp.StatusCode >= 500 && serverlessURL != "" {
		resp.Body.Close()
		elapsed := time.Since(start)
		rt.state.addGPUSeconds("spot", elapsed)
		metrics.GPUSecondsTotal.WithLabelValues(rt.serviceName, "spot").Add(elapsed.Seconds())
		rt.logger.Warn("spot returned error status, retrying on serverless", zap.Int("status", resp.StatusCode))
		rt.state.setReady(false, httpStatusErr(resp.StatusCode))
		metrics.RouteRequestsTotal.WithLabelValues(rt.serviceName, "spot", "failover").Inc()
		rt.failoverToServerless(w, r, headers, body, serverlessURL)
		return
	}

	rt.streamResponse(w, resp, backendName, start)
	metrics.RouteRequestsTotal.WithLabelValues(rt.serviceName, backendName, "ok").Inc()
}

// failoverToServerless retries a failed spot request against serverless,
// swapping in the serverless auth token and counting it as a serverless
// route for stats per spec.md §4.6 rule 7.
func (rt *Router) failoverToServerless(w http.ResponseWriter, r *http.Request, headers http.Header, body []byte, serverlessURL string) {
	headers = headers.Clone()
	if token := rt.state.getServerlessAuthToken(); token != "" {
		headers.Set("Authorization", "Bearer "+token)
	} else {
		headers.Del("Authorization")
	}
	rt.state.recordRoute("serverless")

	target, err := buildProxyURL(serverlessURL, r.URL.Path, r.URL.RawQuery)
	if err != nil {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), rt.cfg.UpstreamTimeout)
	defer cancel()

	start := time.Now()
	resp, err := rt.doUpstream(ctx, r.Method, target, headers, body)
	if err != nil {
		elapsed := time.Since(start)
		rt.state.addGPUSeconds("serverless", elapsed)
		metrics.GPUSecondsTotal.WithLabelValues(rt.serviceName, "serverless").Add(elapsed.Seconds())
		metrics.RouteRequestsTotal.WithLabelValues(rt.serviceName, "serverless", "error").Inc()
		rt.logger.Warn("upstream error on failover", zap.Error(err))
		http.Error(w, "upstream_error", http.StatusBadGateway)
		return
	}
	rt.streamResponse(w, resp, "serverless", start)
	metrics.RouteRequestsTotal.WithLabelValues(rt.serviceName, "serverless", "ok").Inc()
}

func (rt *Router) doUpstream(ctx context.Context, method, target string, headers http.Header, body []byte) (*http.Response, error) {
	var bodyReader io.Reader
	if len(body) > 0 {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header = headers
	return rt.proxyClient.Do(req)
}

// streamResponse copies the upstream body to w chunk by chunk and charges
// the elapsed time (including the time spent streaming) to the backend's
// GPU-seconds counter once the body is fully drained.
func (rt *Router) streamResponse(w http.ResponseWriter, resp *http.Response, backendName string, start time.Time) {
	defer resp.Body.Close()
	outHeaders := filterOutgoing(resp.Header)
	for k, v := range outHeaders {
		for _, vv := range v {
			w.Header().Add(k, vv)
		}
	}
	w.WriteHeader(resp.StatusCode)

	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			w.Write(buf[:n])
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
		if err != nil {
			break
		}
	}

	elapsed := time.Since(start)
	rt.state.addGPUSeconds(backendName, elapsed)
	metrics.GPUSecondsTotal.WithLabelValues(rt.serviceName, backendName).Add(elapsed.Seconds())
	metrics.SetSpotReady(rt.serviceName, rt.state.isReady())
}

func httpStatusErr(code int) string {
	return "status=" + strconv.Itoa(code)
}
