package router

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crosslogic/tuna-orchestrator/internal/config"
)

func testConfig(serverlessURL, spotURL string) config.RouterConfig {
	return config.RouterConfig{
		ServerlessBaseURL:      serverlessURL,
		SkyserveBaseURL:        spotURL,
		SkyserveReadyPath:      "/health",
		SkyservePokePath:       "/health",
		ProbeTimeout:           200 * time.Millisecond,
		PokeTimeout:            200 * time.Millisecond,
		UpstreamTimeout:        2 * time.Second,
		CheckMinInterval:       10 * time.Millisecond,
		PokeMinInterval:        10 * time.Millisecond,
		APIKeyHeader:           "x-api-key",
		RouteWindowSize:        50,
		BackgroundProbeWorkers: 2,
	}
}

func TestHandleProxy_NoBackendsConfigured(t *testing.T) {
	rt := New(testConfig("", ""), "svc", zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/generate", nil)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleProxy_RoutesToServerlessWhenSpotNotReady(t *testing.T) {
	serverless := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("served-by-serverless"))
	}))
	defer serverless.Close()

	rt := New(testConfig(serverless.URL, ""), "svc", zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/generate", nil)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "served-by-serverless", rec.Body.String())
	assert.Equal(t, int64(1), rt.state.routeStats().Serverless)
}

func TestHandleProxy_PrefersSpotWhenReady(t *testing.T) {
	spot := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("served-by-spot"))
	}))
	defer spot.Close()
	serverless := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("served-by-serverless"))
	}))
	defer serverless.Close()

	rt := New(testConfig(serverless.URL, spot.URL), "svc", zap.NewNop())
	rt.state.setReady(true, "")

	req := httptest.NewRequest(http.MethodGet, "/generate", nil)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "served-by-spot", rec.Body.String())
	assert.Equal(t, int64(1), rt.state.routeStats().Spot)
}

func TestHandleProxy_FailsOverFromSpotToServerlessOn5xx(t *testing.T) {
	spot := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer spot.Close()
	serverless := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("failover-response"))
	}))
	defer serverless.Close()

	rt := New(testConfig(serverless.URL, spot.URL), "svc", zap.NewNop())
	rt.state.setReady(true, "")

	req := httptest.NewRequest(http.MethodGet, "/generate", nil)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "failover-response", rec.Body.String())
	assert.False(t, rt.state.isReady(), "a 5xx from spot should mark it not-ready")

	stats := rt.state.routeStats()
	assert.Equal(t, int64(1), stats.Spot, "the original spot attempt still counts as a spot route")
	assert.Equal(t, int64(1), stats.Serverless, "the failover retry counts as a serverless route")
}

func TestHandleProxy_AuthRequired(t *testing.T) {
	serverless := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer serverless.Close()

	cfg := testConfig(serverless.URL, "")
	cfg.APIKey = "secret"
	rt := New(cfg, "svc", zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/generate", nil)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/generate", nil)
	req2.Header.Set("x-api-key", "secret")
	rec2 := httptest.NewRecorder()
	rt.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusOK, rec2.Code)
}

func TestHandleConfig_UpdatesBackendURLs(t *testing.T) {
	rt := New(testConfig("", ""), "svc", zap.NewNop())

	body := bytes.NewBufferString(`{"serverless_url":"http://example.test/","spot_url":"http://spot.test/","serverless_auth_token":"tok"}`)
	req := httptest.NewRequest(http.MethodPost, "/router/config", body)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://example.test", rt.state.getServerlessURL())
	assert.Equal(t, "http://spot.test", rt.state.getSkyserveURL())
	assert.Equal(t, "tok", rt.state.getServerlessAuthToken())
}

func TestHandleHealth_ExemptFromAuthWhenConfigured(t *testing.T) {
	cfg := testConfig("", "")
	cfg.APIKey = "secret"
	cfg.AllowHealthNoAuth = true
	rt := New(cfg, "svc", zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/router/health", nil)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSpotReadyStateMachine_AccumulatesCumulativeSeconds(t *testing.T) {
	s := newState(50, "", "", "")
	s.setReady(true, "")
	time.Sleep(20 * time.Millisecond)
	s.setReady(false, "probe failed")

	stats := s.routeStats()
	assert.Greater(t, stats.SpotReadySeconds, 0.0)
}

func TestBuildProxyURL_StripsInjectedSchemeAndHostFromPath(t *testing.T) {
	// A path that smuggles a scheme://host is reduced to its path
	// component only — the request can never be redirected off-backend.
	target, err := buildProxyURL("http://backend.internal", "http://evil.test/steal", "")
	require.NoError(t, err)
	assert.Equal(t, "http://backend.internal/steal", target)
}

func TestBuildProxyURL_CollapsesDotDotSegments(t *testing.T) {
	target, err := buildProxyURL("http://backend.internal", "/../../etc/passwd", "")
	require.NoError(t, err)
	assert.Equal(t, "http://backend.internal/etc/passwd", target)
}
