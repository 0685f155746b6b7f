package router

import (
	"sync"
	"time"
)

// state holds every piece of mutable router data behind one mutex — the
// Go analogue of meta_lb.py's module-level globals and threading.Lock.
// Critical sections stay short: field reads/writes only, never upstream I/O.
type state struct {
	mu sync.Mutex

	serverlessBaseURL   string
	serverlessAuthToken string
	skyserveBaseURL     string

	spotReady         bool
	lastProbeTS       time.Time
	lastProbeErr      string
	lastCheckTS       time.Time
	lastPokeTS        time.Time
	spotReadySince    time.Time
	spotReadyHasSince bool
	spotReadyCumSec   float64

	reqTotal        int64
	reqToSpot       int64
	reqToServerless int64
	recentRoutes    []string // FIFO window, capped at windowSize
	windowSize      int

	startTime            time.Time
	gpuSecondsSpot       float64
	gpuSecondsServerless float64
}

func newState(windowSize int, serverlessURL, serverlessToken, skyserveURL string) *state {
	if windowSize <= 0 {
		windowSize = 200
	}
	return &state{
		serverlessBaseURL:   trimTrailingSlash(serverlessURL),
		serverlessAuthToken: serverlessToken,
		skyserveBaseURL:     trimTrailingSlash(skyserveURL),
		windowSize:          windowSize,
		startTime:           time.Now(),
	}
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

func (s *state) getServerlessURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverlessBaseURL
}

func (s *state) getSkyserveURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skyserveBaseURL
}

func (s *state) getServerlessAuthToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverlessAuthToken
}

func (s *state) setServerlessURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverlessBaseURL = trimTrailingSlash(url)
}

func (s *state) setServerlessAuthToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverlessAuthToken = token
}

func (s *state) setSpotURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skyserveBaseURL = trimTrailingSlash(url)
}

// setReady applies a spot_ready transition, accumulating cumulative ready
// time on true->false edges exactly per spec.md §4.6's state-machine rules.
func (s *state) setReady(ready bool, probeErr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if s.spotReady && !ready && s.spotReadyHasSince {
		s.spotReadyCumSec += now.Sub(s.spotReadySince).Seconds()
		s.spotReadyHasSince = false
	} else if !s.spotReady && ready {
		s.spotReadySince = now
		s.spotReadyHasSince = true
	}
	s.spotReady = ready
	s.lastProbeTS = now
	s.lastProbeErr = probeErr
}

func (s *state) isReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spotReady
}

// shouldCheck reports whether enough time has passed since the last async
// readiness check, and if so reserves the slot by bumping lastCheckTS.
func (s *state) shouldCheck(minInterval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if now.Sub(s.lastCheckTS) < minInterval {
		return false
	}
	s.lastCheckTS = now
	return true
}

// shouldPoke is shouldCheck's counterpart for the wake-poke rate limit.
func (s *state) shouldPoke(minInterval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if now.Sub(s.lastPokeTS) < minInterval {
		return false
	}
	s.lastPokeTS = now
	return true
}

func (s *state) recordRoute(backend string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqTotal++
	if backend == "spot" {
		s.reqToSpot++
	} else {
		s.reqToServerless++
	}
	s.recentRoutes = append(s.recentRoutes, backend)
	if len(s.recentRoutes) > s.windowSize {
		s.recentRoutes = s.recentRoutes[len(s.recentRoutes)-s.windowSize:]
	}
}

func (s *state) addGPUSeconds(backend string, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if backend == "spot" {
		s.gpuSecondsSpot += elapsed.Seconds()
	} else {
		s.gpuSecondsServerless += elapsed.Seconds()
	}
}

// RouteStats is the JSON-visible snapshot returned by /router/health and
// consumed by the cost dashboard (C7).
type RouteStats struct {
	Total                int64   `json:"total"`
	Spot                 int64   `json:"spot"`
	Serverless           int64   `json:"serverless"`
	PctSpot              float64 `json:"pct_spot"`
	PctServerless        float64 `json:"pct_serverless"`
	WindowTotal          int     `json:"window_total"`
	WindowSpot           int     `json:"window_spot"`
	WindowServerless     int     `json:"window_serverless"`
	GPUSecondsSpot       float64 `json:"gpu_seconds_spot"`
	GPUSecondsServerless float64 `json:"gpu_seconds_serverless"`
	UptimeSeconds        float64 `json:"uptime_seconds"`
	SpotReadySeconds     float64 `json:"spot_ready_seconds"`
}

func (s *state) routeStats() RouteStats {
	s.mu.Lock()
	total := s.reqTotal
	spot := s.reqToSpot
	svl := s.reqToServerless
	recent := append([]string(nil), s.recentRoutes...)
	gpuSpot := s.gpuSecondsSpot
	gpuSvl := s.gpuSecondsServerless
	spotReadySec := s.spotReadyCumSec
	if s.spotReadyHasSince {
		spotReadySec += time.Since(s.spotReadySince).Seconds()
	}
	s.mu.Unlock()

	recentSpot := 0
	for _, r := range recent {
		if r == "spot" {
			recentSpot++
		}
	}

	stats := RouteStats{
		Total:                total,
		Spot:                 spot,
		Serverless:           svl,
		WindowTotal:          len(recent),
		WindowSpot:           recentSpot,
		WindowServerless:     len(recent) - recentSpot,
		GPUSecondsSpot:       round2(gpuSpot),
		GPUSecondsServerless: round2(gpuSvl),
		UptimeSeconds:        round2(time.Since(s.startTime).Seconds()),
		SpotReadySeconds:     round2(spotReadySec),
	}
	if total > 0 {
		stats.PctSpot = 100.0 * float64(spot) / float64(total)
		stats.PctServerless = 100.0 * float64(svl) / float64(total)
	}
	return stats
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}
