package router

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// checkSkyserveReadySync GETs the spot readiness path with a short timeout
// and updates spot_ready immediately. Used by /router/health so the
// reported state — and the cost timing derived from it — is never stale.
func (rt *Router) checkSkyserveReadySync(ctx context.Context) {
	skyserveURL := rt.state.getSkyserveURL()
	if skyserveURL == "" {
		return
	}
	ready, probeErr := rt.probeReady(ctx, skyserveURL)
	rt.state.setReady(ready, probeErr)
}

// checkSkyserveReadyAsync is the rate-limited variant fired as a side
// effect of routing a request to serverless, so a flood of requests
// doesn't turn into a flood of readiness probes.
func (rt *Router) checkSkyserveReadyAsync() {
	skyserveURL := rt.state.getSkyserveURL()
	if skyserveURL == "" {
		return
	}
	if !rt.state.shouldCheck(rt.cfg.CheckMinInterval) {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), rt.cfg.ProbeTimeout)
		defer cancel()
		ready, probeErr := rt.probeReady(ctx, skyserveURL)
		rt.state.setReady(ready, probeErr)
	}()
}

func (rt *Router) probeReady(ctx context.Context, skyserveURL string) (bool, string) {
	readyURL := joinURL(skyserveURL, rt.cfg.SkyserveReadyPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, readyURL, nil)
	if err != nil {
		return false, err.Error()
	}
	resp, err := rt.probeClient.Do(req)
	if err != nil {
		return false, err.Error()
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return true, ""
	}
	return false, fmt.Sprintf("status=%d", resp.StatusCode)
}

// pokeSkyserveAsync fires a rate-limited wake GET at the spot backend's
// poke path, run on the router's bounded probe worker pool, to trigger
// scale-up while a request is being served by serverless.
func (rt *Router) pokeSkyserveAsync() {
	skyserveURL := rt.state.getSkyserveURL()
	if skyserveURL == "" {
		return
	}
	if !rt.state.shouldPoke(rt.cfg.PokeMinInterval) {
		return
	}
	pokeURL := joinURL(skyserveURL, rt.cfg.SkyservePokePath)
	select {
	case rt.probeSem <- struct{}{}:
	default:
		return // worker pool saturated; skip this poke rather than block
	}
	go func() {
		defer func() { <-rt.probeSem }()
		ctx, cancel := context.WithTimeout(context.Background(), rt.cfg.PokeTimeout)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pokeURL, nil)
		if err != nil {
			return
		}
		resp, err := rt.probeClient.Do(req)
		if err != nil {
			rt.logger.Debug("poke failed", zap.Error(err))
			return
		}
		resp.Body.Close()
	}()
}
