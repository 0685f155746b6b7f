package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/crosslogic/tuna-orchestrator/internal/models"
	"github.com/crosslogic/tuna-orchestrator/pkg/events"
)

// DestroyOptions controls optional steps of DestroyHybrid.
type DestroyOptions struct {
	// SkipControllerCleanup skips the post-teardown poll-and-remove pass
	// on the shared SkyServe controller cluster.
	SkipControllerCleanup bool
}

// DestroyHybrid tears down the router, spot, and serverless legs of a
// deployment, in that order, continuing best-effort through failures in
// any one leg so the others still get a teardown attempt.
func (o *Orchestrator) DestroyHybrid(ctx context.Context, serviceName string, opts DestroyOptions) error {
	release, err := o.locker.TryAcquire(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("orchestrator: acquiring destroy lock for %q: %w", serviceName, err)
	}
	defer release(ctx)

	o.publish(ctx, events.EventDestroyStarted, serviceName, nil)

	rec, err := o.store.Load(ctx, serviceName)
	if err != nil {
		o.logger.Warn("destroying deployment with no stored record; falling back to conventional providers",
			zap.String("service_name", serviceName), zap.Error(err))
		rec = &models.DeploymentRecord{
			ServiceName:            serviceName,
			ServerlessProviderName: "modal",
			SpotProviderName:       "skyserve",
		}
	}

	var errs []error

	if rec.RouterEndpoint != "" || rec.RouterURL != "" {
		if terr := o.RouterLauncher.Teardown(ctx, rec); terr != nil {
			o.logger.Warn("router teardown failed", zap.String("service_name", serviceName), zap.Error(terr))
			errs = append(errs, fmt.Errorf("router teardown: %w", terr))
		}
	}

	if rec.SpotProviderName != "" {
		if p, perr := o.registry.Get(rec.SpotProviderName); perr == nil {
			if derr := p.Destroy(ctx, serviceName, rec.SpotMetadata); derr != nil {
				errs = append(errs, fmt.Errorf("spot destroy: %w", derr))
			}
		}
	}

	if rec.ServerlessProviderName != "" {
		if p, perr := o.registry.Get(rec.ServerlessProviderName); perr == nil {
			meta := rec.ServerlessMetadata
			if meta == nil || len(meta) == 0 {
				status, serr := p.Status(ctx, serviceName)
				if serr == nil && status != nil {
					meta = p.RecoverDestroyMetadata(ctx, serviceName, status.Metadata)
				} else {
					meta = p.RecoverDestroyMetadata(ctx, serviceName, nil)
				}
			}
			if derr := p.Destroy(ctx, serviceName, meta); derr != nil {
				errs = append(errs, fmt.Errorf("serverless destroy: %w", derr))
			}
		}
	}

	if !opts.SkipControllerCleanup && rec.SpotProviderName == "skyserve" {
		if cerr := o.cleanupServeController(ctx); cerr != nil {
			o.logger.Warn("serve controller cleanup did not complete", zap.Error(cerr))
		}
	}

	if len(errs) == 0 {
		if uerr := o.store.UpdateStatus(ctx, serviceName, models.StatusDestroyed); uerr != nil {
			o.logger.Warn("failed to mark deployment destroyed", zap.String("service_name", serviceName), zap.Error(uerr))
		}
	}

	if len(errs) > 0 {
		o.publish(ctx, events.EventDestroyFailed, serviceName, nil)
		return fmt.Errorf("orchestrator: destroy of %q had %d failure(s): %v", serviceName, len(errs), errs)
	}
	o.publish(ctx, events.EventDestroyCompleted, serviceName, nil)
	return nil
}

// cleanupServeController polls sky serve status until every service on
// the shared controller has reached a terminal state (or the poll budget
// is exhausted), then tears the controller cluster down if it's empty.
// This is a best-effort pass — a stuck controller is logged, not fatal.
func (o *Orchestrator) cleanupServeController(ctx context.Context) error {
	// The concrete polling loop lives alongside the spot provider's own
	// SkyPilot client; here it's invoked through the registry so the
	// orchestrator doesn't need its own SkyPilot client wiring.
	p, err := o.registry.Get("skyserve")
	if err != nil {
		return err
	}
	type cleaner interface {
		CleanupController(ctx context.Context) error
	}
	if c, ok := p.(cleaner); ok {
		return c.CleanupController(ctx)
	}
	return nil
}

// StatusHybrid aggregates router/serverless/spot status for a deployment.
func (o *Orchestrator) StatusHybrid(ctx context.Context, serviceName string) (map[string]any, error) {
	rec, err := o.store.Load(ctx, serviceName)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: loading record for %q: %w", serviceName, err)
	}

	out := map[string]any{}

	if rec.SpotProviderName == "" && rec.RouterURL == "" {
		out["mode"] = "serverless-only"
		out["router"] = nil
		out["spot"] = nil
		if p, perr := o.registry.Get(rec.ServerlessProviderName); perr == nil {
			s, _ := p.Status(ctx, serviceName)
			out["serverless"] = s
		}
		return out, nil
	}

	out["mode"] = "hybrid"

	if rec.RouterURL != "" {
		health, herr := fetchRouterHealth(ctx, rec.RouterURL)
		if herr != nil {
			out["router"] = map[string]any{"status": "unreachable"}
		} else {
			out["router"] = health
		}
	} else {
		out["router"] = map[string]any{"status": "no cluster found"}
	}

	if rec.SpotProviderName != "" {
		if p, perr := o.registry.Get(rec.SpotProviderName); perr == nil {
			s, _ := p.Status(ctx, serviceName)
			out["spot"] = s
		}
	}
	if rec.ServerlessProviderName != "" {
		if p, perr := o.registry.Get(rec.ServerlessProviderName); perr == nil {
			s, _ := p.Status(ctx, serviceName)
			out["serverless"] = s
		}
	}
	return out, nil
}

func fetchRouterHealth(ctx context.Context, routerURL string) (map[string]any, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, routerURL+"/router/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	health := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("decoding router health: %w", err)
	}
	health["url"] = routerURL
	return health, nil
}
