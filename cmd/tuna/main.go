// Command tuna is the orchestrator CLI: deploy, destroy, status, list,
// check, show-gpus, cost, and the benchmark sub-commands, mirroring the
// sub-command surface of the Python CLI this project replaces. Exit codes
// follow spec.md §6: 0 success, 1 operational error, 2 argument error.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/crosslogic/tuna-orchestrator/internal/benchmark"
	"github.com/crosslogic/tuna-orchestrator/internal/catalog"
	"github.com/crosslogic/tuna-orchestrator/internal/config"
	"github.com/crosslogic/tuna-orchestrator/internal/cost"
	"github.com/crosslogic/tuna-orchestrator/internal/lock"
	"github.com/crosslogic/tuna-orchestrator/internal/models"
	"github.com/crosslogic/tuna-orchestrator/internal/orchestrator"
	"github.com/crosslogic/tuna-orchestrator/internal/providers"
	"github.com/crosslogic/tuna-orchestrator/internal/state"
	"github.com/crosslogic/tuna-orchestrator/pkg/events"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: tuna <deploy|destroy|status|list|check|show-gpus|cost|benchmark> [flags]")
		return 2
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	switch args[0] {
	case "deploy":
		return cmdDeploy(ctx, cfg, logger, args[1:])
	case "destroy":
		return cmdDestroy(ctx, cfg, logger, args[1:])
	case "status":
		return cmdStatus(ctx, cfg, logger, args[1:])
	case "list":
		return cmdList(ctx, cfg, args[1:])
	case "check":
		return cmdCheck(ctx, cfg, logger, args[1:])
	case "show-gpus":
		return cmdShowGPUs()
	case "cost":
		return cmdCost(ctx, cfg, args[1:])
	case "benchmark":
		return cmdBenchmark(ctx, cfg, logger, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown sub-command %q\n", args[0])
		return 2
	}
}

func newOrchestrator(cfg config.Config, logger *zap.Logger) (*orchestrator.Orchestrator, *state.Store, error) {
	store, err := state.Open(cfg.State.Dir)
	if err != nil {
		return nil, nil, fmt.Errorf("opening state store: %w", err)
	}
	registry := providers.NewRegistry(cfg.Providers, logger)
	locker, err := lock.NewLocker(cfg.Lock.RedisURL, cfg.Lock.TTL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing launch lock: %w", err)
	}
	bus := events.NewBus(logger)
	launcher := orchestrator.NewSSHRouterLauncher(
		cfg.Launcher.SSHKeyPath, cfg.Launcher.SSHUser, cfg.Launcher.RouterBinaryPath,
		cfg.Launcher.RouterRemotePort, logger,
	)
	return orchestrator.New(registry, store, locker, bus, launcher, logger), store, nil
}

func cmdDeploy(ctx context.Context, cfg config.Config, logger *zap.Logger, args []string) int {
	fs := flag.NewFlagSet("deploy", flag.ContinueOnError)
	model := fs.String("model", "", "model name (required)")
	gpu := fs.String("gpu", "", "GPU type (required)")
	gpuCount := fs.Int("gpu-count", 1, "number of GPUs")
	tpSize := fs.Int("tp-size", 1, "tensor-parallel size")
	maxModelLen := fs.Int("max-model-len", 4096, "max model context length")
	serverlessProvider := fs.String("serverless-provider", "modal", "serverless provider")
	spotsCloud := fs.String("spots-cloud", "aws", "spot cloud")
	region := fs.String("region", "", "cloud region")
	coldStartMode := fs.String("cold-start-mode", "fast_boot", "cold start mode")
	serviceName := fs.String("service-name", "", "override the generated service name")
	public := fs.Bool("public", false, "expose endpoints publicly")
	serverlessOnly := fs.Bool("serverless-only", false, "skip the spot leg entirely")
	separateVM := fs.Bool("use-different-vm-for-lb", false, "launch the router on a dedicated VM instead of colocating")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *model == "" || *gpu == "" {
		fmt.Fprintln(os.Stderr, "deploy: --model and --gpu are required")
		return 2
	}

	req, err := models.NewDeployRequest(*model, catalog.NormalizeGPUName(*gpu))
	if err != nil {
		fmt.Fprintf(os.Stderr, "deploy: %v\n", err)
		return 1
	}
	req.GPUCount = *gpuCount
	req.TPSize = *tpSize
	req.MaxModelLen = *maxModelLen
	req.ServerlessProvider = *serverlessProvider
	req.SpotsCloud = *spotsCloud
	req.Region = *region
	req.ColdStartMode = *coldStartMode
	req.Public = *public
	req.ServerlessOnly = *serverlessOnly
	if *serviceName != "" {
		req.ServiceName = *serviceName
	}

	orch, store, err := newOrchestrator(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "deploy: %v\n", err)
		return 1
	}
	_ = store

	var result *models.HybridDeployment
	if req.ServerlessOnly {
		result, err = orch.LaunchServerlessOnly(ctx, req)
	} else {
		result, err = orch.LaunchHybrid(ctx, req, *separateVM)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "deploy failed: %v\n", err)
		return 1
	}

	fmt.Printf("deployed %s\n", req.ServiceName)
	if result.RouterURL != "" {
		fmt.Printf("  router:     %s\n", result.RouterURL)
	}
	if result.Serverless != nil && result.Serverless.OK() {
		fmt.Printf("  serverless: %s\n", result.Serverless.EndpointURL)
	}
	if result.Spot != nil && result.Spot.OK() {
		fmt.Printf("  spot:       %s\n", result.Spot.EndpointURL)
	}
	return 0
}

func cmdDestroy(ctx context.Context, cfg config.Config, logger *zap.Logger, args []string) int {
	fs := flag.NewFlagSet("destroy", flag.ContinueOnError)
	serviceName := fs.String("service-name", "", "service to destroy")
	all := fs.Bool("all", false, "destroy every non-destroyed deployment")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if (*serviceName == "") == !*all {
		fmt.Fprintln(os.Stderr, "destroy: exactly one of --service-name or --all is required")
		return 2
	}

	orch, store, err := newOrchestrator(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "destroy: %v\n", err)
		return 1
	}

	targets := []string{*serviceName}
	if *all {
		records, err := store.List(ctx, "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "destroy: listing deployments: %v\n", err)
			return 1
		}
		targets = targets[:0]
		for _, rec := range records {
			if rec.Status != models.StatusDestroyed {
				targets = append(targets, rec.ServiceName)
			}
		}
	}

	exit := 0
	for _, name := range targets {
		if err := orch.DestroyHybrid(ctx, name, orchestrator.DestroyOptions{}); err != nil {
			fmt.Fprintf(os.Stderr, "destroy %s failed: %v\n", name, err)
			exit = 1
			continue
		}
		fmt.Printf("destroyed %s\n", name)
	}
	return exit
}

func cmdStatus(ctx context.Context, cfg config.Config, logger *zap.Logger, args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	serviceName := fs.String("service-name", "", "service to inspect (required)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *serviceName == "" {
		fmt.Fprintln(os.Stderr, "status: --service-name is required")
		return 2
	}

	orch, _, err := newOrchestrator(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return 1
	}
	result, err := orch.StatusHybrid(ctx, *serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status failed: %v\n", err)
		return 1
	}
	for k, v := range result {
		fmt.Printf("%s: %v\n", k, v)
	}
	return 0
}

func cmdList(ctx context.Context, cfg config.Config, args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	statusFilter := fs.String("status", "", "filter by status")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	store, err := state.Open(cfg.State.Dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list: %v\n", err)
		return 1
	}
	records, err := store.List(ctx, *statusFilter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list: %v\n", err)
		return 1
	}
	for _, rec := range records {
		fmt.Printf("%-24s %-10s %-20s %s\n", rec.ServiceName, rec.Status, rec.ModelName, rec.CreatedAt)
	}
	return 0
}

func cmdCheck(ctx context.Context, cfg config.Config, logger *zap.Logger, args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	provider := fs.String("provider", "", "provider to check (required)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *provider == "" {
		fmt.Fprintln(os.Stderr, "check: --provider is required")
		return 2
	}

	registry := providers.NewRegistry(cfg.Providers, logger)
	p, err := registry.Get(*provider)
	if err != nil {
		fmt.Fprintf(os.Stderr, "check: %v\n", err)
		return 2
	}
	req, _ := models.NewDeployRequest("check-probe", "A100")
	result, err := p.Preflight(ctx, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "check failed: %v\n", err)
		return 1
	}
	for _, c := range result.Checks {
		status := "ok"
		if !c.Passed {
			status = "FAIL: " + c.Message
		}
		fmt.Printf("  %-30s %s\n", c.Name, status)
	}
	if !result.OK() {
		return 1
	}
	return 0
}

func cmdShowGPUs() int {
	fmt.Println("supported GPU names (normalized form shown):")
	for _, g := range []string{"a100", "a100-80", "h100", "l4", "l40s", "t4", "v100", "a10g", "a10"} {
		fmt.Printf("  %-10s -> %s\n", g, catalog.NormalizeGPUName(g))
	}
	return 0
}

func cmdCost(ctx context.Context, cfg config.Config, args []string) int {
	fs := flag.NewFlagSet("cost", flag.ContinueOnError)
	serviceName := fs.String("service-name", "", "service to cost out (required)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *serviceName == "" {
		fmt.Fprintln(os.Stderr, "cost: --service-name is required")
		return 2
	}

	store, err := state.Open(cfg.State.Dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cost: %v\n", err)
		return 1
	}
	rec, err := store.Load(ctx, *serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cost: %v\n", err)
		return 1
	}

	client := &http.Client{Timeout: 10 * time.Second}
	report, err := cost.Compute(ctx, client, rec, cfg.Launcher.RouterColocated)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cost: %v\n", err)
		return 1
	}
	fmt.Println(report.Summary())
	return 0
}

func cmdBenchmark(ctx context.Context, cfg config.Config, logger *zap.Logger, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: tuna benchmark <fresh-cold|warm-cold> [flags]")
		return 2
	}
	fs := flag.NewFlagSet("benchmark", flag.ContinueOnError)
	provider := fs.String("provider", "", "provider to benchmark (required)")
	gpu := fs.String("gpu", "", "GPU type (required)")
	model := fs.String("model", "", "model name (required)")
	endpoint := fs.String("endpoint-url", "", "existing endpoint URL (warm-cold)")
	health := fs.String("health-url", "", "existing health URL (warm-cold); defaults to endpoint/health")
	repeat := fs.Int("repeat", 3, "number of warm-cold repeats")
	idleWaitSec := fs.Int("idle-wait", 300, "seconds to wait for scale-to-zero per repeat")
	output := fs.String("output", "table", "output format: table, json, csv")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	if *provider == "" || *gpu == "" || *model == "" {
		fmt.Fprintln(os.Stderr, "benchmark: --provider, --gpu, and --model are required")
		return 2
	}

	headers, err := benchmark.AuthHeaders(*provider, cfg.Providers.RunPodAPIKey, cfg.Providers.BasetenAPIKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "benchmark: %v\n", err)
		return 1
	}
	client := &http.Client{}

	switch args[0] {
	case "warm-cold":
		if *endpoint == "" {
			fmt.Fprintln(os.Stderr, "benchmark warm-cold: --endpoint-url is required")
			return 2
		}
		healthURL := *health
		if healthURL == "" {
			healthURL = *endpoint + "/health"
		}
		results, err := benchmark.RunWarmColdStart(ctx, client, logger, benchmark.WarmColdStartOptions{
			Provider: *provider, GPU: *gpu, Model: *model,
			EndpointURL: *endpoint, HealthURL: healthURL,
			Headers: headers, Repeat: *repeat, IdleWait: time.Duration(*idleWaitSec) * time.Second,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "benchmark failed: %v\n", err)
			return 1
		}
		benchmark.PrintSummary(os.Stdout, results, *output)
		return 0
	case "fresh-cold":
		orch, _, err := newOrchestrator(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "benchmark: %v\n", err)
			return 1
		}
		result, err := benchmark.RunFreshColdStart(ctx, client, logger, benchmark.FreshColdStartOptions{
			Provider: *provider, GPU: *gpu, Model: *model, Headers: headers,
			Deploy: func(ctx context.Context) (string, string, map[string]string, error) {
				req, derr := models.NewDeployRequest(*model, catalog.NormalizeGPUName(*gpu))
				if derr != nil {
					return "", "", nil, derr
				}
				req.ServerlessProvider = *provider
				req.ServerlessOnly = true
				req.Scaling.Serverless.ScaledownWindow = 30
				deployed, derr := orch.LaunchServerlessOnly(ctx, req)
				if derr != nil {
					return "", "", nil, derr
				}
				if deployed.Serverless == nil || !deployed.Serverless.OK() {
					return "", "", nil, fmt.Errorf("serverless deploy did not return an endpoint")
				}
				return deployed.Serverless.EndpointURL, deployed.Serverless.HealthURL, deployed.Serverless.Metadata, nil
			},
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "benchmark failed: %v\n", err)
			return 1
		}
		benchmark.PrintSummary(os.Stdout, []benchmark.RunResult{result}, *output)
		if !result.OK() {
			return 1
		}
		return 0
	default:
		fmt.Fprintf(os.Stderr, "benchmark: unknown scenario %q\n", args[0])
		return 2
	}
}
