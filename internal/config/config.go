package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the orchestrator and router.
type Config struct {
	State     StateConfig
	Providers ProviderCredentials
	Router    RouterConfig
	Lock      LockConfig
	Launcher  LauncherConfig
}

// LauncherConfig configures how the orchestrator gets the router binary
// onto the colocated/separate-VM controller over SSH.
type LauncherConfig struct {
	SSHKeyPath       string
	SSHUser          string
	RouterBinaryPath string
	RouterRemotePort int
	// RouterColocated, when true, zeroes out the router's own hourly cost
	// in the cost dashboard (spec.md §4.7: "0 if colocated").
	RouterColocated bool
}

// StateConfig controls where the deployment-record store lives.
type StateConfig struct {
	// Dir is the directory containing deployments.db. Defaults to ~/.tuna,
	// overridable via TUNA_STATE_DIR.
	Dir string
}

// ProviderCredentials carries the environment variables forwarded to each
// cloud SDK. Providers read only the fields they need; an empty value means
// "not configured" and surfaces as a preflight failure, not a panic.
type ProviderCredentials struct {
	GoogleCloudProject  string
	GoogleCloudRegion   string
	AzureSubscriptionID string
	AzureResourceGroup  string
	AzureRegion         string
	AzureEnvironment    string
	HFToken             string
	RunPodAPIKey        string
	BasetenAPIKey       string
	CerebriumAPIKey     string
}

// RouterConfig mirrors the meta_lb.py env surface read by a launched
// router process.
type RouterConfig struct {
	ServerlessBaseURL      string
	ServerlessAuthToken    string
	SkyserveBaseURL        string
	SkyserveReadyPath      string
	SkyservePokePath       string
	ProbeTimeout           time.Duration
	PokeTimeout            time.Duration
	UpstreamTimeout        time.Duration
	CheckMinInterval       time.Duration
	PokeMinInterval        time.Duration
	APIKey                 string
	APIKeyHeader           string
	AllowHealthNoAuth      bool
	RouteWindowSize        int
	BackgroundProbeWorkers int
	Port                   int
}

// LockConfig configures the optional distributed launch lock.
type LockConfig struct {
	// RedisURL, when set, backs the launch lock with Redis so two
	// orchestrator processes can't race on the same service_name. Empty
	// means fall back to an in-process lock.
	RedisURL string
	TTL      time.Duration
}

// Load reads Config from the process environment.
func Load() Config {
	return Config{
		State: StateConfig{
			Dir: getEnv("TUNA_STATE_DIR", defaultStateDir()),
		},
		Providers: ProviderCredentials{
			GoogleCloudProject:  getEnv("GOOGLE_CLOUD_PROJECT", ""),
			GoogleCloudRegion:   getEnv("GOOGLE_CLOUD_REGION", "us-central1"),
			AzureSubscriptionID: getEnv("AZURE_SUBSCRIPTION_ID", ""),
			AzureResourceGroup:  getEnv("AZURE_RESOURCE_GROUP", ""),
			AzureRegion:         getEnv("AZURE_REGION", ""),
			AzureEnvironment:    getEnv("AZURE_ENVIRONMENT", "AzurePublicCloud"),
			HFToken:             getEnv("HF_TOKEN", ""),
			RunPodAPIKey:        getEnv("RUNPOD_API_KEY", ""),
			BasetenAPIKey:       getEnv("BASETEN_API_KEY", ""),
			CerebriumAPIKey:     getEnv("CEREBRIUM_API_KEY", ""),
		},
		Router: RouterConfig{
			ServerlessBaseURL:      getEnv("SERVERLESS_BASE_URL", ""),
			ServerlessAuthToken:    getEnv("SERVERLESS_AUTH_TOKEN", ""),
			SkyserveBaseURL:        getEnv("SKYSERVE_BASE_URL", ""),
			SkyserveReadyPath:      getEnv("SKYSERVE_READY_PATH", "/health"),
			SkyservePokePath:       getEnv("SKYSERVE_POKE_PATH", "/health"),
			ProbeTimeout:           getEnvAsSeconds("PROBE_TIMEOUT_SECONDS", 1.0),
			PokeTimeout:            getEnvAsSeconds("POKE_TIMEOUT_SECONDS", 0.3),
			UpstreamTimeout:        getEnvAsSeconds("UPSTREAM_TIMEOUT_SECONDS", 210.0),
			CheckMinInterval:       getEnvAsSeconds("CHECK_MIN_INTERVAL_SECONDS", 1.0),
			PokeMinInterval:        getEnvAsSeconds("POKE_MIN_INTERVAL_SECONDS", 0.5),
			APIKey:                 getEnv("API_KEY", ""),
			APIKeyHeader:           getEnv("API_KEY_HEADER", "x-api-key"),
			AllowHealthNoAuth:      getEnvAsBool("ALLOW_HEALTH_NO_AUTH", false),
			RouteWindowSize:        getEnvAsInt("ROUTE_WINDOW_SIZE", 200),
			BackgroundProbeWorkers: getEnvAsInt("BG_MAX_WORKERS", 4),
			Port:                   getEnvAsInt("PORT", 8080),
		},
		Lock: LockConfig{
			RedisURL: getEnv("TUNA_LOCK_REDIS_URL", ""),
			TTL:      getEnvAsSeconds("TUNA_LOCK_TTL_SECONDS", 120.0),
		},
		Launcher: LauncherConfig{
			SSHKeyPath:       getEnv("TUNA_SSH_KEY_PATH", ""),
			SSHUser:          getEnv("TUNA_SSH_USER", "ubuntu"),
			RouterBinaryPath: getEnv("TUNA_ROUTER_BINARY_PATH", ""),
			RouterRemotePort: getEnvAsInt("TUNA_ROUTER_REMOTE_PORT", 8080),
			RouterColocated:  getEnvAsBool("TUNA_ROUTER_COLOCATED", true),
		},
	}
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tuna"
	}
	return home + string(os.PathSeparator) + ".tuna"
}

// Helper functions for environment variable parsing, same shape as the
// control-plane config loader this was adapted from.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSeconds(key string, defaultSeconds float64) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return time.Duration(defaultSeconds * float64(time.Second))
	}
	f, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return time.Duration(defaultSeconds * float64(time.Second))
	}
	return time.Duration(f * float64(time.Second))
}
