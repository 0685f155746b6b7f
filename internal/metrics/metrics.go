// Package metrics exposes the prometheus counters, gauges and histograms:
// GPU-second accounting, route split and spot readiness, which the router
// updates, and deploy/destroy duration histograms, which are registered
// but not observed anywhere in this module.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GPUSecondsTotal accumulates wall-clock GPU time served per backend
	// and service, the router-side counterpart of spec.md §4.7's cost
	// formulas.
	GPUSecondsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tuna_gpu_seconds_total",
			Help: "Cumulative GPU-seconds served, by service and backend",
		},
		[]string{"service_name", "backend"},
	)

	RouteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tuna_router_requests_total",
			Help: "Requests proxied by the meta load balancer, by backend and outcome",
		},
		[]string{"service_name", "backend", "outcome"},
	)

	SpotReady = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tuna_spot_ready",
			Help: "1 when the spot backend is considered ready to receive traffic, else 0",
		},
		[]string{"service_name"},
	)

	DeployDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tuna_deploy_duration_seconds",
			Help:    "Wall-clock duration of launch_hybrid / launch_serverless_only, by outcome",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
		[]string{"mode", "outcome"},
	)

	DestroyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tuna_destroy_duration_seconds",
			Help:    "Wall-clock duration of destroy_hybrid, by outcome",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
		[]string{"outcome"},
	)
)

// SetSpotReady records the current spot_ready boolean as a gauge.
func SetSpotReady(serviceName string, ready bool) {
	val := 0.0
	if ready {
		val = 1.0
	}
	SpotReady.WithLabelValues(serviceName).Set(val)
}
