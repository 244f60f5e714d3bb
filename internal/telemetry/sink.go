// Package telemetry implements the external health-event sink spec.md §6
// describes: "on every health transition, emit {providerUuid, providerType,
// eventType, errorCode, errorMessage} to an external sink (metrics
// collaborator). Fire-and-forget: failures in the sink never affect the
// Pool Manager." Grounded on mercator-hq-jupiter's
// pkg/telemetry/metrics/provider.go (ProviderMetrics), generalized from one
// fixed registry of provider-name metrics into a Sink satisfying
// pool.HealthSink.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/proxyforge/llmgate/internal/protocol"
)

// Sink is the Prometheus-backed implementation of pool.HealthSink. It is
// satisfied structurally — internal/pool never imports this package — so
// construct one and hand it to (*pool.Manager).SetSink.
type Sink struct {
	healthyTotal   *prometheus.CounterVec
	unhealthyTotal *prometheus.CounterVec
	healthyGauge   *prometheus.GaugeVec
}

// NewSink registers the gateway's health-event metrics against registry.
// Passing prometheus.NewRegistry() in tests keeps metric names from
// colliding with the process-wide DefaultRegisterer across test runs.
func NewSink(registry *prometheus.Registry) *Sink {
	s := &Sink{
		healthyTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmgate_account_healthy_total",
				Help: "Total number of account health transitions to healthy, by provider type.",
			},
			[]string{"provider_type"},
		),
		unhealthyTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmgate_account_unhealthy_total",
				Help: "Total number of account health transitions to unhealthy, by provider type and error code.",
			},
			[]string{"provider_type", "error_code"},
		),
		healthyGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "llmgate_accounts_healthy",
				Help: "Current number of healthy accounts, by provider type.",
			},
			[]string{"provider_type"},
		),
	}
	registry.MustRegister(s.healthyTotal, s.unhealthyTotal, s.healthyGauge)
	return s
}

// Healthy records an unhealthy->healthy transition.
func (s *Sink) Healthy(providerUUID string, providerType protocol.ProviderType) {
	pt := string(providerType)
	s.healthyTotal.WithLabelValues(pt).Inc()
	s.healthyGauge.WithLabelValues(pt).Inc()
}

// Unhealthy records a healthy->unhealthy transition. errorMessage is
// accepted for parity with the event shape but is not itself a Prometheus
// label — unbounded-cardinality free text never belongs on a metric label,
// it belongs in the log line the Manager already emits alongside it.
func (s *Sink) Unhealthy(providerUUID string, providerType protocol.ProviderType, errorCode, errorMessage string) {
	pt := string(providerType)
	s.unhealthyTotal.WithLabelValues(pt, errorCode).Inc()
	s.healthyGauge.WithLabelValues(pt).Dec()
}
