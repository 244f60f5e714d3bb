package pool

import "github.com/proxyforge/llmgate/internal/protocol"

// HealthSink receives one event per health transition (spec.md §6): an
// account flipping unhealthy->healthy or healthy->unhealthy. The Manager
// never constructs a sink itself — internal/telemetry provides the
// Prometheus-backed implementation, wired in by the process bootstrap the
// same way SetProber wires in the HTTP prober.
//
// Fire-and-forget: a HealthSink implementation must swallow its own
// errors. The Manager never checks a return value and never blocks a
// selection or commit on sink delivery.
type HealthSink interface {
	Healthy(providerUUID string, providerType protocol.ProviderType)
	Unhealthy(providerUUID string, providerType protocol.ProviderType, errorCode, errorMessage string)
}

// SetSink wires the health-event sink. Safe to call at any point; nil
// disables emission (the default).
func (m *Manager) SetSink(s HealthSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = s
}

// errorCodeForStatus buckets an upstream HTTP status into the coarse
// categories a health-event consumer labels on (rate_limit/auth/
// server_error/client_error/unknown).
func errorCodeForStatus(statusCode int) string {
	switch {
	case statusCode == 429:
		return "rate_limit"
	case statusCode == 401 || statusCode == 403:
		return "auth"
	case statusCode >= 500:
		return "server_error"
	case statusCode >= 400:
		return "client_error"
	default:
		return "unknown"
	}
}
