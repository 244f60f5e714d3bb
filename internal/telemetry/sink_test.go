package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/proxyforge/llmgate/internal/protocol"
)

func TestSink_Healthy_IncrementsCounterAndGauge(t *testing.T) {
	registry := prometheus.NewRegistry()
	s := NewSink(registry)

	s.Healthy("acct-1", protocol.TypeOpenAICustom)

	assert.Equal(t, float64(1), testutil.ToFloat64(s.healthyTotal.WithLabelValues("openai-custom")))
	assert.Equal(t, float64(1), testutil.ToFloat64(s.healthyGauge.WithLabelValues("openai-custom")))
}

func TestSink_Unhealthy_IncrementsCounterByErrorCodeAndDecrementsGauge(t *testing.T) {
	registry := prometheus.NewRegistry()
	s := NewSink(registry)

	s.Healthy("acct-1", protocol.TypeClaudeCustom)
	s.Unhealthy("acct-1", protocol.TypeClaudeCustom, "rate_limit", "upstream status 429")

	assert.Equal(t, float64(1), testutil.ToFloat64(s.unhealthyTotal.WithLabelValues("claude-custom", "rate_limit")))
	assert.Equal(t, float64(0), testutil.ToFloat64(s.healthyGauge.WithLabelValues("claude-custom")))
}

func TestSink_Unhealthy_SeparatesErrorCodesIntoDistinctSeries(t *testing.T) {
	registry := prometheus.NewRegistry()
	s := NewSink(registry)

	s.Unhealthy("acct-1", protocol.TypeGeminiCLIOAuth, "rate_limit", "429")
	s.Unhealthy("acct-2", protocol.TypeGeminiCLIOAuth, "server_error", "503")

	assert.Equal(t, float64(1), testutil.ToFloat64(s.unhealthyTotal.WithLabelValues("gemini-cli-oauth", "rate_limit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(s.unhealthyTotal.WithLabelValues("gemini-cli-oauth", "server_error")))
}
