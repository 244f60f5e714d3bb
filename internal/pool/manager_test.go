package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxyforge/llmgate/internal/protocol"
)

func TestManager_SelectWithFallback_NoRedundantPrimaryRetry(t *testing.T) {
	m := NewManager(nil, nil)
	defer m.Close()

	primary := NewAccount(protocol.TypeClaudeCustom, StaticConfig{Name: "primary"})
	primary.IsHealthy = false // primary pool is exhausted
	m.Register(primary)

	fallback := NewAccount(protocol.TypeClaudeCodeCustom, StaticConfig{Name: "fallback"})
	m.Register(fallback)

	chain := FallbackChain{
		Primary: protocol.TypeClaudeCustom,
		Types:   []protocol.ProviderType{protocol.TypeClaudeCustom, protocol.TypeClaudeCodeCustom},
	}

	a, usedType, err := m.SelectWithFallback(chain, SelectOptions{})
	require.NoError(t, err)
	assert.Equal(t, "fallback", a.Static.Name)
	assert.Equal(t, protocol.TypeClaudeCodeCustom, usedType)
}

func TestManager_SelectWithFallback_PrimarySucceedsWithoutConsultingFallback(t *testing.T) {
	m := NewManager(nil, nil)
	defer m.Close()

	primary := NewAccount(protocol.TypeClaudeCustom, StaticConfig{Name: "primary"})
	m.Register(primary)

	chain := FallbackChain{Primary: protocol.TypeClaudeCustom, Types: []protocol.ProviderType{protocol.TypeClaudeCodeCustom}}

	a, usedType, err := m.SelectWithFallback(chain, SelectOptions{})
	require.NoError(t, err)
	assert.Equal(t, "primary", a.Static.Name)
	assert.Equal(t, protocol.TypeClaudeCustom, usedType)
}

func TestManager_CommitFailure_SchedulesQuickRetryForNon429(t *testing.T) {
	m := NewManager(nil, nil)
	defer m.Close()

	a := NewAccount(protocol.TypeOpenAICustom, StaticConfig{Name: "x", MaxErrorCount: 1})
	m.Register(a)

	m.CommitFailure(a, 500, "server error")

	a.Mu.Lock()
	scheduled := a.HealthCheckScheduleType
	a.Mu.Unlock()
	assert.Equal(t, ScheduleQuickRetry, scheduled)
}

func TestManager_CommitFailure_SchedulesRateLimitFor429(t *testing.T) {
	m := NewManager(nil, nil)
	defer m.Close()

	a := NewAccount(protocol.TypeOpenAICustom, StaticConfig{Name: "x", MaxErrorCount: 1})
	m.Register(a)

	m.CommitFailure(a, 429, "rate limited")

	a.Mu.Lock()
	scheduled := a.HealthCheckScheduleType
	a.Mu.Unlock()
	assert.Equal(t, ScheduleRateLimit, scheduled)
}

func TestManager_HealthCheck_RecoversAccountOnSuccessfulProbe(t *testing.T) {
	m := NewManager(nil, nil)
	defer m.Close()

	a := NewAccount(protocol.TypeOpenAICustom, StaticConfig{Name: "x", MaxErrorCount: 1, QuickRetryIntervalMs: 5})
	m.Register(a)
	m.SetProber(func(ctx context.Context, acct *Account) error { return nil })

	m.CommitFailure(a, 500, "boom")
	require.False(t, a.IsHealthy)

	require.Eventually(t, func() bool {
		a.Mu.Lock()
		defer a.Mu.Unlock()
		return a.IsHealthy
	}, 2*time.Second, 10*time.Millisecond, "account should recover once the scheduled probe succeeds")
}

type fakeSink struct {
	healthy   []string
	unhealthy []string
}

func (f *fakeSink) Healthy(providerUUID string, providerType protocol.ProviderType) {
	f.healthy = append(f.healthy, providerUUID)
}

func (f *fakeSink) Unhealthy(providerUUID string, providerType protocol.ProviderType, errorCode, errorMessage string) {
	f.unhealthy = append(f.unhealthy, providerUUID+":"+errorCode)
}

func TestManager_CommitFailure_EmitsUnhealthyOnlyOnTransition(t *testing.T) {
	m := NewManager(nil, nil)
	defer m.Close()
	sink := &fakeSink{}
	m.SetSink(sink)

	a := NewAccount(protocol.TypeOpenAICustom, StaticConfig{Name: "x", MaxErrorCount: 2})
	m.Register(a)

	m.CommitFailure(a, 500, "first failure")
	assert.Empty(t, sink.unhealthy, "should not emit before crossing the error threshold")

	m.CommitFailure(a, 429, "second failure crosses threshold")
	require.Len(t, sink.unhealthy, 1)
	assert.Equal(t, a.UUID+":rate_limit", sink.unhealthy[0])

	m.CommitFailure(a, 429, "still unhealthy")
	assert.Len(t, sink.unhealthy, 1, "should not re-emit while already unhealthy")
}

func TestManager_CommitSuccess_EmitsHealthyOnlyOnRecoveryTransition(t *testing.T) {
	m := NewManager(nil, nil)
	defer m.Close()
	sink := &fakeSink{}
	m.SetSink(sink)

	a := NewAccount(protocol.TypeOpenAICustom, StaticConfig{Name: "x", MaxErrorCount: 1})
	m.Register(a)

	m.CommitSuccess(a)
	assert.Empty(t, sink.healthy, "should not emit for an account that was already healthy")

	m.CommitFailure(a, 500, "boom")
	m.CommitSuccess(a)
	require.Len(t, sink.healthy, 1)
	assert.Equal(t, a.UUID, sink.healthy[0])
}

func TestManager_HealthCheck_FailedRateLimitProbeStaysOnRateLimitCadence(t *testing.T) {
	m := NewManager(nil, nil)
	defer m.Close()

	a := NewAccount(protocol.TypeOpenAICustom, StaticConfig{
		Name: "x", MaxErrorCount: 1, QuickRetryIntervalMs: 5, QuickRetryMaxCount: 1,
		RateLimitHealthCheckIntervalMs: 5,
	})
	m.Register(a)
	probeCalls := make(chan struct{}, 4)
	m.SetProber(func(ctx context.Context, acct *Account) error {
		probeCalls <- struct{}{}
		return errors.New("still rate limited")
	})

	// A 429 schedules the long rate_limit cadence, not quick_retry.
	m.CommitFailure(a, 429, "rate limited")
	a.Mu.Lock()
	require.Equal(t, ScheduleRateLimit, a.HealthCheckScheduleType)
	a.Mu.Unlock()

	select {
	case <-probeCalls:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the scheduled probe to run")
	}

	require.Eventually(t, func() bool {
		a.Mu.Lock()
		defer a.Mu.Unlock()
		return a.HealthCheckScheduleType == ScheduleRateLimit
	}, 2*time.Second, 10*time.Millisecond, "a failed rate_limit-scheduled probe must reschedule another rate_limit probe, not collapse into quick_retry")
}

func TestManager_HealthCheck_ProbeFailureReschedulesQuickRetryThenStandard(t *testing.T) {
	m := NewManager(nil, nil)
	defer m.Close()

	a := NewAccount(protocol.TypeOpenAICustom, StaticConfig{
		Name: "x", MaxErrorCount: 1, QuickRetryIntervalMs: 5, QuickRetryMaxCount: 1,
		StandardHealthCheckIntervalMs: 60_000,
	})
	m.Register(a)
	m.SetProber(func(ctx context.Context, acct *Account) error { return errors.New("still down") })

	m.CommitFailure(a, 500, "boom")

	require.Eventually(t, func() bool {
		a.Mu.Lock()
		defer a.Mu.Unlock()
		return a.HealthCheckScheduleType == ScheduleStandard
	}, 2*time.Second, 10*time.Millisecond, "after exhausting quick retries the scheduler should fall back to standard cadence")
}
