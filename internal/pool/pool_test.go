package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxyforge/llmgate/internal/protocol"
)

func TestPool_Select_LRU(t *testing.T) {
	p := NewPool(protocol.TypeOpenAICustom)

	old := NewAccount(protocol.TypeOpenAICustom, StaticConfig{Name: "old"})
	old.LastUsed = time.Now().Add(-time.Hour)
	recent := NewAccount(protocol.TypeOpenAICustom, StaticConfig{Name: "recent"})
	recent.LastUsed = time.Now()

	p.Add(recent)
	p.Add(old)

	a, err := p.Select(SelectOptions{})
	require.NoError(t, err)
	assert.Equal(t, "old", a.Static.Name, "least-recently-used account should be picked first")
}

func TestPool_Select_UsageCountTiebreak(t *testing.T) {
	p := NewPool(protocol.TypeOpenAICustom)

	same := time.Now()
	low := NewAccount(protocol.TypeOpenAICustom, StaticConfig{Name: "low-usage"})
	low.LastUsed = same
	low.UsageCount = 1
	high := NewAccount(protocol.TypeOpenAICustom, StaticConfig{Name: "high-usage"})
	high.LastUsed = same
	high.UsageCount = 5

	p.Add(high)
	p.Add(low)

	a, err := p.Select(SelectOptions{})
	require.NoError(t, err)
	assert.Equal(t, "low-usage", a.Static.Name)
}

func TestPool_Select_FiltersUnhealthyDisabledExcludedAndModel(t *testing.T) {
	p := NewPool(protocol.TypeOpenAICustom)

	unhealthy := NewAccount(protocol.TypeOpenAICustom, StaticConfig{Name: "unhealthy"})
	unhealthy.IsHealthy = false

	disabled := NewAccount(protocol.TypeOpenAICustom, StaticConfig{Name: "disabled", Disabled: true})

	excluded := NewAccount(protocol.TypeOpenAICustom, StaticConfig{Name: "excluded"})

	noModel := NewAccount(protocol.TypeOpenAICustom, StaticConfig{Name: "no-model", NotSupportedModels: []string{"gpt-4o"}})

	good := NewAccount(protocol.TypeOpenAICustom, StaticConfig{Name: "good"})
	good.LastUsed = time.Now().Add(-time.Minute)

	for _, a := range []*Account{unhealthy, disabled, excluded, noModel, good} {
		p.Add(a)
	}

	a, err := p.Select(SelectOptions{ExcludeUUIDs: []string{excluded.UUID}, Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "good", a.Static.Name)
}

func TestPool_Select_StampsLastUsedAndUsageCount(t *testing.T) {
	p := NewPool(protocol.TypeOpenAICustom)
	a := NewAccount(protocol.TypeOpenAICustom, StaticConfig{Name: "only"})
	p.Add(a)

	picked, err := p.Select(SelectOptions{})
	require.NoError(t, err)
	assert.Equal(t, a.UUID, picked.UUID)
	assert.False(t, picked.LastUsed.IsZero(), "Select must stamp lastUsed on the picked account")
	assert.Equal(t, int64(1), picked.UsageCount, "Select must increment usageCount on the picked account")
}

func TestPool_Select_SkipUsageCountLeavesStateUntouched(t *testing.T) {
	p := NewPool(protocol.TypeOpenAICustom)
	a := NewAccount(protocol.TypeOpenAICustom, StaticConfig{Name: "only"})
	p.Add(a)

	picked, err := p.Select(SelectOptions{SkipUsageCount: true})
	require.NoError(t, err)
	assert.True(t, picked.LastUsed.IsZero())
	assert.Zero(t, picked.UsageCount)
}

func TestPool_Select_ImmediateSecondCallPicksTheOtherAccount(t *testing.T) {
	// spec.md §8 seed scenario 1: A(lastUsed=null, usage=0),
	// B(lastUsed=2024-01-01, usage=5). First call picks A and stamps its
	// lastUsed/usageCount immediately, so a second call right after (with
	// no commit step in between) must pick B, never A again.
	p := NewPool(protocol.TypeOpenAICustom)
	accountA := NewAccount(protocol.TypeOpenAICustom, StaticConfig{Name: "A"})
	accountB := NewAccount(protocol.TypeOpenAICustom, StaticConfig{Name: "B"})
	accountB.LastUsed = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	accountB.UsageCount = 5

	p.Add(accountA)
	p.Add(accountB)

	first, err := p.Select(SelectOptions{})
	require.NoError(t, err)
	assert.Equal(t, "A", first.Static.Name)

	second, err := p.Select(SelectOptions{})
	require.NoError(t, err)
	assert.Equal(t, "B", second.Static.Name, "second immediate selection must not re-pick A")
}

func TestPool_Select_ExhaustedReturnsPoolExhaustedError(t *testing.T) {
	p := NewPool(protocol.TypeOpenAICustom)
	a := NewAccount(protocol.TypeOpenAICustom, StaticConfig{Name: "only"})
	a.IsHealthy = false
	p.Add(a)

	_, err := p.Select(SelectOptions{})
	require.Error(t, err)
}

func TestFallbackChain_ExcludesPrimaryAndIncompatiblePrefixes(t *testing.T) {
	chain := FallbackChain{
		Primary: protocol.TypeClaudeCustom,
		Types: []protocol.ProviderType{
			protocol.TypeClaudeCustom,     // same as primary, must be excluded
			protocol.TypeClaudeCodeCustom, // same prefix, kept
			protocol.TypeOpenAICustom,     // different prefix, excluded
			protocol.TypeClaudeCodeCustom, // duplicate, deduped
		},
	}

	got := chain.candidates()
	assert.Equal(t, []protocol.ProviderType{protocol.TypeClaudeCodeCustom}, got)
}

func TestAccount_MarkError_BecomesUnhealthyAtThreshold(t *testing.T) {
	a := NewAccount(protocol.TypeOpenAICustom, StaticConfig{Name: "x", MaxErrorCount: 2})

	assert.False(t, a.MarkError("boom"))
	assert.True(t, a.IsHealthy)

	assert.True(t, a.MarkError("boom again"))
	assert.False(t, a.IsHealthy)
}

func TestAccount_MarkHealthy_ResetsAllRecoveryState(t *testing.T) {
	a := NewAccount(protocol.TypeOpenAICustom, StaticConfig{Name: "x", MaxErrorCount: 1})
	a.MarkError("boom")
	a.QuickRetryCount = 2
	a.HealthCheckScheduleType = ScheduleQuickRetry

	a.MarkHealthy()

	assert.True(t, a.IsHealthy)
	assert.Zero(t, a.ErrorCount)
	assert.Empty(t, a.LastErrorMessage)
	assert.Zero(t, a.QuickRetryCount)
	assert.Equal(t, ScheduleNone, a.HealthCheckScheduleType)
}
