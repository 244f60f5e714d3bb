// Package pool implements the provider pool manager: account selection,
// health/recovery tracking, fallback-chain resolution, and debounced
// persistence of the pool's dynamic state.
package pool

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/proxyforge/llmgate/internal/protocol"
)

// HealthCheckScheduleType names which recovery policy currently owns an
// unhealthy account's pending timer.
type HealthCheckScheduleType string

const (
	ScheduleNone       HealthCheckScheduleType = ""
	ScheduleQuickRetry HealthCheckScheduleType = "quick_retry"
	ScheduleRateLimit  HealthCheckScheduleType = "rate_limit"
	ScheduleStandard   HealthCheckScheduleType = "standard"
)

// StaticConfig is the operator-supplied, never-mutated-at-runtime part of
// an account: identity and how to reach the upstream.
type StaticConfig struct {
	Name                string
	Endpoint            string
	APIKey              string
	CredentialsFile     string
	CredentialsInline   string
	MaxErrorCount       int
	QuickRetryMaxCount  int
	QuickRetryIntervalMs          int64
	RateLimitHealthCheckIntervalMs int64
	StandardHealthCheckIntervalMs  int64
	NotSupportedModels  []string
	Disabled            bool
}

func (s StaticConfig) withDefaults() StaticConfig {
	if s.MaxErrorCount == 0 {
		s.MaxErrorCount = 3
	}
	if s.QuickRetryMaxCount == 0 {
		s.QuickRetryMaxCount = 3
	}
	if s.QuickRetryIntervalMs == 0 {
		s.QuickRetryIntervalMs = 10_000
	}
	if s.RateLimitHealthCheckIntervalMs == 0 {
		s.RateLimitHealthCheckIntervalMs = 3 * 60 * 60 * 1000
	}
	if s.StandardHealthCheckIntervalMs == 0 {
		s.StandardHealthCheckIntervalMs = 3 * 60 * 60 * 1000
	}
	return s
}

// Account is one upstream credential/endpoint pair within a pool. It holds
// static config plus the dynamic health/recovery/usage state the pool
// manager mutates under Mu.
type Account struct {
	Mu sync.Mutex

	UUID string
	Type protocol.ProviderType

	Static StaticConfig

	// Dynamic health state.
	IsHealthy        bool
	ErrorCount       int
	LastErrorMessage string

	// Recovery state.
	QuickRetryCount         int
	HealthCheckScheduleType HealthCheckScheduleType

	// Selection state.
	LastUsed   time.Time
	UsageCount int64
}

// NewAccount constructs a healthy account with a fresh identity.
func NewAccount(t protocol.ProviderType, static StaticConfig) *Account {
	return &Account{
		UUID:      uuid.NewString(),
		Type:      t,
		Static:    static.withDefaults(),
		IsHealthy: true,
	}
}

// MarkUsed stamps lastUsed/usageCount on the account a selection just
// picked. Called from Pool.Select itself, under the pool's lock, so two
// concurrent selections never observe the same (lastUsed, usageCount)
// pair and pick the same account unless no alternative existed
// (spec.md §4.3/§5).
func (a *Account) MarkUsed(now time.Time) {
	a.Mu.Lock()
	defer a.Mu.Unlock()
	a.LastUsed = now
	a.UsageCount++
}

// MarkHealthy resets every piece of recovery/error state in one step, so
// the invariant "isHealthy=true ⇒ errorCount=0 ∧ lastErrorMessage=∅ ∧
// quickRetryCount=0 ∧ healthCheckScheduleType=∅" can never be violated by
// a partial update.
func (a *Account) MarkHealthy() {
	a.Mu.Lock()
	defer a.Mu.Unlock()
	a.IsHealthy = true
	a.ErrorCount = 0
	a.LastErrorMessage = ""
	a.QuickRetryCount = 0
	a.HealthCheckScheduleType = ScheduleNone
}

// MarkError increments the error count and returns whether it crossed the
// account's maxErrorCount threshold, in which case the caller must flip
// IsHealthy to false and hand the account to the recovery scheduler.
func (a *Account) MarkError(message string) (becameUnhealthy bool) {
	a.Mu.Lock()
	defer a.Mu.Unlock()
	a.ErrorCount++
	a.LastErrorMessage = message
	if a.ErrorCount >= a.Static.MaxErrorCount && a.IsHealthy {
		a.IsHealthy = false
		return true
	}
	return false
}

// Snapshot is the JSON-serializable view of an Account persisted to
// provider_pools.json (spec.md §6). ISO-8601 timestamps only.
type Snapshot struct {
	UUID                    string    `json:"uuid"`
	Name                    string    `json:"name"`
	IsHealthy               bool      `json:"isHealthy"`
	ErrorCount              int       `json:"errorCount"`
	LastErrorMessage        string    `json:"lastErrorMessage,omitempty"`
	QuickRetryCount         int       `json:"quickRetryCount"`
	HealthCheckScheduleType string    `json:"healthCheckScheduleType,omitempty"`
	LastUsed                time.Time `json:"lastUsed"`
	UsageCount              int64     `json:"usageCount"`
	Disabled                bool      `json:"disabled"`
}

// ToSnapshot copies the dynamic fields out under the account's lock.
func (a *Account) ToSnapshot() Snapshot {
	a.Mu.Lock()
	defer a.Mu.Unlock()
	return Snapshot{
		UUID:                    a.UUID,
		Name:                    a.Static.Name,
		IsHealthy:               a.IsHealthy,
		ErrorCount:              a.ErrorCount,
		LastErrorMessage:        a.LastErrorMessage,
		QuickRetryCount:         a.QuickRetryCount,
		HealthCheckScheduleType: string(a.HealthCheckScheduleType),
		LastUsed:                a.LastUsed,
		UsageCount:              a.UsageCount,
		Disabled:                a.Static.Disabled,
	}
}

// RestoreSnapshot applies persisted dynamic state back onto a freshly
// constructed account (called once at startup, before the pool serves
// any request).
func (a *Account) RestoreSnapshot(s Snapshot) {
	a.Mu.Lock()
	defer a.Mu.Unlock()
	a.IsHealthy = s.IsHealthy
	a.ErrorCount = s.ErrorCount
	a.LastErrorMessage = s.LastErrorMessage
	a.QuickRetryCount = s.QuickRetryCount
	a.HealthCheckScheduleType = HealthCheckScheduleType(s.HealthCheckScheduleType)
	a.LastUsed = s.LastUsed
	a.UsageCount = s.UsageCount
	a.Static.Disabled = s.Disabled
}

func (a *Account) supportsModel(model string) bool {
	a.Mu.Lock()
	defer a.Mu.Unlock()
	for _, m := range a.Static.NotSupportedModels {
		if m == model {
			return false
		}
	}
	return true
}

func (a *Account) snapshotHealth() (healthy, disabled bool) {
	a.Mu.Lock()
	defer a.Mu.Unlock()
	return a.IsHealthy, a.Static.Disabled
}
