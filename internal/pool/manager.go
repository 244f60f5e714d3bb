package pool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/proxyforge/llmgate/internal/gatewayerr"
	"github.com/proxyforge/llmgate/internal/protocol"
)

// Manager owns every pool, the recovery scheduler, and the persisted
// state writer. It is the process-wide entry point for account selection
// (spec.md §4.3).
type Manager struct {
	logger *slog.Logger

	mu    sync.RWMutex
	pools map[protocol.ProviderType]*Pool

	recovery *Scheduler
	store    *Store
	prober   Prober
	sink     HealthSink

	saveRequested chan struct{}
	closeOnce     sync.Once
	closed        chan struct{}
}

// NewManager builds a pool manager. store may be nil to disable
// persistence (used in tests).
func NewManager(logger *slog.Logger, store *Store) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		logger:        logger,
		pools:         make(map[protocol.ProviderType]*Pool),
		store:         store,
		saveRequested: make(chan struct{}, 1),
		closed:        make(chan struct{}),
	}
	m.recovery = NewScheduler(logger, m.runHealthCheck)
	if store != nil {
		go m.saveLoop()
	}
	return m
}

func (m *Manager) poolFor(t protocol.ProviderType) *Pool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pools[t]
	if !ok {
		p = NewPool(t)
		m.pools[t] = p
	}
	return p
}

// Register adds an account to its type's pool. An account that arrives
// already unhealthy is handed straight to the standard recovery cadence.
func (m *Manager) Register(a *Account) {
	p := m.poolFor(a.Type)
	p.Add(a)
	if !a.IsHealthy {
		m.recovery.scheduleStandard(a)
	}
}

// Select picks a single account for the given type with no fallback.
func (m *Manager) Select(t protocol.ProviderType, opts SelectOptions) (*Account, error) {
	return m.poolFor(t).Select(opts)
}

// SelectWithFallback tries the primary type first; only on exhaustion does
// it walk the fallback chain's same-prefix candidates, in order, never
// re-trying the primary (spec.md §9 decision 1).
func (m *Manager) SelectWithFallback(chain FallbackChain, opts SelectOptions) (*Account, protocol.ProviderType, error) {
	if a, err := m.Select(chain.Primary, opts); err == nil {
		return a, chain.Primary, nil
	}

	for _, t := range chain.candidates() {
		a, err := m.Select(t, opts)
		if err == nil {
			return a, t, nil
		}
	}

	return nil, "", gatewayerr.PoolExhausted("no healthy account in primary or fallback chain")
}

// CommitSuccess records a committed dispatch's health outcome and
// requests a debounced save. lastUsed/usageCount are already stamped by
// Select at selection time (spec.md §4.3); this only resets health state
// on a recovered account. Must only be called after the call is known to
// have fully committed — cancellation never reaches here (spec.md §5).
func (m *Manager) CommitSuccess(a *Account) {
	wasUnhealthy := !func() bool { h, _ := a.snapshotHealth(); return h }()
	a.MarkHealthy()
	if wasUnhealthy {
		m.recovery.cancel(a)
		m.emitHealthy(a)
	}
	m.requestSave()
}

// CommitFailure records a failed dispatch. If the account crosses its
// error threshold, it is handed to the recovery scheduler under the
// policy implied by statusCode (429 → rate_limit, anything else →
// quick_retry).
func (m *Manager) CommitFailure(a *Account, statusCode int, message string) {
	becameUnhealthy := a.MarkError(message)
	if becameUnhealthy {
		if statusCode == 429 {
			m.recovery.scheduleRateLimit(a)
		} else {
			m.recovery.scheduleQuickRetry(a)
		}
		m.emitUnhealthy(a, statusCode, message)
	}
	m.requestSave()
}

func (m *Manager) emitHealthy(a *Account) {
	m.mu.RLock()
	sink := m.sink
	m.mu.RUnlock()
	if sink == nil {
		return
	}
	sink.Healthy(a.UUID, a.Type)
}

func (m *Manager) emitUnhealthy(a *Account, statusCode int, message string) {
	m.mu.RLock()
	sink := m.sink
	m.mu.RUnlock()
	if sink == nil {
		return
	}
	sink.Unhealthy(a.UUID, a.Type, errorCodeForStatus(statusCode), message)
}

func (m *Manager) requestSave() {
	if m.store == nil {
		return
	}
	select {
	case m.saveRequested <- struct{}{}:
	default:
	}
}

// saveLoop debounces writes: any number of requests arriving within the
// one-second debounce window coalesce into a single write, and no request is ever
// silently dropped (spec.md §4.3/§5).
func (m *Manager) saveLoop() {
	const debounce = 1 * time.Second
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-m.saveRequested:
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			}
		case <-timerC:
			m.flush()
			timer = nil
			timerC = nil
		case <-m.closed:
			if timer != nil {
				timer.Stop()
			}
			m.flush()
			return
		}
	}
}

func (m *Manager) flush() {
	if m.store == nil {
		return
	}
	snap := m.snapshotAll()
	if err := m.store.Save(snap); err != nil {
		m.logger.Error("save provider pool state", "error", err)
	}
}

func (m *Manager) snapshotAll() map[protocol.ProviderType][]Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[protocol.ProviderType][]Snapshot, len(m.pools))
	for t, p := range m.pools {
		for _, a := range p.All() {
			out[t] = append(out[t], a.ToSnapshot())
		}
	}
	return out
}

// LoadPersisted restores snapshot state onto already-registered accounts,
// matched by uuid. Call once at startup after Register for every account.
func (m *Manager) LoadPersisted() error {
	if m.store == nil {
		return nil
	}
	snap, err := m.store.Load()
	if err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for t, snaps := range snap {
		p, ok := m.pools[t]
		if !ok {
			continue
		}
		for _, s := range snaps {
			if a, ok := p.Get(s.UUID); ok {
				a.RestoreSnapshot(s)
				if !a.IsHealthy {
					m.recovery.scheduleStandard(a)
				}
			}
		}
	}
	return nil
}

func (m *Manager) runHealthCheck(a *Account) {
	// The pool manager only owns the scheduling; actual probe execution
	// lives in the provideradapter/factory layer, which registers itself
	// as the health prober via SetProber.
	m.mu.RLock()
	prober := m.prober
	m.mu.RUnlock()
	if prober == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := prober(ctx, a); err == nil {
		m.CommitSuccess(a)
		return
	}

	a.Mu.Lock()
	schedule := a.HealthCheckScheduleType
	a.QuickRetryCount++
	qc, max := a.QuickRetryCount, a.Static.QuickRetryMaxCount
	a.Mu.Unlock()

	// A rate_limit-scheduled account stays on the 429 backoff cadence for
	// every failed probe; only quick_retry/standard accounts step through
	// the quick-retry-count-then-standard escalation (spec.md §4.3).
	switch schedule {
	case ScheduleRateLimit:
		m.recovery.scheduleRateLimit(a)
	default:
		if qc < max {
			m.recovery.scheduleQuickRetry(a)
		} else {
			m.recovery.scheduleStandard(a)
		}
	}
}

// Prober executes a minimal health probe against one account.
type Prober func(ctx context.Context, a *Account) error

// SetProber wires the health-check executor (spec.md §4.4); the pool
// manager never talks HTTP itself.
func (m *Manager) SetProber(p Prober) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prober = p
}

// Close stops the recovery scheduler and flushes any pending save.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.closed)
	})
	m.recovery.Stop()
}
