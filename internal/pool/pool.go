package pool

import (
	"sort"
	"sync"
	"time"

	"github.com/proxyforge/llmgate/internal/gatewayerr"
	"github.com/proxyforge/llmgate/internal/protocol"
)

// Pool holds every account registered for one ProviderType.
type Pool struct {
	mu       sync.Mutex
	typ      protocol.ProviderType
	accounts map[string]*Account // by uuid
}

func NewPool(t protocol.ProviderType) *Pool {
	return &Pool{typ: t, accounts: make(map[string]*Account)}
}

func (p *Pool) Add(a *Account) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts[a.UUID] = a
}

func (p *Pool) Get(uuidStr string) (*Account, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.accounts[uuidStr]
	return a, ok
}

func (p *Pool) All() []*Account {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Account, 0, len(p.accounts))
	for _, a := range p.accounts {
		out = append(out, a)
	}
	return out
}

// SelectOptions narrows the LRU candidate set for one selection call.
type SelectOptions struct {
	ExcludeUUIDs []string
	Model        string

	// SkipUsageCount suppresses the lastUsed/usageCount bump Select would
	// otherwise apply to the picked account (spec.md §4.3) — used by
	// forced health checks, which select an account without it counting
	// as a real dispatch.
	SkipUsageCount bool
}

func (o SelectOptions) excludes(u string) bool {
	for _, x := range o.ExcludeUUIDs {
		if x == u {
			return true
		}
	}
	return false
}

// Select applies the pool's LRU policy: filter to healthy, non-disabled,
// non-excluded, model-supporting accounts; order by (lastUsed asc,
// usageCount asc); return the head, stamping its lastUsed/usageCount
// before returning unless SkipUsageCount is set (spec.md §4.3). The pool
// lock is held for the full filter-sort-stamp sequence, not just the
// initial copy, so two concurrent selections can never both observe the
// same (lastUsed, usageCount) pair and pick the same account unless no
// other candidate exists (spec.md §5/§8) — pools for distinct provider
// types never contend on the same lock, so this never serializes
// selection across provider types.
func (p *Pool) Select(opts SelectOptions) (*Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	candidates := make([]*Account, 0, len(p.accounts))
	for _, a := range p.accounts {
		candidates = append(candidates, a)
	}

	filtered := candidates[:0:0]
	for _, a := range candidates {
		healthy, disabled := a.snapshotHealth()
		if !healthy || disabled {
			continue
		}
		if opts.excludes(a.UUID) {
			continue
		}
		if opts.Model != "" && !a.supportsModel(opts.Model) {
			continue
		}
		filtered = append(filtered, a)
	}

	if len(filtered) == 0 {
		return nil, gatewayerr.PoolExhausted("no healthy account available for " + string(p.typ))
	}

	sort.Slice(filtered, func(i, j int) bool {
		ai, aj := filtered[i], filtered[j]
		ai.Mu.Lock()
		aj.Mu.Lock()
		liu, lju := ai.LastUsed, aj.LastUsed
		uci, ucj := ai.UsageCount, aj.UsageCount
		aj.Mu.Unlock()
		ai.Mu.Unlock()
		if !liu.Equal(lju) {
			return liu.Before(lju)
		}
		return uci < ucj
	})

	picked := filtered[0]
	if !opts.SkipUsageCount {
		picked.MarkUsed(now())
	}

	return picked, nil
}

// Type returns the provider type this pool serves.
func (p *Pool) Type() protocol.ProviderType { return p.typ }

// now is overridable in tests that need deterministic LRU ordering
// without a fake clock injected through every call site.
var now = time.Now
