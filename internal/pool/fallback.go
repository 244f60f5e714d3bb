package pool

import "github.com/proxyforge/llmgate/internal/protocol"

// FallbackChain lists the provider types to try, in order, after the
// primary type has no healthy candidate. Only same-protocol-prefix types
// are ever tried (spec.md §4.3, §8 scenario 6).
type FallbackChain struct {
	Primary protocol.ProviderType
	Types   []protocol.ProviderType
}

// candidates returns the fallback types compatible with the primary's
// protocol prefix, deduped and with the primary itself removed — the
// fallback loop must never re-attempt the type already tried as primary
// (spec.md §9 REDESIGN FLAG).
func (c FallbackChain) candidates() []protocol.ProviderType {
	prefix := protocol.PrefixOf(c.Primary)
	seen := map[protocol.ProviderType]bool{c.Primary: true}
	out := make([]protocol.ProviderType, 0, len(c.Types))
	for _, t := range c.Types {
		if seen[t] {
			continue
		}
		if protocol.PrefixOf(t) != prefix {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
