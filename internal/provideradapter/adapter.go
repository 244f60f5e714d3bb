// Package provideradapter implements the Service Adapter contract: one
// generate/stream/listModels/refresh implementation per upstream wire
// protocol, with the shared HTTP retry policy, SSE parsing, and
// anti-truncation continuation logic factored out so the six concrete
// provider types (spec.md §4.2) differ only in endpoint shape, auth, and
// which of those shared behaviors apply.
package provideradapter

import (
	"context"
	"io"

	"github.com/proxyforge/llmgate/internal/pool"
	"github.com/proxyforge/llmgate/internal/protocol"
)

// Adapter is the Service Adapter contract every provider type implements.
type Adapter interface {
	Type() protocol.ProviderType

	// Generate performs one non-streaming upstream call and returns the
	// raw response body in the adapter's native wire format.
	Generate(ctx context.Context, account *pool.Account, upstreamWire []byte) ([]byte, error)

	// Stream performs one streaming upstream call and returns the raw
	// response body for the caller to read chunk by chunk through the
	// converter matrix's streaming leg.
	Stream(ctx context.Context, account *pool.Account, upstreamWire []byte) (io.ReadCloser, error)

	// ListModels returns the models this account's upstream currently
	// advertises.
	ListModels(ctx context.Context, account *pool.Account) ([]string, error)

	// Refresh forces credential refresh ahead of a retried call (a no-op
	// for static API-key accounts; meaningful for the OAuth-backed
	// Gemini adapters).
	Refresh(ctx context.Context, account *pool.Account) error
}

// UsageReporter is an optional capability only the Gemini-family and
// claude-code-custom adapters implement (spec.md §4.2 getUsageLimits),
// exposed as a separate interface rather than a required method every
// adapter must stub out.
type UsageReporter interface {
	GetUsageLimits(ctx context.Context, account *pool.Account) (map[string]any, error)
}
