// Package orchestrator implements the Service Orchestrator: the thin
// glue between protocol detection, the pool manager, the converter
// matrix, and the provider adapter factory (spec.md §4.6). Adapted from
// internal/handlers/proxy.go's ProxyHandler, generalized from one
// hardcoded Anthropic-to-provider direction into any (callerPrefix,
// providerType) pair.
package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"context"

	"github.com/proxyforge/llmgate/internal/convert"
	"github.com/proxyforge/llmgate/internal/gatewayerr"
	"github.com/proxyforge/llmgate/internal/pool"
	"github.com/proxyforge/llmgate/internal/protocol"
	"github.com/proxyforge/llmgate/internal/provideradapter"
)

// adapterFactory is the subset of *factory.Factory the orchestrator
// needs, kept as a local interface so tests can substitute a fake
// factory without standing up real OAuth/HTTP adapters.
type adapterFactory interface {
	Get(account *pool.Account) (provideradapter.Adapter, error)
}

// Orchestrator ties the pool manager, converter matrix, and adapter
// factory into one request/response (and one streaming) path.
type Orchestrator struct {
	pools   *pool.Manager
	factory adapterFactory
	logger  *slog.Logger

	// maxAttempts bounds how many accounts one request tries. Each failed
	// account is excluded from later selections; when the cap is reached
	// or no candidate is left, the last upstream error is returned.
	maxAttempts int
}

func New(pools *pool.Manager, fac adapterFactory, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{pools: pools, factory: fac, logger: logger, maxAttempts: 6}
}

// Generate performs one non-streaming dispatch: convert callerWire
// (spoken in callerPrefix) into the Claude pivot shape, select an
// account (consulting chain's fallback types on failure, excluding
// every account already tried), invoke its adapter, and convert the
// response back into callerPrefix. A failed account is reported to the
// pool manager and excluded from the next attempt; the next attempt
// reuses SelectWithFallback, which internally still tries the primary
// type and its fallbacks in order, just over a shrinking candidate set.
func (o *Orchestrator) Generate(ctx context.Context, callerPrefix protocol.Prefix, chain pool.FallbackChain, callerWire []byte) ([]byte, error) {
	claudeWire, err := convertRequest(callerPrefix, protocol.PrefixClaude, callerWire)
	if err != nil {
		return nil, err
	}

	model, antiTruncation, err := extractModel(claudeWire)
	if err != nil {
		return nil, err
	}
	if antiTruncation {
		claudeWire, err = setModel(claudeWire, model)
		if err != nil {
			return nil, err
		}
	}

	_ = provideradapter.EstimateInputTokens(o.logger, callerWire) // routing hint only, spec.md §4.6 expansion

	var excludeUUIDs []string
	var lastErr error

	for attempt := 0; attempt < o.maxAttempts; attempt++ {
		account, providerType, selErr := o.pools.SelectWithFallback(chain, pool.SelectOptions{
			ExcludeUUIDs: excludeUUIDs,
			Model:        model,
		})
		if selErr != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, selErr
		}

		adapter, err := o.factory.Get(account)
		if err != nil {
			o.pools.CommitFailure(account, 0, err.Error())
			excludeUUIDs = append(excludeUUIDs, account.UUID)
			lastErr = err
			continue
		}

		providerPrefix := protocol.PrefixOf(providerType)
		roundTrip := func(reqWire []byte) ([]byte, error) {
			return o.roundTrip(ctx, adapter, account, providerPrefix, reqWire)
		}

		var respWire []byte
		if antiTruncation {
			respWire, err = provideradapter.ContinuationCall(claudeWire, roundTrip)
		} else {
			respWire, err = roundTrip(claudeWire)
		}

		if err != nil {
			statusCode := statusCodeOf(err)
			o.pools.CommitFailure(account, statusCode, err.Error())
			excludeUUIDs = append(excludeUUIDs, account.UUID)
			lastErr = err
			continue
		}

		o.pools.CommitSuccess(account)
		return convertResponse(callerPrefix, protocol.PrefixClaude, respWire)
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, gatewayerr.PoolExhausted("exhausted every candidate account")
}

// roundTrip performs exactly one upstream call: claude-pivot request ->
// provider wire -> adapter.Generate -> provider wire -> claude-pivot
// response.
func (o *Orchestrator) roundTrip(ctx context.Context, adapter provideradapter.Adapter, account *pool.Account, providerPrefix protocol.Prefix, claudeWireReq []byte) ([]byte, error) {
	providerWireReq, err := convertRequest(protocol.PrefixClaude, providerPrefix, claudeWireReq)
	if err != nil {
		return nil, err
	}

	providerWireResp, err := adapter.Generate(ctx, account, providerWireReq)
	if err != nil {
		return nil, err
	}

	return convertResponse(protocol.PrefixClaude, providerPrefix, providerWireResp)
}

// Stream performs one streaming dispatch, writing caller-protocol SSE
// frames directly to w as upstream chunks arrive, flushing after each
// one when w is an http.Flusher, and generalizes to any (callerPrefix,
// providerType) pair via the converter matrix's streaming leg.
func (o *Orchestrator) Stream(ctx context.Context, callerPrefix protocol.Prefix, chain pool.FallbackChain, callerWire []byte, w io.Writer) error {
	claudeWire, err := convertRequest(callerPrefix, protocol.PrefixClaude, callerWire)
	if err != nil {
		return err
	}
	model, antiTruncation, err := extractModel(claudeWire)
	if err != nil {
		return err
	}
	if antiTruncation {
		claudeWire, err = setModel(claudeWire, model)
		if err != nil {
			return err
		}
	}

	var excludeUUIDs []string
	var lastErr error

	for attempt := 0; attempt < o.maxAttempts; attempt++ {
		account, providerType, selErr := o.pools.SelectWithFallback(chain, pool.SelectOptions{
			ExcludeUUIDs: excludeUUIDs,
			Model:        model,
		})
		if selErr != nil {
			if lastErr != nil {
				return lastErr
			}
			return selErr
		}

		adapter, err := o.factory.Get(account)
		if err != nil {
			o.pools.CommitFailure(account, 0, err.Error())
			excludeUUIDs = append(excludeUUIDs, account.UUID)
			lastErr = err
			continue
		}

		providerPrefix := protocol.PrefixOf(providerType)

		if antiTruncation {
			err = o.streamWithContinuation(ctx, adapter, account, callerPrefix, providerPrefix, claudeWire, w)
		} else {
			err = o.streamOnce(ctx, adapter, account, callerPrefix, providerPrefix, claudeWire, w)
		}
		if err != nil {
			statusCode := statusCodeOf(err)
			o.pools.CommitFailure(account, statusCode, err.Error())
			excludeUUIDs = append(excludeUUIDs, account.UUID)
			lastErr = err
			continue
		}

		o.pools.CommitSuccess(account)
		return nil
	}

	if lastErr != nil {
		return lastErr
	}
	return gatewayerr.PoolExhausted("exhausted every candidate account")
}

// streamOnce performs exactly one upstream stream call with no
// continuation handling: claude-pivot request -> provider wire ->
// adapter.Stream -> pumpStream straight through to w.
func (o *Orchestrator) streamOnce(ctx context.Context, adapter provideradapter.Adapter, account *pool.Account, callerPrefix, providerPrefix protocol.Prefix, claudeWireReq []byte, w io.Writer) error {
	providerWireReq, err := convertRequest(protocol.PrefixClaude, providerPrefix, claudeWireReq)
	if err != nil {
		return err
	}

	body, err := adapter.Stream(ctx, account, providerWireReq)
	if err != nil {
		return err
	}
	defer body.Close()

	return o.pumpStream(body, providerPrefix, callerPrefix, w)
}

type flusher interface {
	Flush()
}

func (o *Orchestrator) pumpStream(body io.Reader, providerPrefix, callerPrefix protocol.Prefix, w io.Writer) error {
	converter, ok := convert.Get(callerPrefix, providerPrefix)
	if !ok {
		return gatewayerr.Protocol(fmt.Sprintf("no converter registered for %s -> %s", callerPrefix, providerPrefix), nil)
	}
	state := convert.NewStreamState()

	return provideradapter.ParseSSE(body, func(evt provideradapter.SSEEvent) error {
		if evt.Data == "[DONE]" {
			_, _ = w.Write([]byte("data: [DONE]\n\n"))
			flushIfPossible(w)
			return nil
		}
		out, err := converter.ConvertStreamChunk([]byte(evt.Data), state)
		if err != nil {
			o.logger.Error("stream chunk conversion failed", "error", err)
			return nil
		}
		if len(out) > 0 {
			if _, err := w.Write(out); err != nil {
				return err
			}
			flushIfPossible(w)
		}
		return nil
	})
}

func flushIfPossible(w io.Writer) {
	if f, ok := w.(flusher); ok {
		f.Flush()
	}
}

// convertRequest looks up the converter registered for (callerPrefix,
// upstreamPrefix) and turns a callerPrefix-shaped request into the shape
// upstreamPrefix expects.
func convertRequest(callerPrefix, upstreamPrefix protocol.Prefix, wire []byte) ([]byte, error) {
	if callerPrefix == upstreamPrefix {
		return wire, nil
	}
	converter, ok := convert.Get(callerPrefix, upstreamPrefix)
	if !ok {
		return nil, gatewayerr.Protocol(fmt.Sprintf("no converter registered for %s -> %s", callerPrefix, upstreamPrefix), nil)
	}
	return converter.ConvertRequest(wire)
}

// convertResponse looks up the converter registered for (callerPrefix,
// upstreamPrefix) and turns an upstreamPrefix-shaped response back into
// the shape callerPrefix expects. Note the converter is keyed the same
// way as convertRequest; only the conversion direction differs.
func convertResponse(callerPrefix, upstreamPrefix protocol.Prefix, wire []byte) ([]byte, error) {
	if callerPrefix == upstreamPrefix {
		return wire, nil
	}
	converter, ok := convert.Get(callerPrefix, upstreamPrefix)
	if !ok {
		return nil, gatewayerr.Protocol(fmt.Sprintf("no converter registered for %s -> %s", callerPrefix, upstreamPrefix), nil)
	}
	return converter.ConvertResponse(wire)
}

func extractModel(claudeWire []byte) (model string, antiTruncation bool, err error) {
	var req map[string]any
	if err := json.Unmarshal(claudeWire, &req); err != nil {
		return "", false, gatewayerr.Protocol("unmarshal request to read model", err)
	}
	m, _ := req["model"].(string)
	bare, enabled := provideradapter.IsAntiTruncationModel(m)
	return bare, enabled, nil
}

func setModel(claudeWire []byte, model string) ([]byte, error) {
	var req map[string]any
	if err := json.Unmarshal(claudeWire, &req); err != nil {
		return nil, gatewayerr.Protocol("unmarshal request to rewrite model", err)
	}
	req["model"] = model
	return json.Marshal(req)
}

func statusCodeOf(err error) int {
	var gwErr *gatewayerr.Error
	if errors.As(err, &gwErr) {
		return gwErr.StatusCode
	}
	return 0
}
