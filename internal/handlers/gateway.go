package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/proxyforge/llmgate/internal/config"
	"github.com/proxyforge/llmgate/internal/gatewayerr"
	"github.com/proxyforge/llmgate/internal/orchestrator"
	"github.com/proxyforge/llmgate/internal/pool"
	"github.com/proxyforge/llmgate/internal/protocol"
)

// GatewayHandler is the inbound entry point for one wire protocol family
// (spec.md §4.6's Service Orchestrator driven from the edge). A single
// Anthropic-shaped catch-all route generalizes here into one handler per
// callerPrefix, each mounted at its own conventional path by
// Server.setupRoutes, with model-to-provider routing now delegated to
// chainFor plus the orchestrator's pool selection.
type GatewayHandler struct {
	orch         *orchestrator.Orchestrator
	config       *config.Manager
	callerPrefix protocol.Prefix
	logger       *slog.Logger
}

func NewGatewayHandler(orch *orchestrator.Orchestrator, cfg *config.Manager, callerPrefix protocol.Prefix, logger *slog.Logger) *GatewayHandler {
	return &GatewayHandler{orch: orch, config: cfg, callerPrefix: callerPrefix, logger: logger}
}

func (h *GatewayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.httpError(w, http.StatusBadRequest, "failed to read request body: %v", err)
		return
	}

	chain := h.chainFor()
	streaming := requestIsStreaming(body)

	if streaming {
		h.serveStream(r.Context(), w, chain, body)
		return
	}

	respWire, err := h.orch.Generate(r.Context(), h.callerPrefix, chain, body)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(respWire)
}

func (h *GatewayHandler) serveStream(ctx context.Context, w http.ResponseWriter, chain pool.FallbackChain, body []byte) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := h.orch.Stream(ctx, h.callerPrefix, chain, body, w); err != nil {
		h.logger.Error("stream dispatch failed", "error", err, "caller_prefix", h.callerPrefix)
	}
}

// chainFor picks the FallbackChain to try for this handler's protocol
// family: the operator-configured chain whose Primary type speaks this
// prefix, or — absent explicit config — a bare chain naming the first
// configured account of that prefix as primary with no fallback types.
func (h *GatewayHandler) chainFor() pool.FallbackChain {
	cfg := h.config.Get()
	for primary, types := range cfg.FallbackChains {
		if protocol.PrefixOf(primary) == h.callerPrefix {
			return pool.FallbackChain{Primary: primary, Types: types}
		}
	}

	for _, acct := range cfg.Accounts {
		if protocol.PrefixOf(acct.Type) == h.callerPrefix {
			return pool.FallbackChain{Primary: acct.Type}
		}
	}

	return pool.FallbackChain{Primary: defaultTypeForPrefix(h.callerPrefix)}
}

func defaultTypeForPrefix(p protocol.Prefix) protocol.ProviderType {
	switch p {
	case protocol.PrefixOpenAI:
		return protocol.TypeOpenAICustom
	case protocol.PrefixOpenAIResponses:
		return protocol.TypeOpenAIResponsesCustom
	case protocol.PrefixGemini:
		return protocol.TypeGeminiCLIOAuth
	default:
		return protocol.TypeClaudeCustom
	}
}

// requestIsStreaming inspects the wire body's top-level "stream" field,
// the convention every wire protocol this gateway speaks shares.
func requestIsStreaming(body []byte) bool {
	var probe struct {
		Stream bool `json:"stream"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return probe.Stream
}

func (h *GatewayHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case gatewayerr.IsPoolExhausted(err):
		status = http.StatusServiceUnavailable
	case gatewayerr.IsProtocol(err) || gatewayerr.IsConversion(err):
		status = http.StatusBadRequest
	case gatewayerr.IsAuthExpired(err):
		status = http.StatusUnauthorized
	}

	h.logger.Error("gateway dispatch failed", "error", err, "status", status, "caller_prefix", h.callerPrefix)
	h.httpError(w, status, "%v", err)
}

func (h *GatewayHandler) httpError(w http.ResponseWriter, status int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body, _ := json.Marshal(map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
		},
	})
	w.Write(body)
}
