package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxyforge/llmgate/internal/config"
	"github.com/proxyforge/llmgate/internal/gatewayerr"
	"github.com/proxyforge/llmgate/internal/orchestrator"
	"github.com/proxyforge/llmgate/internal/pool"
	"github.com/proxyforge/llmgate/internal/protocol"
	"github.com/proxyforge/llmgate/internal/provideradapter"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAdapter struct {
	typ        protocol.ProviderType
	generateFn func(reqWire []byte) ([]byte, error)
	streamFn   func(reqWire []byte) (io.ReadCloser, error)
}

func (f *fakeAdapter) Type() protocol.ProviderType { return f.typ }

func (f *fakeAdapter) Generate(ctx context.Context, account *pool.Account, upstreamWire []byte) ([]byte, error) {
	return f.generateFn(upstreamWire)
}

func (f *fakeAdapter) Stream(ctx context.Context, account *pool.Account, upstreamWire []byte) (io.ReadCloser, error) {
	return f.streamFn(upstreamWire)
}

func (f *fakeAdapter) ListModels(ctx context.Context, account *pool.Account) ([]string, error) {
	return nil, nil
}

func (f *fakeAdapter) Refresh(ctx context.Context, account *pool.Account) error { return nil }

type fakeFactory struct {
	byUUID map[string]provideradapter.Adapter
}

func (f *fakeFactory) Get(account *pool.Account) (provideradapter.Adapter, error) {
	a, ok := f.byUUID[account.UUID]
	if !ok {
		return nil, assertNeverErr("no fake adapter registered")
	}
	return a, nil
}

type assertNeverErr string

func (a assertNeverErr) Error() string { return string(a) }

func newTestConfig(t *testing.T) *config.Manager {
	t.Helper()
	mgr := config.NewManager(t.TempDir())
	require.NoError(t, mgr.Save(&config.Config{
		Host: "127.0.0.1",
		Port: 6970,
		Accounts: []config.AccountConfig{
			{Type: protocol.TypeClaudeCustom, Name: "claude-primary", APIKey: "key"},
		},
	}))
	_, err := mgr.Load()
	require.NoError(t, err)
	return mgr
}

func newTestHandler(t *testing.T, adapter *fakeAdapter) (*GatewayHandler, *pool.Account) {
	t.Helper()
	mgr := pool.NewManager(nil, nil)
	account := pool.NewAccount(adapter.typ, pool.StaticConfig{Name: "test", MaxErrorCount: 3})
	mgr.Register(account)

	fac := &fakeFactory{byUUID: map[string]provideradapter.Adapter{account.UUID: adapter}}
	orch := orchestrator.New(mgr, fac, nil)

	cfgMgr := newTestConfig(t)

	return NewGatewayHandler(orch, cfgMgr, protocol.PrefixClaude, testLogger()), account
}

func TestGatewayHandler_ServeHTTP_NonStreaming(t *testing.T) {
	adapter := &fakeAdapter{
		typ: protocol.TypeClaudeCustom,
		generateFn: func(reqWire []byte) ([]byte, error) {
			return []byte(`{"id":"msg_1","type":"message","role":"assistant","content":[{"type":"text","text":"hi"}],"stop_reason":"end_turn"}`), nil
		},
	}
	handler, _ := newTestHandler(t, adapter)

	body := `{"model":"claude-3-5-sonnet","messages":[{"role":"user","content":[{"type":"text","text":"hello"}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"text":"hi"`)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestGatewayHandler_ServeHTTP_Streaming(t *testing.T) {
	adapter := &fakeAdapter{
		typ: protocol.TypeClaudeCustom,
		streamFn: func(reqWire []byte) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("event: message_stop\ndata: {}\n\n")), nil
		},
	}
	handler, _ := newTestHandler(t, adapter)

	body := `{"model":"claude-3-5-sonnet","stream":true,"messages":[{"role":"user","content":[{"type":"text","text":"hello"}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
}

func TestGatewayHandler_WriteError_MapsPoolExhaustedToServiceUnavailable(t *testing.T) {
	adapter := &fakeAdapter{
		typ: protocol.TypeClaudeCustom,
		generateFn: func(reqWire []byte) ([]byte, error) {
			return nil, gatewayerr.PoolExhausted("no healthy accounts")
		},
	}
	handler, _ := newTestHandler(t, adapter)

	body := `{"model":"claude-3-5-sonnet","messages":[]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestIsStreaming(t *testing.T) {
	assert.True(t, requestIsStreaming([]byte(`{"stream":true}`)))
	assert.False(t, requestIsStreaming([]byte(`{"stream":false}`)))
	assert.False(t, requestIsStreaming([]byte(`{}`)))
	assert.False(t, requestIsStreaming([]byte(`not json`)))
}
