// Package factory implements the process-wide Adapter Factory: a
// (providerType, accountUUID) keyed cache so every account gets exactly
// one Adapter instance for the life of the process, letting OAuth token
// state live in memory across calls (spec.md §4.5).
package factory

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"

	"github.com/proxyforge/llmgate/internal/gatewayerr"
	"github.com/proxyforge/llmgate/internal/oauth"
	"github.com/proxyforge/llmgate/internal/pool"
	"github.com/proxyforge/llmgate/internal/protocol"
	"github.com/proxyforge/llmgate/internal/provideradapter"
)

// OAuthAppCredentials is the gateway's static OAuth client registration
// for one provider family (Gemini Code-Assist or claude-code-custom).
type OAuthAppCredentials struct {
	ClientID     string
	ClientSecret string
}

// Factory lazily builds and caches Adapter instances keyed by
// providerType+uuid. It also owns the per-account oauth.TokenSource
// cache, since a TokenSource (not just the Adapter wrapping it) must
// survive across requests for single-flight refresh to work.
type Factory struct {
	logger *slog.Logger

	gemini      OAuthAppCredentials
	claudeCode  OAuthAppCredentials

	mu           sync.Mutex
	adapters     map[string]provideradapter.Adapter
	tokenSources map[string]*oauth.TokenSource
}

// New constructs a Factory. Either OAuthAppCredentials may be zero-valued
// if the deployment has no accounts of that type.
func New(logger *slog.Logger, gemini, claudeCode OAuthAppCredentials) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		logger:       logger,
		gemini:       gemini,
		claudeCode:   claudeCode,
		adapters:     make(map[string]provideradapter.Adapter),
		tokenSources: make(map[string]*oauth.TokenSource),
	}
}

func adapterKey(t protocol.ProviderType, uuid string) string {
	return string(t) + "/" + uuid
}

// Get returns the cached Adapter for account, constructing it on first
// use.
func (f *Factory) Get(account *pool.Account) (provideradapter.Adapter, error) {
	key := adapterKey(account.Type, account.UUID)

	f.mu.Lock()
	if a, ok := f.adapters[key]; ok {
		f.mu.Unlock()
		return a, nil
	}
	f.mu.Unlock()

	a, err := f.build(account)
	if err != nil {
		return nil, gatewayerr.Config(fmt.Sprintf("construct adapter for account %s", account.UUID), err)
	}

	f.mu.Lock()
	if existing, ok := f.adapters[key]; ok {
		f.mu.Unlock()
		return existing, nil
	}
	f.adapters[key] = a
	f.mu.Unlock()
	return a, nil
}

func (f *Factory) build(account *pool.Account) (provideradapter.Adapter, error) {
	switch account.Type {
	case protocol.TypeOpenAICustom:
		return provideradapter.NewOpenAIAdapter(), nil
	case protocol.TypeOpenAIResponsesCustom:
		return provideradapter.NewOpenAIResponsesAdapter(), nil
	case protocol.TypeClaudeCustom:
		return provideradapter.NewClaudeAdapter(), nil
	case protocol.TypeClaudeCodeCustom:
		ts, err := f.tokenSourceFor(account, f.claudeCode, oauth.AnthropicOAuthEndpoint, oauth.AnthropicScopes)
		if err != nil {
			return nil, err
		}
		return provideradapter.NewClaudeCodeAdapter(ts.AccessToken), nil
	case protocol.TypeGeminiCLIOAuth:
		ts, err := f.tokenSourceFor(account, f.gemini, oauth.GeminiOAuthEndpoint, oauth.GeminiScopes)
		if err != nil {
			return nil, err
		}
		return provideradapter.NewGeminiCLIAdapter(ts.AccessToken), nil
	case protocol.TypeGeminiAntigravity:
		ts, err := f.tokenSourceFor(account, f.gemini, oauth.GeminiOAuthEndpoint, oauth.GeminiScopes)
		if err != nil {
			return nil, err
		}
		return provideradapter.NewAntigravityAdapter(ts.AccessToken), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", account.Type)
	}
}

// tokenSourceFor loads (once) and caches the oauth.TokenSource backing
// an OAuth-credentialed account, choosing between inline-base64 and
// credential-file sources. There is no browser-redirect source; an
// account with neither configured is an error.
func (f *Factory) tokenSourceFor(account *pool.Account, app OAuthAppCredentials, endpoint oauth2.Endpoint, scopes []string) (*oauth.TokenSource, error) {
	f.mu.Lock()
	if ts, ok := f.tokenSources[account.UUID]; ok {
		f.mu.Unlock()
		return ts, nil
	}
	f.mu.Unlock()

	account.Mu.Lock()
	inline := account.Static.CredentialsInline
	file := account.Static.CredentialsFile
	account.Mu.Unlock()

	var (
		creds  oauth.StoredCredentials
		err    error
		source oauth.CredentialSource
		path   string
	)
	switch {
	case inline != "":
		creds, err = oauth.LoadInline(inline)
		source = oauth.SourceInlineBase64
	case file != "":
		creds, err = oauth.LoadFile(file)
		source = oauth.SourceFile
		path = file
	default:
		return nil, fmt.Errorf("account %s has no oauth credential source configured", account.UUID)
	}
	if err != nil {
		return nil, fmt.Errorf("load oauth credentials for account %s: %w", account.UUID, err)
	}

	ts := oauth.NewTokenSource(f.logger, creds, source, path, app.ClientID, app.ClientSecret, endpoint, scopes)

	f.mu.Lock()
	if existing, ok := f.tokenSources[account.UUID]; ok {
		f.mu.Unlock()
		return existing, nil
	}
	f.tokenSources[account.UUID] = ts
	f.mu.Unlock()
	return ts, nil
}

// Evict drops a cached adapter/token source, forcing reconstruction on
// next Get. Used when an account's credential config changes on a hot
// config reload.
func (f *Factory) Evict(account *pool.Account) {
	key := adapterKey(account.Type, account.UUID)
	f.mu.Lock()
	delete(f.adapters, key)
	delete(f.tokenSources, account.UUID)
	f.mu.Unlock()
}
