package provideradapter

import (
	"context"
	"fmt"

	"github.com/proxyforge/llmgate/internal/pool"
	"github.com/proxyforge/llmgate/internal/protocol"
)

func staticAPIKeyAuth(headerName string, format string) AuthFunc {
	return func(ctx context.Context, account *pool.Account, force bool) (string, string, error) {
		account.Mu.Lock()
		key := account.Static.APIKey
		account.Mu.Unlock()
		if key == "" {
			return "", "", fmt.Errorf("account %s has no api key configured", account.UUID)
		}
		if format == "" {
			return headerName, key, nil
		}
		return headerName, fmt.Sprintf(format, key), nil
	}
}

func staticEndpointURL(account *pool.Account, _ string, _ bool) string {
	account.Mu.Lock()
	defer account.Mu.Unlock()
	return account.Static.Endpoint
}

// NewOpenAIAdapter handles openai-custom: OpenAI Chat Completions wire
// shape, static API key.
func NewOpenAIAdapter() Adapter {
	return newHTTPAdapter(httpConfig{
		typ:  protocol.TypeOpenAICustom,
		url:  staticEndpointURL,
		auth: staticAPIKeyAuth("Authorization", "Bearer %s"),
	})
}

// NewOpenAIResponsesAdapter handles openai-responses-custom.
func NewOpenAIResponsesAdapter() Adapter {
	return newHTTPAdapter(httpConfig{
		typ:  protocol.TypeOpenAIResponsesCustom,
		url:  staticEndpointURL,
		auth: staticAPIKeyAuth("Authorization", "Bearer %s"),
	})
}

// NewClaudeAdapter handles claude-custom: Anthropic Messages wire shape,
// static API key in the x-api-key header.
func NewClaudeAdapter() Adapter {
	return newHTTPAdapter(httpConfig{
		typ:  protocol.TypeClaudeCustom,
		url:  staticEndpointURL,
		auth: staticAPIKeyAuth("x-api-key", ""),
	})
}

// NewClaudeCodeAdapter handles claude-code-custom: same Anthropic wire
// shape as claude-custom, but credentials come from a Claude Code OAuth
// token file rather than a static key.
func NewClaudeCodeAdapter(tokenProvider func(ctx context.Context, account *pool.Account, force bool) (string, error)) Adapter {
	inner := newHTTPAdapter(httpConfig{
		typ: protocol.TypeClaudeCodeCustom,
		url: staticEndpointURL,
		auth: func(ctx context.Context, account *pool.Account, force bool) (string, string, error) {
			token, err := tokenProvider(ctx, account, force)
			if err != nil {
				return "", "", err
			}
			return "Authorization", "Bearer " + token, nil
		},
	})
	return &usageReportingAdapter{
		httpAdapter: inner,
		quotaURL: func(account *pool.Account) string {
			account.Mu.Lock()
			defer account.Mu.Unlock()
			return account.Static.Endpoint + "/usage"
		},
	}
}

// geminiOAuthURL builds the Code Assist v1internal endpoint, appending
// alt=sse for streaming calls (spec.md §6).
func geminiOAuthURL(account *pool.Account, _ string, stream bool) string {
	account.Mu.Lock()
	endpoint := account.Static.Endpoint
	account.Mu.Unlock()

	method := "generateContent"
	if stream {
		method = "streamGenerateContent"
	}
	url := fmt.Sprintf("%s/v1internal:%s", endpoint, method)
	if stream {
		url += "?alt=sse"
	}
	return url
}

// NewGeminiCLIAdapter handles gemini-cli-oauth: Gemini Code-Assist wire
// protocol, OAuth bearer token with refresh-on-401.
func NewGeminiCLIAdapter(tokenProvider func(ctx context.Context, account *pool.Account, force bool) (string, error)) Adapter {
	return newGeminiFamilyAdapter(protocol.TypeGeminiCLIOAuth, tokenProvider)
}

// NewAntigravityAdapter handles gemini-antigravity: same Gemini wire
// protocol as gemini-cli-oauth, distinct credential source/endpoint
// (spec.md §4.2).
func NewAntigravityAdapter(tokenProvider func(ctx context.Context, account *pool.Account, force bool) (string, error)) Adapter {
	return newGeminiFamilyAdapter(protocol.TypeGeminiAntigravity, tokenProvider)
}

// newGeminiFamilyAdapter builds the shared Gemini Code-Assist transport
// for both OAuth-backed provider types, which differ only in their type
// tag and (via geminiOAuthURL reading the account's own endpoint) their
// upstream host.
func newGeminiFamilyAdapter(typ protocol.ProviderType, tokenProvider func(ctx context.Context, account *pool.Account, force bool) (string, error)) Adapter {
	inner := newHTTPAdapter(httpConfig{
		typ: typ,
		url: geminiOAuthURL,
		auth: func(ctx context.Context, account *pool.Account, force bool) (string, string, error) {
			token, err := tokenProvider(ctx, account, force)
			if err != nil {
				return "", "", err
			}
			return "Authorization", "Bearer " + token, nil
		},
	})
	return &usageReportingAdapter{
		httpAdapter: inner,
		quotaURL: func(account *pool.Account) string {
			account.Mu.Lock()
			endpoint := account.Static.Endpoint
			account.Mu.Unlock()
			return endpoint + "/v1internal:retrieveUserQuota"
		},
	}
}
