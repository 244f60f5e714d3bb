package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"
)

// GeminiOAuthEndpoint is the Code Assist OAuth token endpoint the
// teacher's pack analogues (taipm-go-deep-agent's genai/oauth2 stack)
// use for installed-app style credentials.
var GeminiOAuthEndpoint = google.Endpoint

// GeminiScopes is the OAuth scope set Code-Assist requires.
var GeminiScopes = []string{"https://www.googleapis.com/auth/cloud-platform"}

// AnthropicOAuthEndpoint is the claude-code-custom token endpoint: same
// refresh-token grant shape as Gemini's installed-app flow, distinct
// issuer, per claude-code-custom's "distinct OAuth/token-file credential
// path" (SPEC_FULL.md §4.2).
var AnthropicOAuthEndpoint = oauth2.Endpoint{
	AuthURL:  "https://console.anthropic.com/oauth/authorize",
	TokenURL: "https://console.anthropic.com/v1/oauth/token",
}

// AnthropicScopes is the OAuth scope set claude-code-custom requires.
var AnthropicScopes = []string{"org:create_api_key", "user:profile", "user:inference"}

// TokenSource wraps an oauth2.TokenSource with the gateway's
// near-expiry check and single-flight refresh de-duplication, so two
// concurrent 401s on the same account trigger exactly one refresh
// (spec.md §5).
type TokenSource struct {
	logger *slog.Logger
	path   string // empty for inline/browser-sourced credentials
	source CredentialSource
	conf   *oauth2.Config

	group singleflight.Group
	inner oauth2.TokenSource
	creds StoredCredentials
}

// NewTokenSource builds a token source from already-loaded credentials
// against the given OAuth endpoint/scopes, so both the Gemini
// (GeminiOAuthEndpoint/GeminiScopes) and claude-code-custom
// (AnthropicOAuthEndpoint/AnthropicScopes) adapters can share this one
// refresh/single-flight implementation. clientID/clientSecret come from
// the gateway's static OAuth app registration for that provider family.
func NewTokenSource(logger *slog.Logger, creds StoredCredentials, source CredentialSource, path, clientID, clientSecret string, endpoint oauth2.Endpoint, scopes []string) *TokenSource {
	if logger == nil {
		logger = slog.Default()
	}
	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     endpoint,
		Scopes:       scopes,
	}
	ts := &TokenSource{logger: logger, path: path, source: source, conf: conf, creds: creds}
	ts.inner = conf.TokenSource(context.Background(), &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Expiry:       creds.Expiry,
	})
	return ts
}

// Near reports whether the current token should be refreshed before use.
func (t *TokenSource) Near() bool {
	return isExpiryDateNear(t.creds, nil)
}

// AccessToken returns a valid access token, refreshing first if the
// token is near expiry or refresh is forced (called after a 401).
// Concurrent callers for the same account share one in-flight refresh.
func (t *TokenSource) AccessToken(ctx context.Context, force bool) (string, error) {
	if !force && !t.Near() {
		return t.creds.AccessToken, nil
	}

	v, err, _ := t.group.Do("refresh", func() (any, error) {
		if !force && !t.Near() {
			return t.creds.AccessToken, nil
		}
		// A source seeded with only the refresh token always calls the token
		// endpoint; t.inner would hand back its cached token for as long as
		// oauth2 still considers it valid.
		tok, err := t.conf.TokenSource(context.Background(), &oauth2.Token{RefreshToken: t.creds.RefreshToken}).Token()
		if err != nil {
			return nil, fmt.Errorf("refresh gemini oauth token: %w", err)
		}
		t.creds.AccessToken = tok.AccessToken
		t.creds.Expiry = tok.Expiry
		if tok.RefreshToken != "" {
			t.creds.RefreshToken = tok.RefreshToken
		}
		if t.source == SourceFile && t.path != "" {
			if err := SaveFile(t.path, t.creds); err != nil {
				t.logger.Warn("persist refreshed gemini credentials", "error", err)
			}
		}
		return tok.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// WaitForBrowserRedirect blocks until a browser-flow redirect delivers an
// authorization code on the given channel, or ctx/timeout expires. The
// spec's 5-minute OAuth browser-poll timeout (spec.md §5) is enforced by
// the caller's context.
func WaitForBrowserRedirect(ctx context.Context, codeCh <-chan string) (string, error) {
	select {
	case code := <-codeCh:
		return code, nil
	case <-ctx.Done():
		return "", fmt.Errorf("browser oauth redirect timed out: %w", ctx.Err())
	}
}

// defaultBrowserTimeout is the 5-minute ceiling named in spec.md §5.
const defaultBrowserTimeout = 5 * time.Minute
