package factory

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxyforge/llmgate/internal/pool"
	"github.com/proxyforge/llmgate/internal/protocol"
	"github.com/proxyforge/llmgate/internal/provideradapter"
)

func inlineCreds(t *testing.T) string {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"access_token": "tok", "refresh_token": "rt"})
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func TestFactory_Get_ReturnsSameAdapterInstanceOnRepeatedLookup(t *testing.T) {
	f := New(nil, OAuthAppCredentials{}, OAuthAppCredentials{})
	account := pool.NewAccount(protocol.TypeOpenAICustom, pool.StaticConfig{Name: "a1", APIKey: "key", Endpoint: "https://example.test"})

	a1, err := f.Get(account)
	require.NoError(t, err)
	a2, err := f.Get(account)
	require.NoError(t, err)

	assert.Same(t, a1, a2)
	assert.Equal(t, protocol.TypeOpenAICustom, a1.Type())
}

func TestFactory_Get_DistinctAccountsGetDistinctAdapters(t *testing.T) {
	f := New(nil, OAuthAppCredentials{}, OAuthAppCredentials{})
	a1 := pool.NewAccount(protocol.TypeOpenAICustom, pool.StaticConfig{Name: "a1", APIKey: "k1", Endpoint: "https://example.test"})
	a2 := pool.NewAccount(protocol.TypeOpenAICustom, pool.StaticConfig{Name: "a2", APIKey: "k2", Endpoint: "https://example.test"})

	adapter1, err := f.Get(a1)
	require.NoError(t, err)
	adapter2, err := f.Get(a2)
	require.NoError(t, err)

	assert.NotSame(t, adapter1, adapter2)
}

func TestFactory_Get_GeminiAccountWithoutCredentialsErrors(t *testing.T) {
	f := New(nil, OAuthAppCredentials{ClientID: "id", ClientSecret: "secret"}, OAuthAppCredentials{})
	account := pool.NewAccount(protocol.TypeGeminiCLIOAuth, pool.StaticConfig{Name: "gem", Endpoint: "https://codeassist.test"})

	_, err := f.Get(account)
	assert.Error(t, err)
}

func TestFactory_Get_GeminiAccountWithInlineCredentialsBuildsUsageReportingAdapter(t *testing.T) {
	f := New(nil, OAuthAppCredentials{ClientID: "id", ClientSecret: "secret"}, OAuthAppCredentials{})
	account := pool.NewAccount(protocol.TypeGeminiCLIOAuth, pool.StaticConfig{
		Name:              "gem",
		Endpoint:          "https://codeassist.test",
		CredentialsInline: inlineCreds(t),
	})

	adapter, err := f.Get(account)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeGeminiCLIOAuth, adapter.Type())

	_, ok := adapter.(provideradapter.UsageReporter)
	assert.True(t, ok, "gemini-cli-oauth adapter should implement UsageReporter")
}

func TestFactory_Get_OpenAIAdapterDoesNotImplementUsageReporter(t *testing.T) {
	f := New(nil, OAuthAppCredentials{}, OAuthAppCredentials{})
	account := pool.NewAccount(protocol.TypeOpenAICustom, pool.StaticConfig{Name: "a1", APIKey: "key", Endpoint: "https://example.test"})

	adapter, err := f.Get(account)
	require.NoError(t, err)

	_, ok := adapter.(provideradapter.UsageReporter)
	assert.False(t, ok, "openai-custom adapter should not implement UsageReporter")
}

func TestFactory_Evict_ForcesReconstruction(t *testing.T) {
	f := New(nil, OAuthAppCredentials{}, OAuthAppCredentials{})
	account := pool.NewAccount(protocol.TypeOpenAICustom, pool.StaticConfig{Name: "a1", APIKey: "key", Endpoint: "https://example.test"})

	a1, err := f.Get(account)
	require.NoError(t, err)
	f.Evict(account)
	a2, err := f.Get(account)
	require.NoError(t, err)

	assert.NotSame(t, a1, a2)
}
