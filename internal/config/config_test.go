package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxyforge/llmgate/internal/protocol"
)

func TestConfig_LoadAndSave(t *testing.T) {
	tmpDir := t.TempDir()
	manager := NewManager(tmpDir)

	cfg := &Config{
		Host:   "127.0.0.1",
		Port:   8080,
		APIKey: "test-key",
		Accounts: []AccountConfig{
			{
				Type:   protocol.TypeOpenAICustom,
				Name:   "openai-primary",
				APIKey: "test-provider-key",
			},
		},
		FallbackChains: map[protocol.ProviderType][]protocol.ProviderType{
			protocol.TypeClaudeCustom: {protocol.TypeClaudeCodeCustom},
		},
	}

	err := manager.Save(cfg)
	require.NoError(t, err, "should be able to save config")

	assert.True(t, manager.Exists(), "config file should exist after saving")

	loadedCfg, err := manager.Load()
	require.NoError(t, err, "should be able to load config")

	assert.Equal(t, cfg.Host, loadedCfg.Host, "host should match")
	assert.Equal(t, cfg.Port, loadedCfg.Port, "port should match")
	assert.Equal(t, cfg.APIKey, loadedCfg.APIKey, "API key should match")

	require.Len(t, loadedCfg.Accounts, 1, "should have 1 account")

	account := loadedCfg.Accounts[0]
	assert.Equal(t, "openai-primary", account.Name, "account name should match")
	assert.Equal(t, protocol.TypeOpenAICustom, account.Type, "account type should match")
	assert.Equal(t, []protocol.ProviderType{protocol.TypeClaudeCodeCustom}, loadedCfg.FallbackChains[protocol.TypeClaudeCustom])
}

func TestConfig_Defaults(t *testing.T) {
	tmpDir := t.TempDir()
	manager := NewManager(tmpDir)

	cfg := &Config{
		Accounts: []AccountConfig{
			{Type: protocol.TypeOpenAICustom, Name: "test", APIKey: "key"},
		},
	}

	err := manager.Save(cfg)
	require.NoError(t, err)

	loadedCfg, err := manager.Load()
	require.NoError(t, err, "should be able to load config")

	assert.Equal(t, DefaultPort, loadedCfg.Port, "should apply default port")
	assert.Equal(t, DefaultHost, loadedCfg.Host, "should apply default host")
	assert.Equal(t, DefaultCronNearMinutes, loadedCfg.CronNearMinutes, "should apply default cron near-minutes")
	assert.Equal(t, DefaultRequestMaxRetries, loadedCfg.RequestMaxRetries, "should apply default retry count")
	assert.Equal(t, defaultAccountMaxErrorCount, loadedCfg.Accounts[0].MaxErrorCount, "should apply default per-account max error count")
}

func TestConfig_EnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	manager := NewManager(tmpDir)

	cfg := &Config{Accounts: []AccountConfig{{Type: protocol.TypeOpenAICustom, Name: "test"}}}
	require.NoError(t, manager.Save(cfg))

	t.Setenv("CRON_NEAR_MINUTES", "5")
	t.Setenv("REQUEST_MAX_RETRIES", "7")
	t.Setenv("USE_SYSTEM_PROXY_OPENAI", "true")

	loadedCfg, err := manager.Load()
	require.NoError(t, err)

	assert.Equal(t, 5, loadedCfg.CronNearMinutes)
	assert.Equal(t, 7, loadedCfg.RequestMaxRetries)
	assert.True(t, loadedCfg.UseSystemProxyOpenAI)
}

func TestConfig_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	manager := NewManager(tmpDir)

	configPath := filepath.Join(tmpDir, DefaultConfigFilename)
	os.WriteFile(configPath, []byte("invalid json"), 0644)

	_, err := manager.Load()
	assert.Error(t, err, "should get error when loading invalid JSON")
}

func TestConfig_MissingFile(t *testing.T) {
	tmpDir := t.TempDir()
	manager := NewManager(tmpDir)

	_, err := manager.Load()
	assert.Error(t, err, "should get error when loading non-existent file")

	assert.False(t, manager.Exists(), "non-existent config should not exist")
}

func TestConfig_GetWithoutLoad(t *testing.T) {
	tmpDir := t.TempDir()
	manager := NewManager(tmpDir)

	cfg := manager.Get()
	assert.NotNil(t, cfg, "should not return nil config")
	assert.Equal(t, DefaultPort, cfg.Port, "should return default port")
	assert.Equal(t, DefaultHost, cfg.Host, "should return default host")
}
