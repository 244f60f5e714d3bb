package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxyforge/llmgate/internal/protocol"
)

func TestManager_YAML_Support(t *testing.T) {
	tempDir := t.TempDir()
	mgr := NewManager(tempDir)

	yamlConfig := `
host: "0.0.0.0"
port: 8080
api_key: "test-proxy-key"
accounts:
  - type: "openai-custom"
    name: "openai-primary"
    api_key: "test-openai-key"
  - type: "claude-custom"
    name: "anthropic-primary"
    api_key: "test-anthropic-key"
fallback_chains:
  claude-custom: ["claude-code-custom"]
`

	yamlPath := filepath.Join(tempDir, DefaultYAMLFilename)
	err := os.WriteFile(yamlPath, []byte(yamlConfig), 0644)
	require.NoError(t, err)

	cfg, err := mgr.Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "test-proxy-key", cfg.APIKey)

	require.Len(t, cfg.Accounts, 2)

	openai := cfg.Accounts[0]
	assert.Equal(t, protocol.TypeOpenAICustom, openai.Type)
	assert.Equal(t, "openai-primary", openai.Name)
	assert.Equal(t, "test-openai-key", openai.APIKey)
	assert.Equal(t, defaultAccountMaxErrorCount, openai.MaxErrorCount)

	claude := cfg.Accounts[1]
	assert.Equal(t, protocol.TypeClaudeCustom, claude.Type)

	assert.Equal(t, []protocol.ProviderType{protocol.TypeClaudeCodeCustom}, cfg.FallbackChains[protocol.TypeClaudeCustom])
}

func TestManager_YAML_Takes_Precedence(t *testing.T) {
	tempDir := t.TempDir()
	mgr := NewManager(tempDir)

	jsonConfig := `{
		"HOST": "127.0.0.1",
		"PORT": 6970,
		"accounts": [
			{"type": "openai-custom", "name": "from-json", "api_key": "json-key"}
		]
	}`

	yamlConfig := `
host: "0.0.0.0"
port: 8080
accounts:
  - type: "openai-custom"
    name: "from-yaml"
    api_key: "yaml-key"
`

	jsonPath := filepath.Join(tempDir, DefaultConfigFilename)
	yamlPath := filepath.Join(tempDir, DefaultYAMLFilename)

	err := os.WriteFile(jsonPath, []byte(jsonConfig), 0644)
	require.NoError(t, err)

	err = os.WriteFile(yamlPath, []byte(yamlConfig), 0644)
	require.NoError(t, err)

	cfg, err := mgr.Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "from-yaml", cfg.Accounts[0].Name)
	assert.Equal(t, "yaml-key", cfg.Accounts[0].APIKey)
}

func TestManager_SaveAsYAML(t *testing.T) {
	tempDir := t.TempDir()
	mgr := NewManager(tempDir)

	cfg := &Config{
		Host:   "127.0.0.1",
		Port:   7000,
		APIKey: "test-key",
		Accounts: []AccountConfig{
			{Type: protocol.TypeOpenAICustom, Name: "openrouter", APIKey: "test-openrouter-key"},
		},
	}

	err := mgr.SaveAsYAML(cfg)
	require.NoError(t, err)

	yamlPath := filepath.Join(tempDir, DefaultYAMLFilename)
	assert.FileExists(t, yamlPath)

	loadedCfg, err := mgr.Load()
	require.NoError(t, err)

	assert.Equal(t, cfg.Host, loadedCfg.Host)
	assert.Equal(t, cfg.Port, loadedCfg.Port)
	assert.Equal(t, cfg.APIKey, loadedCfg.APIKey)
	assert.Equal(t, cfg.Accounts[0].Name, loadedCfg.Accounts[0].Name)
	assert.Equal(t, cfg.Accounts[0].APIKey, loadedCfg.Accounts[0].APIKey)
}

func TestManager_CreateExampleYAML(t *testing.T) {
	tempDir := t.TempDir()
	mgr := NewManager(tempDir)

	err := mgr.CreateExampleYAML()
	require.NoError(t, err)

	yamlPath := filepath.Join(tempDir, DefaultYAMLFilename)
	assert.FileExists(t, yamlPath)

	cfg, err := mgr.Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, "your-proxy-api-key-here", cfg.APIKey)

	require.Len(t, cfg.Accounts, 5)

	accountTypes := make([]protocol.ProviderType, len(cfg.Accounts))
	for i, a := range cfg.Accounts {
		accountTypes[i] = a.Type
		assert.Equal(t, defaultAccountMaxErrorCount, a.MaxErrorCount, "account %s should have the default max error count", a.Name)
	}

	assert.Contains(t, accountTypes, protocol.TypeOpenAICustom)
	assert.Contains(t, accountTypes, protocol.TypeClaudeCustom)
	assert.Contains(t, accountTypes, protocol.TypeClaudeCodeCustom)
	assert.Contains(t, accountTypes, protocol.TypeGeminiCLIOAuth)

	assert.Equal(t, []protocol.ProviderType{protocol.TypeClaudeCodeCustom}, cfg.FallbackChains[protocol.TypeClaudeCustom])
}

func TestManager_DefaultsApplication(t *testing.T) {
	tempDir := t.TempDir()
	mgr := NewManager(tempDir)

	yamlConfig := `
accounts:
  - type: "openai-custom"
    name: "openrouter"
    api_key: "test-key"
`

	yamlPath := filepath.Join(tempDir, DefaultYAMLFilename)
	err := os.WriteFile(yamlPath, []byte(yamlConfig), 0644)
	require.NoError(t, err)

	cfg, err := mgr.Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, filepath.Join(tempDir, DefaultPoolFilename), cfg.PoolFilePath)
	assert.Equal(t, DefaultCronNearMinutes, cfg.CronNearMinutes)
	assert.Equal(t, defaultAccountMaxErrorCount, cfg.Accounts[0].MaxErrorCount)
}

func TestManager_FileDetection(t *testing.T) {
	tempDir := t.TempDir()
	mgr := NewManager(tempDir)

	assert.False(t, mgr.Exists())
	assert.False(t, mgr.HasYAML())
	assert.False(t, mgr.HasJSON())

	jsonPath := filepath.Join(tempDir, DefaultConfigFilename)
	err := os.WriteFile(jsonPath, []byte(`{"HOST": "127.0.0.1"}`), 0644)
	require.NoError(t, err)

	assert.True(t, mgr.Exists())
	assert.False(t, mgr.HasYAML())
	assert.True(t, mgr.HasJSON())
	assert.Equal(t, jsonPath, mgr.GetPath())

	yamlPath := filepath.Join(tempDir, DefaultYAMLFilename)
	err = os.WriteFile(yamlPath, []byte(`host: "0.0.0.0"`), 0644)
	require.NoError(t, err)

	assert.True(t, mgr.Exists())
	assert.True(t, mgr.HasYAML())
	assert.True(t, mgr.HasJSON())
	assert.Equal(t, yamlPath, mgr.GetPath())
}

func TestManager_Watch_ReloadsOnFileChange(t *testing.T) {
	tempDir := t.TempDir()
	mgr := NewManager(tempDir)

	initial := &Config{Host: "127.0.0.1", Accounts: []AccountConfig{{Type: protocol.TypeOpenAICustom, Name: "a"}}}
	require.NoError(t, mgr.SaveAsYAML(initial))
	_, err := mgr.Load()
	require.NoError(t, err)

	reloaded := make(chan *Config, 1)
	w, err := mgr.Watch(nil, func(cfg *Config, err error) {
		if err == nil {
			reloaded <- cfg
		}
	})
	require.NoError(t, err)
	defer w.Stop()

	updated := &Config{Host: "0.0.0.0", Accounts: []AccountConfig{{Type: protocol.TypeOpenAICustom, Name: "a"}}}
	require.NoError(t, mgr.SaveAsYAML(updated))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "0.0.0.0", cfg.Host)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config reload event")
	}
}
