// Package config loads, saves, and hot-reloads the gateway's
// configuration: listen address, inbound proxy key, the set of upstream
// ProviderAccounts, fallback chains, OAuth app registrations, and the
// pool/retry/proxy knobs spec.md §6's Environment section lists. Keeps a
// YAML-takes-precedence / JSON-fallback load path and an
// atomic.Value-cached Get, built around the typed account/fallback-chain
// model (spec.md §3) rather than a flat provider list.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/proxyforge/llmgate/internal/protocol"
)

const (
	DefaultPort           = 6970
	DefaultConfigFilename = "config.json"
	DefaultYAMLFilename   = "config.yaml"
	DefaultHost           = "127.0.0.1"

	DefaultPoolFilename         = "provider_pools.json"
	DefaultCronNearMinutes      = 10
	DefaultRequestMaxRetries    = 3
	DefaultRequestBaseDelayMs   = 1000
	DefaultOpenAIReasoningMax   = 16000
	defaultAccountMaxErrorCount = 3
)

// AccountConfig is the on-disk shape of one ProviderAccount's static
// config (spec.md §3) — identity, credential material, and the
// operational knobs the pool manager reads at Register time.
type AccountConfig struct {
	UUID               string                `json:"uuid,omitempty" yaml:"uuid,omitempty"`
	Type               protocol.ProviderType `json:"type" yaml:"type"`
	Name               string                `json:"name,omitempty" yaml:"name,omitempty"`
	Endpoint           string                `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	APIKey             string                `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	CredentialsFile    string                `json:"credentials_file,omitempty" yaml:"credentials_file,omitempty"`
	CredentialsInline  string                `json:"credentials_inline,omitempty" yaml:"credentials_inline,omitempty"`
	NotSupportedModels []string              `json:"not_supported_models,omitempty" yaml:"not_supported_models,omitempty"`
	Disabled           bool                  `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	MaxErrorCount      int                   `json:"max_error_count,omitempty" yaml:"max_error_count,omitempty"`
}

// OAuthAppConfig is a static OAuth client registration for one provider
// family, mirrored onto factory.OAuthAppCredentials at bootstrap.
type OAuthAppConfig struct {
	ClientID     string `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty" yaml:"client_secret,omitempty"`
}

// Config is the full gateway configuration (spec.md §6 Environment,
// generalized from flat env vars into one loadable/saveable document).
type Config struct {
	Host   string `json:"HOST,omitempty" yaml:"host,omitempty"`
	Port   int    `json:"PORT,omitempty" yaml:"port,omitempty"`
	APIKey string `json:"APIKEY,omitempty" yaml:"api_key,omitempty"`

	Accounts       []AccountConfig                                     `json:"accounts" yaml:"accounts"`
	FallbackChains map[protocol.ProviderType][]protocol.ProviderType `json:"fallback_chains,omitempty" yaml:"fallback_chains,omitempty"`

	GeminiOAuthApp     OAuthAppConfig `json:"gemini_oauth_app,omitempty" yaml:"gemini_oauth_app,omitempty"`
	ClaudeCodeOAuthApp OAuthAppConfig `json:"claude_code_oauth_app,omitempty" yaml:"claude_code_oauth_app,omitempty"`

	PoolFilePath             string `json:"pool_file_path,omitempty" yaml:"pool_file_path,omitempty"`
	CronNearMinutes          int    `json:"cron_near_minutes,omitempty" yaml:"cron_near_minutes,omitempty"`
	RequestMaxRetries        int    `json:"request_max_retries,omitempty" yaml:"request_max_retries,omitempty"`
	RequestBaseDelayMs       int    `json:"request_base_delay_ms,omitempty" yaml:"request_base_delay_ms,omitempty"`
	OpenAIReasoningMaxTokens int    `json:"openai_reasoning_max_tokens,omitempty" yaml:"openai_reasoning_max_tokens,omitempty"`

	UseSystemProxyGemini bool `json:"use_system_proxy_gemini,omitempty" yaml:"use_system_proxy_gemini,omitempty"`
	UseSystemProxyOpenAI bool `json:"use_system_proxy_openai,omitempty" yaml:"use_system_proxy_openai,omitempty"`
	UseSystemProxyClaude bool `json:"use_system_proxy_claude,omitempty" yaml:"use_system_proxy_claude,omitempty"`
}

type Manager struct {
	baseDir     string
	jsonPath    string
	yamlPath    string
	configValue atomic.Value
}

func NewManager(baseDir string) *Manager {
	return &Manager{
		baseDir:  baseDir,
		jsonPath: filepath.Join(baseDir, DefaultConfigFilename),
		yamlPath: filepath.Join(baseDir, DefaultYAMLFilename),
	}
}

func (m *Manager) Load() (*Config, error) {
	var cfg Config
	var err error

	if _, yamlErr := os.Stat(m.yamlPath); yamlErr == nil {
		cfg, err = m.loadYAML()
		if err != nil {
			return nil, fmt.Errorf("load YAML config: %w", err)
		}
	} else if _, jsonErr := os.Stat(m.jsonPath); jsonErr == nil {
		cfg, err = m.loadJSON()
		if err != nil {
			return nil, fmt.Errorf("load JSON config: %w", err)
		}
	} else {
		return nil, fmt.Errorf("no configuration file found (looked for %s or %s)", m.yamlPath, m.jsonPath)
	}

	m.applyDefaults(&cfg)
	m.applyEnvOverrides(&cfg)

	m.configValue.Store(&cfg)
	return &cfg, nil
}

func (m *Manager) loadYAML() (Config, error) {
	var cfg Config
	data, err := os.ReadFile(m.yamlPath)
	if err != nil {
		return cfg, fmt.Errorf("read YAML config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal YAML config: %w", err)
	}
	return cfg, nil
}

func (m *Manager) loadJSON() (Config, error) {
	var cfg Config
	data, err := os.ReadFile(m.jsonPath)
	if err != nil {
		return cfg, fmt.Errorf("read JSON config file: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal JSON config: %w", err)
	}
	return cfg, nil
}

// applyDefaults fills in every knob spec.md §6's Environment section
// gives a default for, plus per-account MaxErrorCount.
func (m *Manager) applyDefaults(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.PoolFilePath == "" {
		cfg.PoolFilePath = filepath.Join(m.baseDir, DefaultPoolFilename)
	}
	if cfg.CronNearMinutes == 0 {
		cfg.CronNearMinutes = DefaultCronNearMinutes
	}
	if cfg.RequestMaxRetries == 0 {
		cfg.RequestMaxRetries = DefaultRequestMaxRetries
	}
	if cfg.RequestBaseDelayMs == 0 {
		cfg.RequestBaseDelayMs = DefaultRequestBaseDelayMs
	}
	if cfg.OpenAIReasoningMaxTokens == 0 {
		cfg.OpenAIReasoningMaxTokens = DefaultOpenAIReasoningMax
	}
	for i := range cfg.Accounts {
		if cfg.Accounts[i].MaxErrorCount == 0 {
			cfg.Accounts[i].MaxErrorCount = defaultAccountMaxErrorCount
		}
	}
}

// applyEnvOverrides lets the environment variables spec.md §6 names win
// over whatever the file says, the same precedence direction the
// teacher's CCO_API_KEY bootstrap used (env as the deployment-time
// override layer above the checked-in file).
func (m *Manager) applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PROVIDER_POOLS_FILE_PATH"); v != "" {
		cfg.PoolFilePath = v
	}
	if v, ok := envInt("CRON_NEAR_MINUTES"); ok {
		cfg.CronNearMinutes = v
	}
	if v, ok := envInt("REQUEST_MAX_RETRIES"); ok {
		cfg.RequestMaxRetries = v
	}
	if v, ok := envInt("REQUEST_BASE_DELAY"); ok {
		cfg.RequestBaseDelayMs = v
	}
	if v, ok := envInt("OPENAI_REASONING_MAX_TOKENS"); ok {
		cfg.OpenAIReasoningMaxTokens = v
	}
	if v, ok := envBool("USE_SYSTEM_PROXY_GEMINI"); ok {
		cfg.UseSystemProxyGemini = v
	}
	if v, ok := envBool("USE_SYSTEM_PROXY_OPENAI"); ok {
		cfg.UseSystemProxyOpenAI = v
	}
	if v, ok := envBool("USE_SYSTEM_PROXY_CLAUDE"); ok {
		cfg.UseSystemProxyClaude = v
	}
}

func envInt(name string) (int, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envBool(name string) (bool, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func (m *Manager) Get() *Config {
	if v := m.configValue.Load(); v != nil {
		return v.(*Config)
	}
	cfg, err := m.Load()
	if err != nil {
		return &Config{Host: DefaultHost, Port: DefaultPort}
	}
	return cfg
}

func (m *Manager) Save(cfg *Config) error {
	return m.SaveAsYAML(cfg)
}

func (m *Manager) SaveAsYAML(cfg *Config) error {
	if err := os.MkdirAll(m.baseDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal YAML config: %w", err)
	}
	if err := os.WriteFile(m.yamlPath, data, 0644); err != nil {
		return fmt.Errorf("write YAML config file: %w", err)
	}
	m.configValue.Store(cfg)
	return nil
}

func (m *Manager) SaveAsJSON(cfg *Config) error {
	if err := os.MkdirAll(m.baseDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON config: %w", err)
	}
	if err := os.WriteFile(m.jsonPath, data, 0644); err != nil {
		return fmt.Errorf("write JSON config file: %w", err)
	}
	m.configValue.Store(cfg)
	return nil
}

func (m *Manager) GetPath() string {
	if _, err := os.Stat(m.yamlPath); err == nil {
		return m.yamlPath
	}
	return m.jsonPath
}

func (m *Manager) GetYAMLPath() string { return m.yamlPath }
func (m *Manager) GetJSONPath() string { return m.jsonPath }

func (m *Manager) Exists() bool {
	_, yamlErr := os.Stat(m.yamlPath)
	_, jsonErr := os.Stat(m.jsonPath)
	return yamlErr == nil || jsonErr == nil
}

func (m *Manager) HasYAML() bool {
	_, err := os.Stat(m.yamlPath)
	return err == nil
}

func (m *Manager) HasJSON() bool {
	_, err := os.Stat(m.jsonPath)
	return err == nil
}

// CreateExampleYAML writes a starter config with one account per
// protocol family, so `llmgate config generate` (cmd/config.go) has
// something concrete to hand the operator.
func (m *Manager) CreateExampleYAML() error {
	cfg := &Config{
		Host:   DefaultHost,
		Port:   DefaultPort,
		APIKey: "your-proxy-api-key-here",
		Accounts: []AccountConfig{
			{Type: protocol.TypeOpenAICustom, Name: "openai", APIKey: "your-openai-api-key"},
			{Type: protocol.TypeOpenAIResponsesCustom, Name: "openai-responses", APIKey: "your-openai-api-key"},
			{Type: protocol.TypeClaudeCustom, Name: "anthropic", APIKey: "your-anthropic-api-key"},
			{Type: protocol.TypeClaudeCodeCustom, Name: "claude-code", CredentialsFile: "~/.claude/oauth_creds.json"},
			{Type: protocol.TypeGeminiCLIOAuth, Name: "gemini-cli", CredentialsFile: "~/.gemini/oauth_creds.json"},
		},
		FallbackChains: map[protocol.ProviderType][]protocol.ProviderType{
			protocol.TypeClaudeCustom: {protocol.TypeClaudeCodeCustom},
		},
	}
	m.applyDefaults(cfg)
	return m.SaveAsYAML(cfg)
}
