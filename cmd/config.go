package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/proxyforge/llmgate/internal/config"
	"github.com/proxyforge/llmgate/internal/protocol"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage the LLM gateway configuration.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration interactively",
	Long:  `Initialize configuration by prompting for one upstream account's details.`,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration.`,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  `Validate the current configuration for errors.`,
	RunE:  runConfigValidate,
}

var configGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate example YAML configuration",
	Long:  `Generate an example YAML configuration file with one account per provider family.`,
	RunE:  runConfigGenerate,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configGenerateCmd)

	configGenerateCmd.Flags().BoolP("force", "f", false, "Overwrite existing configuration file")
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	color.Blue("LLM Gateway Configuration Setup")
	color.Yellow("Follow the prompts to configure your first upstream account.")

	reader := bufio.NewReader(os.Stdin)

	fmt.Print("\nAccount type (openai-custom, openai-responses-custom, claude-custom, claude-code-custom, gemini-cli-oauth, gemini-antigravity): ")
	accountType, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("error reading account type: %w", err)
	}
	accountType = strings.TrimSpace(accountType)

	fmt.Print("Account name: ")
	name, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("error reading account name: %w", err)
	}
	name = strings.TrimSpace(name)

	fmt.Print("API Key (leave blank for OAuth/credentials-file accounts): ")
	apiKey, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("error reading API key: %w", err)
	}
	apiKey = strings.TrimSpace(apiKey)

	fmt.Print("Gateway inbound API Key (optional, for authenticating callers): ")
	gatewayAPIKey, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("error reading gateway API key: %w", err)
	}
	gatewayAPIKey = strings.TrimSpace(gatewayAPIKey)

	cfg := &config.Config{
		Host:   config.DefaultHost,
		Port:   config.DefaultPort,
		APIKey: gatewayAPIKey,
		Accounts: []config.AccountConfig{
			{
				Type:   protocol.ProviderType(accountType),
				Name:   name,
				APIKey: apiKey,
			},
		},
	}

	if err := cfgMgr.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	color.Green("Configuration saved successfully to: %s", cfgMgr.GetPath())
	color.Cyan("You can now start the gateway with: llmgate start")

	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if !cfgMgr.Exists() {
		color.Yellow("No configuration found. Run 'llmgate config init' or 'llmgate config generate' to create one.")
		return nil
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	color.Blue("Current Configuration:")
	fmt.Printf("  %-15s: %s\n", "Host", cfg.Host)
	fmt.Printf("  %-15s: %d\n", "Port", cfg.Port)
	fmt.Printf("  %-15s: %s\n", "API Key", maskString(cfg.APIKey))
	fmt.Printf("  %-15s: %s\n", "Config Path", cfgMgr.GetPath())
	fmt.Printf("  %-15s: %s\n", "Pool File", cfg.PoolFilePath)

	configType := "JSON"
	if cfgMgr.HasYAML() {
		configType = "YAML"
	}
	fmt.Printf("  %-15s: %s\n", "Format", configType)

	fmt.Println("\nAccounts:")
	for _, account := range cfg.Accounts {
		fmt.Printf("  - Name: %s\n", account.Name)
		fmt.Printf("    Type: %s\n", account.Type)
		if account.Endpoint != "" {
			fmt.Printf("    Endpoint: %s\n", account.Endpoint)
		}
		if account.APIKey != "" {
			fmt.Printf("    API Key: %s\n", maskString(account.APIKey))
		}
		if account.CredentialsFile != "" {
			fmt.Printf("    Credentials File: %s\n", account.CredentialsFile)
		}
		if len(account.NotSupportedModels) > 0 {
			fmt.Printf("    Not Supported Models: %v\n", account.NotSupportedModels)
		}
		if account.Disabled {
			fmt.Println("    Disabled: true")
		}
		fmt.Println()
	}

	if len(cfg.FallbackChains) > 0 {
		fmt.Println("Fallback Chains:")
		for primary, types := range cfg.FallbackChains {
			fmt.Printf("  %-20s -> %v\n", primary, types)
		}
	}

	return nil
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	if !cfgMgr.Exists() {
		return errors.New("no configuration found")
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	var validationErrors []string

	if len(cfg.Accounts) == 0 {
		validationErrors = append(validationErrors, "no accounts configured")
	}

	for i, account := range cfg.Accounts {
		if account.Name == "" {
			validationErrors = append(validationErrors, fmt.Sprintf("account %d: name is required", i))
		}
		if account.Type == "" {
			validationErrors = append(validationErrors, fmt.Sprintf("account %d: type is required", i))
		}
		if account.APIKey == "" && account.CredentialsFile == "" && account.CredentialsInline == "" {
			validationErrors = append(validationErrors, fmt.Sprintf("account %d (%s): needs an API key or OAuth credentials", i, account.Name))
		}
	}

	for primary, types := range cfg.FallbackChains {
		for _, t := range types {
			if protocol.PrefixOf(t) != protocol.PrefixOf(primary) {
				validationErrors = append(validationErrors, fmt.Sprintf("fallback chain %s: %s speaks a different protocol and can never be tried", primary, t))
			}
		}
	}

	if len(validationErrors) > 0 {
		color.Red("Configuration validation failed:")
		for _, err := range validationErrors {
			fmt.Printf("  - %s\n", err)
		}
		return errors.New("configuration validation failed")
	}

	color.Green("Configuration is valid!")

	return nil
}

func runConfigGenerate(cmd *cobra.Command, _ []string) error {
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if cfgMgr.Exists() && !force {
		configType := "JSON"
		if cfgMgr.HasYAML() {
			configType = "YAML"
		}

		color.Yellow("Configuration file already exists (%s format): %s", configType, cfgMgr.GetPath())
		color.Cyan("Use --force to overwrite, or 'llmgate config show' to view current config")

		return nil
	}

	if err := cfgMgr.CreateExampleYAML(); err != nil {
		return fmt.Errorf("failed to create example configuration: %w", err)
	}

	color.Green("Example YAML configuration created: %s", cfgMgr.GetYAMLPath())
	color.Cyan("\nNext steps:")
	fmt.Println("1. Edit the configuration file to add your API keys / OAuth credentials")
	fmt.Println("2. Adjust the fallback chains for your accounts as needed")
	fmt.Println("3. Run 'llmgate config validate' to check your configuration")
	fmt.Println("4. Start the gateway with 'llmgate start'")

	color.Yellow("\nNote: the example configuration includes one account per provider family:")
	fmt.Println("- OpenAI (chat completions)")
	fmt.Println("- OpenAI (responses API)")
	fmt.Println("- Anthropic (Claude API keys)")
	fmt.Println("- Claude Code (OAuth)")
	fmt.Println("- Gemini CLI (OAuth)")

	return nil
}

func maskString(s string) string {
	if s == "" {
		return "(not set)"
	}

	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}

	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
