package cmd

import (
	"errors"
	"os"
	"os/exec"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/proxyforge/llmgate/internal/process"
)

var codeCmd = &cobra.Command{
	Use:   "code <binary> [args...]",
	Short: "Run a downstream CLI against the gateway",
	Long:  `Start the gateway service if needed and run the given CLI binary (e.g. "claude") with its Anthropic-compatible environment pointed at this gateway's /v1/messages route.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCode,
}

func runCode(cmd *cobra.Command, args []string) error {
	binary, cliArgs := args[0], args[1:]

	procMgr := process.NewManager(baseDir)
	cfg := cfgMgr.Get()
	if cfg == nil {
		return errors.New("configuration not loaded")
	}

	serviceStartedByUs, err := procMgr.StartServiceIfNeeded()
	if err != nil {
		return err
	}

	env := os.Environ()
	env = filterEnv(env, "ANTHROPIC_AUTH_TOKEN")
	env = filterEnv(env, "ANTHROPIC_API_KEY")

	if cfg.APIKey != "" {
		env = append(env, "ANTHROPIC_API_KEY="+cfg.APIKey)
	} else {
		env = append(env, "ANTHROPIC_AUTH_TOKEN=proxy")
	}

	env = append(env, "ANTHROPIC_BASE_URL=http://"+cfg.Host+":"+strconv.Itoa(cfg.Port))
	env = append(env, "API_TIMEOUT_MS=600000")

	procMgr.IncrementRef()
	defer func() {
		procMgr.DecrementRef()
		if serviceStartedByUs && procMgr.ReadRef() == 0 {
			color.Yellow("No more active sessions, stopping auto-started service...")
			procMgr.Stop()
		}
	}()

	downstream := exec.Command(binary, cliArgs...)
	downstream.Env = env
	downstream.Stdin = os.Stdin
	downstream.Stdout = os.Stdout
	downstream.Stderr = os.Stderr

	return downstream.Run()
}

func filterEnv(env []string, key string) []string {
	var filtered []string
	prefix := key + "="
	for _, e := range env {
		if !startsWith(e, prefix) {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

func startsWith(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
