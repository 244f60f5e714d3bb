// Command llmgate is a multi-provider LLM gateway: it pools several
// upstream accounts (OpenAI, Anthropic/Claude, Gemini) behind a single
// local endpoint, converting between each provider's wire format and
// failing over across a configured chain when an account errors out.
//
// Usage:
//
//	# Generate an example configuration
//	llmgate config generate
//
//	# Start the gateway in the foreground
//	llmgate start
//
//	# Run a downstream CLI against the running gateway
//	llmgate code claude
package main

import "github.com/proxyforge/llmgate/cmd"

func main() {
	cmd.Execute()
}
