package provideradapter

import (
	"log/slog"

	"github.com/pkoukk/tiktoken-go"
)

// EstimateInputTokens counts callerWire with the cl100k_base encoding.
// The orchestrator computes it once per request and does not use it in
// account selection; it is never a rate limiter or billing figure.
func EstimateInputTokens(logger *slog.Logger, callerWire []byte) int {
	tke, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		if logger != nil {
			logger.Error("get tiktoken encoding", "error", err)
		}
		return 0
	}
	return len(tke.Encode(string(callerWire), nil, nil))
}
