package provideradapter

import (
	"encoding/json"
	"fmt"
	"strings"
)

// antiTruncationModelPrefix is the "anti-" model prefix that opts a call
// into the continuation loop (spec.md §4.2, §8 scenario 5).
const antiTruncationModelPrefix = "anti-"

// IsAntiTruncationModel reports whether model requests the continuation
// behavior, and returns the underlying model name with the prefix
// stripped.
func IsAntiTruncationModel(model string) (bare string, enabled bool) {
	if strings.HasPrefix(model, antiTruncationModelPrefix) {
		return strings.TrimPrefix(model, antiTruncationModelPrefix), true
	}
	return model, false
}

// maxContinuationRounds caps the anti-truncation loop so a persistently
// truncating upstream can't hang a request forever.
const maxContinuationRounds = 8

// ContinuationCall performs zero or more continuation rounds against an
// upstream that keeps finishing with stop_reason "max_tokens": each round
// re-marshals the Claude-shape wire request (the orchestrator's pivot
// format) with the prior round's assistant reply plus a fixed "Please
// continue from where you left off." user turn appended, and re-invokes
// call, concatenating the "content" blocks
// across rounds until a non-max_tokens stop_reason is seen or the round
// cap is hit. claudeWireRequest and every value call returns are raw
// Claude Messages JSON, the same shape internal/convert treats as the
// converter matrix's pivot.
func ContinuationCall(claudeWireRequest []byte, call func([]byte) ([]byte, error)) ([]byte, error) {
	var req map[string]any
	if err := json.Unmarshal(claudeWireRequest, &req); err != nil {
		return nil, fmt.Errorf("unmarshal claude request for continuation: %w", err)
	}
	messages, _ := req["messages"].([]any)
	messages = append([]any(nil), messages...)

	var accumulated []any
	var finalResp map[string]any

	for round := 0; round < maxContinuationRounds; round++ {
		req["messages"] = messages
		reqWire, err := json.Marshal(req)
		if err != nil {
			return nil, fmt.Errorf("marshal continuation round %d request: %w", round, err)
		}

		respWire, err := call(reqWire)
		if err != nil {
			return nil, err
		}

		var resp map[string]any
		if err := json.Unmarshal(respWire, &resp); err != nil {
			return nil, fmt.Errorf("unmarshal continuation round %d response: %w", round, err)
		}
		finalResp = resp

		if content, ok := resp["content"].([]any); ok {
			accumulated = append(accumulated, content...)
		}

		stopReason, _ := resp["stop_reason"].(string)
		if stopReason != "max_tokens" {
			break
		}

		assistantContent, _ := resp["content"].([]any)
		messages = append(messages,
			map[string]any{"role": "assistant", "content": assistantContent},
			map[string]any{"role": "user", "content": []any{map[string]any{"type": "text", "text": "Please continue from where you left off."}}},
		)
	}

	if finalResp == nil {
		return nil, fmt.Errorf("continuation loop produced no response")
	}
	finalResp["content"] = accumulated
	return json.Marshal(finalResp)
}
