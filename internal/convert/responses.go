package convert

import (
	"encoding/json"
	"fmt"
)

// anyToOpenAIResponses adapts any caller protocol to an
// openai-responses-custom upstream by pivoting through inner (which
// converts the caller's wire shape to Claude) and then re-shaping the
// Claude-format request/response into the OpenAI Responses API's
// "input"/"output" item-list shape (spec.md §4.1 "Any -> OpenAI-Responses").
type anyToOpenAIResponses struct {
	inner Converter
}

func (c anyToOpenAIResponses) ConvertRequest(callerWire []byte) ([]byte, error) {
	claudeWire, err := c.inner.ConvertRequest(callerWire)
	if err != nil {
		return nil, err
	}
	return claudeRequestToResponsesAPI(claudeWire)
}

func (c anyToOpenAIResponses) ConvertResponse(upstreamWire []byte) ([]byte, error) {
	claudeWire, err := responsesAPIToClaudeResponse(upstreamWire)
	if err != nil {
		return nil, err
	}
	return c.inner.ConvertResponse(claudeResponseRoundtrip(claudeWire))
}

func (c anyToOpenAIResponses) ConvertStreamChunk(upstreamChunk []byte, state *StreamState) ([]byte, error) {
	claudeSSE, err := responsesAPIChunkToClaudeSSE(upstreamChunk, state)
	if err != nil || len(claudeSSE) == 0 {
		return nil, err
	}
	var out []byte
	for _, payload := range splitSSEDataPayloads(claudeSSE) {
		converted, err := c.inner.ConvertStreamChunk(payload, state)
		if err != nil {
			return nil, err
		}
		out = append(out, converted...)
	}
	return out, nil
}

// claudeResponseRoundtrip exists only so ConvertResponse can hand the
// inner converter raw bytes; Claude-shaped maps marshal back losslessly.
func claudeResponseRoundtrip(claudeWire []byte) []byte { return claudeWire }

func claudeRequestToResponsesAPI(claudeWire []byte) ([]byte, error) {
	var req map[string]any
	if err := json.Unmarshal(claudeWire, &req); err != nil {
		return nil, fmt.Errorf("unmarshal claude request for responses api: %w", err)
	}

	out := map[string]any{}
	if instructions, ok := req["system"]; ok {
		out["instructions"] = instructions
	}

	var items []any
	if messages, ok := req["messages"].([]any); ok {
		for _, m := range messages {
			msgMap, ok := m.(map[string]any)
			if !ok {
				continue
			}
			role, _ := msgMap["role"].(string)
			content, _ := msgMap["content"].([]any)
			var text string
			for _, block := range content {
				if bm, ok := block.(map[string]any); ok {
					if bm["type"] == "text" {
						if t, ok := bm["text"].(string); ok {
							text += t
						}
					}
				}
			}
			items = append(items, map[string]any{"role": role, "content": text})
		}
	}
	out["input"] = items

	if maxTokens, ok := req["max_tokens"]; ok {
		out["max_output_tokens"] = maxTokens
	}
	if tools, ok := req["tools"]; ok {
		out["tools"] = tools
	}

	return json.Marshal(out)
}

func responsesAPIToClaudeResponse(data []byte) ([]byte, error) {
	var resp map[string]any
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal responses api response: %w", err)
	}

	var blocks []any
	output, _ := resp["output"].([]any)
	for _, item := range output {
		itemMap, ok := item.(map[string]any)
		if !ok {
			continue
		}
		switch itemMap["type"] {
		case "output_text", "message":
			if text, ok := itemMap["content"].(string); ok {
				blocks = append(blocks, map[string]any{"type": "text", "text": text})
			}
		case "function_call":
			blocks = append(blocks, map[string]any{
				"type":  "tool_use",
				"id":    itemMap["call_id"],
				"name":  itemMap["name"],
				"input": itemMap["arguments"],
			})
		}
	}
	if len(blocks) == 0 {
		blocks = []any{map[string]any{"type": "text", "text": ""}}
	}

	out := map[string]any{
		"id": resp["id"], "type": "message", "role": "assistant", "content": blocks,
		"stop_reason": "end_turn",
	}
	if usage, ok := resp["usage"].(map[string]any); ok {
		out["usage"] = map[string]any{
			"input_tokens":  usage["input_tokens"],
			"output_tokens": usage["output_tokens"],
		}
	}
	return json.Marshal(out)
}

// responsesAPIChunkToClaudeSSE converts one Responses-API streaming event
// into a Claude SSE frame; the Responses API's own streaming protocol
// already uses named "response.output_text.delta" style events, so this
// is a thin renaming pass rather than a structural reshape.
func responsesAPIChunkToClaudeSSE(data []byte, state *StreamState) ([]byte, error) {
	var event map[string]any
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("unmarshal responses api stream event: %w", err)
	}

	eventType, _ := event["type"].(string)
	switch eventType {
	case "response.output_text.delta":
		delta, _ := event["delta"].(string)
		return claudeTextDeltaEvents(delta, state), nil
	case "response.completed":
		return append(
			formatSSEEvent("message_delta", map[string]any{
				"type":  "message_delta",
				"delta": map[string]any{"stop_reason": "end_turn", "stop_sequence": nil},
			}),
			formatSSEEvent("message_stop", map[string]any{"type": "message_stop"})...,
		), nil
	default:
		return nil, nil
	}
}
