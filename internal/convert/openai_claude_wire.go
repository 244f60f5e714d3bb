package convert

import (
	"encoding/json"
	"errors"
	"fmt"
)

// openAIResponseToClaude converts a non-streaming OpenAI chat-completion
// response into a Claude Messages response. Adapted from
// providers.(*OpenAIProvider).convertOpenAIToAnthropic.
func openAIResponseToClaude(data []byte) ([]byte, error) {
	var resp map[string]any
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal openai response: %w", err)
	}

	if errObj, ok := resp["error"].(map[string]any); ok {
		out := map[string]any{
			"type":  "error",
			"model": resp["model"],
			"error": map[string]any{
				"type":    mapOpenAIErrorType(fmt.Sprint(errObj["type"])),
				"message": errObj["message"],
			},
		}
		return json.Marshal(out)
	}

	choices, ok := resp["choices"].([]any)
	if !ok || len(choices) == 0 {
		return nil, errors.New("no choices in openai response")
	}
	choice, _ := choices[0].(map[string]any)
	message, _ := choice["message"].(map[string]any)
	if message == nil {
		message, _ = choice["delta"].(map[string]any)
	}
	if message == nil {
		return nil, errors.New("no message in openai response choice")
	}

	out := map[string]any{
		"id":    resp["id"],
		"type":  "message",
		"role":  "assistant",
		"model": resp["model"],
	}

	content, err := openAIMessageToClaudeContent(message)
	if err != nil {
		return nil, err
	}
	out["content"] = content

	if finishReason, ok := choice["finish_reason"].(string); ok {
		out["stop_reason"] = mapFinish(openAIFinishToClaude, finishReason, "end_turn")
	}

	if usage, ok := resp["usage"].(map[string]any); ok {
		out["usage"] = map[string]any{
			"input_tokens":  usage["prompt_tokens"],
			"output_tokens": usage["completion_tokens"],
		}
	}

	return json.Marshal(out)
}

func openAIMessageToClaudeContent(message map[string]any) ([]any, error) {
	var content []any

	if text, ok := message["content"].(string); ok && text != "" {
		content = append(content, map[string]any{"type": "text", "text": text})
	}

	if toolCalls, ok := message["tool_calls"].([]any); ok {
		for _, tc := range toolCalls {
			tcMap, ok := tc.(map[string]any)
			if !ok {
				continue
			}
			id, _ := tcMap["id"].(string)
			fn, _ := tcMap["function"].(map[string]any)
			name, _ := fn["name"].(string)
			argsRaw, _ := fn["arguments"].(string)
			input, _ := SafeParseToolArguments(argsRaw)
			content = append(content, map[string]any{
				"type":  "tool_use",
				"id":    claudeToolCallID(id),
				"name":  name,
				"input": input,
			})
		}
	}

	if len(content) == 0 {
		content = append(content, map[string]any{"type": "text", "text": ""})
	}
	return content, nil
}

func mapOpenAIErrorType(t string) string {
	mapping := map[string]string{
		"invalid_request_error":    "invalid_request_error",
		"authentication_error":     "authentication_error",
		"permission_error":         "permission_error",
		"not_found_error":          "not_found_error",
		"rate_limit_error":         "rate_limit_error",
		"insufficient_quota_error": "billing_error",
	}
	if mapped, ok := mapping[t]; ok {
		return mapped
	}
	return "api_error"
}

// openAIChunkToClaudeSSE converts one OpenAI streaming chunk into zero or
// more Claude-protocol SSE frames. Adapted from
// providers.ConvertOpenAIStyleToAnthropicStream.
func openAIChunkToClaudeSSE(data []byte, state *StreamState) ([]byte, error) {
	var chunk map[string]any
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, fmt.Errorf("unmarshal openai stream chunk: %w", err)
	}

	var events []byte

	if id, ok := chunk["id"].(string); ok && state.MessageID == "" {
		state.MessageID = id
	}
	if model, ok := chunk["model"].(string); ok && state.Model == "" {
		state.Model = model
	}

	choices, ok := chunk["choices"].([]any)
	if !ok || len(choices) == 0 {
		return events, nil
	}
	firstChoice, ok := choices[0].(map[string]any)
	if !ok {
		return events, nil
	}

	if !state.MessageStartSent {
		events = append(events, claudeMessageStartEvent(state.MessageID, state.Model, chunk)...)
		state.MessageStartSent = true
	}

	if delta, ok := firstChoice["delta"].(map[string]any); ok {
		if state.ContentBlocks == nil {
			state.ContentBlocks = make(map[int]*ContentBlockState)
		}
		if toolCalls, ok := delta["tool_calls"].([]any); ok {
			events = append(events, claudeToolCallDeltaEvents(toolCalls, state)...)
		} else if text, ok := delta["content"].(string); ok && text != "" {
			events = append(events, claudeTextDeltaEvents(text, state)...)
		}
	}

	if finishReason, ok := firstChoice["finish_reason"].(string); ok && finishReason != "" {
		events = append(events, claudeFinishEvents(finishReason, chunk, state)...)
	}

	return events, nil
}

func claudeMessageStartEvent(messageID, model string, chunk map[string]any) []byte {
	usage := map[string]any{"input_tokens": 0, "output_tokens": 1}
	if u, ok := chunk["usage"].(map[string]any); ok {
		if p, ok := u["prompt_tokens"]; ok {
			usage["input_tokens"] = p
		}
	}
	return formatSSEEvent("message_start", map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id": messageID, "type": "message", "role": "assistant", "model": model,
			"content": []any{}, "stop_reason": nil, "stop_sequence": nil, "usage": usage,
		},
	})
}

func claudeTextDeltaEvents(text string, state *StreamState) []byte {
	const idx = 0
	var events []byte
	block, ok := state.ContentBlocks[idx]
	if !ok {
		block = &ContentBlockState{Type: "text"}
		state.ContentBlocks[idx] = block
	}
	if !block.StartSent {
		events = append(events, formatSSEEvent("content_block_start", map[string]any{
			"type": "content_block_start", "index": idx,
			"content_block": map[string]any{"type": "text", "text": ""},
		})...)
		block.StartSent = true
	}
	events = append(events, formatSSEEvent("content_block_delta", map[string]any{
		"type": "content_block_delta", "index": idx,
		"delta": map[string]any{"type": "text_delta", "text": text},
	})...)
	return events
}

func claudeToolCallDeltaEvents(toolCalls []any, state *StreamState) []byte {
	var events []byte
	for _, tc := range toolCalls {
		tcMap, ok := tc.(map[string]any)
		if !ok {
			continue
		}
		events = append(events, claudeSingleToolCallDelta(tcMap, state)...)
	}
	return events
}

func claudeSingleToolCallDelta(tc map[string]any, state *StreamState) []byte {
	var events []byte

	index := -1
	if idx, ok := tc["index"].(float64); ok {
		index = int(idx)
	}
	id, _ := tc["id"].(string)
	var name, args string
	if fn, ok := tc["function"].(map[string]any); ok {
		name, _ = fn["name"].(string)
		args, _ = fn["arguments"].(string)
	}

	blockIndex := -1
	for i, b := range state.ContentBlocks {
		if b.Type == "tool_use" && ((index >= 0 && b.ToolCallIndex == index) || (id != "" && b.ToolCallID == id)) {
			blockIndex = i
			break
		}
	}
	if blockIndex == -1 {
		if id == "" {
			return events
		}
		blockIndex = len(state.ContentBlocks)
		state.ContentBlocks[blockIndex] = &ContentBlockState{Type: "tool_use", ToolCallID: id, ToolCallIndex: index}
	}
	block := state.ContentBlocks[blockIndex]
	if name != "" {
		block.ToolName = name
	}

	if !block.StartSent && block.ToolCallID != "" && block.ToolName != "" {
		events = append(events, formatSSEEvent("content_block_start", map[string]any{
			"type": "content_block_start", "index": blockIndex,
			"content_block": map[string]any{
				"type": "tool_use", "id": claudeToolCallID(block.ToolCallID), "name": block.ToolName, "input": map[string]any{},
			},
		})...)
		block.StartSent = true
	}

	if args != "" && args != block.Arguments {
		delta := argumentsDelta(args, block.Arguments)
		block.Arguments = args
		if delta != "" {
			events = append(events, formatSSEEvent("content_block_delta", map[string]any{
				"type": "content_block_delta", "index": blockIndex,
				"delta": map[string]any{"type": "input_json_delta", "partial_json": delta},
			})...)
		}
	}
	return events
}

func argumentsDelta(newArgs, oldArgs string) string {
	if len(newArgs) > len(oldArgs) && len(oldArgs) > 0 && newArgs[:len(oldArgs)] == oldArgs {
		return newArgs[len(oldArgs):]
	}
	if oldArgs == "" {
		return newArgs
	}
	return newArgs
}

func claudeFinishEvents(reason string, chunk map[string]any, state *StreamState) []byte {
	var events []byte
	for index, block := range state.ContentBlocks {
		if block.StartSent && !block.StopSent {
			events = append(events, formatSSEEvent("content_block_stop", map[string]any{
				"type": "content_block_stop", "index": index,
			})...)
			block.StopSent = true
		}
	}

	delta := map[string]any{
		"type": "message_delta",
		"delta": map[string]any{
			"stop_reason":   mapFinish(openAIFinishToClaude, reason, "end_turn"),
			"stop_sequence": nil,
		},
	}
	if usage, ok := chunk["usage"].(map[string]any); ok {
		u := map[string]any{}
		if p, ok := usage["prompt_tokens"]; ok {
			u["input_tokens"] = p
		}
		if c, ok := usage["completion_tokens"]; ok {
			u["output_tokens"] = c
		}
		if len(u) > 0 {
			delta["usage"] = u
		}
	}
	events = append(events, formatSSEEvent("message_delta", delta)...)
	events = append(events, formatSSEEvent("message_stop", map[string]any{"type": "message_stop"})...)
	return events
}

// claudeResponseToOpenAI converts a non-streaming Claude Messages
// response into an OpenAI chat-completion response.
func claudeResponseToOpenAI(data []byte) ([]byte, error) {
	var resp map[string]any
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal claude response: %w", err)
	}

	if errObj, ok := resp["error"].(map[string]any); ok {
		return json.Marshal(map[string]any{
			"id":    resp["id"],
			"model": resp["model"],
			"error": map[string]any{
				"type":    "api_error",
				"message": errObj["message"],
			},
		})
	}

	content, _ := resp["content"].([]any)
	var text string
	var toolCalls []any
	for _, block := range content {
		blockMap, ok := block.(map[string]any)
		if !ok {
			continue
		}
		switch blockMap["type"] {
		case "text":
			if t, ok := blockMap["text"].(string); ok {
				text += t
			}
		case "tool_use":
			id, _ := blockMap["id"].(string)
			name, _ := blockMap["name"].(string)
			var args string
			if input := blockMap["input"]; input != nil {
				if b, err := json.Marshal(input); err == nil {
					args = string(b)
				}
			}
			toolCalls = append(toolCalls, map[string]any{
				"id":   openAIToolCallID(id),
				"type": "function",
				"function": map[string]any{"name": name, "arguments": args},
			})
		}
	}

	message := map[string]any{"role": "assistant", "content": text}
	if len(toolCalls) > 0 {
		message["tool_calls"] = toolCalls
		message["content"] = nil
	}

	finishReason := "stop"
	if sr, ok := resp["stop_reason"].(string); ok {
		finishReason = mapFinish(claudeFinishToOpenAI, sr, "stop")
	}

	choice := map[string]any{"index": 0, "message": message, "finish_reason": finishReason}

	out := map[string]any{
		"id":      resp["id"],
		"object":  "chat.completion",
		"model":   resp["model"],
		"choices": []any{choice},
	}
	if usage, ok := resp["usage"].(map[string]any); ok {
		out["usage"] = map[string]any{
			"prompt_tokens":     usage["input_tokens"],
			"completion_tokens": usage["output_tokens"],
		}
	}
	return json.Marshal(out)
}

// claudeChunkToOpenAISSE converts one Claude SSE event chunk (the data
// payload, event type already consumed by the SSE parser) into an OpenAI
// streaming chunk.
func claudeChunkToOpenAISSE(data []byte, state *StreamState) ([]byte, error) {
	var event map[string]any
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("unmarshal claude stream event: %w", err)
	}

	eventType, _ := event["type"].(string)
	switch eventType {
	case "message_start":
		if msg, ok := event["message"].(map[string]any); ok {
			if id, ok := msg["id"].(string); ok {
				state.MessageID = id
			}
			if model, ok := msg["model"].(string); ok {
				state.Model = model
			}
		}
		return openAIChunk(state, map[string]any{"role": "assistant", "content": ""}, nil), nil
	case "content_block_delta":
		delta, _ := event["delta"].(map[string]any)
		switch delta["type"] {
		case "text_delta":
			text, _ := delta["text"].(string)
			return openAIChunk(state, map[string]any{"content": text}, nil), nil
		case "input_json_delta":
			partial, _ := delta["partial_json"].(string)
			index, _ := event["index"].(float64)
			return openAIChunk(state, map[string]any{
				"tool_calls": []any{map[string]any{
					"index":    int(index),
					"function": map[string]any{"arguments": partial},
				}},
			}, nil), nil
		}
	case "message_delta":
		delta, _ := event["delta"].(map[string]any)
		stopReason, _ := delta["stop_reason"].(string)
		if stopReason != "" {
			finish := mapFinish(claudeFinishToOpenAI, stopReason, "stop")
			return openAIChunk(state, map[string]any{}, &finish), nil
		}
	}
	return nil, nil
}

func openAIChunk(state *StreamState, delta map[string]any, finishReason *string) []byte {
	choice := map[string]any{"index": 0, "delta": delta}
	if finishReason != nil {
		choice["finish_reason"] = *finishReason
	}
	chunk := map[string]any{
		"id": state.MessageID, "object": "chat.completion.chunk", "model": state.Model,
		"choices": []any{choice},
	}
	b, err := json.Marshal(chunk)
	if err != nil {
		return nil
	}
	return []byte(fmt.Sprintf("data: %s\n\n", string(b)))
}
