package convert

import (
	"encoding/json"
	"fmt"
	"strings"
)

// claudeToOpenAI converts a Claude Messages request into an OpenAI Chat
// Completions request, and OpenAI responses back into Claude shape.
// Adapted from providers.TransformAnthropicToOpenAI / base.go's shared
// transform helpers.
type claudeToOpenAI struct{}

func (claudeToOpenAI) ConvertRequest(callerWire []byte) ([]byte, error) {
	var req map[string]any
	if err := json.Unmarshal(callerWire, &req); err != nil {
		return nil, fmt.Errorf("unmarshal claude request: %w", err)
	}

	out := make(map[string]any, len(req))
	for k, v := range req {
		out[k] = v
	}

	if system, ok := out["system"]; ok {
		if messages, ok := out["messages"].([]any); ok {
			sysMsg := map[string]any{"role": "system", "content": system}
			out["messages"] = append([]any{sysMsg}, messages...)
		}
		delete(out, "system")
	}

	if maxTokens, ok := out["max_tokens"]; ok {
		out["max_completion_tokens"] = maxTokens
		delete(out, "max_tokens")
	}

	if thinking, ok := out["thinking"].(map[string]any); ok {
		if budget, ok := thinking["budget_tokens"].(float64); ok {
			if effort := ReasoningEffortFromBudget(int(budget)); effort != "" {
				out["reasoning_effort"] = effort
			}
		}
		delete(out, "thinking")
	}

	if messages, ok := out["messages"].([]any); ok {
		out["messages"] = transformClaudeMessagesToOpenAI(messages)
	}

	if tools, ok := out["tools"].([]any); ok {
		transformed := transformClaudeToolsToOpenAI(tools)
		if len(transformed) == 0 {
			delete(out, "tool_choice")
		}
		out["tools"] = transformed
	}

	if choice, ok := out["tool_choice"]; ok {
		out["tool_choice"] = claudeToolChoiceToOpenAI(choice)
	}

	return json.Marshal(out)
}

// claudeToolChoiceToOpenAI maps Claude's object-shaped tool_choice onto
// OpenAI's string-or-object shape (spec.md §8 scenario 3, inverse leg).
func claudeToolChoiceToOpenAI(choice any) any {
	choiceMap, ok := choice.(map[string]any)
	if !ok {
		return choice
	}
	switch choiceMap["type"] {
	case "auto":
		return "auto"
	case "any":
		return "required"
	case "none":
		return "none"
	case "tool":
		name, _ := choiceMap["name"].(string)
		return map[string]any{"type": "function", "function": map[string]any{"name": name}}
	default:
		return choice
	}
}

func transformClaudeMessagesToOpenAI(messages []any) []any {
	out := make([]any, 0, len(messages))
	for _, m := range messages {
		msgMap, ok := m.(map[string]any)
		if !ok {
			out = append(out, m)
			continue
		}

		role, _ := msgMap["role"].(string)
		content, hasBlocks := msgMap["content"].([]any)
		if !hasBlocks {
			out = append(out, msgMap)
			continue
		}

		if role == "assistant" {
			out = append(out, transformAssistantBlocksToOpenAI(msgMap, content))
			continue
		}

		// user/tool role: tool_result blocks become individual "tool" messages,
		// text blocks are concatenated into one user message.
		var text strings.Builder
		for _, block := range content {
			blockMap, ok := block.(map[string]any)
			if !ok {
				continue
			}
			switch blockMap["type"] {
			case "text":
				if t, ok := blockMap["text"].(string); ok {
					text.WriteString(t)
				}
			case "tool_result":
				toolUseID, _ := blockMap["tool_use_id"].(string)
				var contentStr string
				if raw, ok := blockMap["content"].(string); ok {
					contentStr = raw
				} else if b, err := json.Marshal(blockMap["content"]); err == nil {
					contentStr = string(b)
				}
				out = append(out, map[string]any{
					"role":         "tool",
					"tool_call_id": openAIToolCallID(toolUseID),
					"content":      contentStr,
				})
			}
		}
		if text.Len() > 0 {
			out = append(out, map[string]any{"role": role, "content": text.String()})
		}
	}
	return out
}

func transformAssistantBlocksToOpenAI(msgMap map[string]any, content []any) map[string]any {
	transformed := make(map[string]any, len(msgMap))
	for k, v := range msgMap {
		transformed[k] = v
	}

	var text strings.Builder
	var toolCalls []any
	for _, block := range content {
		blockMap, ok := block.(map[string]any)
		if !ok {
			continue
		}
		switch blockMap["type"] {
		case "text":
			if t, ok := blockMap["text"].(string); ok {
				text.WriteString(t)
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
				"function": map[string]any{
					"name":      name,
					"arguments": args,
				},
			})
		}
	}

	transformed["content"] = text.String()
	if len(toolCalls) > 0 {
		transformed["tool_calls"] = toolCalls
	}
	return transformed
}

func transformClaudeToolsToOpenAI(tools []any) []any {
	out := make([]any, 0, len(tools))
	for _, t := range tools {
		toolMap, ok := t.(map[string]any)
		if !ok {
			continue
		}
		name, ok := toolMap["name"].(string)
		if !ok {
			continue
		}
		fn := map[string]any{"name": name}
		if desc, ok := toolMap["description"].(string); ok {
			fn["description"] = desc
		}
		if schema, ok := toolMap["input_schema"]; ok {
			fn["parameters"] = SanitizeSchema(schema)
		}
		out = append(out, map[string]any{"type": "function", "function": fn})
	}
	return out
}

// openAIToolCallID / claudeToolCallID keep tool-call identity stable
// across the boundary the way providers.openai.go's convertToolCallID
// does.
func openAIToolCallID(claudeID string) string {
	if strings.HasPrefix(claudeID, "call_") {
		return claudeID
	}
	return "call_" + strings.TrimPrefix(claudeID, "toolu_")
}

func claudeToolCallID(openAIID string) string {
	if strings.HasPrefix(openAIID, "toolu_") {
		return openAIID
	}
	return "toolu_" + strings.TrimPrefix(openAIID, "call_")
}

func (claudeToOpenAI) ConvertResponse(upstreamWire []byte) ([]byte, error) {
	return openAIResponseToClaude(upstreamWire)
}

func (claudeToOpenAI) ConvertStreamChunk(upstreamChunk []byte, state *StreamState) ([]byte, error) {
	return openAIChunkToClaudeSSE(upstreamChunk, state)
}

// openAIToClaude is the inverse pair: an OpenAI-protocol caller talking to
// a Claude-protocol upstream account.
type openAIToClaude struct{}

func (openAIToClaude) ConvertRequest(callerWire []byte) ([]byte, error) {
	var req map[string]any
	if err := json.Unmarshal(callerWire, &req); err != nil {
		return nil, fmt.Errorf("unmarshal openai request: %w", err)
	}

	out := make(map[string]any, len(req))
	for k, v := range req {
		out[k] = v
	}

	if messages, ok := out["messages"].([]any); ok {
		claudeMessages := make([]any, 0, len(messages))
		var system string
		for _, m := range messages {
			msgMap, ok := m.(map[string]any)
			if !ok {
				continue
			}
			if role, _ := msgMap["role"].(string); role == "system" {
				if s, ok := msgMap["content"].(string); ok {
					system = s
				}
				continue
			}
			claudeMessages = append(claudeMessages, transformOpenAIMessageToClaude(msgMap))
		}
		out["messages"] = claudeMessages
		if system != "" {
			out["system"] = system
		}
	}

	if maxCompletion, ok := out["max_completion_tokens"]; ok {
		out["max_tokens"] = maxCompletion
		delete(out, "max_completion_tokens")
	}
	if _, ok := out["max_tokens"]; !ok {
		out["max_tokens"] = ClaudeDefaultMaxTokens
	}

	if effort, ok := out["reasoning_effort"].(string); ok {
		if budget := ThinkingBudgetFromEffort(effort); budget > 0 {
			out["thinking"] = map[string]any{"type": "enabled", "budget_tokens": budget}
		}
		delete(out, "reasoning_effort")
	}

	if tools, ok := out["tools"].([]any); ok {
		out["tools"] = transformOpenAIToolsToClaude(tools)
	}

	if choice, ok := out["tool_choice"]; ok {
		out["tool_choice"] = openAIToolChoiceToClaude(choice)
	}

	return json.Marshal(out)
}

// openAIToolChoiceToClaude maps OpenAI's string-or-object tool_choice
// onto Claude's object shape (spec.md §8 scenario 3).
func openAIToolChoiceToClaude(choice any) any {
	switch v := choice.(type) {
	case string:
		switch v {
		case "auto":
			return map[string]any{"type": "auto"}
		case "none":
			return map[string]any{"type": "none"}
		case "required":
			return map[string]any{"type": "any"}
		default:
			return choice
		}
	case map[string]any:
		if v["type"] == "function" {
			if fn, ok := v["function"].(map[string]any); ok {
				if name, ok := fn["name"].(string); ok {
					return map[string]any{"type": "tool", "name": name}
				}
			}
		}
		return choice
	default:
		return choice
	}
}

func transformOpenAIMessageToClaude(msgMap map[string]any) map[string]any {
	role, _ := msgMap["role"].(string)

	if role == "tool" {
		toolCallID, _ := msgMap["tool_call_id"].(string)
		var content any = msgMap["content"]
		return map[string]any{
			"role": "user",
			"content": []any{
				map[string]any{
					"type":        "tool_result",
					"tool_use_id": claudeToolCallID(toolCallID),
					"content":     content,
				},
			},
		}
	}

	var blocks []any
	if text, ok := msgMap["content"].(string); ok && text != "" {
		blocks = append(blocks, map[string]any{"type": "text", "text": text})
	}
	if toolCalls, ok := msgMap["tool_calls"].([]any); ok {
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
			blocks = append(blocks, map[string]any{
				"type":  "tool_use",
				"id":    claudeToolCallID(id),
				"name":  name,
				"input": input,
			})
		}
	}
	if len(blocks) == 0 {
		blocks = []any{map[string]any{"type": "text", "text": ""}}
	}

	return map[string]any{"role": role, "content": blocks}
}

func transformOpenAIToolsToClaude(tools []any) []any {
	out := make([]any, 0, len(tools))
	for _, t := range tools {
		toolMap, ok := t.(map[string]any)
		if !ok {
			continue
		}
		fn, ok := toolMap["function"].(map[string]any)
		if !ok {
			continue
		}
		name, _ := fn["name"].(string)
		claudeTool := map[string]any{"name": name}
		if desc, ok := fn["description"].(string); ok {
			claudeTool["description"] = desc
		}
		if params, ok := fn["parameters"]; ok {
			claudeTool["input_schema"] = params
		}
		out = append(out, claudeTool)
	}
	return out
}

func (openAIToClaude) ConvertResponse(upstreamWire []byte) ([]byte, error) {
	return claudeResponseToOpenAI(upstreamWire)
}

func (openAIToClaude) ConvertStreamChunk(upstreamChunk []byte, state *StreamState) ([]byte, error) {
	return claudeChunkToOpenAISSE(upstreamChunk, state)
}
