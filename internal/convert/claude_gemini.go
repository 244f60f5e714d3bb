package convert

import (
	"encoding/json"
	"errors"
	"fmt"
)

// claudeToGemini converts Claude Messages wire shapes to Gemini
// generateContent/streamGenerateContent shapes and back. Adapted from
// providers.(*GeminiProvider)'s bidirectional Gemini<->Anthropic
// converter (internal/providers/gemini.go).
type claudeToGemini struct{}

func (claudeToGemini) ConvertRequest(callerWire []byte) ([]byte, error) {
	var req map[string]any
	if err := json.Unmarshal(callerWire, &req); err != nil {
		return nil, fmt.Errorf("unmarshal claude request: %w", err)
	}

	out := map[string]any{}

	if system, ok := req["system"]; ok {
		switch s := system.(type) {
		case string:
			out["systemInstruction"] = map[string]any{"parts": []any{map[string]any{"text": s}}}
		}
	}

	if messages, ok := req["messages"].([]any); ok {
		out["contents"] = claudeMessagesToGeminiContents(messages)
	}

	genConfig := map[string]any{}
	if maxTokens, ok := req["max_tokens"].(float64); ok {
		genConfig["maxOutputTokens"] = CapGeminiMaxTokens(int(maxTokens))
	} else {
		genConfig["maxOutputTokens"] = GeminiDefaultMaxTokens
	}
	if temp, ok := req["temperature"].(float64); ok {
		genConfig["temperature"] = temp
	}
	if topP, ok := req["top_p"].(float64); ok {
		genConfig["topP"] = topP
	}
	out["generationConfig"] = genConfig

	if tools, ok := req["tools"].([]any); ok {
		out["tools"] = []any{map[string]any{"functionDeclarations": claudeToolsToGeminiDeclarations(tools)}}
	}

	return json.Marshal(out)
}

func claudeMessagesToGeminiContents(messages []any) []any {
	out := make([]any, 0, len(messages))
	for _, m := range messages {
		msgMap, ok := m.(map[string]any)
		if !ok {
			continue
		}
		role, _ := msgMap["role"].(string)
		geminiRole := "user"
		if role == "assistant" {
			geminiRole = "model"
		}

		var parts []any
		content, _ := msgMap["content"].([]any)
		for _, block := range content {
			blockMap, ok := block.(map[string]any)
			if !ok {
				continue
			}
			switch blockMap["type"] {
			case "text":
				if t, ok := blockMap["text"].(string); ok && t != "" {
					parts = append(parts, map[string]any{"text": t})
				}
			case "tool_use":
				name, _ := blockMap["name"].(string)
				parts = append(parts, map[string]any{
					"functionCall": map[string]any{"name": name, "args": blockMap["input"]},
				})
			case "tool_result":
				parts = append(parts, map[string]any{
					"functionResponse": map[string]any{
						"name":     toolResultName(blockMap),
						"response": map[string]any{"result": blockMap["content"]},
					},
				})
			}
		}
		if len(parts) == 0 {
			continue
		}
		out = append(out, map[string]any{"role": geminiRole, "parts": parts})
	}
	return out
}

// toolResultName recovers a best-effort function name for a tool_result
// block; Gemini's functionResponse requires a name while Claude's
// tool_result only carries the originating tool_use_id, so callers that
// need exact round-tripping must track id->name themselves upstream.
func toolResultName(blockMap map[string]any) string {
	if id, ok := blockMap["tool_use_id"].(string); ok {
		return id
	}
	return "tool"
}

func claudeToolsToGeminiDeclarations(tools []any) []any {
	out := make([]any, 0, len(tools))
	for _, t := range tools {
		toolMap, ok := t.(map[string]any)
		if !ok {
			continue
		}
		name, _ := toolMap["name"].(string)
		decl := map[string]any{"name": name}
		if desc, ok := toolMap["description"].(string); ok {
			decl["description"] = desc
		}
		if schema, ok := toolMap["input_schema"]; ok {
			decl["parameters"] = SanitizeSchema(schema)
		}
		out = append(out, decl)
	}
	return out
}

func (claudeToGemini) ConvertResponse(upstreamWire []byte) ([]byte, error) {
	return geminiResponseToClaude(upstreamWire)
}

func (claudeToGemini) ConvertStreamChunk(upstreamChunk []byte, state *StreamState) ([]byte, error) {
	return geminiChunkToClaudeSSE(upstreamChunk, state)
}

// geminiToClaude is the inverse pair: a Gemini-protocol caller talking to
// a Claude-protocol upstream account.
type geminiToClaude struct{}

func (geminiToClaude) ConvertRequest(callerWire []byte) ([]byte, error) {
	var req map[string]any
	if err := json.Unmarshal(callerWire, &req); err != nil {
		return nil, fmt.Errorf("unmarshal gemini request: %w", err)
	}

	out := map[string]any{}

	if sysInstr, ok := req["systemInstruction"].(map[string]any); ok {
		if parts, ok := sysInstr["parts"].([]any); ok {
			var text string
			for _, p := range parts {
				if pm, ok := p.(map[string]any); ok {
					if t, ok := pm["text"].(string); ok {
						text += t
					}
				}
			}
			out["system"] = text
		}
	}

	if contents, ok := req["contents"].([]any); ok {
		out["messages"] = geminiContentsToClaudeMessages(contents)
	}

	maxTokens := ClaudeDefaultMaxTokens
	if genConfig, ok := req["generationConfig"].(map[string]any); ok {
		if mt, ok := genConfig["maxOutputTokens"].(float64); ok {
			maxTokens = int(mt)
		}
		if temp, ok := genConfig["temperature"]; ok {
			out["temperature"] = temp
		}
		if topP, ok := genConfig["topP"]; ok {
			out["top_p"] = topP
		}
	}
	out["max_tokens"] = maxTokens

	if tools, ok := req["tools"].([]any); ok {
		out["tools"] = geminiDeclarationsToClaudeTools(tools)
	}

	return json.Marshal(out)
}

func geminiContentsToClaudeMessages(contents []any) []any {
	out := make([]any, 0, len(contents))
	for _, c := range contents {
		cMap, ok := c.(map[string]any)
		if !ok {
			continue
		}
		role, _ := cMap["role"].(string)
		claudeRole := "user"
		if role == "model" {
			claudeRole = "assistant"
		}

		var blocks []any
		parts, _ := cMap["parts"].([]any)
		for _, p := range parts {
			pMap, ok := p.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := pMap["text"].(string); ok && text != "" {
				blocks = append(blocks, map[string]any{"type": "text", "text": text})
			}
			if fc, ok := pMap["functionCall"].(map[string]any); ok {
				name, _ := fc["name"].(string)
				blocks = append(blocks, map[string]any{
					"type": "tool_use", "id": "toolu_" + name, "name": name, "input": fc["args"],
				})
			}
			if fr, ok := pMap["functionResponse"].(map[string]any); ok {
				name, _ := fr["name"].(string)
				blocks = append(blocks, map[string]any{
					"type": "tool_result", "tool_use_id": "toolu_" + name, "content": fr["response"],
				})
			}
		}
		if len(blocks) == 0 {
			continue
		}
		out = append(out, map[string]any{"role": claudeRole, "content": blocks})
	}
	return out
}

func geminiDeclarationsToClaudeTools(tools []any) []any {
	var out []any
	for _, t := range tools {
		tMap, ok := t.(map[string]any)
		if !ok {
			continue
		}
		decls, _ := tMap["functionDeclarations"].([]any)
		for _, d := range decls {
			dMap, ok := d.(map[string]any)
			if !ok {
				continue
			}
			tool := map[string]any{"name": dMap["name"]}
			if desc, ok := dMap["description"]; ok {
				tool["description"] = desc
			}
			if params, ok := dMap["parameters"]; ok {
				tool["input_schema"] = params
			}
			out = append(out, tool)
		}
	}
	return out
}

func (geminiToClaude) ConvertResponse(upstreamWire []byte) ([]byte, error) {
	return claudeResponseToGemini(upstreamWire)
}

func (geminiToClaude) ConvertStreamChunk(upstreamChunk []byte, state *StreamState) ([]byte, error) {
	return claudeChunkToGeminiSSE(upstreamChunk, state)
}

// geminiResponseToClaude converts a non-streaming Gemini
// generateContent response into a Claude Messages response.
func geminiResponseToClaude(data []byte) ([]byte, error) {
	var resp map[string]any
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal gemini response: %w", err)
	}

	candidates, ok := resp["candidates"].([]any)
	if !ok || len(candidates) == 0 {
		return nil, errors.New("no candidates in gemini response")
	}
	candidate, _ := candidates[0].(map[string]any)
	content, _ := candidate["content"].(map[string]any)
	parts, _ := content["parts"].([]any)

	var blocks []any
	for _, p := range parts {
		pMap, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if text, ok := pMap["text"].(string); ok && text != "" {
			blocks = append(blocks, map[string]any{"type": "text", "text": text})
		}
		if fc, ok := pMap["functionCall"].(map[string]any); ok {
			name, _ := fc["name"].(string)
			blocks = append(blocks, map[string]any{
				"type": "tool_use", "id": "toolu_" + name, "name": name, "input": fc["args"],
			})
		}
	}
	if len(blocks) == 0 {
		blocks = []any{map[string]any{"type": "text", "text": ""}}
	}

	out := map[string]any{
		"type": "message", "role": "assistant", "content": blocks,
	}
	if fr, ok := candidate["finishReason"].(string); ok {
		out["stop_reason"] = mapFinish(geminiFinishToClaude, fr, "end_turn")
	}
	if usage, ok := resp["usageMetadata"].(map[string]any); ok {
		out["usage"] = map[string]any{
			"input_tokens":  usage["promptTokenCount"],
			"output_tokens": usage["candidatesTokenCount"],
		}
	}
	return json.Marshal(out)
}

// claudeResponseToGemini converts a non-streaming Claude Messages
// response into a Gemini generateContent response.
func claudeResponseToGemini(data []byte) ([]byte, error) {
	var resp map[string]any
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal claude response: %w", err)
	}

	content, _ := resp["content"].([]any)
	var parts []any
	for _, block := range content {
		blockMap, ok := block.(map[string]any)
		if !ok {
			continue
		}
		switch blockMap["type"] {
		case "text":
			if t, ok := blockMap["text"].(string); ok {
				parts = append(parts, map[string]any{"text": t})
			}
		case "tool_use":
			parts = append(parts, map[string]any{
				"functionCall": map[string]any{"name": blockMap["name"], "args": blockMap["input"]},
			})
		}
	}

	finishReason := "STOP"
	if sr, ok := resp["stop_reason"].(string); ok {
		finishReason = claudeStopToGemini(sr)
	}

	candidate := map[string]any{
		"content":      map[string]any{"role": "model", "parts": parts},
		"finishReason": finishReason,
	}
	out := map[string]any{"candidates": []any{candidate}}
	if usage, ok := resp["usage"].(map[string]any); ok {
		out["usageMetadata"] = map[string]any{
			"promptTokenCount":     usage["input_tokens"],
			"candidatesTokenCount": usage["output_tokens"],
		}
	}
	return json.Marshal(out)
}

func claudeStopToGemini(reason string) string {
	switch reason {
	case "max_tokens":
		return "MAX_TOKENS"
	case "stop_sequence":
		return "SAFETY"
	default:
		return "STOP"
	}
}

// geminiChunkToClaudeSSE converts one Gemini streamGenerateContent JSON
// chunk into zero or more Claude SSE frames.
func geminiChunkToClaudeSSE(data []byte, state *StreamState) ([]byte, error) {
	var chunk map[string]any
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, fmt.Errorf("unmarshal gemini stream chunk: %w", err)
	}

	var events []byte
	if !state.MessageStartSent {
		events = append(events, claudeMessageStartEvent(state.MessageID, state.Model, nil)...)
		state.MessageStartSent = true
	}

	candidates, _ := chunk["candidates"].([]any)
	if len(candidates) == 0 {
		return events, nil
	}
	candidate, _ := candidates[0].(map[string]any)
	content, _ := candidate["content"].(map[string]any)
	parts, _ := content["parts"].([]any)

	if state.ContentBlocks == nil {
		state.ContentBlocks = make(map[int]*ContentBlockState)
	}

	for _, p := range parts {
		pMap, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if text, ok := pMap["text"].(string); ok && text != "" {
			events = append(events, claudeTextDeltaEvents(text, state)...)
		}
		if fc, ok := pMap["functionCall"].(map[string]any); ok {
			name, _ := fc["name"].(string)
			var args string
			if b, err := json.Marshal(fc["args"]); err == nil {
				args = string(b)
			}
			tc := map[string]any{
				"id":       "toolu_" + name,
				"function": map[string]any{"name": name, "arguments": args},
			}
			events = append(events, claudeSingleToolCallDelta(tc, state)...)
		}
	}

	if fr, ok := candidate["finishReason"].(string); ok && fr != "" {
		events = append(events, claudeGeminiFinishEvents(fr, chunk, state)...)
	}

	return events, nil
}

func claudeGeminiFinishEvents(reason string, chunk map[string]any, state *StreamState) []byte {
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
			"stop_reason":   mapFinish(geminiFinishToClaude, reason, "end_turn"),
			"stop_sequence": nil,
		},
	}
	if usage, ok := chunk["usageMetadata"].(map[string]any); ok {
		delta["usage"] = map[string]any{
			"input_tokens":  usage["promptTokenCount"],
			"output_tokens": usage["candidatesTokenCount"],
		}
	}
	events = append(events, formatSSEEvent("message_delta", delta)...)
	events = append(events, formatSSEEvent("message_stop", map[string]any{"type": "message_stop"})...)
	return events
}

// claudeChunkToGeminiSSE converts one Claude SSE event (decoded data
// payload) into a Gemini streamGenerateContent JSON chunk.
func claudeChunkToGeminiSSE(data []byte, state *StreamState) ([]byte, error) {
	var event map[string]any
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("unmarshal claude stream event: %w", err)
	}

	eventType, _ := event["type"].(string)
	switch eventType {
	case "content_block_delta":
		delta, _ := event["delta"].(map[string]any)
		if delta["type"] == "text_delta" {
			text, _ := delta["text"].(string)
			chunk := geminiStreamChunk([]any{map[string]any{"text": text}}, "")
			return append(chunk, '\n'), nil
		}
	case "message_delta":
		delta, _ := event["delta"].(map[string]any)
		stopReason, _ := delta["stop_reason"].(string)
		if stopReason != "" {
			chunk := geminiStreamChunk(nil, claudeStopToGemini(stopReason))
			return append(chunk, '\n'), nil
		}
	}
	return nil, nil
}

func geminiStreamChunk(parts []any, finishReason string) []byte {
	candidate := map[string]any{"content": map[string]any{"role": "model", "parts": parts}}
	if finishReason != "" {
		candidate["finishReason"] = finishReason
	}
	b, err := json.Marshal(map[string]any{"candidates": []any{candidate}})
	if err != nil {
		return nil
	}
	return b
}
