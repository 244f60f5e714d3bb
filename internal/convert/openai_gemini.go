package convert

// openAIToGemini and geminiToOpenAI are implemented by pivoting through
// the Claude shape: the converter matrix's dispatch-table design lets
// any pair compose two existing legs rather than duplicate the
// field-mapping logic a third time.
type openAIToGemini struct{}

func (openAIToGemini) ConvertRequest(callerWire []byte) ([]byte, error) {
	claudeWire, err := (openAIToClaude{}).ConvertRequest(callerWire)
	if err != nil {
		return nil, err
	}
	return (claudeToGemini{}).ConvertRequest(claudeWire)
}

func (openAIToGemini) ConvertResponse(upstreamWire []byte) ([]byte, error) {
	claudeWire, err := geminiResponseToClaude(upstreamWire)
	if err != nil {
		return nil, err
	}
	return claudeResponseToOpenAI(claudeWire)
}

func (openAIToGemini) ConvertStreamChunk(upstreamChunk []byte, state *StreamState) ([]byte, error) {
	// Pivot the upstream Gemini chunk into a Claude SSE frame, then
	// re-render that Claude frame as an OpenAI chunk. Both legs share the
	// caller's per-stream state, which carries message-start and
	// content-block tracking from one chunk to the next.
	claudeSSE, err := geminiChunkToClaudeSSE(upstreamChunk, state)
	if err != nil || len(claudeSSE) == 0 {
		return nil, err
	}
	return reframeClaudeSSEAsOpenAI(claudeSSE, state)
}

type geminiToOpenAI struct{}

func (geminiToOpenAI) ConvertRequest(callerWire []byte) ([]byte, error) {
	claudeWire, err := (geminiToClaude{}).ConvertRequest(callerWire)
	if err != nil {
		return nil, err
	}
	return (claudeToOpenAI{}).ConvertRequest(claudeWire)
}

func (geminiToOpenAI) ConvertResponse(upstreamWire []byte) ([]byte, error) {
	claudeWire, err := openAIResponseToClaude(upstreamWire)
	if err != nil {
		return nil, err
	}
	return claudeResponseToGemini(claudeWire)
}

func (geminiToOpenAI) ConvertStreamChunk(upstreamChunk []byte, state *StreamState) ([]byte, error) {
	claudeSSE, err := openAIChunkToClaudeSSE(upstreamChunk, state)
	if err != nil || len(claudeSSE) == 0 {
		return nil, err
	}
	return reframeClaudeSSEAsGemini(claudeSSE, state)
}
