package convert

import (
	"bufio"
	"bytes"
	"strings"
)

// reframeClaudeSSEAsOpenAI / reframeClaudeSSEAsGemini split an
// already-formatted block of Claude "event: ...\ndata: ...\n\n" frames
// back into individual data payloads and re-run them through the
// Claude->target chunk converter, so the openai<->gemini pivot pair
// doesn't need a third copy of the per-event state machine.
func reframeClaudeSSEAsOpenAI(claudeSSE []byte, state *StreamState) ([]byte, error) {
	var out []byte
	for _, payload := range splitSSEDataPayloads(claudeSSE) {
		converted, err := claudeChunkToOpenAISSE(payload, state)
		if err != nil {
			return nil, err
		}
		out = append(out, converted...)
	}
	return out, nil
}

func reframeClaudeSSEAsGemini(claudeSSE []byte, state *StreamState) ([]byte, error) {
	var out []byte
	for _, payload := range splitSSEDataPayloads(claudeSSE) {
		converted, err := claudeChunkToGeminiSSE(payload, state)
		if err != nil {
			return nil, err
		}
		out = append(out, converted...)
	}
	return out, nil
}

func splitSSEDataPayloads(block []byte) [][]byte {
	var payloads [][]byte
	scanner := bufio.NewScanner(bytes.NewReader(block))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			payloads = append(payloads, []byte(strings.TrimPrefix(line, "data: ")))
		}
	}
	return payloads
}
