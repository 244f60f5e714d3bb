// Package convert implements the protocol converter matrix: bidirectional,
// streaming-aware translation between the four wire protocols the gateway
// speaks (spec.md §4.1).
package convert

import "github.com/proxyforge/llmgate/internal/protocol"

// Converter translates one ordered (caller protocol → upstream protocol)
// pair. ConvertRequest runs once per call; ConvertResponse runs for a
// non-streaming upstream reply; ConvertStreamChunk runs once per
// upstream SSE chunk and may emit zero or more caller-protocol SSE
// frames.
type Converter interface {
	ConvertRequest(callerWire []byte) (upstreamWire []byte, err error)
	ConvertResponse(upstreamWire []byte) (callerWire []byte, err error)
	ConvertStreamChunk(upstreamChunk []byte, state *StreamState) (callerSSE []byte, err error)
}

type pairKey struct {
	From, To protocol.Prefix
}

var matrix = map[pairKey]Converter{
	{protocol.PrefixClaude, protocol.PrefixClaude}:   identityConverter{},
	{protocol.PrefixOpenAI, protocol.PrefixOpenAI}:   identityConverter{},
	{protocol.PrefixGemini, protocol.PrefixGemini}:   identityConverter{},
	{protocol.PrefixOpenAIResponses, protocol.PrefixOpenAIResponses}: identityConverter{},

	{protocol.PrefixClaude, protocol.PrefixOpenAI}: claudeToOpenAI{},
	{protocol.PrefixOpenAI, protocol.PrefixClaude}: openAIToClaude{},

	{protocol.PrefixClaude, protocol.PrefixGemini}: claudeToGemini{},
	{protocol.PrefixGemini, protocol.PrefixClaude}: geminiToClaude{},

	{protocol.PrefixOpenAI, protocol.PrefixGemini}: openAIToGemini{},
	{protocol.PrefixGemini, protocol.PrefixOpenAI}: geminiToOpenAI{},

	{protocol.PrefixClaude, protocol.PrefixOpenAIResponses}:   anyToOpenAIResponses{inner: identityConverter{}},
	{protocol.PrefixOpenAI, protocol.PrefixOpenAIResponses}:   anyToOpenAIResponses{inner: openAIToClaude{}},
	{protocol.PrefixGemini, protocol.PrefixOpenAIResponses}:   anyToOpenAIResponses{inner: geminiToClaude{}},
}

// Get returns the converter for (from, to), or false if the pair is not
// wired (the orchestrator treats that as a protocol error).
func Get(from, to protocol.Prefix) (Converter, bool) {
	c, ok := matrix[pairKey{from, to}]
	return c, ok
}
