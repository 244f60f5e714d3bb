package convert

import (
	"encoding/json"
	"fmt"
)

// StreamState tracks per-call streaming conversion state across chunks,
// shared across every protocol pair's streaming converter.
type StreamState struct {
	MessageStartSent bool
	MessageID        string
	Model            string

	ContentBlocks map[int]*ContentBlockState
	NextIndex     int
}

// ContentBlockState tracks one content block (text or tool_use) as it
// streams in across chunks.
type ContentBlockState struct {
	Type          string
	StartSent     bool
	StopSent      bool
	ToolCallID    string
	ToolCallIndex int
	ToolName      string
	Arguments     string
}

func NewStreamState() *StreamState {
	return &StreamState{ContentBlocks: make(map[int]*ContentBlockState)}
}

// formatSSEEvent mirrors providers.FormatSSEEvent.
func formatSSEEvent(eventType string, data any) []byte {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return []byte("event: error\ndata: {\"error\":\"failed to marshal event\"}\n\n")
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, string(jsonData)))
}
