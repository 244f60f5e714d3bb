package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/proxyforge/llmgate/internal/convert"
	"github.com/proxyforge/llmgate/internal/gatewayerr"
	"github.com/proxyforge/llmgate/internal/pool"
	"github.com/proxyforge/llmgate/internal/protocol"
	"github.com/proxyforge/llmgate/internal/provideradapter"
)

// maxStreamContinuationRounds mirrors provideradapter.ContinuationCall's
// round cap so a persistently truncating upstream can't hang a stream
// forever (spec.md §4.2, §8 scenario 5).
const maxStreamContinuationRounds = 8

// streamWithContinuation drives the same anti-truncation continuation
// loop ContinuationCall performs for non-streaming calls, but over a
// sequence of upstream streams: each round's upstream chunks are first
// normalized into Claude pivot event payloads (so stop_reason and
// accumulated text can be read regardless of providerPrefix), then
// reframed into callerPrefix's own SSE shape and flushed to w
// immediately. A round ending in stop_reason "max_tokens" is followed by
// another round whose request appends the prior round's text as an
// assistant turn plus the fixed continuation instruction, with the
// terminal frame of every non-final round suppressed so the caller sees
// one uninterrupted stream (spec.md §4.2, §8 scenario 5).
func (o *Orchestrator) streamWithContinuation(ctx context.Context, adapter provideradapter.Adapter, account *pool.Account, callerPrefix, providerPrefix protocol.Prefix, claudeWireReq []byte, w io.Writer) error {
	toClaudeSSE, ok := convert.Get(protocol.PrefixClaude, providerPrefix)
	if !ok {
		return gatewayerr.Protocol(fmt.Sprintf("no converter registered for %s -> %s", protocol.PrefixClaude, providerPrefix), nil)
	}
	toCallerSSE, ok := convert.Get(callerPrefix, protocol.PrefixClaude)
	if !ok {
		return gatewayerr.Protocol(fmt.Sprintf("no converter registered for %s -> %s", callerPrefix, protocol.PrefixClaude), nil)
	}
	providerIsClaude := providerPrefix == protocol.PrefixClaude

	var req map[string]any
	if err := json.Unmarshal(claudeWireReq, &req); err != nil {
		return gatewayerr.Protocol("unmarshal request for streaming continuation", err)
	}
	messages, _ := req["messages"].([]any)
	messages = append([]any(nil), messages...)

	outState := convert.NewStreamState()

	for round := 0; round < maxStreamContinuationRounds; round++ {
		req["messages"] = messages
		reqWire, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("marshal streaming continuation round %d request: %w", round, err)
		}

		providerWireReq, err := convertRequest(protocol.PrefixClaude, providerPrefix, reqWire)
		if err != nil {
			return err
		}

		body, err := adapter.Stream(ctx, account, providerWireReq)
		if err != nil {
			return err
		}

		isFinalRound := round == maxStreamContinuationRounds-1
		pivotState := convert.NewStreamState()
		var stopReason string
		var roundText strings.Builder

		pumpErr := provideradapter.ParseSSE(body, func(evt provideradapter.SSEEvent) error {
			if evt.Data == "[DONE]" {
				return nil
			}
			claudeSSE, cerr := toClaudeSSE.ConvertStreamChunk([]byte(evt.Data), pivotState)
			if cerr != nil {
				o.logger.Error("anti-truncation pivot conversion failed", "error", cerr)
				return nil
			}
			if len(claudeSSE) == 0 {
				return nil
			}

			for _, payload := range claudePivotPayloads(claudeSSE, providerIsClaude) {
				if r := stopReasonOf(payload); r != "" {
					stopReason = r
				}
				roundText.WriteString(textDeltaOf(payload))

				if isMessageStop(payload) && !isFinalRound && stopReason == "max_tokens" {
					continue
				}

				callerSSE, oerr := toCallerSSE.ConvertStreamChunk([]byte(payload), outState)
				if oerr != nil {
					o.logger.Error("anti-truncation caller conversion failed", "error", oerr)
					continue
				}
				if len(callerSSE) == 0 {
					continue
				}
				if _, werr := w.Write(callerSSE); werr != nil {
					return werr
				}
				flushIfPossible(w)
			}
			return nil
		})
		body.Close()
		if pumpErr != nil {
			return pumpErr
		}

		if stopReason != "max_tokens" || isFinalRound {
			_, _ = w.Write([]byte("data: [DONE]\n\n"))
			flushIfPossible(w)
			return nil
		}

		messages = append(messages,
			map[string]any{"role": "assistant", "content": []any{map[string]any{"type": "text", "text": roundText.String()}}},
			map[string]any{"role": "user", "content": []any{map[string]any{"type": "text", "text": "Please continue from where you left off."}}},
		)
	}

	return nil
}

// claudePivotPayloads splits one converted chunk into its individual
// Claude event JSON payloads. Cross-protocol converters emit one or more
// fully framed "event: ...\ndata: ...\n\n" blocks (via formatSSEEvent);
// the Claude-to-Claude identity converter instead hands back the raw
// upstream payload untouched, so there is nothing to split.
func claudePivotPayloads(claudeSSE []byte, providerIsClaude bool) []string {
	if providerIsClaude {
		return []string{string(claudeSSE)}
	}
	var payloads []string
	_ = provideradapter.ParseSSE(bytes.NewReader(claudeSSE), func(evt provideradapter.SSEEvent) error {
		if evt.Data != "" && evt.Data != "[DONE]" {
			payloads = append(payloads, evt.Data)
		}
		return nil
	})
	return payloads
}

func decodeClaudeEvent(payload string) map[string]any {
	var data map[string]any
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return nil
	}
	return data
}

func stopReasonOf(payload string) string {
	data := decodeClaudeEvent(payload)
	if data == nil || data["type"] != "message_delta" {
		return ""
	}
	delta, _ := data["delta"].(map[string]any)
	reason, _ := delta["stop_reason"].(string)
	return reason
}

func textDeltaOf(payload string) string {
	data := decodeClaudeEvent(payload)
	if data == nil || data["type"] != "content_block_delta" {
		return ""
	}
	delta, _ := data["delta"].(map[string]any)
	if delta["type"] != "text_delta" {
		return ""
	}
	text, _ := delta["text"].(string)
	return text
}

func isMessageStop(payload string) bool {
	data := decodeClaudeEvent(payload)
	return data != nil && data["type"] == "message_stop"
}
