package provideradapter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSSE_BlankLineFlushesEvent(t *testing.T) {
	body := "event: message\ndata: {\"a\":1}\n\nevent: message\ndata: {\"a\":2}\n\n"

	var events []SSEEvent
	err := ParseSSE(strings.NewReader(body), func(e SSEEvent) error {
		events = append(events, e)
		return nil
	})

	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "message", events[0].Event)
	assert.Equal(t, `{"a":1}`, events[0].Data)
	assert.Equal(t, `{"a":2}`, events[1].Data)
}

func TestParseSSE_EOFFlushesPendingEventWithoutTrailingBlankLine(t *testing.T) {
	body := "data: last\n"

	var events []SSEEvent
	err := ParseSSE(strings.NewReader(body), func(e SSEEvent) error {
		events = append(events, e)
		return nil
	})

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "last", events[0].Data)
}

func TestParseSSE_HandlesCRLFAndMultilineData(t *testing.T) {
	body := "data: line1\r\ndata: line2\r\n\r\n"

	var events []SSEEvent
	err := ParseSSE(strings.NewReader(body), func(e SSEEvent) error {
		events = append(events, e)
		return nil
	})

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "line1\nline2", events[0].Data)
}

func TestParseSSE_IgnoresCommentLines(t *testing.T) {
	body := ": keepalive\ndata: ok\n\n"

	var events []SSEEvent
	err := ParseSSE(strings.NewReader(body), func(e SSEEvent) error {
		events = append(events, e)
		return nil
	})

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ok", events[0].Data)
}

func TestParseSSE_PerEventErrorStopsRemainingStream(t *testing.T) {
	body := "data: one\n\ndata: two\n\n"

	var seen []string
	err := ParseSSE(strings.NewReader(body), func(e SSEEvent) error {
		seen = append(seen, e.Data)
		if e.Data == "one" {
			return assert.AnError
		}
		return nil
	})

	require.Error(t, err)
	assert.Equal(t, []string{"one"}, seen)
}
