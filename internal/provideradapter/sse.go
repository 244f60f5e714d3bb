package provideradapter

import (
	"bufio"
	"io"
	"strings"
)

// SSEEvent is one decoded Server-Sent Event: the accumulated lines
// between a blank-line or EOF flush, with the "data: " prefix already
// stripped and CRLF normalized.
type SSEEvent struct {
	Event string
	Data  string
}

// ParseSSE reads body as a stream of SSE events, calling onEvent for
// each one as it completes. A blank line flushes the accumulated event;
// EOF flushes whatever is pending even without a trailing blank line.
// An error returned by onEvent stops parsing and is returned as is, so
// the caller decides per-event error tolerance by returning an error
// from onEvent only when it wants to stop.
func ParseSSE(body io.Reader, onEvent func(SSEEvent) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var current SSEEvent
	var dataLines []string
	haveData := false

	flush := func() error {
		if !haveData {
			return nil
		}
		current.Data = strings.Join(dataLines, "\n")
		err := onEvent(current)
		current = SSEEvent{}
		dataLines = dataLines[:0]
		haveData = false
		return err
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, "event: "):
			current.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			dataLines = append(dataLines, strings.TrimPrefix(line, "data: "))
			haveData = true
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(line, "data:"))
			haveData = true
		case strings.HasPrefix(line, ":"):
			// comment/keepalive line, ignored
		}
	}

	if err := flush(); err != nil {
		return err
	}

	if err := scanner.Err(); err != nil && err != io.EOF {
		return err
	}
	return nil
}
