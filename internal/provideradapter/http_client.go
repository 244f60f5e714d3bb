package provideradapter

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/sync/semaphore"
)

// maxConcurrentSockets bounds in-flight logical upstream calls,
// including retries, at the number spec.md §5 names (~100) — a
// transport-level MaxConnsPerHost alone would not cover that since it
// only caps physical connections, not logical call concurrency.
const maxConcurrentSockets = 100

var callSemaphore = semaphore.NewWeighted(maxConcurrentSockets)

// sharedClient is the one http.Client every adapter issues upstream
// calls through: a single long-lived client with a 120s idle timeout
// and a handful of idle keep-alive connections.
var sharedClient = &http.Client{
	Timeout: 0, // per-call timeout is applied via context
	Transport: &http.Transport{
		IdleConnTimeout:     120 * time.Second,
		MaxIdleConnsPerHost: 5,
	},
}

// acquireSlot blocks until a socket slot is free, honoring ctx
// cancellation.
func acquireSlot(ctx context.Context) error {
	return callSemaphore.Acquire(ctx, 1)
}

func releaseSlot() {
	callSemaphore.Release(1)
}

// decompressBody wraps resp.Body with a brotli or gzip reader based on
// Content-Encoding, since upstream providers commonly compress large
// streaming bodies.
func decompressBody(encoding string, body io.ReadCloser) (io.ReadCloser, error) {
	switch encoding {
	case "br":
		return &wrappedReadCloser{Reader: brotli.NewReader(body), underlying: body}, nil
	case "gzip":
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, err
		}
		return &wrappedReadCloser{Reader: gz, underlying: body}, nil
	default:
		return body, nil
	}
}

// wrappedReadCloser closes both the decompressing reader's own state (if
// it implements io.Closer) and the original response body.
type wrappedReadCloser struct {
	io.Reader
	underlying io.ReadCloser
}

func (w *wrappedReadCloser) Close() error {
	if c, ok := w.Reader.(io.Closer); ok {
		_ = c.Close()
	}
	return w.underlying.Close()
}
