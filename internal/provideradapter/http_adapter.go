package provideradapter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/proxyforge/llmgate/internal/gatewayerr"
	"github.com/proxyforge/llmgate/internal/pool"
	"github.com/proxyforge/llmgate/internal/protocol"
)

// AuthFunc resolves the bearer credential for one call, refreshing first
// when force is set (used after a 401).
type AuthFunc func(ctx context.Context, account *pool.Account, force bool) (headerName, headerValue string, err error)

// URLFunc builds the upstream URL for one call.
type URLFunc func(account *pool.Account, model string, stream bool) string

// httpConfig parameterizes httpAdapter for one concrete provider type, so
// the six provider types share one HTTP transport implementation and
// differ only in URL construction and auth.
type httpConfig struct {
	typ   protocol.ProviderType
	url   URLFunc
	auth  AuthFunc
	retry RetryPolicy
}

type httpAdapter struct {
	cfg httpConfig
}

func newHTTPAdapter(cfg httpConfig) *httpAdapter {
	if cfg.retry == (RetryPolicy{}) {
		cfg.retry = DefaultRetryPolicy()
	}
	return &httpAdapter{cfg: cfg}
}

func (a *httpAdapter) Type() protocol.ProviderType { return a.cfg.typ }

func (a *httpAdapter) Refresh(ctx context.Context, account *pool.Account) error {
	_, _, err := a.cfg.auth(ctx, account, true)
	return err
}

func (a *httpAdapter) Generate(ctx context.Context, account *pool.Account, upstreamWire []byte) ([]byte, error) {
	var body []byte
	var delivered bool
	var lastStatus int

	err := a.cfg.retry.Attempt(ctx, &delivered,
		func(rctx context.Context) error { return a.Refresh(rctx, account) },
		func(rctx context.Context) (int, error) {
			status, respBody, err := a.doRequest(rctx, account, upstreamWire, false)
			lastStatus = status
			if err != nil {
				return status, err
			}
			body = respBody
			return status, nil
		},
	)
	if err != nil {
		return nil, classifyErr(lastStatus, err)
	}
	return body, nil
}

func (a *httpAdapter) Stream(ctx context.Context, account *pool.Account, upstreamWire []byte) (io.ReadCloser, error) {
	var rc io.ReadCloser
	var delivered bool
	var lastStatus int

	err := a.cfg.retry.Attempt(ctx, &delivered,
		func(rctx context.Context) error { return a.Refresh(rctx, account) },
		func(rctx context.Context) (int, error) {
			status, body, err := a.doStreamRequest(rctx, account, upstreamWire)
			lastStatus = status
			if err != nil {
				return status, err
			}
			rc = body
			return status, nil
		},
	)
	if err != nil {
		return nil, classifyErr(lastStatus, err)
	}
	return rc, nil
}

// ListModels for a custom endpoint has no discovery call in these wire
// protocols; callers rely on the account's static config instead.
func (a *httpAdapter) ListModels(ctx context.Context, account *pool.Account) ([]string, error) {
	return nil, nil
}

func (a *httpAdapter) doRequest(ctx context.Context, account *pool.Account, reqBody []byte, stream bool) (statusCode int, respBody []byte, err error) {
	if err := acquireSlot(ctx); err != nil {
		return 0, nil, err
	}
	defer releaseSlot()

	headerName, headerValue, err := a.cfg.auth(ctx, account, false)
	if err != nil {
		return 0, nil, err
	}

	url := a.cfg.url(account, "", stream)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerName, headerValue)
	req.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := sharedClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := decompressBody(resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		return resp.StatusCode, nil, fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(data))
	}

	return resp.StatusCode, data, nil
}

func (a *httpAdapter) doStreamRequest(ctx context.Context, account *pool.Account, reqBody []byte) (statusCode int, body io.ReadCloser, err error) {
	if err := acquireSlot(ctx); err != nil {
		return 0, nil, err
	}
	releaseOnce := false
	release := func() {
		if !releaseOnce {
			releaseOnce = true
			releaseSlot()
		}
	}

	headerName, headerValue, err := a.cfg.auth(ctx, account, false)
	if err != nil {
		release()
		return 0, nil, err
	}

	url := a.cfg.url(account, "", true)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		release()
		return 0, nil, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerName, headerValue)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := sharedClient.Do(req)
	if err != nil {
		release()
		return 0, nil, fmt.Errorf("upstream stream request failed: %w", err)
	}

	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		defer release()
		data, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, nil, fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(data))
	}

	decoded, err := decompressBody(resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		release()
		return resp.StatusCode, nil, err
	}

	return resp.StatusCode, &releasingReadCloser{ReadCloser: decoded, release: release}, nil
}

// releasingReadCloser returns the socket-semaphore slot when the caller
// finishes (or abandons) reading the stream body.
type releasingReadCloser struct {
	io.ReadCloser
	release func()
}

func (r *releasingReadCloser) Close() error {
	r.release()
	return r.ReadCloser.Close()
}

func classifyErr(statusCode int, err error) error {
	if err == nil {
		return nil
	}
	if statusCode == 401 {
		return gatewayerr.AuthExpired("upstream call failed", err)
	}
	return gatewayerr.Transient(statusCode, "upstream call failed", err)
}
