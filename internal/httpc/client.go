// Package httpc holds the HTTP plumbing shared by the speech, transcription
// and language model clients: one pooled transport, retry pacing and
// bounded reads of error bodies.
package httpc

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"
)

// Default timeouts for HTTP operations.
const (
	DefaultTimeout        = 30 * time.Second
	DefaultConnectTimeout = 10 * time.Second

	// MaxErrorBody caps how much of a failed response is read for its message.
	MaxErrorBody = 8 << 10
)

// transport is shared so every provider reuses warm connections to the
// same API hosts across turns.
var transport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   DefaultConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	ForceAttemptHTTP2:     true,
	MaxIdleConns:          50,
	MaxIdleConnsPerHost:   8,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: time.Second,
}

// NewClient returns a client over the shared transport. A zero timeout
// leaves the request bounded only by its context, as streaming needs.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: transport}
}

// Retryable reports whether a response status is worth another attempt.
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// Wait sleeps before retry attempt n (1-based), growing linearly from
// base. It returns ctx.Err() if ctx ends first.
func Wait(ctx context.Context, attempt int, base time.Duration) error {
	t := time.NewTimer(base * time.Duration(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ErrorBody reads at most MaxErrorBody bytes of a failed response and
// discards the rest so the connection can be reused.
func ErrorBody(resp *http.Response) []byte {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBody))
	io.Copy(io.Discard, resp.Body)
	return body
}
