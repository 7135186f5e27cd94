package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/teslashibe/go-companion/internal/httpc"
)

// transport is the retrying HTTP plumbing shared by the HTTP providers.
type transport struct {
	provider string
	client   *http.Client
	stream   *http.Client
	config   *Config
	logger   *slog.Logger

	// parse turns a non-200 response into an error.
	parse func(resp *http.Response) error

	// header sets auth and content headers on each request.
	header func(req *http.Request)
}

func newTransport(provider string, cfg *Config, parse func(*http.Response) error, header func(*http.Request)) transport {
	return transport{
		provider: provider,
		client:   httpc.NewClient(cfg.Timeout),
		stream:   httpc.NewClient(cfg.StreamTimeout),
		config:   cfg,
		logger:   cfg.Logger.With("component", "tts."+provider),
		parse:    parse,
		header:   header,
	}
}

// post sends body to url, retrying rate limits and server errors. The
// caller owns the returned body, which always has status 200.
func (t *transport) post(ctx context.Context, client *http.Client, url string, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= t.config.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := httpc.Wait(ctx, attempt, t.config.RetryDelay); err != nil {
				return nil, WrapError(t.provider, err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
		if err != nil {
			return nil, WrapError(t.provider, fmt.Errorf("create request: %w", err))
		}
		t.header(req)

		resp, err := client.Do(req)
		if err != nil {
			lastErr = WrapError(t.provider, err)
			if ctx.Err() != nil {
				return nil, lastErr
			}
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		lastErr = t.parse(resp)
		resp.Body.Close()
		if !httpc.Retryable(resp.StatusCode) {
			return nil, lastErr
		}
		t.logger.Warn("retrying request",
			"attempt", attempt+1,
			"status", resp.StatusCode,
		)
	}

	return nil, lastErr
}

// get performs a single GET and returns an error for non-200 responses.
func (t *transport) get(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return WrapError(t.provider, err)
	}
	t.header(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return WrapError(t.provider, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return t.parse(resp)
	}
	return nil
}

func (t *transport) close() {
	t.client.CloseIdleConnections()
	t.stream.CloseIdleConnections()
}

// synthesize posts body and reads the whole PCM response.
func (t *transport) synthesize(ctx context.Context, url string, body []byte, text string, format AudioFormat) (*AudioResult, error) {
	start := time.Now()

	resp, err := t.post(ctx, t.client, url, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(t.provider, fmt.Errorf("read response: %w", err))
	}
	latency := time.Since(start).Milliseconds()

	t.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
	)

	return &AudioResult{
		Audio:     audio,
		Format:    format,
		Duration:  PCMDuration(len(audio), format.SampleRate),
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

// openStream posts body and returns the response body as an AudioStream.
func (t *transport) openStream(ctx context.Context, url string, body []byte, format AudioFormat) (AudioStream, error) {
	resp, err := t.post(ctx, t.stream, url, body)
	if err != nil {
		return nil, err
	}
	return &httpStream{body: resp.Body, format: format}, nil
}

// httpStream wraps an HTTP response body as AudioStream. Chunks always
// hold whole PCM16 samples.
type httpStream struct {
	body   io.ReadCloser
	format AudioFormat
	buf    [4096]byte
	odd    []byte
}

// Read returns the next audio chunk.
func (s *httpStream) Read() ([]byte, error) {
	for {
		n, err := s.body.Read(s.buf[:])
		if n > 0 {
			chunk := append(append([]byte(nil), s.odd...), s.buf[:n]...)
			s.odd = nil
			if len(chunk)%2 == 1 {
				s.odd = chunk[len(chunk)-1:]
				chunk = chunk[:len(chunk)-1]
			}
			if len(chunk) > 0 {
				return chunk, nil
			}
		}
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// Close stops the stream.
func (s *httpStream) Close() error {
	return s.body.Close()
}

// Format returns the audio format.
func (s *httpStream) Format() AudioFormat {
	return s.format
}

// bufferStream serves a byte slice as an AudioStream in fixed chunks.
type bufferStream struct {
	data   []byte
	offset int
	chunk  int
	format AudioFormat
}

func newBufferStream(data []byte, format AudioFormat) *bufferStream {
	return &bufferStream{data: data, chunk: 4800, format: format}
}

// Read returns the next audio chunk.
func (s *bufferStream) Read() ([]byte, error) {
	if s.offset >= len(s.data) {
		return nil, nil
	}
	end := s.offset + s.chunk
	if end > len(s.data) {
		end = len(s.data)
	}
	chunk := s.data[s.offset:end]
	s.offset = end
	return chunk, nil
}

// Close releases resources.
func (s *bufferStream) Close() error {
	return nil
}

// Format returns the audio format.
func (s *bufferStream) Format() AudioFormat {
	return s.format
}
