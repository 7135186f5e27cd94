package tts

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Mock is a scriptable Provider. By default it speaks silence paced at
// about 20ms per character, which is close enough to real speech for
// reveal and playback timing tests.
type Mock struct {
	NameOverride string

	SynthesizeFunc func(ctx context.Context, text string) (*AudioResult, error)
	// StreamFunc defaults to chunking the SynthesizeFunc result.
	StreamFunc func(ctx context.Context, text string) (AudioStream, error)
	HealthFunc func(ctx context.Context) error
	CloseFunc  func() error

	mu    sync.Mutex
	calls []MockCall
}

type MockCall struct {
	Method string
	Text   string
	Time   time.Time
}

const mockBytesPerChar = 960 // 20ms of 24kHz PCM16

var errNoSynth = errors.New("no synthesize func")

func NewMock() *Mock {
	return &Mock{SynthesizeFunc: silence}
}

func silence(_ context.Context, text string) (*AudioResult, error) {
	n := len(text)
	return &AudioResult{
		Audio:     make([]byte, n*mockBytesPerChar),
		Format:    PCM24,
		CharCount: n,
		LatencyMs: 10,
		Duration:  time.Duration(n) * 20 * time.Millisecond,
	}, nil
}

// WithError fails every call with err.
func WithError(err error) *Mock {
	return &Mock{
		SynthesizeFunc: func(context.Context, string) (*AudioResult, error) { return nil, err },
		StreamFunc:     func(context.Context, string) (AudioStream, error) { return nil, err },
		HealthFunc:     func(context.Context) error { return err },
	}
}

// WithLatency delays m's synthesis by d, honouring cancellation.
func WithLatency(m *Mock, d time.Duration) *Mock {
	next := m.SynthesizeFunc
	m.SynthesizeFunc = func(ctx context.Context, text string) (*AudioResult, error) {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if next == nil {
			return nil, WrapError("mock", errNoSynth)
		}
		return next(ctx, text)
	}
	return m
}

func (m *Mock) Name() string {
	if m.NameOverride != "" {
		return m.NameOverride
	}
	return "mock"
}

func (m *Mock) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	m.record("Synthesize", text)
	if m.SynthesizeFunc == nil {
		return nil, WrapError(m.Name(), errNoSynth)
	}
	return m.SynthesizeFunc(ctx, text)
}

func (m *Mock) Stream(ctx context.Context, text string) (AudioStream, error) {
	m.record("Stream", text)
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, text)
	}
	if m.SynthesizeFunc == nil {
		return nil, WrapError(m.Name(), errNoSynth)
	}
	res, err := m.SynthesizeFunc(ctx, text)
	if err != nil {
		return nil, err
	}
	return newBufferStream(res.Audio, res.Format), nil
}

func (m *Mock) Health(ctx context.Context) error {
	m.record("Health", "")
	if m.HealthFunc == nil {
		return nil
	}
	return m.HealthFunc(ctx)
}

func (m *Mock) Close() error {
	m.record("Close", "")
	if m.CloseFunc == nil {
		return nil
	}
	return m.CloseFunc()
}

func (m *Mock) record(method, text string) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Method: method, Text: text, Time: time.Now()})
	m.mu.Unlock()
}

func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

func (m *Mock) CallCount(method string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (m *Mock) Reset() {
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
}

var _ Provider = (*Mock)(nil)
