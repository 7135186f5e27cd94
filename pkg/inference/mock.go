package inference

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Mock is a scriptable Provider for tests. Nil funcs fall back to
// harmless defaults except ChatFunc, which fails.
type Mock struct {
	ChatFunc   func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	HealthFunc func(ctx context.Context) error
	CloseFunc  func() error

	// NameOverride replaces "mock", so tests can tell tiers apart.
	NameOverride string

	mu    sync.Mutex
	calls []MockCall
}

// MockCall is one recorded invocation. Request is set for Chat only.
type MockCall struct {
	Method  string
	Request *ChatRequest
	Time    time.Time
}

var errNoChatFunc = errors.New("no chat func")

// NewMock answers every request with reply.
func NewMock(reply string) *Mock {
	return &Mock{
		ChatFunc: func(context.Context, *ChatRequest) (*ChatResponse, error) {
			return &ChatResponse{
				Message:      NewAssistantMessage(reply),
				FinishReason: "stop",
				Usage:        Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
			}, nil
		},
	}
}

// WithError fails Chat and Health with err.
func WithError(err error) *Mock {
	return &Mock{
		ChatFunc:   func(context.Context, *ChatRequest) (*ChatResponse, error) { return nil, err },
		HealthFunc: func(context.Context) error { return err },
	}
}

// WithDelay answers after d unless ctx ends first.
func WithDelay(d time.Duration, reply string) *Mock {
	return &Mock{
		ChatFunc: func(ctx context.Context, _ *ChatRequest) (*ChatResponse, error) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
				return &ChatResponse{Message: NewAssistantMessage(reply)}, nil
			case <-ctx.Done():
				return nil, WrapError("mock", ctx.Err())
			}
		},
	}
}

func (m *Mock) Name() string {
	if m.NameOverride != "" {
		return m.NameOverride
	}
	return "mock"
}

func (m *Mock) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	m.record("Chat", req)
	if m.ChatFunc == nil {
		return nil, WrapError(m.Name(), errNoChatFunc)
	}
	return m.ChatFunc(ctx, req)
}

func (m *Mock) Health(ctx context.Context) error {
	m.record("Health", nil)
	if m.HealthFunc == nil {
		return nil
	}
	return m.HealthFunc(ctx)
}

func (m *Mock) Close() error {
	m.record("Close", nil)
	if m.CloseFunc == nil {
		return nil
	}
	return m.CloseFunc()
}

func (m *Mock) record(method string, req *ChatRequest) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Method: method, Request: req, Time: time.Now()})
	m.mu.Unlock()
}

// Calls returns a copy of the recorded calls in order.
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

// LastRequest is the most recent Chat request, or nil.
func (m *Mock) LastRequest() *ChatRequest {
	calls := m.Calls()
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i].Request != nil {
			return calls[i].Request
		}
	}
	return nil
}

func (m *Mock) Reset() {
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
}

var _ Provider = (*Mock)(nil)
