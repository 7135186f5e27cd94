// Package convlog persists the conversation feed.
//
// The session appends one user and one assistant message per turn through
// an AsyncWriter so a slow disk never stalls the conversation loop. Recent
// restores the last turns on startup.
package convlog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/teslashibe/go-companion/pkg/voice"
)

// ErrClosed is returned when using a closed store or writer.
var ErrClosed = errors.New("convlog: closed")

// Store defines the interface for message persistence backends.
type Store interface {
	// Append persists one message.
	Append(ctx context.Context, msg voice.Message) error

	// Recent returns up to n of the newest messages, oldest first.
	Recent(ctx context.Context, n int) ([]voice.Message, error)

	// Close releases any resources held by the store.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Open creates the store for backend. path is ignored for memory.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", BackendSQLite:
		return OpenSQLite(path)
	case BackendJSON:
		return NewJSONStore(path), nil
	case BackendMemory:
		return NewMemory(0), nil
	default:
		return nil, fmt.Errorf("convlog: unknown backend %q", backend)
	}
}

// Memory keeps messages in process. Useful for tests and ephemeral sessions.
type Memory struct {
	mu       sync.Mutex
	messages []voice.Message
	limit    int
	closed   bool
}

// NewMemory creates a memory store holding at most limit messages (0 = unbounded).
func NewMemory(limit int) *Memory {
	return &Memory{limit: limit}
}

// Append stores msg, evicting the oldest message past the limit.
func (m *Memory) Append(ctx context.Context, msg voice.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.messages = append(m.messages, msg)
	if m.limit > 0 && len(m.messages) > m.limit {
		m.messages = m.messages[len(m.messages)-m.limit:]
	}
	return nil
}

// Recent returns up to n of the newest messages, oldest first.
func (m *Memory) Recent(ctx context.Context, n int) ([]voice.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return tail(m.messages, n), nil
}

// Len returns the number of stored messages.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// Close marks the store closed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func tail(msgs []voice.Message, n int) []voice.Message {
	if n <= 0 || len(msgs) == 0 {
		return nil
	}
	if n > len(msgs) {
		n = len(msgs)
	}
	out := make([]voice.Message, n)
	copy(out, msgs[len(msgs)-n:])
	return out
}

var _ Store = (*Memory)(nil)
