package convlog

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-companion/pkg/voice"
)

// AsyncWriter appends to a Store from a background goroutine. Append never
// blocks: when the queue is full the message is dropped with a warning.
type AsyncWriter struct {
	store   Store
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	queue  chan voice.Message
	closed bool
	done   chan struct{}

	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// AsyncOption configures an AsyncWriter.
type AsyncOption func(*AsyncWriter)

// WithQueueSize sets how many messages may wait for the store. Default: 64.
func WithQueueSize(n int) AsyncOption {
	return func(w *AsyncWriter) {
		if n > 0 {
			w.queue = make(chan voice.Message, n)
		}
	}
}

// WithWriteTimeout bounds each store write. Default: 5s.
func WithWriteTimeout(d time.Duration) AsyncOption {
	return func(w *AsyncWriter) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) AsyncOption {
	return func(w *AsyncWriter) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewAsyncWriter starts a writer that owns store.
func NewAsyncWriter(store Store, opts ...AsyncOption) *AsyncWriter {
	w := &AsyncWriter{
		store:   store,
		logger:  slog.Default(),
		timeout: 5 * time.Second,
		queue:   make(chan voice.Message, 64),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "convlog.writer")

	go w.run()
	return w
}

// Append queues msg for persistence.
func (w *AsyncWriter) Append(msg voice.Message) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		w.dropped.Add(1)
		return
	}
	select {
	case w.queue <- msg:
	default:
		w.dropped.Add(1)
		w.logger.Warn("conversation log queue full, dropping message", "id", msg.ID)
	}
}

// Recent reads through to the store.
func (w *AsyncWriter) Recent(ctx context.Context, n int) ([]voice.Message, error) {
	return w.store.Recent(ctx, n)
}

func (w *AsyncWriter) run() {
	defer close(w.done)

	for msg := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		err := w.store.Append(ctx, msg)
		cancel()

		if err != nil {
			w.failed.Add(1)
			w.logger.Warn("failed to persist message", "id", msg.ID, "error", err)
			continue
		}
		w.written.Add(1)
	}
}

// Stats reports written, dropped and failed message counts.
func (w *AsyncWriter) Stats() (written, dropped, failed int64) {
	return w.written.Load(), w.dropped.Load(), w.failed.Load()
}

// Close drains queued messages, then closes the store.
func (w *AsyncWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	<-w.done
	return w.store.Close()
}
