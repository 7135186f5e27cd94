// Package playback speaks assistant replies through an audio sink.
//
// A Controller plays at most one utterance at a time. Speak cancels
// whatever is playing, synthesizes the new text with a tts.Provider and
// streams the PCM to an audioio.Sink. Each utterance reports a Started
// event when its first audio reaches the sink, then exactly one terminal
// event: Ended, Error or Cancelled.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-companion/pkg/audioio"
	"github.com/teslashibe/go-companion/pkg/tts"
	"github.com/teslashibe/go-companion/pkg/voice"
)

// ErrNothingToSay is returned by Speak for blank text.
var ErrNothingToSay = errors.New("playback: nothing to say")

// EventType identifies an utterance lifecycle event.
type EventType string

const (
	EventStarted   EventType = "started"
	EventEnded     EventType = "ended"
	EventError     EventType = "error"
	EventCancelled EventType = "cancelled"
)

// Event is one step of an utterance's lifecycle.
type Event struct {
	Type        EventType
	UtteranceID string
	At          time.Time

	// Err is set for EventError.
	Err *voice.Error
}

// Terminal reports whether no further events follow.
func (e Event) Terminal() bool {
	return e.Type != EventStarted
}

// Utterance is a single spoken reply.
type Utterance struct {
	ID   string
	Text string

	events chan Event
	done   chan struct{}
	cancel context.CancelFunc

	mu         sync.Mutex
	firstAudio time.Time
}

// Events delivers the lifecycle events and is closed after the terminal one.
func (u *Utterance) Events() <-chan Event { return u.events }

// Done is closed once the utterance has released the sink.
func (u *Utterance) Done() <-chan struct{} { return u.done }

// FirstAudio returns when audio first reached the sink, or zero.
func (u *Utterance) FirstAudio() time.Time {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.firstAudio
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock replaces time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// Controller sequences utterances onto one sink.
type Controller struct {
	provider tts.Provider
	sink     audioio.Sink
	logger   *slog.Logger
	now      func() time.Time

	speakMu sync.Mutex
	writeMu sync.Mutex

	mu      sync.Mutex
	current *Utterance
	started bool
	closed  bool
}

// New creates a Controller. The sink is started lazily on the first Speak.
func New(provider tts.Provider, sink audioio.Sink, opts ...Option) *Controller {
	c := &Controller{
		provider: provider,
		sink:     sink,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "playback.controller")
	return c
}

// Speak cancels any in-flight utterance and starts speaking text.
func (c *Controller) Speak(ctx context.Context, text string) (*Utterance, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrNothingToSay
	}

	c.speakMu.Lock()
	defer c.speakMu.Unlock()
	c.Cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, audioio.ErrClosed
	}
	if !c.started {
		if err := c.sink.Start(ctx); err != nil {
			return nil, audioio.ClassifyDeviceError(err)
		}
		c.started = true
	}

	uctx, cancel := context.WithCancel(ctx)
	u := &Utterance{
		ID:     uuid.New().String(),
		Text:   text,
		events: make(chan Event, 2),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	c.current = u

	c.logger.Debug("speaking", "utterance", u.ID, "chars", len(text))
	go c.run(uctx, u)
	return u, nil
}

// Cancel stops the current utterance. It is a no-op when nothing is
// playing and Speaking reports false as soon as it returns.
func (c *Controller) Cancel() {
	c.mu.Lock()
	u := c.current
	c.current = nil
	c.mu.Unlock()

	if u == nil {
		return
	}
	u.cancel()
	if err := c.sink.Clear(); err != nil {
		c.logger.Warn("failed to clear sink", "error", err)
	}
	c.logger.Info("playback cancelled", "utterance", u.ID)
}

// Speaking reports whether an utterance is in flight.
func (c *Controller) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Close cancels playback and releases the sink.
func (c *Controller) Close() error {
	c.Cancel()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return c.sink.Close()
}

func (c *Controller) run(ctx context.Context, u *Utterance) {
	defer close(u.done)
	defer u.cancel()

	stream, err := c.provider.Stream(ctx, u.Text)
	if err != nil {
		c.finish(ctx, u, err)
		return
	}
	defer stream.Close()

	format := stream.Format()
	target := c.sink.Config()

	for {
		data, err := stream.Read()
		if err != nil {
			c.finish(ctx, u, err)
			return
		}
		if data == nil {
			break
		}

		var chunk audioio.AudioChunk
		chunk.FromBytes(data, format.SampleRate, format.Channels)
		if target.SampleRate > 0 && chunk.SampleRate != target.SampleRate {
			chunk.Samples = audioio.Resample(chunk.Samples, chunk.SampleRate, target.SampleRate)
			chunk.SampleRate = target.SampleRate
		}

		if err := c.write(ctx, u, chunk); err != nil {
			c.finish(ctx, u, err)
			return
		}
	}

	c.finish(ctx, u, c.sink.Flush(ctx))
}

// write hands one chunk to the sink unless u has been superseded. The
// sink may block at playback rate, so c.mu is not held across it and
// Cancel never waits on a write. A chunk that raced a Cancel is cleared
// again before the next utterance can write.
func (c *Controller) write(ctx context.Context, u *Utterance, chunk audioio.AudioChunk) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if !c.owns(ctx, u) {
		return context.Canceled
	}
	if err := c.sink.Write(ctx, chunk); err != nil {
		return err
	}
	if !c.owns(ctx, u) {
		if err := c.sink.Clear(); err != nil {
			c.logger.Warn("failed to clear sink", "error", err)
		}
		return context.Canceled
	}

	u.mu.Lock()
	first := u.firstAudio.IsZero()
	if first {
		u.firstAudio = c.now()
	}
	at := u.firstAudio
	u.mu.Unlock()

	if first {
		u.events <- Event{Type: EventStarted, UtteranceID: u.ID, At: at}
	}
	return nil
}

func (c *Controller) owns(ctx context.Context, u *Utterance) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current == u && ctx.Err() == nil
}

func (c *Controller) finish(ctx context.Context, u *Utterance, err error) {
	c.mu.Lock()
	superseded := c.current != u
	if !superseded {
		c.current = nil
	}
	c.mu.Unlock()

	ev := Event{UtteranceID: u.ID, At: c.now()}
	switch {
	case superseded || ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, audioio.ErrInterrupted):
		ev.Type = EventCancelled
	case err != nil:
		ev.Type = EventError
		ev.Err = voice.AsError(err)
		c.logger.Warn("playback failed", "utterance", u.ID, "error", err)
	default:
		ev.Type = EventEnded
		if s, ok := c.sink.(audioio.SinkWithStats); ok {
			st := s.Stats()
			c.logger.Debug("playback ended", "utterance", u.ID, "chunks", st.ChunksWritten, "clears", st.Clears)
		} else {
			c.logger.Debug("playback ended", "utterance", u.ID)
		}
	}

	u.events <- ev
	close(u.events)
}
