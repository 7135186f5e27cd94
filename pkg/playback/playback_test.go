package playback

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-companion/pkg/audioio"
	"github.com/teslashibe/go-companion/pkg/tts"
)

func newSink(speedup float64) *audioio.MockSink {
	cfg := audioio.DefaultConfig()
	cfg.Backend = audioio.BackendMock
	return audioio.NewMockSink(cfg, nil, audioio.WithSpeedup(speedup))
}

func collect(t *testing.T, u *Utterance) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-u.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("utterance did not finish, got %d events", len(events))
		}
	}
}

// slowSink blocks in Write the way a player pipe does when its buffer is full.
type slowSink struct {
	*audioio.MockSink
	delay time.Duration
}

func (s *slowSink) Write(ctx context.Context, chunk audioio.AudioChunk) error {
	time.Sleep(s.delay)
	return s.MockSink.Write(ctx, chunk)
}

func TestCancel_DoesNotWaitForSinkWrite(t *testing.T) {
	sink := &slowSink{MockSink: newSink(100), delay: 500 * time.Millisecond}
	c := New(tts.NewMock(), sink)
	defer c.Close()

	u, err := c.Speak(context.Background(), strings.Repeat("a long and gentle reply ", 10))
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	c.Cancel()
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Cancel blocked on the sink for %v", elapsed)
	}
	if c.Speaking() {
		t.Error("Expected not speaking right after Cancel")
	}

	events := collect(t, u)
	if last := events[len(events)-1]; last.Type != EventCancelled {
		t.Errorf("Expected cancelled, got %+v", events)
	}
	if n := sink.Stats().Clears; n < 2 {
		t.Errorf("Expected the raced chunk to be cleared, got %d clears", n)
	}
}

func TestSpeak_Lifecycle(t *testing.T) {
	provider := tts.NewMock()
	sink := newSink(10)
	c := New(provider, sink)
	defer c.Close()

	u, err := c.Speak(context.Background(), "Let's take a slow breath together.")
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	if !c.Speaking() {
		t.Error("Expected speaking right after Speak")
	}

	events := collect(t, u)
	if len(events) != 2 || events[0].Type != EventStarted || events[1].Type != EventEnded {
		t.Fatalf("unexpected events: %+v", events)
	}
	if u.FirstAudio().IsZero() {
		t.Error("Expected first audio time")
	}
	if c.Speaking() {
		t.Error("Expected not speaking after ended")
	}
	if provider.CallCount("Stream") != 1 {
		t.Errorf("Expected 1 stream call, got %d", provider.CallCount("Stream"))
	}
	if sink.Stats().ChunksWritten == 0 {
		t.Error("Expected audio written to the sink")
	}
}

func TestCancel_ClearsSynchronously(t *testing.T) {
	sink := newSink(1)
	c := New(tts.NewMock(), sink)
	defer c.Close()

	u, err := c.Speak(context.Background(), strings.Repeat("slow words ", 20))
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	c.Cancel()
	if c.Speaking() {
		t.Error("Cancel must clear speaking before returning")
	}

	events := collect(t, u)
	last := events[len(events)-1]
	if last.Type != EventCancelled {
		t.Errorf("Expected cancelled, got %s", last.Type)
	}
	select {
	case <-u.Done():
	case <-time.After(time.Second):
		t.Fatal("utterance did not release the sink")
	}
	if sink.Stats().Clears == 0 {
		t.Error("Expected the sink to be cleared")
	}
}

func TestCancel_IdleIsNoop(t *testing.T) {
	sink := newSink(100)
	c := New(tts.NewMock(), sink)

	c.Cancel()
	c.Cancel()

	if c.Speaking() {
		t.Error("Expected not speaking")
	}
	if sink.Stats().Clears != 0 {
		t.Error("idle cancel must not touch the sink")
	}
}

func TestSpeak_SupersedesCurrent(t *testing.T) {
	c := New(tts.NewMock(), newSink(1))
	defer c.Close()

	first, err := c.Speak(context.Background(), strings.Repeat("first reply ", 20))
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	second, err := c.Speak(context.Background(), "second")
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}

	if last := collect(t, first); last[len(last)-1].Type != EventCancelled {
		t.Errorf("Expected first utterance cancelled, got %+v", last)
	}
	if last := collect(t, second); last[len(last)-1].Type != EventEnded {
		t.Errorf("Expected second utterance ended, got %+v", last)
	}
}

func TestSpeak_SynthesisError(t *testing.T) {
	c := New(tts.WithError(errors.New("quota exceeded")), newSink(100))
	defer c.Close()

	u, err := c.Speak(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	events := collect(t, u)
	if len(events) != 1 || events[0].Type != EventError {
		t.Fatalf("unexpected events: %+v", events)
	}
	if events[0].Err == nil || !events[0].Err.Recoverable {
		t.Errorf("Expected recoverable error, got %+v", events[0].Err)
	}
	if c.Speaking() {
		t.Error("Expected not speaking after error")
	}
}

func TestSpeak_SinkWriteError(t *testing.T) {
	cfg := audioio.DefaultConfig()
	sink := audioio.NewMockSink(cfg, nil, audioio.WithWriteError(errors.New("device gone")))
	c := New(tts.NewMock(), sink)
	defer c.Close()

	u, err := c.Speak(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	events := collect(t, u)
	if len(events) != 1 || events[0].Type != EventError {
		t.Errorf("Expected a single error event, got %+v", events)
	}
}

func TestSpeak_Blank(t *testing.T) {
	c := New(tts.NewMock(), newSink(100))
	if _, err := c.Speak(context.Background(), "   "); !errors.Is(err, ErrNothingToSay) {
		t.Errorf("Expected ErrNothingToSay, got %v", err)
	}
}

func TestSpeak_AfterClose(t *testing.T) {
	c := New(tts.NewMock(), newSink(100))
	c.Close()
	if _, err := c.Speak(context.Background(), "hello"); !errors.Is(err, audioio.ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}
