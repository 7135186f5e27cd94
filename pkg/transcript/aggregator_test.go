package transcript

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-companion/pkg/recognition"
	"github.com/teslashibe/go-companion/pkg/voice"
)

func listen(t *testing.T, fake *recognition.Fake, watchdog time.Duration) (*recognition.Stream, *recognition.Adapter) {
	t.Helper()
	cfg := voice.DefaultConfig().WithNoSpeechTimeout(watchdog)
	cfg.SampleInterval = 10 * time.Millisecond
	a := recognition.NewAdapter(recognition.WithNative(fake), recognition.WithConfig(cfg))
	s, err := a.Listen(context.Background(), voice.DefaultLanguage, recognition.ListenOptions{})
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	return s, a
}

func step(ev recognition.Event) recognition.Step {
	return recognition.Step{After: 5 * time.Millisecond, Event: ev}
}

func TestAggregator_JoinsFinalsAtEnd(t *testing.T) {
	fake := recognition.NewFake("native",
		step(recognition.Event{Type: recognition.EventSpeech}),
		step(recognition.Result("ok", true, time.Time{})),
		step(recognition.Result("so", true, time.Time{})),
	)
	s, _ := listen(t, fake, time.Second)

	out := New().Run(context.Background(), s, Hooks{})
	if !out.Finalized {
		t.Fatalf("Expected finalized, got cause %v", out.Cause)
	}
	if out.Text != "ok so" || out.Eager {
		t.Errorf("Expected joined text at end, got %q eager=%v", out.Text, out.Eager)
	}
}

func TestAggregator_EagerFinalization(t *testing.T) {
	fake := recognition.NewFake("native",
		step(recognition.Result("I feel", false, time.Time{})),
		step(recognition.Result("I feel anxious", true, time.Time{})),
	).HoldOpen(recognition.Result("and more", true, time.Time{}))
	s, _ := listen(t, fake, time.Second)

	var interims []string
	out := New().Run(context.Background(), s, Hooks{Interim: func(text string) { interims = append(interims, text) }})

	if !out.Finalized || !out.Eager {
		t.Fatalf("Expected eager finalization, got %+v", out)
	}
	if out.Text != "I feel anxious" {
		t.Errorf("late finals must be ignored, got %q", out.Text)
	}
	if len(interims) != 1 || interims[0] != "I feel" {
		t.Errorf("unexpected interims %q", interims)
	}
	if fake.Stops() != 1 {
		t.Errorf("Expected recognizer stop, got %d", fake.Stops())
	}
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("stream cleanup did not finish")
	}
	if fake.Active() != 0 {
		t.Error("device must be released")
	}
}

func TestAggregator_DegenerateTranscripts(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"too short", "hm"},
		{"placeholder", "[BLANK_AUDIO]"},
		{"ellipsis", "..."},
		{"case insensitive", "(Silence)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := recognition.NewFake("native", step(recognition.Result(tt.text, true, time.Time{})))
			s, _ := listen(t, fake, time.Second)

			out := New().Run(context.Background(), s, Hooks{})
			if out.Finalized {
				t.Fatalf("Expected no speech for %q", tt.text)
			}
			if !errors.Is(out.Cause, voice.ErrNoSpeech) {
				t.Errorf("Expected no speech, got %v", out.Cause)
			}
		})
	}
}

func TestAggregator_WatchdogBecomesNoSpeech(t *testing.T) {
	fake := recognition.NewFake("native").HoldOpen()
	s, a := listen(t, fake, 40*time.Millisecond)

	out := New().Run(context.Background(), s, Hooks{})
	if out.Finalized || !errors.Is(out.Cause, voice.ErrNoSpeech) {
		t.Fatalf("Expected no speech, got %+v", out)
	}
	if a.ArmedWatchdogs() != 0 {
		t.Error("watchdog must be disarmed")
	}
}

func TestAggregator_ErrorWithoutTranscript(t *testing.T) {
	fake := recognition.NewFake("native",
		step(recognition.ErrorEvent(voice.NewError(voice.KindNetwork, nil), time.Time{})),
	)
	s, _ := listen(t, fake, time.Second)

	out := New().Run(context.Background(), s, Hooks{})
	if out.Cause == nil || out.Cause.Kind != voice.KindNetwork {
		t.Errorf("Expected network error, got %+v", out)
	}
}

func TestAggregator_ContextCancelAborts(t *testing.T) {
	fake := recognition.NewFake("native").HoldOpen()
	s, _ := listen(t, fake, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	out := New().Run(ctx, s, Hooks{})
	if out.Finalized || !errors.Is(out.Cause, voice.ErrAborted) {
		t.Errorf("Expected aborted, got %+v", out)
	}
	if fake.Active() != 0 {
		t.Error("device must be released after abort")
	}
}

func TestAggregator_FromConfig(t *testing.T) {
	cfg := voice.DefaultConfig().WithMinTranscriptLength(10)
	cfg.Placeholders = []string{"noise"}
	a := New(FromConfig(cfg))

	if a.accept("short one") {
		t.Error("Expected 9 runes to be rejected")
	}
	if a.accept("NOISE") {
		t.Error("Expected placeholder rejected")
	}
	if !a.accept("long enough text") {
		t.Error("Expected long text accepted")
	}
}
