package recognition

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-companion/pkg/voice"
)

func testConfig() voice.Config {
	cfg := voice.DefaultConfig()
	cfg.NoSpeechTimeout = 80 * time.Millisecond
	cfg.SampleInterval = 20 * time.Millisecond
	return cfg
}

func collect(t *testing.T, s *Stream) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("stream did not close, got %d events", len(events))
		}
	}
}

func types(events []Event) []EventType {
	out := make([]EventType, 0, len(events))
	for _, ev := range events {
		if ev.Type != EventLevel {
			out = append(out, ev.Type)
		}
	}
	return out
}

func countType(events []Event, typ EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func TestAdapter_Lifecycle(t *testing.T) {
	native := NewFake("native",
		Step{After: 5 * time.Millisecond, Event: Event{Type: EventSound}},
		Step{After: 5 * time.Millisecond, Event: Event{Type: EventSpeech}},
		Step{After: 5 * time.Millisecond, Event: Result("hel", false, time.Time{})},
		Step{After: 5 * time.Millisecond, Event: Result("hello there", true, time.Time{})},
	)
	a := NewAdapter(WithNative(native), WithConfig(testConfig()))

	s, err := a.Listen(context.Background(), voice.DefaultLanguage, ListenOptions{})
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	events := collect(t, s)

	want := []EventType{EventStarting, EventSound, EventSpeech, EventResult, EventResult, EventEnded}
	got := types(events)
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
	if s.Capability != "native" {
		t.Errorf("Expected native capability, got %s", s.Capability)
	}

	<-s.Done()
	if native.Active() != 0 {
		t.Error("device must be released")
	}
	if a.ArmedWatchdogs() != 0 {
		t.Errorf("Expected no armed watchdog, got %d", a.ArmedWatchdogs())
	}
}

func TestAdapter_WatchdogNoSpeech(t *testing.T) {
	native := NewFake("native").HoldOpen()
	a := NewAdapter(WithNative(native), WithConfig(testConfig()))

	start := time.Now()
	s, err := a.Listen(context.Background(), voice.DefaultLanguage, ListenOptions{})
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	events := collect(t, s)
	elapsed := time.Since(start)

	if elapsed < 80*time.Millisecond {
		t.Errorf("watchdog fired early: %v", elapsed)
	}
	got := types(events)
	if len(got) != 3 || got[1] != EventError || got[2] != EventEnded {
		t.Fatalf("unexpected events: %v", got)
	}
	var errEv Event
	for _, ev := range events {
		if ev.Type == EventError {
			errEv = ev
		}
	}
	if !errors.Is(errEv.Err, voice.ErrNoSpeech) {
		t.Errorf("Expected no speech, got %v", errEv.Err)
	}

	<-s.Done()
	if native.Active() != 0 {
		t.Error("device must be released after watchdog")
	}
	if a.ArmedWatchdogs() != 0 {
		t.Error("watchdog must be disarmed")
	}
}

func TestAdapter_SoundCancelsWatchdog(t *testing.T) {
	native := NewFake("native",
		Step{After: 10 * time.Millisecond, Event: Event{Type: EventSound}},
	).HoldOpen(Result("slow starter", true, time.Time{}))
	a := NewAdapter(WithNative(native), WithConfig(testConfig()))

	s, err := a.Listen(context.Background(), voice.DefaultLanguage, ListenOptions{})
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	// Well past the watchdog
	time.Sleep(200 * time.Millisecond)
	if a.ArmedWatchdogs() != 0 {
		t.Error("sound must disarm the watchdog")
	}
	s.Stop()
	s.Stop()

	events := collect(t, s)
	if n := countType(events, EventError); n != 0 {
		t.Errorf("Expected no errors, got %d", n)
	}
	if n := countType(events, EventResult); n != 1 {
		t.Errorf("Expected the final delivered on stop, got %d results", n)
	}
	if native.Stops() != 1 {
		t.Errorf("Stop must reach the capability once, got %d", native.Stops())
	}
}

func TestAdapter_Abort(t *testing.T) {
	native := NewFake("native").HoldOpen()
	a := NewAdapter(WithNative(native), WithConfig(testConfig().WithNoSpeechTimeout(time.Minute)))

	s, err := a.Listen(context.Background(), voice.DefaultLanguage, ListenOptions{})
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	s.Abort()
	s.Abort()

	events := collect(t, s)
	if countType(events, EventEnded) != 1 {
		t.Error("Expected exactly one ended event")
	}
	if ev := events[len(events)-1]; ev.Type != EventEnded {
		t.Errorf("last event = %s, want ended", ev.Type)
	}

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("cleanup did not finish")
	}
	if native.Active() != 0 {
		t.Error("device must be released after abort")
	}
	if a.ArmedWatchdogs() != 0 {
		t.Error("watchdog must be disarmed after abort")
	}
}

func TestAdapter_Select(t *testing.T) {
	native := NewFake("native")
	cloud := NewFake("cloud")

	tests := []struct {
		name       string
		setup      func()
		lang       voice.Language
		forceCloud bool
		want       string
		wantKind   voice.ErrorKind
	}{
		{"native default", func() {}, "en-US", false, "native", 0},
		{"force cloud", func() {}, "en-US", true, "cloud", 0},
		{"non-default language", func() {}, "de-DE", false, "cloud", 0},
		{"native unavailable", func() { native.SetAvailable(false) }, "en-US", false, "cloud", 0},
		{"cloud language unsupported", func() { cloud.SetLanguages("en-US") }, "fr-FR", false, "", voice.KindLanguageUnsupported},
		{"nothing available", func() { cloud.SetAvailable(false) }, "en-US", false, "", voice.KindServiceBlocked},
	}

	a := NewAdapter(WithNative(native), WithCloud(cloud))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			c, err := a.Select(tt.lang, tt.forceCloud)
			if tt.want == "" {
				if voice.KindOf(err) != tt.wantKind {
					t.Fatalf("Expected %s, got %v", tt.wantKind, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Select failed: %v", err)
			}
			if c.Name() != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, c.Name())
			}
		})
	}
}

func TestAdapter_StartError(t *testing.T) {
	native := NewFake("native").SetStartError(voice.NewError(voice.KindPermissionDenied, nil))
	a := NewAdapter(WithNative(native), WithConfig(testConfig()))

	_, err := a.Listen(context.Background(), voice.DefaultLanguage, ListenOptions{})
	if !errors.Is(err, voice.ErrPermissionDenied) {
		t.Fatalf("Expected permission denied, got %v", err)
	}
	if a.ArmedWatchdogs() != 0 {
		t.Error("no watchdog may be armed when start fails")
	}
}

func TestAdapter_LevelThrottle(t *testing.T) {
	var steps []Step
	for i := 0; i < 20; i++ {
		steps = append(steps, Step{After: 5 * time.Millisecond, Event: LevelEvent(uint8(i*10), time.Time{})})
	}
	steps = append(steps, Step{Event: Result("done now", true, time.Time{})})
	native := NewFake("native", steps...)

	a := NewAdapter(WithNative(native), WithConfig(testConfig()))
	s, err := a.Listen(context.Background(), voice.DefaultLanguage, ListenOptions{})
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	events := collect(t, s)

	levels := countType(events, EventLevel)
	if levels == 0 || levels >= 20 {
		t.Errorf("Expected throttled level events, got %d", levels)
	}
	if len(s.Levels()) != levels {
		t.Errorf("ring has %d samples, %d events forwarded", len(s.Levels()), levels)
	}
}

func TestMapErrorCode(t *testing.T) {
	tests := []struct {
		code string
		want voice.ErrorKind
	}{
		{"not-allowed", voice.KindPermissionDenied},
		{"service-not-allowed", voice.KindServiceBlocked},
		{"network", voice.KindNetwork},
		{"no-speech", voice.KindNoSpeech},
		{"audio-capture", voice.KindDeviceBusy},
		{"no-match", voice.KindUnintelligible},
		{"aborted", voice.KindAborted},
		{"language-not-supported", voice.KindLanguageUnsupported},
		{"invalid_api_key", voice.KindServiceBlocked},
		{"bad-grammar", voice.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := MapErrorCode(tt.code, nil)
			if err.Kind != tt.want {
				t.Errorf("MapErrorCode(%q) = %s, want %s", tt.code, err.Kind, tt.want)
			}
			if err.Code != tt.code {
				t.Errorf("raw code not kept: %q", err.Code)
			}
			if err.Message == "" {
				t.Error("Expected remediation message")
			}
		})
	}
}
