package recognition

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-companion/pkg/audioio"
	"github.com/teslashibe/go-companion/pkg/voice"
)

type fakeTranscriber struct {
	mu    sync.Mutex
	text  string
	err   error
	calls []Audio
}

func (f *fakeTranscriber) Name() string { return "fake" }

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio Audio) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, audio)
	return f.text, f.err
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func mockSource(levels ...uint8) *audioio.MockSource {
	cfg := audioio.DefaultConfig()
	cfg.Backend = audioio.BackendMock
	cfg.BufferDuration = 10 * time.Millisecond
	return audioio.NewMockSource(cfg, nil, audioio.WithLevels(levels...))
}

func opener(src audioio.Source) audioio.SourceOpener {
	return func() (audioio.Source, error) { return src, nil }
}

func drainSession(t *testing.T, s Session) []Event {
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
			t.Fatal("session did not close")
		}
	}
}

func TestCloud_RecordsAndTranscribesOnce(t *testing.T) {
	src := mockSource(0, 0, 80, 90, 70)
	tr := &fakeTranscriber{text: "  I had a rough day  "}
	c := NewCloud(opener(src), tr, WithRecordLimit(time.Second))

	sess, err := c.Start(context.Background(), "de-DE")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.AfterFunc(80*time.Millisecond, sess.Stop)
	events := drainSession(t, sess)

	if tr.callCount() != 1 {
		t.Fatalf("Expected one upload, got %d", tr.callCount())
	}
	audio := tr.calls[0]
	if audio.Language != "de-DE" || audio.SampleRate != 16000 {
		t.Errorf("unexpected upload: lang=%s rate=%d", audio.Language, audio.SampleRate)
	}
	if audio.Duration() <= 0 {
		t.Error("Expected recorded audio")
	}

	if countType(events, EventSound) != 1 {
		t.Error("Expected one sound event")
	}
	last := events[len(events)-1]
	if last.Type != EventResult || !last.Transcript.IsFinal || last.Transcript.Text != "I had a rough day" {
		t.Errorf("unexpected final event: %+v", last)
	}
	if src.Active() {
		t.Error("microphone must be released")
	}
}

func TestCloud_RecordLimit(t *testing.T) {
	src := mockSource(60)
	tr := &fakeTranscriber{text: "hello"}
	c := NewCloud(opener(src), tr, WithRecordLimit(50*time.Millisecond))

	start := time.Now()
	sess, err := c.Start(context.Background(), "en-US")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	drainSession(t, sess)

	if time.Since(start) > time.Second {
		t.Error("recording exceeded its limit")
	}
	if tr.callCount() != 1 {
		t.Errorf("Expected one upload, got %d", tr.callCount())
	}
}

func TestCloud_SilenceSkipsUpload(t *testing.T) {
	src := mockSource(0)
	tr := &fakeTranscriber{text: "never"}
	c := NewCloud(opener(src), tr, WithRecordLimit(40*time.Millisecond))

	sess, _ := c.Start(context.Background(), "en-US")
	events := drainSession(t, sess)

	if tr.callCount() != 0 {
		t.Error("silence must not be uploaded")
	}
	last := events[len(events)-1]
	if last.Type != EventError || !errors.Is(last.Err, voice.ErrNoSpeech) {
		t.Errorf("Expected no speech error, got %+v", last)
	}
}

func TestCloud_TranscriberError(t *testing.T) {
	src := mockSource(90)
	tr := &fakeTranscriber{err: voice.NewCodeError(voice.KindServiceBlocked, "http_403", nil)}
	c := NewCloud(opener(src), tr, WithRecordLimit(30*time.Millisecond))

	sess, _ := c.Start(context.Background(), "en-US")
	events := drainSession(t, sess)

	last := events[len(events)-1]
	if last.Type != EventError || last.Err.Kind != voice.KindServiceBlocked {
		t.Errorf("Expected service blocked, got %+v", last)
	}
}

func TestCloud_EmptyTranscript(t *testing.T) {
	src := mockSource(90)
	c := NewCloud(opener(src), &fakeTranscriber{text: "   "}, WithRecordLimit(30*time.Millisecond))

	sess, _ := c.Start(context.Background(), "en-US")
	events := drainSession(t, sess)

	if last := events[len(events)-1]; !errors.Is(last.Err, voice.ErrNoSpeech) {
		t.Errorf("Expected no speech, got %+v", last)
	}
}

func TestCloud_AbortDiscardsRecording(t *testing.T) {
	src := mockSource(90)
	tr := &fakeTranscriber{text: "x"}
	c := NewCloud(opener(src), tr, WithRecordLimit(5*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	sess, _ := c.Start(ctx, "en-US")
	time.AfterFunc(30*time.Millisecond, cancel)
	drainSession(t, sess)

	if tr.callCount() != 0 {
		t.Error("aborted recording must not be uploaded")
	}
	if src.Active() {
		t.Error("microphone must be released")
	}
}

func TestCloud_DeviceError(t *testing.T) {
	cfg := audioio.DefaultConfig()
	src := audioio.NewMockSource(cfg, nil, audioio.WithStartError(errors.New("Device or resource busy")))
	c := NewCloud(opener(src), &fakeTranscriber{})

	_, err := c.Start(context.Background(), "en-US")
	if !errors.Is(err, voice.ErrDeviceBusy) {
		t.Errorf("Expected device busy, got %v", err)
	}
}

func TestCloud_ThroughAdapter(t *testing.T) {
	src := mockSource(0, 70)
	tr := &fakeTranscriber{text: "please help me relax"}
	cloud := NewCloud(opener(src), tr, WithRecordLimit(60*time.Millisecond))
	a := NewAdapter(WithCloud(cloud), WithConfig(testConfig().WithNoSpeechTimeout(time.Second)))

	s, err := a.Listen(context.Background(), "en-US", ListenOptions{ForceCloud: true})
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	events := collect(t, s)

	if countType(events, EventEnded) != 1 {
		t.Error("Expected exactly one ended event")
	}
	if countType(events, EventResult) != 1 {
		t.Error("Expected a single final result")
	}
}
