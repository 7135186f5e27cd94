package recognition

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-companion/pkg/audioio"
	"github.com/teslashibe/go-companion/pkg/voice"
)

// Audio is a recorded utterance ready for upload.
type Audio struct {
	// PCM is mono little-endian PCM16.
	PCM        []byte
	SampleRate int
	Language   voice.Language
}

// Duration returns the length of the recording.
func (a Audio) Duration() time.Duration {
	if a.SampleRate == 0 {
		return 0
	}
	return time.Duration(len(a.PCM)/2) * time.Second / time.Duration(a.SampleRate)
}

// Transcriber turns one recording into text.
// Implementations return *voice.Error for classified failures.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, audio Audio) (string, error)
}

// Cloud is the record-then-upload fallback capability.
type Cloud struct {
	open        audioio.SourceOpener
	transcriber Transcriber
	limit       time.Duration
	soundLevel  uint8
	uploadRate  int
	logger      *slog.Logger
}

// CloudOption configures a Cloud capability.
type CloudOption func(*Cloud)

// WithRecordLimit bounds how long a session records. Default: 6s.
func WithRecordLimit(d time.Duration) CloudOption {
	return func(c *Cloud) {
		if d > 0 {
			c.limit = d
		}
	}
}

// WithSoundLevel sets the amplitude counted as sound. Default: 12.
func WithSoundLevel(level uint8) CloudOption {
	return func(c *Cloud) { c.soundLevel = level }
}

// WithUploadRate sets the sample rate audio is converted to before upload. Default: 16000.
func WithUploadRate(rate int) CloudOption {
	return func(c *Cloud) {
		if rate > 0 {
			c.uploadRate = rate
		}
	}
}

// WithCloudLogger sets the logger.
func WithCloudLogger(logger *slog.Logger) CloudOption {
	return func(c *Cloud) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCloud creates a cloud fallback recording from open and transcribing with t.
func NewCloud(open audioio.SourceOpener, t Transcriber, opts ...CloudOption) *Cloud {
	c := &Cloud{
		open:        open,
		transcriber: t,
		limit:       6 * time.Second,
		soundLevel:  12,
		uploadRate:  16000,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "recognition.cloud")
	return c
}

// Name returns "cloud".
func (c *Cloud) Name() string { return "cloud" }

// Available reports whether a transcriber is configured.
func (c *Cloud) Available() bool { return c.transcriber != nil && c.open != nil }

// Supports accepts every language; the transcriber rejects unsupported ones.
func (c *Cloud) Supports(voice.Language) bool { return true }

// Start opens the microphone and records until the limit or Stop.
func (c *Cloud) Start(ctx context.Context, lang voice.Language) (Session, error) {
	src, err := c.open()
	if err != nil {
		return nil, audioio.ClassifyDeviceError(err)
	}
	if err := src.Start(ctx); err != nil {
		src.Close()
		return nil, audioio.ClassifyDeviceError(err)
	}

	s := &cloudSession{
		cloud:  c,
		src:    src,
		lang:   lang,
		events: make(chan Event, 32),
		stop:   make(chan struct{}),
	}
	go s.run(ctx)
	return s, nil
}

type cloudSession struct {
	cloud    *Cloud
	src      audioio.Source
	lang     voice.Language
	events   chan Event
	stop     chan struct{}
	stopOnce sync.Once
}

func (s *cloudSession) Events() <-chan Event { return s.events }

func (s *cloudSession) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *cloudSession) send(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

func (s *cloudSession) run(ctx context.Context) {
	defer close(s.events)

	c := s.cloud
	pcm, heard, aborted := s.record(ctx)

	// The microphone is free before anything is uploaded.
	s.src.Stop()
	s.src.Close()

	if aborted {
		return
	}
	if !heard {
		s.send(ctx, ErrorEvent(voice.NewError(voice.KindNoSpeech, nil), time.Time{}))
		return
	}

	audio := Audio{PCM: audioio.SamplesToBytes(pcm), SampleRate: c.uploadRate, Language: s.lang}
	c.logger.Debug("uploading recording",
		"transcriber", c.transcriber.Name(),
		"duration", audio.Duration(),
		"language", s.lang,
	)

	start := time.Now()
	text, err := c.transcriber.Transcribe(ctx, audio)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		verr := voice.AsError(err)
		c.logger.Warn("cloud transcription failed", "transcriber", c.transcriber.Name(), "kind", verr.Kind, "error", err)
		s.send(ctx, ErrorEvent(verr, time.Time{}))
		return
	}

	text = strings.TrimSpace(text)
	c.logger.Info("cloud transcription complete", "chars", len(text), "latency", time.Since(start))
	if text == "" {
		s.send(ctx, ErrorEvent(voice.NewError(voice.KindNoSpeech, nil), time.Time{}))
		return
	}
	s.send(ctx, Event{Type: EventSpeech})
	s.send(ctx, Result(text, true, time.Now()))
}

// record captures until the limit, Stop or cancellation.
// It reports the mono samples at the upload rate and whether any sound was heard.
func (s *cloudSession) record(ctx context.Context) (pcm []int16, heard, aborted bool) {
	c := s.cloud
	limit := time.NewTimer(c.limit)
	defer limit.Stop()

	stream := s.src.Stream()
	for {
		select {
		case <-ctx.Done():
			return nil, false, true
		case <-s.stop:
			return pcm, heard, false
		case <-limit.C:
			return pcm, heard, false
		case chunk, ok := <-stream:
			if !ok {
				return pcm, heard, false
			}
			level := chunk.Level()
			s.send(ctx, LevelEvent(level, time.Time{}))
			if !heard && level >= c.soundLevel {
				heard = true
				s.send(ctx, Event{Type: EventSound})
			}
			pcm = append(pcm, audioio.ToMono(chunk, c.uploadRate)...)
		}
	}
}
