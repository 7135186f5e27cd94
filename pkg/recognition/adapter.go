// Package recognition turns microphone audio into a uniform stream of
// transcript events.
//
// An Adapter chooses between a native streaming capability and a cloud
// fallback that records, uploads and transcribes once. Whichever runs, the
// caller sees the same lifecycle:
//
//	Starting -> Sound? -> Speech? -> Result* -> Ended
//
// A no-speech watchdog is armed on Starting and cancelled by the first sound.
// If it fires the stream reports a NoSpeech error and ends. Every stream
// emits exactly one EventEnded and then closes.
package recognition

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-companion/pkg/audioio"
	"github.com/teslashibe/go-companion/pkg/voice"
)

// Adapter selects a capability per listening attempt and supervises it.
type Adapter struct {
	native      Capability
	cloud       Capability
	cfg         voice.Config
	defaultLang voice.Language
	logger      *slog.Logger
	now         func() time.Time

	armed atomic.Int32
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithNative sets the native streaming capability.
func WithNative(c Capability) Option {
	return func(a *Adapter) { a.native = c }
}

// WithCloud sets the record-then-transcribe fallback.
func WithCloud(c Capability) Option {
	return func(a *Adapter) { a.cloud = c }
}

// WithConfig sets watchdog and level metering parameters.
func WithConfig(cfg voice.Config) Option {
	return func(a *Adapter) { a.cfg = cfg }
}

// WithDefaultLanguage sets the language the native capability serves.
// Any other language is routed to the cloud fallback.
func WithDefaultLanguage(lang voice.Language) Option {
	return func(a *Adapter) { a.defaultLang = lang }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAdapter creates an Adapter.
func NewAdapter(opts ...Option) *Adapter {
	a := &Adapter{
		cfg:         voice.DefaultConfig(),
		defaultLang: voice.DefaultLanguage,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "recognition.adapter")
	return a
}

// ArmedWatchdogs returns the number of watchdog timers currently armed.
func (a *Adapter) ArmedWatchdogs() int {
	return int(a.armed.Load())
}

// ListenOptions tune a single listening attempt.
type ListenOptions struct {
	// ForceCloud skips the native capability.
	ForceCloud bool
}

// Select returns the capability that would serve lang.
func (a *Adapter) Select(lang voice.Language, forceCloud bool) (Capability, error) {
	useNative := !forceCloud &&
		a.native != nil &&
		a.native.Available() &&
		a.native.Supports(lang) &&
		lang.Base() == a.defaultLang.Base()
	if useNative {
		return a.native, nil
	}
	if a.cloud != nil && a.cloud.Available() && a.cloud.Supports(lang) {
		return a.cloud, nil
	}
	if a.cloud != nil && a.cloud.Available() {
		return nil, voice.NewError(voice.KindLanguageUnsupported, ErrNoCapability)
	}
	return nil, voice.NewError(voice.KindServiceBlocked, ErrNoCapability)
}

// Listen starts a listening attempt. The returned stream must be drained
// until its Events channel closes.
func (a *Adapter) Listen(ctx context.Context, lang voice.Language, opts ListenOptions) (*Stream, error) {
	capability, err := a.Select(lang, opts.ForceCloud)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	sess, err := capability.Start(ctx, lang)
	if err != nil {
		cancel()
		verr := voice.AsError(err)
		a.logger.Warn("recognition failed to start",
			"capability", capability.Name(),
			"kind", verr.Kind,
			"error", err,
		)
		return nil, verr
	}

	s := &Stream{
		ID:         uuid.NewString(),
		Capability: capability.Name(),
		events:     make(chan Event, 64),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		sess:       sess,
		levels:     audioio.NewLevelRing(a.cfg.LevelRingSize),
		throttle:   audioio.NewThrottle(a.cfg.SampleInterval),
		adapter:    a,
	}
	s.logger = a.logger.With("attempt", s.ID, "capability", capability.Name())
	s.logger.Info("listening", "language", lang)

	go s.run()
	return s, nil
}

// Stream is one supervised listening attempt.
type Stream struct {
	ID         string
	Capability string

	events chan Event
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	sess   Session

	stopOnce sync.Once
	levels   *audioio.LevelRing
	throttle *audioio.Throttle
	adapter  *Adapter
	logger   *slog.Logger
}

// Events returns the attempt's events. Exactly one EventEnded is delivered
// before the channel closes.
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Stop asks the capability to finish gracefully. Idempotent.
func (s *Stream) Stop() {
	s.stopOnce.Do(s.sess.Stop)
}

// Abort cancels the attempt immediately. Idempotent.
func (s *Stream) Abort() {
	s.cancel()
}

// Done is closed after the device is released and the watchdog is disarmed.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Levels returns the throttled level samples recorded so far.
func (s *Stream) Levels() []audioio.LevelSample {
	return s.levels.Snapshot()
}

func (s *Stream) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = s.adapter.now()
	}
	s.events <- ev
}

func (s *Stream) run() {
	defer close(s.done)
	defer close(s.events)
	defer s.cancel()

	a := s.adapter
	s.emit(Event{Type: EventStarting})

	watchdog := time.NewTimer(a.cfg.NoSpeechTimeout)
	a.armed.Add(1)
	armed := true
	disarm := func() {
		if armed {
			watchdog.Stop()
			a.armed.Add(-1)
			armed = false
		}
	}
	defer disarm()

	in := s.sess.Events()
	for in != nil {
		select {
		case ev, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			s.forward(ev, disarm)

		case <-watchdog.C:
			a.armed.Add(-1)
			armed = false
			s.logger.Info("no speech before watchdog", "timeout", a.cfg.NoSpeechTimeout)
			s.emit(ErrorEvent(voice.NewError(voice.KindNoSpeech, nil), time.Time{}))
			s.cancel()
			drain(in)
			in = nil

		case <-s.ctx.Done():
			disarm()
			drain(in)
			in = nil
			s.emit(ErrorEvent(voice.NewError(voice.KindAborted, s.ctx.Err()), time.Time{}))
		}
	}

	disarm()
	s.emit(Event{Type: EventEnded})
	s.logger.Debug("listening ended")
}

func (s *Stream) forward(ev Event, disarm func()) {
	switch ev.Type {
	case EventSound, EventSpeech:
		disarm()
		s.emit(ev)
	case EventResult:
		disarm()
		s.logger.Debug("transcript", "text", ev.Transcript.Text, "final", ev.Transcript.IsFinal)
		s.emit(ev)
	case EventLevel:
		at := ev.At
		if at.IsZero() {
			at = s.adapter.now()
		}
		if s.throttle.Allow(at) {
			s.levels.Push(audioio.LevelSample{Level: ev.Level, At: at})
			s.emit(ev)
		}
	case EventError:
		if ev.Err == nil {
			ev.Err = voice.NewError(voice.KindUnknown, nil)
		}
		s.logger.Warn("recognition error", "kind", ev.Err.Kind, "code", ev.Err.Code)
		s.emit(ev)
	}
}

// drain discards events until the capability closes its channel.
func drain(in <-chan Event) {
	for range in {
	}
}
