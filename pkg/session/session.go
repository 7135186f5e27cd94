// Package session runs the conversation loop.
//
// An Orchestrator sequences calibration, recognition, transcript
// aggregation, the response pipeline and speech playback:
//
//	Idle -> Calibrating -> Listening -> Aggregating -> Responding -> Speaking -> Idle
//
// All state lives on a single event loop goroutine. Commands from user
// interfaces and results from background work are posted to that loop, so
// phases never overlap. Every transition that supersedes in-flight work
// advances a generation counter; results and timers carrying an older
// generation are discarded when they arrive.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-companion/pkg/calibration"
	"github.com/teslashibe/go-companion/pkg/playback"
	"github.com/teslashibe/go-companion/pkg/recognition"
	"github.com/teslashibe/go-companion/pkg/response"
	"github.com/teslashibe/go-companion/pkg/transcript"
	"github.com/teslashibe/go-companion/pkg/voice"
)

// Sentinel errors returned by commands.
var (
	ErrClosed          = errors.New("session: closed")
	ErrBusy            = errors.New("session: busy")
	ErrRetryRequired   = errors.New("session: retry required")
	ErrEmptyMessage    = errors.New("session: empty message")
	ErrInvalidLanguage = errors.New("session: invalid language tag")
	ErrNoResponder     = errors.New("session: response pipeline required")
	ErrNoRecognizer    = errors.New("session: voice input unavailable")
)

// Calibrator measures the microphone before listening.
type Calibrator interface {
	Calibrate(ctx context.Context, window time.Duration) (calibration.Result, error)
}

// Recognizer starts listening attempts.
type Recognizer interface {
	Listen(ctx context.Context, lang voice.Language, opts recognition.ListenOptions) (*recognition.Stream, error)
}

// Responder produces a reply and reveals it word by word through fn.
type Responder interface {
	Stream(ctx context.Context, transcript string, history []voice.Message, fn response.RevealFunc) (response.Result, error)
}

// Speaker plays replies.
type Speaker interface {
	Speak(ctx context.Context, text string) (*playback.Utterance, error)
	Cancel()
	Speaking() bool
}

// MessageLog receives every appended message. Append must not block.
type MessageLog interface {
	Append(msg voice.Message)
}

// HistorySource restores earlier messages on startup.
type HistorySource interface {
	Recent(ctx context.Context, n int) ([]voice.Message, error)
}

// TurnMetrics are the latencies of one conversation turn.
type TurnMetrics = voice.Metrics

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConfig sets the loop timings and thresholds.
func WithConfig(cfg voice.Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

// WithCalibrator enables microphone calibration.
func WithCalibrator(c Calibrator) Option {
	return func(o *Orchestrator) { o.calibrator = c }
}

// WithRecognizer enables voice input.
func WithRecognizer(r Recognizer) Option {
	return func(o *Orchestrator) { o.recognizer = r }
}

// WithAggregator replaces the default transcript aggregator.
func WithAggregator(a *transcript.Aggregator) Option {
	return func(o *Orchestrator) { o.aggregator = a }
}

// WithResponder sets the response pipeline. Required.
func WithResponder(r Responder) Option {
	return func(o *Orchestrator) { o.responder = r }
}

// WithSpeaker enables voice output.
func WithSpeaker(s Speaker) Option {
	return func(o *Orchestrator) { o.speaker = s }
}

// WithMessageLog sets the conversation log collaborator.
func WithMessageLog(l MessageLog) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithHistory restores up to the context window of earlier messages.
func WithHistory(h HistorySource) Option {
	return func(o *Orchestrator) { o.history = h }
}

// WithLanguage sets the initial recognition language.
func WithLanguage(lang voice.Language) Option {
	return func(o *Orchestrator) { o.st.Language = lang }
}

// WithAutoListen sets whether listening resumes after each reply.
func WithAutoListen(on bool) Option {
	return func(o *Orchestrator) { o.st.AutoListen = on }
}

// WithVoiceOutput sets whether replies are spoken.
func WithVoiceOutput(on bool) Option {
	return func(o *Orchestrator) { o.st.VoiceOutput = on }
}

// WithForceCloud routes every attempt to the cloud transcription fallback.
func WithForceCloud(on bool) Option {
	return func(o *Orchestrator) { o.forceCloud = on }
}

// WithClock sets the time source for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Orchestrator is the session state machine.
type Orchestrator struct {
	cfg        voice.Config
	calibrator Calibrator
	recognizer Recognizer
	aggregator *transcript.Aggregator
	responder  Responder
	speaker    Speaker
	log        MessageLog
	history    HistorySource
	forceCloud bool
	logger     *slog.Logger
	now        func() time.Time
	metrics    *voice.MetricsCollector

	ops      chan func()
	quit     chan struct{}
	loopDone chan struct{}
	closing  sync.Once

	base       context.Context
	cancelBase context.CancelFunc

	// Owned by the loop goroutine.
	st             Status
	lastErr        *voice.Error
	gen            uint64
	work           context.Context
	cancelWork     context.CancelFunc
	stream        *recognition.Stream
	userStopped   bool
	autoTimer     *time.Timer
	needCalibrate bool
	clock         *voice.Clock

	// mic is held by whichever worker has the input device open.
	mic chan struct{}

	// Snapshots readable from any goroutine.
	snapMu   sync.RWMutex
	snapshot Status
	messages []voice.Message

	subMu  sync.Mutex
	subs   map[int]*subscriber
	nextID int
}

// New creates an Orchestrator and starts its event loop.
func New(opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		cfg:     voice.DefaultConfig(),
		logger:  slog.Default(),
		now:     time.Now,
		metrics: voice.NewMetricsCollector(),
		ops:     make(chan func(), 128),
		quit:    make(chan struct{}),

		loopDone:      make(chan struct{}),
		mic:           make(chan struct{}, 1),
		needCalibrate: true,
		subs:          make(map[int]*subscriber),
	}
	o.st.Phase = PhaseIdle
	o.st.VoiceOutput = true
	o.st.Language = voice.DefaultLanguage
	for _, opt := range opts {
		opt(o)
	}

	if o.responder == nil {
		return nil, ErrNoResponder
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	if o.aggregator == nil {
		o.aggregator = transcript.New(transcript.FromConfig(o.cfg), transcript.WithLogger(o.logger))
	}
	if o.speaker == nil {
		o.st.VoiceOutput = false
	}
	o.logger = o.logger.With("component", "session.orchestrator")
	o.clock = voice.NewClock(o.now)
	o.base, o.cancelBase = context.WithCancel(context.Background())
	o.work, o.cancelWork = context.WithCancel(o.base)

	o.restoreHistory()
	o.publish()

	go o.loop()
	return o, nil
}

func (o *Orchestrator) restoreHistory() {
	if o.history == nil || o.cfg.ContextMessages == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	msgs, err := o.history.Recent(ctx, o.cfg.ContextMessages)
	if err != nil {
		o.logger.Warn("failed to restore conversation history", "error", err)
		return
	}
	for _, m := range msgs {
		o.clock.Observe(m.CreatedAt)
	}
	o.messages = append(o.messages, msgs...)
	o.logger.Info("restored conversation history", "messages", len(msgs))
}

func (o *Orchestrator) loop() {
	defer close(o.loopDone)
	for {
		select {
		case fn := <-o.ops:
			fn()
		case <-o.quit:
			return
		}
	}
}

// do runs fn on the loop and waits for its result.
func (o *Orchestrator) do(fn func() error) error {
	res := make(chan error, 1)
	select {
	case o.ops <- func() { res <- fn() }:
	case <-o.quit:
		return ErrClosed
	}
	select {
	case err := <-res:
		return err
	case <-o.loopDone:
		return ErrClosed
	}
}

// post schedules fn on the loop without waiting.
func (o *Orchestrator) post(fn func()) {
	select {
	case o.ops <- fn:
	case <-o.quit:
	}
}

// StartListening begins a listening attempt. Speaking is interrupted.
func (o *Orchestrator) StartListening() error {
	return o.do(func() error { return o.startListening() })
}

// StopListening finishes the current attempt with whatever was heard.
// During calibration it cancels. A no-op when not listening.
func (o *Orchestrator) StopListening() error {
	return o.do(func() error {
		o.stopListening()
		return nil
	})
}

// SendTypedMessage answers text directly, superseding any attempt or
// reply in flight. In the error phase it returns ErrRetryRequired.
func (o *Orchestrator) SendTypedMessage(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	return o.do(func() error { return o.sendTyped(text) })
}

// ToggleAutoListen flips auto-listen and returns the new value.
func (o *Orchestrator) ToggleAutoListen() (bool, error) {
	var on bool
	err := o.do(func() error {
		o.st.AutoListen = !o.st.AutoListen
		on = o.st.AutoListen
		if !on {
			o.cancelAutoListen()
		}
		o.logger.Info("auto-listen toggled", "enabled", on)
		o.publish()
		return nil
	})
	return on, err
}

// ToggleVoiceOutput flips spoken replies and returns the new value.
// Turning it off while speaking stops playback.
func (o *Orchestrator) ToggleVoiceOutput() (bool, error) {
	var on bool
	err := o.do(func() error {
		if o.speaker == nil {
			o.st.VoiceOutput = false
			return nil
		}
		o.st.VoiceOutput = !o.st.VoiceOutput
		on = o.st.VoiceOutput
		if !on && o.st.Phase == PhaseSpeaking {
			o.userCancel()
		}
		o.logger.Info("voice output toggled", "enabled", on)
		o.publish()
		return nil
	})
	return on, err
}

// SetLanguage selects the recognition language for the next attempt.
func (o *Orchestrator) SetLanguage(tag string) error {
	lang, err := parseLanguage(tag)
	if err != nil {
		return err
	}
	return o.do(func() error {
		o.st.Language = lang
		o.logger.Info("language selected", "language", lang)
		o.publish()
		return nil
	})
}

// CancelSpeaking stops the reply being revealed or spoken. A no-op otherwise.
func (o *Orchestrator) CancelSpeaking() error {
	return o.do(func() error {
		if o.st.Phase == PhaseSpeaking || o.st.Phase == PhaseResponding {
			o.userCancel()
		}
		return nil
	})
}

// Retry leaves the Error phase. A no-op in any other phase.
func (o *Orchestrator) Retry() error {
	return o.do(func() error {
		if o.st.Phase != PhaseError {
			return nil
		}
		o.clearError()
		o.needCalibrate = true
		o.logger.Info("retry requested")
		o.setPhase(PhaseIdle)
		return nil
	})
}

// Status returns the current snapshot.
func (o *Orchestrator) Status() Status {
	o.snapMu.RLock()
	defer o.snapMu.RUnlock()
	return o.snapshot
}

// Messages returns the conversation feed, oldest first.
func (o *Orchestrator) Messages() []voice.Message {
	o.snapMu.RLock()
	defer o.snapMu.RUnlock()
	out := make([]voice.Message, len(o.messages))
	copy(out, o.messages)
	return out
}

// Metrics returns the last completed turn, the running average and the
// number of turns measured.
func (o *Orchestrator) Metrics() (last TurnMetrics, average TurnMetrics, turns int) {
	last, _ = o.metrics.Last()
	return last, o.metrics.Average(), o.metrics.Turns()
}

// Subscribe registers an observer. The current status is delivered first.
// The returned function unsubscribes.
func (o *Orchestrator) Subscribe(fn Observer) func() {
	s := newSubscriber(fn)

	o.subMu.Lock()
	st := o.Status()
	s.push(Update{Status: &st})
	id := o.nextID
	o.nextID++
	o.subs[id] = s
	o.subMu.Unlock()

	return func() {
		o.subMu.Lock()
		delete(o.subs, id)
		o.subMu.Unlock()
		s.close()
	}
}

// Close cancels timers and in-flight work, waits for the microphone to
// be released and closes the speaker and message log when they are closers.
func (o *Orchestrator) Close() error {
	var err error
	o.closing.Do(func() {
		o.do(func() error {
			o.userCancel()
			return nil
		})
		close(o.quit)
		<-o.loopDone
		o.cancelBase()

		select {
		case o.mic <- struct{}{}:
		case <-time.After(2 * time.Second):
			o.logger.Warn("microphone release timed out")
		}

		if c, ok := o.speaker.(io.Closer); ok {
			err = errors.Join(err, c.Close())
		}
		if c, ok := o.log.(io.Closer); ok {
			err = errors.Join(err, c.Close())
		}

		o.subMu.Lock()
		for id, s := range o.subs {
			s.close()
			delete(o.subs, id)
		}
		o.subMu.Unlock()
		o.logger.Info("session closed")
	})
	return err
}

func parseLanguage(tag string) (voice.Language, error) {
	tag = strings.TrimSpace(tag)
	if len(tag) < 2 || len(tag) > 35 {
		return "", ErrInvalidLanguage
	}
	for _, r := range tag {
		ok := r == '-' || r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return "", ErrInvalidLanguage
		}
	}
	return voice.Language(strings.ReplaceAll(tag, "_", "-")), nil
}
