package recognition

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-companion/pkg/voice"
)

// Step is one scripted event of a Fake session, sent After the previous one.
type Step struct {
	After time.Duration
	Event Event
}

// Fake is a scripted Capability for testing.
// Each started session replays the script, then either ends or, with
// HoldOpen, waits for Stop or cancellation.
type Fake struct {
	name string

	mu        sync.Mutex
	script    []Step
	available bool
	languages map[voice.Language]bool
	startErr  error
	holdOpen  bool
	onStop    []Event
	starts    int
	stops     int

	active atomic.Int32
}

// NewFake creates an available fake replaying steps.
func NewFake(name string, steps ...Step) *Fake {
	return &Fake{name: name, script: steps, available: true}
}

// SetScript replaces the script for subsequent sessions.
func (f *Fake) SetScript(steps ...Step) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = steps
	return f
}

// SetAvailable toggles availability.
func (f *Fake) SetAvailable(ok bool) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.available = ok
	return f
}

// SetLanguages restricts supported languages. No languages means all.
func (f *Fake) SetLanguages(langs ...voice.Language) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.languages = make(map[voice.Language]bool, len(langs))
	for _, l := range langs {
		f.languages[l] = true
	}
	return f
}

// SetStartError makes Start fail.
func (f *Fake) SetStartError(err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startErr = err
	return f
}

// HoldOpen keeps sessions open after the script until Stop or cancel.
// Events passed are emitted when Stop is called.
func (f *Fake) HoldOpen(onStop ...Event) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holdOpen = true
	f.onStop = onStop
	return f
}

// Starts returns how many sessions were started.
func (f *Fake) Starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

// Stops returns how many times Stop was called on its sessions.
func (f *Fake) Stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

// Active returns the number of sessions holding the microphone.
func (f *Fake) Active() int {
	return int(f.active.Load())
}

// Name returns the fake's name.
func (f *Fake) Name() string { return f.name }

// Available reports the configured availability.
func (f *Fake) Available() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

// Supports reports whether lang is in the configured set.
func (f *Fake) Supports(lang voice.Language) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.languages) == 0 || f.languages[lang]
}

// Start begins replaying the script.
func (f *Fake) Start(ctx context.Context, lang voice.Language) (Session, error) {
	f.mu.Lock()
	if f.startErr != nil {
		err := f.startErr
		f.mu.Unlock()
		return nil, err
	}
	f.starts++
	s := &fakeSession{
		fake:   f,
		events: make(chan Event, 16),
		stop:   make(chan struct{}),
		script: append([]Step(nil), f.script...),
		hold:   f.holdOpen,
		onStop: append([]Event(nil), f.onStop...),
	}
	f.mu.Unlock()

	f.active.Add(1)
	go s.run(ctx)
	return s, nil
}

type fakeSession struct {
	fake     *Fake
	events   chan Event
	stop     chan struct{}
	stopOnce sync.Once
	script   []Step
	hold     bool
	onStop   []Event
}

func (s *fakeSession) Events() <-chan Event { return s.events }

func (s *fakeSession) Stop() {
	s.stopOnce.Do(func() {
		s.fake.mu.Lock()
		s.fake.stops++
		s.fake.mu.Unlock()
		close(s.stop)
	})
}

func (s *fakeSession) run(ctx context.Context) {
	defer close(s.events)
	defer s.fake.active.Add(-1)

	stopped := false
	for _, step := range s.script {
		timer := time.NewTimer(step.After)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.stop:
			timer.Stop()
			stopped = true
		case <-timer.C:
		}
		if stopped {
			break
		}
		if !s.send(ctx, step.Event) {
			return
		}
	}

	if s.hold && !stopped {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
		}
	}
	if stopped || s.hold {
		for _, ev := range s.onStop {
			if !s.send(ctx, ev) {
				return
			}
		}
	}
}

func (s *fakeSession) send(ctx context.Context, ev Event) bool {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
