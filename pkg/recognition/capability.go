package recognition

import (
	"context"

	"github.com/teslashibe/go-companion/pkg/voice"
)

// Capability is a speech-to-text engine able to run listening sessions.
type Capability interface {
	// Name identifies the capability in logs and status ("realtime", "cloud").
	Name() string

	// Available reports whether the capability can be used at all
	// (credentials configured, service reachable).
	Available() bool

	// Supports reports whether lang can be recognised.
	Supports(lang voice.Language) bool

	// Start acquires the microphone and begins recognition.
	// Cancelling ctx aborts the session: capture stops, pending results are
	// discarded and the event channel closes once the device is released.
	Start(ctx context.Context, lang voice.Language) (Session, error)
}

// Session is one running recognition.
//
// A session emits EventSound, EventSpeech, EventResult, EventLevel and
// EventError. It never emits EventStarting or EventEnded; the Adapter adds
// those. The Events channel closes when the session is over and the
// microphone has been released.
type Session interface {
	Events() <-chan Event

	// Stop ends capture gracefully, letting pending results arrive.
	// Safe to call more than once.
	Stop()
}
