package voice

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind is the closed set of failure categories in the conversation loop.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindPermissionDenied
	KindDeviceNotFound
	KindDeviceBusy
	KindConfigurationRejected
	KindNetwork
	KindNoSpeech
	KindUnintelligible
	KindServiceBlocked
	KindLanguageUnsupported
	KindAborted
	KindProviderFailure
)

var kindNames = map[ErrorKind]string{
	KindUnknown:               "unknown",
	KindPermissionDenied:      "permission_denied",
	KindDeviceNotFound:        "device_not_found",
	KindDeviceBusy:            "device_busy",
	KindConfigurationRejected: "configuration_rejected",
	KindNetwork:               "network",
	KindNoSpeech:              "no_speech",
	KindUnintelligible:        "unintelligible",
	KindServiceBlocked:        "service_blocked",
	KindLanguageUnsupported:   "language_unsupported",
	KindAborted:               "aborted",
	KindProviderFailure:       "provider_failure",
}

// String returns the snake_case name of the kind.
func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// MarshalText lets kinds appear by name in JSON status payloads.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Fatal reports whether the kind requires an explicit user retry.
func (k ErrorKind) Fatal() bool {
	switch k {
	case KindPermissionDenied, KindDeviceNotFound, KindDeviceBusy,
		KindConfigurationRejected, KindServiceBlocked:
		return true
	}
	return false
}

// Remediations maps each kind to the message shown to the user.
var Remediations = map[ErrorKind]string{
	KindUnknown:               "Something went wrong with voice input. Please try again.",
	KindPermissionDenied:      "Microphone access was blocked. Allow microphone access for this app, then press retry.",
	KindDeviceNotFound:        "No microphone was found. Connect a microphone, then press retry.",
	KindDeviceBusy:            "The microphone is being used by another application. Close it, then press retry.",
	KindConfigurationRejected: "The microphone does not support the requested audio settings. Try a different input device.",
	KindNetwork:               "Speech recognition needs a network connection. Check your connection and try again.",
	KindNoSpeech:              "I didn't hear anything. Tap the microphone and speak a little louder.",
	KindUnintelligible:        "I couldn't make out what you said. Please try again.",
	KindServiceBlocked:        "The speech service is not available. Type your message instead, or check the service settings.",
	KindLanguageUnsupported:   "The selected language isn't supported for voice input. Pick another language or type your message.",
	KindAborted:               "Listening was stopped.",
	KindProviderFailure:       "The assistant is having trouble responding right now.",
}

// LowInputWarning is shown when calibration measured a very quiet microphone.
const LowInputWarning = "Your microphone input is very low. Move closer or raise the input volume."

// Error is the ErrorInfo raised by any stage of the loop.
type Error struct {
	// Kind is the failure category.
	Kind ErrorKind

	// Code is the raw provider or platform code, kept for diagnostics.
	Code string

	// Tier is the response tier for KindProviderFailure, zero otherwise.
	Tier int

	// Message is the human-readable remediation.
	Message string

	// Recoverable is false when the user must act before retrying.
	Recoverable bool

	// Err is the underlying cause.
	Err error
}

// NewError creates an Error with the remediation for kind.
func NewError(kind ErrorKind, cause error) *Error {
	return &Error{
		Kind:        kind,
		Message:     Remediations[kind],
		Recoverable: !kind.Fatal(),
		Err:         cause,
	}
}

// NewCodeError creates an Error that keeps the raw platform code.
func NewCodeError(kind ErrorKind, code string, cause error) *Error {
	e := NewError(kind, cause)
	e.Code = code
	return e
}

// NewProviderError reports a failed response tier.
func NewProviderError(tier int, cause error) *Error {
	e := NewError(KindProviderFailure, cause)
	e.Tier = tier
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Kind == KindProviderFailure:
		return fmt.Sprintf("voice: provider failure (tier %d): %v", e.Tier, e.Err)
	case e.Code != "" && e.Err != nil:
		return fmt.Sprintf("voice: %s [%s]: %v", e.Kind, e.Code, e.Err)
	case e.Code != "":
		return fmt.Sprintf("voice: %s [%s]", e.Kind, e.Code)
	case e.Err != nil:
		return fmt.Sprintf("voice: %s: %v", e.Kind, e.Err)
	}
	return "voice: " + e.Kind.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so errors.Is(err, voice.ErrNoSpeech) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrNoSpeech         = &Error{Kind: KindNoSpeech}
	ErrAborted          = &Error{Kind: KindAborted}
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied}
	ErrDeviceBusy       = &Error{Kind: KindDeviceBusy}
	ErrDeviceNotFound   = &Error{Kind: KindDeviceNotFound}
)

// Kinder is implemented by provider errors that know their own category.
type Kinder interface {
	VoiceKind() ErrorKind
}

// AsError normalises any error into an *Error.
// Context cancellation becomes Aborted, network failures become Network.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var ve *Error
	if errors.As(err, &ve) {
		return ve
	}
	var k Kinder
	if errors.As(err, &k) {
		return NewError(k.VoiceKind(), err)
	}
	if errors.Is(err, context.Canceled) {
		return NewError(KindAborted, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindNetwork, err)
	}
	return NewError(KindUnknown, err)
}

// KindOf returns the kind of err, or KindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	return AsError(err).Kind
}
