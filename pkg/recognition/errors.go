package recognition

import (
	"errors"

	"github.com/teslashibe/go-companion/pkg/voice"
)

// Sentinel errors.
var (
	// ErrNoCapability is returned when neither the native nor the cloud
	// capability can serve a listening request.
	ErrNoCapability = errors.New("recognition: no capability available")

	// ErrNotConfigured is returned by capabilities missing credentials.
	ErrNotConfigured = errors.New("recognition: not configured")
)

// errorCodes maps platform recognition error codes onto the voice taxonomy.
var errorCodes = map[string]voice.ErrorKind{
	"not-allowed":            voice.KindPermissionDenied,
	"service-not-allowed":    voice.KindServiceBlocked,
	"network":                voice.KindNetwork,
	"no-speech":              voice.KindNoSpeech,
	"audio-capture":          voice.KindDeviceBusy,
	"no-match":               voice.KindUnintelligible,
	"aborted":                voice.KindAborted,
	"language-not-supported": voice.KindLanguageUnsupported,

	// Realtime transcription service codes
	"invalid_api_key":          voice.KindServiceBlocked,
	"insufficient_quota":       voice.KindServiceBlocked,
	"model_not_found":          voice.KindServiceBlocked,
	"unsupported_language":     voice.KindLanguageUnsupported,
	"input_audio_buffer_empty": voice.KindNoSpeech,
}

// MapErrorCode converts a recognition error code into a *voice.Error.
// Unknown codes become KindUnknown and keep the raw code for diagnostics.
func MapErrorCode(code string, cause error) *voice.Error {
	kind, ok := errorCodes[code]
	if !ok {
		kind = voice.KindUnknown
	}
	return voice.NewCodeError(kind, code, cause)
}
