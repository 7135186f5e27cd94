package tts

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/teslashibe/go-companion/internal/httpc"
	"github.com/teslashibe/go-companion/pkg/voice"
)

var (
	ErrNoAPIKey            = errors.New("tts: API key required")
	ErrNoVoiceID           = errors.New("tts: voice ID required")
	ErrEmptyText           = errors.New("tts: empty text")
	ErrProviderUnavailable = errors.New("tts: no providers available")
)

// APIError is a non-2xx answer from a speech API.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
	Provider   string
}

func (e *APIError) Error() string {
	msg := "tts [" + e.Provider + "]: status " + strconv.Itoa(e.StatusCode)
	if e.Code != "" {
		msg += " " + e.Code
	}
	return msg + ": " + e.Message
}

func (e *APIError) IsRateLimited() bool { return e.StatusCode == http.StatusTooManyRequests }
func (e *APIError) IsUnauthorized() bool { return e.StatusCode == http.StatusUnauthorized }
func (e *APIError) IsForbidden() bool { return e.StatusCode == http.StatusForbidden }
func (e *APIError) IsNotFound() bool { return e.StatusCode == http.StatusNotFound }
func (e *APIError) IsServerError() bool { return e.StatusCode >= 500 && e.StatusCode < 600 }
func (e *APIError) IsRetryable() bool { return httpc.Retryable(e.StatusCode) }

// VoiceKind classifies the failure for the playback error event. An
// unknown voice ID is a configuration problem, not an outage.
func (e *APIError) VoiceKind() voice.ErrorKind {
	switch {
	case e.IsUnauthorized(), e.IsForbidden():
		return voice.KindServiceBlocked
	case e.IsNotFound():
		return voice.KindConfigurationRejected
	case e.IsRetryable():
		return voice.KindNetwork
	}
	return voice.KindProviderFailure
}

// ProviderError tags a transport failure with its provider.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string { return "tts [" + e.Provider + "]: " + e.Err.Error() }
func (e *ProviderError) Unwrap() error { return e.Err }

// WrapError returns nil for a nil err.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}
