package inference

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/teslashibe/go-companion/internal/httpc"
	"github.com/teslashibe/go-companion/pkg/voice"
)

var (
	ErrNoAPIKey      = errors.New("inference: API key required")
	ErrNoModel       = errors.New("inference: model required")
	ErrEmptyResponse = errors.New("inference: empty response")
)

// APIError is a non-2xx answer from a model endpoint.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
	Provider   string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("inference [%s]: status %d", e.Provider, e.StatusCode)
	if e.Code != "" {
		msg += " " + e.Code
	}
	return msg + ": " + e.Message
}

func (e *APIError) IsRateLimited() bool { return e.StatusCode == http.StatusTooManyRequests }
func (e *APIError) IsUnauthorized() bool { return e.StatusCode == http.StatusUnauthorized }
func (e *APIError) IsForbidden() bool { return e.StatusCode == http.StatusForbidden }
func (e *APIError) IsServerError() bool { return e.StatusCode >= 500 && e.StatusCode < 600 }

// IsRetryable reports whether the same request may succeed later.
func (e *APIError) IsRetryable() bool { return httpc.Retryable(e.StatusCode) }

// VoiceKind lets voice.AsError classify the failure. A rejected key or
// quota is a blocked service; anything else is a failed tier.
func (e *APIError) VoiceKind() voice.ErrorKind {
	if e.IsUnauthorized() || e.IsForbidden() {
		return voice.KindServiceBlocked
	}
	return voice.KindProviderFailure
}

// decodeAPIError builds an APIError from an OpenAI-style error body,
// falling back to the raw text when the body is not JSON.
func decodeAPIError(provider string, resp *http.Response) *APIError {
	body := httpc.ErrorBody(resp)
	e := &APIError{StatusCode: resp.StatusCode, Message: string(body), Provider: provider}

	var env struct {
		Error *struct {
			Message string `json:"message"`
			Code    any    `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil && env.Error != nil && env.Error.Message != "" {
		e.Message = env.Error.Message
		if env.Error.Code != nil {
			e.Code = fmt.Sprint(env.Error.Code)
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}
	return e
}

// ProviderError tags a transport or decoding failure with its provider.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string { return "inference [" + e.Provider + "]: " + e.Err.Error() }
func (e *ProviderError) Unwrap() error { return e.Err }

// WrapError returns nil for a nil err.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}
