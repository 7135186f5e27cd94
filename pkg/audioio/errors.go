package audioio

import (
	"errors"
	"os"
	"os/exec"
	"strings"

	"github.com/teslashibe/go-companion/pkg/voice"
)

// Sentinel errors.
var (
	// ErrInterrupted is returned by Flush when Clear cut playback short.
	ErrInterrupted = errors.New("audioio: playback interrupted")

	// ErrClosed is returned when using a closed source or sink.
	ErrClosed = errors.New("audioio: closed")
)

// ClassifyDeviceError maps a device acquisition failure onto the voice error taxonomy.
// The raw message is kept as the error code.
func ClassifyDeviceError(err error) *voice.Error {
	if err == nil {
		return nil
	}
	var ve *voice.Error
	if errors.As(err, &ve) {
		return ve
	}

	msg := strings.ToLower(err.Error())
	kind := voice.KindUnknown
	switch {
	case errors.Is(err, ErrProcessingUnavailable):
		kind = voice.KindConfigurationRejected
	case errors.Is(err, exec.ErrNotFound),
		errors.Is(err, os.ErrNotExist),
		strings.Contains(msg, "no such file"),
		strings.Contains(msg, "no such device"),
		strings.Contains(msg, "not found"):
		kind = voice.KindDeviceNotFound
	case errors.Is(err, os.ErrPermission),
		strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "not allowed"):
		kind = voice.KindPermissionDenied
	case strings.Contains(msg, "busy"),
		strings.Contains(msg, "in use"):
		kind = voice.KindDeviceBusy
	case strings.Contains(msg, "invalid"),
		strings.Contains(msg, "not supported"),
		strings.Contains(msg, "unsupported"),
		strings.Contains(msg, "sample format"):
		kind = voice.KindConfigurationRejected
	}
	return voice.NewCodeError(kind, firstLine(err.Error()), err)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
