package audioio

import "errors"

// ErrProcessingUnavailable is returned by Start when voice processing is
// required but the capture device cannot apply it.
var ErrProcessingUnavailable = errors.New("audioio: capture device does not support the requested processing")

// Processing is the voice processing asked of a capture device.
type Processing struct {
	EchoCancellation bool `json:"echo_cancellation"`
	NoiseSuppression bool `json:"noise_suppression"`
	AutoGain         bool `json:"auto_gain"`
}

// VoiceProcessing enables echo cancellation, noise suppression and
// automatic gain.
var VoiceProcessing = Processing{EchoCancellation: true, NoiseSuppression: true, AutoGain: true}

// Any reports whether any processing is requested.
func (p Processing) Any() bool {
	return p.EchoCancellation || p.NoiseSuppression || p.AutoGain
}

// ProcessingSource is a Source that takes a processing request before
// Start and reports what its device actually applies.
type ProcessingSource interface {
	Source
	RequestProcessing(p Processing)
	Processing() Processing
}
