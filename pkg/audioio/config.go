// Package audioio provides microphone capture and speaker playback.
//
// Two backends are available:
//   - Command - pipes raw PCM through arecord/aplay (or any compatible tool)
//   - Mock - scripted input levels and simulated playback for tests
//
// The backend is selected from configuration; "auto" picks the command
// backend when the capture tool is on PATH and falls back to mock otherwise.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto selects the command backend when its tools are installed.
	BackendAuto Backend = "auto"
	// BackendCommand pipes PCM16 through external capture/playback tools.
	BackendCommand Backend = "command"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	// Default: "auto"
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	// Default: 24000 (matches the TTS output format)
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	// Default: 1 (mono)
	Channels int `yaml:"channels" json:"channels"`

	// BufferDuration is the size of audio buffers.
	// Default: 20ms (480 samples at 24kHz)
	BufferDuration time.Duration `yaml:"buffer_duration" json:"buffer_duration"`

	// Device is the capture/playback device identifier passed to the tools.
	// Examples: "default", "hw:0,0", "plughw:1,0"
	Device string `yaml:"device" json:"device"`

	// Processing requested from the capture device.
	EchoCancellation bool `yaml:"echo_cancellation" json:"echo_cancellation"`
	NoiseSuppression bool `yaml:"noise_suppression" json:"noise_suppression"`
	AutoGain         bool `yaml:"auto_gain" json:"auto_gain"`

	// ProcessingDevice is the capture device that applies the requested
	// processing, e.g. a PipeWire or PulseAudio echo-cancel source exposed
	// to ALSA. It replaces Device while processing is requested.
	ProcessingDevice string `yaml:"processing_device" json:"processing_device"`

	// StrictProcessing makes Start fail with ConfigurationRejected when
	// processing is requested and no ProcessingDevice is set. Otherwise
	// capture continues on the raw device with a warning.
	StrictProcessing bool `yaml:"strict_processing" json:"strict_processing"`

	// CaptureCommand and PlaybackCommand override the tool names.
	// Default: "arecord" and "aplay"
	CaptureCommand  string `yaml:"capture_command" json:"capture_command"`
	PlaybackCommand string `yaml:"playback_command" json:"playback_command"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:          BackendAuto,
		SampleRate:       24000,
		Channels:         1,
		BufferDuration:   20 * time.Millisecond,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGain:         true,
		CaptureCommand:   "arecord",
		PlaybackCommand:  "aplay",
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 || c.Channels > 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	return nil
}

// Processing returns the voice processing this configuration requests.
func (c *Config) Processing() Processing {
	return Processing{
		EchoCancellation: c.EchoCancellation,
		NoiseSuppression: c.NoiseSuppression,
		AutoGain:         c.AutoGain,
	}
}

// BufferSize returns the number of samples per buffer.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferBytes returns the size of a buffer in bytes (assuming int16 samples).
func (c *Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 2
}
