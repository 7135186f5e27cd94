package voice

import (
	"errors"
	"time"
)

// Language is a BCP-47 language tag such as "en-US".
type Language string

// DefaultLanguage is used when no language has been selected.
const DefaultLanguage Language = "en-US"

// Base returns the primary subtag ("en" for "en-US").
func (l Language) Base() string {
	s := string(l)
	for i := 0; i < len(s); i++ {
		if s[i] == '-' || s[i] == '_' {
			return s[:i]
		}
	}
	return s
}

// Config holds the tunable thresholds and timers of the conversation loop.
// Parameters are organized by stage.
type Config struct {
	// Calibration
	CalibrationWindow     time.Duration // How long the microphone is sampled (default: 1s)
	SampleInterval        time.Duration // Level sampling cadence (default: 100ms, ~10 Hz)
	LowAmplitude          uint8         // Peak below this is "very low input" (default: 8)
	CalibrateEveryAttempt bool          // Calibrate before every attempt, not only the first

	// Recognition
	NoSpeechTimeout  time.Duration // Watchdog armed on Starting (default: 7s)
	CloudRecordLimit time.Duration // Cloud fallback recording bound (default: 6s)
	LevelRingSize    int           // Level samples kept per attempt (default: 64)
	SoundAmplitude   uint8         // Amplitude counted as "sound" (default: 12)

	// Aggregation
	MinTranscriptLength int      // Shortest accepted transcript, in runes (default: 3)
	Placeholders        []string // Transcripts treated as no speech

	// Response
	ContextMessages int           // Recent messages sent to the primary tier (default: 6)
	PrimaryTimeout  time.Duration // Tier 1 bound (default: 12s)
	FallbackTimeout time.Duration // Tier 2 bound (default: 15s)
	RevealInterval  time.Duration // Pause between revealed words (default: 40ms)

	// Playback
	AutoListenDelay time.Duration // Pause after speech ends before listening again (default: 350ms)
}

// DefaultConfig returns a Config with the production defaults.
func DefaultConfig() Config {
	return Config{
		CalibrationWindow: time.Second,
		SampleInterval:    100 * time.Millisecond,
		LowAmplitude:      8,

		NoSpeechTimeout:  7 * time.Second,
		CloudRecordLimit: 6 * time.Second,
		LevelRingSize:    64,
		SoundAmplitude:   12,

		MinTranscriptLength: 3,
		Placeholders:        []string{"...", "[BLANK_AUDIO]", "(silence)", "[inaudible]"},

		ContextMessages: 6,
		PrimaryTimeout:  12 * time.Second,
		FallbackTimeout: 15 * time.Second,
		RevealInterval:  40 * time.Millisecond,

		AutoListenDelay: 350 * time.Millisecond,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.CalibrationWindow <= 0 || c.SampleInterval <= 0 {
		return errors.New("voice: calibration window and sample interval must be positive")
	}
	if c.SampleInterval > c.CalibrationWindow {
		return errors.New("voice: sample interval longer than calibration window")
	}
	if c.NoSpeechTimeout <= 0 {
		return errors.New("voice: no-speech timeout must be positive")
	}
	if c.CloudRecordLimit <= 0 {
		return errors.New("voice: cloud record limit must be positive")
	}
	if c.MinTranscriptLength < 1 {
		return errors.New("voice: minimum transcript length must be at least 1")
	}
	if c.RevealInterval < 0 || c.AutoListenDelay < 0 {
		return errors.New("voice: reveal interval and auto-listen delay cannot be negative")
	}
	if c.ContextMessages < 0 {
		return errors.New("voice: context window cannot be negative")
	}
	return nil
}

// WithNoSpeechTimeout returns a copy with the watchdog duration set.
func (c Config) WithNoSpeechTimeout(d time.Duration) Config {
	c.NoSpeechTimeout = d
	return c
}

// WithAutoListenDelay returns a copy with the auto-listen delay set.
func (c Config) WithAutoListenDelay(d time.Duration) Config {
	c.AutoListenDelay = d
	return c
}

// WithRevealInterval returns a copy with the word reveal pacing set.
func (c Config) WithRevealInterval(d time.Duration) Config {
	c.RevealInterval = d
	return c
}

// WithCalibration returns a copy with calibration window and cadence set.
func (c Config) WithCalibration(window, interval time.Duration) Config {
	c.CalibrationWindow = window
	c.SampleInterval = interval
	return c
}

// WithMinTranscriptLength returns a copy with the eager finalization threshold set.
func (c Config) WithMinTranscriptLength(n int) Config {
	c.MinTranscriptLength = n
	return c
}
