package tts

import (
	"log/slog"
	"time"
)

// Config is shared by the speech providers.
type Config struct {
	APIKey  string
	BaseURL string

	VoiceID       string
	ModelID       string
	VoiceSettings VoiceSettings // ElevenLabs only
	OutputFormat  Encoding

	// Language is a BCP-47 tag, sent to providers that accept one.
	Language string

	Timeout       time.Duration
	StreamTimeout time.Duration
	MaxRetries    int
	RetryDelay    time.Duration

	Logger *slog.Logger
}

type Option func(*Config)

func WithAPIKey(key string) Option { return func(c *Config) { c.APIKey = key } }
func WithBaseURL(url string) Option { return func(c *Config) { c.BaseURL = url } }
func WithVoice(voiceID string) Option { return func(c *Config) { c.VoiceID = voiceID } }
func WithModel(modelID string) Option { return func(c *Config) { c.ModelID = modelID } }
func WithOutputFormat(f Encoding) Option { return func(c *Config) { c.OutputFormat = f } }
func WithVoiceSettings(s VoiceSettings) Option {
	return func(c *Config) { c.VoiceSettings = s }
}
func WithLanguage(lang string) Option { return func(c *Config) { c.Language = lang } }
func WithTimeout(d time.Duration) Option { return func(c *Config) { c.Timeout = d } }

// WithStreamTimeout bounds a whole streamed utterance, not just its first byte.
func WithStreamTimeout(d time.Duration) Option {
	return func(c *Config) { c.StreamTimeout = d }
}

func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

func WithLogger(l *slog.Logger) Option { return func(c *Config) { c.Logger = l } }

// DefaultConfig asks for raw 24kHz PCM so playback needs no decoder.
func DefaultConfig() *Config {
	return &Config{
		ModelID:       ModelFlashV2_5,
		OutputFormat:  EncodingPCM24,
		VoiceSettings: DefaultVoiceSettings(),
		Timeout:       30 * time.Second,
		StreamTimeout: 60 * time.Second,
		MaxRetries:    2,
		RetryDelay:    100 * time.Millisecond,
		Logger:        slog.Default(),
	}
}

func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	return nil
}

// ValidateWithVoice also requires a voice, as ElevenLabs does.
func (c *Config) ValidateWithVoice() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.VoiceID == "" {
		return ErrNoVoiceID
	}
	return nil
}
