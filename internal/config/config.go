// Package config loads the companion's YAML configuration.
//
// Values come from three layers, later layers winning: built-in defaults,
// the YAML file, then environment variables for credentials and paths.
// Command-line flags are applied by the caller on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-companion/pkg/audioio"
	"github.com/teslashibe/go-companion/pkg/voice"
)

// Environment variables read by Load.
const (
	EnvGeminiKey         = "GEMINI_API_KEY"
	EnvOpenAIKey         = "OPENAI_API_KEY"
	EnvElevenLabsKey     = "ELEVENLABS_API_KEY"
	EnvGoogleKey         = "GOOGLE_API_KEY"
	EnvGoogleCredentials = "GOOGLE_APPLICATION_CREDENTIALS"
	EnvSelfHostedURL     = "SELF_HOSTED_URL"
	EnvDatabase          = "COMPANION_DB"
)

// Config is the full application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Session     SessionConfig     `yaml:"session"`
	Voice       VoiceConfig       `yaml:"voice"`
	Audio       audioio.Config    `yaml:"audio"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Response    ResponseConfig    `yaml:"response"`
	TTS         TTSConfig         `yaml:"tts"`
	Store       StoreConfig       `yaml:"store"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
}

type SessionConfig struct {
	Language    string `yaml:"language"`
	AutoListen  bool   `yaml:"auto_listen"`
	VoiceOutput bool   `yaml:"voice_output"`
	ForceCloud  bool   `yaml:"force_cloud"`
}

// VoiceConfig mirrors voice.Config for the file format.
type VoiceConfig struct {
	CalibrationWindow     time.Duration `yaml:"calibration_window"`
	SampleInterval        time.Duration `yaml:"sample_interval"`
	LowAmplitude          uint8         `yaml:"low_amplitude"`
	CalibrateEveryAttempt bool          `yaml:"calibrate_every_attempt"`
	NoSpeechTimeout       time.Duration `yaml:"no_speech_timeout"`
	CloudRecordLimit      time.Duration `yaml:"cloud_record_limit"`
	SoundAmplitude        uint8         `yaml:"sound_amplitude"`
	MinTranscriptLength   int           `yaml:"min_transcript_length"`
	Placeholders          []string      `yaml:"placeholders"`
	ContextMessages       int           `yaml:"context_messages"`
	PrimaryTimeout        time.Duration `yaml:"primary_timeout"`
	FallbackTimeout       time.Duration `yaml:"fallback_timeout"`
	RevealInterval        time.Duration `yaml:"reveal_interval"`
	AutoListenDelay       time.Duration `yaml:"auto_listen_delay"`
}

type RecognitionConfig struct {
	Realtime RealtimeConfig `yaml:"realtime"`
	Cloud    CloudConfig    `yaml:"cloud"`
}

type RealtimeConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	URL     string `yaml:"url"`
	Model   string `yaml:"model"`
}

type CloudConfig struct {
	// Provider is "whisper" or "google".
	Provider string        `yaml:"provider"`
	Whisper  WhisperConfig `yaml:"whisper"`
	Google   GoogleConfig  `yaml:"google"`
}

type WhisperConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type GoogleConfig struct {
	APIKey          string `yaml:"api_key"`
	CredentialsFile string `yaml:"credentials_file"`
	Model           string `yaml:"model"`
}

type ResponseConfig struct {
	Primary   ProviderConfig `yaml:"primary"`
	Secondary ProviderConfig `yaml:"secondary"`
}

// ProviderConfig configures one language model tier.
type ProviderConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

type TTSConfig struct {
	ElevenLabs SpeechConfig `yaml:"elevenlabs"`
	OpenAI     SpeechConfig `yaml:"openai"`
}

type SpeechConfig struct {
	APIKey string `yaml:"api_key"`
	Voice  string `yaml:"voice"`
	Model  string `yaml:"model"`
}

type StoreConfig struct {
	// Backend is "sqlite", "json" or "memory".
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	v := voice.DefaultConfig()
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Session: SessionConfig{
			Language:    string(voice.DefaultLanguage),
			VoiceOutput: true,
		},
		Voice: VoiceConfig{
			CalibrationWindow:     v.CalibrationWindow,
			SampleInterval:        v.SampleInterval,
			LowAmplitude:          v.LowAmplitude,
			CalibrateEveryAttempt: v.CalibrateEveryAttempt,
			NoSpeechTimeout:       v.NoSpeechTimeout,
			CloudRecordLimit:      v.CloudRecordLimit,
			SoundAmplitude:        v.SoundAmplitude,
			MinTranscriptLength:   v.MinTranscriptLength,
			Placeholders:          v.Placeholders,
			ContextMessages:       v.ContextMessages,
			PrimaryTimeout:        v.PrimaryTimeout,
			FallbackTimeout:       v.FallbackTimeout,
			RevealInterval:        v.RevealInterval,
			AutoListenDelay:       v.AutoListenDelay,
		},
		Audio: audioio.DefaultConfig(),
		Recognition: RecognitionConfig{
			Realtime: RealtimeConfig{Enabled: true},
			Cloud:    CloudConfig{Provider: "whisper"},
		},
		Response: ResponseConfig{
			Primary: ProviderConfig{Model: "gemini-2.0-flash"},
		},
		Store:   StoreConfig{Backend: "sqlite"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvGeminiKey); v != "" {
		c.Response.Primary.APIKey = v
	}
	if v := os.Getenv(EnvOpenAIKey); v != "" {
		c.Recognition.Realtime.APIKey = v
		c.Recognition.Cloud.Whisper.APIKey = v
		c.TTS.OpenAI.APIKey = v
	}
	if v := os.Getenv(EnvElevenLabsKey); v != "" {
		c.TTS.ElevenLabs.APIKey = v
	}
	if v := os.Getenv(EnvGoogleKey); v != "" {
		c.Recognition.Cloud.Google.APIKey = v
	}
	if v := os.Getenv(EnvGoogleCredentials); v != "" {
		c.Recognition.Cloud.Google.CredentialsFile = v
	}
	if v := os.Getenv(EnvSelfHostedURL); v != "" {
		c.Response.Secondary.BaseURL = v
	}
	if v := os.Getenv(EnvDatabase); v != "" {
		c.Store.Path = v
	}
}

// VoiceConfig returns the loop configuration.
func (c *Config) VoiceConfig() voice.Config {
	v := c.Voice
	return voice.Config{
		CalibrationWindow:     v.CalibrationWindow,
		SampleInterval:        v.SampleInterval,
		LowAmplitude:          v.LowAmplitude,
		CalibrateEveryAttempt: v.CalibrateEveryAttempt,
		NoSpeechTimeout:       v.NoSpeechTimeout,
		CloudRecordLimit:      v.CloudRecordLimit,
		LevelRingSize:         voice.DefaultConfig().LevelRingSize,
		SoundAmplitude:        v.SoundAmplitude,
		MinTranscriptLength:   v.MinTranscriptLength,
		Placeholders:          v.Placeholders,
		ContextMessages:       v.ContextMessages,
		PrimaryTimeout:        v.PrimaryTimeout,
		FallbackTimeout:       v.FallbackTimeout,
		RevealInterval:        v.RevealInterval,
		AutoListenDelay:       v.AutoListenDelay,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	vc := c.VoiceConfig()
	if err := vc.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Recognition.Cloud.Provider {
	case "whisper", "google", "":
	default:
		errs = append(errs, fmt.Errorf("config: unknown cloud transcription provider %q", c.Recognition.Cloud.Provider))
	}
	switch c.Store.Backend {
	case "sqlite", "json", "memory", "":
	default:
		errs = append(errs, fmt.Errorf("config: unknown store backend %q", c.Store.Backend))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error", "":
	default:
		errs = append(errs, fmt.Errorf("config: unknown log level %q", c.Logging.Level))
	}
	switch c.Audio.Backend {
	case audioio.BackendAuto, audioio.BackendCommand, audioio.BackendMock, "":
	default:
		errs = append(errs, fmt.Errorf("config: unknown audio backend %q", c.Audio.Backend))
	}
	return errors.Join(errs...)
}
