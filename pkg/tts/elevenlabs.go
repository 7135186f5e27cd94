package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/teslashibe/go-companion/internal/httpc"
)

const (
	elevenLabsBaseURL  = "https://api.elevenlabs.io/v1"
	providerElevenLabs = ProviderElevenLabs
)

// ElevenLabs model IDs
const (
	// ModelTurboV2_5 is the fastest English model (~200ms latency).
	ModelTurboV2_5 = "eleven_turbo_v2_5"

	// ModelFlashV2_5 is the fastest multilingual model (~150ms latency).
	ModelFlashV2_5 = "eleven_flash_v2_5"

	// ModelMultilingualV2 is the highest quality multilingual model (~300ms latency).
	ModelMultilingualV2 = "eleven_multilingual_v2"
)

// ElevenLabs implements Provider for ElevenLabs TTS.
type ElevenLabs struct {
	transport
	baseURL string
}

// NewElevenLabs creates a new ElevenLabs TTS provider.
func NewElevenLabs(opts ...Option) (*ElevenLabs, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.ValidateWithVoice(); err != nil {
		return nil, err
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = elevenLabsBaseURL
	}

	e := &ElevenLabs{baseURL: baseURL}
	e.transport = newTransport(providerElevenLabs, cfg, e.parseError, func(req *http.Request) {
		req.Header.Set("xi-api-key", cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "audio/pcm")
	})
	return e, nil
}

// Name returns "elevenlabs".
func (e *ElevenLabs) Name() string { return providerElevenLabs }

// Synthesize converts text to audio, returning the complete audio buffer.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	body, err := e.payload(text)
	if err != nil {
		return nil, err
	}
	return e.synthesize(ctx, e.endpoint(""), body, text, e.outputFormat())
}

// Stream converts text to audio with streaming output for lowest latency.
func (e *ElevenLabs) Stream(ctx context.Context, text string) (AudioStream, error) {
	body, err := e.payload(text)
	if err != nil {
		return nil, err
	}
	return e.openStream(ctx, e.endpoint("/stream"), body, e.outputFormat())
}

// Health checks API connectivity and key validity.
func (e *ElevenLabs) Health(ctx context.Context) error {
	return e.get(ctx, e.baseURL+"/user")
}

// Close releases resources.
func (e *ElevenLabs) Close() error {
	e.close()
	return nil
}

// VoiceID returns the configured voice ID.
func (e *ElevenLabs) VoiceID() string {
	return e.config.VoiceID
}

// ModelID returns the configured model ID.
func (e *ElevenLabs) ModelID() string {
	return e.config.ModelID
}

func (e *ElevenLabs) endpoint(suffix string) string {
	q := url.Values{}
	q.Set("output_format", string(e.config.OutputFormat))
	return fmt.Sprintf("%s/text-to-speech/%s%s?%s", e.baseURL, url.PathEscape(e.config.VoiceID), suffix, q.Encode())
}

func (e *ElevenLabs) payload(text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerElevenLabs, ErrEmptyText)
	}

	vs := e.config.VoiceSettings
	payload := map[string]interface{}{
		"text":     text,
		"model_id": e.config.ModelID,
		"voice_settings": map[string]interface{}{
			"stability":         vs.Stability,
			"similarity_boost":  vs.SimilarityBoost,
			"style":             vs.Style,
			"use_speaker_boost": vs.SpeakerBoost,
		},
	}
	// Only the v2.5 models accept an explicit language.
	if lang := baseLanguage(e.config.Language); lang != "" && e.config.ModelID != ModelMultilingualV2 {
		payload["language_code"] = lang
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(providerElevenLabs, fmt.Errorf("marshal payload: %w", err))
	}
	return body, nil
}

// parseError reads and parses an error response.
func (e *ElevenLabs) parseError(resp *http.Response) error {
	body := httpc.ErrorBody(resp)

	var errResp struct {
		Detail struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"detail"`
	}

	message := string(body)
	code := ""
	if json.Unmarshal(body, &errResp) == nil && errResp.Detail.Message != "" {
		message = errResp.Detail.Message
		code = errResp.Detail.Status
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   providerElevenLabs,
	}
}

func (e *ElevenLabs) outputFormat() AudioFormat {
	return AudioFormat{
		Encoding:   e.config.OutputFormat,
		SampleRate: SampleRateFromEncoding(e.config.OutputFormat),
		Channels:   1,
		BitDepth:   16,
	}
}

// baseLanguage turns "es-ES" into "es".
func baseLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}

// Verify ElevenLabs implements Provider at compile time.
var _ Provider = (*ElevenLabs)(nil)
