package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/teslashibe/go-companion/internal/httpc"
)

const (
	openAIBaseURL  = "https://api.openai.com/v1"
	providerOpenAI = ProviderOpenAI
)

// OpenAI voice options
const (
	VoiceAlloy   = "alloy"
	VoiceNova    = "nova"
	VoiceSage    = "sage"
	VoiceShimmer = "shimmer"
)

// OpenAI model options
const (
	ModelTTS1         = "tts-1"
	ModelTTS1HD       = "tts-1-hd"
	ModelGPT4oMiniTTS = "gpt-4o-mini-tts"
)

// openAIInstructions steers gpt-4o-mini-tts delivery. Older models ignore it.
const openAIInstructions = "Speak calmly and warmly, at a relaxed pace."

// OpenAI implements Provider for OpenAI speech synthesis.
// It always requests raw 24kHz PCM16.
type OpenAI struct {
	transport
	baseURL string
}

// NewOpenAI creates a new OpenAI TTS provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.ModelID = ModelGPT4oMiniTTS
	cfg.VoiceID = VoiceShimmer
	cfg.OutputFormat = EncodingPCM24
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = VoiceShimmer
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = openAIBaseURL
	}

	o := &OpenAI{baseURL: baseURL}
	o.transport = newTransport(providerOpenAI, cfg, o.parseError, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")
	})
	return o, nil
}

// Name returns "openai".
func (o *OpenAI) Name() string { return providerOpenAI }

// Synthesize converts text to audio, returning the complete audio buffer.
func (o *OpenAI) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	body, err := o.payload(text)
	if err != nil {
		return nil, err
	}
	return o.synthesize(ctx, o.baseURL+"/audio/speech", body, text, PCM24)
}

// Stream returns audio chunks as the response body arrives.
func (o *OpenAI) Stream(ctx context.Context, text string) (AudioStream, error) {
	body, err := o.payload(text)
	if err != nil {
		return nil, err
	}
	return o.openStream(ctx, o.baseURL+"/audio/speech", body, PCM24)
}

// Health checks API connectivity.
func (o *OpenAI) Health(ctx context.Context) error {
	return o.get(ctx, o.baseURL+"/models")
}

// Close releases resources.
func (o *OpenAI) Close() error {
	o.close()
	return nil
}

// VoiceID returns the configured voice.
func (o *OpenAI) VoiceID() string {
	return o.config.VoiceID
}

func (o *OpenAI) payload(text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerOpenAI, ErrEmptyText)
	}
	payload := map[string]interface{}{
		"model":           o.config.ModelID,
		"voice":           o.config.VoiceID,
		"input":           text,
		"response_format": "pcm",
	}
	if o.config.ModelID == ModelGPT4oMiniTTS {
		payload["instructions"] = openAIInstructions
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("marshal payload: %w", err))
	}
	return body, nil
}

// parseError reads and parses an error response.
func (o *OpenAI) parseError(resp *http.Response) error {
	body := httpc.ErrorBody(resp)

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	message := string(body)
	code := ""
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		code = errResp.Error.Code
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   providerOpenAI,
	}
}

// Verify OpenAI implements Provider at compile time.
var _ Provider = (*OpenAI)(nil)
