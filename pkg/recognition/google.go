package recognition

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/speech/v1"

	"github.com/teslashibe/go-companion/pkg/voice"
)

// GoogleSpeechConfig configures the Google Cloud Speech transcriber.
// Either APIKey or CredentialsFile must be set.
type GoogleSpeechConfig struct {
	APIKey          string
	CredentialsFile string // service account JSON
	Endpoint        string // override for tests
	HTTPClient      *http.Client
	Model           string // e.g. "latest_short"
	Logger          *slog.Logger
}

// GoogleSpeech transcribes recordings with the Speech-to-Text v1 REST API.
type GoogleSpeech struct {
	svc    *speech.Service
	model  string
	logger *slog.Logger
}

// NewGoogleSpeech creates the transcriber.
func NewGoogleSpeech(ctx context.Context, cfg GoogleSpeechConfig) (*GoogleSpeech, error) {
	var opts []option.ClientOption
	switch {
	case cfg.CredentialsFile != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read credentials: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, speech.CloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("parse credentials: %w", err)
		}
		opts = append(opts, option.WithTokenSource(creds.TokenSource))
	case cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	default:
		return nil, ErrNotConfigured
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := speech.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech service: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &GoogleSpeech{
		svc:    svc,
		model:  cfg.Model,
		logger: logger.With("component", "recognition.google_speech"),
	}, nil
}

// Name returns "google-speech".
func (g *GoogleSpeech) Name() string { return "google-speech" }

// Transcribe sends one synchronous recognize request.
func (g *GoogleSpeech) Transcribe(ctx context.Context, audio Audio) (string, error) {
	req := &speech.RecognizeRequest{
		Config: &speech.RecognitionConfig{
			Encoding:                   "LINEAR16",
			SampleRateHertz:            int64(audio.SampleRate),
			LanguageCode:               string(audio.Language),
			EnableAutomaticPunctuation: true,
			Model:                      g.model,
		},
		Audio: &speech.RecognitionAudio{
			Content: base64.StdEncoding.EncodeToString(audio.PCM),
		},
	}

	resp, err := g.svc.Speech.Recognize(req).Context(ctx).Do()
	if err != nil {
		return "", classifyGoogleError(err)
	}

	var parts []string
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		if t := strings.TrimSpace(r.Alternatives[0].Transcript); t != "" {
			parts = append(parts, t)
		}
	}
	g.logger.Debug("recognize complete", "results", len(resp.Results))
	return strings.Join(parts, " "), nil
}

func classifyGoogleError(err error) *voice.Error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return voice.AsError(err)
	}
	code := fmt.Sprintf("http_%d", gerr.Code)
	msg := strings.ToLower(gerr.Message)
	switch {
	case gerr.Code == http.StatusBadRequest && strings.Contains(msg, "language"):
		return voice.NewCodeError(voice.KindLanguageUnsupported, code, err)
	case gerr.Code == http.StatusUnauthorized, gerr.Code == http.StatusForbidden:
		return voice.NewCodeError(voice.KindServiceBlocked, code, err)
	case gerr.Code == http.StatusTooManyRequests, gerr.Code >= 500:
		return voice.NewCodeError(voice.KindNetwork, code, err)
	}
	return voice.NewCodeError(voice.KindUnknown, code, err)
}

var _ Transcriber = (*GoogleSpeech)(nil)
