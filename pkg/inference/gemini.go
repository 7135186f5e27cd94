package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

const providerGemini = "gemini"

// Gemini implements Provider with the Google genai SDK.
type Gemini struct {
	client *genai.Client
	config *Config
	logger *slog.Logger
}

// NewGemini creates a Gemini provider. BaseURL, when set to something
// other than the OpenAI default, overrides the Gemini API endpoint.
func NewGemini(ctx context.Context, opts ...Option) (*Gemini, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = ""
	cfg.Model = "gemini-2.0-flash"
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, WrapError(providerGemini, ErrNoAPIKey)
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, WrapError(providerGemini, fmt.Errorf("create client: %w", err))
	}

	return &Gemini{
		client: client,
		config: cfg,
		logger: cfg.Logger.With("component", "inference.gemini"),
	}, nil
}

// Name returns "gemini".
func (g *Gemini) Name() string { return providerGemini }

// Chat generates a reply. System messages become the system instruction;
// assistant turns are sent with the model role.
func (g *Gemini) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = g.config.Model
	}

	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}

	system, turns := SplitSystem(req.Messages)
	contents := make([]*genai.Content, 0, len(turns))
	for _, msg := range turns {
		var role genai.Role = genai.RoleUser
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = g.config.MaxTokens
	}
	temp := req.Temperature
	if temp == 0 {
		temp = g.config.Temperature
	}

	gc := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(temp)),
		MaxOutputTokens: int32(maxTokens),
	}
	if system != "" {
		gc.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, contents, gc)
	if err != nil {
		return nil, g.convertError(err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, WrapError(providerGemini, ErrEmptyResponse)
	}

	out := &ChatResponse{
		Message:   NewAssistantMessage(text),
		Model:     model,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if len(resp.Candidates) > 0 {
		out.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// Health performs a one-token generation.
func (g *Gemini) Health(ctx context.Context) error {
	_, err := g.Chat(ctx, &ChatRequest{
		Messages:  []Message{NewUserMessage("ping")},
		MaxTokens: 1,
	})
	if errors.Is(err, ErrEmptyResponse) {
		return nil
	}
	return err
}

// Close is a no-op; the genai client holds no resources.
func (g *Gemini) Close() error {
	return nil
}

// convertError maps genai API errors to APIError.
func (g *Gemini) convertError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return g.apiError(apiErr)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return g.apiError(*apiErrPtr)
	}
	return WrapError(providerGemini, err)
}

func (g *Gemini) apiError(e genai.APIError) *APIError {
	return &APIError{
		StatusCode: e.Code,
		Message:    e.Message,
		Code:       e.Status,
		Provider:   providerGemini,
	}
}

// Verify Gemini implements Provider at compile time.
var _ Provider = (*Gemini)(nil)
