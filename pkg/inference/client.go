package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-companion/internal/httpc"
)

const providerClient = "openai-compatible"

// Client speaks the OpenAI chat completions protocol, which OpenAI, Ollama,
// vLLM, Groq and most self-hosted gateways accept.
type Client struct {
	baseURL string
	apiKey  string
	config  *Config
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a client. The API key may be empty for local servers.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, WrapError(providerClient, err)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpc.NewClient(cfg.Timeout)
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		config:  cfg,
		http:    hc,
		logger:  cfg.Logger.With("component", "inference.client"),
	}, nil
}

func (c *Client) Name() string { return providerClient }

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type completionChoice struct {
	Message      wireMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type completionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type completionResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Choices []completionChoice `json:"choices"`
	Usage   completionUsage    `json:"usage"`
}

// Chat sends one completion request, retrying throttled and 5xx answers.
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	body, err := json.Marshal(c.completionRequest(req))
	if err != nil {
		return nil, WrapError(providerClient, fmt.Errorf("marshal request: %w", err))
	}

	resp, err := c.postWithRetry(ctx, "/chat/completions", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, WrapError(providerClient, fmt.Errorf("decode response: %w", err))
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return nil, WrapError(providerClient, ErrEmptyResponse)
	}

	choice := out.Choices[0]
	c.logger.Debug("completion", "model", out.Model, "tokens", out.Usage.TotalTokens, "latency", time.Since(start))

	return &ChatResponse{
		Message:      NewAssistantMessage(choice.Message.Content),
		FinishReason: choice.FinishReason,
		Usage: Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		},
		Model:     out.Model,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// Health lists models, which every compatible server exposes.
func (c *Client) Health(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return WrapError(providerClient, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(providerClient, resp)
	}
	return nil
}

func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// completionRequest fills unset request fields from the client defaults.
func (c *Client) completionRequest(req *ChatRequest) completionRequest {
	out := completionRequest{
		Model:       req.Model,
		Messages:    make([]wireMessage, len(req.Messages)),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if out.Model == "" {
		out.Model = c.config.Model
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = c.config.MaxTokens
	}
	if out.Temperature == 0 {
		out.Temperature = c.config.Temperature
	}
	for i, m := range req.Messages {
		out.Messages[i] = wireMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, WrapError(providerClient, fmt.Errorf("create request: %w", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// postWithRetry returns a 200 response or the last failure.
func (c *Client) postWithRetry(ctx context.Context, path string, body []byte) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := httpc.Wait(ctx, attempt, c.config.RetryDelay); err != nil {
				return nil, WrapError(providerClient, err)
			}
		}

		req, err := c.newRequest(ctx, http.MethodPost, path, body)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, WrapError(providerClient, ctx.Err())
			}
			lastErr = WrapError(providerClient, err)
			c.logger.Warn("request failed", "attempt", attempt+1, "error", err)
			continue
		}
		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		apiErr := decodeAPIError(providerClient, resp)
		resp.Body.Close()
		if !apiErr.IsRetryable() {
			return nil, apiErr
		}
		lastErr = apiErr
		c.logger.Warn("request throttled", "attempt", attempt+1, "status", resp.StatusCode)
	}
	return nil, lastErr
}

var _ Provider = (*Client)(nil)
