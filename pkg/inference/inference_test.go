package inference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-companion/pkg/voice"
)

func TestMockProvider(t *testing.T) {
	ctx := context.Background()
	mock := NewMock("Take a slow breath.")

	resp, err := mock.Chat(ctx, &ChatRequest{
		Messages: []Message{NewUserMessage("Hello")},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Message.Content != "Take a slow breath." {
		t.Errorf("Unexpected content: %s", resp.Message.Content)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("Expected finish_reason 'stop', got %s", resp.FinishReason)
	}

	mock.Health(ctx)
	if mock.CallCount("Chat") != 1 {
		t.Errorf("Expected 1 Chat call, got %d", mock.CallCount("Chat"))
	}
	if len(mock.Calls()) != 2 {
		t.Errorf("Expected 2 calls, got %d", len(mock.Calls()))
	}
	if mock.LastRequest() == nil || mock.LastRequest().Messages[0].Content != "Hello" {
		t.Error("Expected request to be recorded")
	}

	mock.Reset()
	if len(mock.Calls()) != 0 || mock.LastRequest() != nil {
		t.Error("Expected 0 calls after reset")
	}
}

func TestMockWithError(t *testing.T) {
	testErr := errors.New("test error")
	mock := WithError(testErr)

	_, err := mock.Chat(context.Background(), &ChatRequest{})
	if !errors.Is(err, testErr) {
		t.Errorf("Expected test error, got: %v", err)
	}
	if err := mock.Health(context.Background()); !errors.Is(err, testErr) {
		t.Errorf("Expected test error from Health, got: %v", err)
	}
}

func TestMockWithDelay(t *testing.T) {
	mock := WithDelay(time.Second, "late")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := mock.Chat(ctx, &ChatRequest{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestMockName(t *testing.T) {
	m := NewMock("x")
	if m.Name() != "mock" {
		t.Errorf("Expected mock, got %s", m.Name())
	}
	m.NameOverride = "primary"
	if m.Name() != "primary" {
		t.Errorf("Expected primary, got %s", m.Name())
	}
}

func TestFunctionalOptions(t *testing.T) {
	cfg := DefaultConfig()

	cfg.Apply(
		WithBaseURL("http://localhost:11434/v1"),
		WithAPIKey("test-key"),
		WithModel("llama3"),
		WithMaxTokens(512),
		WithTemperature(0.5),
		WithTimeout(5*time.Second),
		WithRetry(2, time.Millisecond),
	)

	if cfg.BaseURL != "http://localhost:11434/v1" {
		t.Errorf("Expected Ollama URL, got %s", cfg.BaseURL)
	}
	if cfg.APIKey != "test-key" {
		t.Errorf("Expected test-key, got %s", cfg.APIKey)
	}
	if cfg.Model != "llama3" {
		t.Errorf("Expected llama3, got %s", cfg.Model)
	}
	if cfg.MaxTokens != 512 {
		t.Errorf("Expected 512, got %d", cfg.MaxTokens)
	}
	if cfg.Temperature != 0.5 {
		t.Errorf("Expected 0.5, got %f", cfg.Temperature)
	}
	if cfg.Timeout != 5*time.Second || cfg.MaxRetries != 2 {
		t.Errorf("Unexpected timeout/retries: %v/%d", cfg.Timeout, cfg.MaxRetries)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("Expected OpenAI URL, got %s", cfg.BaseURL)
	}
	if cfg.Model != "gpt-4o-mini" {
		t.Errorf("Expected gpt-4o-mini, got %s", cfg.Model)
	}
	if cfg.MaxTokens != 300 {
		t.Errorf("Expected 300, got %d", cfg.MaxTokens)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}

	cfg.Model = ""
	if !errors.Is(cfg.Validate(), ErrNoModel) {
		t.Error("Expected ErrNoModel")
	}
}

func TestAPIError(t *testing.T) {
	err := &APIError{StatusCode: 429, Message: "rate limited", Provider: "test"}
	if !err.IsRateLimited() {
		t.Error("Expected IsRateLimited() to be true")
	}
	if !err.IsRetryable() {
		t.Error("Expected IsRetryable() to be true for 429")
	}

	err = &APIError{StatusCode: 401, Message: "unauthorized", Provider: "test"}
	if !err.IsUnauthorized() {
		t.Error("Expected IsUnauthorized() to be true")
	}
	if err.IsRetryable() {
		t.Error("Expected IsRetryable() to be false for 401")
	}

	err = &APIError{StatusCode: 500, Message: "server error", Provider: "test"}
	if !err.IsServerError() {
		t.Error("Expected IsServerError() to be true")
	}

	err = &APIError{StatusCode: 400, Message: "bad request", Code: "invalid_api_key", Provider: "test"}
	if err.Error() != "inference [test]: status 400 invalid_api_key: bad request" {
		t.Errorf("Unexpected error string: %s", err.Error())
	}
}

func TestAPIError_VoiceKind(t *testing.T) {
	tests := []struct {
		status int
		want   voice.ErrorKind
	}{
		{401, voice.KindServiceBlocked},
		{403, voice.KindServiceBlocked},
		{429, voice.KindProviderFailure},
		{503, voice.KindProviderFailure},
	}
	for _, tt := range tests {
		err := &APIError{StatusCode: tt.status, Provider: "test"}
		if got := err.VoiceKind(); got != tt.want {
			t.Errorf("status %d: expected %s, got %s", tt.status, tt.want, got)
		}
	}
}

func TestWrapError(t *testing.T) {
	if WrapError("x", nil) != nil {
		t.Error("Expected nil for nil error")
	}
	err := WrapError("gemini", ErrEmptyResponse)
	if !errors.Is(err, ErrEmptyResponse) {
		t.Error("Expected wrapped sentinel")
	}
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Provider != "gemini" {
		t.Errorf("Expected ProviderError, got %T", err)
	}
}

func TestMessageHelpers(t *testing.T) {
	sys := NewSystemMessage("You are helpful")
	if sys.Role != RoleSystem || sys.Content != "You are helpful" {
		t.Error("NewSystemMessage failed")
	}

	user := NewUserMessage("Hello")
	if user.Role != RoleUser || user.Content != "Hello" {
		t.Error("NewUserMessage failed")
	}

	asst := NewAssistantMessage("Hi there")
	if asst.Role != RoleAssistant || asst.Content != "Hi there" {
		t.Error("NewAssistantMessage failed")
	}
}

func TestSplitSystem(t *testing.T) {
	system, turns := SplitSystem([]Message{
		NewSystemMessage("Be kind."),
		NewUserMessage("hi"),
		NewSystemMessage("Be brief."),
		NewAssistantMessage("hello"),
	})
	if system != "Be kind.\n\nBe brief." {
		t.Errorf("Unexpected system: %q", system)
	}
	if len(turns) != 2 || turns[0].Role != RoleUser || turns[1].Role != RoleAssistant {
		t.Errorf("Unexpected turns: %+v", turns)
	}
}
