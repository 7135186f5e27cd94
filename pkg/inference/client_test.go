package inference

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-companion/pkg/voice"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	client, err := NewClient(append([]Option{WithBaseURL(server.URL)}, opts...)...)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func askFor(text string) *ChatRequest {
	return &ChatRequest{Messages: []Message{
		NewSystemMessage("Be brief and kind."),
		NewUserMessage(text),
	}}
}

func TestClientChat(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Expected bearer auth, got %q", auth)
		}

		var req completionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.Model != "llama3.2" || len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected request body: %+v", req)
		}
		if req.MaxTokens != 300 || req.Temperature != 0.7 {
			t.Errorf("Expected config defaults, got max_tokens=%d temperature=%v", req.MaxTokens, req.Temperature)
		}

		json.NewEncoder(w).Encode(completionResponse{
			Model: "llama3.2",
			Choices: []completionChoice{{
				Message:      wireMessage{Role: "assistant", Content: "That sounds exhausting."},
				FinishReason: "stop",
			}},
			Usage: completionUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		})
	}, WithAPIKey("test-key"), WithModel("llama3.2"))

	resp, err := client.Chat(context.Background(), askFor("I had a long day"))
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Message.Role != RoleAssistant || resp.Message.Content != "That sounds exhausting." {
		t.Errorf("Unexpected message: %+v", resp.Message)
	}
	if resp.FinishReason != "stop" || resp.Usage.TotalTokens != 15 || resp.Model != "llama3.2" {
		t.Errorf("Unexpected metadata: %+v", resp)
	}
	if client.Name() != "openai-compatible" {
		t.Errorf("Unexpected name %q", client.Name())
	}
}

func TestClientHealth(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/models" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"data":[]}`))
	})

	if err := client.Health(context.Background()); err != nil {
		t.Errorf("Health failed: %v", err)
	}
}

func TestClientUnauthorized(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Invalid API key","code":"invalid_api_key"}}`))
	}, WithAPIKey("bad-key"), WithRetry(3, time.Millisecond))

	_, err := client.Chat(context.Background(), askFor("hi"))
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("Expected *APIError, got %T", err)
	}
	if !apiErr.IsUnauthorized() || apiErr.Code != "invalid_api_key" || apiErr.Message != "Invalid API key" {
		t.Errorf("Unexpected error: %+v", apiErr)
	}
	if k := voice.KindOf(err); k != voice.KindServiceBlocked {
		t.Errorf("Expected service-blocked, got %s", k)
	}
}

func TestClientPlainTextError(t *testing.T) {
	var attempts atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "model not loaded", http.StatusBadRequest)
	}, WithRetry(2, time.Millisecond))

	_, err := client.Chat(context.Background(), askFor("hi"))
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !strings.Contains(apiErr.Message, "model not loaded") {
		t.Fatalf("Expected APIError with body text, got %v", err)
	}
	if n := attempts.Load(); n != 1 {
		t.Errorf("Expected no retry for 400, got %d attempts", n)
	}
	if k := voice.KindOf(err); k != voice.KindProviderFailure {
		t.Errorf("Expected provider failure, got %s", k)
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["max_tokens"] != float64(120) {
			t.Errorf("Expected max_tokens 120 on retry, got %v", body["max_tokens"])
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello again"}}]}`))
	}, WithRetry(1, time.Millisecond))

	req := askFor("hi")
	req.MaxTokens = 120
	resp, err := client.Chat(context.Background(), req)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Message.Content != "hello again" || attempts.Load() != 2 {
		t.Errorf("Unexpected result %q after %d attempts", resp.Message.Content, attempts.Load())
	}
}

func TestClientGivesUpAfterRetries(t *testing.T) {
	var attempts atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}, WithRetry(2, time.Millisecond))

	_, err := client.Chat(context.Background(), askFor("hi"))
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.IsRateLimited() {
		t.Fatalf("Expected rate limit error, got %v", err)
	}
	if apiErr.Message != "Too Many Requests" {
		t.Errorf("Expected status text for empty body, got %q", apiErr.Message)
	}
	if n := attempts.Load(); n != 3 {
		t.Errorf("Expected 3 attempts, got %d", n)
	}
}

func TestClientEmptyReply(t *testing.T) {
	for _, body := range []string{
		`{"choices":[{"message":{"role":"assistant","content":"  "}}]}`,
		`{"choices":[]}`,
	} {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		})
		_, err := client.Chat(context.Background(), askFor("hi"))
		if !errors.Is(err, ErrEmptyResponse) {
			t.Errorf("%s: expected ErrEmptyResponse, got %v", body, err)
		}
	}
}

func TestClientCancelled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// The server only notices the client going away once the body is read.
		io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, WithRetry(3, time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := client.Chat(ctx, askFor("hi")); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestClientNoAPIKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("Expected no Authorization header for a local server")
		}
		w.Write([]byte(`{"data":[]}`))
	})
	if err := client.Health(context.Background()); err != nil {
		t.Errorf("Health failed: %v", err)
	}
}
