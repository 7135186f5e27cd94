// Package inference provides language-model providers for reply generation.
//
// Providers sit behind a single Provider interface so the response pipeline
// can rank them into tiers: Gemini through the genai SDK, and any
// OpenAI-compatible endpoint (OpenAI, Ollama, vLLM, a self-hosted gateway)
// through Client.
//
// Example usage:
//
//	primary, _ := inference.NewGemini(ctx,
//	    inference.WithAPIKey(os.Getenv("GEMINI_API_KEY")),
//	)
//	secondary, _ := inference.NewClient(
//	    inference.WithBaseURL("http://localhost:11434/v1"),
//	    inference.WithModel("llama3.2"),
//	)
//
//	resp, _ := primary.Chat(ctx, &inference.ChatRequest{
//	    Messages: []inference.Message{
//	        inference.NewSystemMessage("Be brief and kind."),
//	        inference.NewUserMessage("I had a long day."),
//	    },
//	})
package inference

import "context"

// Provider generates one chat reply per call. Implementations must honour
// ctx, since the response pipeline cancels slower tiers.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	Health(ctx context.Context) error
	Close() error
}

// ChatRequest carries the conversation so far. Zero Model, MaxTokens and
// Temperature fall back to the provider's configured defaults.
type ChatRequest struct {
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature float64
}

type ChatResponse struct {
	Message      Message
	FinishReason string
	Usage        Usage
	Model        string
	LatencyMs    int64
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
