//go:build integration

package tts_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/teslashibe/go-companion/pkg/tts"
)

// Run with: go test -tags=integration ./pkg/tts/...
// Each provider is skipped unless its key is in the environment.

const replyText = "That sounds like a heavy day. Let's take one slow breath together."

func liveProviders(t *testing.T) []tts.Provider {
	t.Helper()
	var out []tts.Provider

	if key := os.Getenv("ELEVENLABS_API_KEY"); key != "" {
		voiceID := os.Getenv("ELEVENLABS_VOICE_ID")
		if voiceID == "" {
			voiceID = tts.ResolveVoice(tts.ProviderElevenLabs, tts.DefaultVoice(tts.ProviderElevenLabs))
		}
		el, err := tts.NewElevenLabs(tts.WithAPIKey(key), tts.WithVoice(voiceID), tts.WithLanguage("en"))
		if err != nil {
			t.Fatalf("elevenlabs: %v", err)
		}
		out = append(out, el)
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		oai, err := tts.NewOpenAI(tts.WithAPIKey(key), tts.WithVoice(tts.VoiceSage))
		if err != nil {
			t.Fatalf("openai: %v", err)
		}
		out = append(out, oai)
	}
	if len(out) == 0 {
		t.Skip("no speech API keys set")
	}
	return out
}

func drain(t *testing.T, stream tts.AudioStream) (bytes, chunks int) {
	t.Helper()
	defer stream.Close()
	for {
		chunk, err := stream.Read()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if chunk == nil {
			return bytes, chunks
		}
		bytes += len(chunk)
		chunks++
	}
}

func TestProvidersIntegration(t *testing.T) {
	for _, p := range liveProviders(t) {
		t.Run(p.Name(), func(t *testing.T) {
			defer p.Close()
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := p.Health(ctx); err != nil {
				t.Fatalf("health: %v", err)
			}

			start := time.Now()
			stream, err := p.Stream(ctx, replyText)
			if err != nil {
				t.Fatalf("stream: %v", err)
			}
			if stream.Format() != tts.PCM24 {
				t.Errorf("expected PCM24, got %+v", stream.Format())
			}
			n, chunks := drain(t, stream)
			d := tts.PCMDuration(n, tts.PCM24.SampleRate)
			t.Logf("%d bytes in %d chunks, %v of audio in %v", n, chunks, d, time.Since(start))
			if d < time.Second {
				t.Errorf("audio too short: %v", d)
			}
		})
	}
}

func TestChainIntegration(t *testing.T) {
	providers := liveProviders(t)
	blocked, err := tts.NewOpenAI(tts.WithAPIKey("sk-invalid"), tts.WithRetry(0, 0))
	if err != nil {
		t.Fatalf("openai: %v", err)
	}
	chain, err := tts.NewChain(append([]tts.Provider{blocked}, providers...)...)
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	defer chain.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stream, err := chain.Stream(ctx, replyText)
	if err != nil {
		t.Fatalf("chain should fall past the rejected key: %v", err)
	}
	if n, _ := drain(t, stream); n == 0 {
		t.Error("expected audio from fallback")
	}
}
