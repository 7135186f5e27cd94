// Package tts synthesizes assistant replies to speech.
//
// ElevenLabs and OpenAI are supported behind the Provider interface, and
// Chain tries providers in order so a failing voice service degrades to the
// next one. Providers are configured for raw 24kHz mono PCM16 so audio can
// go straight to an audioio.Sink without decoding.
//
// Example usage:
//
//	primary, _ := tts.NewElevenLabs(
//	    tts.WithAPIKey(os.Getenv("ELEVENLABS_API_KEY")),
//	    tts.WithVoice(tts.ResolveVoice(tts.ProviderElevenLabs, "rachel")),
//	)
//	backup, _ := tts.NewOpenAI(tts.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
//	chain, _ := tts.NewChain(primary, backup)
//
//	stream, _ := chain.Stream(ctx, "Let's take a slow breath together.")
//	defer stream.Close()
package tts

import (
	"context"
	"time"
)

// Provider turns one reply into speech.
type Provider interface {
	Name() string
	// Synthesize returns the whole utterance at once.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)
	// Stream returns audio as it is generated, so playback can start on
	// the first chunk.
	Stream(ctx context.Context, text string) (AudioStream, error)
	Health(ctx context.Context) error
	Close() error
}

// AudioStream yields PCM chunks. Read returns (nil, nil) at the end of
// the utterance; Close may be called early to abandon it.
type AudioStream interface {
	Read() ([]byte, error)
	Close() error
	Format() AudioFormat
}

type AudioResult struct {
	Audio     []byte
	Format    AudioFormat
	Duration  time.Duration
	CharCount int
	LatencyMs int64 // time to first byte
}

type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	BitDepth   int
}

// Encoding names a raw PCM rate using the ElevenLabs output_format
// values, which OpenAI requests map onto.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm_16000"
	EncodingPCM22 Encoding = "pcm_22050"
	EncodingPCM24 Encoding = "pcm_24000"
	EncodingPCM44 Encoding = "pcm_44100"
)

// PCM24 is the format every provider in this package produces by default.
var PCM24 = AudioFormat{Encoding: EncodingPCM24, SampleRate: 24000, Channels: 1, BitDepth: 16}

// VoiceSettings are ElevenLabs delivery controls, each 0..1 except
// SpeakerBoost. Higher Stability sounds steadier and less expressive.
type VoiceSettings struct {
	Stability       float64
	SimilarityBoost float64
	Style           float64
	SpeakerBoost    bool
}

// DefaultVoiceSettings favours a steady, calm delivery.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.7,
		SimilarityBoost: 0.75,
		Style:           0.0,
		SpeakerBoost:    true,
	}
}

// SampleRateFromEncoding defaults to 24kHz for encodings it does not know.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingPCM16:
		return 16000
	case EncodingPCM22:
		return 22050
	case EncodingPCM44:
		return 44100
	default:
		return 24000
	}
}

// PCMDuration returns the playback time of n bytes of mono PCM16 at rate.
func PCMDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(n/2) * time.Second / time.Duration(rate)
}
