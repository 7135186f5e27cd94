package tts

import "strings"

// Provider names accepted by ResolveVoice.
const (
	ProviderElevenLabs = "elevenlabs"
	ProviderOpenAI     = "openai"
)

// voicePresets maps friendly names to provider voice IDs. The presets are
// the calmer voices of each service.
var voicePresets = map[string]map[string]string{
	ProviderElevenLabs: {
		"rachel":    "21m00Tcm4TlvDq8ikWAM", // American female, calm
		"sarah":     "EXAVITQu4vr4xnSDxMaL", // American female, soft
		"charlotte": "XB0fDUnXU5powFXDhCwa", // British female, warm
		"lily":      "pFZP5JQG7iQjIQuC4Bku", // British female, warm
		"adam":      "pNInz6obpgDQGcFmaJgB", // American male, deep
	},
	ProviderOpenAI: {
		"shimmer": VoiceShimmer,
		"nova":    VoiceNova,
		"alloy":   VoiceAlloy,
		"sage":    VoiceSage,
	},
}

// DefaultVoice returns the default preset name for a provider.
func DefaultVoice(provider string) string {
	if provider == ProviderOpenAI {
		return "shimmer"
	}
	return "rachel"
}

// ResolveVoice returns the voice ID for a preset name, or name unchanged
// when it is not a known preset (assumed to be a raw voice ID).
func ResolveVoice(provider, name string) string {
	if id, ok := voicePresets[provider][strings.ToLower(name)]; ok {
		return id
	}
	return name
}

// IsPreset reports whether name is a known preset for provider.
func IsPreset(provider, name string) bool {
	_, ok := voicePresets[provider][strings.ToLower(name)]
	return ok
}
