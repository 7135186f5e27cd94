package response

import "time"

// Profile is the instruction payload and bounds for one model tier.
type Profile struct {
	// Instruction is sent as the system message.
	Instruction string

	// ContextMessages is how many recent messages accompany the transcript.
	ContextMessages int

	// MaxTokens bounds the reply length.
	MaxTokens int

	// Timeout bounds the whole tier attempt.
	Timeout time.Duration
}

// FullInstruction is the primary tier's structured instruction.
const FullInstruction = `You are a calm, supportive wellbeing companion speaking with the user by voice.

Tone:
- Warm, plain and encouraging. Never clinical or judgmental.
- Speak naturally, as in a spoken conversation. No lists, markdown or emoji.

Safety:
- You are not a therapist and do not diagnose or prescribe.
- If the user mentions self-harm or suicide, encourage them to contact a crisis line or emergency services right away.
- Do not give medical, legal or financial advice.

Length:
- Reply in two to four short sentences.
- When it fits, offer one small, concrete coping step such as a breathing exercise.`

// BriefInstruction is the secondary tier's simpler instruction.
const BriefInstruction = "You are a kind wellbeing companion. Reply in one or two short, supportive sentences. " +
	"Do not diagnose. If the user mentions self-harm, point them to a crisis line."

// FullProfile returns the primary tier profile.
func FullProfile(contextMessages int, timeout time.Duration) Profile {
	return Profile{
		Instruction:     FullInstruction,
		ContextMessages: contextMessages,
		MaxTokens:       220,
		Timeout:         timeout,
	}
}

// BriefProfile returns the secondary tier profile. It carries no history.
func BriefProfile(timeout time.Duration) Profile {
	return Profile{
		Instruction: BriefInstruction,
		MaxTokens:   90,
		Timeout:     timeout,
	}
}
