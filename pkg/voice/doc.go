// Package voice holds the vocabulary shared by every stage of the voice
// conversation loop: timing configuration, the closed error taxonomy with its
// remediation messages, conversation messages and per-turn latency metrics.
//
// The stages themselves live in sibling packages:
//
//	calibration  -> measure microphone input before recognition
//	recognition  -> speech-to-text capabilities behind one event stream
//	transcript   -> fold recognition events into one outcome per attempt
//	response     -> tiered reply generation with a rule-based safety net
//	playback     -> speak a reply, cancellable at any time
//	session      -> the state machine that sequences all of the above
//
// # Errors
//
// Every component reports failures as *voice.Error. The Kind selects a
// human-readable remediation from the Remediations table, so wording can change
// without touching control flow:
//
//	err := voice.NewError(voice.KindPermissionDenied, cause)
//	fmt.Println(err.Message)     // "Microphone access was blocked. ..."
//	fmt.Println(err.Recoverable) // false
//
// # Configuration
//
// Config carries the tunable thresholds and timers. Builders return copies:
//
//	cfg := voice.DefaultConfig().
//	    WithNoSpeechTimeout(6 * time.Second).
//	    WithAutoListenDelay(400 * time.Millisecond)
package voice
