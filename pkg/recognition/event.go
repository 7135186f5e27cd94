package recognition

import (
	"time"

	"github.com/teslashibe/go-companion/pkg/voice"
)

// EventType identifies a step in a listening attempt's lifecycle.
type EventType int

const (
	EventStarting EventType = iota
	EventSound
	EventSpeech
	EventResult
	EventLevel
	EventError
	EventEnded
)

func (t EventType) String() string {
	switch t {
	case EventStarting:
		return "starting"
	case EventSound:
		return "sound"
	case EventSpeech:
		return "speech"
	case EventResult:
		return "result"
	case EventLevel:
		return "level"
	case EventError:
		return "error"
	case EventEnded:
		return "ended"
	}
	return "unknown"
}

// TranscriptEvent is one interim or final recognition result.
type TranscriptEvent struct {
	Text    string    `json:"text"`
	IsFinal bool      `json:"isFinal"`
	At      time.Time `json:"at"`
}

// Event is one item of a listening attempt's event stream.
// Only the field matching Type is set.
type Event struct {
	Type       EventType
	Transcript TranscriptEvent // EventResult
	Level      uint8           // EventLevel
	Err        *voice.Error    // EventError
	At         time.Time
}

// Result builds a transcript event.
func Result(text string, final bool, at time.Time) Event {
	return Event{Type: EventResult, Transcript: TranscriptEvent{Text: text, IsFinal: final, At: at}, At: at}
}

// ErrorEvent builds an error event.
func ErrorEvent(err *voice.Error, at time.Time) Event {
	return Event{Type: EventError, Err: err, At: at}
}

// LevelEvent builds a microphone level event.
func LevelEvent(level uint8, at time.Time) Event {
	return Event{Type: EventLevel, Level: level, At: at}
}
