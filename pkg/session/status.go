package session

import (
	"sync"

	"github.com/teslashibe/go-companion/pkg/voice"
)

// Phase is the orchestrator state.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseCalibrating Phase = "calibrating"
	PhaseListening   Phase = "listening"
	PhaseAggregating Phase = "aggregating"
	PhaseResponding  Phase = "responding"
	PhaseSpeaking    Phase = "speaking"
	PhaseError       Phase = "error"
)

// Busy reports whether the phase holds one of the busy flags.
func (p Phase) Busy() bool {
	return p != PhaseIdle && p != PhaseError
}

// Status is the reactive snapshot shown by user interfaces.
// The three busy flags derive from Phase, so at most one is set.
type Status struct {
	Phase       Phase `json:"phase"`
	IsListening bool  `json:"isListening"`
	IsStreaming bool  `json:"isStreaming"`
	IsSpeaking  bool  `json:"isSpeaking"`

	// InterimText is the "hearing: ..." feedback of the current attempt.
	InterimText string `json:"interimText"`

	// ReplyText is the part of the reply revealed so far.
	ReplyText string `json:"replyText"`

	ErrorMessage string          `json:"errorMessage,omitempty"`
	ErrorKind    voice.ErrorKind `json:"errorKind,omitempty"`
	Recoverable  bool            `json:"recoverable"`

	// Warning carries the low input notice from calibration.
	Warning string `json:"warning,omitempty"`

	AudioLevel uint8  `json:"audioLevel"`
	Capability string `json:"capability,omitempty"`

	AutoListen  bool           `json:"autoListen"`
	VoiceOutput bool           `json:"voiceOutput"`
	Language    voice.Language `json:"language"`
}

func flagsFor(s *Status) {
	s.IsListening = s.Phase == PhaseCalibrating || s.Phase == PhaseListening || s.Phase == PhaseAggregating
	s.IsStreaming = s.Phase == PhaseResponding
	s.IsSpeaking = s.Phase == PhaseSpeaking
}

// Update is delivered to observers. Exactly one field is set.
type Update struct {
	Status  *Status        `json:"status,omitempty"`
	Message *voice.Message `json:"message,omitempty"`
}

// Observer receives updates on its own goroutine, in order.
type Observer func(Update)

// subscriber queues updates for one observer. Consecutive status updates
// collapse into the newest so a slow observer never lags behind by more
// than one snapshot.
type subscriber struct {
	fn Observer

	mu      sync.Mutex
	pending []Update
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

func newSubscriber(fn Observer) *subscriber {
	s := &subscriber{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *subscriber) push(u Update) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if n := len(s.pending); n > 0 && u.Status != nil && s.pending[n-1].Status != nil {
		s.pending[n-1] = u
	} else {
		s.pending = append(s.pending, u)
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) run() {
	defer close(s.done)
	for range s.wake {
		for {
			s.mu.Lock()
			if len(s.pending) == 0 {
				closed := s.closed
				s.mu.Unlock()
				if closed {
					return
				}
				break
			}
			u := s.pending[0]
			s.pending = s.pending[1:]
			s.mu.Unlock()

			s.fn(u)
		}
	}
}
