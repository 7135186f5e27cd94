package voice

import (
	"sync"
	"time"
)

// Metrics tracks latency at each stage of one conversation turn.
// Durations are measured from the moment the attempt started.
type Metrics struct {
	// Timestamps for key events
	StartTime      time.Time `json:"startTime"`      // When listening (or a typed message) began
	TranscriptTime time.Time `json:"transcriptTime"` // When the transcript was finalized
	ReplyTime      time.Time `json:"replyTime"`      // When the reply text was complete
	FirstAudioTime time.Time `json:"firstAudioTime"` // When playback started
	DoneTime       time.Time `json:"doneTime"`       // When the turn ended

	// Computed latencies (from start)
	CalibrationLatency time.Duration `json:"calibrationLatency"`
	TranscriptLatency  time.Duration `json:"transcriptLatency"`
	ReplyLatency       time.Duration `json:"replyLatency"`
	SpeechLatency      time.Duration `json:"speechLatency"`
	TotalLatency       time.Duration `json:"totalLatency"`

	// Which response tier produced the reply (0 when none)
	Tier int `json:"tier"`
}

// MetricsCollector collects latency metrics across turns.
// It is goroutine-safe.
type MetricsCollector struct {
	mu      sync.Mutex
	current Metrics
	history []Metrics
	limit   int
	now     func() time.Time
}

// NewMetricsCollector creates a collector keeping the last 100 turns.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		history: make([]Metrics, 0, 100),
		limit:   100,
		now:     time.Now,
	}
}

// MarkStart begins a new turn.
func (m *MetricsCollector) MarkStart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = Metrics{StartTime: m.now()}
}

// MarkCalibrated records how long calibration took.
func (m *MetricsCollector) MarkCalibrated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.current.StartTime.IsZero() {
		m.current.CalibrationLatency = m.now().Sub(m.current.StartTime)
	}
}

// MarkTranscript records when the transcript was finalized.
func (m *MetricsCollector) MarkTranscript() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.TranscriptTime = m.now()
	m.current.TranscriptLatency = m.since(m.current.TranscriptTime)
}

// MarkReply records when the reply was produced and by which tier.
func (m *MetricsCollector) MarkReply(tier int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.ReplyTime = m.now()
	m.current.ReplyLatency = m.since(m.current.ReplyTime)
	m.current.Tier = tier
}

// MarkFirstAudio records when speech output started. Later calls are ignored.
func (m *MetricsCollector) MarkFirstAudio() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.FirstAudioTime.IsZero() {
		m.current.FirstAudioTime = m.now()
		m.current.SpeechLatency = m.since(m.current.FirstAudioTime)
	}
}

// MarkDone archives the current turn.
func (m *MetricsCollector) MarkDone() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.StartTime.IsZero() {
		return
	}
	m.current.DoneTime = m.now()
	m.current.TotalLatency = m.since(m.current.DoneTime)
	m.history = append(m.history, m.current)
	if len(m.history) > m.limit {
		m.history = m.history[1:]
	}
	m.current = Metrics{}
}

// since must be called with mu held.
func (m *MetricsCollector) since(t time.Time) time.Duration {
	if m.current.StartTime.IsZero() {
		return 0
	}
	return t.Sub(m.current.StartTime)
}

// Current returns the in-progress turn.
func (m *MetricsCollector) Current() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Last returns the most recently completed turn.
func (m *MetricsCollector) Last() (Metrics, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.history) == 0 {
		return Metrics{}, false
	}
	return m.history[len(m.history)-1], true
}

// Turns returns the number of archived turns.
func (m *MetricsCollector) Turns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// Average returns average latencies over recent turns.
func (m *MetricsCollector) Average() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history) == 0 {
		return Metrics{}
	}

	var avg Metrics
	for _, h := range m.history {
		avg.CalibrationLatency += h.CalibrationLatency
		avg.TranscriptLatency += h.TranscriptLatency
		avg.ReplyLatency += h.ReplyLatency
		avg.SpeechLatency += h.SpeechLatency
		avg.TotalLatency += h.TotalLatency
	}

	n := time.Duration(len(m.history))
	avg.CalibrationLatency /= n
	avg.TranscriptLatency /= n
	avg.ReplyLatency /= n
	avg.SpeechLatency /= n
	avg.TotalLatency /= n

	return avg
}

// FormatLatency returns a one-line summary of the latencies.
func (m *Metrics) FormatLatency() string {
	return formatDuration(m.CalibrationLatency) + " MIC | " +
		formatDuration(m.TranscriptLatency) + " STT | " +
		formatDuration(m.ReplyLatency) + " REPLY | " +
		formatDuration(m.SpeechLatency) + " TTS | " +
		formatDuration(m.TotalLatency) + " TOTAL"
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}
