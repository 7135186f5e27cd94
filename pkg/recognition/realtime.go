package recognition

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-companion/pkg/audioio"
	"github.com/teslashibe/go-companion/pkg/voice"
)

// RealtimeURL is the streaming transcription endpoint.
const RealtimeURL = "wss://api.openai.com/v1/realtime?intent=transcription"

// RealtimeConfig configures the native streaming capability.
type RealtimeConfig struct {
	APIKey string
	URL    string // default: RealtimeURL
	Model  string // default: gpt-4o-mini-transcribe

	// SoundLevel is the amplitude counted as sound. Default: 12.
	SoundLevel uint8

	// MaxDuration ends a session that never produces a final result. Default: 30s.
	MaxDuration time.Duration

	// DrainTimeout bounds the wait for a final result after Stop. Default: 2s.
	DrainTimeout time.Duration

	Logger *slog.Logger
}

// Realtime streams microphone audio over a websocket and receives interim
// and final transcripts with server-side voice activity detection.
type Realtime struct {
	cfg    RealtimeConfig
	open   audioio.SourceOpener
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewRealtime creates the capability.
func NewRealtime(open audioio.SourceOpener, cfg RealtimeConfig) *Realtime {
	if cfg.URL == "" {
		cfg.URL = RealtimeURL
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini-transcribe"
	}
	if cfg.SoundLevel == 0 {
		cfg.SoundLevel = 12
	}
	if cfg.MaxDuration == 0 {
		cfg.MaxDuration = 30 * time.Second
	}
	if cfg.DrainTimeout == 0 {
		cfg.DrainTimeout = 2 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Realtime{
		cfg:    cfg,
		open:   open,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger.With("component", "recognition.realtime"),
	}
}

// Name returns "realtime".
func (r *Realtime) Name() string { return "realtime" }

// Available reports whether an API key is configured.
func (r *Realtime) Available() bool { return r.cfg.APIKey != "" && r.open != nil }

// Supports accepts every language; the adapter routes non-default ones to the cloud.
func (r *Realtime) Supports(voice.Language) bool { return true }

// Start connects, configures the transcription session and opens the microphone.
func (r *Realtime) Start(ctx context.Context, lang voice.Language) (Session, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	ws, resp, err := r.dialer.DialContext(ctx, r.cfg.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, voice.NewCodeError(voice.KindServiceBlocked, fmt.Sprintf("http_%d", resp.StatusCode), err)
		}
		return nil, voice.NewError(voice.KindNetwork, fmt.Errorf("failed to connect to realtime transcription: %w", err))
	}

	s := &realtimeSession{
		rt:      r,
		ws:      ws,
		events:  make(chan Event, 64),
		stop:    make(chan struct{}),
		readEnd: make(chan struct{}),
		interim: make(map[string]string),
	}

	if err := s.sendJSON(r.sessionUpdate(lang)); err != nil {
		ws.Close()
		return nil, voice.NewError(voice.KindNetwork, err)
	}

	src, err := r.open()
	if err != nil {
		ws.Close()
		return nil, audioio.ClassifyDeviceError(err)
	}
	if err := src.Start(ctx); err != nil {
		src.Close()
		ws.Close()
		return nil, audioio.ClassifyDeviceError(err)
	}
	s.src = src

	go s.run(ctx)
	return s, nil
}

func (r *Realtime) sessionUpdate(lang voice.Language) map[string]any {
	return map[string]any{
		"type": "transcription_session.update",
		"session": map[string]any{
			"input_audio_format": "pcm16",
			"input_audio_transcription": map[string]any{
				"model":    r.cfg.Model,
				"language": lang.Base(),
			},
			"turn_detection": map[string]any{
				"type":                "server_vad",
				"threshold":           0.5,
				"prefix_padding_ms":   300,
				"silence_duration_ms": 500,
			},
			"input_audio_noise_reduction": map[string]any{
				"type": "near_field",
			},
		},
	}
}

type realtimeSession struct {
	rt  *Realtime
	ws  *websocket.Conn
	src audioio.Source

	wsMu     sync.Mutex
	events   chan Event
	stop     chan struct{}
	stopOnce sync.Once
	readEnd  chan struct{}

	// interim text per conversation item, owned by the reader goroutine
	interim map[string]string
}

func (s *realtimeSession) Events() <-chan Event { return s.events }

func (s *realtimeSession) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *realtimeSession) sendJSON(v any) error {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	s.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.ws.WriteJSON(v)
}

func (s *realtimeSession) send(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

// run pumps microphone audio until stop, cancellation or the duration
// bound, then waits briefly for the last transcript.
func (s *realtimeSession) run(ctx context.Context) {
	defer close(s.events)

	finals := make(chan struct{}, 8)
	go s.readLoop(ctx, finals)

	r := s.rt
	maxTimer := time.NewTimer(r.cfg.MaxDuration)
	defer maxTimer.Stop()

	heard := false
	stream := s.src.Stream()
	graceful := false

pump:
	for {
		select {
		case <-ctx.Done():
			break pump
		case <-s.stop:
			graceful = true
			break pump
		case <-maxTimer.C:
			graceful = true
			break pump
		case <-s.readEnd:
			break pump
		case chunk, ok := <-stream:
			if !ok {
				graceful = true
				break pump
			}
			level := chunk.Level()
			s.send(ctx, LevelEvent(level, time.Time{}))
			if !heard && level >= r.cfg.SoundLevel {
				heard = true
				s.send(ctx, Event{Type: EventSound})
			}
			pcm := audioio.SamplesToBytes(audioio.ToMono(chunk, 24000))
			err := s.sendJSON(map[string]string{
				"type":  "input_audio_buffer.append",
				"audio": base64.StdEncoding.EncodeToString(pcm),
			})
			if err != nil {
				s.send(ctx, ErrorEvent(voice.NewError(voice.KindNetwork, err), time.Time{}))
				break pump
			}
		}
	}

	s.src.Stop()
	s.src.Close()

	if graceful && heard && ctx.Err() == nil {
		_ = s.sendJSON(map[string]string{"type": "input_audio_buffer.commit"})
		drain := time.NewTimer(r.cfg.DrainTimeout)
		select {
		case <-finals:
		case <-drain.C:
		case <-s.readEnd:
		case <-ctx.Done():
		}
		drain.Stop()
	}

	s.wsMu.Lock()
	_ = s.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.wsMu.Unlock()
	s.ws.Close()
	<-s.readEnd
}

type realtimeMessage struct {
	Type       string `json:"type"`
	ItemID     string `json:"item_id"`
	Delta      string `json:"delta"`
	Transcript string `json:"transcript"`
	Error      *struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *realtimeSession) readLoop(ctx context.Context, finals chan<- struct{}) {
	defer close(s.readEnd)

	for {
		s.ws.SetReadDeadline(time.Now().Add(120 * time.Second))
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !isClosedConn(err) && ctx.Err() == nil {
				select {
				case <-s.stop:
				default:
					s.send(ctx, ErrorEvent(voice.NewError(voice.KindNetwork, err), time.Time{}))
				}
			}
			return
		}

		var msg realtimeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "input_audio_buffer.speech_started":
			s.send(ctx, Event{Type: EventSpeech})

		case "conversation.item.input_audio_transcription.delta":
			s.interim[msg.ItemID] += msg.Delta
			s.send(ctx, Result(s.interim[msg.ItemID], false, time.Now()))

		case "conversation.item.input_audio_transcription.completed":
			delete(s.interim, msg.ItemID)
			s.send(ctx, Result(strings.TrimSpace(msg.Transcript), true, time.Now()))
			select {
			case finals <- struct{}{}:
			default:
			}

		case "error":
			if msg.Error == nil {
				continue
			}
			code := msg.Error.Code
			if code == "" {
				code = msg.Error.Type
			}
			s.rt.logger.Warn("realtime transcription error", "code", code, "message", msg.Error.Message)
			s.send(ctx, ErrorEvent(MapErrorCode(code, errors.New(msg.Error.Message)), time.Time{}))
		}
	}
}

func isClosedConn(err error) bool {
	return err != nil && strings.Contains(err.Error(), "use of closed network connection")
}

var _ Capability = (*Realtime)(nil)
