package recognition

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-companion/internal/httpc"
	"github.com/teslashibe/go-companion/pkg/voice"
)

// WhisperConfig configures an OpenAI-compatible transcription endpoint.
type WhisperConfig struct {
	BaseURL    string // default: https://api.openai.com/v1
	APIKey     string
	Model      string // default: whisper-1
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Whisper uploads recordings to /audio/transcriptions as WAV.
type Whisper struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	logger  *slog.Logger
}

// NewWhisper creates the transcriber.
func NewWhisper(cfg WhisperConfig) *Whisper {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = httpc.NewClient(cfg.Timeout)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Whisper{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		http:    client,
		logger:  logger.With("component", "recognition.whisper"),
	}
}

// Name returns "whisper".
func (w *Whisper) Name() string { return "whisper" }

// Transcribe uploads the recording and returns its text.
func (w *Whisper) Transcribe(ctx context.Context, audio Audio) (string, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	_ = mw.WriteField("model", w.model)
	_ = mw.WriteField("response_format", "json")
	if lang := audio.Language.Base(); lang != "" {
		_ = mw.WriteField("language", lang)
	}
	part, err := mw.CreateFormFile("file", "speech.wav")
	if err != nil {
		return "", err
	}
	if err := WriteWAV(part, audio.PCM, audio.SampleRate, 1); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/audio/transcriptions", body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	resp, err := w.http.Do(req)
	if err != nil {
		return "", voice.AsError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", w.parseError(resp)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", voice.NewCodeError(voice.KindUnknown, "decode", fmt.Errorf("decode transcription: %w", err))
	}
	return result.Text, nil
}

func (w *Whisper) parseError(resp *http.Response) error {
	data := httpc.ErrorBody(resp)

	var payload struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &payload) == nil && payload.Error.Message != "" {
		msg = payload.Error.Message
	}
	cause := fmt.Errorf("transcription API error %d: %s", resp.StatusCode, msg)

	if payload.Error.Code != "" {
		if kind, ok := errorCodes[payload.Error.Code]; ok {
			return voice.NewCodeError(kind, payload.Error.Code, cause)
		}
	}
	code := fmt.Sprintf("http_%d", resp.StatusCode)
	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return voice.NewCodeError(voice.KindServiceBlocked, code, cause)
	case httpc.Retryable(resp.StatusCode):
		return voice.NewCodeError(voice.KindNetwork, code, cause)
	}
	return voice.NewCodeError(voice.KindUnknown, code, cause)
}

// WriteWAV writes PCM16 data with a canonical 44-byte RIFF header.
func WriteWAV(w io.Writer, pcm []byte, sampleRate, channels int) error {
	header := struct {
		ChunkID       [4]byte
		ChunkSize     uint32
		Format        [4]byte
		Subchunk1ID   [4]byte
		Subchunk1Size uint32
		AudioFormat   uint16
		NumChannels   uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
		Subchunk2ID   [4]byte
		Subchunk2Size uint32
	}{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + len(pcm)),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * channels * 2),
		BlockAlign:    uint16(channels * 2),
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(len(pcm)),
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return err
	}
	_, err := w.Write(pcm)
	return err
}

var _ Transcriber = (*Whisper)(nil)
