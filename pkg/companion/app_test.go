package companion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/teslashibe/go-companion/internal/config"
	"github.com/teslashibe/go-companion/internal/log"
	"github.com/teslashibe/go-companion/pkg/audioio"
	"github.com/teslashibe/go-companion/pkg/response"
	"github.com/teslashibe/go-companion/pkg/session"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Store.Backend = "memory"
	cfg.Audio.Backend = audioio.BackendMock
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Voice.RevealInterval = time.Millisecond
	return cfg
}

func newApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	app, err := New(cfg, WithLogger(log.Discard()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := app.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(app.Shutdown)
	return app
}

func waitMessages(t *testing.T, s *session.Orchestrator, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(s.Messages()) >= n && s.Status().Phase == session.PhaseIdle {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Expected %d messages, got %d", n, len(s.Messages()))
}

func TestNew_Errors(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Backend = "redis"
	if _, err := New(cfg); err == nil {
		t.Error("Expected error for unknown store backend")
	}

	if _, err := New(testConfig(), WithServer(false)); err == nil {
		t.Error("Expected error with no front-end")
	}
}

func TestInit_TextOnly(t *testing.T) {
	app := newApp(t, testConfig())
	s := app.Session()

	if app.Server() == nil {
		t.Fatal("Expected HTTP server")
	}
	if err := s.StartListening(); !errors.Is(err, session.ErrNoRecognizer) {
		t.Errorf("Expected ErrNoRecognizer, got %v", err)
	}
	if s.Status().VoiceOutput {
		t.Error("voice output should be off without a speech provider")
	}

	if err := s.SendTypedMessage("I feel anxious"); err != nil {
		t.Fatalf("SendTypedMessage failed: %v", err)
	}
	waitMessages(t, s, 2)

	last, _, turns := s.Metrics()
	if turns != 1 || last.Tier != response.TierRules {
		t.Errorf("Expected one rules turn, got turns=%d tier=%d", turns, last.Tier)
	}
}

func TestInit_SecondaryTier(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "Let's slow down together."}},
			},
		})
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Response.Secondary.BaseURL = server.URL
	app := newApp(t, cfg)
	s := app.Session()

	if err := s.SendTypedMessage("I can't focus today"); err != nil {
		t.Fatalf("SendTypedMessage failed: %v", err)
	}
	waitMessages(t, s, 2)

	msgs := s.Messages()
	if got := msgs[len(msgs)-1].Text; got != "Let's slow down together." {
		t.Errorf("unexpected reply %q", got)
	}
	if last, _, _ := s.Metrics(); last.Tier != response.TierSecondary {
		t.Errorf("Expected secondary tier, got %d", last.Tier)
	}
}

func TestInit_VoiceInput(t *testing.T) {
	cfg := testConfig()
	cfg.Recognition.Cloud.Whisper.BaseURL = "http://127.0.0.1:1/v1"
	app := newApp(t, cfg)
	s := app.Session()

	if err := s.StartListening(); err != nil {
		t.Fatalf("StartListening failed: %v", err)
	}
	if !s.Status().IsListening {
		t.Error("Expected listening status")
	}
	if err := s.StopListening(); err != nil {
		t.Errorf("StopListening failed: %v", err)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	app := newApp(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_BeforeInit(t *testing.T) {
	app, err := New(testConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := app.Run(context.Background()); err == nil {
		t.Error("Expected error when Run precedes Init")
	}
}
