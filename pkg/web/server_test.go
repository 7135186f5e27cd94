package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-companion/pkg/response"
	"github.com/teslashibe/go-companion/pkg/session"
	"github.com/teslashibe/go-companion/pkg/voice"
)

func newSession(t *testing.T) *session.Orchestrator {
	t.Helper()
	cfg := voice.DefaultConfig().WithRevealInterval(time.Millisecond)
	o, err := session.New(
		session.WithConfig(cfg),
		session.WithResponder(response.New(response.WithConfig(cfg))),
	)
	if err != nil {
		t.Fatalf("session.New failed: %v", err)
	}
	t.Cleanup(func() { o.Close() })
	return o
}

func do(t *testing.T, s *Server, method, path, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, 2000)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func waitMessages(t *testing.T, o *session.Orchestrator, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for len(o.Messages()) < n || o.Status().Phase != session.PhaseIdle {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d messages", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStatus(t *testing.T) {
	s := NewServer(newSession(t))

	code, body := do(t, s, "GET", "/api/status", "")
	if code != 200 {
		t.Fatalf("Expected 200, got %d", code)
	}
	var st session.Status
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if st.Phase != session.PhaseIdle || st.Language != voice.DefaultLanguage {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestSendMessage(t *testing.T) {
	o := newSession(t)
	s := NewServer(o)

	code, _ := do(t, s, "POST", "/api/messages", `{"text":"I feel anxious about tomorrow"}`)
	if code != 200 {
		t.Fatalf("Expected 200, got %d", code)
	}
	waitMessages(t, o, 2)

	code, body := do(t, s, "GET", "/api/messages", "")
	if code != 200 {
		t.Fatalf("Expected 200, got %d", code)
	}
	var msgs []voice.Message
	json.Unmarshal(body, &msgs)
	if len(msgs) != 2 || !msgs[0].IsUser || msgs[1].IsUser {
		t.Errorf("unexpected feed: %+v", msgs)
	}

	code, body = do(t, s, "GET", "/api/metrics", "")
	var m MetricsResponse
	json.Unmarshal(body, &m)
	if code != 200 || m.Turns != 1 || m.Last.Tier != response.TierRules {
		t.Errorf("unexpected metrics: %d %+v", code, m)
	}
}

func TestSendMessage_Empty(t *testing.T) {
	s := NewServer(newSession(t))
	if code, _ := do(t, s, "POST", "/api/messages", `{"text":"  "}`); code != 400 {
		t.Errorf("Expected 400, got %d", code)
	}
	if code, _ := do(t, s, "POST", "/api/messages", `not json`); code != 400 {
		t.Errorf("Expected 400 for a bad body, got %d", code)
	}
}

func TestQuickActions(t *testing.T) {
	o := newSession(t)
	s := NewServer(o, WithQuickActions(map[string]string{"breathe": "Help me breathe slowly"}))

	code, body := do(t, s, "GET", "/api/quick", "")
	var actions []QuickAction
	json.Unmarshal(body, &actions)
	if code != 200 || len(actions) != 1 || actions[0].Name != "breathe" {
		t.Errorf("unexpected quick actions: %d %s", code, body)
	}

	if code, _ := do(t, s, "POST", "/api/quick/nope", ""); code != 404 {
		t.Errorf("Expected 404, got %d", code)
	}
	if code, _ := do(t, s, "POST", "/api/quick/breathe", ""); code != 200 {
		t.Fatalf("Expected 200, got %d", code)
	}
	waitMessages(t, o, 2)
	if got := o.Messages()[0].Text; got != "Help me breathe slowly" {
		t.Errorf("unexpected quick message %q", got)
	}
}

func TestListening_NoRecognizer(t *testing.T) {
	s := NewServer(newSession(t))
	if code, _ := do(t, s, "POST", "/api/listen/start", ""); code != 503 {
		t.Errorf("Expected 503, got %d", code)
	}
	if code, _ := do(t, s, "POST", "/api/listen/stop", ""); code != 200 {
		t.Errorf("Expected stop to be a no-op, got %d", code)
	}
}

func TestToggles(t *testing.T) {
	s := NewServer(newSession(t))

	code, body := do(t, s, "POST", "/api/auto-listen/toggle", "")
	var tr ToggleResponse
	json.Unmarshal(body, &tr)
	if code != 200 || !tr.Enabled {
		t.Errorf("Expected auto-listen enabled, got %d %s", code, body)
	}

	code, body = do(t, s, "POST", "/api/voice-output/toggle", "")
	tr = ToggleResponse{}
	json.Unmarshal(body, &tr)
	if code != 200 || tr.Enabled {
		t.Errorf("Expected voice output to stay off without a speaker, got %d %s", code, body)
	}
}

func TestLanguage(t *testing.T) {
	o := newSession(t)
	s := NewServer(o)

	if code, _ := do(t, s, "PUT", "/api/language", `{"language":"fr-FR"}`); code != 200 {
		t.Fatalf("Expected 200, got %d", code)
	}
	if o.Status().Language != "fr-FR" {
		t.Errorf("Expected fr-FR, got %s", o.Status().Language)
	}
	if code, _ := do(t, s, "PUT", "/api/language", `{"language":"x"}`); code != 400 {
		t.Errorf("Expected 400, got %d", code)
	}
}

func TestCancelAndRetry(t *testing.T) {
	s := NewServer(newSession(t))
	if code, _ := do(t, s, "POST", "/api/speaking/cancel", ""); code != 200 {
		t.Errorf("Expected 200, got %d", code)
	}
	if code, _ := do(t, s, "POST", "/api/retry", ""); code != 200 {
		t.Errorf("Expected 200, got %d", code)
	}
}

func TestStatusWS_RequiresUpgrade(t *testing.T) {
	s := NewServer(newSession(t))
	if code, _ := do(t, s, "GET", "/ws/status", ""); code != 426 {
		t.Errorf("Expected 426, got %d", code)
	}
}

func TestFail_StatusCodes(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{session.ErrBusy, 409},
		{session.ErrRetryRequired, 409},
		{session.ErrEmptyMessage, 400},
		{session.ErrInvalidLanguage, 400},
		{session.ErrNoRecognizer, 503},
		{session.ErrClosed, 503},
		{errors.New("boom"), 500},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			s := NewServer(newSession(t))
			s.App().Get("/fail", func(c *fiber.Ctx) error { return fail(c, tt.err) })
			if code, _ := do(t, s, "GET", "/fail", ""); code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, code)
			}
		})
	}
}
