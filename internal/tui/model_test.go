package tui

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/teslashibe/go-companion/pkg/session"
	"github.com/teslashibe/go-companion/pkg/voice"
)

type fakeController struct {
	mu       sync.Mutex
	status   session.Status
	messages []voice.Message
	calls    []string
	sent     []string
	err      error
}

func (f *fakeController) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeController) Status() session.Status { return f.status }
func (f *fakeController) Messages() []voice.Message { return f.messages }
func (f *fakeController) Subscribe(fn session.Observer) func() {
	return func() {}
}
func (f *fakeController) StartListening() error { return f.record("start") }
func (f *fakeController) StopListening() error { return f.record("stop") }
func (f *fakeController) SendTypedMessage(text string) error {
	f.mu.Lock()
	f.sent = append(f.sent, text)
	f.mu.Unlock()
	return f.record("send")
}
func (f *fakeController) ToggleAutoListen() (bool, error) { return true, f.record("auto") }
func (f *fakeController) ToggleVoiceOutput() (bool, error) { return true, f.record("voice") }
func (f *fakeController) CancelSpeaking() error { return f.record("cancel") }
func (f *fakeController) Retry() error { return f.record("retry") }

func (f *fakeController) lastCall() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return ""
	}
	return f.calls[len(f.calls)-1]
}

// press sends a key and runs the resulting command, if any.
func press(t *testing.T, m Model, key tea.KeyMsg) (Model, tea.Msg) {
	t.Helper()
	updated, cmd := m.Update(key)
	var out tea.Msg
	if cmd != nil {
		out = cmd()
	}
	return updated.(Model), out
}

func typeText(m Model, text string) Model {
	for _, r := range text {
		var key tea.KeyMsg
		if r == ' ' {
			key = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
		} else {
			key = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
		}
		updated, _ := m.Update(key)
		m = updated.(Model)
	}
	return m
}

func TestInit_LoadsSnapshot(t *testing.T) {
	ctrl := &fakeController{
		status:   session.Status{Phase: session.PhaseIdle, Language: "en-US", AutoListen: true},
		messages: []voice.Message{voice.NewMessage("hello", true, time.Now())},
	}
	m := New(ctrl)

	msg := m.Init()()
	updated, _ := m.Update(msg)
	model := updated.(Model)

	if !model.loaded {
		t.Error("model should be loaded after snapshot")
	}
	if len(model.messages) != 1 || model.messages[0].Text != "hello" {
		t.Errorf("unexpected messages: %+v", model.messages)
	}
	if model.status.Language != "en-US" {
		t.Errorf("Expected language en-US, got %q", model.status.Language)
	}
}

func TestSnapshot_KeepsEarlierUpdates(t *testing.T) {
	m := New(&fakeController{})
	early := voice.NewMessage("arrived first", false, time.Now())
	updated, _ := m.Update(ChatMsg{Message: early})
	m = updated.(Model)

	older := voice.NewMessage("from history", true, time.Now().Add(-time.Minute))
	updated, _ = m.Update(SnapshotMsg{Messages: []voice.Message{older, early}})
	m = updated.(Model)

	if len(m.messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(m.messages))
	}
	if m.messages[0].ID != older.ID || m.messages[1].ID != early.ID {
		t.Error("messages out of order")
	}
}

func TestChatMsg_IgnoresDuplicates(t *testing.T) {
	m := New(&fakeController{})
	msg := voice.NewMessage("hi", true, time.Now())
	for i := 0; i < 2; i++ {
		updated, _ := m.Update(ChatMsg{Message: msg})
		m = updated.(Model)
	}
	if len(m.messages) != 1 {
		t.Errorf("Expected 1 message, got %d", len(m.messages))
	}
}

func TestSpace_TogglesListening(t *testing.T) {
	ctrl := &fakeController{}
	m := New(ctrl)
	space := tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}

	m, _ = press(t, m, space)
	if ctrl.lastCall() != "start" {
		t.Errorf("Expected start, got %q", ctrl.lastCall())
	}

	updated, _ := m.Update(StatusMsg{Status: session.Status{Phase: session.PhaseListening, IsListening: true}})
	m = updated.(Model)
	press(t, m, space)
	if ctrl.lastCall() != "stop" {
		t.Errorf("Expected stop, got %q", ctrl.lastCall())
	}
}

func TestEnter_SendsTypedLine(t *testing.T) {
	ctrl := &fakeController{}
	m := typeText(New(ctrl), "I feel tense")
	if string(m.input) != "I feel tense" {
		t.Fatalf("Expected typed input, got %q", string(m.input))
	}
	if len(ctrl.calls) != 0 {
		t.Error("space inside a line must not toggle listening")
	}

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if len(ctrl.sent) != 1 || ctrl.sent[0] != "I feel tense" {
		t.Errorf("unexpected sent: %q", ctrl.sent)
	}
	if len(m.input) != 0 {
		t.Error("input should be cleared after send")
	}
}

func TestEnter_EmptyLineIgnored(t *testing.T) {
	ctrl := &fakeController{}
	_, out := press(t, New(ctrl), tea.KeyMsg{Type: tea.KeyEnter})
	if out != nil || len(ctrl.calls) != 0 {
		t.Error("empty line must not be sent")
	}
}

func TestBackspace(t *testing.T) {
	m := typeText(New(&fakeController{}), "héllo")
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyBackspace})
	if string(m.input) != "héll" {
		t.Errorf("Expected 'héll', got %q", string(m.input))
	}
}

func TestShortcuts(t *testing.T) {
	tests := []struct {
		key  tea.KeyMsg
		want string
	}{
		{tea.KeyMsg{Type: tea.KeyCtrlA}, "auto"},
		{tea.KeyMsg{Type: tea.KeyCtrlV}, "voice"},
		{tea.KeyMsg{Type: tea.KeyEsc}, "cancel"},
		{tea.KeyMsg{Type: tea.KeyCtrlR}, "retry"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			ctrl := &fakeController{}
			press(t, New(ctrl), tt.key)
			if ctrl.lastCall() != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, ctrl.lastCall())
			}
		})
	}
}

func TestCtrlC_Quits(t *testing.T) {
	_, cmd := New(&fakeController{}).Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("Expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected tea.QuitMsg")
	}
}

func TestCommandError_IsTransient(t *testing.T) {
	ctrl := &fakeController{err: errors.New("session: busy")}
	m, out := press(t, New(ctrl), tea.KeyMsg{Type: tea.KeyCtrlR})
	if _, ok := out.(CommandErrorMsg); !ok {
		t.Fatalf("Expected CommandErrorMsg, got %T", out)
	}

	updated, cmd := m.Update(out)
	m = updated.(Model)
	if m.commandError != "session: busy" {
		t.Errorf("unexpected command error %q", m.commandError)
	}
	if cmd == nil {
		t.Error("Expected a clear timer")
	}

	updated, _ = m.Update(ClearTransientErrorMsg{})
	if updated.(Model).commandError != "" {
		t.Error("command error should be cleared")
	}
}

func TestView(t *testing.T) {
	m := New(&fakeController{})
	if m.View() != "Initializing..." {
		t.Error("Expected placeholder before the first window size")
	}

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m = updated.(Model)
	updated, _ = m.Update(StatusMsg{Status: session.Status{
		Phase:        session.PhaseListening,
		IsListening:  true,
		InterimText:  "I can't sleep",
		AudioLevel:   200,
		ErrorMessage: "Check your connection",
		Language:     "en-US",
	}})
	m = updated.(Model)
	updated, _ = m.Update(ChatMsg{Message: voice.NewMessage("hello there", false, time.Now())})
	m = updated.(Model)

	view := m.View()
	for _, want := range []string{"COMPANION", "LISTENING", "MIC", "hearing: I can't sleep", "hello there", "Check your connection", "en-US"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if lines := strings.Count(view, "\n") + 1; lines > 24 {
		t.Errorf("view has %d lines, taller than the terminal", lines)
	}
}

func TestView_ErrorPhaseHintsRetry(t *testing.T) {
	m := New(&fakeController{})
	m.width, m.height = 80, 24
	m.status = session.Status{Phase: session.PhaseError, ErrorMessage: "Microphone access was denied"}
	if !strings.Contains(m.View(), "ctrl+r to retry") {
		t.Error("Expected retry hint in error phase")
	}
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		text  string
		width int
		want  []string
	}{
		{"one two three", 7, []string{"one two", "three"}},
		{"", 10, nil},
		{"abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"  spaced   out  ", 20, []string{"spaced out"}},
	}
	for _, tt := range tests {
		got := wrapText(tt.text, tt.width)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("wrapText(%q, %d) = %q, want %q", tt.text, tt.width, got, tt.want)
		}
	}
}

func TestRenderLevelMeter(t *testing.T) {
	if n := strings.Count(renderLevelMeter(255), "█"); n != 10 {
		t.Errorf("Expected full meter, got %d cells", n)
	}
	if n := strings.Count(renderLevelMeter(0), "█"); n != 0 {
		t.Errorf("Expected empty meter, got %d cells", n)
	}
}
