// Package tui is the terminal front-end for a conversation session.
//
// The model never blocks on the session: every key press becomes a
// tea.Cmd that calls the controller, and session updates arrive through
// Subscribe as StatusMsg and ChatMsg.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/teslashibe/go-companion/pkg/session"
	"github.com/teslashibe/go-companion/pkg/voice"
)

// Controller is the session surface the terminal drives.
type Controller interface {
	Status() session.Status
	Messages() []voice.Message
	Subscribe(fn session.Observer) func()

	StartListening() error
	StopListening() error
	SendTypedMessage(text string) error
	ToggleAutoListen() (bool, error)
	ToggleVoiceOutput() (bool, error)
	CancelSpeaking() error
	Retry() error
}

var _ Controller = (*session.Orchestrator)(nil)

const transientErrorTimeout = 4 * time.Second

// Model is the root bubbletea model.
type Model struct {
	ctrl Controller

	status   session.Status
	messages []voice.Message
	loaded   bool

	// Typed line being composed.
	input []rune

	width  int
	height int

	// Rejected command, cleared after transientErrorTimeout.
	commandError string
}

// New creates a model over ctrl.
func New(ctrl Controller) Model {
	return Model{ctrl: ctrl}
}

// Init loads the current status and conversation.
func (m Model) Init() tea.Cmd {
	return snapshotCmd(m.ctrl)
}

func snapshotCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		return SnapshotMsg{Status: ctrl.Status(), Messages: ctrl.Messages()}
	}
}

// commandCmd runs fn off the update loop and reports a rejection.
func commandCmd(fn func() error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return CommandErrorMsg{Err: err}
		}
		return nil
	}
}

func clearTransientErrorCmd() tea.Cmd {
	return tea.Tick(transientErrorTimeout, func(time.Time) tea.Msg {
		return ClearTransientErrorMsg{}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case SnapshotMsg:
		m.status = msg.Status
		m.messages = mergeMessages(msg.Messages, m.messages)
		m.loaded = true
		return m, nil

	case StatusMsg:
		m.status = msg.Status
		return m, nil

	case ChatMsg:
		if !containsMessage(m.messages, msg.Message.ID) {
			m.messages = append(m.messages, msg.Message)
		}
		return m, nil

	case CommandErrorMsg:
		m.commandError = msg.Err.Error()
		return m, clearTransientErrorCmd()

	case ClearTransientErrorMsg:
		m.commandError = ""
		return m, nil
	}

	return m, nil
}

// handleKey processes key presses. Space toggles listening only while the
// input line is empty; otherwise it is typed.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctrl := m.ctrl

	switch msg.String() {
	case KeyQuit:
		return m, tea.Quit

	case KeyToggleListen:
		if len(m.input) > 0 {
			m.input = append(m.input, ' ')
			return m, nil
		}
		if m.status.IsListening {
			return m, commandCmd(ctrl.StopListening)
		}
		return m, commandCmd(ctrl.StartListening)

	case KeySend:
		text := strings.TrimSpace(string(m.input))
		m.input = nil
		if text == "" {
			return m, nil
		}
		return m, commandCmd(func() error { return ctrl.SendTypedMessage(text) })

	case KeyAutoListen:
		return m, commandCmd(func() error {
			_, err := ctrl.ToggleAutoListen()
			return err
		})

	case KeyVoiceOutput:
		return m, commandCmd(func() error {
			_, err := ctrl.ToggleVoiceOutput()
			return err
		})

	case KeyCancel:
		return m, commandCmd(ctrl.CancelSpeaking)

	case KeyRetry:
		return m, commandCmd(ctrl.Retry)

	case KeyBackspace:
		if n := len(m.input); n > 0 {
			m.input = m.input[:n-1]
		}
		return m, nil
	}

	if msg.Type == tea.KeyRunes {
		m.input = append(m.input, msg.Runes...)
	}
	return m, nil
}

// mergeMessages appends to base the messages of extra it does not hold.
// Updates can arrive before the snapshot they belong after.
func mergeMessages(base, extra []voice.Message) []voice.Message {
	out := append([]voice.Message(nil), base...)
	for _, msg := range extra {
		if !containsMessage(out, msg.ID) {
			out = append(out, msg)
		}
	}
	return out
}

func containsMessage(msgs []voice.Message, id string) bool {
	for _, m := range msgs {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	logger  *slog.Logger
	program []tea.ProgramOption
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *runConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithProgramOptions passes options through to tea.NewProgram.
func WithProgramOptions(opts ...tea.ProgramOption) Option {
	return func(c *runConfig) { c.program = append(c.program, opts...) }
}

// Run drives ctrl from the terminal until the user quits or ctx ends.
func Run(ctx context.Context, ctrl Controller, opts ...Option) error {
	cfg := runConfig{
		logger:  slog.Default(),
		program: []tea.ProgramOption{tea.WithAltScreen()},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger.With("component", "tui")

	p := tea.NewProgram(New(ctrl), append(cfg.program, tea.WithContext(ctx))...)
	unsubscribe := ctrl.Subscribe(func(u session.Update) {
		if msg := updateMsg(u); msg != nil {
			p.Send(msg)
		}
	})
	defer unsubscribe()

	logger.Info("terminal started")
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		err = nil
	}
	logger.Info("terminal stopped", "error", err)
	return err
}

// View renders the full terminal.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	divider := dividerStyle.Render(strings.Repeat("─", m.width))
	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStatusBar())
	sections = append(sections, divider)
	sections = append(sections, m.renderFeed())
	sections = append(sections, divider)
	if notice := m.renderNotices(); notice != "" {
		sections = append(sections, notice)
	}
	sections = append(sections, promptStyle.Render("> ")+string(m.input))
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := titleStyle.Render("COMPANION")
	lang := ""
	if m.status.Language != "" {
		lang = dimStyle.Render(" · " + string(m.status.Language))
	}
	return title + lang + "  " + toggle("auto-listen", m.status.AutoListen) + "  " + toggle("voice", m.status.VoiceOutput)
}

func toggle(label string, on bool) string {
	if on {
		return onStyle.Render(label + " on")
	}
	return offStyle.Render(label + " off")
}

func (m Model) renderStatusBar() string {
	phase := m.status.Phase
	if phase == "" {
		phase = session.PhaseIdle
	}
	style, ok := phaseStyles[string(phase)]
	if !ok {
		style = dimStyle
	}
	dot := "○ "
	if phase.Busy() {
		dot = "● "
	}
	bar := style.Render(dot + strings.ToUpper(string(phase)))

	if m.status.IsListening {
		bar += "  " + renderLevelMeter(m.status.AudioLevel)
	}
	if m.status.Capability != "" {
		bar += dimStyle.Render("  " + m.status.Capability)
	}
	return bar
}

func renderLevelMeter(level uint8) string {
	const barLen = 10
	filled := int(level) * barLen / 255

	var b strings.Builder
	b.WriteString(dimStyle.Render("MIC "))
	for i := 0; i < barLen; i++ {
		switch {
		case i >= filled:
			b.WriteString(levelGrayStyle.Render("░"))
		case i*10 >= barLen*7:
			b.WriteString(levelYellowStyle.Render("█"))
		default:
			b.WriteString(levelGreenStyle.Render("█"))
		}
	}
	return b.String()
}

// feedLines renders the conversation followed by the live interim and
// reply lines, wrapped to the terminal width.
func (m Model) feedLines() []string {
	width := max(20, m.width-2)
	var lines []string
	for _, msg := range m.messages {
		label := assistantLabelStyle.Render("companion")
		if msg.IsUser {
			label = userLabelStyle.Render("you")
		}
		lines = append(lines, label)
		for _, l := range wrapText(msg.Text, width) {
			lines = append(lines, "  "+textStyle.Render(l))
		}
	}
	if m.status.InterimText != "" {
		for _, l := range wrapText("hearing: "+m.status.InterimText, width) {
			lines = append(lines, interimStyle.Render(l))
		}
	}
	if m.status.ReplyText != "" {
		lines = append(lines, assistantLabelStyle.Render("companion"))
		for _, l := range wrapText(m.status.ReplyText, width) {
			lines = append(lines, "  "+textStyle.Render(l))
		}
	}
	return lines
}

func (m Model) feedHeight() int {
	if m.height == 0 {
		return 20
	}
	// header, status, two dividers, notices, prompt, footer
	return max(3, m.height-7)
}

func (m Model) renderFeed() string {
	height := m.feedHeight()
	lines := m.feedLines()
	if len(lines) == 0 && m.loaded {
		lines = []string{dimStyle.Render("  Press space to talk or type a message.")}
	}
	if len(lines) > height {
		lines = lines[len(lines)-height:]
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderNotices() string {
	var out []string
	if m.status.ErrorMessage != "" {
		msg := m.status.ErrorMessage
		if m.status.Phase == session.PhaseError {
			msg += " (ctrl+r to retry)"
		}
		out = append(out, errorStyle.Render("! "+msg))
	}
	if m.status.Warning != "" {
		out = append(out, warningStyle.Render(m.status.Warning))
	}
	if m.commandError != "" {
		out = append(out, errorStyle.Render(m.commandError))
	}
	return strings.Join(out, "\n")
}

func (m Model) renderFooter() string {
	return dimStyle.Render(fmt.Sprintf("%s talk · %s send · %s auto · %s voice · %s stop · %s retry · %s quit",
		"space", KeySend, KeyAutoListen, KeyVoiceOutput, KeyCancel, KeyRetry, KeyQuit))
}

// wrapText breaks text into lines of at most width runes on word
// boundaries. Words longer than width are split.
func wrapText(text string, width int) []string {
	var lines []string
	var line strings.Builder
	n := 0
	for _, word := range strings.Fields(text) {
		wl := utf8.RuneCountInString(word)
		for wl > width {
			if n > 0 {
				lines = append(lines, line.String())
				line.Reset()
				n = 0
			}
			r := []rune(word)
			lines = append(lines, string(r[:width]))
			word = string(r[width:])
			wl -= width
		}
		if n > 0 && n+1+wl > width {
			lines = append(lines, line.String())
			line.Reset()
			n = 0
		}
		if n > 0 {
			line.WriteByte(' ')
			n++
		}
		line.WriteString(word)
		n += wl
	}
	if n > 0 {
		lines = append(lines, line.String())
	}
	return lines
}
