package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/teslashibe/go-companion/pkg/session"
	"github.com/teslashibe/go-companion/pkg/voice"
)

// SnapshotMsg carries the state loaded when the program starts.
type SnapshotMsg struct {
	Status   session.Status
	Messages []voice.Message
}

// StatusMsg carries a status update from the session.
type StatusMsg struct {
	Status session.Status
}

// ChatMsg carries a message appended to the conversation.
type ChatMsg struct {
	Message voice.Message
}

// CommandErrorMsg reports a rejected command.
type CommandErrorMsg struct {
	Err error
}

// ClearTransientErrorMsg clears a command error after a timeout.
type ClearTransientErrorMsg struct{}

// updateMsg converts a session update into a tea message.
func updateMsg(u session.Update) tea.Msg {
	switch {
	case u.Status != nil:
		return StatusMsg{Status: *u.Status}
	case u.Message != nil:
		return ChatMsg{Message: *u.Message}
	}
	return nil
}
