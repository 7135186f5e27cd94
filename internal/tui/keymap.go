package tui

// Key bindings used in handleKey.
const (
	KeyToggleListen = " "
	KeySend         = "enter"
	KeyAutoListen   = "ctrl+a"
	KeyVoiceOutput  = "ctrl+v"
	KeyCancel       = "esc"
	KeyRetry        = "ctrl+r"
	KeyQuit         = "ctrl+c"
	KeyBackspace    = "backspace"
)
