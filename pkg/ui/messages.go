package ui

// Message types for TUI updates

// TickMsg is sent periodically to poll the session and animate the UI.
type TickMsg struct{}

// StartModulesMsg signals that modules should start loading.
type StartModulesMsg struct{}

// ErrorMsg is sent when a background error occurs outside the session.
type ErrorMsg struct {
	Error error
}

// LogMsg is sent to display a log message in the UI.
type LogMsg struct {
	Level   string // "info", "warn", "error"
	Message string
}
