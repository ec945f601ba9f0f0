package models

// ServerStatus describes the supervised game server.
type ServerStatus struct {
	Status       string   `json:"status"`
	State        string   `json:"state"`
	Pid          int      `json:"pid"`
	Uptime       string   `json:"uptime"`
	Memory       string   `json:"memory"`
	CPU          string   `json:"cpu"`
	ExitCode     *int     `json:"exit_code,omitempty"`
	PendingLines int      `json:"pending_lines"`
	DroppedLines uint64   `json:"dropped_lines"`
	Command      []string `json:"command"`
}

// LogEntry represents a supervisor event
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
	Level     string `json:"level"`
}

// ConsoleLines is the payload of a console drain, over HTTP or WebSocket.
type ConsoleLines struct {
	Lines []string `json:"lines"`
	Error string   `json:"error,omitempty"`
}

type CommandRequest struct {
	Command string `json:"command"`
}

// ActionResponse is returned by every lifecycle endpoint.
// Status is one of "success", "warning" or "error".
type ActionResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
