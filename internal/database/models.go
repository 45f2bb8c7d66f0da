package database

import "time"

// DispatchRecord is one task handed to an external coding agent.
type DispatchRecord struct {
	ID          string    `json:"id"`
	ProjectPath string    `json:"project_path"`
	TaskID      string    `json:"task_id"`
	Agent       string    `json:"agent"`
	Command     string    `json:"command"`
	TerminalID  string    `json:"terminal_id,omitempty"`
	AutoSaved   bool      `json:"auto_saved"`
	CreatedAt   time.Time `json:"created_at"`
}
