package tools

import "encoding/json"

const columnEnum = `["draft", "planning", "in-progress", "review", "done"]`

func catalog() []Tool {
	return []Tool{
		{
			Name:        CreateTask,
			Description: "Create a new task on the kanban board in the specified column.",
			Schema: schema(`{
				"type": "object",
				"properties": {
					"title": {"type": "string", "description": "The title of the task"},
					"column": {"type": "string", "enum": ` + columnEnum + `, "description": "The column to place the task in (default: draft)"},
					"markdown": {"type": "string", "description": "Optional markdown content for the task"}
				},
				"required": ["title"]
			}`),
			Handler: createTask,
		},
		{
			Name:        EditTask,
			Description: "Edit an existing task title.",
			Schema: schema(`{
				"type": "object",
				"properties": {
					"task_id": {"type": "string", "description": "The ID of the task to edit"},
					"title": {"type": "string", "description": "The new title for the task"}
				},
				"required": ["task_id", "title"]
			}`),
			Handler: editTask,
		},
		{
			Name:        DeleteTask,
			Description: "Delete a task from the board.",
			Schema: schema(`{
				"type": "object",
				"properties": {
					"task_id": {"type": "string", "description": "The ID of the task to delete"}
				},
				"required": ["task_id"]
			}`),
			Handler: deleteTask,
		},
		{
			Name:        MoveTask,
			Description: "Move a task to a different column on the kanban board.",
			Schema: schema(`{
				"type": "object",
				"properties": {
					"task_id": {"type": "string", "description": "The ID of the task to move"},
					"column": {"type": "string", "enum": ` + columnEnum + `, "description": "The target column"}
				},
				"required": ["task_id", "column"]
			}`),
			Handler: moveTask,
		},
		{
			Name:        ListTasks,
			Description: "List all tasks on the kanban board, grouped by column.",
			Schema:      schema(`{"type": "object", "properties": {}, "required": []}`),
			Handler:     listTasks,
		},
		{
			Name:        ReadTask,
			Description: "Read the markdown content of a task.",
			Schema: schema(`{
				"type": "object",
				"properties": {
					"task_id": {"type": "string", "description": "The ID of the task to read"}
				},
				"required": ["task_id"]
			}`),
			Handler: readTask,
		},
		{
			Name:        SpawnTerminal,
			Description: "Open a new terminal tab in the Agents panel.",
			Schema: schema(`{
				"type": "object",
				"properties": {
					"name": {"type": "string", "description": "Name for the terminal tab"},
					"command": {"type": "string", "description": "Optional command to run in the terminal"}
				},
				"required": []
			}`),
			Handler: spawnTerminal,
		},
		{
			Name:        SendToAgent,
			Description: "Send a task to an AI coding agent (Claude Code or Codex) in a new terminal.",
			Schema: schema(`{
				"type": "object",
				"properties": {
					"task_id": {"type": "string", "description": "The task ID to send"},
					"agent": {"type": "string", "enum": ["claude-code", "codex"], "description": "Which AI agent to use (default: claude-code)"}
				},
				"required": ["task_id"]
			}`),
			Handler: sendToAgent,
		},
		{
			Name:        ReadFile,
			Description: "Read the contents of a file. Path is relative to the project root.",
			Schema: schema(`{
				"type": "object",
				"properties": {
					"path": {"type": "string", "description": "Relative file path from project root"}
				},
				"required": ["path"]
			}`),
			Handler: readFile,
		},
		{
			Name:        WriteFile,
			Description: "Write content to a file. Creates parent directories if needed. Path is relative to the project root.",
			Schema: schema(`{
				"type": "object",
				"properties": {
					"path": {"type": "string", "description": "Relative file path from project root"},
					"content": {"type": "string", "description": "The content to write"}
				},
				"required": ["path", "content"]
			}`),
			Handler: writeFile,
		},
		{
			Name:        ListFiles,
			Description: "List files in a directory. Path is relative to the project root. Defaults to root if no path given.",
			Schema: schema(`{
				"type": "object",
				"properties": {
					"path": {"type": "string", "description": "Relative directory path (default: project root)"}
				},
				"required": []
			}`),
			Handler: listFiles,
		},
		{
			Name:        DeleteFile,
			Description: "Delete a file. Path is relative to the project root.",
			Schema: schema(`{
				"type": "object",
				"properties": {
					"path": {"type": "string", "description": "Relative file path from project root"}
				},
				"required": ["path"]
			}`),
			Handler: deleteFile,
		},
		{
			Name:        CreateSavePoint,
			Description: "Create a git save point (commit) with a message.",
			Schema: schema(`{
				"type": "object",
				"properties": {
					"message": {"type": "string", "description": "The save point message"}
				},
				"required": ["message"]
			}`),
			Handler: createSavePoint,
		},
		{
			Name:        ListSavePoints,
			Description: "List recent git save points (commits).",
			Schema: schema(`{
				"type": "object",
				"properties": {
					"limit": {"type": "number", "description": "Maximum number of save points to return (default: 10)"}
				},
				"required": []
			}`),
			Handler: listSavePoints,
		},
		{
			Name:        RestoreSavePoint,
			Description: "Restore the project to a specific save point. This is destructive: all uncommitted changes will be lost.",
			Schema: schema(`{
				"type": "object",
				"properties": {
					"hash": {"type": "string", "description": "The save point hash to restore to"}
				},
				"required": ["hash"]
			}`),
			Handler: restoreSavePoint,
		},
		{
			Name:        RevertSavePoint,
			Description: "Revert a specific save point, undoing its changes while keeping history.",
			Schema: schema(`{
				"type": "object",
				"properties": {
					"hash": {"type": "string", "description": "The save point hash to revert"}
				},
				"required": ["hash"]
			}`),
			Handler: revertSavePoint,
		},
		{
			Name:        GetChanges,
			Description: "Get the current uncommitted changes (git status).",
			Schema:      schema(`{"type": "object", "properties": {}, "required": []}`),
			Handler:     getChanges,
		},
	}
}

// schema compacts a literal so the declared schema is stable on the wire.
func schema(s string) json.RawMessage {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		panic("tools: invalid schema literal: " + err.Error())
	}
	out, _ := json.Marshal(v)
	return out
}
