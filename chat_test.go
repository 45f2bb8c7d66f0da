package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskpilot/internal/agent"
)

func TestChatRenderer_Plain(t *testing.T) {
	var buf bytes.Buffer
	r := newChatRenderer(&buf, false)

	r.render(agent.Chunk{Type: agent.ChunkText, Content: "Creating "})
	r.render(agent.Chunk{Type: agent.ChunkText, Content: "the task."})
	r.render(agent.Chunk{Type: agent.ChunkToolUse, Tool: "create_task", Input: map[string]any{"title": "Docs"}})
	r.render(agent.Chunk{Type: agent.ChunkText, Content: "Done.\n"})
	r.render(agent.Chunk{Type: agent.ChunkDone})

	want := "Creating the task.\n" +
		`> create_task {"title":"Docs"}` + "\n" +
		"Done.\n" +
		"done\n"
	assert.Equal(t, want, buf.String())
}

func TestChatRenderer_Error(t *testing.T) {
	var buf bytes.Buffer
	r := newChatRenderer(&buf, false)

	r.render(agent.Chunk{Type: agent.ChunkText, Content: "partial"})
	r.render(agent.Chunk{Type: agent.ChunkError, Content: "Request cancelled"})

	assert.Equal(t, "partial\nerror: Request cancelled\n", buf.String())
}

func TestChatRenderer_ToolWithoutInput(t *testing.T) {
	var buf bytes.Buffer
	r := newChatRenderer(&buf, false)

	r.render(agent.Chunk{Type: agent.ChunkToolUse, Tool: "list_tasks"})
	assert.Equal(t, "> list_tasks\n", buf.String())
}

func TestChatMessage(t *testing.T) {
	msg, err := chatMessage([]string{"hello"}, strings.NewReader("ignored"))
	require.NoError(t, err)
	assert.Equal(t, "hello", msg)

	msg, err = chatMessage(nil, strings.NewReader("  from stdin\n"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin", msg)

	_, err = chatMessage(nil, strings.NewReader("   "))
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	cmd := buildRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "taskpilot dev (commit: none)\n", out.String())
}
