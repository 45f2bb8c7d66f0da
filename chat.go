package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"taskpilot/internal/agent"
	"taskpilot/internal/config"
)

var (
	chatTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Padding(0, 1)

	chatToolStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	chatInputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true)

	chatErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	chatDoneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))
)

func buildChatCmd() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Send one message to the agent and print its reply",
		Long: `Run a single agent turn against a project folder and stream the reply,
including every tool the agent uses, to the terminal.

The API key comes from ANTHROPIC_API_KEY or the key saved by the front end.`,
		Example: `  taskpilot chat --project . "add a task to write the README"
  echo "what is in progress?" | taskpilot chat -C ~/src/app`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message, err := chatMessage(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return runChat(cmd.Context(), cfg, project, message, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&project, "project", "C", ".", "Project folder")
	return cmd
}

// chatMessage takes the message from args, or from stdin when it is piped.
func chatMessage(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "", errors.New("no message given")
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read message: %w", err)
	}
	message := strings.TrimSpace(string(data))
	if message == "" {
		return "", errors.New("no message given")
	}
	return message, nil
}

func runChat(ctx context.Context, cfg *config.Config, project, message string, out io.Writer) error {
	logger, closer, err := openLogger(cfg, false)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(contextOrBackground(ctx), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := NewApp(cfg, logger)
	if err := app.startup(ctx); err != nil {
		return err
	}
	defer app.shutdown(context.Background())

	folder, err := app.SelectFolder(project)
	if err != nil {
		return err
	}

	r := newChatRenderer(out, isTerminal(out))
	r.header(folder)

	var turnErr error
	err = app.session.Send(ctx, message, func(c agent.Chunk) {
		r.render(c)
		if c.Type == agent.ChunkError {
			turnErr = errors.New(c.Content)
		}
	})
	if err != nil {
		r.render(agent.Chunk{Type: agent.ChunkError, Content: err.Error()})
		return err
	}
	return turnErr
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// chatRenderer prints a turn's chunks. Styling is applied only when
// writing to a terminal.
type chatRenderer struct {
	out    io.Writer
	styled bool
	// midLine is set while streamed text has not ended with a newline.
	midLine bool
}

func newChatRenderer(out io.Writer, styled bool) *chatRenderer {
	return &chatRenderer{out: out, styled: styled}
}

func (r *chatRenderer) style(s lipgloss.Style, text string) string {
	if !r.styled {
		return text
	}
	return s.Render(text)
}

func (r *chatRenderer) header(folder string) {
	fmt.Fprintln(r.out, r.style(chatTitleStyle, "taskpilot")+" "+folder)
}

func (r *chatRenderer) breakLine() {
	if r.midLine {
		fmt.Fprintln(r.out)
		r.midLine = false
	}
}

func (r *chatRenderer) render(c agent.Chunk) {
	switch c.Type {
	case agent.ChunkText:
		if c.Content == "" {
			return
		}
		fmt.Fprint(r.out, c.Content)
		r.midLine = !strings.HasSuffix(c.Content, "\n")
	case agent.ChunkToolUse:
		r.breakLine()
		line := r.style(chatToolStyle, "> "+c.Tool)
		if len(c.Input) > 0 {
			if raw, err := json.Marshal(c.Input); err == nil {
				line += " " + r.style(chatInputStyle, string(raw))
			}
		}
		fmt.Fprintln(r.out, line)
	case agent.ChunkDone:
		r.breakLine()
		fmt.Fprintln(r.out, r.style(chatDoneStyle, "done"))
	case agent.ChunkError:
		r.breakLine()
		fmt.Fprintln(r.out, r.style(chatErrorStyle, "error: "+c.Content))
	}
}
