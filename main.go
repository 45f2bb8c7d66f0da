package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"taskpilot/internal/config"
	"taskpilot/internal/logging"
	"taskpilot/internal/websocket"
)

// Set at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "taskpilot",
		Short: "taskpilot - agent-driven kanban board for a project folder",
		Long: `taskpilot pairs a conversational agent with a task board, the project
files, save points and terminals of one folder.

Run "taskpilot serve" to start the backend for a front end, or
"taskpilot chat" to talk to the agent from the terminal.`,
		Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildServeCmd(), buildChatCmd(), buildVersionCmd())
	return rootCmd
}

func buildServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the WebSocket backend",
		Long: `Start the WebSocket RPC backend on 127.0.0.1.

The chosen port is printed as WS_PORT:<port> once the listener is up.
/health and /metrics are served on the same port.`,
		Example: `  taskpilot serve
  taskpilot serve --port 7420`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			return runServe(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (0 picks a free one)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, out io.Writer) error {
	logger, closer, err := openLogger(cfg, true)
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

	server := websocket.NewServer(app, websocket.Options{
		Addr:           fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
		AuthKey:        cfg.Server.AuthKey,
		Logger:         logger,
		Metrics:        app.metrics,
		MetricsHandler: app.metricsHandler(),
	})
	app.setBroadcaster(server)

	port, err := server.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start WebSocket server: %w", err)
	}
	fmt.Fprintf(out, "WS_PORT:%d\n", port)

	<-ctx.Done()
	logger.Info("shutting down")
	return server.Stop(context.Background())
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "taskpilot %s (commit: %s)\n", version, commit)
		},
	}
}

// openLogger writes to the rotating log file, and to stderr as well when
// console is set.
func openLogger(cfg *config.Config, console bool) (*slog.Logger, io.Closer, error) {
	logger, closer, err := logging.New(logging.Options{
		File:    cfg.LogFile(),
		Level:   cfg.Log.Level,
		Console: console,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return logger, closer, nil
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
