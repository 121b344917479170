package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/tobert/otlp-waterfall/internal/mcpserver"
	"github.com/tobert/otlp-waterfall/internal/webui"
)

// ServeCommand returns the CLI command definition for the 'serve' subcommand.
// It serves the browser UI and the MCP tools over one shared session.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:      "serve",
		Usage:     "Serve the waterfall to browsers and MCP clients",
		ArgsUsage: "[FILE]",
		Description: `Starts the web UI on http://HOST:PORT/ui/ and an MCP endpoint at /mcp
(streamable HTTP). With --mcp the MCP server also runs on stdio, for agents
that launch the viewer as a subprocess.

Every page, agent and reload share one session: a key pressed in the
browser moves the focus an agent sees. The span file, when given, is
watched and reloaded on change; agents can also load spans directly.`,
		Flags: append(commonFlags(),
			&cli.StringFlag{
				Name:  "http-host",
				Usage: "HTTP bind address",
			},
			&cli.IntFlag{
				Name:  "http-port",
				Usage: "HTTP port",
			},
			&cli.BoolFlag{
				Name:  "mcp",
				Usage: "Also serve MCP on stdio; exits when stdin closes",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Write logs to this file instead of stderr",
			},
		),
		Action: runServe,
	}
}

// runServe is the action handler for the serve command.
// It wires together the session, file watcher, web UI and MCP server.
func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.IsSet("http-host") {
		cfg.HTTPHost = cmd.String("http-host")
	}
	if cmd.IsSet("http-port") {
		cfg.HTTPPort = cmd.Int("http-port")
	}

	logger, err := newLogger(cfg.Verbose, cmd.String("log-file"))
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	logger.Debug("configuration",
		zap.String("initial_expansion", cfg.InitialExpansion),
		zap.String("invalid_policy", cfg.InvalidPolicy),
		zap.String("marker_mode", cfg.MarkerMode),
		zap.String("http", cfg.HTTPAddr()),
		zap.Int("history_size", cfg.HistorySize))

	// 1. MCP server over the shared session
	mcpServer, err := mcpserver.NewServer(a.session, a.history, mcpserver.ServerOptions{
		Logger:         logger,
		ColorByService: cfg.ColorByService,
		Width:          cfg.Width,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	// 2. Setup graceful shutdown on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 3. Watch the span file, if there is one
	if path, err := spanPath(cmd, cfg, logger); err == nil {
		w, err := a.watch(ctx, path)
		if err != nil {
			return err
		}
		defer w.Stop()
	} else if cmd.Args().Present() || cfg.OtelConfig != "" {
		return err
	} else {
		logger.Info("no span file; waiting for load_spans")
	}

	// 4. Web UI with the MCP HTTP endpoint next to it
	web := webui.New(a.session, logger, cfg.ColorByService)
	web.Mount("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return mcpServer.MCPServer()
	}, nil))

	httpErrCh := make(chan error, 1)
	go func() {
		httpErrCh <- web.ListenAndServe(ctx, cfg.HTTPAddr())
	}()

	if !cmd.Bool("mcp") {
		if err := <-httpErrCh; err != nil {
			return fmt.Errorf("web UI server error: %w", err)
		}
		return nil
	}

	// 5. Run MCP server on stdio (blocks until stdin closes or context cancelled)
	logger.Info("MCP server ready on stdio")
	mcpErr := mcpServer.Run(ctx)
	cancel()
	httpErr := <-httpErrCh

	if mcpErr != nil && !errors.Is(mcpErr, context.Canceled) {
		return fmt.Errorf("MCP server error: %w", mcpErr)
	}
	if httpErr != nil {
		return fmt.Errorf("web UI server error: %w", httpErr)
	}
	return nil
}
