package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/tobert/otlp-waterfall/internal/tui"
)

// ViewCommand returns the CLI command definition for the 'view' subcommand.
// It opens the interactive terminal viewer and reloads on file change.
func ViewCommand() *cli.Command {
	return &cli.Command{
		Name:      "view",
		Usage:     "Browse a span file interactively in the terminal",
		ArgsUsage: "[FILE]",
		Description: `Opens a keyboard-driven waterfall. The file is watched and the view
starts over whenever its content changes.

Keys: up/down or k/j move, right/l expand, left/h collapse or go to parent,
enter/space toggle, home/g and end/G jump, e expand all, c collapse all,
q quit.`,
		Flags: append(commonFlags(),
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable bar colours",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Write logs to this file (the terminal is taken by the viewer)",
			},
		),
		Action: runView,
	}
}

func runView(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	if logFile := cmd.String("log-file"); logFile != "" {
		if logger, err = newLogger(cfg.Verbose, logFile); err != nil {
			return err
		}
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	path, err := spanPath(cmd, cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := a.watch(ctx, path)
	if err != nil {
		return err
	}
	defer w.Stop()

	return tui.Run(ctx, a.session, tui.Options{
		Source:         path,
		ColorByService: cfg.ColorByService,
		NoColor:        cmd.Bool("no-color"),
	})
}
