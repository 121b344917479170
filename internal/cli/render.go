package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/tobert/otlp-waterfall/internal/render"
	"github.com/tobert/otlp-waterfall/internal/spanfile"
	"github.com/tobert/otlp-waterfall/internal/view"
)

// RenderCommand returns the CLI command definition for the 'render' subcommand.
// It prints one waterfall for a span file and exits.
func RenderCommand() *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "Print the waterfall for a span file",
		ArgsUsage: "[FILE]",
		Description: `Reads a span file (JSON array, JSON lines, {"spans": [...]} or OTLP JSON)
and prints the span tree with bars scaled to the trace duration.

Actions such as collapse_all or select can be applied before printing
with --action, in order, e.g. --action collapse_all --action expand.`,
		Flags: append(commonFlags(),
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format: text or json",
				Value: "text",
			},
			&cli.IntFlag{
				Name:  "max-rows",
				Usage: "Stop after this many rows (0 for all)",
			},
			&cli.BoolFlag{
				Name:  "color",
				Usage: "Colour bars with ANSI escapes",
			},
			&cli.StringSliceFlag{
				Name:  "action",
				Usage: "Navigation action to apply before printing (repeatable)",
			},
			&cli.StringFlag{
				Name:  "select",
				Usage: "Span id to select after the actions",
			},
		),
		Action: runRender,
	}
}

func runRender(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Verbose, "")
	if err != nil {
		return err
	}
	if !cfg.Verbose {
		// Keep one-shot output clean; problems still surface as issues.
		logger = zap.NewNop()
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
	spans, err := spanfile.Load(path)
	if err != nil && len(spans) == 0 {
		return err
	}
	a.ingest(spanfile.Batch{Path: path, Spans: spans, Err: err})

	for _, action := range cmd.StringSlice("action") {
		ev, err := view.ParseEvent("", action, "")
		if err != nil {
			return err
		}
		a.session.Dispatch(ev)
	}
	if id := cmd.String("select"); id != "" {
		a.session.Dispatch(view.SelectSpan(id))
	}

	return writeSnapshot(cmd.Root().Writer, a.session.Snapshot(), cmd.String("format"), render.Options{
		Width:          cfg.Width,
		Color:          cmd.Bool("color"),
		ColorByService: cfg.ColorByService,
		MaxRows:        cmd.Int("max-rows"),
	})
}

func writeSnapshot(w io.Writer, snap view.Snapshot, format string, opts render.Options) error {
	switch format {
	case "", "text":
		_, err := fmt.Fprintln(w, render.Waterfall(snap, opts))
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(render.NewDocument(snap, opts.ColorByService))
	}
	return fmt.Errorf("unknown format %q (want text or json)", format)
}
