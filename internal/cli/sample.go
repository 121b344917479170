package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/tobert/otlp-waterfall/internal/spanfile"
)

// SampleCommand returns the CLI command definition for the 'sample' subcommand.
// It writes a demo trace in the collector file exporter format, which is
// handy for trying the viewer or exercising a running watcher.
func SampleCommand() *cli.Command {
	return &cli.Command{
		Name:      "sample",
		Usage:     "Write a demo trace as OTLP JSON lines",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "append",
				Usage: "Append a new trace instead of replacing the file",
			},
			&cli.IntFlag{
				Name:  "count",
				Usage: "Number of traces to write",
				Value: 1,
			},
		},
		Action: runSample,
	}
}

func runSample(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("sample needs a FILE argument")
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if cmd.Bool("append") {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	now := time.Now()
	count := max(cmd.Int("count"), 1)
	for i := range count {
		start := now.Add(time.Duration(i) * 200 * time.Millisecond)
		line, err := spanfile.EncodeOTLPLine(spanfile.Sample(start, uint32(now.UnixNano())+uint32(i)))
		if err != nil {
			return err
		}
		if _, err := f.Write(line); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}

	fmt.Fprintf(cmd.Root().Writer, "✅ Wrote %d trace(s) to %s\n", count, path)
	return f.Close()
}
