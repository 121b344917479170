package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tobert/otlp-waterfall/internal/cli"
	cliframework "github.com/urfave/cli/v3"
)

const version = "0.1.0-dev"

func main() {
	app := &cliframework.Command{
		Name:    "otlp-waterfall",
		Usage:   "Span hierarchy and waterfall timeline viewer",
		Version: version,
		Commands: []*cliframework.Command{
			cli.RenderCommand(),
			cli.ViewCommand(),
			cli.ServeCommand(),
			cli.SampleCommand(),
			cli.DoctorCommand(version),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "❌ error: %v\n", err)
		os.Exit(1)
	}
}
