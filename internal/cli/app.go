package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/tobert/otlp-waterfall/internal/spanfile"
	"github.com/tobert/otlp-waterfall/internal/storage"
	"github.com/tobert/otlp-waterfall/internal/trace"
	"github.com/tobert/otlp-waterfall/internal/view"
)

// commonFlags are shared by every command that shows a waterfall. Each
// one overrides the matching config file field when set.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Config file (JSON or YAML); default is the project .otlp-waterfall file",
		},
		&cli.StringFlag{
			Name:  "expand",
			Usage: "Initial expansion: all or roots",
		},
		&cli.StringFlag{
			Name:  "invalid",
			Usage: "Spans with bad timestamps or durations: mark or reject",
		},
		&cli.StringFlag{
			Name:  "markers",
			Usage: "Time axis markers: even or nice",
		},
		&cli.IntFlag{
			Name:  "marker-count",
			Usage: "Number of evenly spaced axis markers",
		},
		&cli.IntFlag{
			Name:  "width",
			Usage: "Text waterfall width in columns",
		},
		&cli.BoolFlag{
			Name:  "color-by-service",
			Usage: "Colour bars by service instead of by status",
		},
		&cli.StringFlag{
			Name:  "otel-config",
			Usage: "OpenTelemetry Collector config; read the output of its file exporter",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
		},
	}
}

// loadConfig resolves the effective config and applies flags set on cmd.
func loadConfig(cmd *cli.Command) (*Config, error) {
	cfg, err := LoadEffectiveConfig(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	flags := &Config{}
	if cmd.IsSet("expand") {
		flags.InitialExpansion = cmd.String("expand")
	}
	if cmd.IsSet("invalid") {
		flags.InvalidPolicy = cmd.String("invalid")
	}
	if cmd.IsSet("markers") {
		flags.MarkerMode = cmd.String("markers")
	}
	if cmd.IsSet("marker-count") {
		flags.MarkerCount = cmd.Int("marker-count")
	}
	if cmd.IsSet("width") {
		flags.Width = cmd.Int("width")
	}
	if cmd.IsSet("otel-config") {
		flags.OtelConfig = cmd.String("otel-config")
	}

	merged := MergeConfigs(cfg, flags)
	// MergeConfigs only carries true bools; an explicit --flag=false must
	// still turn a config file setting off.
	if cmd.IsSet("color-by-service") {
		merged.ColorByService = cmd.Bool("color-by-service")
	}
	if cmd.IsSet("verbose") {
		merged.Verbose = cmd.Bool("verbose")
	}
	return merged, nil
}

// app is the runtime shared by the commands: one session fed by one span
// source, with a history of loaded batches and a cache of built traces.
type app struct {
	cfg      *Config
	settings settings
	logger   *zap.Logger
	cache    *storage.TraceCache
	history  *storage.BatchHistory
	session  *view.Session
}

func newApp(cfg *Config, logger *zap.Logger) (*app, error) {
	s, err := cfg.parse()
	if err != nil {
		return nil, err
	}

	cache, err := storage.NewTraceCache(cfg.CacheMaxCost, logger, trace.WithInvalidPolicy(s.invalid))
	if err != nil {
		return nil, err
	}

	session := view.NewSession(view.Options{
		Initial:     s.initial,
		Markers:     s.markers,
		MarkerCount: s.markerCount,
		Builder:     cache,
	})

	return &app{
		cfg:      cfg,
		settings: s,
		logger:   logger,
		cache:    cache,
		history:  storage.NewBatchHistory(cfg.HistorySize),
		session:  session,
	}, nil
}

func (a *app) close() {
	a.cache.Close()
	_ = a.logger.Sync()
}

// ingest records a batch and shows it. Decode errors are logged; whatever
// spans did decode are still shown.
func (a *app) ingest(b spanfile.Batch) {
	if b.Err != nil {
		a.logger.Warn("span file problem", zap.String("path", b.Path), zap.Error(b.Err))
		if len(b.Spans) == 0 {
			return
		}
	}
	rev, added := a.history.Push(b.Path, b.Spans)
	changed := a.session.Load(rev.Spans)
	a.logger.Info("spans loaded",
		zap.String("path", b.Path),
		zap.Uint64("seq", rev.Seq),
		zap.Int("spans", rev.SpanCount),
		zap.Bool("new_revision", added),
		zap.Bool("changed", changed))
}

// spanPath picks the span file: the first argument, else the first file
// exporter output named by the collector config.
func spanPath(cmd *cli.Command, cfg *Config, logger *zap.Logger) (string, error) {
	if path := cmd.Args().First(); path != "" {
		return path, nil
	}
	if cfg.OtelConfig == "" {
		return "", fmt.Errorf("a span file argument or --otel-config is required")
	}
	paths, err := ParseOtelConfig(cfg.OtelConfig)
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("no file exporter with a path in %s", cfg.OtelConfig)
	}
	if len(paths) > 1 {
		logger.Warn("several file exporters found; using the first",
			zap.String("path", paths[0]), zap.Strings("all", paths))
	}
	return paths[0], nil
}

// newLogger builds the process logger. Output goes to stderr, or to
// logFile when set, which keeps stdout free for MCP stdio and the TUI.
func newLogger(verbose bool, logFile string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	if logFile != "" {
		cfg.OutputPaths = []string{logFile}
		cfg.ErrorOutputPaths = []string{logFile}
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// watch starts a watcher that feeds path into the session. The returned
// watcher has already loaded the file once.
func (a *app) watch(ctx context.Context, path string) (*spanfile.Watcher, error) {
	w, err := spanfile.NewWatcher(spanfile.WatcherConfig{
		Path:     path,
		Debounce: a.settings.debounce,
		Logger:   a.logger,
	}, a.ingest)
	if err != nil {
		return nil, err
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return nil, err
	}
	return w, nil
}
