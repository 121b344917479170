package spanfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/tobert/otlp-waterfall/internal/trace"
)

// DefaultDebounce coalesces the burst of write events an editor or exporter
// produces for one save.
const DefaultDebounce = 100 * time.Millisecond

// Load reads and decodes one span file. A partial decode returns the spans
// that could be read along with the error.
func Load(path string) ([]trace.Span, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open span file: %w", err)
	}
	defer f.Close()

	spans, err := Decode(f)
	if err != nil {
		return spans, fmt.Errorf("%s: %w", path, err)
	}
	return spans, nil
}

// Batch is one load of the watched file.
type Batch struct {
	Path  string
	Spans []trace.Span
	// Err is set when the file could not be read or some records failed to
	// decode. Spans holds whatever did decode.
	Err error
}

// Watcher reloads a span file whenever it changes and hands every reload to
// a callback. It watches the parent directory so that editors that replace
// the file by rename are picked up.
type Watcher struct {
	path     string
	onBatch  func(Batch)
	logger   *zap.Logger
	debounce time.Duration

	watcher *fsnotify.Watcher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	Path     string
	Debounce time.Duration // zero uses DefaultDebounce
	Logger   *zap.Logger
}

// NewWatcher creates a watcher for cfg.Path. onBatch is called from the
// watcher's goroutine, never concurrently with itself.
func NewWatcher(cfg WatcherConfig, onBatch func(Batch)) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("span file path is required")
	}
	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", cfg.Path, err)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		path:     abs,
		onBatch:  onBatch,
		logger:   cfg.Logger,
		debounce: cfg.Debounce,
		watcher:  fw,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// Start loads the file once, synchronously, then keeps watching in the
// background until Stop or ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.logger.Info("watching span file", zap.String("path", w.path))

	w.reload()

	w.wg.Add(1)
	go w.watchLoop(ctx)
	return nil
}

// Stop ends the watch loop and waits for it to exit.
func (w *Watcher) Stop() {
	w.cancel()
	w.watcher.Close()
	w.wg.Wait()
}

func (w *Watcher) reload() {
	spans, err := Load(w.path)
	if err != nil {
		w.logger.Warn("span file loaded with errors", zap.String("path", w.path), zap.Error(err))
	} else {
		w.logger.Debug("span file loaded", zap.String("path", w.path), zap.Int("spans", len(spans)))
	}
	w.onBatch(Batch{Path: w.path, Spans: spans, Err: err})
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer w.wg.Done()

	// Stopped timer; armed on the first relevant event.
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}
