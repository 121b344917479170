package storage

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"

	"github.com/tobert/otlp-waterfall/internal/trace"
)

// DefaultCacheMaxCost bounds the cache by total span count.
const DefaultCacheMaxCost = 1 << 20

var ErrCacheInit = errors.New("trace cache init failed")

// TraceCache memoises trace.Build by batch fingerprint, so reloading a file
// whose content did not change, or stepping back to an earlier revision,
// reuses the forest that was already built. The cost of an entry is its
// span count.
type TraceCache struct {
	cache  *ristretto.Cache
	opts   []trace.BuildOption
	logger *zap.Logger
}

// NewTraceCache creates a cache holding up to maxCost spans worth of traces.
// opts are passed to every trace.Build call, so one cache serves one policy.
func NewTraceCache(maxCost int64, logger *zap.Logger, opts ...trace.BuildOption) (*TraceCache, error) {
	if maxCost <= 0 {
		maxCost = DefaultCacheMaxCost
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxCost * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCacheInit, err)
	}
	return &TraceCache{cache: cache, opts: opts, logger: logger}, nil
}

// Build returns the cached forest for spans, building it on a miss.
func (c *TraceCache) Build(spans []trace.Span) *trace.Trace {
	fp := trace.Fingerprint(spans)
	if v, found := c.cache.Get(fp); found {
		if t, ok := v.(*trace.Trace); ok {
			c.logger.Debug("trace cache hit", zap.Uint64("fingerprint", fp))
			return t
		}
		c.logger.Warn("unexpected value type in trace cache", zap.String("type", fmt.Sprintf("%T", v)))
	}

	t := trace.Build(spans, c.opts...)
	if !c.cache.Set(fp, t, int64(max(len(spans), 1))) {
		c.logger.Debug("trace cache dropped set", zap.Uint64("fingerprint", fp))
	}
	c.logger.Debug("trace built",
		zap.Uint64("fingerprint", fp),
		zap.Int("spans", t.Len()),
		zap.Int("issues", len(t.Issues())))
	return t
}

// Wait blocks until buffered writes are applied. Tests use it before
// asserting a hit.
func (c *TraceCache) Wait() {
	c.cache.Wait()
}

// Close stops the cache's background goroutines.
func (c *TraceCache) Close() {
	c.cache.Close()
}
