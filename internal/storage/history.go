package storage

import (
	"sync"
	"time"

	"github.com/tobert/otlp-waterfall/internal/trace"
)

// DefaultHistorySize is how many batches BatchHistory keeps by default.
const DefaultHistorySize = 16

// Revision is one loaded span batch.
type Revision struct {
	Seq         uint64       `json:"seq"`
	Source      string       `json:"source"`
	LoadedAt    time.Time    `json:"loaded_at"`
	SpanCount   int          `json:"span_count"`
	Fingerprint uint64       `json:"fingerprint"`
	Spans       []trace.Span `json:"-"`
}

// BatchHistory remembers the most recent span batches so a viewer can step
// back to an earlier load. Consecutive identical batches are stored once.
type BatchHistory struct {
	mu  sync.Mutex // serialises Push
	buf *RingBuffer[Revision]
	now func() time.Time
}

// NewBatchHistory keeps up to size batches; size <= 0 uses DefaultHistorySize.
func NewBatchHistory(size int) *BatchHistory {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &BatchHistory{buf: NewRingBuffer[Revision](size), now: time.Now}
}

// Push records a batch read from source. It returns the stored revision and
// false when the batch matches the latest one.
func (h *BatchHistory) Push(source string, spans []trace.Span) (Revision, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	fp := trace.Fingerprint(spans)
	if last, ok := h.buf.Latest(); ok && last.Fingerprint == fp && last.Source == source {
		return last, false
	}

	rev := Revision{
		Seq:         h.buf.Added() + 1,
		Source:      source,
		LoadedAt:    h.now(),
		SpanCount:   len(spans),
		Fingerprint: fp,
		Spans:       spans,
	}
	h.buf.Add(rev)
	return rev, true
}

// Latest returns the newest batch.
func (h *BatchHistory) Latest() (Revision, bool) {
	return h.buf.Latest()
}

// Get returns the batch with the given sequence number.
func (h *BatchHistory) Get(seq uint64) (Revision, bool) {
	return h.buf.Get(seq)
}

// List returns every retained batch, oldest first.
func (h *BatchHistory) List() []Revision {
	return h.buf.GetAll()
}

// Len returns the number of retained batches.
func (h *BatchHistory) Len() int {
	return h.buf.Size()
}
