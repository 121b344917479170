package view

import (
	"sync"

	"github.com/tobert/otlp-waterfall/internal/timeline"
	"github.com/tobert/otlp-waterfall/internal/trace"
)

// Builder turns a span batch into a forest. storage.TraceCache implements it
// to skip rebuilding batches it has already seen.
type Builder interface {
	Build(spans []trace.Span) *trace.Trace
}

// BuilderFunc adapts a plain function to Builder.
type BuilderFunc func(spans []trace.Span) *trace.Trace

func (f BuilderFunc) Build(spans []trace.Span) *trace.Trace {
	return f(spans)
}

// Options configures a Session.
type Options struct {
	Initial     InitialPolicy
	Markers     timeline.MarkerMode
	MarkerCount int
	// Builder defaults to trace.Build with the mark-invalid policy.
	Builder Builder
}

// Line is one visible row with its bar and highlight flags.
type Line struct {
	Row
	Bar      timeline.Bar
	Focused  bool
	Selected bool
}

// Snapshot is everything a renderer needs to draw one frame.
type Snapshot struct {
	// Revision counts trace replacements; Generation counts state changes.
	Revision   uint64
	Generation uint64

	Trace    *trace.Trace
	Lines    []Line
	Focused  string
	Selected string
	Markers  []timeline.Marker
	Issues   []trace.Issue
}

// Empty reports whether there is nothing to draw.
func (s Snapshot) Empty() bool {
	return len(s.Lines) == 0
}

// FocusedLine returns the focused line, if any.
func (s Snapshot) FocusedLine() (Line, bool) {
	for _, l := range s.Lines {
		if l.Focused {
			return l, true
		}
	}
	return Line{}, false
}

// Session owns the interactive state for one viewer. Renderers dispatch
// events and subscribe to change notifications; HTTP, MCP and terminal
// front ends may share a session, so every method is safe for concurrent
// use and dispatches are applied one at a time.
type Session struct {
	mu       sync.Mutex
	opts     Options
	builder  Builder
	state    State
	layouter *timeline.Layouter
	revision uint64

	subscriberMu     sync.Mutex
	subscribers      map[uint64]chan struct{}
	nextSubscriberID uint64
}

// NewSession returns a session holding an empty trace.
func NewSession(opts Options) *Session {
	if opts.MarkerCount <= 0 {
		opts.MarkerCount = timeline.DefaultMarkerCount
	}
	b := opts.Builder
	if b == nil {
		b = BuilderFunc(func(spans []trace.Span) *trace.Trace { return trace.Build(spans) })
	}
	s := &Session{
		opts:        opts,
		builder:     b,
		layouter:    timeline.NewLayouter(),
		subscribers: make(map[uint64]chan struct{}),
	}
	s.state = NewState(trace.Build(nil), opts.Initial)
	return s
}

// Load replaces the session's trace with one built from spans. A batch with
// the same content as the current one leaves expansion and focus alone and
// returns false; anything else resets navigation and returns true.
func (s *Session) Load(spans []trace.Span) bool {
	t := s.builder.Build(spans)

	s.mu.Lock()
	if cur := s.state.Trace; cur != nil && cur.Fingerprint == t.Fingerprint {
		s.mu.Unlock()
		return false
	}
	s.reset(t)
	s.mu.Unlock()

	s.notifySubscribers()
	return true
}

// Reset discards expansion and focus and starts over on t.
func (s *Session) Reset(t *trace.Trace) {
	s.mu.Lock()
	s.reset(t)
	s.mu.Unlock()
	s.notifySubscribers()
}

func (s *Session) reset(t *trace.Trace) {
	if t == nil {
		t = trace.Build(nil)
	}
	s.state = NewState(t, s.opts.Initial)
	s.layouter.Reset()
	s.revision++
}

// Dispatch applies ev and reports whether anything changed. Subscribers are
// notified only on change.
func (s *Session) Dispatch(ev Event) bool {
	s.mu.Lock()
	next := Reduce(s.state, ev)
	changed := next.Generation() != s.state.Generation()
	s.state = next
	s.mu.Unlock()

	if changed {
		s.notifySubscribers()
	}
	return changed
}

// State returns the current navigation state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Revision returns how many times the trace has been replaced.
func (s *Session) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Snapshot lays out the visible rows of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state
	t := st.Trace
	rows := st.Rows()
	lines := make([]Line, len(rows))
	for i, r := range rows {
		lines[i] = Line{
			Row:      r,
			Bar:      s.layouter.Bar(r.Node, t),
			Focused:  r.ID() == st.Focused,
			Selected: r.ID() == st.Selected,
		}
	}

	var markers []timeline.Marker
	if !t.Empty() {
		markers = timeline.MarkersFor(s.opts.Markers, t.TotalDuration(), s.opts.MarkerCount)
	}

	return Snapshot{
		Revision:   s.revision,
		Generation: st.Generation(),
		Trace:      t,
		Lines:      lines,
		Focused:    st.Focused,
		Selected:   st.Selected,
		Markers:    markers,
		Issues:     t.Issues(),
	}
}

// Subscribe returns a notification channel and an unsubscribe function.
// The channel is buffered with capacity 1 so bursts of events coalesce into
// a single wake-up; receivers call Snapshot for the latest frame.
func (s *Session) Subscribe() (<-chan struct{}, func()) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()

	id := s.nextSubscriberID
	s.nextSubscriberID++

	ch := make(chan struct{}, 1)
	s.subscribers[id] = ch

	unsubscribe := func() {
		s.subscriberMu.Lock()
		defer s.subscriberMu.Unlock()
		delete(s.subscribers, id)
	}
	return ch, unsubscribe
}

func (s *Session) notifySubscribers() {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()

	for _, ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
			// Already pending.
		}
	}
}
