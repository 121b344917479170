// Package trace reconstructs a span forest from a flat batch of span records.
// It performs no I/O; problems with individual spans are reported as Issues
// attached to the affected node or to the Trace, never as a failed build.
package trace

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidTimestamp is reported when a span's timestamp cannot be parsed.
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	// ErrInvalidDuration is reported for negative or non-finite durations.
	ErrInvalidDuration = errors.New("invalid duration")
	// ErrDuplicateSpanID is reported for every span whose id was already
	// claimed by an earlier span in the same batch.
	ErrDuplicateSpanID = errors.New("duplicate span id")
	// ErrParentCycle is reported on a span that was promoted to root to
	// break a parent cycle.
	ErrParentCycle = errors.New("parent cycle")
)

// Span is one decoded span record. Only the id, parent, timestamp and
// duration are interpreted; the rest is carried through for renderers.
type Span struct {
	SpanID       string  `json:"span_id"`
	ParentSpanID string  `json:"parent_span_id,omitempty"`
	SpanName     string  `json:"span_name"`
	Service      string  `json:"service"`
	Timestamp    string  `json:"timestamp"`
	DurationMs   float64 `json:"duration_ms"`

	SpanKind   string `json:"span_kind,omitempty"`
	Method     string `json:"method,omitempty"`
	URL        string `json:"url,omitempty"`
	StatusCode string `json:"status_code,omitempty"`
}

// Issue describes a problem with one span of the batch.
type Issue struct {
	SpanID string
	Err    error
}

func (i Issue) Error() string {
	return fmt.Sprintf("span %q: %v", i.SpanID, i.Err)
}

func (i Issue) Unwrap() error {
	return i.Err
}

// Node is a span placed in the forest.
type Node struct {
	Span

	StartMs float64
	EndMs   float64
	Depth   int

	Parent   *Node
	Children []*Node

	// Issues lists problems that were repaired to keep this span in the
	// forest (unparseable timestamp, clamped duration, broken cycle).
	Issues []error

	order int
}

// HasChildren reports whether the node has at least one child.
func (n *Node) HasChildren() bool {
	return len(n.Children) > 0
}

// Valid reports whether the node was placed without any repair.
func (n *Node) Valid() bool {
	return len(n.Issues) == 0
}

func (n *Node) flag(err error) {
	n.Issues = append(n.Issues, err)
}

// Trace is the forest built from one span batch.
type Trace struct {
	Roots    []*Node
	MinStart float64
	MaxEnd   float64

	// Fingerprint identifies the input batch by content.
	Fingerprint uint64

	nodes  map[string]*Node
	issues []Issue
}

// TotalDuration is the width of the trace's time window in milliseconds,
// floored at 1 so layout never divides by zero.
func (t *Trace) TotalDuration() float64 {
	return math.Max(t.MaxEnd-t.MinStart, 1)
}

// Len returns the number of spans placed in the forest.
func (t *Trace) Len() int {
	return len(t.nodes)
}

// Empty reports whether the forest has no spans.
func (t *Trace) Empty() bool {
	return len(t.Roots) == 0
}

// Node looks up a placed span by id.
func (t *Trace) Node(id string) (*Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Issues returns every problem found while building, including spans that
// were dropped and therefore have no Node.
func (t *Trace) Issues() []Issue {
	return t.issues
}

// Walk visits every node in pre-order, roots first, children in time order.
// Returning false from fn skips that node's subtree.
func (t *Trace) Walk(fn func(n *Node) bool) {
	stack := make([]*Node, 0, len(t.Roots))
	for i := len(t.Roots) - 1; i >= 0; i-- {
		stack = append(stack, t.Roots[i])
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(n) {
			continue
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
}

// Services returns service names in first-appearance order of a pre-order walk.
func (t *Trace) Services() []string {
	seen := make(map[string]struct{})
	var out []string
	t.Walk(func(n *Node) bool {
		if _, ok := seen[n.Service]; !ok {
			seen[n.Service] = struct{}{}
			out = append(out, n.Service)
		}
		return true
	})
	return out
}
