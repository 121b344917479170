package trace

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

// InvalidPolicy controls what Build does with a span whose timestamp or
// duration is unusable.
type InvalidPolicy int

const (
	// MarkInvalid keeps the span. An unparseable timestamp places it at the
	// trace's earliest valid start; a negative duration is clamped to zero.
	// The node carries the problem in Issues.
	MarkInvalid InvalidPolicy = iota
	// RejectInvalid drops the span. Its children are promoted to roots.
	RejectInvalid
)

// ParseInvalidPolicy maps a config value ("mark" or "reject") to a policy.
func ParseInvalidPolicy(s string) (InvalidPolicy, error) {
	switch s {
	case "", "mark":
		return MarkInvalid, nil
	case "reject":
		return RejectInvalid, nil
	}
	return MarkInvalid, fmt.Errorf("unknown invalid-span policy %q (want mark or reject)", s)
}

func (p InvalidPolicy) String() string {
	if p == RejectInvalid {
		return "reject"
	}
	return "mark"
}

type buildConfig struct {
	policy  InvalidPolicy
	resolve func(string) (float64, error)
}

// BuildOption customises Build.
type BuildOption func(*buildConfig)

// WithInvalidPolicy sets the policy for spans with bad timestamps or durations.
func WithInvalidPolicy(p InvalidPolicy) BuildOption {
	return func(c *buildConfig) { c.policy = p }
}

// WithResolver replaces ResolveTimestamp.
func WithResolver(fn func(string) (float64, error)) BuildOption {
	return func(c *buildConfig) { c.resolve = fn }
}

// Build converts a flat span batch into a forest.
//
// A span whose parent id is empty or not present in the batch becomes a
// root. Every kept span appears exactly once in the forest. Children and
// roots are ordered by ascending start time; ties keep input order. The
// first span to use an id wins; later ones are dropped with
// ErrDuplicateSpanID. Parent cycles are broken by promoting one member of
// each cycle to root and flagging it with ErrParentCycle.
func Build(spans []Span, opts ...BuildOption) *Trace {
	cfg := buildConfig{policy: MarkInvalid, resolve: ResolveTimestamp}
	for _, opt := range opts {
		opt(&cfg)
	}

	t := &Trace{
		Fingerprint: Fingerprint(spans),
		nodes:       make(map[string]*Node, len(spans)),
	}

	// Pass 1: resolve times and index by id.
	nodes := make([]*Node, 0, len(spans))
	claimed := make(map[string]struct{}, len(spans))
	var unplaced []*Node
	haveWindow := false

	for i, s := range spans {
		if _, dup := claimed[s.SpanID]; dup {
			t.issues = append(t.issues, Issue{SpanID: s.SpanID, Err: ErrDuplicateSpanID})
			continue
		}
		claimed[s.SpanID] = struct{}{}

		n := &Node{Span: s, order: i}

		if s.DurationMs < 0 || math.IsNaN(s.DurationMs) || math.IsInf(s.DurationMs, 0) {
			err := fmt.Errorf("%w: %v", ErrInvalidDuration, s.DurationMs)
			if cfg.policy == RejectInvalid {
				t.issues = append(t.issues, Issue{SpanID: s.SpanID, Err: err})
				continue
			}
			n.DurationMs = 0
			n.flag(err)
		}

		start, err := cfg.resolve(s.Timestamp)
		if err != nil {
			if cfg.policy == RejectInvalid {
				t.issues = append(t.issues, Issue{SpanID: s.SpanID, Err: err})
				continue
			}
			n.flag(err)
			unplaced = append(unplaced, n)
		} else {
			n.StartMs = start
			n.EndMs = start + n.DurationMs
			if !haveWindow || n.StartMs < t.MinStart {
				t.MinStart = n.StartMs
			}
			if !haveWindow || n.EndMs > t.MaxEnd {
				t.MaxEnd = n.EndMs
			}
			haveWindow = true
		}

		t.nodes[s.SpanID] = n
		nodes = append(nodes, n)
	}

	for _, n := range unplaced {
		n.StartMs = t.MinStart
		n.EndMs = n.StartMs + n.DurationMs
		if !haveWindow || n.EndMs > t.MaxEnd {
			t.MaxEnd = n.EndMs
			haveWindow = true
		}
	}

	// Pass 2: link children to parents.
	for _, n := range nodes {
		parent, ok := t.nodes[n.ParentSpanID]
		switch {
		case n.ParentSpanID == "" || !ok:
			t.Roots = append(t.Roots, n)
		case parent == n:
			n.flag(ErrParentCycle)
			t.Roots = append(t.Roots, n)
		default:
			n.Parent = parent
			parent.Children = append(parent.Children, n)
		}
	}

	t.breakCycles(nodes)

	for _, n := range t.nodes {
		if len(n.Children) > 1 {
			sortByStart(n.Children)
		}
	}
	sortByStart(t.Roots)
	t.assignDepths()

	for _, n := range nodes {
		for _, err := range n.Issues {
			t.issues = append(t.issues, Issue{SpanID: n.SpanID, Err: err})
		}
	}

	return t
}

// breakCycles finds nodes not reachable from any root, which can only sit on
// or below a parent cycle, and promotes one cycle member per cycle.
func (t *Trace) breakCycles(nodes []*Node) {
	reached := make(map[*Node]bool, len(nodes))
	mark := func(from *Node) {
		stack := []*Node{from}
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if reached[n] {
				continue
			}
			reached[n] = true
			stack = append(stack, n.Children...)
		}
	}
	for _, r := range t.Roots {
		mark(r)
	}
	if len(reached) == len(nodes) {
		return
	}

	for _, n := range nodes {
		if reached[n] {
			continue
		}
		// Climb until a node repeats; that node is on the cycle.
		onPath := make(map[*Node]bool)
		cur := n
		for !onPath[cur] {
			onPath[cur] = true
			cur = cur.Parent
		}
		cur.detach()
		cur.flag(ErrParentCycle)
		t.Roots = append(t.Roots, cur)
		mark(cur)
	}
}

func (n *Node) detach() {
	if n.Parent == nil {
		return
	}
	siblings := n.Parent.Children
	if i := slices.Index(siblings, n); i >= 0 {
		n.Parent.Children = slices.Delete(siblings, i, i+1)
	}
	n.Parent = nil
}

func (t *Trace) assignDepths() {
	t.Walk(func(n *Node) bool {
		if n.Parent != nil {
			n.Depth = n.Parent.Depth + 1
		} else {
			n.Depth = 0
		}
		return true
	})
}

func sortByStart(nodes []*Node) {
	slices.SortStableFunc(nodes, func(a, b *Node) int {
		return cmp.Compare(a.StartMs, b.StartMs)
	})
}
