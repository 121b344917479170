// Package view turns a span forest into the rows a waterfall shows and
// drives focus, selection and expand/collapse over them.
//
// State values are immutable: Reduce returns a new State for every event and
// never modifies its input, so older states stay valid snapshots.
package view

import (
	"fmt"
	"maps"
	"slices"

	"github.com/tobert/otlp-waterfall/internal/trace"
)

// Expansion is an immutable set of expanded span ids.
type Expansion struct {
	ids map[string]struct{}
}

// NewExpansion returns a set holding ids.
func NewExpansion(ids ...string) Expansion {
	e := Expansion{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		e.ids[id] = struct{}{}
	}
	return e
}

// Has reports whether id is expanded.
func (e Expansion) Has(id string) bool {
	_, ok := e.ids[id]
	return ok
}

// Len returns the number of expanded ids.
func (e Expansion) Len() int {
	return len(e.ids)
}

// With returns a set that also contains id. e is unchanged.
func (e Expansion) With(id string) Expansion {
	if e.Has(id) {
		return e
	}
	next := Expansion{ids: maps.Clone(e.ids)}
	if next.ids == nil {
		next.ids = make(map[string]struct{}, 1)
	}
	next.ids[id] = struct{}{}
	return next
}

// Without returns a set that no longer contains id. e is unchanged.
func (e Expansion) Without(id string) Expansion {
	if !e.Has(id) {
		return e
	}
	next := Expansion{ids: maps.Clone(e.ids)}
	delete(next.ids, id)
	return next
}

// IDs returns the expanded ids in sorted order.
func (e Expansion) IDs() []string {
	return slices.Sorted(maps.Keys(e.ids))
}

// Equal reports whether both sets hold the same ids.
func (e Expansion) Equal(o Expansion) bool {
	return maps.Equal(e.ids, o.ids)
}

// InitialPolicy decides which spans start expanded when a trace is loaded.
type InitialPolicy int

const (
	// ExpandAll expands every span that has children.
	ExpandAll InitialPolicy = iota
	// ExpandRoots expands only root spans.
	ExpandRoots
)

// ParseInitialPolicy maps "all" or "roots" to a policy.
func ParseInitialPolicy(s string) (InitialPolicy, error) {
	switch s {
	case "", "all":
		return ExpandAll, nil
	case "roots":
		return ExpandRoots, nil
	}
	return ExpandAll, fmt.Errorf("unknown initial expansion %q (want all or roots)", s)
}

func (p InitialPolicy) String() string {
	if p == ExpandRoots {
		return "roots"
	}
	return "all"
}

// InitialExpansion builds the starting expansion set for t.
func InitialExpansion(t *trace.Trace, p InitialPolicy) Expansion {
	e := NewExpansion()
	if t == nil {
		return e
	}
	if p == ExpandRoots {
		for _, r := range t.Roots {
			if r.HasChildren() {
				e.ids[r.SpanID] = struct{}{}
			}
		}
		return e
	}
	t.Walk(func(n *trace.Node) bool {
		if n.HasChildren() {
			e.ids[n.SpanID] = struct{}{}
		}
		return true
	})
	return e
}
