package view

import (
	"fmt"

	"github.com/tobert/otlp-waterfall/internal/trace"
)

// EventKind enumerates navigation events.
type EventKind int

const (
	MoveUp EventKind = iota
	MoveDown
	MoveFirst
	MoveLast
	Expand
	Collapse
	Toggle
	ToggleRow
	Select
	ExpandEverything
	CollapseEverything
)

var eventNames = [...]string{
	MoveUp:             "move_up",
	MoveDown:           "move_down",
	MoveFirst:          "move_first",
	MoveLast:           "move_last",
	Expand:             "expand",
	Collapse:           "collapse",
	Toggle:             "toggle",
	ToggleRow:          "toggle_row",
	Select:             "select",
	ExpandEverything:   "expand_all",
	CollapseEverything: "collapse_all",
}

func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// ParseEventKind is the inverse of EventKind.String.
func ParseEventKind(s string) (EventKind, bool) {
	for k, name := range eventNames {
		if name == s {
			return EventKind(k), true
		}
	}
	return 0, false
}

// Event is one input to Reduce. SpanID is used by Select and ToggleRow.
type Event struct {
	Kind   EventKind
	SpanID string
}

// SelectSpan is the pointer-click event.
func SelectSpan(id string) Event {
	return Event{Kind: Select, SpanID: id}
}

// ToggleSpan is the per-row expand/collapse affordance.
func ToggleSpan(id string) Event {
	return Event{Kind: ToggleRow, SpanID: id}
}

// State is the interactive view of one trace. The zero value is the empty
// state: no rows, no focus.
type State struct {
	Trace    *trace.Trace
	Expanded Expansion
	// Focused and Selected are span ids, or "" for none. Both always name
	// a visible row.
	Focused  string
	Selected string

	rows  []Row
	index map[string]int
	gen   uint64
}

// NewState builds the starting state for t with focus on the first row.
func NewState(t *trace.Trace, p InitialPolicy) State {
	return State{Trace: t}.withExpansion(InitialExpansion(t, p))
}

// Rows returns the visible rows in display order. The slice is shared; do
// not modify it.
func (s State) Rows() []Row {
	return s.rows
}

// Generation increases every time Reduce changes the state.
func (s State) Generation() uint64 {
	return s.gen
}

// FocusIndex returns the focused row index, or -1 with nothing focused.
func (s State) FocusIndex() int {
	return s.rowIndex(s.Focused)
}

// FocusedRow returns the focused row, if any.
func (s State) FocusedRow() (Row, bool) {
	i := s.FocusIndex()
	if i < 0 {
		return Row{}, false
	}
	return s.rows[i], true
}

// Visible reports whether id is currently shown.
func (s State) Visible(id string) bool {
	return s.rowIndex(id) >= 0
}

func (s State) rowIndex(id string) int {
	if id == "" {
		return -1
	}
	if i, ok := s.index[id]; ok {
		return i
	}
	return -1
}

// Reduce applies ev to s. It never fails: events that do not apply, such
// as moving past either end or expanding a leaf, return s unchanged.
func Reduce(s State, ev Event) State {
	switch ev.Kind {
	case MoveUp:
		if i := s.FocusIndex(); i > 0 {
			return s.focus(s.rows[i-1].ID())
		}
	case MoveDown:
		if i := s.FocusIndex(); i >= 0 && i < len(s.rows)-1 {
			return s.focus(s.rows[i+1].ID())
		}
	case MoveFirst:
		if len(s.rows) > 0 {
			return s.focus(s.rows[0].ID())
		}
	case MoveLast:
		if len(s.rows) > 0 {
			return s.focus(s.rows[len(s.rows)-1].ID())
		}
	case Expand:
		if row, ok := s.FocusedRow(); ok && row.HasChildren() && !s.Expanded.Has(row.ID()) {
			return s.withExpansion(s.Expanded.With(row.ID()))
		}
	case Collapse:
		row, ok := s.FocusedRow()
		if !ok {
			break
		}
		if row.HasChildren() && s.Expanded.Has(row.ID()) {
			// Shallow: descendants keep their own expansion entries.
			return s.withExpansion(s.Expanded.Without(row.ID()))
		}
		if p := row.Node.Parent; p != nil && s.Visible(p.SpanID) {
			return s.focus(p.SpanID)
		}
	case Toggle:
		if row, ok := s.FocusedRow(); ok {
			return s.toggle(row.Node)
		}
	case ToggleRow:
		if i := s.rowIndex(ev.SpanID); i >= 0 {
			return s.toggle(s.rows[i].Node)
		}
	case Select:
		if s.Visible(ev.SpanID) && (s.Selected != ev.SpanID || s.Focused != ev.SpanID) {
			next := s
			next.Selected = ev.SpanID
			next.Focused = ev.SpanID
			next.gen++
			return next
		}
	case ExpandEverything:
		if all := InitialExpansion(s.Trace, ExpandAll); !all.Equal(s.Expanded) {
			return s.withExpansion(all)
		}
	case CollapseEverything:
		if s.Expanded.Len() == 0 {
			break
		}
		next := s
		// Keep focus on the same tree by moving it to the root ancestor.
		if row, ok := s.FocusedRow(); ok {
			root := row.Node
			for root.Parent != nil {
				root = root.Parent
			}
			next.Focused = root.SpanID
		}
		return next.withExpansion(NewExpansion())
	}
	return s
}

func (s State) focus(id string) State {
	if id == s.Focused {
		return s
	}
	s.Focused = id
	s.gen++
	return s
}

func (s State) toggle(n *trace.Node) State {
	if !n.HasChildren() {
		return s
	}
	if s.Expanded.Has(n.SpanID) {
		return s.withExpansion(s.Expanded.Without(n.SpanID))
	}
	return s.withExpansion(s.Expanded.With(n.SpanID))
}

// withExpansion re-flattens under e and repairs focus and selection: focus
// that is no longer visible falls back to the first row, selection to none.
func (s State) withExpansion(e Expansion) State {
	s.Expanded = e
	if s.Trace != nil {
		s.rows = Flatten(s.Trace.Roots, e)
	} else {
		s.rows = nil
	}
	s.index = make(map[string]int, len(s.rows))
	for i, r := range s.rows {
		s.index[r.ID()] = i
	}

	if !s.Visible(s.Focused) {
		s.Focused = ""
		if len(s.rows) > 0 {
			s.Focused = s.rows[0].ID()
		}
	}
	if !s.Visible(s.Selected) {
		s.Selected = ""
	}
	s.gen++
	return s
}
