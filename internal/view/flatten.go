package view

import "github.com/tobert/otlp-waterfall/internal/trace"

// Row is one visible span in display order.
type Row struct {
	Node     *trace.Node
	Depth    int
	Expanded bool
}

// ID returns the row's span id.
func (r Row) ID() string {
	return r.Node.SpanID
}

// HasChildren reports whether the row can be expanded.
func (r Row) HasChildren() bool {
	return r.Node.HasChildren()
}

type frame struct {
	node  *trace.Node
	depth int
}

// Flatten lists the visible spans in pre-order. A node's children are
// visited only when its id is in expanded, so the cost is proportional to
// the number of visible rows, not to the size of the forest.
func Flatten(roots []*trace.Node, expanded Expansion) []Row {
	rows := make([]Row, 0, len(roots))
	stack := make([]frame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{node: roots[i]})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		open := f.node.HasChildren() && expanded.Has(f.node.SpanID)
		rows = append(rows, Row{Node: f.node, Depth: f.depth, Expanded: open})
		if !open {
			continue
		}
		kids := f.node.Children
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: kids[i], depth: f.depth + 1})
		}
	}
	return rows
}
