package render

import (
	"fmt"
	"strings"

	"github.com/tobert/otlp-waterfall/internal/timeline"
	"github.com/tobert/otlp-waterfall/internal/trace"
)

// Detail describes one span on a few lines: identity, passthrough metadata,
// timing relative to the trace and any repair flags.
func Detail(n *trace.Node, t *trace.Trace) string {
	var b strings.Builder

	name := n.SpanName
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(&b, "%s  span=%s", name, n.SpanID)
	if n.ParentSpanID != "" {
		fmt.Fprintf(&b, " parent=%s", n.ParentSpanID)
	}
	b.WriteByte('\n')

	var meta []string
	for _, kv := range [...][2]string{
		{"service", n.Service},
		{"kind", n.SpanKind},
		{"method", n.Method},
		{"url", n.URL},
		{"status", n.StatusCode},
	} {
		if kv[1] != "" {
			meta = append(meta, kv[0]+"="+kv[1])
		}
	}
	if len(meta) > 0 {
		b.WriteString(strings.Join(meta, " "))
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "start=+%s duration=%s depth=%d children=%d",
		timeline.FormatMillis(n.StartMs-t.MinStart),
		timeline.FormatMillis(n.DurationMs),
		n.Depth, len(n.Children))
	if n.Timestamp != "" {
		fmt.Fprintf(&b, " timestamp=%q", n.Timestamp)
	}
	b.WriteByte('\n')

	for _, err := range n.Issues {
		fmt.Fprintf(&b, "issue: %v\n", err)
	}
	return b.String()
}
