package render

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// serviceColors is cycled through in first-appearance order.
var serviceColors = []lipgloss.Color{
	"#3b82f6", // blue
	"#22c55e", // green
	"#a855f7", // purple
	"#f97316", // orange
	"#ec4899", // pink
	"#14b8a6", // teal
	"#ef4444", // red
	"#6366f1", // indigo
	"#eab308", // yellow
}

const (
	ColorOK      = lipgloss.Color("#22c55e")
	ColorDefault = lipgloss.Color("#3b82f6")
	ColorError   = lipgloss.Color("#ef4444")
	ColorMissing = lipgloss.Color("#cccccc")
)

// Palette assigns each service a stable colour.
type Palette struct {
	index map[string]int
}

// NewPalette numbers services in the order given, which callers take from
// trace.Services so colours follow first appearance.
func NewPalette(services []string) *Palette {
	p := &Palette{index: make(map[string]int, len(services))}
	for _, s := range services {
		if _, ok := p.index[s]; !ok {
			p.index[s] = len(p.index)
		}
	}
	return p
}

// Color returns the service's colour. Unknown services are grey.
func (p *Palette) Color(service string) lipgloss.Color {
	i, ok := p.index[service]
	if !ok {
		return ColorMissing
	}
	return serviceColors[i%len(serviceColors)]
}

// BarColor picks a bar colour by service or, with byService false, by status.
func (p *Palette) BarColor(service, status string, byService bool) lipgloss.Color {
	if byService {
		return p.Color(service)
	}
	return StatusColor(status)
}

// StatusColor maps a status code to green for success, red for errors and
// blue for anything else (including unset).
func StatusColor(status string) lipgloss.Color {
	switch {
	case IsError(status):
		return ColorError
	case IsOK(status):
		return ColorOK
	}
	return ColorDefault
}

// IsOK reports whether status means success: "OK" in any case or a 2xx code.
func IsOK(status string) bool {
	if strings.EqualFold(status, "ok") {
		return true
	}
	code, err := strconv.Atoi(status)
	return err == nil && code >= 200 && code < 300
}

// IsError reports whether status means failure: "ERROR" in any case,
// the OTLP enum name, or an HTTP code of 400 or above.
func IsError(status string) bool {
	if strings.EqualFold(status, "error") || status == "STATUS_CODE_ERROR" {
		return true
	}
	code, err := strconv.Atoi(status)
	return err == nil && code >= 400
}
