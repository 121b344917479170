// Package tui is the interactive terminal waterfall viewer.
package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tobert/otlp-waterfall/internal/render"
	"github.com/tobert/otlp-waterfall/internal/view"
)

const (
	defaultWidth  = 100
	defaultHeight = 24
	// header, axis, blank, help and up to four detail lines
	chromeLines = 8
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	focusStyle   = lipgloss.NewStyle().Reverse(true)
	warningStyle = lipgloss.NewStyle().Foreground(render.ColorError)
)

const helpText = "↑/k ↓/j move  →/l expand  ←/h collapse  enter toggle  g/G first/last  e/c all  q quit"

// Options configures the viewer.
type Options struct {
	Source         string // shown in the title
	ColorByService bool
	NoColor        bool
}

// changedMsg is delivered when the session reports a new state.
type changedMsg struct{}

// Model is the bubbletea model. All navigation goes through the shared
// session so other front ends see the same focus.
type Model struct {
	session     *view.Session
	sub         <-chan struct{}
	unsubscribe func()
	opts        Options

	snap   view.Snapshot
	width  int
	height int
	offset int // first visible row
}

// New subscribes to s. Call Close when the program exits.
func New(s *view.Session, opts Options) Model {
	sub, unsubscribe := s.Subscribe()
	m := Model{
		session:     s,
		sub:         sub,
		unsubscribe: unsubscribe,
		opts:        opts,
		width:       defaultWidth,
		height:      defaultHeight,
	}
	m.snap = s.Snapshot()
	return m
}

// Close drops the session subscription.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return changedMsg{}
	}
}

func (m Model) Init() tea.Cmd {
	return waitForChange(m.sub)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		if ev, ok := view.EventForKey(msg.String()); ok {
			m.session.Dispatch(ev)
			m.refresh()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.scrollToFocus()
		return m, nil

	case changedMsg:
		m.refresh()
		return m, waitForChange(m.sub)
	}
	return m, nil
}

func (m *Model) refresh() {
	prev := m.snap.Revision
	m.snap = m.session.Snapshot()
	if m.snap.Revision != prev {
		m.offset = 0
	}
	m.scrollToFocus()
}

func (m Model) bodyHeight() int {
	return max(m.height-chromeLines, 3)
}

// scrollToFocus keeps the focused row inside the window.
func (m *Model) scrollToFocus() {
	focus := -1
	for i, l := range m.snap.Lines {
		if l.Focused {
			focus = i
			break
		}
	}
	h := m.bodyHeight()
	if focus >= 0 {
		if focus < m.offset {
			m.offset = focus
		} else if focus >= m.offset+h {
			m.offset = focus - h + 1
		}
	}
	m.offset = max(min(m.offset, len(m.snap.Lines)-h), 0)
}

func (m Model) renderOptions() render.Options {
	return render.Options{
		Width:          m.width,
		Color:          !m.opts.NoColor,
		ColorByService: m.opts.ColorByService,
	}
}

func (m Model) View() string {
	var b strings.Builder

	title := render.Header(m.snap)
	if m.opts.Source != "" {
		title = m.opts.Source + " | " + title
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteByte('\n')

	if m.snap.Empty() {
		b.WriteString(mutedStyle.Render("Waiting for spans..."))
		b.WriteString("\n\n")
		b.WriteString(mutedStyle.Render(helpText))
		return b.String()
	}

	opts := m.renderOptions()
	b.WriteString(mutedStyle.Render(render.Axis(m.snap, opts)))
	b.WriteByte('\n')

	rows := render.Rows(m.snap, opts)
	end := min(m.offset+m.bodyHeight(), len(rows))
	for i := m.offset; i < end; i++ {
		row := rows[i]
		if m.snap.Lines[i].Focused {
			row = focusStyle.Render(row)
		}
		b.WriteString(row)
		b.WriteByte('\n')
	}
	if hidden := len(rows) - end; hidden > 0 {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("  ↓ %d more", hidden)))
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	if l, ok := m.snap.FocusedLine(); ok {
		detail := strings.TrimRight(render.Detail(l.Node, m.snap.Trace), "\n")
		if !l.Node.Valid() {
			detail = warningStyle.Render(detail)
		}
		b.WriteString(detail)
		b.WriteByte('\n')
	}
	b.WriteString(mutedStyle.Render(helpText))
	return b.String()
}

// Run starts the viewer on the alternate screen and blocks until the user
// quits or ctx is done.
func Run(ctx context.Context, s *view.Session, opts Options) error {
	m := New(s, opts)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("terminal viewer: %w", err)
	}
	return nil
}
