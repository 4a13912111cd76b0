package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-murmel/debug"
	"go-murmel/theme"
)

// logPane collects log entries for display. Entries arrive from any
// goroutine through the channel and are appended on the bubbletea loop.
type logPane struct {
	ch     chan debug.Entry
	cancel func()
	lines  []debug.Entry
}

func newLogPane(min debug.Level) *logPane {
	p := &logPane{ch: make(chan debug.Entry, 256)}
	p.cancel = debug.Subscribe(min, func(e debug.Entry) {
		select {
		case p.ch <- e:
		default: // drop rather than stall the logging goroutine
		}
	})
	return p
}

func (p *logPane) listen() tea.Cmd {
	return func() tea.Msg {
		return LogMsg(<-p.ch)
	}
}

func (p *logPane) add(e debug.Entry) {
	p.lines = append(p.lines, e)
	if over := len(p.lines) - maxLogLines; over > 0 {
		p.lines = p.lines[over:]
	}
}

func (p *logPane) close() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *logPane) view(th *theme.Theme, height int) string {
	lines := p.lines
	if len(lines) > height {
		lines = lines[len(lines)-height:]
	}

	rendered := make([]string, len(lines))
	for i, e := range lines {
		rendered[i] = lipgloss.NewStyle().Foreground(levelColor(th, e.Level)).Render(e.String())
	}
	return strings.Join(rendered, "\n")
}

func levelColor(th *theme.Theme, level debug.Level) lipgloss.Color {
	switch level {
	case debug.LevelError:
		return th.Active()
	case debug.LevelWarn:
		return th.Warning()
	case debug.LevelInfo:
		return th.FG()
	default:
		return th.Muted()
	}
}
