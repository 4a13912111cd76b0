package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-murmel/debug"
	"go-murmel/sequencer"
	"go-murmel/theme"
)

// Controller is the part of the sequencer manager the TUI drives.
type Controller interface {
	TogglePlay()
	Stop()
	Reload()
	SetTempo(bpm int)
	Quit()
	State() sequencer.State
	Updates() <-chan struct{}
	Done() <-chan struct{}
}

const (
	maxLogLines  = 200
	refreshEvery = 100 * time.Millisecond
	tempoStep    = 5
)

type Model struct {
	Controller Controller
	Theme      *theme.Theme
	Entrypoint string

	keys     keyMap
	help     help.Model
	logs     *logPane
	width    int
	height   int
	quitting bool
}

type UpdateMsg struct{}

type TickMsg time.Time

type LogMsg debug.Entry

// DoneMsg is sent once the sequencer has shut down on its own.
type DoneMsg struct{}

func NewModel(ctl Controller, th *theme.Theme, entrypoint string) Model {
	return Model{
		Controller: ctl,
		Theme:      th,
		Entrypoint: entrypoint,
		keys:       newKeyMap(),
		help:       help.New(),
		logs:       newLogPane(debug.LevelInfo),
	}
}

func ListenForUpdates(ctl Controller) tea.Cmd {
	return func() tea.Msg {
		<-ctl.Updates()
		return UpdateMsg{}
	}
}

func WaitForDone(ctl Controller) tea.Cmd {
	return func() tea.Msg {
		<-ctl.Done()
		return DoneMsg{}
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		ListenForUpdates(m.Controller),
		WaitForDone(m.Controller),
		m.logs.listen(),
		tick(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			m.logs.close()
			m.Controller.Quit()
			return m, tea.Quit

		case key.Matches(msg, m.keys.Play):
			m.Controller.TogglePlay()

		case key.Matches(msg, m.keys.Stop):
			m.Controller.Stop()

		case key.Matches(msg, m.keys.Reload):
			debug.Info("tui", "reloading %s", m.Entrypoint)
			m.Controller.Reload()

		case key.Matches(msg, m.keys.TempoUp):
			bpm := int(m.Controller.State().Player.Bpm)
			m.Controller.SetTempo(bpm + tempoStep)

		case key.Matches(msg, m.keys.TempoDn):
			bpm := int(m.Controller.State().Player.Bpm)
			m.Controller.SetTempo(bpm - tempoStep)

		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width

	case UpdateMsg:
		return m, ListenForUpdates(m.Controller)

	case TickMsg:
		return m, tick()

	case LogMsg:
		m.logs.add(debug.Entry(msg))
		return m, m.logs.listen()

	case DoneMsg:
		m.quitting = true
		m.logs.close()
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	st := m.Controller.State()

	// Styles
	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())

	playState := lipgloss.NewStyle().Foreground(m.Theme.Warning()).
		Render(fmt.Sprintf("%c STOP", m.Theme.Symbols.Stopped))
	if st.Player.State == sequencer.Playing {
		playState = lipgloss.NewStyle().Foreground(m.Theme.Success()).
			Render(fmt.Sprintf("%c PLAY", m.Theme.Symbols.Playing))
	}

	gen := st.Coordinator.GeneratorID
	if gen == "" {
		gen = "none"
	}

	header := headerStyle.Render("murmel  "+m.Entrypoint) + "  " + playState + "  " +
		headerStyle.Render(fmt.Sprintf("%3dbpm", st.Player.Bpm))
	status := dimStyle.Render(fmt.Sprintf("buffer:%5d  generator:%s  %c%d  played:%d  stalls:%d",
		st.Coordinator.Buffered, gen, m.Theme.Symbols.Reload, st.Coordinator.Reloads,
		st.Player.Played, st.Player.Stalls))

	helpView := m.help.View(m.keys)

	// log pane fills what is left of the window
	logHeight := 10
	if m.height > 0 {
		logHeight = max(m.height-lipgloss.Height(header)-lipgloss.Height(status)-lipgloss.Height(helpView)-4, 1)
	}

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n")
	out.WriteString(status)
	out.WriteString("\n\n")
	out.WriteString(m.logs.view(m.Theme, logHeight))
	out.WriteString("\n")
	out.WriteString(helpView)

	return out.String()
}
