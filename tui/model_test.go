package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-murmel/debug"
	"go-murmel/sequencer"
	"go-murmel/theme"
)

type fakeController struct {
	state   sequencer.State
	toggles int
	stops   int
	reloads int
	tempos  []int
	quits   int
	updates chan struct{}
	done    chan struct{}
}

func newFakeController() *fakeController {
	return &fakeController{
		state: sequencer.State{
			Player:      sequencer.PlayerStatus{State: sequencer.Playing, Bpm: 120, Played: 42},
			Coordinator: sequencer.CoordinatorStatus{Buffered: 17, GeneratorID: "1b4e28ba", Reloads: 2},
		},
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (f *fakeController) TogglePlay()              { f.toggles++ }
func (f *fakeController) Stop()                    { f.stops++ }
func (f *fakeController) Reload()                  { f.reloads++ }
func (f *fakeController) SetTempo(bpm int)         { f.tempos = append(f.tempos, bpm) }
func (f *fakeController) Quit()                    { f.quits++ }
func (f *fakeController) State() sequencer.State   { return f.state }
func (f *fakeController) Updates() <-chan struct{} { return f.updates }
func (f *fakeController) Done() <-chan struct{}    { return f.done }

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestKeysDriveController(t *testing.T) {
	ctl := newFakeController()
	m := NewModel(ctl, theme.Default(), "main.js")
	t.Cleanup(m.logs.close)

	press(t, m, runes("p"), runes("s"), runes("r"), runes("+"), runes("-"))

	assert.Equal(t, 1, ctl.toggles)
	assert.Equal(t, 1, ctl.stops)
	assert.Equal(t, 1, ctl.reloads)
	assert.Equal(t, []int{125, 115}, ctl.tempos)
}

func TestQuit(t *testing.T) {
	ctl := newFakeController()
	m := NewModel(ctl, theme.Default(), "main.js")

	next, cmd := m.Update(runes("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, 1, ctl.quits)
	assert.Empty(t, next.(Model).View())
}

func TestDoneQuits(t *testing.T) {
	ctl := newFakeController()
	m := NewModel(ctl, theme.Default(), "main.js")

	next, cmd := m.Update(DoneMsg{})
	require.NotNil(t, cmd)
	assert.True(t, next.(Model).quitting)
	assert.Zero(t, ctl.quits)
}

func TestViewShowsStatusAndLogs(t *testing.T) {
	ctl := newFakeController()
	m := NewModel(ctl, theme.Default(), "main.js")
	t.Cleanup(m.logs.close)

	m = press(t, m,
		tea.WindowSizeMsg{Width: 120, Height: 30},
		LogMsg(debug.Entry{Time: time.Now(), Level: debug.LevelWarn, Category: "coordinator", Message: "reload: no marker buffered"}),
	)

	view := m.View()
	assert.Contains(t, view, "PLAY")
	assert.Contains(t, view, "120bpm")
	assert.Contains(t, view, "1b4e28ba")
	assert.Contains(t, view, "buffer:   17")
	assert.Contains(t, view, "reload: no marker buffered")
}

func TestLogPaneKeepsTail(t *testing.T) {
	p := &logPane{}
	for i := 0; i < maxLogLines+5; i++ {
		p.add(debug.Entry{Message: "line"})
	}
	assert.Len(t, p.lines, maxLogLines)

	view := p.view(theme.Default(), 3)
	assert.Equal(t, 2, countNewlines(view))
}

func countNewlines(s string) int {
	n := 0
	for _, r := range s {
		if r == '\n' {
			n++
		}
	}
	return n
}
