package sequencer

import (
	"errors"
	"sync"

	"go-murmel/debug"
)

type ManagerOptions struct {
	Coordinator CoordinatorOptions
	Player      PlayerOptions
}

// Manager wires the coordinator to the player and is the control surface
// for the host: TUI, MIDI remote and signal handling.
type Manager struct {
	coord  *Coordinator
	player *Player

	quitOnce sync.Once
	done     chan struct{}
	err      error

	// Notify TUI of updates
	UpdateChan chan struct{}
}

// NewManager creates the coordinator, which loads the first batch of
// events, and a player reading from it. Nothing runs until StartRuntime.
func NewManager(out Output, opts ManagerOptions) *Manager {
	m := &Manager{
		done:       make(chan struct{}),
		UpdateChan: make(chan struct{}, 1),
	}

	onChange := opts.Player.OnChange
	opts.Player.OnChange = func(st PlayerStatus) {
		if onChange != nil {
			onChange(st)
		}
		m.notifyUpdate()
	}

	m.coord = NewCoordinator(opts.Coordinator)
	m.player = NewPlayer(m.coord, out, opts.Player)
	return m
}

// StartRuntime starts the coordinator and player goroutines. When either
// one exits, for any reason, the other is told to exit too.
func (m *Manager) StartRuntime() {
	m.coord.Start()
	m.player.Start()

	go func() {
		select {
		case <-m.coord.done:
			debug.Log("manager", "coordinator exited, stopping player")
		case <-m.player.Done():
			debug.Log("manager", "player exited, stopping coordinator")
		}
		m.Quit()

		m.err = errors.Join(m.player.Wait(), m.coord.Wait())
		close(m.done)
		m.notifyUpdate()
	}()
}

func (m *Manager) Play() { m.player.Play() }
func (m *Manager) Stop() { m.player.Stop() }

// TogglePlay starts or stops based on the last reported state.
func (m *Manager) TogglePlay() {
	if m.player.Status().State == Playing {
		m.Stop()
		return
	}
	m.Play()
}

// SetTempo sets the BPM, clamped to 20..300
func (m *Manager) SetTempo(bpm int) { m.player.SetBpm(bpm) }

// Reload swaps in a fresh generator from the next marker on.
func (m *Manager) Reload() {
	m.coord.ReloadFromNextMarker()
	m.notifyUpdate()
}

// Quit asks both actors to exit. Safe to call more than once.
func (m *Manager) Quit() {
	m.quitOnce.Do(func() {
		m.player.Exit()
		m.coord.Exit()
	})
}

// Done is closed once both actors have exited.
func (m *Manager) Done() <-chan struct{} { return m.done }

// Wait blocks until both actors have exited and returns their joined errors.
func (m *Manager) Wait() error {
	<-m.done
	return m.err
}

type State struct {
	Player      PlayerStatus
	Coordinator CoordinatorStatus
}

func (m *Manager) State() State {
	return State{
		Player:      m.player.Status(),
		Coordinator: m.coord.Status(),
	}
}

func (m *Manager) notifyUpdate() {
	select {
	case m.UpdateChan <- struct{}{}:
	default:
	}
}

// Updates receives after state changes worth redrawing.
func (m *Manager) Updates() <-chan struct{} { return m.UpdateChan }
