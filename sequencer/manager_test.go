package sequencer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-murmel/errs"
	"go-murmel/event"
)

func newTestManager(t *testing.T, out Output, versions ...[]event.Event) *Manager {
	t.Helper()
	m := NewManager(out, ManagerOptions{
		Coordinator: CoordinatorOptions{Entrypoint: "main.js", Open: openVersions(versions...)},
		Player:      PlayerOptions{StallPolicy: StallWait, StallTimeout: time.Millisecond},
	})
	m.StartRuntime()
	t.Cleanup(func() {
		m.Quit()
		_ = m.Wait()
	})
	return m
}

func TestManagerPlaysAndQuits(t *testing.T) {
	out := &recordingOutput{}
	m := newTestManager(t, out, []event.Event{event.NoteOn(60), event.Wait(10), event.NoteOff(60)})

	m.Play()
	select {
	case <-m.UpdateChan:
	case <-time.After(time.Second):
		t.Fatal("no update after Play")
	}

	require.Eventually(t, func() bool { return out.count([]byte{0x80, 60, 0}) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, Playing, m.State().Player.State)
	assert.NotEmpty(t, m.State().Coordinator.GeneratorID)

	m.Quit()
	require.NoError(t, m.Wait())
	assert.Equal(t, 1, out.count(allNotesOff))
	assert.Equal(t, 1, out.closed)
}

func TestManagerTogglePlay(t *testing.T) {
	m := newTestManager(t, &recordingOutput{}, []event.Event{event.Marker()})

	m.TogglePlay()
	require.Eventually(t, func() bool { return m.State().Player.State == Playing }, time.Second, time.Millisecond)

	m.TogglePlay()
	require.Eventually(t, func() bool { return m.State().Player.State == Stopped }, time.Second, time.Millisecond)
}

func TestManagerSetTempo(t *testing.T) {
	m := newTestManager(t, &recordingOutput{}, []event.Event{event.Marker()})

	m.SetTempo(400)
	require.Eventually(t, func() bool { return m.State().Player.Bpm == MaxBpm }, time.Second, time.Millisecond)
}

func TestManagerReload(t *testing.T) {
	m := newTestManager(t, &recordingOutput{},
		[]event.Event{event.NoteOn(1), event.Marker(), event.NoteOn(2)},
		[]event.Event{event.NoteOn(3)},
	)
	first := m.State().Coordinator.GeneratorID

	m.Reload()
	require.Eventually(t, func() bool { return m.State().Coordinator.Reloads == 1 }, time.Second, time.Millisecond)
	assert.NotEqual(t, first, m.State().Coordinator.GeneratorID)
}

func TestPlayerFailureCascades(t *testing.T) {
	out := &recordingOutput{failOn: 0x90}
	m := newTestManager(t, out, []event.Event{event.NoteOn(60), event.Wait(10)})

	m.Play()

	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("manager did not shut down after player failure")
	}

	err := m.Wait()
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Transport))
	assert.Equal(t, 1, out.count(allNotesOff))

	select {
	case <-m.coord.done:
	default:
		t.Fatal("coordinator still running")
	}
}
