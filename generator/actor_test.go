package generator_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-murmel/errs"
	"go-murmel/event"
	"go-murmel/generator"
)

func openSlice(src *sliceSource) generator.Opener {
	return func(string, time.Duration) (generator.Source, error) { return src, nil }
}

func TestActorGetEventsInRequestOrder(t *testing.T) {
	src := &sliceSource{
		events: []event.Event{event.NoteOn(1), quarter, event.NoteOn(2), quarter, event.NoteOn(3), quarter},
	}
	a, err := generator.NewActor("seq", openSlice(src), generator.DefaultLimits)
	require.NoError(t, err)
	require.Len(t, a.ShortID(), 8)

	first, err := a.GetEvents(250 * time.Millisecond)
	require.NoError(t, err)
	second, err := a.GetEvents(500 * time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, []event.Event{event.NoteOn(1), quarter}, first)
	assert.Equal(t, []event.Event{event.NoteOn(2), quarter, event.NoteOn(3), quarter}, second)

	a.Exit()
	require.NoError(t, a.Wait())
	assert.True(t, src.closed.Load())
}

func TestActorConstructionErrorIsSynchronous(t *testing.T) {
	boom := errors.New("no such file")
	a, err := generator.NewActor("missing.js", func(string, time.Duration) (generator.Source, error) {
		return nil, boom
	}, generator.DefaultLimits)

	assert.Nil(t, a)
	assert.ErrorIs(t, err, boom)
}

func TestActorConstructionPanic(t *testing.T) {
	a, err := generator.NewActor("x", func(string, time.Duration) (generator.Source, error) {
		panic("engine crashed")
	}, generator.DefaultLimits)

	assert.Nil(t, a)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Link))
}

func TestActorAfterExit(t *testing.T) {
	a, err := generator.NewActor("seq", openSlice(&sliceSource{events: []event.Event{quarter}, loop: true}), generator.DefaultLimits)
	require.NoError(t, err)

	a.Exit()
	a.Exit() // idempotent
	require.NoError(t, a.Wait())

	_, err = a.GetEvents(time.Second)
	assert.ErrorIs(t, err, generator.ErrActorGone)
	assert.True(t, errs.Is(err, errs.Link))
}

type panicSource struct{}

func (panicSource) Next() (event.Event, bool, error) { panic("bad state") }
func (panicSource) Close() error                      { return nil }

func TestActorPanicDuringRequest(t *testing.T) {
	a, err := generator.NewActor("seq", func(string, time.Duration) (generator.Source, error) {
		return panicSource{}, nil
	}, generator.DefaultLimits)
	require.NoError(t, err)

	_, err = a.GetEvents(time.Second)
	assert.ErrorIs(t, err, generator.ErrActorGone)

	err = a.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad state")
}

func TestActorRunsOnItsOwnThread(t *testing.T) {
	// Two actors serve requests concurrently; a slow one must not hold up
	// the other.
	slow := &blockingSource{interrupt: make(chan string)}
	slowActor, err := generator.NewActor("slow", func(string, time.Duration) (generator.Source, error) { return slow, nil }, generator.Limits{})
	require.NoError(t, err)

	fast, err := generator.NewActor("fast", openSlice(&sliceSource{events: []event.Event{quarter}, loop: true}), generator.DefaultLimits)
	require.NoError(t, err)

	slowDone := make(chan error, 1)
	go func() {
		_, err := slowActor.GetEvents(time.Second)
		slowDone <- err
	}()
	runtime.Gosched()

	evs, err := fast.GetEvents(time.Second)
	require.NoError(t, err)
	assert.Len(t, evs, 4)

	slow.Interrupt("release")
	assert.Error(t, <-slowDone)

	slowActor.Exit()
	fast.Exit()
	require.NoError(t, slowActor.Wait())
	require.NoError(t, fast.Wait())
}
