package sequencer

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-murmel/errs"
	"go-murmel/event"
)

var (
	allNotesOff = []byte{0xB0, 123, 0}
	beat        = event.Wait(event.TicksPerBeat)
)

// fakeClock fires every sleep immediately and then moves time past the
// wake instant by delay, standing in for processing overhead.
type fakeClock struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
	delay time.Duration
	wakes []time.Duration
}

func newFakeClock(delay time.Duration) *fakeClock {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &fakeClock{start: t0, now: t0, delay: delay}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	wake := c.now.Add(d)
	c.wakes = append(c.wakes, wake.Sub(c.start))
	c.now = wake.Add(c.delay)

	ch := make(chan time.Time, 1)
	ch <- wake
	return ch
}

func never(time.Duration) <-chan time.Time { return nil }

type recordingOutput struct {
	mu     sync.Mutex
	msgs   [][]byte
	closed int
	failOn byte // status nibble that fails, 0 for none
}

func (o *recordingOutput) Send(msg []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, bytes.Clone(msg))
	if o.failOn != 0 && msg[0]&0xF0 == o.failOn {
		return errors.New("port disconnected")
	}
	return nil
}

func (o *recordingOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed++
	return nil
}

func (o *recordingOutput) sent() [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([][]byte(nil), o.msgs...)
}

func (o *recordingOutput) count(msg []byte) int {
	n := 0
	for _, m := range o.sent() {
		if bytes.Equal(m, msg) {
			n++
		}
	}
	return n
}

// bufferSource serves a fixed buffer to the player.
type bufferSource struct{ *Buffer }

func newBufferSource(evs ...event.Event) bufferSource {
	b := NewBuffer()
	b.Append(evs...)
	return bufferSource{b}
}

func (s bufferSource) Next() (event.Event, bool) {
	ev, _, ok := s.Pop()
	return ev, ok
}

func playingPlayer(clk *fakeClock, out *recordingOutput) *Player {
	p := NewPlayer(newBufferSource(), out, PlayerOptions{Now: clk.Now, After: clk.After})
	p.state = Playing
	return p
}

func processAll(t *testing.T, p *Player, evs ...event.Event) {
	t.Helper()
	for _, ev := range evs {
		exit, err := p.process(ev)
		require.NoError(t, err)
		require.False(t, exit)
	}
}

func TestOutOfRangeNoteIsSkipped(t *testing.T) {
	out := &recordingOutput{}
	p := playingPlayer(newFakeClock(0), out)

	processAll(t, p, event.NoteOn(200), event.NoteOff(128), event.NoteOn(60))

	assert.Equal(t, [][]byte{{0x90, 60, 100}}, out.sent())
	require.NoError(t, p.stop())
	assert.Equal(t, 1, out.count([]byte{0x80, 60, 0}))
}

func TestWaitsTargetAbsoluteOffsets(t *testing.T) {
	clk := newFakeClock(10 * time.Millisecond)
	p := playingPlayer(clk, &recordingOutput{})

	processAll(t, p, beat, beat, beat)

	// each sleep is shortened by the overhead of the previous one
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second, 1500 * time.Millisecond}, clk.wakes)
	assert.Equal(t, 1500*time.Millisecond, p.shouldHaveElapsed)
}

func TestLateWaitIsSkipped(t *testing.T) {
	clk := newFakeClock(600 * time.Millisecond)
	p := playingPlayer(clk, &recordingOutput{})

	processAll(t, p, beat, beat, beat)

	// the second beat is already overdue when it is processed
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 1500 * time.Millisecond}, clk.wakes)
}

func TestChangeBpmScalesLaterWaits(t *testing.T) {
	clk := newFakeClock(0)
	p := playingPlayer(clk, &recordingOutput{})

	processAll(t, p, beat, event.ChangeBpm(240), beat, event.Wait(event.TicksPerBeat/2))

	assert.Equal(t, []time.Duration{500 * time.Millisecond, 750 * time.Millisecond, 875 * time.Millisecond}, clk.wakes)
	assert.Equal(t, uint16(240), p.Status().Bpm)
}

func TestChangeBpmZeroIsIgnored(t *testing.T) {
	p := playingPlayer(newFakeClock(0), &recordingOutput{})
	processAll(t, p, event.ChangeBpm(0))
	assert.Equal(t, uint16(event.NominalBPM), p.bpm)
}

func TestSetBpmClamps(t *testing.T) {
	p := playingPlayer(newFakeClock(0), &recordingOutput{})

	_, err := p.handle(SetBpm{Bpm: 1000})
	require.NoError(t, err)
	assert.Equal(t, uint16(MaxBpm), p.bpm)

	_, err = p.handle(SetBpm{Bpm: 5})
	require.NoError(t, err)
	assert.Equal(t, uint16(MinBpm), p.bpm)
}

func TestEventsEncodeToChannelVoiceMessages(t *testing.T) {
	out := &recordingOutput{}
	p := NewPlayer(newBufferSource(), out, PlayerOptions{Channel: 2, Velocity: 90})
	p.state = Playing

	processAll(t, p, event.NoteOn(60), event.Print("hello"), event.Marker(), event.NoteOff(60), event.AllNotesOff())

	assert.Equal(t, [][]byte{{0x92, 60, 90}, {0x82, 60, 0}, {0xB2, 123, 0}}, out.sent())
	assert.Equal(t, uint64(5), p.Status().Played)
}

func TestStopIsIdempotent(t *testing.T) {
	out := &recordingOutput{}
	p := NewPlayer(newBufferSource(), out, PlayerOptions{After: never})

	_, err := p.handle(Stop{})
	require.NoError(t, err)
	assert.Equal(t, Stopped, p.state)
	assert.True(t, p.firstEventInstant.IsZero())
	assert.Zero(t, p.shouldHaveElapsed)
	assert.Empty(t, out.sent())
}

func TestStopResetsAnchorsAndReleasesNotes(t *testing.T) {
	clk := newFakeClock(0)
	out := &recordingOutput{}
	p := playingPlayer(clk, out)

	processAll(t, p, event.NoteOn(60), event.NoteOn(64), event.NoteOff(64), beat)
	require.False(t, p.firstEventInstant.IsZero())

	_, err := p.handle(Stop{})
	require.NoError(t, err)
	assert.Equal(t, Stopped, p.state)
	assert.True(t, p.firstEventInstant.IsZero())
	assert.Zero(t, p.shouldHaveElapsed)
	assert.Equal(t, 1, out.count([]byte{0x80, 60, 0}))

	before := len(out.sent())
	_, err = p.handle(Stop{})
	require.NoError(t, err)
	assert.Len(t, out.sent(), before)
}

func TestControlsInterruptWait(t *testing.T) {
	t.Run("stop", func(t *testing.T) {
		p := NewPlayer(newBufferSource(), &recordingOutput{}, PlayerOptions{After: never})
		p.state = Playing
		p.Stop()

		exit, err := p.process(beat)
		require.NoError(t, err)
		assert.False(t, exit)
		assert.Equal(t, Stopped, p.state)
		assert.Zero(t, p.shouldHaveElapsed)
	})

	t.Run("exit", func(t *testing.T) {
		p := NewPlayer(newBufferSource(), &recordingOutput{}, PlayerOptions{After: never})
		p.state = Playing
		p.Exit()

		exit, err := p.process(beat)
		require.NoError(t, err)
		assert.True(t, exit)
	})
}

func runPlayer(t *testing.T, src EventSource, out Output, opts PlayerOptions) *Player {
	t.Helper()
	p := NewPlayer(src, out, opts)
	p.Start()
	t.Cleanup(func() {
		p.Exit()
		_ = p.Wait()
	})
	return p
}

func TestExitSendsAllNotesOffOnce(t *testing.T) {
	out := &recordingOutput{}
	p := runPlayer(t, newBufferSource(event.NoteOn(60)), out, PlayerOptions{
		StallPolicy:  StallWait,
		StallTimeout: time.Millisecond,
	})
	p.Play()

	require.Eventually(t, func() bool { return out.count([]byte{0x90, 60, 100}) == 1 }, time.Second, time.Millisecond)

	p.Exit()
	require.NoError(t, p.Wait())
	assert.Equal(t, 1, out.count(allNotesOff))
	assert.Equal(t, 1, out.closed)
	assert.Equal(t, Stopped, p.Status().State)
}

func TestStarvationStopsPlayback(t *testing.T) {
	out := &recordingOutput{}
	p := runPlayer(t, newBufferSource(), out, PlayerOptions{StallTimeout: time.Millisecond})
	p.Play()

	require.Eventually(t, func() bool {
		st := p.Status()
		return st.Stalls > 0 && st.State == Stopped
	}, time.Second, time.Millisecond)
	assert.Zero(t, out.count(allNotesOff))

	p.Exit()
	require.NoError(t, p.Wait())
	assert.Equal(t, 1, out.count(allNotesOff))
}

func TestStallResumesWhenEventsArrive(t *testing.T) {
	out := &recordingOutput{}
	src := newBufferSource()
	p := runPlayer(t, src, out, PlayerOptions{StallPolicy: StallWait, StallTimeout: time.Millisecond})
	p.Play()

	require.Eventually(t, func() bool { return p.Status().Stalls > 0 }, time.Second, time.Millisecond)
	src.Append(event.NoteOn(72))

	require.Eventually(t, func() bool { return out.count([]byte{0x90, 72, 100}) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, Playing, p.Status().State)
}

func TestTransportErrorStillCleansUp(t *testing.T) {
	out := &recordingOutput{failOn: 0x90}
	p := runPlayer(t, newBufferSource(event.NoteOn(60), beat), out, PlayerOptions{})
	p.Play()

	err := p.Wait()
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Transport))
	assert.Equal(t, 1, out.count(allNotesOff))
	assert.Equal(t, 1, out.closed)
}

func TestOnChangeReportsState(t *testing.T) {
	var mu sync.Mutex
	var states []PlayerState
	p := NewPlayer(newBufferSource(), &recordingOutput{}, PlayerOptions{
		After: never,
		OnChange: func(st PlayerStatus) {
			mu.Lock()
			defer mu.Unlock()
			states = append(states, st.State)
		},
	})

	_, err := p.handle(Play{})
	require.NoError(t, err)
	_, err = p.handle(Play{})
	require.NoError(t, err)
	_, err = p.handle(Stop{})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []PlayerState{Playing, Stopped}, states)
}
