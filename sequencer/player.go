package sequencer

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go-murmel/debug"
	"go-murmel/errs"
	"go-murmel/event"
	"go-murmel/midi"
)

// Player messages. Exit is shared with the Coordinator.
type (
	Play   struct{}
	Stop   struct{}
	SetBpm struct{ Bpm int }
)

type PlayerState int

const (
	Stopped PlayerState = iota
	Playing
)

func (s PlayerState) String() string {
	if s == Playing {
		return "playing"
	}
	return "stopped"
}

// StallPolicy decides what happens when the buffer stays empty while playing.
type StallPolicy string

const (
	StallStop StallPolicy = "stop"
	StallWait StallPolicy = "wait"
)

const (
	MinBpm = 20
	MaxBpm = 300

	DefaultStallTimeout = 250 * time.Millisecond
)

// Output receives encoded channel-voice messages. The Player is its only
// writer and closes it on exit.
type Output interface {
	Send(msg []byte) error
	Close() error
}

// EventSource is the consumer side of the event buffer.
type EventSource interface {
	Next() (event.Event, bool)
	Appended() <-chan struct{}
}

type PlayerOptions struct {
	Channel      uint8 // 0-15
	Velocity     uint8
	Bpm          uint16
	Realtime     bool // raise the thread priority
	StallTimeout time.Duration
	StallPolicy  StallPolicy

	// OnChange is called from the player goroutine after a state or tempo
	// change. It must not block.
	OnChange func(PlayerStatus)

	// clock, replaced in tests
	Now   func() time.Time
	After func(time.Duration) <-chan time.Time
}

// PlayerStatus is a snapshot for display
type PlayerStatus struct {
	State  PlayerState
	Bpm    uint16
	Played uint64
	Stalls uint64
}

// Player realizes buffered events as timed MIDI output.
type Player struct {
	src   EventSource
	out   Output
	opts  PlayerOptions
	inbox *mailbox[any]

	// owned by the player goroutine
	state             PlayerState
	bpm               uint16
	firstEventInstant time.Time
	shouldHaveElapsed time.Duration
	sounding          [128]bool

	mu     sync.Mutex
	status PlayerStatus

	started atomic.Bool
	done    chan struct{}
	err     error
}

func NewPlayer(src EventSource, out Output, opts PlayerOptions) *Player {
	if opts.Bpm == 0 {
		opts.Bpm = event.NominalBPM
	}
	if opts.Velocity == 0 {
		opts.Velocity = 100
	}
	if opts.StallTimeout <= 0 {
		opts.StallTimeout = DefaultStallTimeout
	}
	if opts.StallPolicy == "" {
		opts.StallPolicy = StallStop
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.After == nil {
		opts.After = time.After
	}

	p := &Player{
		src:   src,
		out:   out,
		opts:  opts,
		inbox: newMailbox[any](),
		bpm:   opts.Bpm,
		done:  make(chan struct{}),
	}
	p.status = PlayerStatus{State: Stopped, Bpm: p.bpm}
	return p
}

// Start runs the player loop on its own locked OS thread.
func (p *Player) Start() {
	if p.started.CompareAndSwap(false, true) {
		go p.run()
	}
}

func (p *Player) Send(msg any) { p.inbox.Put(msg) }

func (p *Player) Play()          { p.Send(Play{}) }
func (p *Player) Stop()          { p.Send(Stop{}) }
func (p *Player) SetBpm(bpm int) { p.Send(SetBpm{Bpm: bpm}) }
func (p *Player) Exit()          { p.Send(Exit{}) }

// Wait blocks until the loop has exited and the output is released.
func (p *Player) Wait() error {
	<-p.done
	return p.err
}

func (p *Player) Done() <-chan struct{} { return p.done }

func (p *Player) Status() PlayerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Player) run() {
	defer close(p.done)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	debug.Log("player", "started")
	if p.opts.Realtime {
		if err := raisePriority(); err != nil {
			debug.Warn("player", "could not raise thread priority, continuing at default: %v", err)
		}
	}

	p.err = p.loop()
	if p.err != nil {
		debug.Error("player", "exited: %v", p.err)
		return
	}
	debug.Log("player", "exited")
}

func (p *Player) loop() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.New(errs.Link, fmt.Sprintf("player panicked: %v", r))
		}
		if terr := p.teardown(); err == nil {
			err = terr
		}
	}()

	for {
		exit, err := p.drain()
		if err != nil || exit {
			return err
		}

		if p.state != Playing {
			<-p.inbox.Ready()
			continue
		}

		ev, ok := p.src.Next()
		if !ok {
			if err := p.stall(); err != nil {
				return err
			}
			continue
		}

		exit, err = p.process(ev)
		if err != nil || exit {
			return err
		}
	}
}

// drain handles every queued control message without blocking.
func (p *Player) drain() (exit bool, err error) {
	for {
		msg, ok := p.inbox.Take()
		if !ok {
			return false, nil
		}
		if exit, err := p.handle(msg); err != nil || exit {
			return exit, err
		}
	}
}

func (p *Player) handle(msg any) (exit bool, err error) {
	switch m := msg.(type) {
	case Play:
		if p.state != Playing {
			debug.Info("player", "starting playing")
			p.state = Playing
			p.publish()
		}
	case Stop:
		return false, p.stop()
	case SetBpm:
		p.bpm = uint16(clampBpm(m.Bpm))
		debug.Info("player", "tempo set to %d", p.bpm)
		p.publish()
	case Exit:
		return true, nil
	default:
		debug.Warn("player", "ignoring unknown message %T", msg)
	}
	return false, nil
}

// stop disarms playback, silences notes left sounding and resets the
// scheduling anchors. A no-op while stopped.
func (p *Player) stop() error {
	if p.state == Stopped {
		return nil
	}
	debug.Info("player", "stopping playing")
	p.state = Stopped
	p.firstEventInstant = time.Time{}
	p.shouldHaveElapsed = 0
	p.publish()

	for note, on := range p.sounding {
		if !on {
			continue
		}
		p.sounding[note] = false
		if err := p.dispatch(event.NoteOff(uint8(note))); err != nil {
			return err
		}
	}
	return nil
}

func (p *Player) process(ev event.Event) (exit bool, err error) {
	if p.firstEventInstant.IsZero() {
		p.firstEventInstant = p.opts.Now()
	}
	debug.Log("player", "next event: %s", ev)

	if (ev.Type == event.TypeNoteOn || ev.Type == event.TypeNoteOff) && ev.Note > 127 {
		debug.Warn("player", "skipping %s: note out of range", ev)
		return false, nil
	}

	switch ev.Type {
	case event.TypeNoteOn:
		err = p.dispatch(ev)
		p.sounding[ev.Note] = true
	case event.TypeNoteOff:
		err = p.dispatch(ev)
		p.sounding[ev.Note] = false
	case event.TypeAllNotesOff:
		err = p.dispatch(ev)
		p.sounding = [128]bool{}
	case event.TypeChangeBpm:
		if ev.Bpm == 0 {
			debug.Warn("player", "ignoring ChangeBpm(0)")
			break
		}
		p.bpm = ev.Bpm
		p.publish()
	case event.TypePrint:
		debug.Info("print", "%s", ev.Value)
	case event.TypeWait:
		exit, err = p.wait(ev.Ticks)
	case event.TypeMarker:
	}

	p.mu.Lock()
	p.status.Played++
	p.mu.Unlock()
	return exit, err
}

// wait sleeps until the absolute offset the tick count lands on, measured
// from the first event since playback started. Stop and Exit cut the sleep
// short.
func (p *Player) wait(ticks uint32) (exit bool, err error) {
	p.shouldHaveElapsed += event.TicksToDuration(ticks, p.bpm)

	d := p.shouldHaveElapsed - p.opts.Now().Sub(p.firstEventInstant)
	if d <= 0 {
		return false, nil
	}
	debug.Log("player", "waiting %v", d)

	timeout := p.opts.After(d)
	for {
		select {
		case <-timeout:
			return false, nil
		case <-p.inbox.Ready():
			for {
				msg, ok := p.inbox.Take()
				if !ok {
					break
				}
				exit, err := p.handle(msg)
				if err != nil || exit {
					return exit, err
				}
				if p.state == Stopped {
					return false, nil
				}
			}
		}
	}
}

// stall blocks while the buffer is empty until events arrive, a control
// message comes in, or the stall timeout passes.
func (p *Player) stall() error {
	p.mu.Lock()
	p.status.Stalls++
	p.mu.Unlock()

	timeout := p.opts.After(p.opts.StallTimeout)
	for {
		select {
		case <-p.src.Appended():
			return nil
		case <-p.inbox.Ready():
			return nil
		case <-timeout:
			if p.opts.StallPolicy == StallWait {
				debug.LogEvery(20, "player", "buffer still empty, waiting for events")
				timeout = p.opts.After(p.opts.StallTimeout)
				continue
			}
			debug.Warn("player", "no next event available, stopping")
			return p.stop()
		}
	}
}

func (p *Player) dispatch(ev event.Event) error {
	msg, ok := midi.Encode(ev, p.opts.Channel, p.opts.Velocity)
	if !ok {
		return nil
	}
	if err := p.out.Send(msg); err != nil {
		return errs.Wrap(err, errs.Transport, fmt.Sprintf("send %s", ev))
	}
	return nil
}

// teardown always sends one AllNotesOff before releasing the output.
func (p *Player) teardown() error {
	debug.Log("player", "sending all notes off")
	err := p.dispatch(event.AllNotesOff())
	p.sounding = [128]bool{}

	if cerr := p.out.Close(); cerr != nil && err == nil {
		err = errs.Wrap(cerr, errs.Transport, "close output")
	}

	p.state = Stopped
	p.publish()
	return err
}

func (p *Player) publish() {
	p.mu.Lock()
	p.status.State = p.state
	p.status.Bpm = p.bpm
	st := p.status
	p.mu.Unlock()

	if p.opts.OnChange != nil {
		p.opts.OnChange(st)
	}
}

func clampBpm(bpm int) int {
	if bpm < MinBpm {
		bpm = MinBpm
	}
	if bpm > MaxBpm {
		bpm = MaxBpm
	}
	return bpm
}
